// internal/config/model.go
//
// Typed configuration model.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                               – dotenv values,
//   • `conf/global.yaml`                            – primary static file,
//   • `OPENACCOUNT_`-prefixed environment overrides – highest precedence.
//
// Any string value beginning with `vault:` is resolved through the Vault
// client before validation, so the rest of the app never sees Vault URIs.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • Durations are written as Go duration strings ("1s", "30m").
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import "time"

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"   validate:"required,hostname_port"`
	ForceHTTPS   bool          `koanf:"force_https"`
	ReadTimeout  time.Duration `koanf:"read_timeout"  validate:"gte=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gte=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"  validate:"gte=0"`
}

// Log selects the log directory (relative paths hang off Paths.Root) and
// level.
type Log struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Forms configures form definitions and the submit guard.
//
// CSRFSecret is the HMAC key for form tokens, base64url encoded, at least 32
// bytes once decoded.  Typically a `vault:` reference in production.
type Forms struct {
	OverrideDirs []string      `koanf:"override_dirs"`
	CSRFSecret   string        `koanf:"csrf_secret"`
	MinFillTime  time.Duration `koanf:"min_fill_time" validate:"gte=0"`
	MaxFillTime  time.Duration `koanf:"max_fill_time" validate:"gte=0"`
}

// Submission tunes the simulated submit.
type Submission struct {
	Delay  time.Duration `koanf:"delay"  validate:"gt=0"`
	Notice string        `koanf:"notice" validate:"required"`
}

// Session tunes the in-memory form-session store.
type Session struct {
	IdleTTL       time.Duration `koanf:"idle_ttl"       validate:"gt=0"`
	MaxEntries    int           `koanf:"max_entries"    validate:"gte=0"`
	EvictInterval time.Duration `koanf:"evict_interval" validate:"gt=0"`
}

// Kafka enables the account.opened event publisher when Brokers is set.
type Kafka struct {
	Brokers []string `koanf:"brokers" validate:"dive,hostname_port"`
	Topic   string   `koanf:"topic"   validate:"required_with=Brokers"`
}

// Vault points at the server used for `vault:` references.  Empty Addr
// falls back to VAULT_ADDR.
type Vault struct {
	Addr  string `koanf:"addr"`
	Token string `koanf:"token"`
}

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // OPENACCOUNT_ROOT or discovered parent
}

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP       HTTP       `koanf:"http"`
	Log        Log        `koanf:"log"`
	Forms      Forms      `koanf:"forms"`
	Submission Submission `koanf:"submission"`
	Session    Session    `koanf:"session"`
	Kafka      Kafka      `koanf:"kafka"`
	Vault      Vault      `koanf:"vault"`
	Paths      Paths      `koanf:"-"`
}

// defaults are loaded before the YAML layer.
var defaults = map[string]any{
	"http.listen_addr":       ":8080",
	"http.read_timeout":      "10s",
	"http.write_timeout":     "15s",
	"http.idle_timeout":      "60s",
	"log.dir":                "logs",
	"log.level":              "info",
	"forms.min_fill_time":    "2s",
	"forms.max_fill_time":    "30m",
	"submission.delay":       "1s",
	"submission.notice":      "Account successfully opened!",
	"session.idle_ttl":       "30m",
	"session.max_entries":    10000,
	"session.evict_interval": "5m",
	"kafka.topic":            "account.opened",
}
