// internal/form/csrf.go
//
// Forms subsystem: stateless CSRF token utilities.
//
// Context
//   Rendered forms embed a hidden `csrf_token` input generated at render time.
//   The server verifies this token on POST to ensure the request originated
//   from a form it rendered.  Tokens are *stateless*:
//
//      base64url( nonce | unixMicro | HMAC_SHA256(secret, nonce+unixMicro) )
//
//   •  nonce – 16 random bytes.
//   •  unixMicro – microseconds since Unix epoch, 8 bytes, big-endian.
//   •  HMAC – keyed with forms.csrf_secret (usually a vault: reference).
//
//   Validation checks the signature and ensures the timestamp is within
//   maxAge.  The signed timestamp doubles as the render time for the
//   fill-time guard (validate.go).  No server-side state is required, so several instances can share
//   one secret.
//
// Workflow
//   •  SetSecret(cfg.Forms.CSRFSecret) once at boot.
//   •  GenerateToken()   → returns token string for renderer.
//   •  VerifyToken(tok) → constant-time verify; false on any failure.
//
//------------------------------------------------------------------------------

package form

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	tokenBytes   = 16 + 8 + sha256.Size // nonce + ts + sig
	maxAge       = 2 * time.Hour        // token valid window
	minSecretLen = 32
)

var (
	secretMu  sync.RWMutex
	secretKey []byte
)

// SetSecret installs the HMAC key.  encoded is base64url (padding optional)
// and must decode to at least 32 bytes.  An empty value installs a random
// key, which invalidates outstanding tokens on restart.
func SetSecret(encoded string) error {
	if encoded == "" {
		key := make([]byte, minSecretLen)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("csrf random key: %w", err)
		}
		zap.S().Warnw("forms.csrf_secret not set, using random key")
		storeSecret(key)
		return nil
	}

	key, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return fmt.Errorf("csrf secret: %w", err)
	}
	if len(key) < minSecretLen {
		return fmt.Errorf("csrf secret: %d bytes, need at least %d", len(key), minSecretLen)
	}
	storeSecret(key)
	return nil
}

// GenerateToken creates a new CSRF token.  Call once per form render.
func GenerateToken() (string, error) {
	return generateAt(time.Now())
}

func generateAt(now time.Time) (string, error) {
	sec, err := fetchSecret()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(now.UnixMicro()))

	mac := hmac.New(sha256.New, sec)
	mac.Write(nonce)
	mac.Write(ts)
	sig := mac.Sum(nil)

	buf := make([]byte, 0, tokenBytes)
	buf = append(buf, nonce...)
	buf = append(buf, ts...)
	buf = append(buf, sig...)

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// VerifyToken returns true if tok passes HMAC and age checks.
func VerifyToken(tok string) bool {
	_, ok := tokenIssued(tok, time.Now())
	return ok
}

// tokenIssued verifies tok against now and returns its signed issue time.
// The guard measures fill time from it, so the render time cannot be forged
// without breaking the signature.
func tokenIssued(tok string, now time.Time) (time.Time, bool) {
	sec, err := fetchSecret()
	if err != nil {
		return time.Time{}, false
	}

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return time.Time{}, false
	}

	nonce := raw[:16]
	tsBytes := raw[16:24]
	sig := raw[24:]

	// Timestamp window check.
	issued := time.UnixMicro(int64(binary.BigEndian.Uint64(tsBytes)))
	if now.Sub(issued) > maxAge || issued.Sub(now) > time.Minute {
		// Future timestamp (clock skew) or older than maxAge.
		return time.Time{}, false
	}

	// Recompute HMAC.
	mac := hmac.New(sha256.New, sec)
	mac.Write(nonce)
	mac.Write(tsBytes)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return time.Time{}, false
	}
	return issued, true
}

// fetchSecret returns the installed key, generating a random one on first
// use when SetSecret was never called (tests, tools).
func fetchSecret() ([]byte, error) {
	secretMu.RLock()
	key := secretKey
	secretMu.RUnlock()
	if key != nil {
		return key, nil
	}

	secretMu.Lock()
	defer secretMu.Unlock()
	if secretKey == nil {
		key := make([]byte, minSecretLen)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("csrf random key: %w", err)
		}
		secretKey = key
	}
	return secretKey, nil
}

func storeSecret(key []byte) {
	secretMu.Lock()
	secretKey = key
	secretMu.Unlock()
}
