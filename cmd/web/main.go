// cmd/web/main.go
//
// Open-account service – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load configuration (defaults → conf/global.yaml → OPENACCOUNT_* env,
//     with `vault:` references resolved).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Install the CSRF key and register form definitions from the override
//     directories.
//
//  4. Build shared services: domain validator, view engine, submit guard.
//
//  5. Build the router:
//
//     • request ID + panic recovery   – chi middleware
//     • request info + scoped logger  – requestinfo.Enrich
//     • security headers              – middleware.Security
//     • /metrics, /healthz            – ops endpoints
//     • components                    – component.Mount
//
//  6. Wrap with ForceHTTPS, serve until SIGINT/SIGTERM, then drain and
//     close components.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/openaccount/internal/account"
	"github.com/yanizio/openaccount/internal/component"
	"github.com/yanizio/openaccount/internal/config"
	"github.com/yanizio/openaccount/internal/form"
	"github.com/yanizio/openaccount/internal/logger"
	"github.com/yanizio/openaccount/internal/middleware"
	"github.com/yanizio/openaccount/internal/requestinfo"
	"github.com/yanizio/openaccount/internal/server"
	"github.com/yanizio/openaccount/internal/view"

	_ "github.com/yanizio/openaccount/components/account" // account-opening flow
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		zap.S().Fatalw("openaccount stopped", "err", err)
	}
}

func run(ctx context.Context) error {
	//
	// ── 1.  Configuration ───────────────────────────────────────────────
	//
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger is not up yet; zap's global writes to stderr.
		zap.ReplaceGlobals(zap.Must(zap.NewProduction()))
		return fmt.Errorf("load config: %w", err)
	}

	//
	// ── 2.  Logger ──────────────────────────────────────────────────────
	//
	log, err := logger.New(logger.Options{Dir: cfg.Log.Dir, Level: cfg.Log.Level, Tee: runningInTTY()})
	if err != nil {
		zap.ReplaceGlobals(zap.Must(zap.NewProduction()))
		return fmt.Errorf("start logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	//
	// ── 3.  Forms ───────────────────────────────────────────────────────
	//
	if err := form.SetSecret(cfg.Forms.CSRFSecret); err != nil {
		return fmt.Errorf("csrf secret: %w", err)
	}
	if err := form.RegisterForms(cfg.Forms.OverrideDirs); err != nil {
		return fmt.Errorf("form overrides: %w", err)
	}

	//
	// ── 4.  Shared services ─────────────────────────────────────────────
	//
	env := component.Env{
		Config:    cfg,
		Log:       log,
		Validator: account.NewValidator(),
		Guard:     form.Guard{MinFill: cfg.Forms.MinFillTime, MaxFill: cfg.Forms.MaxFillTime},
		Views:     view.New(cfg.Forms.OverrideDirs, view.CacheDefault),
	}

	//
	// ── 5.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer, requestinfo.Enrich, middleware.Security)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	if err := component.Mount(r, env); err != nil {
		return fmt.Errorf("mount components: %w", err)
	}
	defer func() {
		if err := component.Shutdown(); err != nil {
			log.Warnw("component shutdown", "err", err)
		}
	}()

	//
	// ── 6.  Serve ───────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP, middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS, r))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, srv) })

	log.Infow("listening", "addr", cfg.HTTP.ListenAddr, "force_https", cfg.HTTP.ForceHTTPS)
	return g.Wait()
}
