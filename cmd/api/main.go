package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"auditoria.org/internal/audits"
	"auditoria.org/internal/auth"
	"auditoria.org/internal/compliance"
	"auditoria.org/internal/config"
	"auditoria.org/internal/dashboard"
	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/httpapi"
	"auditoria.org/internal/meetings"
	"auditoria.org/internal/notifications"
	"auditoria.org/internal/obs"
	"auditoria.org/internal/rbac"
)

// Overridden at build time via -ldflags.
var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	runner := dbtx.NewRunner(db, dbtx.RetryPolicy{
		MaxRetries: cfg.RetryMaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		Jitter:     cfg.RetryJitter,
	})

	// Provision the role/permission catalog and the bootstrap admin before
	// taking traffic. Both are idempotent.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := provision(startupCtx, runner, cfg); err != nil {
		cancelStartup()
		log.Fatalf("provision: %v", err)
	}
	cancelStartup()

	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)
	svc := httpapi.Services{
		Auth:          auth.NewService(runner, issuer, auth.LogMailer{}, cfg.AppURL),
		Audits:        audits.NewService(runner, cfg.IdempotencyMaxBody),
		Meetings:      meetings.NewService(runner),
		Notifications: notifications.NewService(runner),
		Compliance:    compliance.NewService(runner),
		Dashboard:     dashboard.NewService(runner),
	}
	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, issuer, runner, svc, httpapi.Options{
		MaxBodyBytes: cfg.MaxBodyBytes,
		RatePerSec:   cfg.RateLimitPerSecond,
		RateBurst:    cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting auditoria-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}

func provision(ctx context.Context, runner *dbtx.Runner, cfg config.Config) error {
	return runner.Transactional(ctx, func(ctx context.Context, tx dbtx.DBTX) error {
		store := rbac.NewStore(tx)
		if err := store.Provision(ctx); err != nil {
			return err
		}
		if cfg.DefaultAdminPassword == "" {
			return nil
		}
		hash, err := auth.HashPassword(cfg.DefaultAdminPassword)
		if err != nil {
			return err
		}
		return store.EnsureDefaultAdmin(ctx, cfg.DefaultAdminEmail, hash)
	})
}
