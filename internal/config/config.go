// Package config loads service configuration from the environment into an
// explicit struct handed to constructors, so no package keeps global state.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds every knob the service reads at startup.
type Config struct {
	Addr        string
	DatabaseDSN string

	JWTSecret string
	TokenTTL  time.Duration

	IdempotencyMaxBody int

	RetryMaxRetries int
	RetryBaseDelay  time.Duration
	RetryJitter     time.Duration

	DefaultAdminEmail    string
	DefaultAdminPassword string

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64

	AppURL string
}

// Load reads configuration from the environment, applying defaults for
// everything except the database DSN.
func Load() (Config, error) {
	cfg := Config{
		Addr:                 envString("AUDITORIA_ADDR", ":8080"),
		DatabaseDSN:          os.Getenv("AUDITORIA_PG_DSN"),
		JWTSecret:            os.Getenv("AUDITORIA_JWT_SECRET"),
		TokenTTL:             envDuration("AUDITORIA_TOKEN_TTL", 8*time.Hour),
		IdempotencyMaxBody:   envInt("AUDITORIA_IDEMPOTENCY_MAX_BODY", 4096),
		RetryMaxRetries:      envInt("AUDITORIA_RETRY_MAX", 2),
		RetryBaseDelay:       envDuration("AUDITORIA_RETRY_BASE_DELAY", 100*time.Millisecond),
		RetryJitter:          envDuration("AUDITORIA_RETRY_JITTER", 25*time.Millisecond),
		DefaultAdminEmail:    envString("AUDITORIA_ADMIN_EMAIL", "admin@example.com"),
		DefaultAdminPassword: os.Getenv("AUDITORIA_ADMIN_PASSWORD"),
		RateLimitPerSecond:   envInt("AUDITORIA_RATE_PER_SECOND", 20),
		RateLimitBurst:       envInt("AUDITORIA_RATE_BURST", 40),
		MaxBodyBytes:         int64(envInt("AUDITORIA_MAX_BODY_BYTES", 1<<20)),
		AppURL:               envString("AUDITORIA_APP_URL", "http://127.0.0.1:5500"),
	}
	if cfg.DatabaseDSN == "" {
		return Config{}, errors.New("config: AUDITORIA_PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("config: AUDITORIA_JWT_SECRET is required")
	}
	return cfg, nil
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
