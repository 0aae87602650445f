package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDSNAndSecret(t *testing.T) {
	t.Setenv("AUDITORIA_PG_DSN", "")
	t.Setenv("AUDITORIA_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("AUDITORIA_PG_DSN", "postgres://localhost/auditoria")
	_, err = Load()
	require.Error(t, err, "secret still missing")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUDITORIA_PG_DSN", "postgres://localhost/auditoria")
	t.Setenv("AUDITORIA_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, 8*time.Hour, cfg.TokenTTL)
	require.Equal(t, 4096, cfg.IdempotencyMaxBody)
	require.Equal(t, 2, cfg.RetryMaxRetries)
	require.Equal(t, 100*time.Millisecond, cfg.RetryBaseDelay)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUDITORIA_PG_DSN", "postgres://localhost/auditoria")
	t.Setenv("AUDITORIA_JWT_SECRET", "test-secret")
	t.Setenv("AUDITORIA_RETRY_MAX", "5")
	t.Setenv("AUDITORIA_RETRY_BASE_DELAY", "250ms")
	t.Setenv("AUDITORIA_TOKEN_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.RetryMaxRetries)
	require.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	require.Equal(t, 30*time.Minute, cfg.TokenTTL)
}
