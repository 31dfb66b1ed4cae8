package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, 8, cfg.Bulk.Concurrency)
	assert.Equal(t, 200, cfg.Backup.ListCap)
	assert.Equal(t, 10, cfg.Impact.WeightTeam)
	assert.Equal(t, 100, cfg.Impact.HighThreshold)
	assert.Equal(t, time.Minute, cfg.Redis.CacheTTL())
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("BULK_CONCURRENCY", "16")
	t.Setenv("CACHE_TTL_SECONDS", "0")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Bulk.Concurrency)
	assert.Zero(t, cfg.Redis.CacheTTL())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadRejectsBadInts(t *testing.T) {
	t.Setenv("IMPACT_WEIGHT_USER", "five")
	_, err := Load()
	assert.ErrorContains(t, err, "IMPACT_WEIGHT_USER")
}

func TestValidate(t *testing.T) {
	t.Setenv("BULK_CONCURRENCY", "64")
	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")
	assert.Contains(t, err.Error(), "BULK_CONCURRENCY")
}

func TestValidateRejectsCredentialedWildcard(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Server.CORSCredentials)
	assert.ErrorContains(t, cfg.Validate(), "CORS_ALLOW_CREDENTIALS")

	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	cfg, err = Load()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}
