package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_PORT", "TIMEZONE", "CORS_ORIGINS", "AUTH_BOOTSTRAP", "ACCESS_TTL", "STORE_BACKEND"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.AuthBootstrap)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, "postgres", cfg.StoreBackend)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("TIMEZONE", "Europe/Berlin")
	t.Setenv("CORS_ORIGINS", "https://a.edu, ,https://b.edu")
	t.Setenv("AUTH_BOOTSTRAP", "TRUE")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("ACCESS_TTL", "5m")

	cfg := Load()
	assert.True(t, cfg.Production())
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
	assert.Equal(t, []string{"https://a.edu", "https://b.edu"}, cfg.CORSOrigins)
	assert.True(t, cfg.AuthBootstrap)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("TIMEZONE", "Mars/Olympus")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("REFRESH_TTL", "forever")
	t.Setenv("AUTH_BOOTSTRAP", "perhaps")

	cfg := Load()
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTTL)
	assert.False(t, cfg.AuthBootstrap)
}
