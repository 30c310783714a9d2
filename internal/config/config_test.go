package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, BackendFile, cfg.StoreBackend)
	assert.Equal(t, "data/data.json", cfg.DataFile)
	assert.Equal(t, 60, cfg.AccessTTLMin)
	assert.Equal(t, 7, cfg.RefreshTTLDays)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, "admin@local", cfg.SeedEmail)
	assert.Equal(t, "123456", cfg.SeedPassword)
	assert.Empty(t, cfg.CORSOrigins)
	assert.False(t, cfg.EventsEnabled)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadMySQLRequiresDB(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_BACKEND", "MySQL")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_PORT", "")
	t.Setenv("DB_NAME", "helpdesk")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_HOST")
	assert.Contains(t, err.Error(), "DB_PORT")
	assert.NotContains(t, err.Error(), "DB_USER")

	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "3306")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMySQL, cfg.StoreBackend)
	assert.Equal(t, "helpdesk", cfg.DBName)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	t.Setenv("STORE_BACKEND", "postgres")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("BCRYPT_COST", "high")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadParsesOrigins(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ORIGIN", " http://a.test , ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 3, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, time.Minute, cfg.RefillInterval)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")

	cfg := LoadCacheConfig()
	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.False(t, cfg.Methods["POST"])
	assert.Equal(t, "helpdesk:cache", cfg.Prefix)
	assert.Equal(t, CacheKeyRouteQuery, cfg.KeyStrategy)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
}

func TestLoadCacheConfigFallbacks(t *testing.T) {
	t.Setenv("CACHE_ENABLED", "off")
	t.Setenv("CACHE_TTL", "-1s")
	t.Setenv("CACHE_KEY_STRATEGY", "Method_Route")
	t.Setenv("CACHE_MAX_BODY_BYTES", "lots")
	t.Setenv("CACHE_METHODS", " , ")

	cfg := LoadCacheConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
	assert.Equal(t, CacheKeyMethodRoute, cfg.KeyStrategy)
	assert.Equal(t, 64<<10, cfg.MaxBodyBytes)
	assert.Equal(t, map[string]bool{"GET": true}, cfg.Methods)

	t.Setenv("CACHE_KEY_STRATEGY", "by_user")
	assert.Equal(t, CacheKeyRouteQuery, LoadCacheConfig().KeyStrategy)
}
