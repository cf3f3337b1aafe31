package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	cfg := LoadConfig()

	assert.Equal(t, "", cfg.AppPort)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "jwt", cfg.AuthCookie)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5<<20, cfg.MaxImageBytes)
	assert.Equal(t, 10<<20, cfg.MaxBodyBytes)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverBadger)
	t.Setenv("MESSAGE_RATE_LIMIT", "5")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("USER_CACHE_TTL", "not-a-duration")
	t.Setenv("REDIS_DB", "abc")

	cfg := LoadConfig()

	assert.Equal(t, StoreDriverBadger, cfg.StoreDriver)
	assert.Equal(t, 5, cfg.MessageRateLimit)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5*time.Minute, cfg.UserCacheTTL)
	assert.Equal(t, 0, cfg.RedisDB)
}
