package redis

import (
	"context"
	"testing"
	"time"

	"duet-chat/internal/domain/user"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	goredis "github.com/redis/go-redis/v9"
)

// unreachable points at a closed port so every command fails fast.
func unreachable() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRateLimiterReportsBackendErrors(t *testing.T) {
	client := unreachable()
	defer client.Close()

	limiter := NewRateLimiter(client, DefaultRateLimitConfig())
	res, err := limiter.AllowMessage(context.Background(), uuid.NewString())
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestCacheReportsBackendErrors(t *testing.T) {
	client := unreachable()
	defer client.Close()

	cache := NewCacheStore(client, DefaultCacheConfig())
	u, err := cache.GetUser(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.Nil(t, u)
	assert.Error(t, cache.SetUser(context.Background(), user.User{ID: uuid.New()}))
	assert.Error(t, Ping(context.Background(), client, 200*time.Millisecond))
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("7b1f5e0a-2c59-4f55-9a1e-0f7c3c2d1a10")
	assert.Equal(t, "user:7b1f5e0a-2c59-4f55-9a1e-0f7c3c2d1a10", userKey(id))
	assert.Equal(t, "ratelimit:abc:messages", messageKey("abc"))
}
