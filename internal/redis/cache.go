package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"duet-chat/internal/domain/user"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Cache key pattern:
// - user:{user_id} - UserTTL, profile cache for recipient lookups

type CacheConfig struct {
	UserTTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{UserTTL: 5 * time.Minute}
}

// CacheStore handles caching in Redis
type CacheStore struct {
	client *goredis.Client
	config CacheConfig
}

func NewCacheStore(client *goredis.Client, config CacheConfig) *CacheStore {
	return &CacheStore{
		client: client,
		config: config,
	}
}

func userKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID.String())
}

// GetUser returns (nil, nil) on a cache miss.
func (c *CacheStore) GetUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	data, err := c.client.Get(ctx, userKey(userID)).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var u user.User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *CacheStore) SetUser(ctx context.Context, u user.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, userKey(u.ID), data, c.config.UserTTL).Err()
}
