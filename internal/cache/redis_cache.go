package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-feed/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

type RedisAccountCache struct {
	client *redis.Client
	prefix string
}

func NewRedisAccountCache(client *redis.Client, prefix string) *RedisAccountCache {
	if prefix == "" {
		prefix = "account"
	}
	return &RedisAccountCache{client: client, prefix: prefix}
}

func (c *RedisAccountCache) BuildKeyByID(accountID string) string {
	return fmt.Sprintf("%s:profile:%s", c.prefix, accountID)
}

func (c *RedisAccountCache) Get(ctx context.Context, key string) (*domain.AccountProfile, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var profile domain.AccountProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &profile, nil
}

func (c *RedisAccountCache) Set(ctx context.Context, key string, profile *domain.AccountProfile, ttl time.Duration) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisAccountCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

var _ AccountCache = (*RedisAccountCache)(nil)
