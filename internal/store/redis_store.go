package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-feed/internal/domain"
)

// FollowStore caches per-account edge counts and tracks which accounts'
// counts are read most often.
type FollowStore interface {
	// GetCount returns (count, true, nil) on hit and (0, false, nil) on miss.
	GetCount(ctx context.Context, accountID string, kind domain.CountKind) (int64, bool, error)
	SetCount(ctx context.Context, accountID string, kind domain.CountKind, count int64) error
	// CondIncr and CondDecr only touch counts that are already cached.
	CondIncr(ctx context.Context, accountID string, kind domain.CountKind) error
	CondDecr(ctx context.Context, accountID string, kind domain.CountKind) error
	Invalidate(ctx context.Context, accountID string) error
	RecordAccess(ctx context.Context, accountID string) error
	GetTopHotKeys(ctx context.Context, n int64) ([]string, error)
	ResetHotKeyScores(ctx context.Context) error
}

// RedisFollowStore implements FollowStore on a shared Redis client.
type RedisFollowStore struct {
	client *redis.Client
	prefix string
}

// NewRedisFollowStore stores keys under prefix, e.g. "graph".
func NewRedisFollowStore(client *redis.Client, prefix string) *RedisFollowStore {
	if prefix == "" {
		prefix = "graph"
	}
	return &RedisFollowStore{client: client, prefix: prefix}
}

func (s *RedisFollowStore) countKey(accountID string, kind domain.CountKind) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, kind, accountID)
}

func (s *RedisFollowStore) hotKeyScoresKey() string {
	return s.prefix + ":hotkey:scores"
}

func (s *RedisFollowStore) GetCount(ctx context.Context, accountID string, kind domain.CountKind) (int64, bool, error) {
	val, err := s.client.Get(ctx, s.countKey(accountID, kind)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis get %s count: %w", kind, err)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s count: %w", kind, err)
	}
	return count, true, nil
}

func (s *RedisFollowStore) SetCount(ctx context.Context, accountID string, kind domain.CountKind, count int64) error {
	if err := s.client.Set(ctx, s.countKey(accountID, kind), count, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s count: %w", kind, err)
	}
	return nil
}

// condIncrScript increments KEYS[1] only if it exists.
var condIncrScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
  return redis.call("INCR", key)
end
return 0
`)

// condDecrScript decrements KEYS[1] only if it exists and stays >= 0.
var condDecrScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
  local val = tonumber(redis.call("GET", key))
  if val and val > 0 then
    return redis.call("DECR", key)
  end
end
return 0
`)

// CondIncr leaves uncached counts alone so an increment never seeds a
// count that was not loaded from the database.
func (s *RedisFollowStore) CondIncr(ctx context.Context, accountID string, kind domain.CountKind) error {
	err := condIncrScript.Run(ctx, s.client, []string{s.countKey(accountID, kind)}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis cond incr %s count: %w", kind, err)
	}
	return nil
}

func (s *RedisFollowStore) CondDecr(ctx context.Context, accountID string, kind domain.CountKind) error {
	err := condDecrScript.Run(ctx, s.client, []string{s.countKey(accountID, kind)}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis cond decr %s count: %w", kind, err)
	}
	return nil
}

// Invalidate drops both counts and the access score of accountID.
func (s *RedisFollowStore) Invalidate(ctx context.Context, accountID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx,
		s.countKey(accountID, domain.CountFollowers),
		s.countKey(accountID, domain.CountFollowing))
	pipe.ZRem(ctx, s.hotKeyScoresKey(), accountID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate counts: %w", err)
	}
	return nil
}

func (s *RedisFollowStore) RecordAccess(ctx context.Context, accountID string) error {
	if err := s.client.ZIncrBy(ctx, s.hotKeyScoresKey(), 1, accountID).Err(); err != nil {
		return fmt.Errorf("redis record access: %w", err)
	}
	return nil
}

// GetTopHotKeys returns the n most read account ids, hottest first.
func (s *RedisFollowStore) GetTopHotKeys(ctx context.Context, n int64) ([]string, error) {
	keys, err := s.client.ZRevRange(ctx, s.hotKeyScoresKey(), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get top hot keys: %w", err)
	}
	return keys, nil
}

func (s *RedisFollowStore) ResetHotKeyScores(ctx context.Context) error {
	if err := s.client.Del(ctx, s.hotKeyScoresKey()).Err(); err != nil {
		return fmt.Errorf("redis reset hot key scores: %w", err)
	}
	return nil
}

var _ FollowStore = (*RedisFollowStore)(nil)
