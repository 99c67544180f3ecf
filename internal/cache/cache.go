package cache

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-feed/internal/domain"
)

// AccountCache caches public account profiles.
type AccountCache interface {
	// Get returns ErrCacheMiss when key is absent.
	Get(ctx context.Context, key string) (*domain.AccountProfile, error)
	Set(ctx context.Context, key string, profile *domain.AccountProfile, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKeyByID(accountID string) string
}
