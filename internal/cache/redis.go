package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"memberbudget/internal/logger"
)

// Redis is a Cache backed by a shared Redis instance, for deployments
// running more than one API process. Failures degrade to cache misses;
// Redis being down must never break a price computation.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis cache against the given address.
func NewRedis(addr string) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Get().Warnw("redis cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return value, true
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.Get().Warnw("redis cache set failed", "key", key, "error", err)
	}
}

// Invalidate implements Cache.
func (r *Redis) Invalidate(ctx context.Context, key string) {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		logger.Get().Warnw("redis cache invalidate failed", "key", key, "error", err)
	}
}
