package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// ClientSource yields the live Redis client. It is resolved on every call so
// a reconnect is picked up without rebuilding the cache.
type ClientSource interface {
	Get() redis.UniversalClient
}

type Cache struct {
	Redis     ClientSource
	Namespace string
}

// Get value from Redis
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.Redis.Get().Get(ctx, c.Namespace+":"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// Store data to Redis
func (c *Cache) Store(ctx context.Context, key string, ttl time.Duration, value string) error {
	return c.Redis.Get().Set(ctx, c.Namespace+":"+key, value, ttl).Err()
}

func NewCache(namespace string, src ClientSource) *Cache {
	return &Cache{
		Namespace: namespace,
		Redis:     src,
	}
}
