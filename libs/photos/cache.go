package photos

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/istadmins/RotamBenim-sub000/libs/textnorm"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "rotambenim:photos:"

// Cache stores serialized search results.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache is a Cache backed by Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedProvider answers repeated queries from a cache. Cache failures are
// logged and fall through to the wrapped provider.
type CachedProvider struct {
	Next  Provider
	Cache Cache
	TTL   time.Duration
	Log   *slog.Logger
}

// NewCachedProvider wraps next with cache.
func NewCachedProvider(next Provider, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{Next: next, Cache: cache, TTL: ttl, Log: logger}
}

// Name returns the wrapped provider's name.
func (c *CachedProvider) Name() string {
	return c.Next.Name()
}

// Search returns cached results for the normalized query when present.
func (c *CachedProvider) Search(ctx context.Context, query string) ([]Photo, error) {
	key := cacheKeyPrefix + c.Next.Name() + ":" + textnorm.Normalize(query)

	if raw, ok, err := c.Cache.Get(ctx, key); err != nil {
		c.Log.Warn("photo cache read failed", "key", key, "err", err)
	} else if ok {
		var cached []Photo
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
		c.Log.Warn("photo cache entry unreadable", "key", key)
	}

	result, err := c.Next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return result, nil
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return result, nil
	}
	if err := c.Cache.Set(ctx, key, string(encoded), c.TTL); err != nil {
		c.Log.Warn("photo cache write failed", "key", key, "err", err)
	}
	return result, nil
}

// FallbackProvider tries Primary and uses Secondary when it fails or finds nothing.
type FallbackProvider struct {
	Primary   Provider
	Secondary Provider
}

func (f *FallbackProvider) Name() string {
	return f.Primary.Name()
}

func (f *FallbackProvider) Search(ctx context.Context, query string) ([]Photo, error) {
	res, err := f.Primary.Search(ctx, query)
	if err != nil || len(res) == 0 {
		return f.Secondary.Search(ctx, query)
	}
	return res, nil
}
