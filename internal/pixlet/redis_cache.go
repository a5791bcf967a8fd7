package pixlet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.starlark.net/starlark"
	"tidbyt.dev/pixlet/runtime"
)

// RedisCache backs the applet runtime cache with Redis so cached HTTP
// responses survive restarts
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// AppCache scopes a RedisCache to one applet on one display
type AppCache struct {
	cache *RedisCache
	scope string
}

var _ runtime.Cache = (*AppCache)(nil)

// NewRedisCache shares client with the rest of the process. Keys are written
// under prefix.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "pixlet"
	}
	return &RedisCache{client: client, prefix: prefix}
}

// WithContext returns the cache as seen by appID running for deviceID
func (r *RedisCache) WithContext(appID, deviceID string) *AppCache {
	return &AppCache{
		cache: r,
		scope: fmt.Sprintf("%s:%s:%s", r.prefix, deviceID, appID),
	}
}

// Ping tests the Redis connection
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// threadContext returns the context the runtime attached to thread, if any
func threadContext(thread *starlark.Thread) context.Context {
	if thread != nil {
		if ctx, ok := thread.Local("context").(context.Context); ok {
			return ctx
		}
	}
	return context.Background()
}

func (c *AppCache) key(key string) string {
	return c.scope + ":" + strings.ReplaceAll(key, ":", "_")
}

// Get implements runtime.Cache
func (c *AppCache) Get(thread *starlark.Thread, key string) ([]byte, bool, error) {
	k := c.key(key)
	val, err := c.cache.client.Get(threadContext(thread), k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s from Redis: %w", k, err)
	}
	return val, true, nil
}

// Set implements runtime.Cache. ttl is in seconds; zero keeps the value forever.
func (c *AppCache) Set(thread *starlark.Thread, key string, value []byte, ttl int64) error {
	k := c.key(key)
	if err := c.cache.client.Set(threadContext(thread), k, value, time.Duration(ttl)*time.Second).Err(); err != nil {
		return fmt.Errorf("failed to set key %s in Redis: %w", k, err)
	}
	return nil
}

// FlushApp removes every entry of this applet and display
func (c *AppCache) FlushApp(ctx context.Context) (int, error) {
	pattern := c.scope + ":*"
	iter := c.cache.client.Scan(ctx, 0, pattern, 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan for keys with pattern %s: %w", pattern, err)
	}

	if len(keys) > 0 {
		if err := c.cache.client.Del(ctx, keys...).Err(); err != nil {
			return 0, fmt.Errorf("failed to delete keys: %w", err)
		}
	}
	return len(keys), nil
}
