// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"pixelflow/platform/router/provider"
)

// keyPrefix namespaces all cache keys in the shared Redis instance.
const keyPrefix = "editcache:"

// RedisCache is a ResultCache backed by Redis. TTL expiry is delegated to
// Redis per-key TTLs; memory-pressure eviction is delegated to the Redis
// maxmemory policy (configure allkeys-lru or similar on the instance).
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisCacheOption configures the cache during creation.
type RedisCacheOption func(*RedisCache)

// WithRedisTTL overrides the entry time-to-live.
func WithRedisTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) {
		c.ttl = ttl
	}
}

// NewRedisCache creates a cache on an existing Redis client.
func NewRedisCache(client *redis.Client, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DialRedisCache connects to Redis by URL and verifies the connection.
func DialRedisCache(ctx context.Context, url string, opts ...RedisCacheOption) (*RedisCache, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisCache(client, opts...), nil
}

func (c *RedisCache) storageKey(key Key) string {
	return keyPrefix + key.String()
}

// Lookup returns the cached result if present.
func (c *RedisCache) Lookup(ctx context.Context, key Key) (*provider.EditResult, bool, error) {
	val, err := c.client.Get(ctx, c.storageKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		// A corrupt entry must not block the request; drop it.
		_ = c.client.Del(ctx, c.storageKey(key)).Err()
		return nil, false, nil
	}
	return e.Result, true, nil
}

// Store writes the result with the configured TTL.
func (c *RedisCache) Store(ctx context.Context, key Key, result *provider.EditResult) error {
	e := Entry{Result: result, StoredAt: time.Now().UTC()}
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache store marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.storageKey(key), val, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// Invalidate removes the entry for the key.
func (c *RedisCache) Invalidate(ctx context.Context, key Key) error {
	if err := c.client.Del(ctx, c.storageKey(key)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Migrate rekeys all of one user's entries via SCAN + RENAMENX, preserving
// per-key TTLs. Destination entries win on collision.
func (c *RedisCache) Migrate(ctx context.Context, fromUserID, toUserID string) error {
	if fromUserID == toUserID {
		return nil
	}

	pattern := keyPrefix + fromUserID + ":*"
	oldPrefix := keyPrefix + fromUserID + ":"
	newPrefix := keyPrefix + toUserID + ":"

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("cache migrate scan: %w", err)
		}
		for _, k := range keys {
			nk := newPrefix + k[len(oldPrefix):]
			ok, err := c.client.RenameNX(ctx, k, nk).Result()
			if err != nil && err != redis.Nil {
				return fmt.Errorf("cache migrate rename: %w", err)
			}
			if !ok {
				// Destination exists; the old entry is simply dropped.
				if err := c.client.Del(ctx, k).Err(); err != nil {
					return fmt.Errorf("cache migrate cleanup: %w", err)
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
