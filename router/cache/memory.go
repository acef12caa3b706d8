// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"pixelflow/platform/router/provider"
)

// DefaultMaxEntries bounds the in-memory cache before oldest-first eviction
// kicks in.
const DefaultMaxEntries = 256

// MemoryCache is an in-process ResultCache with TTL expiry and oldest-first
// eviction above a max-entry bound.
type MemoryCache struct {
	entries    map[string]*Entry
	ttl        time.Duration
	maxEntries int
	mu         sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// MemoryCacheOption configures the cache during creation.
type MemoryCacheOption func(*MemoryCache)

// WithTTL overrides the entry time-to-live.
func WithTTL(ttl time.Duration) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.ttl = ttl
	}
}

// WithMaxEntries overrides the eviction bound.
func WithMaxEntries(n int) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.maxEntries = n
	}
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache(opts ...MemoryCacheOption) *MemoryCache {
	c := &MemoryCache{
		entries:    make(map[string]*Entry),
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetClock overrides the time source. For tests.
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.now = now
}

// Lookup returns the cached result if present and not expired.
func (c *MemoryCache) Lookup(ctx context.Context, key Key) (*provider.EditResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return nil, false, nil
	}
	if c.now().Sub(e.StoredAt) > c.ttl {
		delete(c.entries, key.String())
		return nil, false, nil
	}
	return e.Result, true, nil
}

// Store writes the result, evicting the oldest entries above the bound.
func (c *MemoryCache) Store(ctx context.Context, key Key, result *provider.EditResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key.String()] = &Entry{Result: result, StoredAt: c.now()}
	c.evictLocked()
	return nil
}

// Invalidate removes the entry for the key.
func (c *MemoryCache) Invalidate(ctx context.Context, key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.String())
	return nil
}

// Migrate rekeys all of one user's entries. Destination entries win on
// collision.
func (c *MemoryCache) Migrate(ctx context.Context, fromUserID, toUserID string) error {
	if fromUserID == toUserID {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := fromUserID + ":"
	for k, e := range c.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		nk := toUserID + ":" + strings.TrimPrefix(k, prefix)
		if _, exists := c.entries[nk]; !exists {
			c.entries[nk] = e
		}
		delete(c.entries, k)
	}
	return nil
}

// Sweep removes expired entries. Safe to run from a background ticker
// independent of request handling.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.StoredAt) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the live entry count.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops oldest entries until the bound holds. Caller holds c.mu.
func (c *MemoryCache) evictLocked() {
	for len(c.entries) > c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.StoredAt.Before(oldest) {
				oldestKey = k
				oldest = e.StoredAt
			}
		}
		delete(c.entries, oldestKey)
	}
}
