// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelflow/platform/router/provider"
)

func newRedisCache(t *testing.T, opts ...RedisCacheOption) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(client, opts...)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisCache_StoreAndLookup(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()
	key := Key{UserID: "u1", Fingerprint: "fp1"}

	_, ok, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Store(ctx, key, sampleResult(provider.ProviderOpenAI)))

	got, ok, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, provider.ProviderOpenAI, got.Provider)
	assert.Equal(t, []byte("edited"), got.Image.Data)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	c, mr := newRedisCache(t, WithRedisTTL(time.Hour))
	ctx := context.Background()
	key := Key{UserID: "u1", Fingerprint: "fp1"}

	require.NoError(t, c.Store(ctx, key, sampleResult(provider.ProviderLocal)))

	mr.FastForward(2 * time.Hour)

	_, ok, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "entry past TTL must expire")
}

func TestRedisCache_CorruptEntryIsDropped(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	key := Key{UserID: "u1", Fingerprint: "fp1"}

	require.NoError(t, mr.Set(keyPrefix+key.String(), "{not json"))

	_, ok, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(keyPrefix+key.String()), "corrupt entry is deleted")
}

func TestRedisCache_Invalidate(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()
	key := Key{UserID: "u1", Fingerprint: "fp1"}

	require.NoError(t, c.Store(ctx, key, sampleResult(provider.ProviderLocal)))
	require.NoError(t, c.Invalidate(ctx, key))

	_, ok, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Migrate(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, Key{UserID: "anon:d1", Fingerprint: "fp1"}, sampleResult(provider.ProviderClipdrop)))
	require.NoError(t, c.Store(ctx, Key{UserID: "anon:d1", Fingerprint: "fp2"}, sampleResult(provider.ProviderStability)))
	require.NoError(t, c.Store(ctx, Key{UserID: "acct-9", Fingerprint: "fp2"}, sampleResult(provider.ProviderGemini)))

	require.NoError(t, c.Migrate(ctx, "anon:d1", "acct-9"))

	got, ok, err := c.Lookup(ctx, Key{UserID: "acct-9", Fingerprint: "fp1"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, provider.ProviderClipdrop, got.Provider)

	// Destination wins the collision.
	got, ok, err = c.Lookup(ctx, Key{UserID: "acct-9", Fingerprint: "fp2"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, provider.ProviderGemini, got.Provider)

	_, ok, err = c.Lookup(ctx, Key{UserID: "anon:d1", Fingerprint: "fp1"})
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.Lookup(ctx, Key{UserID: "anon:d1", Fingerprint: "fp2"})
	require.NoError(t, err)
	assert.False(t, ok)
}
