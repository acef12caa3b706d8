// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelflow/platform/router/provider"
)

func sampleResult(id provider.ID) *provider.EditResult {
	return &provider.EditResult{
		Image:     provider.ImageRef{Data: []byte("edited"), MIME: "image/png"},
		Provider:  id,
		CostClass: provider.CostBudget,
	}
}

func TestMemoryCache_StoreAndLookup(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	key := Key{UserID: "u1", Fingerprint: "fp1"}

	_, ok, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Store(ctx, key, sampleResult(provider.ProviderStability)))

	got, ok, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, provider.ProviderStability, got.Provider)
	assert.Equal(t, []byte("edited"), got.Image.Data)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache(WithTTL(time.Hour))
	current := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return current })

	ctx := context.Background()
	key := Key{UserID: "u1", Fingerprint: "fp1"}
	require.NoError(t, c.Store(ctx, key, sampleResult(provider.ProviderLocal)))

	current = current.Add(59 * time.Minute)
	_, ok, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	current = current.Add(2 * time.Minute)
	_, ok, err = c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "entry past TTL must expire")
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on lookup")
}

func TestMemoryCache_EvictsOldestAboveBound(t *testing.T) {
	c := NewMemoryCache(WithMaxEntries(3))
	current := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return current })

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		key := Key{UserID: "u1", Fingerprint: fmt.Sprintf("fp%d", i)}
		require.NoError(t, c.Store(ctx, key, sampleResult(provider.ProviderLocal)))
		current = current.Add(time.Minute)
	}

	assert.Equal(t, 3, c.Len())
	_, ok, err := c.Lookup(ctx, Key{UserID: "u1", Fingerprint: "fp0"})
	require.NoError(t, err)
	assert.False(t, ok, "oldest entry is evicted first")
	_, ok, err = c.Lookup(ctx, Key{UserID: "u1", Fingerprint: "fp3"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_Invalidate(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	key := Key{UserID: "u1", Fingerprint: "fp1"}

	require.NoError(t, c.Store(ctx, key, sampleResult(provider.ProviderLocal)))
	require.NoError(t, c.Invalidate(ctx, key))

	_, ok, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Migrate(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, Key{UserID: "anon:d1", Fingerprint: "fp1"}, sampleResult(provider.ProviderLocal)))
	require.NoError(t, c.Store(ctx, Key{UserID: "anon:d1", Fingerprint: "fp2"}, sampleResult(provider.ProviderStability)))
	require.NoError(t, c.Store(ctx, Key{UserID: "acct-9", Fingerprint: "fp2"}, sampleResult(provider.ProviderGemini)))
	require.NoError(t, c.Store(ctx, Key{UserID: "other", Fingerprint: "fp1"}, sampleResult(provider.ProviderLocal)))

	require.NoError(t, c.Migrate(ctx, "anon:d1", "acct-9"))

	// Moved entry.
	got, ok, err := c.Lookup(ctx, Key{UserID: "acct-9", Fingerprint: "fp1"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, provider.ProviderLocal, got.Provider)

	// Destination wins the collision.
	got, ok, err = c.Lookup(ctx, Key{UserID: "acct-9", Fingerprint: "fp2"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, provider.ProviderGemini, got.Provider)

	// Source entries are gone; unrelated users untouched.
	_, ok, err = c.Lookup(ctx, Key{UserID: "anon:d1", Fingerprint: "fp1"})
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.Lookup(ctx, Key{UserID: "other", Fingerprint: "fp1"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_Sweep(t *testing.T) {
	c := NewMemoryCache(WithTTL(time.Hour))
	current := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return current })

	ctx := context.Background()
	require.NoError(t, c.Store(ctx, Key{UserID: "u1", Fingerprint: "old"}, sampleResult(provider.ProviderLocal)))
	current = current.Add(2 * time.Hour)
	require.NoError(t, c.Store(ctx, Key{UserID: "u1", Fingerprint: "new"}, sampleResult(provider.ProviderLocal)))

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}
