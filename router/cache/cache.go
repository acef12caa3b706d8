// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

// Package cache is the content-addressed result store. A hit means identical
// work was already paid for, so the routing engine returns it before any
// network call or credit mutation — that ordering is the core correctness
// invariant preventing duplicate billing.
package cache

import (
	"context"
	"time"

	"pixelflow/platform/router/provider"
)

// DefaultTTL bounds entry staleness against upstream model changes.
const DefaultTTL = 24 * time.Hour

// ResultCache stores edit results keyed by request fingerprint.
// Implementations must be safe for concurrent use.
type ResultCache interface {
	// Lookup returns the cached result for the key, if present and live.
	Lookup(ctx context.Context, key Key) (*provider.EditResult, bool, error)

	// Store writes the result under the key, replacing any live entry.
	Store(ctx context.Context, key Key, result *provider.EditResult) error

	// Invalidate removes the entry for the key, if any.
	Invalidate(ctx context.Context, key Key) error

	// Migrate moves all of one user's entries to a new user key and
	// removes the old ones. Existing destination entries are kept.
	Migrate(ctx context.Context, fromUserID, toUserID string) error
}

// Entry is a stored result plus its insertion timestamp.
type Entry struct {
	Result   *provider.EditResult `json:"result"`
	StoredAt time.Time            `json:"stored_at"`
}
