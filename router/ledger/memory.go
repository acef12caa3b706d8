// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"sync"
	"time"

	"pixelflow/platform/router/provider"
)

// MemoryTracker is an in-process UsageTracker. Each user entry carries its
// own mutex, so consumption for one user is serialized while different users
// proceed independently.
type MemoryTracker struct {
	users map[string]*userEntry
	mu    sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

type userEntry struct {
	mu       sync.Mutex
	counters map[provider.Tier]*Counters
}

// NewMemoryTracker creates an empty in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		users: make(map[string]*userEntry),
		now:   time.Now,
	}
}

// SetClock overrides the time source. For tests.
func (t *MemoryTracker) SetClock(now func() time.Time) {
	t.now = now
}

func (t *MemoryTracker) entry(userID string) *userEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if !ok {
		e = &userEntry{counters: make(map[provider.Tier]*Counters)}
		t.users[userID] = e
	}
	return e
}

// counters returns the tier's counters, lazily resetting them when the
// period boundary has passed. Caller must hold e.mu.
func (t *MemoryTracker) counters(e *userEntry, tier provider.Tier) *Counters {
	now := t.now()
	c, ok := e.counters[tier]
	if !ok || !samePeriod(c.PeriodStart, now) {
		c = &Counters{PeriodStart: periodStart(now)}
		e.counters[tier] = c
	}
	return c
}

// Consume atomically spends one credit, or returns false when exhausted.
func (t *MemoryTracker) Consume(ctx context.Context, userID string, tier provider.Tier, class provider.CostClass) (bool, error) {
	if class == provider.CostFreeLocal {
		return true, nil
	}
	if !provider.IsValidTier(string(tier)) {
		return false, ErrUnknownTier
	}
	if class != provider.CostBudget && class != provider.CostPremium {
		return false, ErrUnknownCostClass
	}

	e := t.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	c := t.counters(e, tier)
	capacity := Capacity(tier, class)

	switch class {
	case provider.CostBudget:
		if c.BudgetUsed >= capacity {
			return false, nil
		}
		c.BudgetUsed++
	case provider.CostPremium:
		if c.PremiumUsed >= capacity {
			return false, nil
		}
		c.PremiumUsed++
	}
	return true, nil
}

// Remaining reports capacity minus used.
func (t *MemoryTracker) Remaining(ctx context.Context, userID string, tier provider.Tier, class provider.CostClass) (int, error) {
	if class == provider.CostFreeLocal {
		return int(^uint(0) >> 1), nil
	}
	if !provider.IsValidTier(string(tier)) {
		return 0, ErrUnknownTier
	}
	if class != provider.CostBudget && class != provider.CostPremium {
		return 0, ErrUnknownCostClass
	}

	e := t.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	c := t.counters(e, tier)
	if class == provider.CostBudget {
		return Capacity(tier, class) - c.BudgetUsed, nil
	}
	return Capacity(tier, class) - c.PremiumUsed, nil
}

// Reset zeroes both counters for the tier. Idempotent.
func (t *MemoryTracker) Reset(ctx context.Context, userID string, tier provider.Tier) error {
	if !provider.IsValidTier(string(tier)) {
		return ErrUnknownTier
	}
	e := t.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters[tier] = &Counters{PeriodStart: periodStart(t.now())}
	return nil
}

// Migrate moves counters to a new user key and deletes the old key. On
// collision counters are summed and capped at capacity.
func (t *MemoryTracker) Migrate(ctx context.Context, fromUserID, toUserID string) error {
	if fromUserID == toUserID {
		return nil
	}

	// Take the global lock for the whole move so no consume can interleave
	// between reading the source and writing the destination.
	t.mu.Lock()
	defer t.mu.Unlock()

	src, ok := t.users[fromUserID]
	if !ok {
		return nil
	}

	dst, ok := t.users[toUserID]
	if !ok {
		t.users[toUserID] = src
		delete(t.users, fromUserID)
		return nil
	}

	src.mu.Lock()
	dst.mu.Lock()
	defer src.mu.Unlock()
	defer dst.mu.Unlock()

	now := t.now()
	for tier, sc := range src.counters {
		if !samePeriod(sc.PeriodStart, now) {
			continue
		}
		dc, ok := dst.counters[tier]
		if !ok || !samePeriod(dc.PeriodStart, now) {
			dst.counters[tier] = &Counters{
				BudgetUsed:  sc.BudgetUsed,
				PremiumUsed: sc.PremiumUsed,
				PeriodStart: periodStart(now),
			}
			continue
		}
		dc.BudgetUsed = capAt(dc.BudgetUsed+sc.BudgetUsed, Capacity(tier, provider.CostBudget))
		dc.PremiumUsed = capAt(dc.PremiumUsed+sc.PremiumUsed, Capacity(tier, provider.CostPremium))
	}
	delete(t.users, fromUserID)
	return nil
}
