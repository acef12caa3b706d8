// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

// Package ledger tracks per-user monthly edit credits. Each user holds one
// counter pair (budget used, premium used) per subscription tier, reset at
// the start of each UTC calendar month. Consumption is all-or-nothing: a
// counter never exceeds its capacity.
package ledger

import (
	"context"
	"errors"
	"time"

	"pixelflow/platform/router/provider"
)

// Monthly credit capacities per tier and cost class.
const (
	FreeBudgetCapacity  = 50
	FreePremiumCapacity = 5
	ProBudgetCapacity   = 500
	ProPremiumCapacity  = 300
)

var (
	// ErrUnknownCostClass is returned for a class the ledger does not meter.
	ErrUnknownCostClass = errors.New("cost class is not metered")

	// ErrUnknownTier is returned for an unrecognized subscription tier.
	ErrUnknownTier = errors.New("unknown subscription tier")

	// ErrStorage wraps persistence failures.
	ErrStorage = errors.New("ledger storage error")
)

// Capacity returns the monthly credit capacity for a tier and cost class.
// free_local has no meter and reports zero.
func Capacity(tier provider.Tier, class provider.CostClass) int {
	switch tier {
	case provider.TierFree:
		switch class {
		case provider.CostBudget:
			return FreeBudgetCapacity
		case provider.CostPremium:
			return FreePremiumCapacity
		}
	case provider.TierPro:
		switch class {
		case provider.CostBudget:
			return ProBudgetCapacity
		case provider.CostPremium:
			return ProPremiumCapacity
		}
	}
	return 0
}

// Counters is one tier's usage within the current period.
type Counters struct {
	BudgetUsed  int       `json:"budget_used"`
	PremiumUsed int       `json:"premium_used"`
	PeriodStart time.Time `json:"period_start"`
}

// UsageTracker is the credit ledger contract consumed by the routing engine.
// Implementations must be safe for concurrent use and must serialize
// consumption per user so concurrent requests cannot over-spend.
type UsageTracker interface {
	// Consume atomically spends one credit of the class for the user's
	// tier. Returns false without mutation when no credit remains.
	// free_local always succeeds and records nothing.
	Consume(ctx context.Context, userID string, tier provider.Tier, class provider.CostClass) (bool, error)

	// Remaining reports capacity minus used for the tier and class.
	Remaining(ctx context.Context, userID string, tier provider.Tier, class provider.CostClass) (int, error)

	// Reset zeroes both counters for the tier. Idempotent; safe to invoke
	// repeatedly within one period.
	Reset(ctx context.Context, userID string, tier provider.Tier) error

	// Migrate atomically moves counters from one user key to another and
	// removes the old key. When the destination already has counters the
	// merge policy is: sum per counter, capped at capacity.
	Migrate(ctx context.Context, fromUserID, toUserID string) error
}

// periodStart returns the UTC month boundary containing now.
func periodStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// samePeriod reports whether both instants fall in the same UTC month.
func samePeriod(a, b time.Time) bool {
	return periodStart(a).Equal(periodStart(b))
}

// capAt bounds v to the capacity.
func capAt(v, capacity int) int {
	if v > capacity {
		return capacity
	}
	return v
}
