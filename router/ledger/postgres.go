// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pixelflow/platform/router/provider"
)

// PostgresTracker implements UsageTracker on PostgreSQL. Single-writer
// discipline comes from conditional UPDATEs (compare-and-decrement): a
// consume only succeeds when the matching row's counter is still below
// capacity, so concurrent requests for one user cannot over-spend.
//
// Schema:
//
//	CREATE TABLE usage_ledgers (
//	    user_id      TEXT NOT NULL,
//	    tier         TEXT NOT NULL,
//	    budget_used  INT  NOT NULL DEFAULT 0,
//	    premium_used INT  NOT NULL DEFAULT 0,
//	    period_start TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (user_id, tier)
//	);
type PostgresTracker struct {
	db *sql.DB

	// now is swappable for tests.
	now func() time.Time
}

// NewPostgresTracker creates a tracker backed by the given database handle.
func NewPostgresTracker(db *sql.DB) *PostgresTracker {
	return &PostgresTracker{db: db, now: time.Now}
}

// SetClock overrides the time source. For tests.
func (t *PostgresTracker) SetClock(now func() time.Time) {
	t.now = now
}

func counterColumn(class provider.CostClass) (string, error) {
	switch class {
	case provider.CostBudget:
		return "budget_used", nil
	case provider.CostPremium:
		return "premium_used", nil
	}
	return "", ErrUnknownCostClass
}

// ensureRow upserts the user+tier row and rolls it into the current period
// when the stored period is stale (the lazy monthly reset).
func (t *PostgresTracker) ensureRow(ctx context.Context, q queryer, userID string, tier provider.Tier) error {
	ps := periodStart(t.now())

	_, err := q.ExecContext(ctx, `
		INSERT INTO usage_ledgers (user_id, tier, budget_used, premium_used, period_start)
		VALUES ($1, $2, 0, 0, $3)
		ON CONFLICT (user_id, tier) DO UPDATE
		SET budget_used = 0, premium_used = 0, period_start = EXCLUDED.period_start
		WHERE usage_ledgers.period_start < EXCLUDED.period_start
	`, userID, string(tier), ps)
	if err != nil {
		return fmt.Errorf("%w: ensure ledger row: %v", ErrStorage, err)
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Consume atomically spends one credit via compare-and-decrement.
func (t *PostgresTracker) Consume(ctx context.Context, userID string, tier provider.Tier, class provider.CostClass) (bool, error) {
	if class == provider.CostFreeLocal {
		return true, nil
	}
	if !provider.IsValidTier(string(tier)) {
		return false, ErrUnknownTier
	}
	col, err := counterColumn(class)
	if err != nil {
		return false, err
	}

	if err := t.ensureRow(ctx, t.db, userID, tier); err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE usage_ledgers
		SET %[1]s = %[1]s + 1
		WHERE user_id = $1 AND tier = $2 AND %[1]s < $3
	`, col)

	res, err := t.db.ExecContext(ctx, query, userID, string(tier), Capacity(tier, class))
	if err != nil {
		return false, fmt.Errorf("%w: consume: %v", ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: consume rows affected: %v", ErrStorage, err)
	}
	return n == 1, nil
}

// Remaining reports capacity minus used for the tier and class.
func (t *PostgresTracker) Remaining(ctx context.Context, userID string, tier provider.Tier, class provider.CostClass) (int, error) {
	if class == provider.CostFreeLocal {
		return int(^uint(0) >> 1), nil
	}
	if !provider.IsValidTier(string(tier)) {
		return 0, ErrUnknownTier
	}
	col, err := counterColumn(class)
	if err != nil {
		return 0, err
	}

	if err := t.ensureRow(ctx, t.db, userID, tier); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM usage_ledgers WHERE user_id = $1 AND tier = $2`, col)

	var used int
	if err := t.db.QueryRowContext(ctx, query, userID, string(tier)).Scan(&used); err != nil {
		if err == sql.ErrNoRows {
			return Capacity(tier, class), nil
		}
		return 0, fmt.Errorf("%w: remaining: %v", ErrStorage, err)
	}
	return Capacity(tier, class) - used, nil
}

// Reset zeroes both counters for the tier. Idempotent.
func (t *PostgresTracker) Reset(ctx context.Context, userID string, tier provider.Tier) error {
	if !provider.IsValidTier(string(tier)) {
		return ErrUnknownTier
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO usage_ledgers (user_id, tier, budget_used, premium_used, period_start)
		VALUES ($1, $2, 0, 0, $3)
		ON CONFLICT (user_id, tier) DO UPDATE
		SET budget_used = 0, premium_used = 0, period_start = EXCLUDED.period_start
	`, userID, string(tier), periodStart(t.now()))
	if err != nil {
		return fmt.Errorf("%w: reset: %v", ErrStorage, err)
	}
	return nil
}

// Migrate moves both tiers' counters to the new key inside one transaction.
// On collision counters are summed and capped at capacity.
func (t *PostgresTracker) Migrate(ctx context.Context, fromUserID, toUserID string) error {
	if fromUserID == toUserID {
		return nil
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin migrate: %v", ErrStorage, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ps := periodStart(t.now())

	// Fold current-period source rows into the destination, creating the
	// destination row when missing. Stale source periods are dropped: they
	// would be reset on first access anyway. Capacity literals must stay in
	// sync with the Capacity constants.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_ledgers (user_id, tier, budget_used, premium_used, period_start)
		SELECT $2, tier, budget_used, premium_used, period_start
		FROM usage_ledgers
		WHERE user_id = $1 AND period_start = $3
		ON CONFLICT (user_id, tier) DO UPDATE
		SET budget_used = LEAST(
		        usage_ledgers.budget_used + EXCLUDED.budget_used,
		        CASE usage_ledgers.tier WHEN 'free' THEN 50 ELSE 500 END),
		    premium_used = LEAST(
		        usage_ledgers.premium_used + EXCLUDED.premium_used,
		        CASE usage_ledgers.tier WHEN 'free' THEN 5 ELSE 300 END)
	`, fromUserID, toUserID, ps)
	if err != nil {
		return fmt.Errorf("%w: migrate fold: %v", ErrStorage, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_ledgers WHERE user_id = $1`, fromUserID); err != nil {
		return fmt.Errorf("%w: migrate delete: %v", ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit migrate: %v", ErrStorage, err)
	}
	return nil
}
