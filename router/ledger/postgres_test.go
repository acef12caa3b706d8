// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelflow/platform/router/provider"
)

func newPostgresTracker(t *testing.T) (*PostgresTracker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tr := NewPostgresTracker(db)
	tr.SetClock(func() time.Time {
		return time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	})
	return tr, mock
}

func TestPostgresConsume_Granted(t *testing.T) {
	tr, mock := newPostgresTracker(t)

	mock.ExpectExec("INSERT INTO usage_ledgers").
		WithArgs("u1", "free", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE usage_ledgers").
		WithArgs("u1", "free", FreeBudgetCapacity).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := tr.Consume(context.Background(), "u1", provider.TierFree, provider.CostBudget)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsume_Exhausted(t *testing.T) {
	tr, mock := newPostgresTracker(t)

	mock.ExpectExec("INSERT INTO usage_ledgers").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE usage_ledgers").
		WithArgs("u1", "free", FreePremiumCapacity).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := tr.Consume(context.Background(), "u1", provider.TierFree, provider.CostPremium)
	require.NoError(t, err)
	assert.False(t, ok, "no rows updated means no credit granted")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsume_FreeLocalSkipsStorage(t *testing.T) {
	tr, mock := newPostgresTracker(t)

	ok, err := tr.Consume(context.Background(), "u1", provider.TierFree, provider.CostFreeLocal)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRemaining(t *testing.T) {
	tr, mock := newPostgresTracker(t)

	mock.ExpectExec("INSERT INTO usage_ledgers").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT premium_used FROM usage_ledgers").
		WithArgs("u1", "pro").
		WillReturnRows(sqlmock.NewRows([]string{"premium_used"}).AddRow(120))

	remaining, err := tr.Remaining(context.Background(), "u1", provider.TierPro, provider.CostPremium)
	require.NoError(t, err)
	assert.Equal(t, ProPremiumCapacity-120, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReset(t *testing.T) {
	tr, mock := newPostgresTracker(t)

	mock.ExpectExec("INSERT INTO usage_ledgers").
		WithArgs("u1", "pro", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, tr.Reset(context.Background(), "u1", provider.TierPro))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate_Transactional(t *testing.T) {
	tr, mock := newPostgresTracker(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO usage_ledgers").
		WithArgs("anon:device-1", "acct-9", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM usage_ledgers").
		WithArgs("anon:device-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, tr.Migrate(context.Background(), "anon:device-1", "acct-9"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate_SameUserIsNoop(t *testing.T) {
	tr, mock := newPostgresTracker(t)

	require.NoError(t, tr.Migrate(context.Background(), "u1", "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate_FoldFailureRollsBack(t *testing.T) {
	tr, mock := newPostgresTracker(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO usage_ledgers").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := tr.Migrate(context.Background(), "anon:device-1", "acct-9")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
