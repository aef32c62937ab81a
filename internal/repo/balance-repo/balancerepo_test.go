package balancerepo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlebRadaev/coursepay/internal/domain"
)

var balanceCols = []string{"user_id", "available_cents", "pending_cents", "frozen", "frozen_reason", "updated_at"}

func NewMock(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)
	return New(mockDB), mockDB
}

func TestRepository_GetBalance(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	tests := []struct {
		name      string
		userID    int64
		mockSetup func()
		expectErr bool
		result    *domain.Balance
	}{
		{
			name:   "existing balance",
			userID: 1,
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`FROM instructor_balances WHERE user_id = $1`)).
					WithArgs(int64(1)).
					WillReturnRows(pgxmock.NewRows(balanceCols).AddRow(int64(1), int64(9000), int64(1000), false, "", now))
			},
			result: &domain.Balance{UserID: 1, AvailableCents: 9000, PendingCents: 1000, UpdatedAt: now},
		},
		{
			name:   "no balance yet",
			userID: 99,
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`FROM instructor_balances WHERE user_id = $1`)).
					WithArgs(int64(99)).
					WillReturnError(pgx.ErrNoRows)
			},
		},
		{
			name:   "database error",
			userID: 1,
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`FROM instructor_balances WHERE user_id = $1`)).
					WithArgs(int64(1)).
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			b, err := repo.GetBalance(context.Background(), tt.userID)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.result, b)
		})
	}
}

func TestRepository_ApplyDelta(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	t.Run("guard passes", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`AND available_cents + $1 >= 0 AND pending_cents + $2 >= 0`)).
			WithArgs(int64(-500), int64(500), int64(3), true).
			WillReturnRows(pgxmock.NewRows(balanceCols).AddRow(int64(3), int64(1500), int64(500), false, "", now))

		b, err := repo.ApplyDelta(context.Background(), 3, -500, 500, true)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Equal(t, int64(1500), b.AvailableCents)
		assert.Equal(t, int64(500), b.PendingCents)
	})

	t.Run("guard rejects", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE instructor_balances`)).
			WithArgs(int64(-5000), int64(0), int64(3), false).
			WillReturnError(pgx.ErrNoRows)

		b, err := repo.ApplyDelta(context.Background(), 3, -5000, 0, false)
		assert.NoError(t, err)
		assert.Nil(t, b)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_InsertTransaction(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	tx := &domain.Transaction{UserID: 3, Type: domain.TxTypeCredit, AmountCents: 2000, BalanceAfterCents: 2000, ReferenceID: "12345678903"}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO instructor_transactions`)).
		WithArgs(int64(3), "CREDIT", int64(2000), int64(2000), int64(0), "12345678903").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))

	require.NoError(t, repo.InsertTransaction(context.Background(), tx))
	assert.Equal(t, int64(11), tx.ID)
	assert.Equal(t, now, tx.CreatedAt)
}

func TestRepository_SumLedger(t *testing.T) {
	repo, mock := NewMock(t)
	last := int64(1500)
	lastPending := int64(500)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM instructor_transactions WHERE user_id = $1`)).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"available", "pending", "entries", "balance_after", "pending_after"}).
			AddRow(int64(1500), int64(500), int64(2), &last, &lastPending))

	totals, err := repo.SumLedger(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, &domain.LedgerTotals{Available: 1500, Pending: 500, Entries: 2, LastBalanceAfter: &last, LastPendingAfter: &lastPending}, totals)
}

func TestRepository_ListBalanceUsers(t *testing.T) {
	repo, mock := NewMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM instructor_balances`)).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(int64(3)).AddRow(int64(8)))

	ids, err := repo.ListBalanceUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 8}, ids)
}

func TestRepository_SetFrozen(t *testing.T) {
	repo, mock := NewMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE instructor_balances SET frozen = $1`)).
		WithArgs(true, "ledger mismatch", int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.SetFrozen(context.Background(), 3, true, "ledger mismatch"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
