package paymentrepo

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

var paymentCols = []string{"id", "order_id", "provider", "provider_txn", "provider_ref", "attempt_ref", "amount_cents",
	"currency", "status", "checkout_url", "created_at", "confirmed_at"}

func NewMock(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)
	return New(mockDB), mockDB
}

func TestRepository_Insert(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	tests := []struct {
		name      string
		mockSetup func()
		want      bool
		expectErr bool
	}{
		{
			name: "inserted",
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (provider, provider_txn) DO NOTHING")).
					WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(4), now))
			},
			want: true,
		},
		{
			name: "webhook got there first",
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (provider, provider_txn) DO NOTHING")).
					WillReturnError(pgx.ErrNoRows)
			},
			want: false,
		},
		{
			name: "database error",
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO payments")).
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			p := &domain.Payment{OrderID: 1, Provider: "stripe", ProviderTxn: "cs_1", AmountCents: 100, Currency: "USD", Status: "PENDING"}
			got, err := repo.Insert(context.Background(), p)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.want {
				assert.Equal(t, int64(4), p.ID)
			}
		})
	}
}

func TestRepository_GetByProviderTxn(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE provider = $1 AND provider_txn = $2 FOR UPDATE")).
		WithArgs("paypal", "5O190127TN364715T").
		WillReturnRows(pgxmock.NewRows(paymentCols).
			AddRow(int64(1), int64(2), "paypal", "5O190127TN364715T", "", int64(100001), int64(1999), "USD", "PENDING", "https://paypal/approve", now, nil))

	p, err := repo.GetByProviderTxn(context.Background(), "paypal", "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, int64(100001), p.AttemptRef)
	assert.Nil(t, p.ConfirmedAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE provider = $1")).
		WithArgs("paypal", "missing").
		WillReturnError(pgx.ErrNoRows)
	p, err = repo.GetByProviderTxn(context.Background(), "paypal", "missing")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()
	from := []string{"PENDING", "AUTHORIZED"}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET status = $1")).
		WithArgs("SUCCEEDED", "pi_1", &now, nil, int64(7), from).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.UpdateStatus(context.Background(), 7, from, "SUCCEEDED", "pi_1", &now, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RefundedAmounts(t *testing.T) {
	repo, mock := NewMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM refunds WHERE payment_id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"active", "completed"}).AddRow(int64(700), int64(500)))

	active, completed, err := repo.RefundedAmounts(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(700), active)
	assert.Equal(t, int64(500), completed)
}

func TestRepository_ExpireStale(t *testing.T) {
	repo, mock := NewMock(t)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET status = $1 WHERE status = $2 AND created_at < $3")).
		WithArgs("CANCELLED", "PENDING", cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.ExpireStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRepository_NextAttemptRef(t *testing.T) {
	repo, mock := NewMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('payment_attempt_seq')")).
		WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(100042)))

	ref, err := repo.NextAttemptRef(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100042), ref)
}
