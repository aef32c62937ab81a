package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/service/orderservice"
	"github.com/GlebRadaev/coursepay/internal/service/paymentservice"
	"github.com/GlebRadaev/coursepay/internal/service/voucherservice"
	"github.com/GlebRadaev/coursepay/internal/service/walletservice"
	"github.com/GlebRadaev/coursepay/internal/service/withdrawalservice"
)

var (
	_ orderservice.Repo           = (*OrderRepo)(nil)
	_ paymentservice.Orders       = (*OrderRepo)(nil)
	_ voucherservice.Repo         = (*VoucherRepo)(nil)
	_ paymentservice.Repo         = (*PaymentRepo)(nil)
	_ walletservice.Repo          = (*BalanceRepo)(nil)
	_ withdrawalservice.Repo      = (*WithdrawalRepo)(nil)
	_ paymentservice.EventRepo    = (*EventRepo)(nil)
	_ paymentservice.Outbox       = (*OutboxRepo)(nil)
	_ withdrawalservice.Outbox    = (*OutboxRepo)(nil)
	_ withdrawalservice.EventRepo = (*EventRepo)(nil)
)

func TestStore_BeginRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Begin(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Balances().EnsureBalance(ctx, 7))
		_, err := s.Balances().ApplyDelta(ctx, 7, 100, 0, false)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	b, err := s.Balances().GetBalance(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestStore_NestedBeginJoins(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Begin(ctx, func(ctx context.Context) error {
		return s.Begin(ctx, func(ctx context.Context) error {
			return s.Balances().EnsureBalance(ctx, 3)
		})
	})
	require.NoError(t, err)

	b, err := s.Balances().GetBalance(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, int64(3), b.UserID)
}

func TestStore_GuardedUpdates(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Balances().EnsureBalance(ctx, 1))

	b, err := s.Balances().ApplyDelta(ctx, 1, -1, 0, false)
	require.NoError(t, err)
	assert.Nil(t, b, "available may not go negative")

	limit := 1
	v, err := s.Vouchers().Create(ctx, &domain.Voucher{Code: "ONCE", UsageLimit: &limit, Status: domain.VoucherStatusActive})
	require.NoError(t, err)
	ok, err := s.Vouchers().IncrementUsage(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Vouchers().IncrementUsage(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	dup, err := s.Vouchers().Create(ctx, &domain.Voucher{Code: "ONCE"})
	require.NoError(t, err)
	assert.Nil(t, dup)
}
