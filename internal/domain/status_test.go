package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionOrder(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPaid, OrderStatusRefunded, true},
		{OrderStatusPaid, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
		{OrderStatusRefunded, OrderStatusPaid, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionOrder(tt.from, tt.to))
		})
	}
}

func TestCanTransitionPayment(t *testing.T) {
	assert.True(t, CanTransitionPayment(PaymentStatusCancelled, PaymentStatusSucceeded))
	assert.True(t, CanTransitionPayment(PaymentStatusAuthorized, PaymentStatusSuperseded))
	assert.False(t, CanTransitionPayment(PaymentStatusFailed, PaymentStatusSucceeded))
	assert.False(t, CanTransitionPayment(PaymentStatusSucceeded, PaymentStatusCancelled))
}

func TestSourcesOf(t *testing.T) {
	assert.Equal(t, []string{PaymentStatusPending, PaymentStatusAuthorized, PaymentStatusCancelled}, PaymentSourcesOf(PaymentStatusSucceeded))
	assert.Equal(t, []string{PaymentStatusPending, PaymentStatusAuthorized}, PaymentSourcesOf(PaymentStatusFailed))
	assert.Equal(t, []string{WithdrawalStatusApproved, WithdrawalStatusProcessing}, WithdrawalSourcesOf(WithdrawalStatusFailed))
	assert.Equal(t, []string{WithdrawalStatusPending}, WithdrawalSourcesOf(WithdrawalStatusRejected))
}

func TestIdempotencyKey(t *testing.T) {
	assert.Equal(t, "evt_1", (&PaymentEvent{EventID: "evt_1", ProviderTxn: "cs_1"}).IdempotencyKey())
	assert.Equal(t, "txn:cs_1:SUCCEEDED", (&PaymentEvent{ProviderTxn: "cs_1", Outcome: OutcomeSucceeded}).IdempotencyKey())
	assert.Equal(t, "batch:b1:i1:FAILED", (&PayoutEvent{BatchID: "b1", ItemID: "i1", Outcome: PayoutOutcomeFailed}).IdempotencyKey())
}
