package domain

import (
	"fmt"
	"time"
)

const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
	ProviderPayOS  = "payos"
)

const (
	OutcomeSucceeded       = "SUCCEEDED"
	OutcomeFailed          = "FAILED"
	OutcomeExpired         = "EXPIRED"
	OutcomeApproved        = "APPROVED"
	OutcomeRefundSucceeded = "REFUND_SUCCEEDED"
	OutcomeRefundFailed    = "REFUND_FAILED"
	// OutcomeIgnored is a verified event that carries nothing to reconcile.
	OutcomeIgnored = "IGNORED"
)

// PaymentEvent is the provider-neutral form of a payment webhook.
type PaymentEvent struct {
	Provider    string
	EventID     string
	EventType   string
	ProviderTxn string
	// ProviderRef is the provider's capture/charge handle used for refunds.
	ProviderRef string
	OrderNumber string
	AmountCents int64
	Currency    string
	Outcome     string
	RefundID    int64
	OccurredAt  time.Time
	Raw         []byte
}

// IdempotencyKey falls back to the transaction and outcome when the provider sends no event id.
func (e *PaymentEvent) IdempotencyKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return fmt.Sprintf("txn:%s:%s", e.ProviderTxn, e.Outcome)
}

const (
	PayoutOutcomeSucceeded = "SUCCEEDED"
	PayoutOutcomeFailed    = "FAILED"
	PayoutOutcomePending   = "PENDING"
)

type PayoutEvent struct {
	Provider string
	EventID  string
	BatchID  string
	ItemID   string
	Outcome  string
	Reason   string
	Raw      []byte
}

func (e *PayoutEvent) IdempotencyKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return fmt.Sprintf("batch:%s:%s:%s", e.BatchID, e.ItemID, e.Outcome)
}

// Results of applying a provider notification.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultIgnored   = "ignored"
)

// Outbox topics.
const (
	TopicOrderPaid         = "order.paid"
	TopicRefundRequested   = "refund.requested"
	TopicPaymentCapture    = "payment.capture"
	TopicWithdrawalUpdated = "withdrawal.updated"
)

type OrderPaidMessage struct {
	OrderID     int64   `json:"orderId"`
	OrderNumber string  `json:"orderNumber"`
	UserID      int64   `json:"userId"`
	CourseIDs   []int64 `json:"courseIds"`
	TotalCents  int64   `json:"totalCents"`
	Currency    string  `json:"currency"`
}

type RefundRequestedMessage struct {
	RefundID int64 `json:"refundId"`
}

type PaymentCaptureMessage struct {
	PaymentID   int64  `json:"paymentId"`
	Provider    string `json:"provider"`
	ProviderTxn string `json:"providerTxn"`
}

type WithdrawalUpdatedMessage struct {
	WithdrawalID int64      `json:"withdrawalId"`
	UserID       int64      `json:"userId"`
	Status       string     `json:"status"`
	AmountCents  int64      `json:"amountCents"`
	Currency     string     `json:"currency"`
	PayoutItemID string     `json:"payoutItemId,omitempty"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
}
