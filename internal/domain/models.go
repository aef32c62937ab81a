package domain

import "time"

type Order struct {
	ID            int64      `db:"id"`
	OrderNumber   string     `db:"order_number"`
	UserID        int64      `db:"user_id"`
	Status        string     `db:"status"`
	Currency      string     `db:"currency"`
	SubtotalCents int64      `db:"subtotal_cents"`
	DiscountCents int64      `db:"discount_cents"`
	TotalCents    int64      `db:"total_cents"`
	VoucherID     *int64     `db:"voucher_id"`
	VoucherCode   string     `db:"voucher_code"`
	CreatedAt     time.Time  `db:"created_at"`
	PaidAt        *time.Time `db:"paid_at"`
	CancelAt      *time.Time `db:"cancel_at"`
	RefundedAt    *time.Time `db:"refunded_at"`

	Items []OrderItem `db:"-"`
}

type OrderItem struct {
	ID             int64  `db:"id"`
	OrderID        int64  `db:"order_id"`
	EntityType     string `db:"entity_type"`
	EntityID       int64  `db:"entity_id"`
	InstructorID   int64  `db:"instructor_id"`
	Title          string `db:"title"`
	UnitPriceCents int64  `db:"unit_price_cents"`
	Quantity       int    `db:"quantity"`
	DiscountCents  int64  `db:"discount_cents"`
}

// GrossCents is the pre-discount line amount.
func (i OrderItem) GrossCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

// NetCents is what the buyer pays for the line.
func (i OrderItem) NetCents() int64 {
	return i.GrossCents() - i.DiscountCents
}

type Payment struct {
	ID          int64      `db:"id"`
	OrderID     int64      `db:"order_id"`
	Provider    string     `db:"provider"`
	ProviderTxn string     `db:"provider_txn"`
	ProviderRef string     `db:"provider_ref"`
	AttemptRef  int64      `db:"attempt_ref"`
	AmountCents int64      `db:"amount_cents"`
	Currency    string     `db:"currency"`
	Status      string     `db:"status"`
	CheckoutURL string     `db:"checkout_url"`
	RawPayload  []byte     `db:"raw_payload"`
	CreatedAt   time.Time  `db:"created_at"`
	ConfirmedAt *time.Time `db:"confirmed_at"`
}

type Refund struct {
	ID          int64      `db:"id"`
	PaymentID   int64      `db:"payment_id"`
	OrderID     int64      `db:"order_id"`
	AmountCents int64      `db:"amount_cents"`
	Status      string     `db:"status"`
	Reason      string     `db:"reason"`
	ProviderRef string     `db:"provider_ref"`
	CreatedAt   time.Time  `db:"created_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

type Voucher struct {
	ID                  int64     `db:"id"`
	InstructorID        int64     `db:"instructor_id"`
	Code                string    `db:"code"`
	Scope               string    `db:"scope"`
	DiscountType        string    `db:"discount_type"`
	DiscountValue       int64     `db:"discount_value"`
	MaxDiscountCents    *int64    `db:"max_discount_cents"`
	MinOrderCents       *int64    `db:"min_order_cents"`
	UsageLimit          *int      `db:"usage_limit"`
	UsagePerUser        *int      `db:"usage_per_user"`
	UsedCount           int       `db:"used_count"`
	StartDate           time.Time `db:"start_date"`
	EndDate             time.Time `db:"end_date"`
	Status              string    `db:"status"`
	ApplicableCourseIDs []int64   `db:"applicable_course_ids"`
	CreatedAt           time.Time `db:"created_at"`
}

type VoucherUsage struct {
	ID            int64     `db:"id"`
	VoucherID     int64     `db:"voucher_id"`
	UserID        int64     `db:"user_id"`
	OrderID       int64     `db:"order_id"`
	CourseID      int64     `db:"course_id"`
	OriginalCents int64     `db:"original_cents"`
	DiscountCents int64     `db:"discount_cents"`
	CreatedAt     time.Time `db:"created_at"`
}

type Balance struct {
	UserID         int64     `db:"user_id"`
	AvailableCents int64     `db:"available_cents"`
	PendingCents   int64     `db:"pending_cents"`
	Frozen         bool      `db:"frozen"`
	FrozenReason   string    `db:"frozen_reason"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type Transaction struct {
	ID                int64     `db:"id"`
	UserID            int64     `db:"user_id"`
	Type              string    `db:"type"`
	AmountCents       int64     `db:"amount_cents"`
	BalanceAfterCents int64     `db:"balance_after_cents"`
	PendingAfterCents int64     `db:"pending_after_cents"`
	ReferenceID       string    `db:"reference_id"`
	CreatedAt         time.Time `db:"created_at"`
}

// LedgerTotals is the balance position recomputed from the transaction log.
type LedgerTotals struct {
	Available        int64
	Pending          int64
	Entries          int64
	LastBalanceAfter *int64
	LastPendingAfter *int64
}

type BankInfo struct {
	BankName      string `json:"bankName,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	AccountName   string `json:"accountName,omitempty"`
	Email         string `json:"email,omitempty"`
}

type Withdrawal struct {
	ID             int64      `db:"id"`
	UserID         int64      `db:"user_id"`
	AmountCents    int64      `db:"amount_cents"`
	Currency       string     `db:"currency"`
	Status         string     `db:"status"`
	BankInfo       BankInfo   `db:"bank_info"`
	PayoutProvider string     `db:"payout_provider"`
	PayoutBatchID  string     `db:"payout_batch_id"`
	PayoutItemID   string     `db:"payout_item_id"`
	Note           string     `db:"note"`
	CreatedAt      time.Time  `db:"created_at"`
	ProcessedAt    *time.Time `db:"processed_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}

// WebhookEvent is the idempotency record of an ingested provider notification.
type WebhookEvent struct {
	ID             int64     `db:"id"`
	Provider       string    `db:"provider"`
	IdempotencyKey string    `db:"idempotency_key"`
	EventType      string    `db:"event_type"`
	Payload        []byte    `db:"payload"`
	Result         string    `db:"result"`
	ReceivedAt     time.Time `db:"received_at"`
}

type OutboxMessage struct {
	ID         int64     `db:"id"`
	MessageKey string    `db:"message_key"`
	Topic      string    `db:"topic"`
	Payload    []byte    `db:"payload"`
	Status     string    `db:"status"`
	RetryCount int       `db:"retry_count"`
	LastError  string    `db:"last_error"`
	CreatedAt  time.Time `db:"created_at"`
}

// CourseQuote is the live catalog view of a course at pricing time.
type CourseQuote struct {
	CourseID     int64
	InstructorID int64
	Title        string
	PriceCents   int64
	Currency     string
	Published    bool
}
