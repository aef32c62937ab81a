package domain

const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRefunded  = "REFUNDED"
)

const (
	PaymentStatusPending    = "PENDING"
	PaymentStatusAuthorized = "AUTHORIZED"
	PaymentStatusSucceeded  = "SUCCEEDED"
	PaymentStatusFailed     = "FAILED"
	PaymentStatusCancelled  = "CANCELLED"
	// PaymentStatusSuperseded marks money collected for an order that was already settled.
	PaymentStatusSuperseded = "SUPERSEDED"
)

const (
	RefundStatusPending   = "PENDING"
	RefundStatusCompleted = "COMPLETED"
	RefundStatusFailed    = "FAILED"
)

const (
	WithdrawalStatusPending    = "PENDING"
	WithdrawalStatusApproved   = "APPROVED"
	WithdrawalStatusProcessing = "PROCESSING"
	WithdrawalStatusCompleted  = "COMPLETED"
	WithdrawalStatusRejected   = "REJECTED"
	WithdrawalStatusFailed     = "FAILED"
	WithdrawalStatusCancelled  = "CANCELLED"
)

const (
	VoucherStatusActive   = "ACTIVE"
	VoucherStatusInactive = "INACTIVE"

	VoucherScopeAllCourses      = "ALL_INSTRUCTOR_COURSES"
	VoucherScopeSpecificCourses = "SPECIFIC_COURSES"

	DiscountTypePercent = "PERCENT"
	DiscountTypeFixed   = "FIXED"
)

const (
	TxTypeCredit              = "CREDIT"
	TxTypeDebit               = "DEBIT"
	TxTypeRefund              = "REFUND"
	TxTypeWithdrawalHold      = "WITHDRAWAL_HOLD"
	TxTypeWithdrawalCompleted = "WITHDRAWAL_COMPLETED"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

const EntityTypeCourse = "COURSE"

var orderTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusRefunded},
}

var paymentTransitions = map[string][]string{
	PaymentStatusPending:    {PaymentStatusAuthorized, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusSuperseded},
	PaymentStatusAuthorized: {PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusSuperseded},
	// an attempt we expired locally can still be charged by the provider
	PaymentStatusCancelled: {PaymentStatusSucceeded, PaymentStatusSuperseded},
}

var withdrawalTransitions = map[string][]string{
	WithdrawalStatusPending:    {WithdrawalStatusApproved, WithdrawalStatusRejected, WithdrawalStatusCancelled},
	WithdrawalStatusApproved:   {WithdrawalStatusProcessing, WithdrawalStatusFailed},
	WithdrawalStatusProcessing: {WithdrawalStatusCompleted, WithdrawalStatusFailed},
}

func canTransition(edges map[string][]string, from, to string) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

func CanTransitionOrder(from, to string) bool {
	return canTransition(orderTransitions, from, to)
}

func CanTransitionPayment(from, to string) bool {
	return canTransition(paymentTransitions, from, to)
}

func CanTransitionWithdrawal(from, to string) bool {
	return canTransition(withdrawalTransitions, from, to)
}

// WithdrawalSourcesOf lists the withdrawal states that may move into to.
func WithdrawalSourcesOf(to string) []string {
	var from []string
	for _, s := range []string{WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusProcessing} {
		if canTransition(withdrawalTransitions, s, to) {
			from = append(from, s)
		}
	}
	return from
}

// PaymentSourcesOf lists the payment states that may move into to.
func PaymentSourcesOf(to string) []string {
	var from []string
	for _, s := range []string{PaymentStatusPending, PaymentStatusAuthorized, PaymentStatusCancelled} {
		if canTransition(paymentTransitions, s, to) {
			from = append(from, s)
		}
	}
	return from
}
