package paymentservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/internal/pg"
	"github.com/GlebRadaev/coursepay/pkg/lock"
)

//go:generate mockgen -source=paymentservice.go -destination=mock_paymentservice.go -package=paymentservice

type Repo interface {
	NextAttemptRef(ctx context.Context) (int64, error)
	Insert(ctx context.Context, p *domain.Payment) (bool, error)
	GetByProviderTxn(ctx context.Context, provider, txn string) (*domain.Payment, error)
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	GetOpenAttempt(ctx context.Context, orderID int64, provider string) (*domain.Payment, error)
	GetSucceededByOrder(ctx context.Context, orderID int64) (*domain.Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error)
	UpdateStatus(ctx context.Context, id int64, from []string, to, providerRef string, confirmedAt *time.Time, raw []byte) (bool, error)
	ExpireStale(ctx context.Context, before time.Time) (int64, error)
	InsertRefund(ctx context.Context, rf *domain.Refund) error
	GetRefund(ctx context.Context, id int64) (*domain.Refund, error)
	GetRefundByProviderRef(ctx context.Context, providerRef string) (*domain.Refund, error)
	SetRefundProviderRef(ctx context.Context, id int64, providerRef string) error
	UpdateRefundStatus(ctx context.Context, id int64, from, to string, at time.Time) (bool, error)
	RefundedAmounts(ctx context.Context, paymentID int64) (int64, int64, error)
}

type Orders interface {
	GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	LockByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	LockByID(ctx context.Context, id int64) (*domain.Order, error)
	CancelByID(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkPaid(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkRefunded(ctx context.Context, id int64, at time.Time) (bool, error)
}

type Vouchers interface {
	EnsureAvailable(ctx context.Context, voucherID int64) error
	RecordUsage(ctx context.Context, order *domain.Order) error
}

type Ledger interface {
	ProcessOrderEarnings(ctx context.Context, order *domain.Order) error
	ClawbackRefund(ctx context.Context, order *domain.Order, refundID, refundedCents, totalCents int64) error
}

type EventRepo interface {
	Record(ctx context.Context, ev *domain.WebhookEvent) (bool, error)
	SetResult(ctx context.Context, id int64, result string) error
}

type Outbox interface {
	Enqueue(ctx context.Context, topic, key string, payload any) error
}

type Gateways interface {
	Get(provider string) (gateway.Gateway, error)
	Capturer(provider string) (gateway.Capturer, error)
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (lock.ReleaseFunc, error)
}

type URLs struct {
	Return string
	Cancel string
}

type Service struct {
	repo      Repo
	orders    Orders
	vouchers  Vouchers
	ledger    Ledger
	events    EventRepo
	outbox    Outbox
	gateways  Gateways
	locker    Locker
	txManager pg.TXManager
	urls      URLs
	now       func() time.Time
}

func New(repo Repo, orders Orders, vouchers Vouchers, ledger Ledger, events EventRepo, outbox Outbox,
	gateways Gateways, locker Locker, txManager pg.TXManager, urls URLs) *Service {
	return &Service{
		repo:      repo,
		orders:    orders,
		vouchers:  vouchers,
		ledger:    ledger,
		events:    events,
		outbox:    outbox,
		gateways:  gateways,
		locker:    locker,
		txManager: txManager,
		urls:      urls,
		now:       time.Now,
	}
}

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderNotPending      = errors.New("order is not awaiting payment")
	ErrOrderNotPaid         = errors.New("order has no settled payment")
	ErrCheckoutInProgress   = errors.New("a checkout for this order is already being created")
	ErrProviderUnavailable  = errors.New("payment provider unavailable")
	ErrInvalidRefundAmount  = errors.New("refund amount must be positive")
	ErrRefundExceedsPayment = errors.New("refund exceeds the refundable amount")
	ErrRefundNotFound       = errors.New("refund not found")
	ErrPaymentNotFound      = errors.New("payment not found")
)

const (
	checkoutLockTTL = 30 * time.Second

	reasonDuplicatePayment = "duplicate payment"
	reasonVoucherExhausted = "voucher exhausted"
)

type Checkout struct {
	OrderNumber       string `json:"orderNumber"`
	Provider          string `json:"provider"`
	ProviderSessionID string `json:"providerSessionId,omitempty"`
	RedirectURL       string `json:"redirectUrl,omitempty"`
	QRCode            string `json:"qrCode,omitempty"`
	Status            string `json:"status"`
}

// CreateCheckout opens (or reuses) a payment attempt for a PENDING order. The provider is
// called with no transaction open.
func (s *Service) CreateCheckout(ctx context.Context, userID int64, orderNumber, provider, email string) (*Checkout, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}
	provider = gw.Provider()

	release, err := s.locker.Acquire(ctx, "checkout:"+orderNumber+":"+provider, checkoutLockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrCheckoutInProgress
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("failed to release checkout lock", zap.String("order_number", orderNumber), zap.Error(err))
		}
	}()

	order, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusPending {
		return nil, ErrOrderNotPending
	}
	if order.VoucherID != nil {
		if err := s.vouchers.EnsureAvailable(ctx, *order.VoucherID); err != nil {
			return nil, err
		}
	}
	if order.TotalCents == 0 {
		return s.settleFree(ctx, order, provider)
	}

	open, err := s.repo.GetOpenAttempt(ctx, order.ID, provider)
	if err != nil {
		return nil, err
	}
	if open != nil && open.CheckoutURL != "" && open.AmountCents == order.TotalCents {
		return &Checkout{OrderNumber: orderNumber, Provider: provider, ProviderSessionID: open.ProviderTxn, RedirectURL: open.CheckoutURL, Status: open.Status}, nil
	}

	attemptRef, err := s.repo.NextAttemptRef(ctx)
	if err != nil {
		return nil, err
	}
	session, err := gw.CreateCheckout(ctx, &gateway.CheckoutRequest{
		OrderNumber:   order.OrderNumber,
		AttemptRef:    attemptRef,
		AmountCents:   order.TotalCents,
		Currency:      order.Currency,
		Description:   "Order " + order.OrderNumber,
		CustomerEmail: email,
		ReturnURL:     s.urls.Return,
		CancelURL:     s.urls.Cancel,
	})
	if err != nil {
		zap.L().Error("checkout creation failed", zap.String("provider", provider), zap.String("order_number", orderNumber), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	payment := &domain.Payment{
		OrderID:     order.ID,
		Provider:    provider,
		ProviderTxn: session.ProviderTxn,
		AttemptRef:  attemptRef,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Status:      domain.PaymentStatusPending,
		CheckoutURL: session.RedirectURL,
	}
	inserted, err := s.repo.Insert(ctx, payment)
	if err != nil {
		return nil, err
	}
	if !inserted {
		zap.L().Info("payment attempt already recorded by webhook", zap.String("provider_txn", session.ProviderTxn))
	}
	zap.L().Info("checkout created", zap.String("order_number", orderNumber), zap.String("provider", provider), zap.Int64("attempt_ref", attemptRef))
	return &Checkout{
		OrderNumber:       orderNumber,
		Provider:          provider,
		ProviderSessionID: session.ProviderTxn,
		RedirectURL:       session.RedirectURL,
		QRCode:            session.QRCode,
		Status:            domain.PaymentStatusPending,
	}, nil
}

// settleFree settles a fully discounted order without a provider round trip.
func (s *Service) settleFree(ctx context.Context, order *domain.Order, provider string) (*Checkout, error) {
	var result string
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		locked, err := s.orders.LockByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.Status != domain.OrderStatusPending {
			return ErrOrderNotPending
		}
		result, err = s.settle(ctx, locked, nil, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result != domain.ResultApplied {
		return &Checkout{OrderNumber: order.OrderNumber, Provider: provider, Status: domain.OrderStatusCancelled}, nil
	}
	return &Checkout{OrderNumber: order.OrderNumber, Provider: provider, Status: domain.OrderStatusPaid}, nil
}

// ExpireStaleAttempts cancels PENDING attempts older than ttl.
func (s *Service) ExpireStaleAttempts(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := s.repo.ExpireStale(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		zap.L().Info("expired stale payment attempts", zap.Int64("count", n))
	}
	return n, nil
}

func (s *Service) ListPayments(ctx context.Context, userID int64, orderNumber string) ([]domain.Payment, error) {
	order, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return s.repo.ListByOrder(ctx, order.ID)
}
