package payout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway/paypal"
	"github.com/GlebRadaev/coursepay/pkg/clients"
)

const (
	ProviderBank   = "bank"
	ProviderPayPal = "paypal"
)

var (
	ErrInvalidSignature = errors.New("invalid payout webhook signature")
	ErrMalformedEvent   = errors.New("malformed payout webhook payload")
	ErrUnavailable      = errors.New("payout provider unavailable")
	ErrMissingRecipient = errors.New("withdrawal has no usable payout recipient")
)

var batchNamespace = uuid.MustParse("6f1c3a52-2b7e-4c1d-9a35-0d4e8b9f7a10")

// BatchID is the sender batch id for a withdrawal. It is stable across retries, so the
// provider deduplicates a repeated Send.
func BatchID(withdrawalID int64) string {
	return uuid.NewSHA1(batchNamespace, []byte("withdrawal:"+strconv.FormatInt(withdrawalID, 10))).String()
}

type Request struct {
	BatchID      string
	WithdrawalID int64
	UserID       int64
	AmountCents  int64
	Currency     string
	Bank         domain.BankInfo
	Note         string
}

type Result struct {
	BatchID string
	ItemID  string
	Status  string
}

type Provider interface {
	Name() string
	Send(ctx context.Context, req *Request) (*Result, error)
	VerifyAndParse(ctx context.Context, body []byte, headers http.Header) (*domain.PayoutEvent, error)
}

// New picks the payout rail configured by PAYOUT_PROVIDER.
func New(cfg *config.Config, client clients.HTTPClientI) (Provider, error) {
	tolerance := cfg.Checkout.WebhookTolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	switch cfg.Payout.Provider {
	case ProviderBank, "":
		if cfg.Payout.WebhookSecret == "" {
			return nil, errors.New("PAYOUT_WEBHOOK_SECRET is required for bank payouts")
		}
		return NewBank(cfg.Payout, tolerance, client), nil
	case ProviderPayPal:
		if cfg.PayPal.WebhookID == "" {
			return nil, errors.New("PAYPAL_WEBHOOK_ID is required for paypal payouts")
		}
		return NewPayPal(paypal.NewAPI(cfg.PayPal, tolerance, client)), nil
	default:
		return nil, fmt.Errorf("unsupported payout provider: %s", cfg.Payout.Provider)
	}
}
