package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/coursepay/internal/domain"
)

var (
	ErrUnknownProvider   = errors.New("unknown payment provider")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrMalformedEvent    = errors.New("malformed webhook payload")
	ErrRefundUnsupported = errors.New("provider does not support refunds")
	ErrUnavailable       = errors.New("payment provider unavailable")
)

type CheckoutRequest struct {
	OrderNumber   string
	AttemptRef    int64
	AmountCents   int64
	Currency      string
	Description   string
	CustomerEmail string
	ReturnURL     string
	CancelURL     string
}

type CheckoutSession struct {
	ProviderTxn string
	RedirectURL string
	QRCode      string
	Status      string
}

type RefundRequest struct {
	RefundID    int64
	ProviderTxn string
	ProviderRef string
	AmountCents int64
	Currency    string
	Reason      string
}

type RefundResult struct {
	ProviderRef string
	// Completed is set when the provider settled the refund synchronously.
	Completed bool
}

// Gateway is one external payment provider.
type Gateway interface {
	Provider() string
	CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error)
	VerifyAndParse(ctx context.Context, body []byte, headers http.Header) (*domain.PaymentEvent, error)
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)
}

// Capturer is implemented by providers with a separate approve and capture step.
type Capturer interface {
	Capture(ctx context.Context, providerTxn string) (string, error)
}

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Provider()] = g
	}
	return r
}

func (r *Registry) Get(provider string) (Gateway, error) {
	g, ok := r.gateways[strings.ToLower(provider)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return g, nil
}

func (r *Registry) Capturer(provider string) (Capturer, error) {
	g, err := r.Get(provider)
	if err != nil {
		return nil, err
	}
	c, ok := g.(Capturer)
	if !ok {
		return nil, fmt.Errorf("%s: capture not supported", provider)
	}
	return c, nil
}

var zeroDecimal = map[string]bool{"VND": true, "JPY": true, "KRW": true, "CLP": true}

// Exponent is the number of minor-unit digits of currency.
func Exponent(currency string) int32 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// FormatAmount renders minor units as a provider decimal string, e.g. 1999 USD -> "19.99".
func FormatAmount(cents int64, currency string) string {
	exp := Exponent(currency)
	return decimal.New(cents, -exp).StringFixed(exp)
}

// ParseAmount is the inverse of FormatAmount. Sub-minor-unit precision is an error.
func ParseAmount(value, currency string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", ErrMalformedEvent, value)
	}
	scaled := d.Shift(Exponent(currency))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %q", ErrMalformedEvent, value)
	}
	return scaled.IntPart(), nil
}

// StatusError wraps a non-2xx provider response.
func StatusError(provider string, status int, body []byte) error {
	const max = 256
	if len(body) > max {
		body = body[:max]
	}
	return fmt.Errorf("%w: %s responded %d: %s", ErrUnavailable, provider, status, body)
}
