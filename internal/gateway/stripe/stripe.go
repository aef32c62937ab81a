package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/pkg/clients"
	"github.com/GlebRadaev/coursepay/pkg/signature"
)

const signatureHeader = "Stripe-Signature"

type Gateway struct {
	baseURL       string
	secretKey     string
	webhookSecret []byte
	tolerance     time.Duration
	client        clients.HTTPClientI
	now           func() time.Time
}

func New(cfg config.StripeConfig, tolerance time.Duration, client clients.HTTPClientI) *Gateway {
	return &Gateway{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:     cfg.SecretKey,
		webhookSecret: []byte(cfg.WebhookSecret),
		tolerance:     tolerance,
		client:        client,
		now:           time.Now,
	}
}

func (g *Gateway) Provider() string {
	return domain.ProviderStripe
}

func (g *Gateway) headers(idempotencyKey string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+g.secretKey)
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	return h
}

type session struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (g *Gateway) CreateCheckout(ctx context.Context, req *gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.OrderNumber)
	form.Set("success_url", req.ReturnURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("metadata[order_number]", req.OrderNumber)
	form.Set("metadata[attempt_ref]", strconv.FormatInt(req.AttemptRef, 10))
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}

	key := fmt.Sprintf("checkout-%s-%d", req.OrderNumber, req.AttemptRef)
	status, body, _, err := g.client.Post(ctx, g.baseURL+"/v1/checkout/sessions", g.headers(key), []byte(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	if status/100 != 2 {
		return nil, gateway.StatusError(g.Provider(), status, body)
	}
	var s session
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", gateway.ErrUnavailable, err)
	}
	return &gateway.CheckoutSession{ProviderTxn: s.ID, RedirectURL: s.URL, Status: domain.PaymentStatusPending}, nil
}

type event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	PaymentIntent     string            `json:"payment_intent"`
	Metadata          map[string]string `json:"metadata"`
}

type refundObject struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

func (g *Gateway) VerifyAndParse(_ context.Context, body []byte, headers http.Header) (*domain.PaymentEvent, error) {
	if err := g.verify(body, headers.Get(signatureHeader)); err != nil {
		return nil, err
	}

	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
	}
	out := &domain.PaymentEvent{
		Provider:   g.Provider(),
		EventID:    ev.ID,
		EventType:  ev.Type,
		OccurredAt: time.Unix(ev.Created, 0).UTC(),
		Raw:        body,
	}

	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var obj checkoutObject
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
		}
		out.ProviderTxn = obj.ID
		out.ProviderRef = obj.PaymentIntent
		out.OrderNumber = obj.ClientReferenceID
		if out.OrderNumber == "" {
			out.OrderNumber = obj.Metadata["order_number"]
		}
		out.AmountCents = obj.AmountTotal
		out.Currency = strings.ToUpper(obj.Currency)
		out.Outcome = checkoutOutcome(ev.Type)
	case "refund.created", "refund.updated":
		var obj refundObject
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
		}
		out.ProviderTxn = obj.PaymentIntent
		out.ProviderRef = obj.ID
		out.AmountCents = obj.Amount
		out.Currency = strings.ToUpper(obj.Currency)
		if id, err := strconv.ParseInt(obj.Metadata["refund_id"], 10, 64); err == nil {
			out.RefundID = id
		}
		switch obj.Status {
		case "succeeded":
			out.Outcome = domain.OutcomeRefundSucceeded
		case "failed", "canceled":
			out.Outcome = domain.OutcomeRefundFailed
		default:
			out.Outcome = domain.OutcomeIgnored
		}
	default:
		out.Outcome = domain.OutcomeIgnored
	}
	return out, nil
}

func checkoutOutcome(eventType string) string {
	switch eventType {
	case "checkout.session.async_payment_failed":
		return domain.OutcomeFailed
	case "checkout.session.expired":
		return domain.OutcomeExpired
	default:
		return domain.OutcomeSucceeded
	}
}

// verify checks "t=<unix>,v1=<hex>[,v1=<hex>]" against hmac(secret, t + "." + body).
func (g *Gateway) verify(body []byte, header string) error {
	if len(g.webhookSecret) == 0 {
		return fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, signature.ErrNoSecret)
	}
	if header == "" {
		return fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, signature.ErrMissing)
	}
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || len(sigs) == 0 {
		return fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, signature.ErrMissing)
	}
	if err := signature.CheckSkew(unix, g.now(), g.tolerance); err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, err)
	}
	expected := signature.Sign(g.webhookSecret, []byte(ts), []byte("."), body)
	for _, sig := range sigs {
		if signature.Equal(expected, sig) {
			return nil
		}
	}
	zap.L().Warn("stripe signature mismatch")
	return fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, signature.ErrMismatch)
}

func (g *Gateway) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", req.ProviderRef)
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("metadata[refund_id]", strconv.FormatInt(req.RefundID, 10))
	if req.Reason != "" {
		form.Set("metadata[reason]", req.Reason)
	}

	status, body, _, err := g.client.Post(ctx, g.baseURL+"/v1/refunds", g.headers(fmt.Sprintf("refund-%d", req.RefundID)), []byte(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	if status/100 != 2 {
		return nil, gateway.StatusError(g.Provider(), status, body)
	}
	var obj refundObject
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: decode refund: %v", gateway.ErrUnavailable, err)
	}
	return &gateway.RefundResult{ProviderRef: obj.ID, Completed: obj.Status == "succeeded"}, nil
}
