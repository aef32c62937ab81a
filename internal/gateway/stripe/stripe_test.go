package stripe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/pkg/clients"
	"github.com/GlebRadaev/coursepay/pkg/signature"
)

var fixedNow = time.Unix(1710000000, 0)

func newGateway(baseURL string) *Gateway {
	g := New(config.StripeConfig{BaseURL: baseURL, SecretKey: "sk_test", WebhookSecret: "whsec"}, 5*time.Minute, clients.NewHTTPClient())
	g.now = func() time.Time { return fixedNow }
	return g
}

func signed(body string, ts int64) http.Header {
	t := strconv.FormatInt(ts, 10)
	h := http.Header{}
	h.Set(signatureHeader, "t="+t+",v1="+signature.Sign([]byte("whsec"), []byte(t), []byte("."), []byte(body)))
	return h
}

func TestGateway_CreateCheckout(t *testing.T) {
	var form url.Values
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(raw))
		headers = r.Header
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://checkout.stripe.com/c/cs_test_1","status":"open"}`))
	}))
	defer srv.Close()

	g := newGateway(srv.URL)
	s, err := g.CreateCheckout(context.Background(), &gateway.CheckoutRequest{
		OrderNumber: "12345678903", AttemptRef: 4, AmountCents: 1999, Currency: "USD", Description: "Go course",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ProviderTxn)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_test_1", s.RedirectURL)
	assert.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "1999", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "12345678903", form.Get("client_reference_id"))
	assert.Equal(t, "Bearer sk_test", headers.Get("Authorization"))
	assert.Equal(t, "checkout-12345678903-4", headers.Get("Idempotency-Key"))
}

func TestGateway_CreateCheckoutProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newGateway(srv.URL).CreateCheckout(context.Background(), &gateway.CheckoutRequest{OrderNumber: "1", Currency: "USD"})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestGateway_VerifyAndParse(t *testing.T) {
	g := newGateway("http://unused")
	completed := `{"id":"evt_1","type":"checkout.session.completed","created":1710000000,"data":{"object":{"id":"cs_test_1","client_reference_id":"12345678903","amount_total":1999,"currency":"usd","payment_intent":"pi_1"}}}`
	refund := `{"id":"evt_2","type":"refund.updated","created":1710000000,"data":{"object":{"id":"re_1","status":"succeeded","amount":500,"currency":"usd","payment_intent":"pi_1","metadata":{"refund_id":"9"}}}}`

	tests := []struct {
		name      string
		body      string
		headers   http.Header
		expectErr error
		check     func(t *testing.T, ev *domain.PaymentEvent)
	}{
		{
			name:    "completed session",
			body:    completed,
			headers: signed(completed, fixedNow.Unix()),
			check: func(t *testing.T, ev *domain.PaymentEvent) {
				assert.Equal(t, domain.OutcomeSucceeded, ev.Outcome)
				assert.Equal(t, "cs_test_1", ev.ProviderTxn)
				assert.Equal(t, "pi_1", ev.ProviderRef)
				assert.Equal(t, "12345678903", ev.OrderNumber)
				assert.Equal(t, int64(1999), ev.AmountCents)
				assert.Equal(t, "USD", ev.Currency)
				assert.Equal(t, "evt_1", ev.IdempotencyKey())
			},
		},
		{
			name:    "refund succeeded",
			body:    refund,
			headers: signed(refund, fixedNow.Unix()),
			check: func(t *testing.T, ev *domain.PaymentEvent) {
				assert.Equal(t, domain.OutcomeRefundSucceeded, ev.Outcome)
				assert.Equal(t, int64(9), ev.RefundID)
				assert.Equal(t, "re_1", ev.ProviderRef)
			},
		},
		{
			name:      "tampered body",
			body:      completed,
			headers:   signed(`{"id":"evt_1"}`, fixedNow.Unix()),
			expectErr: gateway.ErrInvalidSignature,
		},
		{
			name:      "stale timestamp",
			body:      completed,
			headers:   signed(completed, fixedNow.Add(-time.Hour).Unix()),
			expectErr: gateway.ErrInvalidSignature,
		},
		{
			name:      "missing header",
			body:      completed,
			headers:   http.Header{},
			expectErr: gateway.ErrInvalidSignature,
		},
		{
			name:      "signed garbage",
			body:      `not json`,
			headers:   signed(`not json`, fixedNow.Unix()),
			expectErr: gateway.ErrMalformedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := g.VerifyAndParse(context.Background(), []byte(tt.body), tt.headers)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, ev)
		})
	}
}

func TestGateway_VerifyAndParseWithoutSecret(t *testing.T) {
	g := New(config.StripeConfig{BaseURL: "http://unused"}, 5*time.Minute, clients.NewHTTPClient())
	g.now = func() time.Time { return fixedNow }
	body := `{"id":"evt_1","type":"checkout.session.completed","created":1710000000,"data":{"object":{"id":"cs_1","client_reference_id":"12345678903","amount_total":1,"currency":"usd"}}}`
	ts := strconv.FormatInt(fixedNow.Unix(), 10)
	h := http.Header{}
	h.Set(signatureHeader, "t="+ts+",v1="+signature.Sign(nil, []byte(ts), []byte("."), []byte(body)))

	ev, err := g.VerifyAndParse(context.Background(), []byte(body), h)
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	assert.Nil(t, ev)
}

func TestGateway_Refund(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.Equal(t, "refund-9", r.Header.Get("Idempotency-Key"))
		raw, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(raw))
		_, _ = w.Write([]byte(`{"id":"re_1","status":"pending"}`))
	}))
	defer srv.Close()

	res, err := newGateway(srv.URL).Refund(context.Background(), &gateway.RefundRequest{RefundID: 9, ProviderRef: "pi_1", AmountCents: 500, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "re_1", res.ProviderRef)
	assert.False(t, res.Completed)
	assert.Equal(t, "pi_1", form.Get("payment_intent"))
	assert.Equal(t, "500", form.Get("amount"))
	assert.Equal(t, "9", form.Get("metadata[refund_id]"))
}
