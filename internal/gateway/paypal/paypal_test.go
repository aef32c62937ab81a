package paypal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/pkg/clients"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakePayPal struct {
	tokenCalls   atomic.Int32
	verifyStatus string
	lastBody     map[string]any
	lastHeaders  http.Header
}

func (f *fakePayPal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	f.lastHeaders = r.Header
	switch r.URL.Path {
	case "/v1/oauth2/token":
		f.tokenCalls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"A21","expires_in":32400}`))
		return
	}
	if r.Header.Get("Authorization") != "Bearer A21" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.lastBody = map[string]any{}
	_ = json.Unmarshal(raw, &f.lastBody)
	switch r.URL.Path {
	case "/v2/checkout/orders":
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"CREATED","links":[{"href":"https://www.paypal.com/checkoutnow?token=5O190127TN364715T","rel":"approve"}]}`))
	case "/v1/notifications/verify-webhook-signature":
		_, _ = w.Write([]byte(`{"verification_status":"` + f.verifyStatus + `"}`))
	case "/v2/checkout/orders/5O190127TN364715T/capture":
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"3C679366HH908993F","status":"COMPLETED"}]}}]}`))
	case "/v2/payments/captures/3C679366HH908993F/refund":
		_, _ = w.Write([]byte(`{"id":"1JU08902781691411","status":"COMPLETED"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newGateway(t *testing.T) (*Gateway, *fakePayPal) {
	fake := &fakePayPal{verifyStatus: "SUCCESS"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	api := NewAPI(config.PayPalConfig{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret", WebhookID: "WH-1"}, 5*time.Minute, clients.NewHTTPClient())
	api.now = func() time.Time { return fixedNow }
	return New(api), fake
}

func webhookHeaders(sent time.Time) http.Header {
	h := http.Header{}
	h.Set(headerTransmissionID, "69cd13f0-d67a-11e5-baa3-778b53f4ae55")
	h.Set(headerTransmissionTime, sent.Format(time.RFC3339))
	h.Set(headerTransmissionSig, "c2lnbmF0dXJl")
	h.Set(headerCertURL, "https://api.paypal.com/cert.pem")
	h.Set(headerAuthAlgo, "SHA256withRSA")
	return h
}

func TestGateway_CreateCheckout(t *testing.T) {
	g, fake := newGateway(t)

	s, err := g.CreateCheckout(context.Background(), &gateway.CheckoutRequest{
		OrderNumber: "12345678903", AttemptRef: 2, AmountCents: 1999, Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", s.ProviderTxn)
	assert.Contains(t, s.RedirectURL, "checkoutnow")
	assert.Equal(t, "checkout-12345678903-2", fake.lastHeaders.Get("PayPal-Request-Id"))
	units := fake.lastBody["purchase_units"].([]any)
	amount := units[0].(map[string]any)["amount"].(map[string]any)
	assert.Equal(t, "19.99", amount["value"])

	_, err = g.CreateCheckout(context.Background(), &gateway.CheckoutRequest{OrderNumber: "12345678903", AttemptRef: 3, AmountCents: 1, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
}

func TestGateway_VerifyAndParse(t *testing.T) {
	completed := `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.COMPLETED","create_time":"2025-03-10T11:59:00Z","resource":{"id":"3C679366HH908993F","custom_id":"12345678903","amount":{"currency_code":"USD","value":"19.99"},"supplementary_data":{"related_ids":{"order_id":"5O190127TN364715T"}}}}`
	approved := `{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","create_time":"2025-03-10T11:59:00Z","resource":{"id":"5O190127TN364715T","purchase_units":[{"custom_id":"12345678903","amount":{"currency_code":"USD","value":"19.99"}}]}}`
	refunded := `{"id":"WH-3","event_type":"PAYMENT.CAPTURE.REFUNDED","create_time":"2025-03-10T11:59:00Z","resource":{"id":"1JU08902781691411","invoice_id":"refund-9","amount":{"currency_code":"USD","value":"5.00"}}}`

	t.Run("capture completed", func(t *testing.T) {
		g, _ := newGateway(t)
		ev, err := g.VerifyAndParse(context.Background(), []byte(completed), webhookHeaders(fixedNow))
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeSucceeded, ev.Outcome)
		assert.Equal(t, "5O190127TN364715T", ev.ProviderTxn)
		assert.Equal(t, "3C679366HH908993F", ev.ProviderRef)
		assert.Equal(t, "12345678903", ev.OrderNumber)
		assert.Equal(t, int64(1999), ev.AmountCents)
	})

	t.Run("order approved", func(t *testing.T) {
		g, _ := newGateway(t)
		ev, err := g.VerifyAndParse(context.Background(), []byte(approved), webhookHeaders(fixedNow))
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeApproved, ev.Outcome)
		assert.Equal(t, "5O190127TN364715T", ev.ProviderTxn)
	})

	t.Run("refund completed", func(t *testing.T) {
		g, _ := newGateway(t)
		ev, err := g.VerifyAndParse(context.Background(), []byte(refunded), webhookHeaders(fixedNow))
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeRefundSucceeded, ev.Outcome)
		assert.Equal(t, int64(9), ev.RefundID)
		assert.Equal(t, int64(500), ev.AmountCents)
	})

	t.Run("verification failure", func(t *testing.T) {
		g, fake := newGateway(t)
		fake.verifyStatus = "FAILURE"
		_, err := g.VerifyAndParse(context.Background(), []byte(completed), webhookHeaders(fixedNow))
		assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	})

	t.Run("stale transmission", func(t *testing.T) {
		g, _ := newGateway(t)
		_, err := g.VerifyAndParse(context.Background(), []byte(completed), webhookHeaders(fixedNow.Add(-time.Hour)))
		assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	})

	t.Run("missing headers", func(t *testing.T) {
		g, _ := newGateway(t)
		_, err := g.VerifyAndParse(context.Background(), []byte(completed), http.Header{})
		assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	})

	t.Run("webhook id not configured", func(t *testing.T) {
		g, _ := newGateway(t)
		g.api.webhookID = ""
		_, err := g.VerifyAndParse(context.Background(), []byte(completed), webhookHeaders(fixedNow))
		assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	})
}

func TestGateway_CaptureAndRefund(t *testing.T) {
	g, fake := newGateway(t)

	captureID, err := g.Capture(context.Background(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, "3C679366HH908993F", captureID)

	res, err := g.Refund(context.Background(), &gateway.RefundRequest{RefundID: 9, ProviderRef: captureID, AmountCents: 500, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "1JU08902781691411", res.ProviderRef)
	assert.True(t, res.Completed)
	assert.Equal(t, "refund-9", fake.lastHeaders.Get("PayPal-Request-Id"))
	assert.Equal(t, "refund-9", fake.lastBody["invoice_id"])
}
