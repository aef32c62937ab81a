package payout

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway/paypal"
	"github.com/GlebRadaev/coursepay/pkg/clients"
	"github.com/GlebRadaev/coursepay/pkg/signature"
)

func TestBatchID(t *testing.T) {
	assert.Equal(t, BatchID(42), BatchID(42))
	assert.NotEqual(t, BatchID(42), BatchID(43))
	assert.Len(t, BatchID(42), 36)
}

func TestNew(t *testing.T) {
	cfg := &config.Config{Payout: config.PayoutConfig{Provider: "bank"}}
	_, err := New(cfg, clients.NewHTTPClient())
	assert.Error(t, err, "bank rail without a webhook secret")

	cfg.Payout.WebhookSecret = "s3cret"
	p, err := New(cfg, clients.NewHTTPClient())
	require.NoError(t, err)
	assert.Equal(t, ProviderBank, p.Name())

	cfg.Payout.Provider = "paypal"
	_, err = New(cfg, clients.NewHTTPClient())
	assert.Error(t, err, "paypal rail without a webhook id")

	cfg.PayPal.WebhookID = "WH-1"
	p, err = New(cfg, clients.NewHTTPClient())
	require.NoError(t, err)
	assert.Equal(t, ProviderPayPal, p.Name())

	cfg.Payout.Provider = "carrier-pigeon"
	_, err = New(cfg, clients.NewHTTPClient())
	assert.Error(t, err)
}

var bankNow = time.Unix(1710000000, 0)

func newBank(baseURL string) *Bank {
	b := NewBank(config.PayoutConfig{BankBaseURL: baseURL, BankAPIKey: "k", WebhookSecret: "s3cret"}, 5*time.Minute, clients.NewHTTPClient())
	b.now = func() time.Time { return bankNow }
	return b
}

func TestBank_Send(t *testing.T) {
	var got bankTransfer
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payouts", r.URL.Path)
		assert.Equal(t, BatchID(7), r.Header.Get(headerIdempotencyKey))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		_, _ = w.Write([]byte(`{"batchId":"` + BatchID(7) + `","itemId":"ITEM-1","status":"PENDING"}`))
	}))
	defer srv.Close()

	req := &Request{
		BatchID: BatchID(7), WithdrawalID: 7, AmountCents: 100000, Currency: "VND",
		Bank: domain.BankInfo{BankName: "VCB", AccountNumber: "0123456789", AccountName: "NGUYEN VAN A"},
	}
	res, err := newBank(srv.URL).Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ITEM-1", res.ItemID)
	assert.Equal(t, int64(100000), got.Amount)
	assert.Equal(t, int64(7), got.Reference)
}

func TestBank_SendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := newBank(srv.URL)
	_, err := b.Send(context.Background(), &Request{Bank: domain.BankInfo{}})
	assert.ErrorIs(t, err, ErrMissingRecipient)

	_, err = b.Send(context.Background(), &Request{BatchID: "b", Bank: domain.BankInfo{BankName: "VCB", AccountNumber: "1"}})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBank_VerifyAndParse(t *testing.T) {
	b := newBank("http://unused")
	body := []byte(`{"batchId":"B-1","itemId":"ITEM-1","status":"FAILED","reason":"account closed"}`)
	ts := strconv.FormatInt(bankNow.Unix(), 10)

	headers := func(sig, ts string) http.Header {
		h := http.Header{}
		h.Set(headerSignature, sig)
		h.Set(headerTimestamp, ts)
		h.Set(headerIdempotencyKey, "evt-1")
		return h
	}

	t.Run("valid", func(t *testing.T) {
		ev, err := b.VerifyAndParse(context.Background(), body, headers(signature.Sign([]byte("s3cret"), body, []byte(ts)), ts))
		require.NoError(t, err)
		assert.Equal(t, domain.PayoutOutcomeFailed, ev.Outcome)
		assert.Equal(t, "B-1", ev.BatchID)
		assert.Equal(t, "evt-1", ev.IdempotencyKey())
		assert.Equal(t, "account closed", ev.Reason)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := b.VerifyAndParse(context.Background(), body, headers(signature.Sign([]byte("other"), body, []byte(ts)), ts))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("replayed", func(t *testing.T) {
		old := strconv.FormatInt(bankNow.Add(-time.Hour).Unix(), 10)
		_, err := b.VerifyAndParse(context.Background(), body, headers(signature.Sign([]byte("s3cret"), body, []byte(old)), old))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("secret not configured", func(t *testing.T) {
		unkeyed := NewBank(config.PayoutConfig{BankBaseURL: "http://unused"}, 5*time.Minute, clients.NewHTTPClient())
		unkeyed.now = func() time.Time { return bankNow }
		_, err := unkeyed.VerifyAndParse(context.Background(), body, headers(signature.Sign(nil, body, []byte(ts)), ts))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("no batch", func(t *testing.T) {
		empty := []byte(`{"status":"SUCCEEDED"}`)
		_, err := b.VerifyAndParse(context.Background(), empty, headers(signature.Sign([]byte("s3cret"), empty, []byte(ts)), ts))
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})
}

func newPayPal(t *testing.T, handler http.HandlerFunc) *PayPal {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			_, _ = w.Write([]byte(`{"access_token":"A21","expires_in":32400}`))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewPayPal(paypal.NewAPI(config.PayPalConfig{BaseURL: srv.URL, WebhookID: "WH"}, 5*time.Minute, clients.NewHTTPClient()))
}

func TestPayPal_Send(t *testing.T) {
	var got payoutRequest
	p := newPayPal(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/payouts", r.URL.Path)
		assert.Equal(t, BatchID(7), r.Header.Get("PayPal-Request-Id"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"batch_header":{"payout_batch_id":"5UXD2E8A7EBQJ","batch_status":"PENDING"}}`))
	})

	res, err := p.Send(context.Background(), &Request{
		BatchID: BatchID(7), WithdrawalID: 7, AmountCents: 2500, Currency: "USD",
		Bank: domain.BankInfo{Email: "instructor@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "5UXD2E8A7EBQJ", res.ItemID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "25.00", got.Items[0].Amount.Value)
	assert.Equal(t, "7", got.Items[0].SenderItemID)

	_, err = p.Send(context.Background(), &Request{BatchID: "b"})
	assert.ErrorIs(t, err, ErrMissingRecipient)
}

func TestPayPal_VerifyAndParse(t *testing.T) {
	status := "SUCCESS"
	p := newPayPal(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"verification_status":"` + status + `"}`))
	})
	body := []byte(`{"id":"WH-9","event_type":"PAYMENT.PAYOUTS-ITEM.SUCCEEDED","resource":{"payout_item_id":"8AELMXH8UB2P8","payout_batch_id":"5UXD2E8A7EBQJ","transaction_status":"SUCCESS","payout_item":{"sender_item_id":"7"}}}`)
	h := http.Header{}
	h.Set("Paypal-Transmission-Id", "t-1")
	h.Set("Paypal-Transmission-Time", time.Now().UTC().Format(time.RFC3339))
	h.Set("Paypal-Transmission-Sig", "sig")

	ev, err := p.VerifyAndParse(context.Background(), body, h)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutOutcomeSucceeded, ev.Outcome)
	assert.Equal(t, BatchID(7), ev.BatchID)
	assert.Equal(t, "8AELMXH8UB2P8", ev.ItemID)

	status = "FAILURE"
	_, err = p.VerifyAndParse(context.Background(), body, h)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
