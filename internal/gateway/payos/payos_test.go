package payos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/pkg/clients"
	"github.com/GlebRadaev/coursepay/pkg/signature"
)

const checksum = "checksum-key"

func newGateway(baseURL string) *Gateway {
	return New(config.PayOSConfig{BaseURL: baseURL, ClientID: "cid", APIKey: "key", ChecksumKey: checksum}, clients.NewHTTPClient())
}

func TestGateway_CreateCheckout(t *testing.T) {
	var got paymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/payment-requests", r.URL.Path)
		assert.Equal(t, "cid", r.Header.Get("x-client-id"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"checkoutUrl":"https://pay.payos.vn/web/abc","qrCode":"000201010212","orderCode":77,"status":"PENDING"}}`))
	}))
	defer srv.Close()

	s, err := newGateway(srv.URL).CreateCheckout(context.Background(), &gateway.CheckoutRequest{
		OrderNumber: "12345678903", AttemptRef: 77, AmountCents: 460000, Currency: "VND",
		ReturnURL: "http://r", CancelURL: "http://c",
	})
	require.NoError(t, err)
	assert.Equal(t, "77", s.ProviderTxn)
	assert.Equal(t, "000201010212", s.QRCode)
	assert.Equal(t, int64(460000), got.Amount)
	expected := signature.Sign([]byte(checksum), []byte("amount=460000&cancelUrl=http://c&description=12345678903&orderCode=77&returnUrl=http://r"))
	assert.Equal(t, expected, got.Signature)
}

func TestGateway_CreateCheckoutRejectsCurrency(t *testing.T) {
	_, err := newGateway("http://unused").CreateCheckout(context.Background(), &gateway.CheckoutRequest{Currency: "USD"})
	assert.Error(t, err)
}

func TestGateway_CreateCheckoutErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"231","desc":"order exists"}`))
	}))
	defer srv.Close()

	_, err := newGateway(srv.URL).CreateCheckout(context.Background(), &gateway.CheckoutRequest{OrderNumber: "1", AttemptRef: 1, Currency: "VND"})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func webhook(code string, sig string) []byte {
	data := fmt.Sprintf(`{"orderCode":77,"amount":460000,"description":"12345678903","accountNumber":"12345678","reference":"TF230204212323","transactionDateTime":"2025-03-10 12:00:00","currency":"VND","paymentLinkId":"abc","code":"%s","desc":"ok","counterAccountName":null}`, code)
	if sig == "" {
		fields, _ := flatten(json.RawMessage(data))
		sig = signature.Sign([]byte(checksum), []byte(signature.SortedQuery(fields)))
	}
	return []byte(fmt.Sprintf(`{"code":"00","desc":"success","success":true,"data":%s,"signature":"%s"}`, data, sig))
}

func TestGateway_VerifyAndParse(t *testing.T) {
	g := newGateway("http://unused")

	t.Run("paid", func(t *testing.T) {
		ev, err := g.VerifyAndParse(context.Background(), webhook("00", ""), nil)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeSucceeded, ev.Outcome)
		assert.Equal(t, "77", ev.ProviderTxn)
		assert.Equal(t, "TF230204212323", ev.ProviderRef)
		assert.Equal(t, "12345678903", ev.OrderNumber)
		assert.Equal(t, int64(460000), ev.AmountCents)
		assert.Equal(t, "txn:77:SUCCEEDED", ev.IdempotencyKey())
	})

	t.Run("failed", func(t *testing.T) {
		ev, err := g.VerifyAndParse(context.Background(), webhook("01", ""), nil)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeFailed, ev.Outcome)
	})

	t.Run("bad signature", func(t *testing.T) {
		_, err := g.VerifyAndParse(context.Background(), webhook("00", "deadbeef"), nil)
		assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := g.VerifyAndParse(context.Background(), []byte("{"), nil)
		assert.ErrorIs(t, err, gateway.ErrMalformedEvent)
	})

	t.Run("checksum key not configured", func(t *testing.T) {
		unkeyed := New(config.PayOSConfig{BaseURL: "http://unused"}, clients.NewHTTPClient())
		data := `{"orderCode":77,"amount":460000,"description":"12345678903","code":"00"}`
		fields, err := flatten(json.RawMessage(data))
		require.NoError(t, err)
		forged := signature.Sign(nil, []byte(signature.SortedQuery(fields)))
		body := []byte(fmt.Sprintf(`{"code":"00","desc":"success","data":%s,"signature":"%s"}`, data, forged))

		_, err = unkeyed.VerifyAndParse(context.Background(), body, nil)
		assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	})
}

func TestGateway_Refund(t *testing.T) {
	_, err := newGateway("http://unused").Refund(context.Background(), &gateway.RefundRequest{})
	assert.ErrorIs(t, err, gateway.ErrRefundUnsupported)
}
