package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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

const (
	codeSuccess       = "00"
	maxDescriptionLen = 25
)

type Gateway struct {
	baseURL     string
	clientID    string
	apiKey      string
	checksumKey []byte
	client      clients.HTTPClientI
}

func New(cfg config.PayOSConfig, client clients.HTTPClientI) *Gateway {
	return &Gateway{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		clientID:    cfg.ClientID,
		apiKey:      cfg.APIKey,
		checksumKey: []byte(cfg.ChecksumKey),
		client:      client,
	}
}

func (g *Gateway) Provider() string {
	return domain.ProviderPayOS
}

type paymentRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	BuyerEmail  string `json:"buyerEmail,omitempty"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	Signature   string `json:"signature"`
}

type envelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

type paymentLink struct {
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
	PaymentLinkID string `json:"paymentLinkId"`
	OrderCode     int64  `json:"orderCode"`
	Status        string `json:"status"`
}

// CreateCheckout opens a payment link. PayOS order codes are integers, so the attempt
// reference doubles as the provider transaction id.
func (g *Gateway) CreateCheckout(ctx context.Context, req *gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	if !strings.EqualFold(req.Currency, "VND") {
		return nil, fmt.Errorf("payos: unsupported currency %s", req.Currency)
	}
	description := req.OrderNumber
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen]
	}
	body := paymentRequest{
		OrderCode:   req.AttemptRef,
		Amount:      req.AmountCents,
		Description: description,
		BuyerEmail:  req.CustomerEmail,
		CancelURL:   req.CancelURL,
		ReturnURL:   req.ReturnURL,
	}
	body.Signature = signature.Sign(g.checksumKey, []byte(signature.SortedQuery(map[string]string{
		"amount":      strconv.FormatInt(body.Amount, 10),
		"cancelUrl":   body.CancelURL,
		"description": body.Description,
		"orderCode":   strconv.FormatInt(body.OrderCode, 10),
		"returnUrl":   body.ReturnURL,
	})))
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set("x-client-id", g.clientID)
	h.Set("x-api-key", g.apiKey)
	h.Set("Content-Type", "application/json")
	status, resp, _, err := g.client.Post(ctx, g.baseURL+"/v2/payment-requests", h, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	if status/100 != 2 {
		return nil, gateway.StatusError(g.Provider(), status, resp)
	}
	var env envelope
	if err := json.Unmarshal(resp, &env); err != nil {
		return nil, fmt.Errorf("%w: decode payment link: %v", gateway.ErrUnavailable, err)
	}
	if env.Code != codeSuccess {
		return nil, fmt.Errorf("%w: payos code %s: %s", gateway.ErrUnavailable, env.Code, env.Desc)
	}
	var link paymentLink
	if err := json.Unmarshal(env.Data, &link); err != nil {
		return nil, fmt.Errorf("%w: decode payment link: %v", gateway.ErrUnavailable, err)
	}
	return &gateway.CheckoutSession{
		ProviderTxn: strconv.FormatInt(req.AttemptRef, 10),
		RedirectURL: link.CheckoutURL,
		QRCode:      link.QRCode,
		Status:      domain.PaymentStatusPending,
	}, nil
}

type webhookData struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
	Currency    string `json:"currency"`
	Code        string `json:"code"`
	Desc        string `json:"desc"`
}

// VerifyAndParse checks the body signature, an hmac over the sorted data fields.
func (g *Gateway) VerifyAndParse(_ context.Context, body []byte, _ http.Header) (*domain.PaymentEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
	}
	if len(g.checksumKey) == 0 {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, signature.ErrNoSecret)
	}
	if env.Signature == "" || len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, signature.ErrMissing)
	}
	fields, err := flatten(env.Data)
	if err != nil {
		return nil, err
	}
	if !signature.Equal(signature.Sign(g.checksumKey, []byte(signature.SortedQuery(fields))), env.Signature) {
		zap.L().Warn("payos signature mismatch")
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, signature.ErrMismatch)
	}

	var data webhookData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
	}
	currency := strings.ToUpper(data.Currency)
	if currency == "" {
		currency = "VND"
	}
	outcome := domain.OutcomeFailed
	if data.Code == codeSuccess {
		outcome = domain.OutcomeSucceeded
	}
	return &domain.PaymentEvent{
		Provider:    g.Provider(),
		EventType:   "payment-link." + data.Code,
		ProviderTxn: strconv.FormatInt(data.OrderCode, 10),
		ProviderRef: data.Reference,
		OrderNumber: strings.TrimSpace(data.Description),
		AmountCents: data.Amount,
		Currency:    currency,
		Outcome:     outcome,
		OccurredAt:  time.Now().UTC(),
		Raw:         body,
	}, nil
}

// flatten renders data values the way PayOS signs them: numbers verbatim, null as empty.
func flatten(raw json.RawMessage) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
	}
	fields := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case nil:
			fields[k] = ""
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			fields[k] = strconv.FormatBool(val)
		default:
			b, _ := json.Marshal(val)
			fields[k] = string(b)
		}
	}
	return fields, nil
}

func (g *Gateway) Refund(context.Context, *gateway.RefundRequest) (*gateway.RefundResult, error) {
	return nil, gateway.ErrRefundUnsupported
}
