package paypal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/pkg/clients"
)

const (
	headerTransmissionID   = "Paypal-Transmission-Id"
	headerTransmissionTime = "Paypal-Transmission-Time"
	headerTransmissionSig  = "Paypal-Transmission-Sig"
	headerCertURL          = "Paypal-Cert-Url"
	headerAuthAlgo         = "Paypal-Auth-Algo"
)

// API is the authenticated PayPal REST client shared by checkout and payouts.
type API struct {
	baseURL      string
	clientID     string
	clientSecret string
	webhookID    string
	tolerance    time.Duration
	client       clients.HTTPClientI
	now          func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewAPI(cfg config.PayPalConfig, tolerance time.Duration, client clients.HTTPClientI) *API {
	return &API{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		webhookID:    cfg.WebhookID,
		tolerance:    tolerance,
		client:       client,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token returns a cached client-credentials token, refreshing it a minute before expiry.
func (a *API) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && a.now().Before(a.expires) {
		return a.token, nil
	}

	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(a.clientID+":"+a.clientSecret)))
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	status, body, _, err := a.client.Post(ctx, a.baseURL+"/v1/oauth2/token", h, []byte("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	if status != http.StatusOK {
		return "", gateway.StatusError(domain.ProviderPayPal, status, body)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: decode token: %v", gateway.ErrUnavailable, err)
	}
	a.token = tr.AccessToken
	a.expires = a.now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	return a.token, nil
}

// PostJSON sends an authenticated JSON request. requestID becomes PayPal-Request-Id.
func (a *API) PostJSON(ctx context.Context, path, requestID string, in, out any) error {
	token, err := a.Token(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	h.Set("Content-Type", "application/json")
	if requestID != "" {
		h.Set("PayPal-Request-Id", requestID)
	}
	status, body, _, err := a.client.Post(ctx, a.baseURL+path, h, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	if status/100 != 2 {
		return gateway.StatusError(domain.ProviderPayPal, status, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", gateway.ErrUnavailable, path, err)
	}
	return nil
}

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhook checks the transmission time locally and the signature through PayPal.
func (a *API) VerifyWebhook(ctx context.Context, body []byte, headers http.Header) error {
	if a.webhookID == "" {
		return fmt.Errorf("%w: webhook id is not configured", gateway.ErrInvalidSignature)
	}
	sig := headers.Get(headerTransmissionSig)
	ts := headers.Get(headerTransmissionTime)
	if sig == "" || ts == "" || headers.Get(headerTransmissionID) == "" {
		return fmt.Errorf("%w: missing transmission headers", gateway.ErrInvalidSignature)
	}
	sent, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return fmt.Errorf("%w: transmission time %q", gateway.ErrInvalidSignature, ts)
	}
	if d := a.now().Sub(sent); d > a.tolerance || d < -a.tolerance {
		return fmt.Errorf("%w: transmission time outside tolerance", gateway.ErrInvalidSignature)
	}
	if !json.Valid(body) {
		return fmt.Errorf("%w: body is not json", gateway.ErrMalformedEvent)
	}

	req := verifyRequest{
		AuthAlgo:         headers.Get(headerAuthAlgo),
		CertURL:          headers.Get(headerCertURL),
		TransmissionID:   headers.Get(headerTransmissionID),
		TransmissionSig:  sig,
		TransmissionTime: ts,
		WebhookID:        a.webhookID,
		WebhookEvent:     body,
	}
	var resp verifyResponse
	if err := a.PostJSON(ctx, "/v1/notifications/verify-webhook-signature", "", req, &resp); err != nil {
		return err
	}
	if resp.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("%w: verification status %s", gateway.ErrInvalidSignature, resp.VerificationStatus)
	}
	return nil
}
