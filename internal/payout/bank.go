package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/pkg/clients"
	"github.com/GlebRadaev/coursepay/pkg/signature"
)

const (
	headerSignature      = "X-Signature"
	headerTimestamp      = "X-Timestamp"
	headerIdempotencyKey = "X-Idempotency-Key"
)

// Bank is a partner bank transfer rail speaking the generic signed-webhook protocol.
type Bank struct {
	baseURL   string
	apiKey    string
	secret    []byte
	tolerance time.Duration
	client    clients.HTTPClientI
	now       func() time.Time
}

func NewBank(cfg config.PayoutConfig, tolerance time.Duration, client clients.HTTPClientI) *Bank {
	return &Bank{
		baseURL:   strings.TrimRight(cfg.BankBaseURL, "/"),
		apiKey:    cfg.BankAPIKey,
		secret:    []byte(cfg.WebhookSecret),
		tolerance: tolerance,
		client:    client,
		now:       time.Now,
	}
}

func (b *Bank) Name() string {
	return ProviderBank
}

type bankTransfer struct {
	BatchID       string `json:"batchId"`
	Reference     int64  `json:"reference"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	Note          string `json:"note,omitempty"`
}

type bankStatus struct {
	BatchID string `json:"batchId"`
	ItemID  string `json:"itemId"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

func (b *Bank) Send(ctx context.Context, req *Request) (*Result, error) {
	if req.Bank.AccountNumber == "" || req.Bank.BankName == "" {
		return nil, ErrMissingRecipient
	}
	payload, err := json.Marshal(bankTransfer{
		BatchID:       req.BatchID,
		Reference:     req.WithdrawalID,
		Amount:        req.AmountCents,
		Currency:      req.Currency,
		BankName:      req.Bank.BankName,
		AccountNumber: req.Bank.AccountNumber,
		AccountName:   req.Bank.AccountName,
		Note:          req.Note,
	})
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+b.apiKey)
	h.Set("Content-Type", "application/json")
	h.Set(headerIdempotencyKey, req.BatchID)

	status, body, _, err := b.client.Post(ctx, b.baseURL+"/payouts", h, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status/100 != 2 {
		zap.L().Error("bank payout rejected", zap.Int("status", status), zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: bank responded %d", ErrUnavailable, status)
	}
	var resp bankStatus
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode payout: %v", ErrUnavailable, err)
	}
	return &Result{BatchID: req.BatchID, ItemID: resp.ItemID, Status: resp.Status}, nil
}

func (b *Bank) VerifyAndParse(_ context.Context, body []byte, headers http.Header) (*domain.PayoutEvent, error) {
	err := signature.VerifyTimestamped(b.secret, body, headers.Get(headerTimestamp), headers.Get(headerSignature), b.now(), b.tolerance)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	var st bankStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if st.BatchID == "" {
		return nil, fmt.Errorf("%w: batchId is required", ErrMalformedEvent)
	}
	outcome := domain.PayoutOutcomePending
	switch strings.ToUpper(st.Status) {
	case "SUCCEEDED", "SUCCESS", "COMPLETED":
		outcome = domain.PayoutOutcomeSucceeded
	case "FAILED", "REJECTED", "RETURNED":
		outcome = domain.PayoutOutcomeFailed
	}
	return &domain.PayoutEvent{
		Provider: b.Name(),
		EventID:  headers.Get(headerIdempotencyKey),
		BatchID:  st.BatchID,
		ItemID:   st.ItemID,
		Outcome:  outcome,
		Reason:   st.Reason,
		Raw:      body,
	}, nil
}
