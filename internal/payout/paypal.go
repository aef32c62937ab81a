package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/internal/gateway/paypal"
)

// PayPal sends withdrawals through the Payouts API to the instructor's PayPal email.
type PayPal struct {
	api *paypal.API
}

func NewPayPal(api *paypal.API) *PayPal {
	return &PayPal{api: api}
}

func (p *PayPal) Name() string {
	return ProviderPayPal
}

type payoutAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type payoutItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        payoutAmount `json:"amount"`
	Receiver      string       `json:"receiver"`
	SenderItemID  string       `json:"sender_item_id"`
	Note          string       `json:"note,omitempty"`
}

type senderBatchHeader struct {
	SenderBatchID string `json:"sender_batch_id"`
	EmailSubject  string `json:"email_subject,omitempty"`
}

type payoutRequest struct {
	SenderBatchHeader senderBatchHeader `json:"sender_batch_header"`
	Items             []payoutItem      `json:"items"`
}

type payoutResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

func (p *PayPal) Send(ctx context.Context, req *Request) (*Result, error) {
	if req.Bank.Email == "" {
		return nil, ErrMissingRecipient
	}
	body := payoutRequest{
		SenderBatchHeader: senderBatchHeader{SenderBatchID: req.BatchID, EmailSubject: "You have a payout"},
		Items: []payoutItem{{
			RecipientType: "EMAIL",
			Amount:        payoutAmount{Value: gateway.FormatAmount(req.AmountCents, req.Currency), Currency: strings.ToUpper(req.Currency)},
			Receiver:      req.Bank.Email,
			SenderItemID:  strconv.FormatInt(req.WithdrawalID, 10),
			Note:          req.Note,
		}},
	}
	var resp payoutResponse
	if err := p.api.PostJSON(ctx, "/v1/payments/payouts", req.BatchID, body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Result{BatchID: req.BatchID, ItemID: resp.BatchHeader.PayoutBatchID, Status: resp.BatchHeader.BatchStatus}, nil
}

type payoutWebhook struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		PayoutItemID      string `json:"payout_item_id"`
		PayoutBatchID     string `json:"payout_batch_id"`
		SenderBatchID     string `json:"sender_batch_id"`
		TransactionStatus string `json:"transaction_status"`
		Errors            struct {
			Message string `json:"message"`
		} `json:"errors"`
		PayoutItem struct {
			SenderItemID string `json:"sender_item_id"`
		} `json:"payout_item"`
	} `json:"resource"`
}

func (p *PayPal) VerifyAndParse(ctx context.Context, body []byte, headers http.Header) (*domain.PayoutEvent, error) {
	if err := p.api.VerifyWebhook(ctx, body, headers); err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if errors.Is(err, gateway.ErrMalformedEvent) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return nil, err
	}
	var wh payoutWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	batchID := wh.Resource.SenderBatchID
	if batchID == "" {
		id, err := strconv.ParseInt(wh.Resource.PayoutItem.SenderItemID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: no sender batch or item id", ErrMalformedEvent)
		}
		batchID = BatchID(id)
	}

	outcome := domain.PayoutOutcomePending
	switch wh.EventType {
	case "PAYMENT.PAYOUTS-ITEM.SUCCEEDED":
		outcome = domain.PayoutOutcomeSucceeded
	case "PAYMENT.PAYOUTS-ITEM.FAILED", "PAYMENT.PAYOUTS-ITEM.DENIED", "PAYMENT.PAYOUTS-ITEM.RETURNED",
		"PAYMENT.PAYOUTS-ITEM.BLOCKED", "PAYMENT.PAYOUTS-ITEM.CANCELED", "PAYMENT.PAYOUTS-ITEM.REFUNDED":
		outcome = domain.PayoutOutcomeFailed
	}
	return &domain.PayoutEvent{
		Provider: p.Name(),
		EventID:  wh.ID,
		BatchID:  batchID,
		ItemID:   wh.Resource.PayoutItemID,
		Outcome:  outcome,
		Reason:   wh.Resource.Errors.Message,
		Raw:      body,
	}, nil
}
