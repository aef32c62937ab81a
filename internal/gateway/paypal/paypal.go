package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway"
)

const refundInvoicePrefix = "refund-"

type Gateway struct {
	api *API
}

func New(api *API) *Gateway {
	return &Gateway{api: api}
}

func (g *Gateway) Provider() string {
	return domain.ProviderPayPal
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
	InvoiceID   string `json:"invoice_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      money  `json:"amount"`
}

type applicationContext struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

type orderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
}

func (g *Gateway) CreateCheckout(ctx context.Context, req *gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	body := orderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.OrderNumber,
			CustomID:    req.OrderNumber,
			InvoiceID:   fmt.Sprintf("%s-%d", req.OrderNumber, req.AttemptRef),
			Description: req.Description,
			Amount:      money{CurrencyCode: strings.ToUpper(req.Currency), Value: gateway.FormatAmount(req.AmountCents, req.Currency)},
		}},
		ApplicationContext: applicationContext{ReturnURL: req.ReturnURL, CancelURL: req.CancelURL},
	}
	var resp orderResponse
	requestID := fmt.Sprintf("checkout-%s-%d", req.OrderNumber, req.AttemptRef)
	if err := g.api.PostJSON(ctx, "/v2/checkout/orders", requestID, body, &resp); err != nil {
		return nil, err
	}
	s := &gateway.CheckoutSession{ProviderTxn: resp.ID, Status: domain.PaymentStatusPending}
	for _, l := range resp.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			s.RedirectURL = l.Href
		}
	}
	return s, nil
}

type webhookEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime time.Time       `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

type orderResource struct {
	ID            string         `json:"id"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type captureResource struct {
	ID                string `json:"id"`
	CustomID          string `json:"custom_id"`
	InvoiceID         string `json:"invoice_id"`
	Amount            money  `json:"amount"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID   string `json:"order_id"`
			CaptureID string `json:"capture_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

func (g *Gateway) VerifyAndParse(ctx context.Context, body []byte, headers http.Header) (*domain.PaymentEvent, error) {
	if err := g.api.VerifyWebhook(ctx, body, headers); err != nil {
		return nil, err
	}
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
	}
	out := &domain.PaymentEvent{
		Provider:   g.Provider(),
		EventID:    ev.ID,
		EventType:  ev.EventType,
		OccurredAt: ev.CreateTime,
		Raw:        body,
	}

	switch ev.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		var res orderResource
		if err := json.Unmarshal(ev.Resource, &res); err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
		}
		out.Outcome = domain.OutcomeApproved
		out.ProviderTxn = res.ID
		if len(res.PurchaseUnits) > 0 {
			pu := res.PurchaseUnits[0]
			out.OrderNumber = pu.CustomID
			if err := fillAmount(out, pu.Amount); err != nil {
				return nil, err
			}
		}
	case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		var res captureResource
		if err := json.Unmarshal(ev.Resource, &res); err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
		}
		out.Outcome = domain.OutcomeFailed
		if ev.EventType == "PAYMENT.CAPTURE.COMPLETED" {
			out.Outcome = domain.OutcomeSucceeded
		}
		out.ProviderTxn = res.SupplementaryData.RelatedIDs.OrderID
		out.ProviderRef = res.ID
		out.OrderNumber = res.CustomID
		if err := fillAmount(out, res.Amount); err != nil {
			return nil, err
		}
	case "PAYMENT.CAPTURE.REFUNDED":
		// resource is the refund; its invoice id carries our refund id
		var res captureResource
		if err := json.Unmarshal(ev.Resource, &res); err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
		}
		out.Outcome = domain.OutcomeRefundSucceeded
		out.ProviderRef = res.ID
		out.ProviderTxn = res.SupplementaryData.RelatedIDs.CaptureID
		if id, ok := strings.CutPrefix(res.InvoiceID, refundInvoicePrefix); ok {
			out.RefundID, _ = strconv.ParseInt(id, 10, 64)
		}
		if err := fillAmount(out, res.Amount); err != nil {
			return nil, err
		}
	default:
		out.Outcome = domain.OutcomeIgnored
	}
	return out, nil
}

func fillAmount(ev *domain.PaymentEvent, m money) error {
	if m.Value == "" {
		return nil
	}
	cents, err := gateway.ParseAmount(m.Value, m.CurrencyCode)
	if err != nil {
		return err
	}
	ev.AmountCents = cents
	ev.Currency = strings.ToUpper(m.CurrencyCode)
	return nil
}

type captureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// Capture completes an approved order and returns the capture id used for refunds.
func (g *Gateway) Capture(ctx context.Context, providerTxn string) (string, error) {
	var resp captureResponse
	if err := g.api.PostJSON(ctx, "/v2/checkout/orders/"+providerTxn+"/capture", "capture-"+providerTxn, struct{}{}, &resp); err != nil {
		return "", err
	}
	for _, pu := range resp.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			return pu.Payments.Captures[0].ID, nil
		}
	}
	return "", fmt.Errorf("%w: capture response without captures", gateway.ErrUnavailable)
}

type refundRequest struct {
	Amount      money  `json:"amount"`
	InvoiceID   string `json:"invoice_id"`
	NoteToPayer string `json:"note_to_payer,omitempty"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (g *Gateway) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	invoice := refundInvoicePrefix + strconv.FormatInt(req.RefundID, 10)
	body := refundRequest{
		Amount:      money{CurrencyCode: strings.ToUpper(req.Currency), Value: gateway.FormatAmount(req.AmountCents, req.Currency)},
		InvoiceID:   invoice,
		NoteToPayer: req.Reason,
	}
	var resp refundResponse
	if err := g.api.PostJSON(ctx, "/v2/payments/captures/"+req.ProviderRef+"/refund", invoice, body, &resp); err != nil {
		return nil, err
	}
	return &gateway.RefundResult{ProviderRef: resp.ID, Completed: resp.Status == "COMPLETED"}, nil
}
