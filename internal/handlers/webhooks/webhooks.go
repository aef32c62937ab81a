package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/dto"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/internal/payout"
	"github.com/GlebRadaev/coursepay/pkg/logger"
	"github.com/GlebRadaev/coursepay/pkg/utils"
)

//go:generate mockgen -source=webhooks.go -destination=mock_webhooks.go -package=webhooks

const maxBodyBytes = 1 << 20

type Payments interface {
	Ingest(ctx context.Context, provider string, body []byte, headers http.Header) (string, error)
}

type PayoutVerifier interface {
	VerifyAndParse(ctx context.Context, body []byte, headers http.Header) (*domain.PayoutEvent, error)
}

type Withdrawals interface {
	HandlePayoutEvent(ctx context.Context, ev *domain.PayoutEvent) (string, error)
}

type WebhookHandler struct {
	payments    Payments
	payouts     PayoutVerifier
	withdrawals Withdrawals
}

func New(payments Payments, payouts PayoutVerifier, withdrawals Withdrawals) *WebhookHandler {
	return &WebhookHandler{
		payments:    payments,
		payouts:     payouts,
		withdrawals: withdrawals,
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "unreadable request body")
		return nil, false
	}
	return body, true
}

// Payment godoc
//
//	@Summary		Payment provider notification
//	@Description	Verifies the provider signature on the raw body and reconciles the event. Replays answer 200 with result "duplicate".
//	@Tags			Webhooks
//	@Accept			json
//	@Produce		json
//	@Param			provider	path		string	true	"stripe, paypal or payos"
//	@Success		200			{object}	dto.WebhookResponseDTO
//	@Failure		400			{object}	utils.Response	"Malformed payload"
//	@Failure		401			{object}	utils.Response	"Invalid signature"
//	@Failure		404			{object}	utils.Response	"Unknown provider"
//	@Router			/api/webhooks/payments/{provider} [post]
func (h *WebhookHandler) Payment(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	result, err := h.payments.Ingest(r.Context(), provider, body, r.Header)
	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusOK, dto.WebhookResponseDTO{Result: result})
	case errors.Is(err, gateway.ErrUnknownProvider):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, gateway.ErrInvalidSignature):
		utils.RespondWithError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, gateway.ErrMalformedEvent):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		// non-2xx makes the provider redeliver
		zap.L().Error("failed to reconcile payment webhook", zap.String("provider", provider), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Payout godoc
//
//	@Summary	Payout rail notification
//	@Tags		Webhooks
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	dto.WebhookResponseDTO
//	@Failure	400	{object}	utils.Response	"Malformed payload"
//	@Failure	401	{object}	utils.Response	"Invalid signature"
//	@Router		/api/webhooks/payouts [post]
func (h *WebhookHandler) Payout(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	ev, err := h.payouts.VerifyAndParse(r.Context(), body, r.Header)
	switch {
	case err == nil:
	case errors.Is(err, payout.ErrInvalidSignature):
		logger.Security("payout webhook rejected", zap.Error(err))
		utils.RespondWithError(w, http.StatusUnauthorized, "invalid signature")
		return
	case errors.Is(err, payout.ErrMalformedEvent):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	default:
		zap.L().Error("failed to verify payout webhook", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	result, err := h.withdrawals.HandlePayoutEvent(r.Context(), ev)
	if err != nil {
		zap.L().Error("failed to apply payout webhook", zap.String("batch_id", ev.BatchID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.WebhookResponseDTO{Result: result})
}
