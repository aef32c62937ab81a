package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/dto"
	"github.com/GlebRadaev/coursepay/internal/handlers/wallet"
	"github.com/GlebRadaev/coursepay/internal/service/paymentservice"
	"github.com/GlebRadaev/coursepay/internal/service/walletservice"
	"github.com/GlebRadaev/coursepay/pkg/utils"
	"github.com/GlebRadaev/coursepay/pkg/validate"
)

//go:generate mockgen -source=admin.go -destination=mock_admin.go -package=admin

type Withdrawals interface {
	ListPending(ctx context.Context) ([]domain.Withdrawal, error)
	Approve(ctx context.Context, id int64) (*domain.Withdrawal, error)
	Reject(ctx context.Context, id int64, note string) (*domain.Withdrawal, error)
}

type Payments interface {
	RequestRefund(ctx context.Context, orderNumber string, amount int64, reason string) (*domain.Refund, error)
}

type Ledger interface {
	Audit(ctx context.Context, userID int64) (*walletservice.AuditReport, error)
	Unfreeze(ctx context.Context, userID int64) error
}

type AdminHandler struct {
	withdrawals Withdrawals
	payments    Payments
	ledger      Ledger
}

func New(withdrawals Withdrawals, payments Payments, ledger Ledger) *AdminHandler {
	return &AdminHandler{
		withdrawals: withdrawals,
		payments:    payments,
		ledger:      ledger,
	}
}

// ListPending godoc
//
//	@Summary	Withdrawals waiting for review, oldest first
//	@Tags		Admin
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{array}		dto.WithdrawalResponseDTO
//	@Success	204	{object}	utils.Response	"No pending withdrawals"
//	@Failure	403	{object}	utils.Response	"Forbidden"
//	@Router		/api/admin/withdrawals [get]
func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.withdrawals.ListPending(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch withdrawals")
		return
	}
	if len(pending) == 0 {
		utils.RespondWithError(w, http.StatusNoContent, "No pending withdrawals")
		return
	}
	response := make([]dto.WithdrawalResponseDTO, len(pending))
	for i := range pending {
		response[i] = dto.NewWithdrawalResponse(&pending[i])
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// Approve godoc
//
//	@Summary		Approve a withdrawal
//	@Description	Sends the payout. When the payout rail is down the withdrawal stays APPROVED and approving again retries.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		int	true	"Withdrawal id"
//	@Success		200	{object}	dto.WithdrawalResponseDTO
//	@Failure		404	{object}	utils.Response	"Withdrawal not found"
//	@Failure		409	{object}	utils.Response	"Withdrawal is not pending"
//	@Failure		502	{object}	dto.WithdrawalResponseDTO	"Payout provider unavailable"
//	@Router			/api/admin/withdrawals/{id}/approve [post]
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := wallet.WithdrawalID(w, r)
	if !ok {
		return
	}
	wd, err := h.withdrawals.Approve(r.Context(), id)
	if err != nil {
		if wd != nil {
			utils.RespondWithJSON(w, http.StatusBadGateway, dto.NewWithdrawalResponse(wd))
			return
		}
		wallet.RespondWithWithdrawalError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewWithdrawalResponse(wd))
}

// Reject godoc
//
//	@Summary	Reject a pending withdrawal and release the hold
//	@Tags		Admin
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int								true	"Withdrawal id"
//	@Param		request	body		dto.RejectWithdrawalRequestDTO	true	"Reason shown to the instructor"
//	@Success	200		{object}	dto.WithdrawalResponseDTO
//	@Failure	409		{object}	utils.Response	"Withdrawal is not pending"
//	@Router		/api/admin/withdrawals/{id}/reject [post]
func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := wallet.WithdrawalID(w, r)
	if !ok {
		return
	}
	var req dto.RejectWithdrawalRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	wd, err := h.withdrawals.Reject(r.Context(), id, req.Note)
	if err != nil {
		wallet.RespondWithWithdrawalError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewWithdrawalResponse(wd))
}

// RequestRefund godoc
//
//	@Summary		Refund a paid order
//	@Description	Queues a refund with the provider. Instructor earnings are clawed back when the provider confirms it.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			number	path		string					true	"Order number"
//	@Param			request	body		dto.RefundRequestDTO	true	"Amount and reason"
//	@Success		202		{object}	dto.RefundResponseDTO
//	@Failure		404		{object}	utils.Response	"Order not found"
//	@Failure		409		{object}	utils.Response	"Order is not paid"
//	@Failure		422		{object}	utils.Response	"Refund exceeds the refundable amount"
//	@Router			/api/admin/orders/{number}/refunds [post]
func (h *AdminHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	var req dto.RefundRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	refund, err := h.payments.RequestRefund(r.Context(), chi.URLParam(r, "number"), req.AmountCents, req.Reason)
	switch {
	case err == nil:
	case errors.Is(err, paymentservice.ErrOrderNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, paymentservice.ErrOrderNotPaid):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, paymentservice.ErrInvalidRefundAmount), errors.Is(err, paymentservice.ErrRefundExceedsPayment):
		utils.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondWithJSON(w, http.StatusAccepted, dto.RefundResponseDTO{
		ID:          refund.ID,
		Status:      refund.Status,
		AmountCents: refund.AmountCents,
		Reason:      refund.Reason,
	})
}

// Audit godoc
//
//	@Summary		Audit an instructor's ledger
//	@Description	Recomputes the balance from the ledger. A mismatch freezes the balance and responds 409 with the report.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			userID	path		int	true	"Instructor id"
//	@Success		200		{object}	walletservice.AuditReport
//	@Failure		409		{object}	walletservice.AuditReport	"Ledger mismatch"
//	@Router			/api/admin/wallets/{userID}/audit [get]
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	report, err := h.ledger.Audit(r.Context(), userID)
	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusOK, report)
	case errors.Is(err, walletservice.ErrLedgerMismatch):
		utils.RespondWithJSON(w, http.StatusConflict, report)
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Unfreeze godoc
//
//	@Summary	Lift a balance freeze
//	@Tags		Admin
//	@Security	BearerAuth
//	@Param		userID	path	int	true	"Instructor id"
//	@Success	204
//	@Failure	409	{object}	utils.Response	"Ledger still does not match"
//	@Router		/api/admin/wallets/{userID}/unfreeze [post]
func (h *AdminHandler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	err := h.ledger.Unfreeze(r.Context(), userID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, walletservice.ErrLedgerMismatch):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}
