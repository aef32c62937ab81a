package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/dto"
	"github.com/GlebRadaev/coursepay/internal/service/walletservice"
	"github.com/GlebRadaev/coursepay/internal/service/withdrawalservice"
	"github.com/GlebRadaev/coursepay/pkg/auth"
	"github.com/GlebRadaev/coursepay/pkg/utils"
	"github.com/GlebRadaev/coursepay/pkg/validate"
)

//go:generate mockgen -source=wallet.go -destination=mock_wallet.go -package=wallet

type Service interface {
	GetBalance(ctx context.Context, userID int64) (*domain.Balance, error)
	ListTransactions(ctx context.Context, userID int64) ([]domain.Transaction, error)
}

type Withdrawals interface {
	Create(ctx context.Context, userID, amount int64, bank domain.BankInfo) (*domain.Withdrawal, error)
	List(ctx context.Context, userID int64) ([]domain.Withdrawal, error)
	Get(ctx context.Context, userID, id int64) (*domain.Withdrawal, error)
	Cancel(ctx context.Context, userID, id int64) (*domain.Withdrawal, error)
}

type WalletHandler struct {
	walletService Service
	withdrawals   Withdrawals
}

func New(walletService Service, withdrawals Withdrawals) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		withdrawals:   withdrawals,
	}
}

// RespondWithWithdrawalError maps withdrawal pipeline errors to status codes.
func RespondWithWithdrawalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, withdrawalservice.ErrBelowMinimum):
		utils.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, walletservice.ErrInsufficientBalance):
		utils.RespondWithError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, walletservice.ErrBalanceFrozen):
		utils.RespondWithError(w, http.StatusLocked, err.Error())
	case errors.Is(err, withdrawalservice.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, withdrawalservice.ErrInvalidTransition):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, withdrawalservice.ErrPayoutUnavailable):
		utils.RespondWithError(w, http.StatusBadGateway, err.Error())
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// WithdrawalID parses the {id} path parameter, writing a 400 when it is not a positive integer.
func WithdrawalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid withdrawal id")
		return 0, false
	}
	return id, true
}

// GetBalance godoc
//
//	@Summary		Get wallet balance
//	@Description	Available and pending (held for withdrawals) earnings of the instructor.
//	@Tags			Wallet
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	dto.BalanceResponseDTO
//	@Failure		401	{object}	utils.Response	"User not authorized"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Router			/api/wallet/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.walletService.GetBalance(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.BalanceResponseDTO{
		AvailableCents: balance.AvailableCents,
		PendingCents:   balance.PendingCents,
		Frozen:         balance.Frozen,
		FrozenReason:   balance.FrozenReason,
	})
}

// ListTransactions godoc
//
//	@Summary	Wallet ledger, newest first
//	@Tags		Wallet
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{array}		dto.TransactionResponseDTO
//	@Success	204	{object}	utils.Response	"No data available"
//	@Router		/api/wallet/transactions [get]
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.walletService.ListTransactions(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if len(txs) == 0 {
		utils.RespondWithError(w, http.StatusNoContent, "No data available")
		return
	}
	response := make([]dto.TransactionResponseDTO, len(txs))
	for i, tx := range txs {
		response[i] = dto.NewTransactionResponse(tx)
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// CreateWithdrawal godoc
//
//	@Summary		Request a withdrawal
//	@Description	Holds the amount from the available balance until an admin approves or rejects it.
//	@Tags			Withdrawals
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.CreateWithdrawalRequestDTO	true	"Amount and payout recipient"
//	@Success		201		{object}	dto.WithdrawalResponseDTO
//	@Failure		402		{object}	utils.Response	"Insufficient balance"
//	@Failure		422		{object}	utils.Response	"Below the minimum withdrawal"
//	@Failure		423		{object}	utils.Response	"Balance frozen"
//	@Router			/api/withdrawals [post]
func (h *WalletHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateWithdrawalRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Bank.AccountNumber == "" && req.Bank.Email == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "bank account or payout email is required")
		return
	}

	wd, err := h.withdrawals.Create(r.Context(), auth.UserID(r.Context()), req.AmountCents, req.Bank)
	if err != nil {
		RespondWithWithdrawalError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, dto.NewWithdrawalResponse(wd))
}

// ListWithdrawals godoc
//
//	@Summary	Own withdrawals
//	@Tags		Withdrawals
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{array}		dto.WithdrawalResponseDTO
//	@Success	204	{object}	utils.Response	"Withdrawals not found"
//	@Router		/api/withdrawals [get]
func (h *WalletHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := h.withdrawals.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch withdrawals")
		return
	}
	if len(withdrawals) == 0 {
		utils.RespondWithError(w, http.StatusNoContent, "Withdrawals not found")
		return
	}
	response := make([]dto.WithdrawalResponseDTO, len(withdrawals))
	for i := range withdrawals {
		response[i] = dto.NewWithdrawalResponse(&withdrawals[i])
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// GetWithdrawal godoc
//
//	@Summary	One own withdrawal
//	@Tags		Withdrawals
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path		int	true	"Withdrawal id"
//	@Success	200	{object}	dto.WithdrawalResponseDTO
//	@Failure	404	{object}	utils.Response	"Withdrawal not found"
//	@Router		/api/withdrawals/{id} [get]
func (h *WalletHandler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := WithdrawalID(w, r)
	if !ok {
		return
	}
	wd, err := h.withdrawals.Get(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		RespondWithWithdrawalError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewWithdrawalResponse(wd))
}

// CancelWithdrawal godoc
//
//	@Summary	Cancel a pending withdrawal
//	@Tags		Withdrawals
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path		int	true	"Withdrawal id"
//	@Success	200	{object}	dto.WithdrawalResponseDTO
//	@Failure	404	{object}	utils.Response	"Withdrawal not found"
//	@Failure	409	{object}	utils.Response	"Withdrawal is no longer pending"
//	@Router		/api/withdrawals/{id}/cancel [post]
func (h *WalletHandler) CancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := WithdrawalID(w, r)
	if !ok {
		return
	}
	wd, err := h.withdrawals.Cancel(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		RespondWithWithdrawalError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewWithdrawalResponse(wd))
}
