package dto

import (
	"time"

	"github.com/GlebRadaev/coursepay/internal/domain"
)

type BalanceResponseDTO struct {
	AvailableCents int64  `json:"availableCents" example:"900000"`
	PendingCents   int64  `json:"pendingCents" example:"100000"`
	Frozen         bool   `json:"frozen" example:"false"`
	FrozenReason   string `json:"frozenReason,omitempty" example:"ledger mismatch"`
}

type TransactionResponseDTO struct {
	ID                int64  `json:"id" example:"11"`
	Type              string `json:"type" example:"CREDIT"`
	AmountCents       int64  `json:"amountCents" example:"405000"`
	BalanceAfterCents int64  `json:"balanceAfterCents" example:"900000"`
	PendingAfterCents int64  `json:"pendingAfterCents" example:"0"`
	Reference         string `json:"reference" example:"12345678903"`
	CreatedAt         string `json:"createdAt" example:"2025-03-10T12:05:00Z"`
}

func NewTransactionResponse(tx domain.Transaction) TransactionResponseDTO {
	return TransactionResponseDTO{
		ID:                tx.ID,
		Type:              tx.Type,
		AmountCents:       tx.AmountCents,
		BalanceAfterCents: tx.BalanceAfterCents,
		PendingAfterCents: tx.PendingAfterCents,
		Reference:         tx.ReferenceID,
		CreatedAt:         tx.CreatedAt.Format(time.RFC3339),
	}
}

type CreateWithdrawalRequestDTO struct {
	AmountCents int64           `json:"amountCents" validate:"required,gt=0" example:"500000"`
	Bank        domain.BankInfo `json:"bankInfo"`
}

type RejectWithdrawalRequestDTO struct {
	Note string `json:"note" validate:"required,max=255" example:"account name does not match"`
}

type WithdrawalResponseDTO struct {
	ID            int64           `json:"id" example:"1"`
	AmountCents   int64           `json:"amountCents" example:"500000"`
	Currency      string          `json:"currency" example:"VND"`
	Status        string          `json:"status" example:"PENDING"`
	BankInfo      domain.BankInfo `json:"bankInfo"`
	PayoutBatchID string          `json:"payoutBatchId,omitempty"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     string          `json:"createdAt" example:"2025-03-10T12:00:00Z"`
	ProcessedAt   string          `json:"processedAt,omitempty"`
	CompletedAt   string          `json:"completedAt,omitempty"`
}

func NewWithdrawalResponse(w *domain.Withdrawal) WithdrawalResponseDTO {
	resp := WithdrawalResponseDTO{
		ID:            w.ID,
		AmountCents:   w.AmountCents,
		Currency:      w.Currency,
		Status:        w.Status,
		BankInfo:      w.BankInfo,
		PayoutBatchID: w.PayoutBatchID,
		Note:          w.Note,
		CreatedAt:     w.CreatedAt.Format(time.RFC3339),
	}
	if w.ProcessedAt != nil {
		resp.ProcessedAt = w.ProcessedAt.Format(time.RFC3339)
	}
	if w.CompletedAt != nil {
		resp.CompletedAt = w.CompletedAt.Format(time.RFC3339)
	}
	return resp
}
