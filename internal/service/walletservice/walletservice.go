package walletservice

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/pg"
)

//go:generate mockgen -source=walletservice.go -destination=mock_walletservice.go -package=walletservice

type Repo interface {
	EnsureBalance(ctx context.Context, userID int64) error
	GetBalance(ctx context.Context, userID int64) (*domain.Balance, error)
	ApplyDelta(ctx context.Context, userID, availableDelta, pendingDelta int64, requireUnfrozen bool) (*domain.Balance, error)
	InsertTransaction(ctx context.Context, tx *domain.Transaction) error
	ListTransactions(ctx context.Context, userID int64) ([]domain.Transaction, error)
	CreditsByReference(ctx context.Context, referenceID string) ([]domain.Transaction, error)
	SumLedger(ctx context.Context, userID int64) (*domain.LedgerTotals, error)
	SetFrozen(ctx context.Context, userID int64, frozen bool, reason string) error
	ListBalanceUsers(ctx context.Context) ([]int64, error)
}

type Service struct {
	repo       Repo
	txManager  pg.TXManager
	feePercent decimal.Decimal
}

func New(repo Repo, txManager pg.TXManager, feePercent decimal.Decimal) *Service {
	return &Service{
		repo:       repo,
		txManager:  txManager,
		feePercent: feePercent,
	}
}

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceFrozen       = errors.New("balance is frozen pending reconciliation")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrLedgerMismatch      = errors.New("ledger does not match balance")
)

const (
	reasonLedgerMismatch = "ledger mismatch"
	reasonClawback       = "refund clawback exceeds available balance"
)

var half = decimal.NewFromFloat(0.5)

// PlatformFee is the platform's cut of amount, rounded half-down to whole cents.
func PlatformFee(amount int64, percent decimal.Decimal) int64 {
	if amount <= 0 || percent.Sign() <= 0 {
		return 0
	}
	raw := decimal.NewFromInt(amount).Mul(percent).Div(decimal.NewFromInt(100))
	return roundHalfDown(raw)
}

func roundHalfDown(d decimal.Decimal) int64 {
	return d.Sub(half).Ceil().IntPart()
}

// move is the single ledger primitive: a guarded balance update and its transaction row,
// atomically. Inside a caller's transaction it joins it.
func (s *Service) move(ctx context.Context, userID int64, txType string, amount, availableDelta, pendingDelta int64, ref string, requireUnfrozen bool) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var entry *domain.Transaction
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		if err := s.repo.EnsureBalance(ctx, userID); err != nil {
			return err
		}
		b, err := s.repo.ApplyDelta(ctx, userID, availableDelta, pendingDelta, requireUnfrozen)
		if err != nil {
			return err
		}
		if b == nil {
			current, err := s.repo.GetBalance(ctx, userID)
			if err != nil {
				return err
			}
			if requireUnfrozen && current != nil && current.Frozen {
				return ErrBalanceFrozen
			}
			return ErrInsufficientBalance
		}
		entry = &domain.Transaction{
			UserID:            userID,
			Type:              txType,
			AmountCents:       amount,
			BalanceAfterCents: b.AvailableCents,
			PendingAfterCents: b.PendingCents,
			ReferenceID:       ref,
		}
		return s.repo.InsertTransaction(ctx, entry)
	})
	if err != nil {
		if !errors.Is(err, ErrInsufficientBalance) && !errors.Is(err, ErrBalanceFrozen) {
			zap.L().Error("ledger movement failed", zap.String("type", txType), zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil, err
	}
	return entry, nil
}

func (s *Service) Credit(ctx context.Context, userID, amount int64, ref string) (*domain.Transaction, error) {
	return s.move(ctx, userID, domain.TxTypeCredit, amount, amount, 0, ref, false)
}

func (s *Service) Debit(ctx context.Context, userID, amount int64, ref string) (*domain.Transaction, error) {
	return s.move(ctx, userID, domain.TxTypeDebit, amount, -amount, 0, ref, false)
}

// Hold reserves amount for a withdrawal by moving it from available to pending.
func (s *Service) Hold(ctx context.Context, userID, amount int64, ref string) (*domain.Transaction, error) {
	return s.move(ctx, userID, domain.TxTypeWithdrawalHold, amount, -amount, amount, ref, true)
}

// Release returns a held amount to available.
func (s *Service) Release(ctx context.Context, userID, amount int64, ref string) (*domain.Transaction, error) {
	return s.move(ctx, userID, domain.TxTypeRefund, amount, amount, -amount, ref, false)
}

// Settle drops a held amount once the payout has gone out.
func (s *Service) Settle(ctx context.Context, userID, amount int64, ref string) (*domain.Transaction, error) {
	return s.move(ctx, userID, domain.TxTypeWithdrawalCompleted, amount, 0, -amount, ref, false)
}

// Earnings computes each instructor's net credit for a paid order, keyed by instructor id.
func (s *Service) Earnings(order *domain.Order) map[int64]int64 {
	gross := make(map[int64]int64)
	for _, item := range order.Items {
		gross[item.InstructorID] += item.NetCents()
	}
	net := make(map[int64]int64, len(gross))
	for instructorID, amount := range gross {
		net[instructorID] = amount - PlatformFee(amount, s.feePercent)
	}
	return net
}

// ProcessOrderEarnings writes one CREDIT per instructor of the order. It runs inside settlement.
func (s *Service) ProcessOrderEarnings(ctx context.Context, order *domain.Order) error {
	earnings := s.Earnings(order)
	for _, instructorID := range sortedKeys(earnings) {
		amount := earnings[instructorID]
		if amount <= 0 {
			continue
		}
		if _, err := s.Credit(ctx, instructorID, amount, order.OrderNumber); err != nil {
			return fmt.Errorf("credit instructor: %w", err)
		}
	}
	return nil
}

// ClawbackRefund debits every instructor credited for the order in proportion to the refunded
// share. A balance that cannot cover its share is frozen instead of going negative.
func (s *Service) ClawbackRefund(ctx context.Context, order *domain.Order, refundID, refundedCents, totalCents int64) error {
	if refundedCents <= 0 || totalCents <= 0 {
		return nil
	}
	credits, err := s.repo.CreditsByReference(ctx, order.OrderNumber)
	if err != nil {
		zap.L().Error("failed to load order credits", zap.Error(err))
		return err
	}
	ref := fmt.Sprintf("%s/refund-%d", order.OrderNumber, refundID)
	for _, credit := range credits {
		share := credit.AmountCents
		if refundedCents < totalCents {
			share = roundHalfDown(decimal.NewFromInt(credit.AmountCents).
				Mul(decimal.NewFromInt(refundedCents)).
				Div(decimal.NewFromInt(totalCents)))
		}
		if share <= 0 {
			continue
		}
		_, err := s.Debit(ctx, credit.UserID, share, ref)
		if errors.Is(err, ErrInsufficientBalance) {
			zap.L().Error("refund clawback shortfall, freezing balance",
				zap.Int64("user_id", credit.UserID), zap.String("order_number", order.OrderNumber), zap.Int64("share_cents", share))
			if err := s.repo.SetFrozen(ctx, credit.UserID, true, reasonClawback); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) GetBalance(ctx context.Context, userID int64) (*domain.Balance, error) {
	b, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		zap.L().Error("failed to get balance", zap.Error(err))
		return nil, err
	}
	if b == nil {
		return &domain.Balance{UserID: userID}, nil
	}
	return b, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, userID)
	if err != nil {
		zap.L().Error("failed to list transactions", zap.Error(err))
		return nil, err
	}
	return txs, nil
}

type AuditReport struct {
	UserID          int64 `json:"userId"`
	StoredAvailable int64 `json:"storedAvailableCents"`
	StoredPending   int64 `json:"storedPendingCents"`
	LedgerAvailable int64 `json:"ledgerAvailableCents"`
	LedgerPending   int64 `json:"ledgerPendingCents"`
	Entries         int64 `json:"entries"`
	Consistent      bool  `json:"consistent"`
	Frozen          bool  `json:"frozen"`
}

// Audit recomputes the balance from the ledger. A mismatch freezes the balance and is never
// corrected automatically.
func (s *Service) Audit(ctx context.Context, userID int64) (*AuditReport, error) {
	b, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		zap.L().Error("failed to get balance", zap.Error(err))
		return nil, err
	}
	if b == nil {
		b = &domain.Balance{UserID: userID}
	}
	totals, err := s.repo.SumLedger(ctx, userID)
	if err != nil {
		zap.L().Error("failed to sum ledger", zap.Error(err))
		return nil, err
	}

	report := &AuditReport{
		UserID:          userID,
		StoredAvailable: b.AvailableCents,
		StoredPending:   b.PendingCents,
		LedgerAvailable: totals.Available,
		LedgerPending:   totals.Pending,
		Entries:         totals.Entries,
		Frozen:          b.Frozen,
	}
	report.Consistent = totals.Available == b.AvailableCents &&
		totals.Pending == b.PendingCents &&
		(totals.LastBalanceAfter == nil || *totals.LastBalanceAfter == b.AvailableCents) &&
		(totals.LastPendingAfter == nil || *totals.LastPendingAfter == b.PendingCents)
	if report.Consistent {
		return report, nil
	}

	zap.L().Error("ledger mismatch, freezing balance",
		zap.Int64("user_id", userID),
		zap.Int64("stored_available", b.AvailableCents), zap.Int64("ledger_available", totals.Available),
		zap.Int64("stored_pending", b.PendingCents), zap.Int64("ledger_pending", totals.Pending))
	if !b.Frozen {
		if err := s.repo.SetFrozen(ctx, userID, true, reasonLedgerMismatch); err != nil {
			return nil, err
		}
		report.Frozen = true
	}
	return report, ErrLedgerMismatch
}

// AuditAll audits every balance and returns the users whose ledger does not match.
func (s *Service) AuditAll(ctx context.Context) ([]int64, error) {
	users, err := s.repo.ListBalanceUsers(ctx)
	if err != nil {
		zap.L().Error("failed to list balances", zap.Error(err))
		return nil, err
	}
	var mismatched []int64
	for _, userID := range users {
		_, err := s.Audit(ctx, userID)
		if errors.Is(err, ErrLedgerMismatch) {
			mismatched = append(mismatched, userID)
			continue
		}
		if err != nil {
			return mismatched, err
		}
	}
	return mismatched, nil
}

// Unfreeze lifts a freeze, but only for a balance that currently audits clean.
func (s *Service) Unfreeze(ctx context.Context, userID int64) error {
	if _, err := s.Audit(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.SetFrozen(ctx, userID, false, ""); err != nil {
		zap.L().Error("failed to unfreeze balance", zap.Error(err))
		return err
	}
	zap.L().Info("balance unfrozen", zap.Int64("user_id", userID))
	return nil
}

func sortedKeys(m map[int64]int64) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
