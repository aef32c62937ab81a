package balancerepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/pg"
)

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) EnsureBalance(ctx context.Context, userID int64) error {
	query := `INSERT INTO instructor_balances (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		zap.L().Error("failed to create user balance", zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) GetBalance(ctx context.Context, userID int64) (*domain.Balance, error) {
	query := `
        SELECT user_id, available_cents, pending_cents, frozen, frozen_reason, updated_at
        FROM instructor_balances
        WHERE user_id = $1
    `
	var b domain.Balance
	err := r.db.QueryRow(ctx, query, userID).Scan(&b.UserID, &b.AvailableCents, &b.PendingCents, &b.Frozen, &b.FrozenReason, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("failed to get user balance", zap.Error(err))
		return nil, err
	}
	return &b, nil
}

// ApplyDelta adds the deltas only if neither side goes negative (and, with requireUnfrozen,
// only on an unfrozen balance). A nil result means the guard rejected the change.
func (r *Repository) ApplyDelta(ctx context.Context, userID, availableDelta, pendingDelta int64, requireUnfrozen bool) (*domain.Balance, error) {
	query := `
        UPDATE instructor_balances
        SET available_cents = available_cents + $1,
            pending_cents = pending_cents + $2,
            updated_at = now()
        WHERE user_id = $3
          AND available_cents + $1 >= 0
          AND pending_cents + $2 >= 0
          AND (NOT $4 OR NOT frozen)
        RETURNING user_id, available_cents, pending_cents, frozen, frozen_reason, updated_at
    `
	var b domain.Balance
	err := r.db.QueryRow(ctx, query, availableDelta, pendingDelta, userID, requireUnfrozen).
		Scan(&b.UserID, &b.AvailableCents, &b.PendingCents, &b.Frozen, &b.FrozenReason, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("failed to update user balance", zap.Error(err))
		return nil, err
	}
	return &b, nil
}

func (r *Repository) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
        INSERT INTO instructor_transactions (user_id, type, amount_cents, balance_after_cents, pending_after_cents, reference_id)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `
	err := r.db.QueryRow(ctx, query, tx.UserID, tx.Type, tx.AmountCents, tx.BalanceAfterCents, tx.PendingAfterCents, tx.ReferenceID).
		Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		zap.L().Error("failed to save ledger entry", zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	query := `
        SELECT id, user_id, type, amount_cents, balance_after_cents, pending_after_cents, reference_id, created_at
        FROM instructor_transactions
        WHERE user_id = $1
        ORDER BY id DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		zap.L().Error("failed to list ledger entries", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.AmountCents, &t.BalanceAfterCents, &t.PendingAfterCents,
			&t.ReferenceID, &t.CreatedAt); err != nil {
			zap.L().Error("failed to scan ledger entry", zap.Error(err))
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// CreditsByReference returns the CREDIT entries written for one reference (an order number).
func (r *Repository) CreditsByReference(ctx context.Context, referenceID string) ([]domain.Transaction, error) {
	query := `
        SELECT id, user_id, type, amount_cents, balance_after_cents, pending_after_cents, reference_id, created_at
        FROM instructor_transactions
        WHERE reference_id = $1 AND type = $2
        ORDER BY user_id
    `
	rows, err := r.db.Query(ctx, query, referenceID, domain.TxTypeCredit)
	if err != nil {
		zap.L().Error("failed to list credits", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.AmountCents, &t.BalanceAfterCents, &t.PendingAfterCents,
			&t.ReferenceID, &t.CreatedAt); err != nil {
			zap.L().Error("failed to scan ledger entry", zap.Error(err))
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *Repository) SumLedger(ctx context.Context, userID int64) (*domain.LedgerTotals, error) {
	query := `
        SELECT
            COALESCE(SUM(CASE type
                WHEN 'CREDIT' THEN amount_cents
                WHEN 'REFUND' THEN amount_cents
                WHEN 'DEBIT' THEN -amount_cents
                WHEN 'WITHDRAWAL_HOLD' THEN -amount_cents
                ELSE 0 END), 0),
            COALESCE(SUM(CASE type
                WHEN 'WITHDRAWAL_HOLD' THEN amount_cents
                WHEN 'REFUND' THEN -amount_cents
                WHEN 'WITHDRAWAL_COMPLETED' THEN -amount_cents
                ELSE 0 END), 0),
            COUNT(*),
            (SELECT balance_after_cents FROM instructor_transactions WHERE user_id = $1 ORDER BY id DESC LIMIT 1),
            (SELECT pending_after_cents FROM instructor_transactions WHERE user_id = $1 ORDER BY id DESC LIMIT 1)
        FROM instructor_transactions
        WHERE user_id = $1
    `
	var t domain.LedgerTotals
	err := r.db.QueryRow(ctx, query, userID).Scan(&t.Available, &t.Pending, &t.Entries, &t.LastBalanceAfter, &t.LastPendingAfter)
	if err != nil {
		zap.L().Error("failed to sum ledger", zap.Error(err))
		return nil, err
	}
	return &t, nil
}

func (r *Repository) SetFrozen(ctx context.Context, userID int64, frozen bool, reason string) error {
	query := `UPDATE instructor_balances SET frozen = $1, frozen_reason = $2, updated_at = now() WHERE user_id = $3`
	if _, err := r.db.Exec(ctx, query, frozen, reason, userID); err != nil {
		zap.L().Error("failed to set balance freeze", zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) ListBalanceUsers(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM instructor_balances ORDER BY user_id`)
	if err != nil {
		zap.L().Error("failed to list balances", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			zap.L().Error("failed to scan balance user", zap.Error(err))
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
