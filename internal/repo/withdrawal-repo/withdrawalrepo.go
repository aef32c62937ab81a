package withdrawalrepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

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

const withdrawalColumns = `id, user_id, amount_cents, currency, status, bank_info, payout_provider, payout_batch_id,
        payout_item_id, note, created_at, processed_at, completed_at`

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var (
		wd   domain.Withdrawal
		bank []byte
	)
	err := row.Scan(&wd.ID, &wd.UserID, &wd.AmountCents, &wd.Currency, &wd.Status, &bank, &wd.PayoutProvider,
		&wd.PayoutBatchID, &wd.PayoutItemID, &wd.Note, &wd.CreatedAt, &wd.ProcessedAt, &wd.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(bank) > 0 {
		if err := json.Unmarshal(bank, &wd.BankInfo); err != nil {
			return nil, err
		}
	}
	return &wd, nil
}

func (r *Repository) CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) (*domain.Withdrawal, error) {
	bank, err := json.Marshal(withdrawal.BankInfo)
	if err != nil {
		return nil, err
	}
	query := `
        INSERT INTO withdrawal_requests (user_id, amount_cents, currency, status, bank_info)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at
    `
	err = r.db.QueryRow(ctx, query, withdrawal.UserID, withdrawal.AmountCents, withdrawal.Currency, withdrawal.Status, string(bank)).
		Scan(&withdrawal.ID, &withdrawal.CreatedAt)
	if err != nil {
		zap.L().Error("can't save withdrawal", zap.Error(err))
		return nil, err
	}
	return withdrawal, nil
}

// GetWithdrawal locks the row for the caller's transaction.
func (r *Repository) GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, id)
}

func (r *Repository) FindByPayout(ctx context.Context, provider, batchID string) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE payout_provider = $1 AND payout_batch_id = $2 FOR UPDATE`
	return r.get(ctx, query, provider, batchID)
}

func (r *Repository) get(ctx context.Context, query string, args ...any) (*domain.Withdrawal, error) {
	wd, err := scanWithdrawal(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("failed to fetch withdrawal", zap.Error(err))
		return nil, err
	}
	return wd, nil
}

// UpdateStatus moves the withdrawal to status when it is currently in one of from.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from []string, to, note string, at time.Time) (bool, error) {
	query := `
        UPDATE withdrawal_requests
        SET status = $1,
            note = CASE WHEN $2 = '' THEN note ELSE $2 END,
            completed_at = CASE WHEN $1 = 'COMPLETED' THEN $3::timestamptz ELSE completed_at END
        WHERE id = $4 AND status = ANY($5)
    `
	tag, err := r.db.Exec(ctx, query, to, note, at, id, from)
	if err != nil {
		zap.L().Error("failed to update withdrawal status", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Approve records the payout rail and the deterministic batch id alongside PENDING->APPROVED.
func (r *Repository) Approve(ctx context.Context, id int64, provider, batchID string) (bool, error) {
	query := `
        UPDATE withdrawal_requests
        SET status = $1, payout_provider = $2, payout_batch_id = $3
        WHERE id = $4 AND status = $5
    `
	tag, err := r.db.Exec(ctx, query, domain.WithdrawalStatusApproved, provider, batchID, id, domain.WithdrawalStatusPending)
	if err != nil {
		zap.L().Error("failed to approve withdrawal", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkProcessing(ctx context.Context, id int64, itemID string, at time.Time) (bool, error) {
	query := `
        UPDATE withdrawal_requests
        SET status = $1, payout_item_id = $2, processed_at = $3
        WHERE id = $4 AND status = $5
    `
	tag, err := r.db.Exec(ctx, query, domain.WithdrawalStatusProcessing, itemID, at, id, domain.WithdrawalStatusApproved)
	if err != nil {
		zap.L().Error("failed to mark withdrawal processing", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) GetWithdrawalsByUserID(ctx context.Context, userID int64) ([]domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *Repository) ListByStatus(ctx context.Context, status string) ([]domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE status = $1 ORDER BY created_at`
	return r.list(ctx, query, status)
}

func (r *Repository) list(ctx context.Context, query string, arg any) ([]domain.Withdrawal, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		zap.L().Error("failed to fetch withdrawals", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var withdrawals []domain.Withdrawal
	for rows.Next() {
		wd, err := scanWithdrawal(rows)
		if err != nil {
			zap.L().Error("failed to scan withdrawal row", zap.Error(err))
			return nil, err
		}
		withdrawals = append(withdrawals, *wd)
	}

	return withdrawals, rows.Err()
}
