package paymentrepo

import (
	"context"
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
	return &Repository{db: db}
}

const paymentColumns = `id, order_id, provider, provider_txn, provider_ref, attempt_ref, amount_cents, currency, status,
        checkout_url, created_at, confirmed_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Provider, &p.ProviderTxn, &p.ProviderRef, &p.AttemptRef, &p.AmountCents,
		&p.Currency, &p.Status, &p.CheckoutURL, &p.CreatedAt, &p.ConfirmedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) NextAttemptRef(ctx context.Context) (int64, error) {
	var ref int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('payment_attempt_seq')`).Scan(&ref); err != nil {
		zap.L().Error("can't allocate payment attempt ref", zap.Error(err))
		return 0, err
	}
	return ref, nil
}

// Insert stores a payment attempt unless (provider, provider_txn) is already known.
func (r *Repository) Insert(ctx context.Context, p *domain.Payment) (bool, error) {
	query := `
        INSERT INTO payments (order_id, provider, provider_txn, provider_ref, attempt_ref, amount_cents, currency, status, checkout_url, raw_payload, confirmed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (provider, provider_txn) DO NOTHING
        RETURNING id, created_at
    `
	var raw any
	if len(p.RawPayload) > 0 {
		raw = string(p.RawPayload)
	}
	err := r.db.QueryRow(ctx, query, p.OrderID, p.Provider, p.ProviderTxn, p.ProviderRef, p.AttemptRef, p.AmountCents,
		p.Currency, p.Status, p.CheckoutURL, raw, p.ConfirmedAt).Scan(&p.ID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		zap.L().Error("can't save payment", zap.Error(err))
		return false, err
	}
	return true, nil
}

func (r *Repository) GetByProviderTxn(ctx context.Context, provider, txn string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider = $1 AND provider_txn = $2 FOR UPDATE`
	p, err := scanPayment(r.db.QueryRow(ctx, query, provider, txn))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("can't find payment", zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("can't find payment", zap.Error(err))
		return nil, err
	}
	return p, nil
}

// GetOpenAttempt returns the newest PENDING attempt of an order with a provider, if any.
func (r *Repository) GetOpenAttempt(ctx context.Context, orderID int64, provider string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
        WHERE order_id = $1 AND provider = $2 AND status = $3
        ORDER BY id DESC LIMIT 1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, orderID, provider, domain.PaymentStatusPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("can't find open payment attempt", zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (r *Repository) GetSucceededByOrder(ctx context.Context, orderID int64) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 AND status = $2`
	p, err := scanPayment(r.db.QueryRow(ctx, query, orderID, domain.PaymentStatusSucceeded))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("can't find settled payment", zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		zap.L().Error("can't list payments", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			zap.L().Error("can't scan payment row", zap.Error(err))
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// UpdateStatus moves a payment to status when its current status is one of from.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from []string, to, providerRef string, confirmedAt *time.Time, raw []byte) (bool, error) {
	query := `
        UPDATE payments
        SET status = $1,
            provider_ref = COALESCE(NULLIF($2, ''), provider_ref),
            confirmed_at = COALESCE($3, confirmed_at),
            raw_payload = COALESCE($4::jsonb, raw_payload)
        WHERE id = $5 AND status = ANY($6)
    `
	var rawArg any
	if len(raw) > 0 {
		rawArg = string(raw)
	}
	tag, err := r.db.Exec(ctx, query, to, providerRef, confirmedAt, rawArg, id, from)
	if err != nil {
		zap.L().Error("can't update payment status", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireStale cancels PENDING attempts created before the cutoff.
func (r *Repository) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	query := `UPDATE payments SET status = $1 WHERE status = $2 AND created_at < $3`
	tag, err := r.db.Exec(ctx, query, domain.PaymentStatusCancelled, domain.PaymentStatusPending, before)
	if err != nil {
		zap.L().Error("can't expire payment attempts", zap.Error(err))
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const refundColumns = `id, payment_id, order_id, amount_cents, status, reason, provider_ref, created_at, completed_at`

func scanRefund(row pgx.Row) (*domain.Refund, error) {
	var rf domain.Refund
	err := row.Scan(&rf.ID, &rf.PaymentID, &rf.OrderID, &rf.AmountCents, &rf.Status, &rf.Reason, &rf.ProviderRef,
		&rf.CreatedAt, &rf.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &rf, nil
}

func (r *Repository) InsertRefund(ctx context.Context, rf *domain.Refund) error {
	query := `
        INSERT INTO refunds (payment_id, order_id, amount_cents, status, reason)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at
    `
	err := r.db.QueryRow(ctx, query, rf.PaymentID, rf.OrderID, rf.AmountCents, rf.Status, rf.Reason).Scan(&rf.ID, &rf.CreatedAt)
	if err != nil {
		zap.L().Error("can't save refund", zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) GetRefund(ctx context.Context, id int64) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1 FOR UPDATE`
	return r.getRefund(ctx, query, id)
}

func (r *Repository) GetRefundByProviderRef(ctx context.Context, providerRef string) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE provider_ref = $1 FOR UPDATE`
	return r.getRefund(ctx, query, providerRef)
}

func (r *Repository) getRefund(ctx context.Context, query string, arg any) (*domain.Refund, error) {
	rf, err := scanRefund(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("can't find refund", zap.Error(err))
		return nil, err
	}
	return rf, nil
}

func (r *Repository) SetRefundProviderRef(ctx context.Context, id int64, providerRef string) error {
	_, err := r.db.Exec(ctx, `UPDATE refunds SET provider_ref = $1 WHERE id = $2`, providerRef, id)
	if err != nil {
		zap.L().Error("can't save refund provider ref", zap.Error(err))
	}
	return err
}

func (r *Repository) UpdateRefundStatus(ctx context.Context, id int64, from, to string, at time.Time) (bool, error) {
	query := `
        UPDATE refunds
        SET status = $1, completed_at = CASE WHEN $1 = 'COMPLETED' THEN $2::timestamptz ELSE completed_at END
        WHERE id = $3 AND status = $4
    `
	tag, err := r.db.Exec(ctx, query, to, at, id, from)
	if err != nil {
		zap.L().Error("can't update refund status", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RefundedAmounts returns the sums of non-failed and of completed refunds of a payment.
func (r *Repository) RefundedAmounts(ctx context.Context, paymentID int64) (active, completed int64, err error) {
	query := `
        SELECT COALESCE(SUM(amount_cents) FILTER (WHERE status <> 'FAILED'), 0),
               COALESCE(SUM(amount_cents) FILTER (WHERE status = 'COMPLETED'), 0)
        FROM refunds
        WHERE payment_id = $1
    `
	if err = r.db.QueryRow(ctx, query, paymentID).Scan(&active, &completed); err != nil {
		zap.L().Error("can't sum refunds", zap.Error(err))
		return 0, 0, err
	}
	return active, completed, nil
}
