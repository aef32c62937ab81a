package eventrepo

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
	return &Repository{db: db}
}

// Record stores the idempotency record of a webhook. It reports false when
// (provider, idempotency_key) has been seen before.
func (r *Repository) Record(ctx context.Context, ev *domain.WebhookEvent) (bool, error) {
	query := `
        INSERT INTO webhook_events (provider, idempotency_key, event_type, payload)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (provider, idempotency_key) DO NOTHING
        RETURNING id, received_at
    `
	var payload any
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}
	err := r.db.QueryRow(ctx, query, ev.Provider, ev.IdempotencyKey, ev.EventType, payload).Scan(&ev.ID, &ev.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		zap.L().Error("can't save webhook event", zap.Error(err))
		return false, err
	}
	return true, nil
}

func (r *Repository) SetResult(ctx context.Context, id int64, result string) error {
	if _, err := r.db.Exec(ctx, `UPDATE webhook_events SET result = $1 WHERE id = $2`, result, id); err != nil {
		zap.L().Error("can't save webhook result", zap.Error(err))
		return err
	}
	return nil
}
