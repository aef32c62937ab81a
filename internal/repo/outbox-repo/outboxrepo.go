package outboxrepo

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
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

// Enqueue writes a message in the caller's transaction. An empty key gets a random one;
// a repeated key is a no-op.
func (r *Repository) Enqueue(ctx context.Context, topic, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("can't encode outbox payload", zap.String("topic", topic), zap.Error(err))
		return err
	}
	if key == "" {
		key = uuid.NewString()
	}
	query := `
        INSERT INTO outbox_messages (message_key, topic, payload)
        VALUES ($1, $2, $3)
        ON CONFLICT (message_key) DO NOTHING
    `
	if _, err := r.db.Exec(ctx, query, key, topic, string(body)); err != nil {
		zap.L().Error("can't save outbox message", zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) FetchPending(ctx context.Context, limit uint32) ([]domain.OutboxMessage, error) {
	query := `
        SELECT id, message_key, topic, payload, status, retry_count, last_error, created_at
        FROM outbox_messages
        WHERE status = $1
        ORDER BY id
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, domain.OutboxStatusPending, limit)
	if err != nil {
		zap.L().Error("can't fetch outbox messages", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.MessageKey, &m.Topic, &m.Payload, &m.Status, &m.RetryCount, &m.LastError, &m.CreatedAt); err != nil {
			zap.L().Error("can't scan outbox message", zap.Error(err))
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	query := `UPDATE outbox_messages SET status = $1, last_error = '' WHERE id = $2 AND status = $3`
	if _, err := r.db.Exec(ctx, query, domain.OutboxStatusSent, id, domain.OutboxStatusPending); err != nil {
		zap.L().Error("can't mark outbox message sent", zap.Error(err))
		return err
	}
	return nil
}

// MarkRetry bumps retry_count and parks the message as FAILED once maxRetries is reached.
// It returns the resulting status.
func (r *Repository) MarkRetry(ctx context.Context, id int64, lastErr string, maxRetries int) (string, error) {
	query := `
        UPDATE outbox_messages
        SET retry_count = retry_count + 1,
            last_error = $1,
            status = CASE WHEN retry_count + 1 >= $2 THEN 'FAILED' ELSE status END
        WHERE id = $3 AND status = 'PENDING'
        RETURNING status
    `
	var status string
	if err := r.db.QueryRow(ctx, query, lastErr, maxRetries, id).Scan(&status); err != nil {
		zap.L().Error("can't record outbox failure", zap.Error(err))
		return "", err
	}
	return status, nil
}
