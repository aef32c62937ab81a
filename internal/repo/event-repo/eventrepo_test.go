package eventrepo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlebRadaev/coursepay/internal/domain"
)

func NewMock(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)
	return New(mockDB), mockDB
}

func TestRepository_Record(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	tests := []struct {
		name      string
		mockSetup func()
		want      bool
		expectErr bool
	}{
		{
			name: "first delivery",
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (provider, idempotency_key) DO NOTHING")).
					WithArgs("stripe", "evt_1", "checkout.session.completed", `{"id":"evt_1"}`).
					WillReturnRows(pgxmock.NewRows([]string{"id", "received_at"}).AddRow(int64(9), now))
			},
			want: true,
		},
		{
			name: "redelivery",
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO webhook_events")).
					WithArgs("stripe", "evt_1", "checkout.session.completed", `{"id":"evt_1"}`).
					WillReturnError(pgx.ErrNoRows)
			},
			want: false,
		},
		{
			name: "database error",
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO webhook_events")).
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			ev := &domain.WebhookEvent{Provider: "stripe", IdempotencyKey: "evt_1", EventType: "checkout.session.completed", Payload: []byte(`{"id":"evt_1"}`)}
			got, err := repo.Record(context.Background(), ev)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepository_SetResult(t *testing.T) {
	repo, mock := NewMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE webhook_events SET result = $1 WHERE id = $2")).
		WithArgs("applied", int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.SetResult(context.Background(), 9, "applied"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
