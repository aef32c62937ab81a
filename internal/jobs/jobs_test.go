package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/GlebRadaev/coursepay/internal/config"
)

func NewMock(t *testing.T, auditSpec string) (*Manager, *MockAuditor, *MockExpirer) {
	ctrl := gomock.NewController(t)
	auditor := NewMockAuditor(ctrl)
	expirer := NewMockExpirer(ctrl)
	cfg := &config.Config{Business: config.BusinessConfig{LedgerAuditSchedule: auditSpec, PaymentAttemptTTL: 30 * time.Minute}}
	return New(cfg, auditor, expirer), auditor, expirer
}

func TestManager_AuditLedger(t *testing.T) {
	m, auditor, _ := NewMock(t, "0 */10 * * * *")
	auditor.EXPECT().AuditAll(gomock.Any()).Return([]int64{3}, nil)
	assert.NoError(t, m.AuditLedger(context.Background()))

	auditor.EXPECT().AuditAll(gomock.Any()).Return(nil, errors.New("db down"))
	assert.Error(t, m.AuditLedger(context.Background()))
}

func TestManager_ExpireAttempts(t *testing.T) {
	m, _, expirer := NewMock(t, "0 */10 * * * *")
	expirer.EXPECT().ExpireStaleAttempts(gomock.Any(), 30*time.Minute).Return(int64(2), nil)
	assert.NoError(t, m.ExpireAttempts(context.Background()))
}

func TestManager_Start(t *testing.T) {
	t.Run("valid schedule", func(t *testing.T) {
		m, _, _ := NewMock(t, "0 */10 * * * *")
		require.NoError(t, m.Start(context.Background()))
		assert.Len(t, m.cron.Entries(), 2)
		m.Stop()
	})

	t.Run("invalid schedule", func(t *testing.T) {
		m, _, _ := NewMock(t, "every now and then")
		assert.Error(t, m.Start(context.Background()))
	})
}

func TestManager_runSkipsAfterShutdown(t *testing.T) {
	m, _, _ := NewMock(t, "0 */10 * * * *")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.run(ctx, "noop", func(context.Context) error {
		t.Fatal("job ran after shutdown")
		return nil
	})
}
