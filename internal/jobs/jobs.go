package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/config"
)

//go:generate mockgen -source=jobs.go -destination=mock_jobs.go -package=jobs

const expireSchedule = "0 * * * * *"

type Auditor interface {
	AuditAll(ctx context.Context) ([]int64, error)
}

type Expirer interface {
	ExpireStaleAttempts(ctx context.Context, ttl time.Duration) (int64, error)
}

// Manager runs the periodic maintenance jobs.
type Manager struct {
	cron       *cron.Cron
	auditor    Auditor
	expirer    Expirer
	auditSpec  string
	attemptTTL time.Duration
}

func New(cfg *config.Config, auditor Auditor, expirer Expirer) *Manager {
	return &Manager{
		cron:       cron.New(cron.WithSeconds()),
		auditor:    auditor,
		expirer:    expirer,
		auditSpec:  cfg.Business.LedgerAuditSchedule,
		attemptTTL: cfg.Business.PaymentAttemptTTL,
	}
}

// Start registers the jobs and starts the scheduler. Jobs stop when ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.cron.AddFunc(m.auditSpec, func() { m.run(ctx, "ledger_audit", m.AuditLedger) }); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(expireSchedule, func() { m.run(ctx, "expire_payment_attempts", m.ExpireAttempts) }); err != nil {
		return err
	}
	m.cron.Start()
	zap.L().Info("cron jobs started", zap.String("ledger_audit", m.auditSpec))
	return nil
}

// Stop waits for running jobs to finish.
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
	zap.L().Info("cron jobs stopped")
}

func (m *Manager) run(ctx context.Context, name string, job func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	if err := job(ctx); err != nil {
		zap.L().Error("cron job failed", zap.String("job", name), zap.Error(err))
		return
	}
	zap.L().Debug("cron job done", zap.String("job", name), zap.Duration("took", time.Since(started)))
}

func (m *Manager) AuditLedger(ctx context.Context) error {
	mismatched, err := m.auditor.AuditAll(ctx)
	if err != nil {
		return err
	}
	if len(mismatched) > 0 {
		zap.L().Error("ledger audit froze balances", zap.Int64s("user_ids", mismatched))
	}
	return nil
}

func (m *Manager) ExpireAttempts(ctx context.Context) error {
	_, err := m.expirer.ExpireStaleAttempts(ctx, m.attemptTTL)
	return err
}
