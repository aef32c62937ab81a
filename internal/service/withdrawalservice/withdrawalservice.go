package withdrawalservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/payout"
	"github.com/GlebRadaev/coursepay/internal/pg"
	"github.com/GlebRadaev/coursepay/pkg/logger"
)

//go:generate mockgen -source=withdrawalservice.go -destination=mock_withdrawalservice.go -package=withdrawalservice

type Repo interface {
	CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) (*domain.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error)
	FindByPayout(ctx context.Context, provider, batchID string) (*domain.Withdrawal, error)
	UpdateStatus(ctx context.Context, id int64, from []string, to, note string, at time.Time) (bool, error)
	Approve(ctx context.Context, id int64, provider, batchID string) (bool, error)
	MarkProcessing(ctx context.Context, id int64, itemID string, at time.Time) (bool, error)
	GetWithdrawalsByUserID(ctx context.Context, userID int64) ([]domain.Withdrawal, error)
	ListByStatus(ctx context.Context, status string) ([]domain.Withdrawal, error)
}

type Wallet interface {
	Hold(ctx context.Context, userID, amount int64, ref string) (*domain.Transaction, error)
	Release(ctx context.Context, userID, amount int64, ref string) (*domain.Transaction, error)
	Settle(ctx context.Context, userID, amount int64, ref string) (*domain.Transaction, error)
}

type EventRepo interface {
	Record(ctx context.Context, ev *domain.WebhookEvent) (bool, error)
	SetResult(ctx context.Context, id int64, result string) error
}

type Outbox interface {
	Enqueue(ctx context.Context, topic, key string, payload any) error
}

type Payouts interface {
	Name() string
	Send(ctx context.Context, req *payout.Request) (*payout.Result, error)
}

type Service struct {
	repo      Repo
	wallet    Wallet
	events    EventRepo
	outbox    Outbox
	payouts   Payouts
	txManager pg.TXManager
	minAmount int64
	currency  string
	now       func() time.Time
}

func New(repo Repo, wallet Wallet, events EventRepo, outbox Outbox, payouts Payouts, txManager pg.TXManager, minAmount int64, currency string) *Service {
	return &Service{
		repo:      repo,
		wallet:    wallet,
		events:    events,
		outbox:    outbox,
		payouts:   payouts,
		txManager: txManager,
		minAmount: minAmount,
		currency:  currency,
		now:       time.Now,
	}
}

var (
	ErrBelowMinimum      = errors.New("withdrawal amount is below the minimum")
	ErrNotFound          = errors.New("withdrawal not found")
	ErrInvalidTransition = errors.New("withdrawal cannot move to the requested status")
	ErrPayoutUnavailable = errors.New("payout provider unavailable, withdrawal stays approved")
)

func holdRef(id int64) string {
	return fmt.Sprintf("withdrawal:%d", id)
}

func (s *Service) notify(ctx context.Context, w *domain.Withdrawal) error {
	return s.outbox.Enqueue(ctx, domain.TopicWithdrawalUpdated, fmt.Sprintf("withdrawal-%d-%s", w.ID, w.Status), domain.WithdrawalUpdatedMessage{
		WithdrawalID: w.ID,
		UserID:       w.UserID,
		Status:       w.Status,
		AmountCents:  w.AmountCents,
		Currency:     w.Currency,
		PayoutItemID: w.PayoutItemID,
		ProcessedAt:  w.ProcessedAt,
	})
}

// Create reserves amount from the instructor's available balance and records a PENDING request.
func (s *Service) Create(ctx context.Context, userID, amount int64, bank domain.BankInfo) (*domain.Withdrawal, error) {
	if amount < s.minAmount {
		return nil, ErrBelowMinimum
	}
	var created *domain.Withdrawal
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		w, err := s.repo.CreateWithdrawal(ctx, &domain.Withdrawal{
			UserID:      userID,
			AmountCents: amount,
			Currency:    s.currency,
			Status:      domain.WithdrawalStatusPending,
			BankInfo:    bank,
		})
		if err != nil {
			return err
		}
		if _, err := s.wallet.Hold(ctx, userID, amount, holdRef(w.ID)); err != nil {
			return err
		}
		created = w
		return s.notify(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("withdrawal requested", zap.Int64("withdrawal_id", created.ID), zap.Int64("user_id", userID), zap.Int64("amount_cents", amount))
	return created, nil
}

// Cancel is the instructor's undo while the request is still PENDING.
func (s *Service) Cancel(ctx context.Context, userID, id int64) (*domain.Withdrawal, error) {
	return s.release(ctx, id, domain.WithdrawalStatusCancelled, "", func(w *domain.Withdrawal) bool {
		return w.UserID == userID
	})
}

func (s *Service) Reject(ctx context.Context, id int64, note string) (*domain.Withdrawal, error) {
	return s.release(ctx, id, domain.WithdrawalStatusRejected, note, func(*domain.Withdrawal) bool { return true })
}

// release moves a PENDING withdrawal to a terminal status and returns the held amount.
func (s *Service) release(ctx context.Context, id int64, to, note string, visible func(*domain.Withdrawal) bool) (*domain.Withdrawal, error) {
	var out *domain.Withdrawal
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		w, err := s.repo.GetWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w == nil || !visible(w) {
			return ErrNotFound
		}
		ok, err := s.repo.UpdateStatus(ctx, id, []string{domain.WithdrawalStatusPending}, to, note, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTransition
		}
		if _, err := s.wallet.Release(ctx, w.UserID, w.AmountCents, holdRef(w.ID)); err != nil {
			return err
		}
		w.Status = to
		if note != "" {
			w.Note = note
		}
		out = w
		return s.notify(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("withdrawal closed", zap.Int64("withdrawal_id", id), zap.String("status", to))
	return out, nil
}

// Approve hands the withdrawal to the payout rail. Calling it again on an APPROVED request
// retries the send with the same batch id.
func (s *Service) Approve(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	var w *domain.Withdrawal
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		var err error
		w, err = s.repo.GetWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w == nil {
			return ErrNotFound
		}
		switch w.Status {
		case domain.WithdrawalStatusApproved:
			return nil
		case domain.WithdrawalStatusPending:
		default:
			return ErrInvalidTransition
		}
		batchID := payout.BatchID(w.ID)
		ok, err := s.repo.Approve(ctx, id, s.payouts.Name(), batchID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTransition
		}
		w.Status = domain.WithdrawalStatusApproved
		w.PayoutProvider = s.payouts.Name()
		w.PayoutBatchID = batchID
		return s.notify(ctx, w)
	})
	if err != nil {
		return nil, err
	}

	res, err := s.payouts.Send(ctx, &payout.Request{
		BatchID:      payout.BatchID(w.ID),
		WithdrawalID: w.ID,
		UserID:       w.UserID,
		AmountCents:  w.AmountCents,
		Currency:     w.Currency,
		Bank:         w.BankInfo,
		Note:         fmt.Sprintf("Withdrawal #%d", w.ID),
	})
	if err != nil {
		zap.L().Error("payout send failed", zap.Int64("withdrawal_id", w.ID), zap.Error(err))
		return w, fmt.Errorf("%w: %v", ErrPayoutUnavailable, err)
	}

	err = s.txManager.Begin(ctx, func(ctx context.Context) error {
		at := s.now()
		ok, err := s.repo.MarkProcessing(ctx, w.ID, res.ItemID, at)
		if err != nil {
			return err
		}
		if !ok {
			// the payout webhook got here first
			current, err := s.repo.GetWithdrawal(ctx, w.ID)
			if err != nil {
				return err
			}
			if current != nil {
				w = current
			}
			return nil
		}
		w.Status = domain.WithdrawalStatusProcessing
		w.PayoutItemID = res.ItemID
		w.ProcessedAt = &at
		return s.notify(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("withdrawal sent to payout", zap.Int64("withdrawal_id", w.ID), zap.String("item_id", res.ItemID))
	return w, nil
}

// HandlePayoutEvent finalizes a withdrawal from a verified payout notification.
func (s *Service) HandlePayoutEvent(ctx context.Context, ev *domain.PayoutEvent) (string, error) {
	var result string
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		rec := &domain.WebhookEvent{
			Provider:       "payout:" + ev.Provider,
			IdempotencyKey: ev.IdempotencyKey(),
			EventType:      ev.Outcome,
			Payload:        ev.Raw,
		}
		fresh, err := s.events.Record(ctx, rec)
		if err != nil {
			return err
		}
		if !fresh {
			result = domain.ResultDuplicate
			return nil
		}
		result, err = s.applyPayout(ctx, ev)
		if err != nil {
			return err
		}
		return s.events.SetResult(ctx, rec.ID, result)
	})
	if err != nil {
		zap.L().Error("failed to apply payout event", zap.String("batch_id", ev.BatchID), zap.Error(err))
		return "", err
	}
	zap.L().Info("payout event handled", zap.String("batch_id", ev.BatchID), zap.String("outcome", ev.Outcome), zap.String("result", result))
	return result, nil
}

func (s *Service) applyPayout(ctx context.Context, ev *domain.PayoutEvent) (string, error) {
	w, err := s.repo.FindByPayout(ctx, ev.Provider, ev.BatchID)
	if err != nil {
		return "", err
	}
	if w == nil {
		logger.Security("payout event for unknown batch", zap.String("provider", ev.Provider), zap.String("batch_id", ev.BatchID))
		return domain.ResultRejected, nil
	}

	now := s.now()
	switch ev.Outcome {
	case domain.PayoutOutcomeSucceeded:
		if w.Status == domain.WithdrawalStatusApproved {
			ok, err := s.repo.MarkProcessing(ctx, w.ID, ev.ItemID, now)
			if err != nil {
				return "", err
			}
			if ok {
				w.Status = domain.WithdrawalStatusProcessing
				w.PayoutItemID = ev.ItemID
				w.ProcessedAt = &now
			} else {
				// Approve recorded the send in the meantime
				current, err := s.repo.GetWithdrawal(ctx, w.ID)
				if err != nil {
					return "", err
				}
				if current == nil {
					return domain.ResultRejected, nil
				}
				w = current
			}
		}
		if w.Status != domain.WithdrawalStatusProcessing {
			return domain.ResultDuplicate, nil
		}
		ok, err := s.repo.UpdateStatus(ctx, w.ID, []string{domain.WithdrawalStatusProcessing}, domain.WithdrawalStatusCompleted, "", now)
		if err != nil {
			return "", err
		}
		if !ok {
			return domain.ResultDuplicate, nil
		}
		if _, err := s.wallet.Settle(ctx, w.UserID, w.AmountCents, holdRef(w.ID)); err != nil {
			return "", err
		}
		w.Status = domain.WithdrawalStatusCompleted
	case domain.PayoutOutcomeFailed:
		if !domain.CanTransitionWithdrawal(w.Status, domain.WithdrawalStatusFailed) {
			return domain.ResultDuplicate, nil
		}
		ok, err := s.repo.UpdateStatus(ctx, w.ID, domain.WithdrawalSourcesOf(domain.WithdrawalStatusFailed), domain.WithdrawalStatusFailed, ev.Reason, now)
		if err != nil {
			return "", err
		}
		if !ok {
			return domain.ResultDuplicate, nil
		}
		if _, err := s.wallet.Release(ctx, w.UserID, w.AmountCents, holdRef(w.ID)); err != nil {
			return "", err
		}
		w.Status = domain.WithdrawalStatusFailed
	default:
		return domain.ResultIgnored, nil
	}
	if err := s.notify(ctx, w); err != nil {
		return "", err
	}
	return domain.ResultApplied, nil
}

func (s *Service) List(ctx context.Context, userID int64) ([]domain.Withdrawal, error) {
	ws, err := s.repo.GetWithdrawalsByUserID(ctx, userID)
	if err != nil {
		zap.L().Error("failed to list withdrawals", zap.Error(err))
		return nil, err
	}
	return ws, nil
}

func (s *Service) Get(ctx context.Context, userID, id int64) (*domain.Withdrawal, error) {
	w, err := s.repo.GetWithdrawal(ctx, id)
	if err != nil {
		zap.L().Error("failed to get withdrawal", zap.Error(err))
		return nil, err
	}
	if w == nil || w.UserID != userID {
		return nil, ErrNotFound
	}
	return w, nil
}

func (s *Service) ListPending(ctx context.Context) ([]domain.Withdrawal, error) {
	ws, err := s.repo.ListByStatus(ctx, domain.WithdrawalStatusPending)
	if err != nil {
		zap.L().Error("failed to list pending withdrawals", zap.Error(err))
		return nil, err
	}
	return ws, nil
}
