package paymentservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/internal/service/voucherservice"
	"github.com/GlebRadaev/coursepay/pkg/logger"
)

// Ingest verifies a provider webhook and reconciles it.
func (s *Service) Ingest(ctx context.Context, provider string, body []byte, headers http.Header) (string, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return "", err
	}
	ev, err := gw.VerifyAndParse(ctx, body, headers)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			logger.Security("payment webhook rejected", zap.String("provider", provider), zap.Error(err))
		}
		return "", err
	}
	return s.Apply(ctx, ev)
}

// Apply reconciles one verified provider event. Everything it changes, including the
// idempotency record, commits or rolls back together.
func (s *Service) Apply(ctx context.Context, ev *domain.PaymentEvent) (string, error) {
	var result string
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		rec := &domain.WebhookEvent{
			Provider:       ev.Provider,
			IdempotencyKey: ev.IdempotencyKey(),
			EventType:      ev.EventType,
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

		switch ev.Outcome {
		case domain.OutcomeSucceeded:
			result, err = s.applySucceeded(ctx, ev)
		case domain.OutcomeFailed:
			result, err = s.applyClosed(ctx, ev, domain.PaymentStatusFailed)
		case domain.OutcomeExpired:
			result, err = s.applyClosed(ctx, ev, domain.PaymentStatusCancelled)
		case domain.OutcomeApproved:
			result, err = s.applyApproved(ctx, ev)
		case domain.OutcomeRefundSucceeded:
			result, err = s.applyRefundSucceeded(ctx, ev)
		case domain.OutcomeRefundFailed:
			result, err = s.applyRefundFailed(ctx, ev)
		default:
			result = domain.ResultIgnored
		}
		if err != nil {
			return err
		}
		return s.events.SetResult(ctx, rec.ID, result)
	})
	if err != nil {
		zap.L().Error("failed to reconcile payment event", zap.String("provider", ev.Provider), zap.String("event_id", ev.EventID), zap.Error(err))
		return "", err
	}
	zap.L().Info("payment event reconciled",
		zap.String("provider", ev.Provider), zap.String("event_type", ev.EventType),
		zap.String("provider_txn", ev.ProviderTxn), zap.String("result", result))
	return result, nil
}

func (s *Service) applySucceeded(ctx context.Context, ev *domain.PaymentEvent) (string, error) {
	if ev.ProviderTxn == "" {
		logger.Security("payment success without provider transaction", zap.String("provider", ev.Provider), zap.String("event_id", ev.EventID))
		return domain.ResultRejected, nil
	}
	payment, err := s.repo.GetByProviderTxn(ctx, ev.Provider, ev.ProviderTxn)
	if err != nil {
		return "", err
	}
	var order *domain.Order
	switch {
	case payment != nil:
		order, err = s.orders.LockByID(ctx, payment.OrderID)
	case ev.OrderNumber != "":
		order, err = s.orders.LockByNumber(ctx, ev.OrderNumber)
	}
	if err != nil {
		return "", err
	}
	if order == nil {
		logger.Security("payment for unknown order", zap.String("provider", ev.Provider), zap.String("provider_txn", ev.ProviderTxn), zap.String("order_number", ev.OrderNumber))
		return domain.ResultRejected, nil
	}
	if ev.AmountCents != order.TotalCents || !strings.EqualFold(ev.Currency, order.Currency) {
		logger.Security("payment amount mismatch",
			zap.String("order_number", order.OrderNumber),
			zap.Int64("expected_cents", order.TotalCents), zap.String("expected_currency", order.Currency),
			zap.Int64("got_cents", ev.AmountCents), zap.String("got_currency", ev.Currency))
		return domain.ResultRejected, nil
	}

	if payment == nil {
		payment = &domain.Payment{
			OrderID:     order.ID,
			Provider:    ev.Provider,
			ProviderTxn: ev.ProviderTxn,
			ProviderRef: ev.ProviderRef,
			AmountCents: ev.AmountCents,
			Currency:    order.Currency,
			Status:      domain.PaymentStatusPending,
		}
		if _, err := s.repo.Insert(ctx, payment); err != nil {
			return "", err
		}
	}

	switch payment.Status {
	case domain.PaymentStatusSucceeded, domain.PaymentStatusSuperseded:
		return domain.ResultDuplicate, nil
	}
	if !domain.CanTransitionPayment(payment.Status, domain.PaymentStatusSucceeded) {
		logger.Security("success for a closed payment attempt", zap.Int64("payment_id", payment.ID), zap.String("status", payment.Status))
		return domain.ResultRejected, nil
	}

	if order.Status != domain.OrderStatusPending {
		zap.L().Warn("second payment for a settled order, refunding",
			zap.String("order_number", order.OrderNumber), zap.Int64("payment_id", payment.ID))
		if err := s.supersede(ctx, payment, ev); err != nil {
			return "", err
		}
		if _, err := s.requestRefund(ctx, payment, payment.AmountCents, reasonDuplicatePayment); err != nil {
			return "", err
		}
		return domain.ResultApplied, nil
	}
	return s.settle(ctx, order, payment, ev)
}

// settle is the single PENDING -> PAID path. payment is nil for a free order.
func (s *Service) settle(ctx context.Context, order *domain.Order, payment *domain.Payment, ev *domain.PaymentEvent) (string, error) {
	if order.VoucherID != nil {
		err := s.vouchers.RecordUsage(ctx, order)
		if errors.Is(err, voucherservice.ErrVoucherExhausted) {
			return s.loseVoucherRace(ctx, order, payment, ev)
		}
		if err != nil {
			return "", err
		}
	}

	now := s.now()
	if payment != nil {
		ok, err := s.repo.UpdateStatus(ctx, payment.ID, domain.PaymentSourcesOf(domain.PaymentStatusSucceeded),
			domain.PaymentStatusSucceeded, ev.ProviderRef, &now, ev.Raw)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("payment %d changed while the order was locked", payment.ID)
		}
	}
	ok, err := s.orders.MarkPaid(ctx, order.ID, now)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("order %s changed while locked", order.OrderNumber)
	}
	order.Status = domain.OrderStatusPaid
	order.PaidAt = &now

	if err := s.ledger.ProcessOrderEarnings(ctx, order); err != nil {
		return "", err
	}

	courseIDs := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		courseIDs = append(courseIDs, item.EntityID)
	}
	err = s.outbox.Enqueue(ctx, domain.TopicOrderPaid, "order-paid-"+order.OrderNumber, domain.OrderPaidMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		CourseIDs:   courseIDs,
		TotalCents:  order.TotalCents,
		Currency:    order.Currency,
	})
	if err != nil {
		return "", err
	}
	zap.L().Info("order paid", zap.String("order_number", order.OrderNumber), zap.Int64("total_cents", order.TotalCents))
	return domain.ResultApplied, nil
}

// loseVoucherRace handles a voucher that ran out between checkout and settlement: the
// collected money goes back and the order is closed.
func (s *Service) loseVoucherRace(ctx context.Context, order *domain.Order, payment *domain.Payment, ev *domain.PaymentEvent) (string, error) {
	zap.L().Warn("voucher exhausted at settlement, cancelling order", zap.String("order_number", order.OrderNumber))
	if payment != nil {
		if err := s.supersede(ctx, payment, ev); err != nil {
			return "", err
		}
		if _, err := s.requestRefund(ctx, payment, payment.AmountCents, reasonVoucherExhausted); err != nil {
			return "", err
		}
	}
	if _, err := s.orders.CancelByID(ctx, order.ID, s.now()); err != nil {
		return "", err
	}
	order.Status = domain.OrderStatusCancelled
	return domain.ResultRejected, nil
}

func (s *Service) supersede(ctx context.Context, payment *domain.Payment, ev *domain.PaymentEvent) error {
	now := s.now()
	_, err := s.repo.UpdateStatus(ctx, payment.ID, domain.PaymentSourcesOf(domain.PaymentStatusSuperseded),
		domain.PaymentStatusSuperseded, ev.ProviderRef, &now, ev.Raw)
	if err != nil {
		return err
	}
	payment.Status = domain.PaymentStatusSuperseded
	if ev.ProviderRef != "" {
		payment.ProviderRef = ev.ProviderRef
	}
	return nil
}

func (s *Service) applyClosed(ctx context.Context, ev *domain.PaymentEvent, to string) (string, error) {
	payment, err := s.repo.GetByProviderTxn(ctx, ev.Provider, ev.ProviderTxn)
	if err != nil {
		return "", err
	}
	if payment == nil {
		return domain.ResultIgnored, nil
	}
	if !domain.CanTransitionPayment(payment.Status, to) {
		return domain.ResultDuplicate, nil
	}
	ok, err := s.repo.UpdateStatus(ctx, payment.ID, domain.PaymentSourcesOf(to), to, "", nil, ev.Raw)
	if err != nil {
		return "", err
	}
	if !ok {
		return domain.ResultDuplicate, nil
	}
	return domain.ResultApplied, nil
}

// applyApproved authorizes a buyer-approved attempt and queues its capture.
func (s *Service) applyApproved(ctx context.Context, ev *domain.PaymentEvent) (string, error) {
	payment, err := s.repo.GetByProviderTxn(ctx, ev.Provider, ev.ProviderTxn)
	if err != nil {
		return "", err
	}
	if payment == nil {
		logger.Security("approval for unknown payment attempt", zap.String("provider", ev.Provider), zap.String("provider_txn", ev.ProviderTxn))
		return domain.ResultRejected, nil
	}
	if payment.Status != domain.PaymentStatusPending {
		return domain.ResultDuplicate, nil
	}
	order, err := s.orders.LockByID(ctx, payment.OrderID)
	if err != nil {
		return "", err
	}
	if order == nil || order.Status != domain.OrderStatusPending {
		if _, err := s.repo.UpdateStatus(ctx, payment.ID, []string{domain.PaymentStatusPending}, domain.PaymentStatusCancelled, "", nil, ev.Raw); err != nil {
			return "", err
		}
		return domain.ResultApplied, nil
	}
	if ev.AmountCents != 0 && ev.AmountCents != payment.AmountCents {
		logger.Security("approved amount mismatch", zap.Int64("payment_id", payment.ID),
			zap.Int64("expected_cents", payment.AmountCents), zap.Int64("got_cents", ev.AmountCents))
		return domain.ResultRejected, nil
	}
	ok, err := s.repo.UpdateStatus(ctx, payment.ID, []string{domain.PaymentStatusPending}, domain.PaymentStatusAuthorized, "", nil, ev.Raw)
	if err != nil {
		return "", err
	}
	if !ok {
		return domain.ResultDuplicate, nil
	}
	err = s.outbox.Enqueue(ctx, domain.TopicPaymentCapture, fmt.Sprintf("capture-%d", payment.ID), domain.PaymentCaptureMessage{
		PaymentID:   payment.ID,
		Provider:    payment.Provider,
		ProviderTxn: payment.ProviderTxn,
	})
	if err != nil {
		return "", err
	}
	return domain.ResultApplied, nil
}

func (s *Service) findRefund(ctx context.Context, ev *domain.PaymentEvent) (*domain.Refund, error) {
	if ev.RefundID != 0 {
		rf, err := s.repo.GetRefund(ctx, ev.RefundID)
		if err != nil || rf != nil {
			return rf, err
		}
	}
	if ev.ProviderRef != "" {
		return s.repo.GetRefundByProviderRef(ctx, ev.ProviderRef)
	}
	return nil, nil
}

func (s *Service) applyRefundSucceeded(ctx context.Context, ev *domain.PaymentEvent) (string, error) {
	rf, err := s.findRefund(ctx, ev)
	if err != nil {
		return "", err
	}
	if rf == nil {
		logger.Security("refund event for unknown refund", zap.String("provider", ev.Provider), zap.String("provider_ref", ev.ProviderRef))
		return domain.ResultRejected, nil
	}
	if rf.Status != domain.RefundStatusPending {
		return domain.ResultDuplicate, nil
	}
	now := s.now()
	ok, err := s.repo.UpdateRefundStatus(ctx, rf.ID, domain.RefundStatusPending, domain.RefundStatusCompleted, now)
	if err != nil {
		return "", err
	}
	if !ok {
		return domain.ResultDuplicate, nil
	}
	if rf.ProviderRef == "" && ev.ProviderRef != "" {
		if err := s.repo.SetRefundProviderRef(ctx, rf.ID, ev.ProviderRef); err != nil {
			return "", err
		}
	}

	payment, err := s.repo.GetByID(ctx, rf.PaymentID)
	if err != nil {
		return "", err
	}
	if payment == nil {
		return "", fmt.Errorf("refund %d: %w", rf.ID, ErrPaymentNotFound)
	}
	// only the settling payment credited anyone
	if payment.Status != domain.PaymentStatusSucceeded {
		return domain.ResultApplied, nil
	}
	order, err := s.orders.LockByID(ctx, rf.OrderID)
	if err != nil {
		return "", err
	}
	if order == nil {
		return "", fmt.Errorf("refund %d: %w", rf.ID, ErrOrderNotFound)
	}
	if err := s.ledger.ClawbackRefund(ctx, order, rf.ID, rf.AmountCents, payment.AmountCents); err != nil {
		return "", err
	}
	_, completed, err := s.repo.RefundedAmounts(ctx, payment.ID)
	if err != nil {
		return "", err
	}
	if completed >= payment.AmountCents {
		if _, err := s.orders.MarkRefunded(ctx, order.ID, now); err != nil {
			return "", err
		}
		zap.L().Info("order fully refunded", zap.String("order_number", order.OrderNumber))
	}
	return domain.ResultApplied, nil
}

func (s *Service) applyRefundFailed(ctx context.Context, ev *domain.PaymentEvent) (string, error) {
	rf, err := s.findRefund(ctx, ev)
	if err != nil {
		return "", err
	}
	if rf == nil {
		logger.Security("refund event for unknown refund", zap.String("provider", ev.Provider), zap.String("provider_ref", ev.ProviderRef))
		return domain.ResultRejected, nil
	}
	if rf.Status != domain.RefundStatusPending {
		return domain.ResultDuplicate, nil
	}
	ok, err := s.repo.UpdateRefundStatus(ctx, rf.ID, domain.RefundStatusPending, domain.RefundStatusFailed, s.now())
	if err != nil {
		return "", err
	}
	if !ok {
		return domain.ResultDuplicate, nil
	}
	zap.L().Error("refund failed at provider", zap.Int64("refund_id", rf.ID))
	return domain.ResultApplied, nil
}
