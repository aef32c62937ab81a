package paymentservice

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway"
)

func (s *Service) requestRefund(ctx context.Context, payment *domain.Payment, amount int64, reason string) (*domain.Refund, error) {
	rf := &domain.Refund{
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		AmountCents: amount,
		Status:      domain.RefundStatusPending,
		Reason:      reason,
	}
	if err := s.repo.InsertRefund(ctx, rf); err != nil {
		return nil, err
	}
	err := s.outbox.Enqueue(ctx, domain.TopicRefundRequested, fmt.Sprintf("refund-%d", rf.ID), domain.RefundRequestedMessage{RefundID: rf.ID})
	if err != nil {
		return nil, err
	}
	zap.L().Info("refund requested", zap.Int64("refund_id", rf.ID), zap.Int64("payment_id", payment.ID), zap.Int64("amount_cents", amount), zap.String("reason", reason))
	return rf, nil
}

// RequestRefund queues a refund of a paid order. The amount may not exceed what is left of
// the settling payment after earlier refunds that have not failed.
func (s *Service) RequestRefund(ctx context.Context, orderNumber string, amount int64, reason string) (*domain.Refund, error) {
	if amount <= 0 {
		return nil, ErrInvalidRefundAmount
	}
	var rf *domain.Refund
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		order, err := s.orders.LockByNumber(ctx, orderNumber)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.Status != domain.OrderStatusPaid {
			return ErrOrderNotPaid
		}
		payment, err := s.repo.GetSucceededByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if payment == nil {
			return ErrOrderNotPaid
		}
		active, _, err := s.repo.RefundedAmounts(ctx, payment.ID)
		if err != nil {
			return err
		}
		if amount > payment.AmountCents-active {
			return ErrRefundExceedsPayment
		}
		rf, err = s.requestRefund(ctx, payment, amount, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rf, nil
}

// ExecuteRefund submits a PENDING refund to its provider. Repeats are safe: the provider
// call carries the refund id as its idempotency key.
func (s *Service) ExecuteRefund(ctx context.Context, refundID int64) error {
	rf, err := s.repo.GetRefund(ctx, refundID)
	if err != nil {
		return err
	}
	if rf == nil {
		return fmt.Errorf("refund %d: %w", refundID, ErrRefundNotFound)
	}
	if rf.Status != domain.RefundStatusPending || rf.ProviderRef != "" {
		return nil
	}
	payment, err := s.repo.GetByID(ctx, rf.PaymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return fmt.Errorf("refund %d: %w", refundID, ErrPaymentNotFound)
	}
	gw, err := s.gateways.Get(payment.Provider)
	if err != nil {
		return err
	}

	res, err := gw.Refund(ctx, &gateway.RefundRequest{
		RefundID:    rf.ID,
		ProviderTxn: payment.ProviderTxn,
		ProviderRef: payment.ProviderRef,
		AmountCents: rf.AmountCents,
		Currency:    payment.Currency,
		Reason:      rf.Reason,
	})
	if errors.Is(err, gateway.ErrRefundUnsupported) {
		zap.L().Error("provider cannot refund, manual refund required",
			zap.Int64("refund_id", rf.ID), zap.String("provider", payment.Provider), zap.Int64("amount_cents", rf.AmountCents))
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.repo.SetRefundProviderRef(ctx, rf.ID, res.ProviderRef); err != nil {
		return err
	}
	if !res.Completed {
		return nil
	}
	_, err = s.Apply(ctx, &domain.PaymentEvent{
		Provider:    payment.Provider,
		EventID:     fmt.Sprintf("refund-sync-%d", rf.ID),
		EventType:   "refund.completed",
		ProviderRef: res.ProviderRef,
		RefundID:    rf.ID,
		Outcome:     domain.OutcomeRefundSucceeded,
	})
	return err
}

// Capture completes an AUTHORIZED attempt. The provider's capture webhook settles it.
func (s *Service) Capture(ctx context.Context, paymentID int64) error {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return fmt.Errorf("payment %d: %w", paymentID, ErrPaymentNotFound)
	}
	if payment.Status != domain.PaymentStatusAuthorized {
		return nil
	}
	c, err := s.gateways.Capturer(payment.Provider)
	if err != nil {
		return err
	}
	captureID, err := c.Capture(ctx, payment.ProviderTxn)
	if err != nil {
		return err
	}
	zap.L().Info("payment captured", zap.Int64("payment_id", paymentID), zap.String("capture_id", captureID))
	return nil
}
