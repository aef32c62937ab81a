package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
)

//go:generate mockgen -source=handlers.go -destination=mock_handlers.go -package=outbox

type Enroller interface {
	GrantEnrollment(ctx context.Context, msg domain.OrderPaidMessage) error
	SendNotification(ctx context.Context, userID int64, message string) error
}

type Payments interface {
	ExecuteRefund(ctx context.Context, refundID int64) error
	Capture(ctx context.Context, paymentID int64) error
}

// OrderPaid grants enrollment. The buyer notification is best effort.
func OrderPaid(lms Enroller) Handler {
	return func(ctx context.Context, msg domain.OutboxMessage) error {
		var m domain.OrderPaidMessage
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Topic, err)
		}
		if err := lms.GrantEnrollment(ctx, m); err != nil {
			return err
		}
		if err := lms.SendNotification(ctx, m.UserID, fmt.Sprintf("Payment received for order %s", m.OrderNumber)); err != nil {
			zap.L().Warn("failed to notify buyer", zap.String("order_number", m.OrderNumber), zap.Error(err))
		}
		return nil
	}
}

func RefundRequested(payments Payments) Handler {
	return func(ctx context.Context, msg domain.OutboxMessage) error {
		var m domain.RefundRequestedMessage
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Topic, err)
		}
		return payments.ExecuteRefund(ctx, m.RefundID)
	}
}

func PaymentCapture(payments Payments) Handler {
	return func(ctx context.Context, msg domain.OutboxMessage) error {
		var m domain.PaymentCaptureMessage
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Topic, err)
		}
		return payments.Capture(ctx, m.PaymentID)
	}
}

func WithdrawalUpdated(lms Enroller) Handler {
	return func(ctx context.Context, msg domain.OutboxMessage) error {
		var m domain.WithdrawalUpdatedMessage
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Topic, err)
		}
		text := fmt.Sprintf("Withdrawal #%d is now %s", m.WithdrawalID, m.Status)
		if err := lms.SendNotification(ctx, m.UserID, text); err != nil {
			zap.L().Warn("failed to notify instructor", zap.Int64("withdrawal_id", m.WithdrawalID), zap.Error(err))
		}
		return nil
	}
}

// Register wires every topic the payments core produces.
func Register(d *Dispatcher, lms Enroller, payments Payments) {
	d.Handle(domain.TopicOrderPaid, OrderPaid(lms))
	d.Handle(domain.TopicRefundRequested, RefundRequested(payments))
	d.Handle(domain.TopicPaymentCapture, PaymentCapture(payments))
	d.Handle(domain.TopicWithdrawalUpdated, WithdrawalUpdated(lms))
	d.Broadcast(domain.TopicOrderPaid)
	d.Broadcast(domain.TopicWithdrawalUpdated)
}
