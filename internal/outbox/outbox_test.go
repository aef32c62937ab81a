package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/domain"
)

type published struct {
	topic, key string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, key: key})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func NewMock(t *testing.T) (*Dispatcher, *MockRepo, *MockWorkerPoolI, *fakePublisher) {
	ctrl := gomock.NewController(t)
	repo := NewMockRepo(ctrl)
	pool := NewMockWorkerPoolI(ctrl)
	pub := &fakePublisher{}
	cfg := &config.Config{Business: config.BusinessConfig{OutboxBatchSize: 100, OutboxMaxRetries: 3, OutboxInterval: 10 * time.Millisecond}}
	d := New(cfg, repo, pub)
	d.workerPool = pool
	return d, repo, pool, pub
}

func message(id int64, topic string, payload any) domain.OutboxMessage {
	body, _ := json.Marshal(payload)
	return domain.OutboxMessage{ID: id, Topic: topic, MessageKey: "key", Payload: body, Status: domain.OutboxStatusPending}
}

func TestDispatcher_dispatch(t *testing.T) {
	d, repo, pool, pub := NewMock(t)
	var handled []int64
	d.Handle(domain.TopicOrderPaid, func(_ context.Context, msg domain.OutboxMessage) error {
		handled = append(handled, msg.ID)
		return nil
	})
	d.Broadcast(domain.TopicOrderPaid)

	repo.EXPECT().FetchPending(gomock.Any(), uint32(100)).Return([]domain.OutboxMessage{
		message(1, domain.TopicOrderPaid, domain.OrderPaidMessage{OrderNumber: "12345678903"}),
		message(2, domain.TopicOrderPaid, domain.OrderPaidMessage{OrderNumber: "79927398713"}),
	}, nil)
	var mu sync.Mutex
	pool.EXPECT().AddTask(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, task Task) error {
		mu.Lock()
		defer mu.Unlock()
		return task()
	}).Times(2)
	repo.EXPECT().MarkSent(gomock.Any(), int64(1)).Return(nil)
	repo.EXPECT().MarkSent(gomock.Any(), int64(2)).Return(nil)

	d.dispatch(context.Background())

	assert.ElementsMatch(t, []int64{1, 2}, handled)
	assert.Len(t, pub.sent, 2)
}

func TestDispatcher_skipsInFlight(t *testing.T) {
	d, repo, _, _ := NewMock(t)
	d.inFlight.Store(int64(1), struct{}{})
	repo.EXPECT().FetchPending(gomock.Any(), uint32(100)).Return([]domain.OutboxMessage{message(1, domain.TopicOrderPaid, nil)}, nil)

	d.dispatch(context.Background())
}

func TestDispatcher_poolRejects(t *testing.T) {
	d, repo, pool, _ := NewMock(t)
	repo.EXPECT().FetchPending(gomock.Any(), uint32(100)).Return([]domain.OutboxMessage{message(1, domain.TopicOrderPaid, nil)}, nil)
	pool.EXPECT().AddTask(gomock.Any(), gomock.Any()).Return(context.Canceled)

	d.dispatch(context.Background())

	_, busy := d.inFlight.Load(int64(1))
	assert.False(t, busy)
}

func TestDispatcher_deliver(t *testing.T) {
	tests := []struct {
		name        string
		handlerErr  error
		publishErr  error
		prepareMock func(repo *MockRepo)
	}{
		{
			name: "handled and sent",
			prepareMock: func(repo *MockRepo) {
				repo.EXPECT().MarkSent(gomock.Any(), int64(1)).Return(nil)
			},
		},
		{
			name:       "handler failure is retried",
			handlerErr: errors.New("lms down"),
			prepareMock: func(repo *MockRepo) {
				repo.EXPECT().MarkRetry(gomock.Any(), int64(1), "lms down", 3).Return(domain.OutboxStatusPending, nil)
			},
		},
		{
			name:       "last retry parks the message",
			handlerErr: errors.New("lms down"),
			prepareMock: func(repo *MockRepo) {
				repo.EXPECT().MarkRetry(gomock.Any(), int64(1), "lms down", 3).Return(domain.OutboxStatusFailed, nil)
			},
		},
		{
			name:       "broker failure is retried",
			publishErr: errors.New("broker down"),
			prepareMock: func(repo *MockRepo) {
				repo.EXPECT().MarkRetry(gomock.Any(), int64(1), gomock.Any(), 3).Return(domain.OutboxStatusPending, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, repo, _, pub := NewMock(t)
			pub.err = tt.publishErr
			d.Handle(domain.TopicWithdrawalUpdated, func(context.Context, domain.OutboxMessage) error { return tt.handlerErr })
			d.Broadcast(domain.TopicWithdrawalUpdated)
			tt.prepareMock(repo)

			err := d.deliver(context.Background(), message(1, domain.TopicWithdrawalUpdated, domain.WithdrawalUpdatedMessage{WithdrawalID: 1}))
			assert.NoError(t, err)
		})
	}

	t.Run("unknown topic", func(t *testing.T) {
		d, repo, _, _ := NewMock(t)
		repo.EXPECT().MarkRetry(gomock.Any(), int64(1), "no handler for topic mystery", 3).Return(domain.OutboxStatusPending, nil)

		require.NoError(t, d.deliver(context.Background(), message(1, "mystery", nil)))
	})
}

func TestDispatcher_Start(t *testing.T) {
	d, repo, pool, _ := NewMock(t)
	repo.EXPECT().FetchPending(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	pool.EXPECT().Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done
}

func TestHandlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	lms := NewMockEnroller(ctrl)
	payments := NewMockPayments(ctrl)

	t.Run("order paid grants before notifying", func(t *testing.T) {
		paid := domain.OrderPaidMessage{OrderID: 1, OrderNumber: "12345678903", UserID: 5, CourseIDs: []int64{100}}
		gomock.InOrder(
			lms.EXPECT().GrantEnrollment(gomock.Any(), paid).Return(nil),
			lms.EXPECT().SendNotification(gomock.Any(), int64(5), gomock.Any()).Return(errors.New("smtp down")),
		)
		assert.NoError(t, OrderPaid(lms)(context.Background(), message(1, domain.TopicOrderPaid, paid)))
	})

	t.Run("order paid retries a failed grant", func(t *testing.T) {
		lms.EXPECT().GrantEnrollment(gomock.Any(), gomock.Any()).Return(errors.New("lms down"))
		assert.Error(t, OrderPaid(lms)(context.Background(), message(1, domain.TopicOrderPaid, domain.OrderPaidMessage{})))
	})

	t.Run("refund requested", func(t *testing.T) {
		payments.EXPECT().ExecuteRefund(gomock.Any(), int64(4)).Return(nil)
		assert.NoError(t, RefundRequested(payments)(context.Background(), message(1, domain.TopicRefundRequested, domain.RefundRequestedMessage{RefundID: 4})))
	})

	t.Run("payment capture", func(t *testing.T) {
		payments.EXPECT().Capture(gomock.Any(), int64(10)).Return(nil)
		assert.NoError(t, PaymentCapture(payments)(context.Background(), message(1, domain.TopicPaymentCapture, domain.PaymentCaptureMessage{PaymentID: 10})))
	})

	t.Run("malformed payload", func(t *testing.T) {
		msg := domain.OutboxMessage{ID: 1, Topic: domain.TopicRefundRequested, Payload: []byte("{")}
		assert.Error(t, RefundRequested(payments)(context.Background(), msg))
	})

	t.Run("register", func(t *testing.T) {
		d, _, _, _ := NewMock(t)
		Register(d, lms, payments)
		assert.Len(t, d.handlers, 4)
		assert.True(t, d.broadcast[domain.TopicOrderPaid])
		assert.False(t, d.broadcast[domain.TopicRefundRequested])
	})
}
