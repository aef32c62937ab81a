package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/pkg/broker"
)

//go:generate mockgen -source=outbox.go -destination=mock_outbox.go -package=outbox

type Repo interface {
	FetchPending(ctx context.Context, limit uint32) ([]domain.OutboxMessage, error)
	MarkSent(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, lastErr string, maxRetries int) (string, error)
}

type WorkerPoolI interface {
	AddTask(ctx context.Context, task Task) error
	Close()
}

// Handler performs the side effect a message stands for. It must tolerate redelivery.
type Handler func(ctx context.Context, msg domain.OutboxMessage) error

type Dispatcher struct {
	repo           Repo
	publisher      broker.Publisher
	workerPool     WorkerPoolI
	handlers       map[string]Handler
	broadcast      map[string]bool
	inFlight       sync.Map
	limit          uint32
	maxRetries     int
	updateInterval time.Duration
}

func New(cfg *config.Config, repo Repo, publisher broker.Publisher) *Dispatcher {
	return &Dispatcher{
		repo:           repo,
		publisher:      publisher,
		workerPool:     NewWorkerPool(10),
		handlers:       make(map[string]Handler),
		broadcast:      make(map[string]bool),
		limit:          cfg.Business.OutboxBatchSize,
		maxRetries:     cfg.Business.OutboxMaxRetries,
		updateInterval: cfg.Business.OutboxInterval,
	}
}

// Handle registers the handler for topic. Register before Start.
func (d *Dispatcher) Handle(topic string, h Handler) {
	d.handlers[topic] = h
}

// Broadcast forwards topic to the broker once its handler has succeeded.
func (d *Dispatcher) Broadcast(topic string) {
	d.broadcast[topic] = true
}

func (d *Dispatcher) Start(ctx context.Context) {
	zap.L().Info("outbox dispatcher started", zap.Duration("interval", d.updateInterval))
	go d.run(ctx)
}

func (d *Dispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.updateInterval)
	defer ticker.Stop()
	defer d.workerPool.Close()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Context canceled, stopping outbox dispatcher")
			return
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context) {
	msgs, err := d.repo.FetchPending(ctx, d.limit)
	if err != nil {
		zap.L().Error("failed to fetch outbox messages", zap.Error(err))
		return
	}

	var g errgroup.Group
	for _, msg := range msgs {
		if _, loaded := d.inFlight.LoadOrStore(msg.ID, struct{}{}); loaded {
			continue
		}

		g.Go(func() error {
			err := d.workerPool.AddTask(ctx, func() error {
				defer d.inFlight.Delete(msg.ID)
				return d.deliver(ctx, msg)
			})
			if err != nil {
				d.inFlight.Delete(msg.ID)
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		zap.L().Error("error dispatching outbox messages", zap.Error(err))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg domain.OutboxMessage) error {
	err := d.process(ctx, msg)
	if err == nil {
		return d.repo.MarkSent(ctx, msg.ID)
	}

	status, markErr := d.repo.MarkRetry(ctx, msg.ID, err.Error(), d.maxRetries)
	if markErr != nil {
		return markErr
	}
	if status == domain.OutboxStatusFailed {
		zap.L().Error("outbox message gave up",
			zap.Int64("id", msg.ID), zap.String("topic", msg.Topic), zap.String("key", msg.MessageKey),
			zap.Int("retries", msg.RetryCount+1), zap.Error(err))
		return nil
	}
	zap.L().Warn("outbox message will be retried", zap.Int64("id", msg.ID), zap.String("topic", msg.Topic), zap.Error(err))
	return nil
}

func (d *Dispatcher) process(ctx context.Context, msg domain.OutboxMessage) error {
	h, ok := d.handlers[msg.Topic]
	if !ok && !d.broadcast[msg.Topic] {
		return fmt.Errorf("no handler for topic %s", msg.Topic)
	}
	if ok {
		if err := h(ctx, msg); err != nil {
			return err
		}
	}
	if d.broadcast[msg.Topic] {
		if err := d.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload); err != nil {
			return fmt.Errorf("publish %s: %w", msg.Topic, err)
		}
	}
	return nil
}
