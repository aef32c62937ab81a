package broker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/config"
)

// Publisher fans outbox messages out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

func New(cfg config.BrokerConfig) (Publisher, error) {
	switch cfg.Kind {
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.TopicPrefix)
	case "rabbitmq":
		return NewRabbitPublisher(cfg.RabbitURL, cfg.Exchange, cfg.TopicPrefix)
	case "", "none":
		zap.L().Info("broker disabled, outbox events stay local")
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unsupported broker: %s", cfg.Kind)
	}
}

type Nop struct{}

func (Nop) Publish(context.Context, string, string, []byte) error { return nil }

func (Nop) Close() error { return nil }
