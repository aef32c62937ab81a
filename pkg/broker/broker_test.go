package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlebRadaev/coursepay/internal/config"
)

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "coursepay.order.paid" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "k1" {
			return errors.New("unexpected key")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer, "coursepay.")

	require.NoError(t, p.Publish(context.Background(), "order.paid", "k1", []byte(`{}`)))
	assert.ErrorIs(t, p.Publish(context.Background(), "order.paid", "k2", []byte(`{}`)), sarama.ErrOutOfBrokers)
	assert.NoError(t, p.Close())
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error { return nil }

func TestRabbitPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := &RabbitPublisher{channel: ch, exchange: "coursepay", prefix: "coursepay."}

	require.NoError(t, p.Publish(context.Background(), "withdrawal.updated", "k1", []byte(`{"id":1}`)))
	assert.Equal(t, "coursepay", ch.exchange)
	assert.Equal(t, "coursepay.withdrawal.updated", ch.key)
	assert.Equal(t, "k1", ch.msg.MessageId)
	assert.Equal(t, uint8(amqp.Persistent), ch.msg.DeliveryMode)

	ch.err = amqp.ErrClosed
	assert.ErrorIs(t, p.Publish(context.Background(), "withdrawal.updated", "k2", nil), amqp.ErrClosed)
}

func TestNew(t *testing.T) {
	p, err := New(config.BrokerConfig{Kind: "none"})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)

	_, err = New(config.BrokerConfig{Kind: "nats"})
	assert.Error(t, err)
}
