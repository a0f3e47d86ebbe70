package channel

import (
	"fmt"

	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/kafka"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/messaging/memory"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	"github.com/sakashimaa/fulfillment/pkg/rabbitmq"
	"go.uber.org/zap"
)

const (
	DriverMemory   = "memory"
	DriverKafka    = "kafka"
	DriverRabbitMQ = "rabbitmq"
)

// Channel is an opened publisher/subscriber pair for one driver.
type Channel struct {
	Publisher  messaging.Publisher
	Subscriber messaging.Subscriber
	closers    []func() error
}

func (c *Channel) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func Policy(cfg config.Channel) messaging.RetryPolicy {
	policy := messaging.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}

	return policy
}

// Open connects the configured driver. The publisher is wrapped in a circuit
// breaker so a dead broker fails outbox batches fast instead of timing out
// record by record.
func Open(cfg config.Channel, m *metrics.Metrics, logger *zap.Logger) (*Channel, error) {
	policy := Policy(cfg)

	switch cfg.Driver {
	case "", DriverMemory:
		bus := memory.NewBus(policy, logger)
		bus.OnDeadLetter(m.DeadLettered)

		return &Channel{Publisher: bus, Subscriber: bus}, nil

	case DriverKafka:
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, logger)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}

		sub := kafka.NewSubscriber(cfg.KafkaBrokers, policy, producer, logger)
		sub.OnDeadLetter(m.DeadLettered)

		return &Channel{
			Publisher:  messaging.NewBreakerPublisher(producer, "kafka-publisher", logger),
			Subscriber: sub,
			closers:    []func() error{producer.Close},
		}, nil

	case DriverRabbitMQ:
		conn, err := rabbitmq.Dial(cfg.RabbitURL, 10, logger)
		if err != nil {
			return nil, err
		}

		publisher, err := rabbitmq.NewPublisher(conn, cfg.RabbitExchange, logger)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}

		sub := rabbitmq.NewSubscriber(conn, cfg.RabbitExchange, policy, publisher, logger)
		sub.OnDeadLetter(m.DeadLettered)

		return &Channel{
			Publisher:  messaging.NewBreakerPublisher(publisher, "rabbitmq-publisher", logger),
			Subscriber: sub,
			closers:    []func() error{conn.Close, publisher.Close},
		}, nil

	default:
		return nil, fmt.Errorf("unknown channel driver %q", cfg.Driver)
	}
}
