package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"go.uber.org/zap"
)

// Subscriber gives every consumer group one durable queue bound to its topics.
// The queue has a single active consumer and a prefetch of one, which keeps
// messages in publication order across replicas.
type Subscriber struct {
	conn         *amqp.Connection
	exchange     string
	policy       messaging.RetryPolicy
	deadLetters  messaging.Publisher
	logger       *zap.Logger
	onDeadLetter func(topic string)
}

func NewSubscriber(
	conn *amqp.Connection,
	exchange string,
	policy messaging.RetryPolicy,
	deadLetters messaging.Publisher,
	logger *zap.Logger,
) *Subscriber {
	return &Subscriber{
		conn:        conn,
		exchange:    exchange,
		policy:      policy,
		deadLetters: deadLetters,
		logger:      logger,
	}
}

func (s *Subscriber) OnDeadLetter(fn func(topic string)) {
	s.onDeadLetter = fn
}

func (s *Subscriber) Subscribe(ctx context.Context, group string, topics []string, handler messaging.Handler) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() {
		if err := ch.Close(); err != nil && !ch.IsClosed() {
			mylogger.Warn(ctx, s.logger, "Failed to close channel", zap.Error(err))
		}
	}()

	if err := declareExchange(ch, s.exchange); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(group, true, false, false, false, amqp.Table{
		"x-single-active-consumer": true,
	})
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", group, err)
	}

	for _, topic := range topics {
		if err := ch.QueueBind(q.Name, topic, s.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", q.Name, topic, err)
		}
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}

	dispatcher := messaging.NewDispatcher(s.policy, s.deadLetters, s.logger)
	dispatcher.OnDeadLetter(s.onDeadLetter)

	mylogger.Info(ctx, s.logger, "RabbitMQ consumer started", zap.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel of %s closed", q.Name)
			}

			s.handle(ctx, dispatcher, d, handler)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, dispatcher *messaging.Dispatcher, d amqp.Delivery, handler messaging.Handler) {
	env, err := messaging.Unmarshal(d.Body)
	if err != nil {
		decodeErr := err
		env = messaging.Envelope{ID: d.MessageId, Type: "Malformed", Payload: []byte(`null`), OccurredAt: d.Timestamp}
		handler = func(context.Context, messaging.Envelope) error { return decodeErr }
	}

	if err := dispatcher.Deliver(ctx, d.RoutingKey, env, handler); err != nil {
		mylogger.Error(ctx, s.logger, "Message not handled, requeueing", zap.String("message_id", env.ID), zap.Error(err))

		if nackErr := d.Nack(false, true); nackErr != nil {
			mylogger.Warn(ctx, s.logger, "Nack failed", zap.Error(nackErr))
		}

		return
	}

	if err := d.Ack(false); err != nil {
		mylogger.Warn(ctx, s.logger, "Ack failed", zap.String("message_id", env.ID), zap.Error(err))
	}
}
