package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Subscriber implements messaging.Subscriber on sarama consumer groups. A
// message is marked consumed once it was handled or dead-lettered.
type Subscriber struct {
	brokers      []string
	policy       messaging.RetryPolicy
	deadLetters  messaging.Publisher
	logger       *zap.Logger
	onDeadLetter func(topic string)
}

func NewSubscriber(
	brokers []string,
	policy messaging.RetryPolicy,
	deadLetters messaging.Publisher,
	logger *zap.Logger,
) *Subscriber {
	return &Subscriber{
		brokers:     brokers,
		policy:      policy,
		deadLetters: deadLetters,
		logger:      logger,
	}
}

func (s *Subscriber) OnDeadLetter(fn func(topic string)) {
	s.onDeadLetter = fn
}

func (s *Subscriber) Subscribe(ctx context.Context, groupID string, topics []string, handler messaging.Handler) error {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	group, err := sarama.NewConsumerGroup(s.brokers, groupID, config)
	if err != nil {
		return fmt.Errorf("error creating consumer group %s: %w", groupID, err)
	}

	defer func() {
		if err := group.Close(); err != nil {
			mylogger.Warn(ctx, s.logger, "Error closing consumer group", zap.Error(err))
		}
	}()

	go func() {
		for err := range group.Errors() {
			mylogger.Warn(ctx, s.logger, "Consumer group error", zap.String("group", groupID), zap.Error(err))
		}
	}()

	dispatcher := messaging.NewDispatcher(s.policy, s.deadLetters, s.logger)
	dispatcher.OnDeadLetter(s.onDeadLetter)

	consumer := &saramaHandler{
		handler:    handler,
		dispatcher: dispatcher,
		logger:     s.logger,
		tracer:     otel.Tracer("pkg/kafka/consumer"),
	}

	for {
		err := group.Consume(ctx, topics, consumer)
		if err != nil && !errors.Is(err, sarama.ErrClosedConsumerGroup) {
			mylogger.Error(ctx, s.logger, "Error consuming in consumer loop", zap.Error(err))
		}

		if ctx.Err() != nil {
			mylogger.Info(ctx, s.logger, "Context cancelled, shutting down consumer", zap.String("group", groupID))
			return nil
		}
	}
}

type saramaHandler struct {
	handler    messaging.Handler
	dispatcher *messaging.Dispatcher
	logger     *zap.Logger
	tracer     trace.Tracer
}

func (h *saramaHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *saramaHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *saramaHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.consume(session.Context(), msg); err != nil {
			return err
		}

		session.MarkMessage(msg, "")
	}

	return nil
}

func (h *saramaHandler) consume(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx, span := h.extractTracing(ctx, msg)
	defer span.End()

	handler := h.handler

	env, err := messaging.Unmarshal(msg.Value)
	if err != nil {
		decodeErr := err
		env = malformedEnvelope(msg)
		handler = func(context.Context, messaging.Envelope) error { return decodeErr }
	}

	span.SetAttributes(
		attribute.String("message.type", env.Type),
		attribute.String("message.id", env.ID),
	)

	if err := h.dispatcher.Deliver(ctx, msg.Topic, env, handler); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			h.logger,
			"Failed to process message",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)

		return err
	}

	return nil
}

func (h *saramaHandler) extractTracing(ctx context.Context, msg *sarama.ConsumerMessage) (context.Context, trace.Span) {
	carrier := propagation.MapCarrier{}
	for _, header := range msg.Headers {
		carrier[string(header.Key)] = string(header.Value)
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	return h.tracer.Start(ctx, "kafka_process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.partition", int64(msg.Partition)),
		),
	)
}

func malformedEnvelope(msg *sarama.ConsumerMessage) messaging.Envelope {
	raw, _ := json.Marshal(string(msg.Value))

	return messaging.Envelope{
		ID:          fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
		Type:        "Malformed",
		AggregateID: string(msg.Key),
		Payload:     raw,
		OccurredAt:  msg.Timestamp,
	}
}
