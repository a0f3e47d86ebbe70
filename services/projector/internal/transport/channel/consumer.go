package channel

import (
	"context"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"go.uber.org/zap"
)

const ConsumerGroup = "projector"

type Handler interface {
	Handle(ctx context.Context, env messaging.Envelope) error
}

type Consumer struct {
	handler    Handler
	subscriber messaging.Subscriber
	logger     *zap.Logger
}

func NewConsumer(handler Handler, subscriber messaging.Subscriber, logger *zap.Logger) *Consumer {
	return &Consumer{
		handler:    handler,
		subscriber: subscriber,
		logger:     logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	mylogger.Info(ctx, c.logger, "Projection consumer started", zap.Strings("topics", generalDomain.ProjectedTopics))

	return c.subscriber.Subscribe(ctx, ConsumerGroup, generalDomain.ProjectedTopics, c.handler.Handle)
}
