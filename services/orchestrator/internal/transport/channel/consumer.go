package channel

import (
	"context"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/orchestrator/internal/service"
	"go.uber.org/zap"
)

const ConsumerGroup = "orchestrator"

// Consumer feeds participant replies to the orchestrator. Events that were
// not caused by a saga command carry no correlation id and are skipped.
type Consumer struct {
	service    service.OrchestratorService
	subscriber messaging.Subscriber
	logger     *zap.Logger
}

func NewConsumer(svc service.OrchestratorService, subscriber messaging.Subscriber, logger *zap.Logger) *Consumer {
	return &Consumer{
		service:    svc,
		subscriber: subscriber,
		logger:     logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	mylogger.Info(ctx, c.logger, "Saga reply consumer started", zap.Strings("topics", generalDomain.EventTopics))

	return c.subscriber.Subscribe(ctx, ConsumerGroup, generalDomain.EventTopics, c.Handle)
}

func (c *Consumer) Handle(ctx context.Context, env messaging.Envelope) error {
	if env.CorrelationID == "" {
		return nil
	}

	return c.service.HandleReply(ctx, env)
}
