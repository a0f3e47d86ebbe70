package channel

import (
	"context"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/notification/internal/service"
	"go.uber.org/zap"
)

const ConsumerGroup = "notification"

type Consumer struct {
	service    *service.NotificationService
	subscriber messaging.Subscriber
	logger     *zap.Logger
}

func NewConsumer(svc *service.NotificationService, subscriber messaging.Subscriber, logger *zap.Logger) *Consumer {
	return &Consumer{
		service:    svc,
		subscriber: subscriber,
		logger:     logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	mylogger.Info(ctx, c.logger, "Notification consumer started", zap.String("topic", generalDomain.SagaEvents))

	return c.subscriber.Subscribe(ctx, ConsumerGroup, []string{generalDomain.SagaEvents}, c.service.HandleCheckout)
}
