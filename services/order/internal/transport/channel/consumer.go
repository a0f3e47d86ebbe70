package channel

import (
	"context"
	"fmt"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/order/internal/service"
	"go.uber.org/zap"
)

const ConsumerGroup = "order-service"

type Consumer struct {
	service    service.OrderService
	subscriber messaging.Subscriber
	logger     *zap.Logger
}

func NewConsumer(svc service.OrderService, subscriber messaging.Subscriber, logger *zap.Logger) *Consumer {
	return &Consumer{
		service:    svc,
		subscriber: subscriber,
		logger:     logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	mylogger.Info(ctx, c.logger, "Order command consumer started", zap.String("topic", generalDomain.OrderCommands))

	return c.subscriber.Subscribe(ctx, ConsumerGroup, []string{generalDomain.OrderCommands}, c.Handle)
}

func (c *Consumer) Handle(ctx context.Context, env messaging.Envelope) error {
	switch env.Type {
	case generalDomain.CreateOrder:
		var cmd generalDomain.CreateOrderCommand
		if err := env.Decode(&cmd); err != nil {
			return err
		}

		return c.service.CreateOrder(ctx, env, cmd)

	case generalDomain.ConfirmOrder:
		var cmd generalDomain.ConfirmOrderCommand
		if err := env.Decode(&cmd); err != nil {
			return err
		}

		return c.service.ConfirmOrder(ctx, env, cmd)

	case generalDomain.CancelOrder:
		var cmd generalDomain.CancelOrderCommand
		if err := env.Decode(&cmd); err != nil {
			return err
		}

		return c.service.CancelOrder(ctx, env, cmd)

	default:
		return fmt.Errorf("%w: %s", messaging.ErrUnknownType, env.Type)
	}
}
