package channel

import (
	"context"
	"fmt"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/cart/internal/service"
	"go.uber.org/zap"
)

const ConsumerGroup = "cart-service"

type Consumer struct {
	service    service.CartService
	subscriber messaging.Subscriber
	logger     *zap.Logger
}

func NewConsumer(svc service.CartService, subscriber messaging.Subscriber, logger *zap.Logger) *Consumer {
	return &Consumer{
		service:    svc,
		subscriber: subscriber,
		logger:     logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	mylogger.Info(ctx, c.logger, "Cart command consumer started", zap.String("topic", generalDomain.CartCommands))

	return c.subscriber.Subscribe(ctx, ConsumerGroup, []string{generalDomain.CartCommands}, c.Handle)
}

func (c *Consumer) Handle(ctx context.Context, env messaging.Envelope) error {
	if env.Type != generalDomain.CheckOutCart {
		return fmt.Errorf("%w: %s", messaging.ErrUnknownType, env.Type)
	}

	var cmd generalDomain.CheckOutCartCommand
	if err := env.Decode(&cmd); err != nil {
		return err
	}

	return c.service.CheckOutCart(ctx, env, cmd)
}
