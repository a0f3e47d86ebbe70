package channel

import (
	"context"
	"fmt"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/inventory/internal/service"
	"go.uber.org/zap"
)

const ConsumerGroup = "inventory-service"

type Consumer struct {
	service    service.InventoryService
	subscriber messaging.Subscriber
	logger     *zap.Logger
}

func NewConsumer(svc service.InventoryService, subscriber messaging.Subscriber, logger *zap.Logger) *Consumer {
	return &Consumer{
		service:    svc,
		subscriber: subscriber,
		logger:     logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	mylogger.Info(ctx, c.logger, "Inventory command consumer started", zap.String("topic", generalDomain.InventoryCommands))

	return c.subscriber.Subscribe(ctx, ConsumerGroup, []string{generalDomain.InventoryCommands}, c.Handle)
}

func (c *Consumer) Handle(ctx context.Context, env messaging.Envelope) error {
	switch env.Type {
	case generalDomain.ReserveInventory:
		var cmd generalDomain.ReserveInventoryCommand
		if err := env.Decode(&cmd); err != nil {
			return err
		}

		return c.service.Reserve(ctx, env, cmd)

	case generalDomain.ReleaseInventory:
		var cmd generalDomain.ReleaseInventoryCommand
		if err := env.Decode(&cmd); err != nil {
			return err
		}

		return c.service.Release(ctx, env, cmd)

	case generalDomain.ConfirmInventory:
		var cmd generalDomain.ConfirmInventoryCommand
		if err := env.Decode(&cmd); err != nil {
			return err
		}

		return c.service.Confirm(ctx, env, cmd)

	default:
		return fmt.Errorf("%w: %s", messaging.ErrUnknownType, env.Type)
	}
}
