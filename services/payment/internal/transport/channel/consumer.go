package channel

import (
	"context"
	"fmt"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/payment/internal/service"
	"go.uber.org/zap"
)

const ConsumerGroup = "payment-service"

type Consumer struct {
	service    service.PaymentService
	subscriber messaging.Subscriber
	logger     *zap.Logger
}

func NewConsumer(svc service.PaymentService, subscriber messaging.Subscriber, logger *zap.Logger) *Consumer {
	return &Consumer{
		service:    svc,
		subscriber: subscriber,
		logger:     logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	mylogger.Info(ctx, c.logger, "Payment command consumer started", zap.String("topic", generalDomain.PaymentCommands))

	return c.subscriber.Subscribe(ctx, ConsumerGroup, []string{generalDomain.PaymentCommands}, c.Handle)
}

func (c *Consumer) Handle(ctx context.Context, env messaging.Envelope) error {
	switch env.Type {
	case generalDomain.ProcessPayment:
		var cmd generalDomain.ProcessPaymentCommand
		if err := env.Decode(&cmd); err != nil {
			return err
		}

		return c.service.ProcessPayment(ctx, env, cmd)

	case generalDomain.RefundPayment:
		var cmd generalDomain.RefundPaymentCommand
		if err := env.Decode(&cmd); err != nil {
			return err
		}

		return c.service.RefundPayment(ctx, env, cmd)

	default:
		return fmt.Errorf("%w: %s", messaging.ErrUnknownType, env.Type)
	}
}
