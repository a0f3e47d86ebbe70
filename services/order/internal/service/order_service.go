package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/order/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderService interface {
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	CreateOrder(ctx context.Context, env messaging.Envelope, cmd generalDomain.CreateOrderCommand) error
	ConfirmOrder(ctx context.Context, env messaging.Envelope, cmd generalDomain.ConfirmOrderCommand) error
	CancelOrder(ctx context.Context, env messaging.Envelope, cmd generalDomain.CancelOrderCommand) error
}

type orderService struct {
	executor *aggregate.Executor[*domain.Order]
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewOrderService(repo *aggregate.Repository[*domain.Order], store aggregate.Store, logger *zap.Logger) OrderService {
	return &orderService{
		executor: aggregate.NewExecutor(repo, store, generalDomain.OrderEvents, logger),
		logger:   logger,
		tracer:   otel.Tracer("order-service"),
	}
}

func (s *orderService) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return s.executor.Repository().Load(ctx, id)
}

func (s *orderService) CreateOrder(ctx context.Context, env messaging.Envelope, cmd generalDomain.CreateOrderCommand) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", cmd.OrderID), attribute.String("saga_id", env.CorrelationID))

	_, err := s.executor.Execute(ctx, command(cmd.OrderID, env), func(o *domain.Order, _ bool) ([]messaging.Message, error) {
		if err := o.Create(cmd.ConsumerID, cmd.Items, cmd.Total); err != nil {
			if domain.IsBusinessError(err) {
				mylogger.Warn(ctx, s.logger, "Order refused", zap.String("order_id", cmd.OrderID), zap.Error(err))

				return reply(generalDomain.OrderCreationFailed, cmd.OrderID, generalDomain.OrderPayload{
					OrderID: cmd.OrderID,
					Status:  string(o.Status),
					Reason:  err.Error(),
				})
			}

			return nil, err
		}

		return nil, nil
	})

	return s.settle(ctx, env, err)
}

func (s *orderService) ConfirmOrder(ctx context.Context, env messaging.Envelope, cmd generalDomain.ConfirmOrderCommand) error {
	_, err := s.executor.Execute(ctx, command(cmd.OrderID, env), func(o *domain.Order, exists bool) ([]messaging.Message, error) {
		if !exists {
			return nil, fmt.Errorf("%w: order %s", aggregate.ErrNotFound, cmd.OrderID)
		}

		return nil, o.Confirm()
	})

	return s.settle(ctx, env, err)
}

// CancelOrder always answers: a cancel of an already cancelled order is
// acknowledged with a reply so compensation can finish.
func (s *orderService) CancelOrder(ctx context.Context, env messaging.Envelope, cmd generalDomain.CancelOrderCommand) error {
	_, err := s.executor.Execute(ctx, command(cmd.OrderID, env), func(o *domain.Order, _ bool) ([]messaging.Message, error) {
		if o.Status == domain.StatusCancelled {
			return reply(generalDomain.OrderCancelled, cmd.OrderID, o.Payload())
		}

		return nil, o.Cancel(cmd.Reason)
	})

	if err == nil {
		mylogger.Info(ctx, s.logger, "Order cancelled", zap.String("order_id", cmd.OrderID), zap.String("reason", cmd.Reason))
	}

	return s.settle(ctx, env, err)
}

func (s *orderService) settle(ctx context.Context, env messaging.Envelope, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, aggregate.ErrDuplicateCommand):
		mylogger.Debug(ctx, s.logger, "Duplicate command ignored", zap.String("key", env.DedupKey()))
		return nil
	case domain.IsBusinessError(err), errors.Is(err, aggregate.ErrNotFound):
		mylogger.Warn(ctx, s.logger, "Command refused", zap.String("type", env.Type), zap.Error(err))
		return nil
	default:
		return err
	}
}

func command(orderID string, env messaging.Envelope) aggregate.Command {
	return aggregate.Command{
		AggregateID:    orderID,
		Trigger:        env,
		IdempotencyKey: env.DedupKey(),
	}
}

func reply(messageType, orderID string, payload generalDomain.OrderPayload) ([]messaging.Message, error) {
	msg, err := generalDomain.NewReply(generalDomain.OrderEvents, messageType, generalDomain.AggregateOrder, orderID, payload)
	if err != nil {
		return nil, err
	}

	return []messaging.Message{msg}, nil
}
