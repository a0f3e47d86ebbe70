package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/cart/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CartService interface {
	Create(ctx context.Context, id, consumerID string) (*domain.Cart, error)
	AddItem(ctx context.Context, id, productID string, quantity int64, expectedVersion *int64) (*domain.Cart, error)
	RemoveItem(ctx context.Context, id, productID string, expectedVersion *int64) (*domain.Cart, error)
	ChangeItemQuantity(ctx context.Context, id, productID string, quantity int64, expectedVersion *int64) (*domain.Cart, error)
	FindByID(ctx context.Context, id string) (*domain.Cart, error)

	CheckOutCart(ctx context.Context, env messaging.Envelope, cmd generalDomain.CheckOutCartCommand) error
}

type cartService struct {
	executor *aggregate.Executor[*domain.Cart]
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewCartService(repo *aggregate.Repository[*domain.Cart], store aggregate.Store, logger *zap.Logger) CartService {
	return &cartService{
		executor: aggregate.NewExecutor(repo, store, generalDomain.CartEvents, logger),
		logger:   logger,
		tracer:   otel.Tracer("service/cart_service"),
	}
}

func (s *cartService) Create(ctx context.Context, id, consumerID string) (*domain.Cart, error) {
	if id == "" {
		id = uuid.NewString()
	}

	cart, err := s.executor.Execute(ctx, aggregate.Command{AggregateID: id}, func(c *domain.Cart, _ bool) ([]messaging.Message, error) {
		return nil, c.Create(consumerID)
	})
	if err != nil {
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Cart created", zap.String("cart_id", id), zap.String("consumer_id", consumerID))

	return cart, nil
}

func (s *cartService) AddItem(
	ctx context.Context,
	id, productID string,
	quantity int64,
	expectedVersion *int64,
) (*domain.Cart, error) {
	return s.mutate(ctx, id, expectedVersion, func(c *domain.Cart) error {
		return c.AddItem(productID, quantity)
	})
}

func (s *cartService) RemoveItem(ctx context.Context, id, productID string, expectedVersion *int64) (*domain.Cart, error) {
	return s.mutate(ctx, id, expectedVersion, func(c *domain.Cart) error {
		return c.RemoveItem(productID)
	})
}

func (s *cartService) ChangeItemQuantity(
	ctx context.Context,
	id, productID string,
	quantity int64,
	expectedVersion *int64,
) (*domain.Cart, error) {
	return s.mutate(ctx, id, expectedVersion, func(c *domain.Cart) error {
		return c.ChangeItemQuantity(productID, quantity)
	})
}

func (s *cartService) FindByID(ctx context.Context, id string) (*domain.Cart, error) {
	return s.executor.Repository().Load(ctx, id)
}

// CheckOutCart closes the cart once its saga completed. A cart that cannot be
// checked out is answered with CartCheckOutRejected; the order stands either way.
func (s *cartService) CheckOutCart(ctx context.Context, env messaging.Envelope, cmd generalDomain.CheckOutCartCommand) error {
	ctx, span := s.tracer.Start(ctx, "CartService.CheckOutCart")
	defer span.End()

	span.SetAttributes(attribute.String("cart_id", cmd.CartID), attribute.String("saga_id", cmd.SagaID))

	cmdInfo := aggregate.Command{
		AggregateID:    cmd.CartID,
		Trigger:        env,
		IdempotencyKey: env.DedupKey(),
	}

	_, err := s.executor.Execute(ctx, cmdInfo, func(c *domain.Cart, exists bool) ([]messaging.Message, error) {
		if !exists {
			return rejected(c, "unknown cart")
		}

		changed, err := c.CheckOut(cmd.SagaID)
		switch {
		case err != nil && domain.IsBusinessError(err):
			mylogger.Warn(ctx, s.logger, "Cart check out rejected", zap.String("cart_id", cmd.CartID), zap.Error(err))
			return rejected(c, err.Error())
		case err != nil:
			return nil, err
		case !changed:
			return reply(generalDomain.CartCheckedOut, c)
		default:
			return nil, nil
		}
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, aggregate.ErrDuplicateCommand):
		mylogger.Debug(ctx, s.logger, "Duplicate command ignored", zap.String("key", env.DedupKey()))
		return nil
	default:
		span.RecordError(err)
		return err
	}
}

func (s *cartService) mutate(
	ctx context.Context,
	id string,
	expectedVersion *int64,
	fn func(c *domain.Cart) error,
) (*domain.Cart, error) {
	cmd := aggregate.Command{AggregateID: id, ExpectedVersion: expectedVersion}

	return s.executor.Execute(ctx, cmd, func(c *domain.Cart, exists bool) ([]messaging.Message, error) {
		if !exists {
			return nil, fmt.Errorf("%w: cart %s", aggregate.ErrNotFound, id)
		}

		return nil, fn(c)
	})
}

func rejected(c *domain.Cart, reason string) ([]messaging.Message, error) {
	payload := c.Payload()
	payload.Reason = reason

	msg, err := generalDomain.NewReply(generalDomain.CartEvents, generalDomain.CartCheckOutRejected, generalDomain.AggregateCart, c.ID(), payload)
	if err != nil {
		return nil, err
	}

	return []messaging.Message{msg}, nil
}

func reply(messageType string, c *domain.Cart) ([]messaging.Message, error) {
	msg, err := generalDomain.NewReply(generalDomain.CartEvents, messageType, generalDomain.AggregateCart, c.ID(), c.Payload())
	if err != nil {
		return nil, err
	}

	return []messaging.Message{msg}, nil
}
