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
	"github.com/sakashimaa/fulfillment/services/inventory/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type InventoryService interface {
	CreateProduct(ctx context.Context, id, name string, unitPrice decimal.Decimal, available int64) (*domain.Product, error)
	Restock(ctx context.Context, id string, delta int64, expectedVersion *int64) (*domain.Product, error)
	ChangePrice(ctx context.Context, id string, unitPrice decimal.Decimal, expectedVersion *int64) (*domain.Product, error)
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context) ([]*domain.Product, error)

	Reserve(ctx context.Context, env messaging.Envelope, cmd generalDomain.ReserveInventoryCommand) error
	Release(ctx context.Context, env messaging.Envelope, cmd generalDomain.ReleaseInventoryCommand) error
	Confirm(ctx context.Context, env messaging.Envelope, cmd generalDomain.ConfirmInventoryCommand) error
}

type inventoryService struct {
	executor *aggregate.Executor[*domain.Product]
	logger   *zap.Logger
}

func NewInventoryService(
	repo *aggregate.Repository[*domain.Product],
	store aggregate.Store,
	logger *zap.Logger,
) InventoryService {
	return &inventoryService{
		executor: aggregate.NewExecutor(repo, store, generalDomain.InventoryEvents, logger),
		logger:   logger,
	}
}

func (s *inventoryService) CreateProduct(
	ctx context.Context,
	id, name string,
	unitPrice decimal.Decimal,
	available int64,
) (*domain.Product, error) {
	if id == "" {
		id = uuid.NewString()
	}

	product, err := s.executor.Execute(ctx, aggregate.Command{AggregateID: id}, func(p *domain.Product, _ bool) ([]messaging.Message, error) {
		return nil, p.Create(name, unitPrice, available)
	})
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Failed to create product", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Product created", zap.String("product_id", id), zap.Int64("available", available))

	return product, nil
}

func (s *inventoryService) Restock(ctx context.Context, id string, delta int64, expectedVersion *int64) (*domain.Product, error) {
	return s.executor.Execute(ctx, aggregate.Command{AggregateID: id, ExpectedVersion: expectedVersion}, existing(func(p *domain.Product) error {
		return p.Restock(delta)
	}))
}

func (s *inventoryService) ChangePrice(
	ctx context.Context,
	id string,
	unitPrice decimal.Decimal,
	expectedVersion *int64,
) (*domain.Product, error) {
	return s.executor.Execute(ctx, aggregate.Command{AggregateID: id, ExpectedVersion: expectedVersion}, existing(func(p *domain.Product) error {
		return p.ChangePrice(unitPrice)
	}))
}

func (s *inventoryService) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	return s.executor.Repository().Load(ctx, id)
}

func (s *inventoryService) List(ctx context.Context) ([]*domain.Product, error) {
	return s.executor.Repository().List(ctx, false)
}

func (s *inventoryService) Reserve(ctx context.Context, env messaging.Envelope, cmd generalDomain.ReserveInventoryCommand) error {
	_, err := s.executor.Execute(ctx, s.command(cmd.ProductID, env), func(p *domain.Product, exists bool) ([]messaging.Message, error) {
		if !exists {
			return reservationFailed(cmd, "unknown product")
		}

		res, changed, err := p.Reserve(cmd.ReservationID, cmd.Quantity)
		if err != nil {
			if domain.IsBusinessError(err) {
				mylogger.Warn(ctx, s.logger, "Reservation refused", zap.String("product_id", cmd.ProductID), zap.Error(err))
				return reservationFailed(cmd, err.Error())
			}

			return nil, err
		}

		if !changed {
			return reservationReply(p, generalDomain.InventoryReserved, cmd.ReservationID, res)
		}

		return nil, nil
	})

	return s.settle(ctx, env, err)
}

func (s *inventoryService) Release(ctx context.Context, env messaging.Envelope, cmd generalDomain.ReleaseInventoryCommand) error {
	_, err := s.executor.Execute(ctx, s.command(cmd.ProductID, env), func(p *domain.Product, exists bool) ([]messaging.Message, error) {
		if !exists {
			return ack(generalDomain.InventoryReleased, cmd.ProductID, generalDomain.ReservationPayload{
				ReservationID: cmd.ReservationID,
				ProductID:     cmd.ProductID,
			})
		}

		res, changed, err := p.Release(cmd.ReservationID)
		if err != nil {
			return nil, err
		}

		if !changed {
			return reservationReply(p, generalDomain.InventoryReleased, cmd.ReservationID, res)
		}

		return nil, nil
	})

	return s.settle(ctx, env, err)
}

func (s *inventoryService) Confirm(ctx context.Context, env messaging.Envelope, cmd generalDomain.ConfirmInventoryCommand) error {
	_, err := s.executor.Execute(ctx, s.command(cmd.ProductID, env), func(p *domain.Product, exists bool) ([]messaging.Message, error) {
		if !exists {
			return nil, fmt.Errorf("%w: product %s", aggregate.ErrNotFound, cmd.ProductID)
		}

		_, _, err := p.Confirm(cmd.ReservationID)

		return nil, err
	})

	return s.settle(ctx, env, err)
}

func (s *inventoryService) command(productID string, env messaging.Envelope) aggregate.Command {
	return aggregate.Command{
		AggregateID:    productID,
		Trigger:        env,
		IdempotencyKey: env.DedupKey(),
	}
}

// settle decides whether a command failure is acknowledged or redelivered.
// Duplicates and business refusals are final; everything else is retried.
func (s *inventoryService) settle(ctx context.Context, env messaging.Envelope, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, aggregate.ErrDuplicateCommand):
		mylogger.Debug(ctx, s.logger, "Duplicate command ignored", zap.String("key", env.DedupKey()), zap.String("type", env.Type))
		return nil
	case domain.IsBusinessError(err), errors.Is(err, aggregate.ErrNotFound):
		mylogger.Warn(ctx, s.logger, "Command refused", zap.String("type", env.Type), zap.String("aggregate_id", env.AggregateID), zap.Error(err))
		return nil
	default:
		return err
	}
}

func existing(fn func(p *domain.Product) error) aggregate.Decide[*domain.Product] {
	return func(p *domain.Product, exists bool) ([]messaging.Message, error) {
		if !exists {
			return nil, fmt.Errorf("%w: product %s", aggregate.ErrNotFound, p.ID())
		}

		return nil, fn(p)
	}
}

func reservationFailed(cmd generalDomain.ReserveInventoryCommand, reason string) ([]messaging.Message, error) {
	return ack(generalDomain.InventoryReservationFailed, cmd.ProductID, generalDomain.ReservationPayload{
		ReservationID: cmd.ReservationID,
		ProductID:     cmd.ProductID,
		Quantity:      cmd.Quantity,
		Reason:        reason,
	})
}

func reservationReply(p *domain.Product, messageType, reservationID string, res *domain.Reservation) ([]messaging.Message, error) {
	return ack(messageType, p.ID(), generalDomain.ReservationPayload{
		ReservationID: reservationID,
		ProductID:     p.ID(),
		Name:          p.Name,
		Quantity:      res.Quantity,
		UnitPrice:     res.UnitPrice,
		Stock:         p.Stock(),
	})
}

func ack(messageType, productID string, payload any) ([]messaging.Message, error) {
	reply, err := generalDomain.NewReply(generalDomain.InventoryEvents, messageType, generalDomain.AggregateInventory, productID, payload)
	if err != nil {
		return nil, err
	}

	return []messaging.Message{reply}, nil
}
