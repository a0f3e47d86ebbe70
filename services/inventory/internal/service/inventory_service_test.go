package service

import (
	"context"
	"sync"
	"testing"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/store/memory"
	"github.com/sakashimaa/fulfillment/services/inventory/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type InventoryServiceSuite struct {
	suite.Suite

	ctx     context.Context
	store   *memory.Store
	service InventoryService
}

func (s *InventoryServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.service = NewInventoryService(repository.NewProductRepository(s.store), s.store, zap.NewNop())

	_, err := s.service.CreateProduct(s.ctx, "sku-1", "Vinyl", decimal.NewFromInt(20), 5)
	s.Require().NoError(err)
}

func (s *InventoryServiceSuite) reserveCommand(sagaID string, quantity int64) (messaging.Envelope, generalDomain.ReserveInventoryCommand) {
	cmd := generalDomain.ReserveInventoryCommand{
		ReservationID: sagaID + ":sku-1",
		ProductID:     "sku-1",
		Quantity:      quantity,
	}

	msg, err := generalDomain.NewCommand(
		generalDomain.InventoryCommands,
		generalDomain.ReserveInventory,
		generalDomain.AggregateInventory,
		"sku-1",
		sagaID,
		sagaID+":ReserveInventory:sku-1",
		cmd,
	)
	s.Require().NoError(err)

	return msg.Envelope, cmd
}

func (s *InventoryServiceSuite) events() []messaging.Envelope {
	return s.store.Messages(generalDomain.InventoryEvents)
}

func (s *InventoryServiceSuite) TestReserve_EmitsVersionedEvent() {
	env, cmd := s.reserveCommand("saga-1", 3)

	s.Require().NoError(s.service.Reserve(s.ctx, env, cmd))

	events := s.events()
	s.Require().Len(events, 2)

	reserved := events[1]
	s.Equal(generalDomain.InventoryReserved, reserved.Type)
	s.Equal(int64(2), reserved.Version)
	s.Equal("saga-1", reserved.CorrelationID)
	s.Equal(env.ID, reserved.CausationID)

	var payload generalDomain.ReservationPayload
	s.Require().NoError(reserved.Decode(&payload))
	s.Equal(int64(3), payload.Stock.Reserved)
	s.True(payload.UnitPrice.Equal(decimal.NewFromInt(20)))
}

func (s *InventoryServiceSuite) TestReserve_InsufficientStockRepliesFailure() {
	env, cmd := s.reserveCommand("saga-1", 3)
	s.Require().NoError(s.service.Reserve(s.ctx, env, cmd))

	env, cmd = s.reserveCommand("saga-2", 3)
	s.Require().NoError(s.service.Reserve(s.ctx, env, cmd))

	events := s.events()
	s.Require().Len(events, 3)

	failed := events[2]
	s.Equal(generalDomain.InventoryReservationFailed, failed.Type)
	s.Zero(failed.Version)
	s.Equal("saga-2", failed.CorrelationID)

	product, err := s.service.FindByID(s.ctx, "sku-1")
	s.Require().NoError(err)
	s.Equal(int64(3), product.Reserved)
	s.Equal(int64(5), product.Available)
}

func (s *InventoryServiceSuite) TestReserve_UnknownProductRepliesFailure() {
	env, cmd := s.reserveCommand("saga-1", 1)
	cmd.ProductID = "missing"

	s.Require().NoError(s.service.Reserve(s.ctx, env, cmd))

	events := s.events()
	s.Require().Len(events, 2)
	s.Equal(generalDomain.InventoryReservationFailed, events[1].Type)

	_, err := s.service.FindByID(s.ctx, "missing")
	s.ErrorIs(err, aggregate.ErrNotFound)
}

func (s *InventoryServiceSuite) TestReserve_RedeliveredMessageIsNoop() {
	env, cmd := s.reserveCommand("saga-1", 3)

	s.Require().NoError(s.service.Reserve(s.ctx, env, cmd))
	s.Require().NoError(s.service.Reserve(s.ctx, env, cmd))

	s.Len(s.events(), 2)

	product, err := s.service.FindByID(s.ctx, "sku-1")
	s.Require().NoError(err)
	s.Equal(int64(3), product.Reserved)
}

func (s *InventoryServiceSuite) TestRelease_RetriedCommandReemitsReply() {
	env, cmd := s.reserveCommand("saga-1", 3)
	s.Require().NoError(s.service.Reserve(s.ctx, env, cmd))

	release := generalDomain.ReleaseInventoryCommand{ReservationID: cmd.ReservationID, ProductID: "sku-1"}
	first, err := generalDomain.NewCommand(generalDomain.InventoryCommands, generalDomain.ReleaseInventory,
		generalDomain.AggregateInventory, "sku-1", "saga-1", "saga-1:ReleaseInventory:sku-1", release)
	s.Require().NoError(err)
	retry, err := generalDomain.NewCommand(generalDomain.InventoryCommands, generalDomain.ReleaseInventory,
		generalDomain.AggregateInventory, "sku-1", "saga-1", "saga-1:ReleaseInventory:sku-1", release)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Release(s.ctx, first.Envelope, release))
	s.Require().NoError(s.service.Release(s.ctx, retry.Envelope, release))

	events := s.events()
	s.Require().Len(events, 4)
	s.Equal(generalDomain.InventoryReleased, events[2].Type)
	s.Equal(events[2].ID, events[3].ID)

	product, err := s.service.FindByID(s.ctx, "sku-1")
	s.Require().NoError(err)
	s.Zero(product.Reserved)
	s.Equal(int64(3), product.Version())
}

func (s *InventoryServiceSuite) TestRelease_UnknownProductAcks() {
	release := generalDomain.ReleaseInventoryCommand{ReservationID: "saga-1:missing", ProductID: "missing"}
	msg, err := generalDomain.NewCommand(generalDomain.InventoryCommands, generalDomain.ReleaseInventory,
		generalDomain.AggregateInventory, "missing", "saga-1", "saga-1:ReleaseInventory:missing", release)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Release(s.ctx, msg.Envelope, release))

	events := s.events()
	s.Require().Len(events, 2)
	s.Equal(generalDomain.InventoryReleased, events[1].Type)
	s.Zero(events[1].Version)
}

func (s *InventoryServiceSuite) TestConfirm_ConsumesStock() {
	env, cmd := s.reserveCommand("saga-1", 2)
	s.Require().NoError(s.service.Reserve(s.ctx, env, cmd))

	confirm := generalDomain.ConfirmInventoryCommand{ReservationID: cmd.ReservationID, ProductID: "sku-1"}
	msg, err := generalDomain.NewCommand(generalDomain.InventoryCommands, generalDomain.ConfirmInventory,
		generalDomain.AggregateInventory, "sku-1", "saga-1", "saga-1:ConfirmInventory:sku-1", confirm)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Confirm(s.ctx, msg.Envelope, confirm))

	product, err := s.service.FindByID(s.ctx, "sku-1")
	s.Require().NoError(err)
	s.Equal(int64(3), product.Available)
	s.Zero(product.Reserved)
}

func (s *InventoryServiceSuite) TestRestock_ConcurrentWritersOnSameVersion() {
	expected := int64(1)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.service.Restock(s.ctx, "sku-1", 1, &expected)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case s.ErrorIs(err, aggregate.ErrConcurrencyConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded)
	s.Equal(1, conflicts)

	product, err := s.service.FindByID(s.ctx, "sku-1")
	s.Require().NoError(err)
	s.Equal(int64(6), product.Available)
	s.Equal(int64(2), product.Version())
}

func (s *InventoryServiceSuite) TestRestock_UnknownProduct() {
	_, err := s.service.Restock(s.ctx, "missing", 1, nil)
	s.ErrorIs(err, aggregate.ErrNotFound)
}

func TestInventoryServiceSuite(t *testing.T) {
	suite.Run(t, new(InventoryServiceSuite))
}
