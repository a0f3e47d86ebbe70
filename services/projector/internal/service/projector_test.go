package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/store/memory"
	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"github.com/sakashimaa/fulfillment/services/projector/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type ProjectorSuite struct {
	suite.Suite

	ctx       context.Context
	now       time.Time
	rows      *repository.MemoryRowStore
	store     *memory.Store
	projector *Projector
	queries   QueryService
}

func (s *ProjectorSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.rows = repository.NewMemoryRowStore()
	s.store = memory.NewStore()
	s.projector = s.newProjector(Options{MaxBuffered: 10, MaxBufferAge: time.Minute})
	s.queries = NewQueryService(s.rows)
}

func (s *ProjectorSuite) newProjector(opts Options) *Projector {
	sources := Sources{}
	for _, aggregateType := range []string{
		generalDomain.AggregateInventory,
		generalDomain.AggregateCart,
		generalDomain.AggregateOrder,
		generalDomain.AggregatePayment,
		generalDomain.AggregateRating,
		generalDomain.AggregateSaga,
	} {
		sources[aggregateType] = s.store
	}

	return NewProjector(s.rows, sources, opts, zap.NewNop(), WithClock(func() time.Time { return s.now }))
}

func (s *ProjectorSuite) event(aggregateType, id, kind string, version int64, payload any) messaging.Envelope {
	data, err := json.Marshal(payload)
	s.Require().NoError(err)

	return messaging.Envelope{
		ID:            uuid.NewString(),
		Type:          kind,
		AggregateType: aggregateType,
		AggregateID:   id,
		Version:       version,
		Payload:       data,
		OccurredAt:    s.now,
	}
}

func (s *ProjectorSuite) product(version int64, kind string, available, reserved int64) messaging.Envelope {
	return s.event(generalDomain.AggregateInventory, "sock", kind, version, generalDomain.ProductPayload{
		ProductID: "sock",
		Name:      "Wool sock",
		UnitPrice: decimal.NewFromInt(5),
		Stock:     generalDomain.Stock{Available: available, Reserved: reserved},
	})
}

func (s *ProjectorSuite) handle(envs ...messaging.Envelope) {
	for _, env := range envs {
		s.Require().NoError(s.projector.Handle(s.ctx, env))
	}
}

func (s *ProjectorSuite) storeSnapshot(aggregateType, id string, version int64, state any) {
	data, err := json.Marshal(state)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Commit(s.ctx, aggregate.Mutation{
		Snapshot: &aggregate.Snapshot{
			AggregateType: aggregateType,
			AggregateID:   id,
			Version:       version,
			State:         data,
			UpdatedAt:     s.now,
		},
	}))
}

func (s *ProjectorSuite) catalogRow() *domain.Row {
	row, err := s.rows.Get(s.ctx, domain.ViewCatalog, "sock")
	s.Require().NoError(err)

	return row
}

func (s *ProjectorSuite) TestAppliesInOrderAndDropsDuplicates() {
	restock := s.product(2, generalDomain.InventoryRestocked, 15, 0)

	s.handle(
		s.product(1, generalDomain.ProductCreated, 10, 0),
		restock,
		restock,
		s.product(1, generalDomain.ProductCreated, 10, 0),
	)

	item, err := s.queries.Product(s.ctx, "sock")
	s.Require().NoError(err)
	s.Equal(int64(15), item.Available)
	s.Equal("Wool sock", item.Name)
	s.Equal(int64(2), s.catalogRow().Version)
}

func (s *ProjectorSuite) TestReservationsReduceAvailability() {
	s.handle(
		s.product(1, generalDomain.ProductCreated, 10, 0),
		s.event(generalDomain.AggregateInventory, "sock", generalDomain.InventoryReserved, 2, generalDomain.ReservationPayload{
			ReservationID: "saga-1:sock",
			ProductID:     "sock",
			Quantity:      3,
			Stock:         generalDomain.Stock{Available: 10, Reserved: 3},
		}),
	)

	item, err := s.queries.Product(s.ctx, "sock")
	s.Require().NoError(err)
	s.Equal(int64(7), item.Available)
	s.Equal(int64(10), item.OnHand)
	s.Equal(int64(3), item.Reserved)
}

func (s *ProjectorSuite) TestBuffersUntilGapCloses() {
	s.handle(
		s.product(1, generalDomain.ProductCreated, 10, 0),
		s.product(3, generalDomain.InventoryRestocked, 30, 0),
	)

	s.Equal(1, s.projector.Buffered())
	s.Equal(int64(1), s.catalogRow().Version)

	s.handle(s.product(2, generalDomain.InventoryRestocked, 20, 0))

	s.Equal(0, s.projector.Buffered())
	s.Equal(int64(3), s.catalogRow().Version)

	item, err := s.queries.Product(s.ctx, "sock")
	s.Require().NoError(err)
	s.Equal(int64(30), item.Available)
}

func (s *ProjectorSuite) TestOverflowingGapRebuildsFromSnapshot() {
	s.projector = s.newProjector(Options{MaxBuffered: 1, MaxBufferAge: time.Hour})
	s.storeSnapshot(generalDomain.AggregateInventory, "sock", 4, map[string]any{
		"name":      "Wool sock",
		"unitPrice": "6",
		"available": 40,
		"reserved":  2,
	})

	s.handle(
		s.product(1, generalDomain.ProductCreated, 10, 0),
		s.product(3, generalDomain.InventoryRestocked, 30, 0),
		s.product(4, generalDomain.InventoryRestocked, 40, 2),
	)

	s.Equal(0, s.projector.Buffered())
	s.Equal(int64(4), s.catalogRow().Version)

	item, err := s.queries.Product(s.ctx, "sock")
	s.Require().NoError(err)
	s.Equal(int64(38), item.Available)
	s.True(decimal.NewFromInt(6).Equal(item.UnitPrice))

	// the missing event arrives late and is dropped
	s.handle(s.product(2, generalDomain.InventoryRestocked, 20, 0))
	s.Equal(int64(4), s.catalogRow().Version)
}

func (s *ProjectorSuite) TestSweepRebuildsStaleGap() {
	s.handle(
		s.product(1, generalDomain.ProductCreated, 10, 0),
		s.product(3, generalDomain.InventoryRestocked, 30, 0),
	)
	s.storeSnapshot(generalDomain.AggregateInventory, "sock", 3, map[string]any{
		"name":      "Wool sock",
		"unitPrice": "5",
		"available": 30,
		"reserved":  0,
	})

	s.Require().NoError(s.projector.Sweep(s.ctx))
	s.Equal(1, s.projector.Buffered())

	s.now = s.now.Add(2 * time.Minute)
	s.Require().NoError(s.projector.Sweep(s.ctx))

	s.Equal(0, s.projector.Buffered())
	s.Equal(int64(3), s.catalogRow().Version)
}

func (s *ProjectorSuite) TestSkipsReplies() {
	reply := s.product(0, generalDomain.InventoryReservationFailed, 0, 0)

	s.handle(reply)

	_, err := s.rows.Get(s.ctx, domain.ViewCatalog, "sock")
	s.ErrorIs(err, domain.ErrRowNotFound)
}

func (s *ProjectorSuite) TestOrderHistoryCarriesPaymentStatus() {
	order := generalDomain.OrderPayload{
		OrderID:    "order-1",
		ConsumerID: "consumer-1",
		Items:      []generalDomain.LineItem{{ProductID: "sock", Quantity: 2, UnitPrice: decimal.NewFromInt(5)}},
		Total:      decimal.NewFromInt(10),
		Status:     "PENDING",
	}
	payment := generalDomain.PaymentPayload{
		PaymentID: "payment-1",
		OrderID:   "order-1",
		Amount:    decimal.NewFromInt(10),
		Status:    "PENDING",
	}

	// payment projected before the order it belongs to
	s.handle(s.event(generalDomain.AggregatePayment, "payment-1", generalDomain.PaymentCreated, 1, payment))
	s.handle(s.event(generalDomain.AggregateOrder, "order-1", generalDomain.OrderCreated, 1, order))

	history, err := s.queries.OrderHistory(s.ctx, "consumer-1")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal("payment-1", history[0].PaymentID)
	s.Equal("PENDING", history[0].PaymentStatus)

	payment.Status = "COMPLETED"
	order.Status = "CONFIRMED"
	s.handle(
		s.event(generalDomain.AggregatePayment, "payment-1", generalDomain.PaymentCompleted, 2, payment),
		s.event(generalDomain.AggregateOrder, "order-1", generalDomain.OrderConfirmed, 2, order),
	)

	entry, err := s.queries.Order(s.ctx, "order-1")
	s.Require().NoError(err)
	s.Equal("CONFIRMED", entry.Status)
	s.Equal("COMPLETED", entry.PaymentStatus)

	view, err := s.queries.Payment(s.ctx, "payment-1")
	s.Require().NoError(err)
	s.Equal("order-1", view.OrderID)
	s.Equal("COMPLETED", view.Status)
}

func (s *ProjectorSuite) TestCartIsPricedFromCatalog() {
	s.handle(
		s.product(1, generalDomain.ProductCreated, 10, 0),
		s.event(generalDomain.AggregateCart, "cart-1", generalDomain.CartCreated, 1, generalDomain.CartPayload{
			CartID:     "cart-1",
			ConsumerID: "consumer-1",
			Status:     "OPEN",
		}),
		s.event(generalDomain.AggregateCart, "cart-1", generalDomain.CartItemAdded, 2, generalDomain.CartPayload{
			CartID:     "cart-1",
			ConsumerID: "consumer-1",
			Status:     "OPEN",
			Items:      []generalDomain.CartItem{{ProductID: "sock", Quantity: 3}, {ProductID: "unknown", Quantity: 1}},
		}),
	)

	cart, err := s.queries.Cart(s.ctx, "cart-1")
	s.Require().NoError(err)
	s.Require().Len(cart.Items, 2)
	s.Equal("Wool sock", cart.Items[0].Name)
	s.True(decimal.NewFromInt(15).Equal(cart.Total))
}

func (s *ProjectorSuite) TestRatingSummary() {
	for i, score := range []int{5, 4, 4} {
		id := uuid.NewString()
		s.handle(s.event(generalDomain.AggregateRating, id, generalDomain.RatingSubmitted, 1, generalDomain.RatingPayload{
			RatingID:   id,
			CustomerID: "consumer-" + string(rune('a'+i)),
			TargetID:   "sock",
			Score:      score,
		}))
	}

	summary, err := s.queries.RatingSummary(s.ctx, "sock")
	s.Require().NoError(err)
	s.Equal(3, summary.Count)
	s.Equal("4.33", summary.Average.StringFixed(2))
	s.Equal(2, summary.Distribution[4])

	empty, err := s.queries.RatingSummary(s.ctx, "nothing")
	s.Require().NoError(err)
	s.Zero(empty.Count)
}

func (s *ProjectorSuite) TestRebuildAllFromSnapshots() {
	s.storeSnapshot(generalDomain.AggregateSaga, "saga-1", 5, map[string]any{
		"consumerId":  "consumer-1",
		"state":       "COMPLETED",
		"orderId":     "order-1",
		"orderStatus": "created",
		"total":       "10",
		"updatedAt":   s.now,
	})
	s.storeSnapshot(generalDomain.AggregateSaga, "saga-2", 2, map[string]any{
		"consumerId":  "consumer-1",
		"state":       "STARTED",
		"orderId":     "order-2",
		"orderStatus": "requested",
		"total":       "4",
		"updatedAt":   s.now,
	})

	n, err := s.projector.RebuildAll(s.ctx, generalDomain.AggregateSaga)
	s.Require().NoError(err)
	s.Equal(2, n)

	checkouts, err := s.queries.Checkouts(s.ctx, "consumer-1")
	s.Require().NoError(err)
	s.Require().Len(checkouts, 2)
	s.True(checkouts[0].Terminal)
	s.Equal("order-1", checkouts[0].OrderID)
	s.False(checkouts[1].Terminal)
	s.Empty(checkouts[1].OrderID)

	// later events continue from the rebuilt version
	s.handle(s.event(generalDomain.AggregateSaga, "saga-2", generalDomain.SagaUpdated, 3, generalDomain.SagaPayload{
		SagaID:     "saga-2",
		ConsumerID: "consumer-1",
		State:      "INVENTORY_RESERVED",
	}))

	checkout, err := s.queries.Checkout(s.ctx, "saga-2")
	s.Require().NoError(err)
	s.Equal("INVENTORY_RESERVED", checkout.State)

	_, err = s.projector.RebuildAll(s.ctx, "Unknown")
	s.ErrorIs(err, aggregate.ErrInvalidArgument)
}

func TestProjectorSuite(t *testing.T) {
	suite.Run(t, new(ProjectorSuite))
}
