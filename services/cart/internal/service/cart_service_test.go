package service

import (
	"context"
	"sync"
	"testing"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/store/memory"
	"github.com/sakashimaa/fulfillment/services/cart/internal/domain"
	"github.com/sakashimaa/fulfillment/services/cart/internal/repository"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type CartServiceSuite struct {
	suite.Suite

	ctx     context.Context
	store   *memory.Store
	service CartService
}

func (s *CartServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.service = NewCartService(repository.NewCartRepository(s.store), s.store, zap.NewNop())

	_, err := s.service.Create(s.ctx, "cart-1", "consumer-1")
	s.Require().NoError(err)
}

func (s *CartServiceSuite) checkOut(sagaID string) {
	cmd := generalDomain.CheckOutCartCommand{CartID: "cart-1", SagaID: sagaID}
	msg, err := generalDomain.NewCommand(generalDomain.CartCommands, generalDomain.CheckOutCart, generalDomain.AggregateCart, "cart-1", sagaID, sagaID+":CheckOutCart", cmd)
	s.Require().NoError(err)

	s.Require().NoError(s.service.CheckOutCart(s.ctx, msg.Envelope, cmd))
}

func (s *CartServiceSuite) last() messaging.Envelope {
	events := s.store.Messages(generalDomain.CartEvents)
	s.Require().NotEmpty(events)

	return events[len(events)-1]
}

func (s *CartServiceSuite) TestItemsAndCheckOut() {
	_, err := s.service.AddItem(s.ctx, "cart-1", "sock", 2, nil)
	s.Require().NoError(err)

	cart, err := s.service.ChangeItemQuantity(s.ctx, "cart-1", "sock", 4, nil)
	s.Require().NoError(err)
	s.Equal(int64(4), cart.Items[0].Quantity)

	s.checkOut("saga-1")

	cart, err = s.service.FindByID(s.ctx, "cart-1")
	s.Require().NoError(err)
	s.Equal(domain.StatusCheckedOut, cart.Status)

	last := s.last()
	s.Equal(generalDomain.CartCheckedOut, last.Type)
	s.Equal("saga-1", last.CorrelationID)
}

func (s *CartServiceSuite) TestCheckOutEmptyCartIsRejected() {
	s.checkOut("saga-1")

	last := s.last()
	s.Equal(generalDomain.CartCheckOutRejected, last.Type)
	s.Zero(last.Version)

	cart, err := s.service.FindByID(s.ctx, "cart-1")
	s.Require().NoError(err)
	s.Equal(domain.StatusOpen, cart.Status)
}

func (s *CartServiceSuite) TestStaleVersionConflicts() {
	stale := int64(1)

	_, err := s.service.AddItem(s.ctx, "cart-1", "sock", 1, &stale)
	s.Require().NoError(err)

	_, err = s.service.AddItem(s.ctx, "cart-1", "shoe", 1, &stale)
	s.ErrorIs(err, aggregate.ErrConcurrencyConflict)
}

func (s *CartServiceSuite) TestConcurrentAddsAreAllApplied() {
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.AddItem(s.ctx, "cart-1", "sock", 1, nil)
			s.NoError(err)
		}()
	}
	wg.Wait()

	cart, err := s.service.FindByID(s.ctx, "cart-1")
	s.Require().NoError(err)
	s.Equal(int64(5), cart.Items[0].Quantity)
}

func (s *CartServiceSuite) TestMissingCartIsNotFound() {
	_, err := s.service.AddItem(s.ctx, "nope", "sock", 1, nil)
	s.ErrorIs(err, aggregate.ErrNotFound)
}

func TestCartServiceSuite(t *testing.T) {
	suite.Run(t, new(CartServiceSuite))
}
