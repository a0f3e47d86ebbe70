package sandbox_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sakashimaa/fulfillment/internal/sandbox"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	notification "github.com/sakashimaa/fulfillment/services/notification/app"
	orchestrator "github.com/sakashimaa/fulfillment/services/orchestrator/app"
	payment "github.com/sakashimaa/fulfillment/services/payment/app"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

type PlatformSuite struct {
	suite.Suite

	platform *sandbox.Platform
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func TestPlatformSuite(t *testing.T) {
	suite.Run(t, new(PlatformSuite))
}

func (s *PlatformSuite) SetupTest() {
	opts := sandbox.DefaultOptions()
	opts.Channel = messaging.RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
	opts.OutboxInterval = 5 * time.Millisecond
	opts.PaymentLimit = decimal.NewFromInt(1000)

	s.platform = sandbox.New(opts, zap.NewNop())
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.platform.Run(s.ctx)
	}()

	s.product("sock", "Wool sock", 5, 100)
	s.product("boot", "Hiking boot", 120, 10)
}

func (s *PlatformSuite) TearDownTest() {
	s.cancel()
	s.wg.Wait()
}

func (s *PlatformSuite) product(id, name string, price, stock int64) {
	_, err := s.platform.Inventory.Service.CreateProduct(s.ctx, id, name, decimal.NewFromInt(price), stock)
	s.Require().NoError(err)
}

func (s *PlatformSuite) checkout(req orchestrator.StartRequest) string {
	saga, err := s.platform.Orchestrator.Service.Start(s.ctx, req)
	s.Require().NoError(err)

	return saga.ID()
}

func (s *PlatformSuite) awaitState(sagaID, state string) {
	s.Require().Eventually(func() bool {
		saga, err := s.platform.Orchestrator.Service.Get(s.ctx, sagaID)
		return err == nil && string(saga.State) == state
	}, waitFor, tick, "saga %s never reached %s", sagaID, state)
}

func (s *PlatformSuite) TestCheckoutCompletes() {
	sagaID := s.checkout(orchestrator.StartRequest{
		IdempotencyKey: "happy",
		ConsumerID:     "alice",
		PaymentMethod:  "card",
		Items: []generalDomain.LineItem{
			{ProductID: "sock", Quantity: 2},
			{ProductID: "boot", Quantity: 1},
		},
	})

	s.awaitState(sagaID, "COMPLETED")

	saga, err := s.platform.Orchestrator.Service.Get(s.ctx, sagaID)
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(130).Equal(saga.Total))

	order, err := s.platform.Orders.Service.FindByID(s.ctx, saga.OrderID)
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(130).Equal(order.Total))

	s.Require().Eventually(func() bool {
		order, err := s.platform.Orders.Service.FindByID(s.ctx, saga.OrderID)
		return err == nil && string(order.Status) == "CONFIRMED"
	}, waitFor, tick)

	paid, err := s.platform.Payments.Service.FindByID(s.ctx, saga.PaymentID)
	s.Require().NoError(err)
	s.Equal("COMPLETED", string(paid.Status))

	s.Require().Eventually(func() bool {
		boot, err := s.platform.Inventory.Service.FindByID(s.ctx, "boot")
		return err == nil && boot.Available == 9 && boot.Reserved == 0
	}, waitFor, tick)
}

func (s *PlatformSuite) TestRepeatedCheckoutRequestStartsOneSaga() {
	req := orchestrator.StartRequest{
		IdempotencyKey: "twice",
		ConsumerID:     "alice",
		PaymentMethod:  "card",
		Items:          []generalDomain.LineItem{{ProductID: "sock", Quantity: 1}},
	}

	first := s.checkout(req)
	second := s.checkout(req)
	s.Equal(first, second)

	s.awaitState(first, "COMPLETED")

	s.Require().Eventually(func() bool {
		sock, err := s.platform.Inventory.Service.FindByID(s.ctx, "sock")
		return err == nil && sock.Available == 99
	}, waitFor, tick)
}

func (s *PlatformSuite) TestDeclinedPaymentCompensates() {
	sagaID := s.checkout(orchestrator.StartRequest{
		IdempotencyKey: "declined",
		ConsumerID:     "bob",
		PaymentMethod:  payment.DeclinedMethod,
		Items:          []generalDomain.LineItem{{ProductID: "boot", Quantity: 2}},
	})

	s.awaitState(sagaID, "COMPENSATED")

	saga, err := s.platform.Orchestrator.Service.Get(s.ctx, sagaID)
	s.Require().NoError(err)
	s.Contains(saga.FailureReason, "payment failed")

	order, err := s.platform.Orders.Service.FindByID(s.ctx, saga.OrderID)
	s.Require().NoError(err)
	s.Equal("CANCELLED", string(order.Status))

	boot, err := s.platform.Inventory.Service.FindByID(s.ctx, "boot")
	s.Require().NoError(err)
	s.Equal(int64(10), boot.Available)
	s.Equal(int64(0), boot.Reserved)
}

func (s *PlatformSuite) TestChargeAboveLimitCompensates() {
	sagaID := s.checkout(orchestrator.StartRequest{
		IdempotencyKey: "too-expensive",
		ConsumerID:     "bob",
		PaymentMethod:  "card",
		Items:          []generalDomain.LineItem{{ProductID: "boot", Quantity: 9}},
	})

	s.awaitState(sagaID, "COMPENSATED")

	boot, err := s.platform.Inventory.Service.FindByID(s.ctx, "boot")
	s.Require().NoError(err)
	s.Equal(int64(0), boot.Reserved)
}

func (s *PlatformSuite) TestInsufficientStockReleasesOtherReservations() {
	sagaID := s.checkout(orchestrator.StartRequest{
		IdempotencyKey: "short",
		ConsumerID:     "carol",
		PaymentMethod:  "card",
		Items: []generalDomain.LineItem{
			{ProductID: "sock", Quantity: 3},
			{ProductID: "boot", Quantity: 11},
		},
	})

	s.awaitState(sagaID, "COMPENSATED")

	saga, err := s.platform.Orchestrator.Service.Get(s.ctx, sagaID)
	s.Require().NoError(err)
	s.Empty(string(saga.PaymentStatus))
	s.Contains(saga.FailureReason, "boot")

	for _, id := range []string{"sock", "boot"} {
		product, err := s.platform.Inventory.Service.FindByID(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(int64(0), product.Reserved, id)
	}

	sock, err := s.platform.Inventory.Service.FindByID(s.ctx, "sock")
	s.Require().NoError(err)
	s.Equal(int64(100), sock.Available)
}

func (s *PlatformSuite) TestCartCheckedOutAfterCompletion() {
	_, err := s.platform.Carts.Service.Create(s.ctx, "cart-1", "dave")
	s.Require().NoError(err)
	_, err = s.platform.Carts.Service.AddItem(s.ctx, "cart-1", "sock", 4, nil)
	s.Require().NoError(err)

	sagaID := s.checkout(orchestrator.StartRequest{
		IdempotencyKey: "cart-1",
		ConsumerID:     "dave",
		CartID:         "cart-1",
		PaymentMethod:  "card",
		Items:          []generalDomain.LineItem{{ProductID: "sock", Quantity: 4}},
	})

	s.awaitState(sagaID, "COMPLETED")

	s.Require().Eventually(func() bool {
		cart, err := s.platform.Carts.Service.FindByID(s.ctx, "cart-1")
		return err == nil && string(cart.Status) == "CHECKED_OUT" && cart.SagaID == sagaID
	}, waitFor, tick)

	s.Require().Eventually(func() bool {
		view, err := s.platform.Projector.Queries.Cart(s.ctx, "cart-1")
		return err == nil && view.Status == "CHECKED_OUT"
	}, waitFor, tick)
}

func (s *PlatformSuite) TestReadModelsFollowCheckout() {
	sagaID := s.checkout(orchestrator.StartRequest{
		IdempotencyKey: "projected",
		ConsumerID:     "erin",
		PaymentMethod:  "card",
		Items:          []generalDomain.LineItem{{ProductID: "sock", Quantity: 2}},
	})

	s.awaitState(sagaID, "COMPLETED")

	queries := s.platform.Projector.Queries

	s.Require().Eventually(func() bool {
		item, err := queries.Product(s.ctx, "sock")
		return err == nil && item.OnHand == 98 && item.Available == 98 && item.Reserved == 0
	}, waitFor, tick)

	s.Require().Eventually(func() bool {
		history, err := queries.OrderHistory(s.ctx, "erin")
		return err == nil &&
			len(history) == 1 &&
			history[0].Status == "CONFIRMED" &&
			history[0].PaymentStatus == "COMPLETED"
	}, waitFor, tick)

	s.Require().Eventually(func() bool {
		view, err := queries.Checkout(s.ctx, sagaID)
		return err == nil && view.State == "COMPLETED" && view.Terminal && view.OrderID != ""
	}, waitFor, tick)

	checkouts, err := queries.Checkouts(s.ctx, "erin")
	s.Require().NoError(err)
	s.Len(checkouts, 1)
}

func (s *PlatformSuite) TestConsumersAreNotifiedOnce() {
	completed := s.checkout(orchestrator.StartRequest{
		IdempotencyKey: "mail-ok",
		ConsumerID:     "frank",
		PaymentMethod:  "card",
		Items:          []generalDomain.LineItem{{ProductID: "sock", Quantity: 1}},
	})
	failed := s.checkout(orchestrator.StartRequest{
		IdempotencyKey: "mail-declined",
		ConsumerID:     "grace",
		PaymentMethod:  payment.DeclinedMethod,
		Items:          []generalDomain.LineItem{{ProductID: "sock", Quantity: 1}},
	})

	s.awaitState(completed, "COMPLETED")
	s.awaitState(failed, "COMPENSATED")

	s.Require().Eventually(func() bool {
		return len(s.platform.Mailbox.Sent()) == 2
	}, waitFor, tick)

	kinds := make(map[string]notification.Notification)
	for _, n := range s.platform.Mailbox.Sent() {
		kinds[n.ConsumerID] = n
	}
	s.Equal(notification.CheckoutCompleted, kinds["frank"].Kind)
	s.Equal(notification.CheckoutFailed, kinds["grace"].Kind)
	s.Contains(kinds["grace"].Reason, "payment failed")
}

func (s *PlatformSuite) TestRatingSummaryProjected() {
	for i, score := range []int{5, 4} {
		_, err := s.platform.Ratings.Service.Submit(s.ctx, string(rune('a'+i)), "boot", score, "")
		s.Require().NoError(err)
	}

	s.Require().Eventually(func() bool {
		summary, err := s.platform.Projector.Queries.RatingSummary(s.ctx, "boot")
		return err == nil && summary.Count == 2 && summary.Average.Equal(decimal.RequireFromString("4.5"))
	}, waitFor, tick)
}
