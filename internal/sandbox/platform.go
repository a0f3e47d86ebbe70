package sandbox

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment/pkg/config"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	bus "github.com/sakashimaa/fulfillment/pkg/messaging/memory"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment/pkg/store/memory"
	cart "github.com/sakashimaa/fulfillment/services/cart/app"
	inventory "github.com/sakashimaa/fulfillment/services/inventory/app"
	orchestrator "github.com/sakashimaa/fulfillment/services/orchestrator/app"
	notification "github.com/sakashimaa/fulfillment/services/notification/app"
	order "github.com/sakashimaa/fulfillment/services/order/app"
	payment "github.com/sakashimaa/fulfillment/services/payment/app"
	projector "github.com/sakashimaa/fulfillment/services/projector/app"
	rating "github.com/sakashimaa/fulfillment/services/rating/app"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Saga           config.Saga
	Projector      config.Projector
	Channel        messaging.RetryPolicy
	OutboxInterval time.Duration
	// PaymentLimit makes the simulated gateway decline larger charges.
	PaymentLimit decimal.Decimal
	Metrics      *metrics.Metrics
	// Clock drives saga deadlines; nil means time.Now.
	Clock func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Saga: config.Saga{
			StepTimeout:         30 * time.Second,
			CompensationTimeout: 30 * time.Second,
			MaxCompensations:    5,
			SweepInterval:       time.Second,
		},
		Projector: config.Projector{
			MaxBuffered:   100,
			MaxBufferAge:  10 * time.Second,
			SweepInterval: time.Second,
		},
		Channel:        messaging.DefaultRetryPolicy(),
		OutboxInterval: 20 * time.Millisecond,
		PaymentLimit:   decimal.NewFromInt(10000),
	}
}

// Platform runs every service in one process. Each service keeps its own
// store and outbox; they only talk through the shared memory channel.
type Platform struct {
	Bus          *bus.Bus
	Inventory    *inventory.App
	Orders       *order.App
	Payments     *payment.App
	Carts        *cart.App
	Ratings      *rating.App
	Orchestrator *orchestrator.App
	Projector    *projector.App

	// Mailbox records what Notifications would have mailed.
	Notifications *notification.App
	Mailbox       *notification.Recorder

	stores map[string]*memory.Store
	opts   Options
	logger *zap.Logger
}

func New(opts Options, logger *zap.Logger) *Platform {
	channel := bus.NewBus(opts.Channel, logger)
	channel.OnDeadLetter(opts.Metrics.DeadLettered)

	stores := map[string]*memory.Store{
		generalDomain.AggregateInventory: memory.NewStore(),
		generalDomain.AggregateOrder:     memory.NewStore(),
		generalDomain.AggregatePayment:   memory.NewStore(),
		generalDomain.AggregateCart:      memory.NewStore(),
		generalDomain.AggregateRating:    memory.NewStore(),
		generalDomain.AggregateSaga:      memory.NewStore(),
	}

	sources := projector.Sources{}
	for aggregateType, store := range stores {
		sources[aggregateType] = store
	}

	named := func(service string) *zap.Logger {
		return logger.With(zap.String("service", service))
	}

	mailbox := notification.NewRecorder(named("notification"))

	return &Platform{
		Bus:       channel,
		Inventory: inventory.New(stores[generalDomain.AggregateInventory], channel, named("inventory")),
		Orders:    order.New(stores[generalDomain.AggregateOrder], channel, named("order")),
		Payments:  payment.New(stores[generalDomain.AggregatePayment], channel, opts.PaymentLimit, named("payment")),
		Carts:     cart.New(stores[generalDomain.AggregateCart], channel, named("cart")),
		Ratings:   rating.New(stores[generalDomain.AggregateRating], named("rating")),
		Orchestrator: orchestrator.New(
			stores[generalDomain.AggregateSaga],
			channel,
			opts.Saga,
			opts.Metrics,
			named("orchestrator"),
			opts.Clock,
		),
		Projector: projector.New(
			projector.MemoryRows(),
			sources,
			channel,
			opts.Projector,
			nil,
			opts.Metrics,
			named("projector"),
		),
		Notifications: notification.New(
			channel,
			mailbox,
			notification.NewSentLog(nil, config.Notify{}),
			named("notification"),
		),
		Mailbox: mailbox,
		stores:  stores,
		opts:    opts,
		logger:  logger,
	}
}

// Store returns the write-side store owning aggregateType.
func (p *Platform) Store(aggregateType string) *memory.Store {
	return p.stores[aggregateType]
}

func (p *Platform) Routes(router fiber.Router) {
	p.Inventory.Routes(router)
	p.Orders.Routes(router)
	p.Payments.Routes(router)
	p.Carts.Routes(router)
	p.Ratings.Routes(router)
	p.Orchestrator.Routes(router)
	p.Projector.Routes(router)
}

// Run consumes, sweeps and drains every outbox until ctx is done.
func (p *Platform) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, loop := range []func(context.Context) error{
		p.Inventory.Consume,
		p.Orders.Consume,
		p.Payments.Consume,
		p.Carts.Consume,
		p.Orchestrator.Consume,
		p.Orchestrator.Sweep,
		p.Projector.Consume,
		p.Projector.Sweep,
		p.Notifications.Consume,
	} {
		loop := loop
		g.Go(func() error {
			return loop(ctx)
		})
	}

	for aggregateType, store := range p.stores {
		processor := worker.NewOutboxProcessor(
			store,
			p.Bus,
			p.logger.With(zap.String("outbox", aggregateType)),
			worker.WithInterval(p.opts.OutboxInterval),
			worker.WithMetrics(p.opts.Metrics),
		)

		g.Go(func() error {
			processor.Start(ctx)
			return nil
		})
	}

	mylogger.Info(ctx, p.logger, "Sandbox platform running", zap.Int("outboxes", len(p.stores)))

	return g.Wait()
}
