package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/fulfillment/pkg/config"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"github.com/sakashimaa/fulfillment/services/projector/internal/repository"
	"github.com/sakashimaa/fulfillment/services/projector/internal/service"
	"github.com/sakashimaa/fulfillment/services/projector/internal/transport/channel"
	"github.com/sakashimaa/fulfillment/services/projector/internal/transport/http"
	"go.uber.org/zap"
)

type (
	RowStore          = repository.RowStore
	SnapshotSource    = service.SnapshotSource
	Sources           = service.Sources
	CatalogItem       = domain.CatalogItem
	CartView          = domain.CartView
	OrderHistoryEntry = domain.OrderHistoryEntry
	PaymentView       = domain.PaymentView
	RatingSummary     = domain.RatingSummary
	CheckoutView      = domain.CheckoutView
)

// App is the read side: it consumes every event topic into the views and
// serves them over HTTP.
type App struct {
	Queries   service.QueryService
	Projector *service.Projector
	consumer  *channel.Consumer
	handler   *http.ViewHandler
	interval  time.Duration
}

func MemoryRows() RowStore {
	return repository.NewMemoryRowStore()
}

func MySQLRows(ctx context.Context, db *sql.DB) (RowStore, error) {
	rows := repository.NewMySQLRowStore(db)
	if err := rows.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	return rows, nil
}

// SharedSources rebuilds every view from one store, the layout of a
// deployment where all services share a database.
func SharedSources(store SnapshotSource) Sources {
	return Sources{
		generalDomain.AggregateInventory: store,
		generalDomain.AggregateCart:      store,
		generalDomain.AggregateOrder:     store,
		generalDomain.AggregatePayment:   store,
		generalDomain.AggregateRating:    store,
		generalDomain.AggregateSaga:      store,
	}
}

// New builds the projector. redisClient is optional and, when set, caches
// point reads for cfg.CacheTTL.
func New(
	rows RowStore,
	sources Sources,
	subscriber messaging.Subscriber,
	cfg config.Projector,
	redisClient *redis.Client,
	m *metrics.Metrics,
	logger *zap.Logger,
) *App {
	projector := service.NewProjector(rows, sources, service.Options{
		MaxBuffered:  cfg.MaxBuffered,
		MaxBufferAge: cfg.MaxBufferAge,
	}, logger, service.WithMetrics(m))

	queries := service.NewQueryService(rows)
	if redisClient != nil {
		queries = service.NewCachedQueryService(queries, redisClient, cfg.CacheTTL)
	}

	return &App{
		Queries:   queries,
		Projector: projector,
		consumer:  channel.NewConsumer(projector, subscriber, logger),
		handler:   http.NewViewHandler(queries, projector, logger),
		interval:  cfg.SweepInterval,
	}
}

func (a *App) Routes(router fiber.Router) {
	a.handler.Register(router)
}

func (a *App) Consume(ctx context.Context) error {
	return a.consumer.Start(ctx)
}

func (a *App) Sweep(ctx context.Context) error {
	return a.Projector.Start(ctx, a.interval)
}
