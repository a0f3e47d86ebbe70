package app

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	"github.com/sakashimaa/fulfillment/services/orchestrator/internal/domain"
	"github.com/sakashimaa/fulfillment/services/orchestrator/internal/repository"
	"github.com/sakashimaa/fulfillment/services/orchestrator/internal/service"
	"github.com/sakashimaa/fulfillment/services/orchestrator/internal/transport/channel"
	"github.com/sakashimaa/fulfillment/services/orchestrator/internal/transport/http"
	"go.uber.org/zap"
)

type StartRequest = service.StartRequest

// App wires the checkout saga: reply consumer, deadline sweeper and the
// checkout HTTP routes.
type App struct {
	Service  service.OrchestratorService
	consumer *channel.Consumer
	sweeper  *service.Sweeper
	handler  *http.CheckoutHandler
}

// Policy converts the saga config section, falling back to defaults for
// unset values.
func Policy(cfg config.Saga) domain.Policy {
	policy := domain.DefaultPolicy()
	if cfg.StepTimeout > 0 {
		policy.StepTimeout = cfg.StepTimeout
	}
	if cfg.CompensationTimeout > 0 {
		policy.CompensationTimeout = cfg.CompensationTimeout
	}
	if cfg.MaxCompensations > 0 {
		policy.MaxCompensations = cfg.MaxCompensations
	}

	return policy
}

func New(
	store aggregate.Store,
	subscriber messaging.Subscriber,
	cfg config.Saga,
	m *metrics.Metrics,
	logger *zap.Logger,
	clock func() time.Time,
) *App {
	opts := []service.Option{service.WithMetrics(m)}
	if clock != nil {
		opts = append(opts, service.WithClock(clock))
	}

	svc := service.NewOrchestratorService(repository.NewSagaRepository(store), store, Policy(cfg), logger, opts...)

	return &App{
		Service:  svc,
		consumer: channel.NewConsumer(svc, subscriber, logger),
		sweeper:  service.NewSweeper(svc, cfg.SweepInterval, logger),
		handler:  http.NewCheckoutHandler(svc, logger),
	}
}

func (a *App) Routes(router fiber.Router) {
	a.handler.Register(router)
}

func (a *App) Consume(ctx context.Context) error {
	return a.consumer.Start(ctx)
}

func (a *App) Sweep(ctx context.Context) error {
	return a.sweeper.Start(ctx)
}
