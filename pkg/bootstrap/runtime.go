package bootstrap

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/fulfillment/pkg/channel"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment/pkg/server"
	"github.com/sakashimaa/fulfillment/pkg/storage"
	"github.com/sakashimaa/fulfillment/pkg/utils"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runtime holds what every service process shares: config, logger,
// telemetry, its write-side storage and the channel.
type Runtime struct {
	Name     string
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Storage  *storage.Storage
	Channel  *channel.Channel
	tp       *sdktrace.TracerProvider
}

func New(ctx context.Context, name string, cfg *config.Config) (*Runtime, error) {
	logger, err := config.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logger = logger.With(zap.String("service", name))

	tp, err := utils.InitTracer(ctx, name, cfg.TracingConfig())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	ch, err := channel.Open(cfg.Channel, m, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &Runtime{
		Name:     name,
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  m,
		Storage:  store,
		Channel:  ch,
		tp:       tp,
	}, nil
}

func (r *Runtime) OutboxProcessor() *worker.OutboxProcessor {
	cfg := r.Config.Outbox

	return worker.NewOutboxProcessor(
		r.Storage.Outbox,
		r.Channel.Publisher,
		r.Logger,
		worker.WithBatchSize(cfg.BatchSize),
		worker.WithInterval(cfg.Interval),
		worker.WithRetryBackoff(cfg.InitialBackoff, cfg.MaxBackoff),
		worker.WithRetention(cfg.Retention),
		worker.WithMetrics(r.Metrics),
	)
}

// RunOutbox publishes the service's outbox until ctx is done.
func (r *Runtime) RunOutbox(ctx context.Context) error {
	r.OutboxProcessor().Start(ctx)
	return nil
}

// Run serves metrics, gRPC health and the optional HTTP app next to the
// service's own loops, until ctx is done or one of them fails.
func (r *Runtime) Run(ctx context.Context, app *fiber.App, loops ...func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)

	health := server.NewHealthServer(r.Registry, r.Logger)

	g.Go(func() error {
		metrics.Serve(ctx, r.Config.Metrics.Addr, r.Registry, r.Logger)
		return nil
	})
	g.Go(func() error {
		return health.Serve(ctx, r.Config.GRPC.Port)
	})
	if app != nil {
		g.Go(func() error {
			return server.ServeHTTP(ctx, app, r.Config.HTTP.Port, r.Logger)
		})
	}
	for _, loop := range loops {
		loop := loop
		g.Go(func() error {
			return loop(ctx)
		})
	}

	health.SetServing("", true)
	health.SetServing(r.Name, true)
	mylogger.Info(ctx, r.Logger, "Service started")

	return g.Wait()
}

func (r *Runtime) Close(ctx context.Context) {
	if err := r.Channel.Close(); err != nil {
		mylogger.Warn(ctx, r.Logger, "Failed to close channel", zap.Error(err))
	}

	r.Storage.Close()

	if err := r.tp.Shutdown(ctx); err != nil {
		mylogger.Warn(ctx, r.Logger, "Failed to shut down telemetry", zap.Error(err))
	} else {
		mylogger.Info(ctx, r.Logger, "Successfully down telemetry")
	}

	_ = r.Logger.Sync()
}
