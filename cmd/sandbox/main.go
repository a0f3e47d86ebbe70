package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/fulfillment/internal/sandbox"
	"github.com/sakashimaa/fulfillment/pkg/config"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/server"
	orchestrator "github.com/sakashimaa/fulfillment/services/orchestrator/app"
	payment "github.com/sakashimaa/fulfillment/services/payment/app"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	logger, err := config.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	reg := metrics.NewRegistry()

	opts := sandbox.DefaultOptions()
	opts.Saga = cfg.Saga
	opts.Projector = cfg.Projector
	opts.Metrics = metrics.New(reg)
	if limit, err := decimal.NewFromString(cfg.Payment.Limit); err == nil {
		opts.PaymentLimit = limit
	}

	platform := sandbox.New(opts, logger)

	httpApp := server.NewHTTP(cfg.Limiter, logger)
	platform.Routes(httpApp)

	go metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger)
	go func() {
		if err := server.ServeHTTP(ctx, httpApp, cfg.HTTP.Port, logger); err != nil {
			mylogger.Error(ctx, logger, "HTTP server failed", zap.Error(err))
		}
	}()
	go demo(ctx, platform, logger)

	if err := platform.Run(ctx); err != nil {
		mylogger.Error(ctx, logger, "Sandbox failed", zap.Error(err))
	}

	mylogger.Info(context.Background(), logger, "Sandbox stopped")
}

// demo seeds a small catalog and runs one checkout that completes and one the
// gateway declines.
func demo(ctx context.Context, platform *sandbox.Platform, logger *zap.Logger) {
	products := []struct {
		id, name string
		price    int64
		stock    int64
	}{
		{"sock", "Wool sock", 5, 100},
		{"boot", "Hiking boot", 120, 10},
	}

	for _, p := range products {
		if _, err := platform.Inventory.Service.CreateProduct(ctx, p.id, p.name, decimal.NewFromInt(p.price), p.stock); err != nil {
			mylogger.Warn(ctx, logger, "Seeding product failed", zap.String("product_id", p.id), zap.Error(err))
		}
	}

	checkouts := []orchestrator.StartRequest{
		{
			IdempotencyKey: "demo-completed",
			ConsumerID:     "demo-consumer",
			PaymentMethod:  "card",
			Items: []generalDomain.LineItem{
				{ProductID: "sock", Quantity: 2},
				{ProductID: "boot", Quantity: 1},
			},
		},
		{
			IdempotencyKey: "demo-declined",
			ConsumerID:     "demo-consumer",
			PaymentMethod:  payment.DeclinedMethod,
			Items:          []generalDomain.LineItem{{ProductID: "boot", Quantity: 2}},
		},
	}

	for _, req := range checkouts {
		saga, err := platform.Orchestrator.Service.Start(ctx, req)
		if err != nil {
			mylogger.Error(ctx, logger, "Demo checkout failed to start", zap.Error(err))
			continue
		}

		go watch(ctx, platform, saga.ID(), logger)
	}
}

func watch(ctx context.Context, platform *sandbox.Platform, sagaID string, logger *zap.Logger) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		saga, err := platform.Orchestrator.Service.Get(ctx, sagaID)
		if err != nil {
			continue
		}

		if saga.State.Terminal() {
			mylogger.Info(
				ctx,
				logger,
				"Demo checkout finished",
				zap.String("saga_id", sagaID),
				zap.String("state", string(saga.State)),
				zap.String("total", saga.Total.String()),
				zap.String("reason", saga.FailureReason),
			)
			return
		}
	}
}
