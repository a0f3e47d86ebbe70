package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/fulfillment/pkg/bootstrap"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/server"
	"github.com/sakashimaa/fulfillment/services/payment/app"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, "payment-service", config.MustLoad())
	if err != nil {
		log.Fatalf("failed to bootstrap: %v", err)
	}

	limit, err := decimal.NewFromString(rt.Config.Payment.Limit)
	if err != nil {
		log.Fatalf("invalid payment limit: %v", err)
	}

	payments := app.New(rt.Storage.Store, rt.Channel.Subscriber, limit, rt.Logger)

	httpApp := server.NewHTTP(rt.Config.Limiter, rt.Logger)
	payments.Routes(httpApp)

	err = rt.Run(ctx, httpApp, payments.Consume, rt.RunOutbox)
	if err != nil {
		mylogger.Error(ctx, rt.Logger, "Payment service failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, rt.Logger, "Shutting down payment service")
	rt.Close(shutdownCtx)
}
