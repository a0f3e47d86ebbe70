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
	"github.com/sakashimaa/fulfillment/services/inventory/app"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, "inventory-service", config.MustLoad())
	if err != nil {
		log.Fatalf("failed to bootstrap: %v", err)
	}

	inventory := app.New(rt.Storage.Store, rt.Channel.Subscriber, rt.Logger)

	httpApp := server.NewHTTP(rt.Config.Limiter, rt.Logger)
	inventory.Routes(httpApp)

	err = rt.Run(ctx, httpApp, inventory.Consume, rt.RunOutbox)
	if err != nil {
		mylogger.Error(ctx, rt.Logger, "Inventory service failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, rt.Logger, "Shutting down inventory service")
	rt.Close(shutdownCtx)
}
