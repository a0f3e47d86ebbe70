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
	"github.com/sakashimaa/fulfillment/services/orchestrator/app"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, "orchestrator", config.MustLoad())
	if err != nil {
		log.Fatalf("failed to bootstrap: %v", err)
	}

	orchestrator := app.New(rt.Storage.Store, rt.Channel.Subscriber, rt.Config.Saga, rt.Metrics, rt.Logger, nil)

	httpApp := server.NewHTTP(rt.Config.Limiter, rt.Logger)
	orchestrator.Routes(httpApp)

	err = rt.Run(ctx, httpApp, orchestrator.Consume, orchestrator.Sweep, rt.RunOutbox)
	if err != nil {
		mylogger.Error(ctx, rt.Logger, "Orchestrator failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, rt.Logger, "Shutting down orchestrator")
	rt.Close(shutdownCtx)
}
