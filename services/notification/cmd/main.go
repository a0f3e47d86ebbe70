package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/fulfillment/pkg/bootstrap"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/notification/app"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, "notification-service", config.MustLoad())
	if err != nil {
		log.Fatalf("failed to bootstrap: %v", err)
	}

	cfg := rt.Config.Notify

	var sender app.Sender = app.NewRecorder(rt.Logger)
	if cfg.SMTPHost != "" {
		sender = app.SMTPSender(cfg, rt.Logger)
	} else {
		mylogger.Warn(ctx, rt.Logger, "SMTP host not set, notifications are only logged")
	}

	var rdb *redis.Client
	if addr := rt.Config.Redis.Addr; addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: addr,
		})
		defer rdb.Close()
	}

	notifications := app.New(rt.Channel.Subscriber, sender, app.NewSentLog(rdb, cfg), rt.Logger)

	err = rt.Run(ctx, nil, notifications.Consume)
	if err != nil {
		mylogger.Error(ctx, rt.Logger, "Notification service failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, rt.Logger, "Shutting down notification service")
	rt.Close(shutdownCtx)
}
