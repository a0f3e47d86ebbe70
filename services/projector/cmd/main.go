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
	"github.com/sakashimaa/fulfillment/pkg/db"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/server"
	"github.com/sakashimaa/fulfillment/services/projector/app"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, "projector", config.MustLoad())
	if err != nil {
		log.Fatalf("failed to bootstrap: %v", err)
	}

	rows := app.MemoryRows()
	if dsn := rt.Config.MySQL.DSN; dsn != "" {
		sqlDB, err := db.NewMySQLDB(ctx, dsn, int(rt.Config.Storage.MaxConns), rt.Logger)
		if err != nil {
			log.Fatalf("failed to connect to mysql: %v", err)
		}
		defer sqlDB.Close()

		rows, err = app.MySQLRows(ctx, sqlDB)
		if err != nil {
			log.Fatalf("failed to prepare read model schema: %v", err)
		}
	}

	var rdb *redis.Client
	if addr := rt.Config.Redis.Addr; addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: addr,
		})
		defer rdb.Close()
	}

	projector := app.New(
		rows,
		app.SharedSources(rt.Storage.Store),
		rt.Channel.Subscriber,
		rt.Config.Projector,
		rdb,
		rt.Metrics,
		rt.Logger,
	)

	httpApp := server.NewHTTP(rt.Config.Limiter, rt.Logger)
	projector.Routes(httpApp)

	err = rt.Run(ctx, httpApp, projector.Consume, projector.Sweep)
	if err != nil {
		mylogger.Error(ctx, rt.Logger, "Projector failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, rt.Logger, "Shutting down projector")
	rt.Close(shutdownCtx)
}
