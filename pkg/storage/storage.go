package storage

import (
	"context"
	"fmt"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/db"
	"github.com/sakashimaa/fulfillment/pkg/outbox/repository"
	"github.com/sakashimaa/fulfillment/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment/pkg/store/memory"
	"github.com/sakashimaa/fulfillment/pkg/store/postgres"
	"go.uber.org/zap"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Storage is a service's write side: aggregate snapshots, processed command
// keys and the outbox they share a transaction with.
type Storage struct {
	Store  aggregate.Store
	Outbox worker.OutboxRepository
	close  func()
}

func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}

func Open(ctx context.Context, cfg config.Storage, logger *zap.Logger) (*Storage, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		store := memory.NewStore()

		return &Storage{Store: store, Outbox: store}, nil

	case DriverPostgres:
		if err := db.Migrate(cfg.Migrations, cfg.URL, logger); err != nil {
			return nil, err
		}

		pool, err := db.NewPostgresDB(ctx, db.PoolConfig{URL: cfg.URL, MaxConns: cfg.MaxConns}, logger)
		if err != nil {
			return nil, err
		}

		return &Storage{
			Store:  postgres.NewStore(pool, logger),
			Outbox: repository.NewOutboxRepository(pool, logger),
			close:  pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
