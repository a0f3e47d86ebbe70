package service

import (
	"context"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"go.uber.org/zap"
)

// Sweeper periodically enforces saga deadlines. The first sweep runs at
// start, which resumes sagas left running by a previous process.
type Sweeper struct {
	service  OrchestratorService
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(svc OrchestratorService, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}

	return &Sweeper{
		service:  svc,
		interval: interval,
		logger:   logger,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	mylogger.Info(ctx, s.logger, "Starting saga sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.service.Sweep(ctx); err != nil && ctx.Err() == nil {
			mylogger.Error(ctx, s.logger, "Saga sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			mylogger.Info(ctx, s.logger, "Saga sweeper stopping")
			return nil
		case <-ticker.C:
		}
	}
}
