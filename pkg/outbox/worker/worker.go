package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/outbox/domain"
	"github.com/sakashimaa/fulfillment/pkg/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Batch is one unit of work over undelivered records. Marks become durable on
// Commit; Rollback discards them and the records are picked up again.
type Batch interface {
	Records() []*domain.OutboxRecord
	MarkDelivered(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string, nextAttemptAt time.Time) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type OutboxRepository interface {
	// NextBatch returns up to size pending records in creation order, leaving
	// out every record queued behind a not-yet-due record of the same aggregate.
	NextBatch(ctx context.Context, size int) (Batch, error)
}

// Purger is implemented by repositories able to drop delivered records.
type Purger interface {
	PurgeDelivered(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Option func(*OutboxProcessor)

// WithRetention purges delivered records older than d once a minute.
func WithRetention(d time.Duration) Option {
	return func(p *OutboxProcessor) { p.retention = d }
}

func WithBatchSize(n int) Option {
	return func(p *OutboxProcessor) { p.batchSize = n }
}

func WithInterval(d time.Duration) Option {
	return func(p *OutboxProcessor) { p.interval = d }
}

func WithRetryBackoff(initial, maxDelay time.Duration) Option {
	return func(p *OutboxProcessor) {
		p.retryInitial = initial
		p.retryMax = maxDelay
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *OutboxProcessor) { p.metrics = m }
}

type OutboxProcessor struct {
	repo         OutboxRepository
	publisher    messaging.Publisher
	logger       *zap.Logger
	metrics      *metrics.Metrics
	batchSize    int
	interval     time.Duration
	retryInitial time.Duration
	retryMax     time.Duration
	retention    time.Duration
	tracer       trace.Tracer
}

func NewOutboxProcessor(
	repo OutboxRepository,
	publisher messaging.Publisher,
	logger *zap.Logger,
	opts ...Option,
) *OutboxProcessor {
	p := &OutboxProcessor{
		repo:         repo,
		publisher:    publisher,
		logger:       logger,
		batchSize:    50,
		interval:     500 * time.Millisecond,
		retryInitial: 200 * time.Millisecond,
		retryMax:     30 * time.Second,
		tracer:       otel.Tracer("outbox-worker"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		p.logger,
		"Starting outbox processor",
		zap.Duration("interval", p.interval),
		zap.Int("batch_size", p.batchSize),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var purge <-chan time.Time
	purger, canPurge := p.repo.(Purger)
	if canPurge && p.retention > 0 {
		purgeTicker := time.NewTicker(time.Minute)
		defer purgeTicker.Stop()
		purge = purgeTicker.C
	}

	for {
		select {
		case <-purge:
			n, err := purger.PurgeDelivered(ctx, p.retention)
			if err != nil {
				mylogger.Warn(ctx, p.logger, "Outbox purge failed", zap.Error(err))
			} else if n > 0 {
				mylogger.Debug(ctx, p.logger, "Outbox purged delivered records", zap.Int64("count", n))
			}
		case <-ctx.Done():
			mylogger.Info(
				ctx,
				p.logger,
				"Outbox processor stopping",
			)

			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessBatch publishes one batch and returns how many records were
// delivered. After a failed publish the remaining records of that aggregate
// are held back so delivery order per aggregate never changes.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.ProcessBatch")
	defer span.End()

	batch, err := p.repo.NextBatch(ctx, p.batchSize)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("error fetching outbox batch: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := batch.Rollback(cleanupCtx); err != nil && !errors.Is(err, ErrBatchClosed) {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback batch",
				zap.Error(err),
			)
		}
	}()

	records := batch.Records()
	if len(records) == 0 {
		return 0, batch.Commit(ctx)
	}

	span.SetAttributes(attribute.Int("batch_size", len(records)))

	mylogger.Debug(
		ctx,
		p.logger,
		"Processing outbox records",
		zap.Int("count", len(records)),
	)

	blocked := make(map[string]bool)
	delivered := 0

	for _, record := range records {
		if blocked[record.OrderingKey()] {
			continue
		}

		if err := p.publish(ctx, record); err != nil {
			blocked[record.OrderingKey()] = true
			p.metrics.OutboxFailed(record.Topic)

			nextAttempt := time.Now().UTC().Add(utils.CappedExponential(p.retryInitial, p.retryMax, int(record.Attempts)))

			mylogger.Warn(
				ctx,
				p.logger,
				"Outbox worker publish failed",
				zap.Int64("id", record.ID),
				zap.String("topic", record.Topic),
				zap.Int64("attempts", record.Attempts+1),
				zap.Time("next_attempt_at", nextAttempt),
				zap.Error(err),
			)

			if dbErr := batch.MarkFailed(ctx, record.ID, err.Error(), nextAttempt); dbErr != nil {
				return delivered, fmt.Errorf("mark record %d failed: %w", record.ID, dbErr)
			}

			continue
		}

		if err := batch.MarkDelivered(ctx, record.ID); err != nil {
			return delivered, fmt.Errorf("mark record %d delivered: %w", record.ID, err)
		}

		delivered++
		p.metrics.OutboxPublished(record.Topic)

		mylogger.Debug(
			ctx,
			p.logger,
			"Outbox record published",
			zap.Int64("id", record.ID),
			zap.String("type", record.EventType),
		)
	}

	if err := batch.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit outbox batch: %w", err)
	}

	return delivered, nil
}

func (p *OutboxProcessor) publish(ctx context.Context, record *domain.OutboxRecord) error {
	env, err := record.Envelope()
	if err != nil {
		return err
	}

	return p.publisher.Publish(ctx, record.Topic, env)
}
