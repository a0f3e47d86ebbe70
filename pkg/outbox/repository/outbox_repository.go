package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/fulfillment/pkg/outbox/domain"
	"github.com/sakashimaa/fulfillment/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Only the holder of this transaction-scoped advisory lock publishes, which
// keeps per-aggregate order intact with several service replicas running.
const publisherLockID int64 = 0x6f7574626f78

type outboxRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewOutboxRepository(pool *pgxpool.Pool, logger *zap.Logger) worker.OutboxRepository {
	return &outboxRepo{
		pool:   pool,
		tracer: otel.Tracer("outbox/repository"),
		logger: logger,
	}
}

func (r *outboxRepo) NextBatch(ctx context.Context, size int) (worker.Batch, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.NextBatch")
	defer span.End()

	span.SetAttributes(attribute.Int("batch_size", size))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}

	b := &batch{tx: tx, tracer: r.tracer}

	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, publisherLockID).Scan(&locked); err != nil {
		span.RecordError(err)
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("acquire publisher lock: %w", err)
	}

	if !locked {
		span.SetAttributes(attribute.Bool("lock_acquired", false))
		return b, nil
	}

	query := `
		SELECT o.id, o.message_id, o.aggregate_type, o.aggregate_id, o.event_type, o.topic,
		       o.payload, o.status, o.attempts, o.last_error, o.next_attempt_at, o.created_at
		FROM outbox o
		WHERE o.status = 'PENDING'
		  AND NOT EXISTS (
			SELECT 1
			FROM outbox h
			WHERE h.status = 'PENDING'
			  AND h.aggregate_type = o.aggregate_type
			  AND h.aggregate_id = o.aggregate_id
			  AND h.id <= o.id
			  AND h.next_attempt_at > NOW()
		  )
		ORDER BY o.id
		LIMIT $1
	`

	rows, err := tx.Query(ctx, query, size)
	if err != nil {
		span.RecordError(err)
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec domain.OutboxRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.MessageID,
			&rec.AggregateType,
			&rec.AggregateID,
			&rec.EventType,
			&rec.Topic,
			&rec.Payload,
			&rec.Status,
			&rec.Attempts,
			&rec.LastError,
			&rec.NextAttemptAt,
			&rec.CreatedAt,
		); err != nil {
			span.RecordError(err)
			rows.Close()
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("error scanning record: %w", err)
		}

		b.records = append(b.records, &rec)
	}

	if err := rows.Err(); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, err
	}

	span.SetAttributes(attribute.Int("result_count", len(b.records)))

	return b, nil
}

// PurgeDelivered deletes delivered records older than the retention window.
func (r *outboxRepo) PurgeDelivered(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.PurgeDelivered")
	defer span.End()

	query := `
		DELETE FROM outbox
		WHERE status = 'DELIVERED' AND delivered_at < NOW() - make_interval(secs => $1)
	`

	tag, err := r.pool.Exec(ctx, query, olderThan.Seconds())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	return tag.RowsAffected(), nil
}

type batch struct {
	tx      pgx.Tx
	tracer  trace.Tracer
	records []*domain.OutboxRecord
}

func (b *batch) Records() []*domain.OutboxRecord {
	return b.records
}

func (b *batch) MarkDelivered(ctx context.Context, id int64) error {
	ctx, span := b.tracer.Start(ctx, "OutboxRepository.MarkDelivered")
	defer span.End()

	span.SetAttributes(attribute.Int64("record_id", id))

	query := `
		UPDATE outbox
		SET status = 'DELIVERED', delivered_at = NOW(), last_error = NULL
		WHERE id = $1
	`

	_, err := b.tx.Exec(ctx, query, id)
	if err != nil {
		span.RecordError(err)
	}

	return closedErr(err)
}

func (b *batch) MarkFailed(ctx context.Context, id int64, errMsg string, nextAttemptAt time.Time) error {
	ctx, span := b.tracer.Start(ctx, "OutboxRepository.MarkFailed")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("record_id", id),
		attribute.String("outbox.error_message", errMsg),
	)

	query := `
		UPDATE outbox
		SET last_error = $1,
			attempts = attempts + 1,
			next_attempt_at = $2
		WHERE id = $3
	`

	_, err := b.tx.Exec(ctx, query, errMsg, nextAttemptAt, id)
	if err != nil {
		span.RecordError(err)
	}

	return closedErr(err)
}

func (b *batch) Commit(ctx context.Context) error {
	return closedErr(b.tx.Commit(ctx))
}

func (b *batch) Rollback(ctx context.Context) error {
	return closedErr(b.tx.Rollback(ctx))
}

func closedErr(err error) error {
	if errors.Is(err, pgx.ErrTxClosed) {
		return worker.ErrBatchClosed
	}

	return err
}
