package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// Store keeps aggregate snapshots, the outbox and processed idempotency keys
// in one database so a Mutation commits in a single transaction.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("store/postgres"),
	}
}

func (s *Store) Load(ctx context.Context, aggregateType, id string) (*aggregate.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "Store.Load")
	defer span.End()

	span.SetAttributes(
		attribute.String("aggregate_type", aggregateType),
		attribute.String("aggregate_id", id),
	)

	query := `
		SELECT version, state, archived, updated_at
		FROM aggregates
		WHERE aggregate_type = $1 AND aggregate_id = $2
	`

	snap := aggregate.Snapshot{AggregateType: aggregateType, AggregateID: id}
	err := s.pool.QueryRow(ctx, query, aggregateType, id).
		Scan(&snap.Version, &snap.State, &snap.Archived, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", aggregate.ErrNotFound, aggregateType, id)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load %s %s: %w", aggregateType, id, err)
	}

	return &snap, nil
}

func (s *Store) List(ctx context.Context, aggregateType string, includeArchived bool) ([]aggregate.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "Store.List")
	defer span.End()

	query := `
		SELECT aggregate_id, version, state, archived, updated_at
		FROM aggregates
		WHERE aggregate_type = $1 AND ($2 OR NOT archived)
		ORDER BY aggregate_id
	`

	rows, err := s.pool.Query(ctx, query, aggregateType, includeArchived)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list %s: %w", aggregateType, err)
	}
	defer rows.Close()

	var out []aggregate.Snapshot
	for rows.Next() {
		snap := aggregate.Snapshot{AggregateType: aggregateType}
		if err := rows.Scan(&snap.AggregateID, &snap.Version, &snap.State, &snap.Archived, &snap.UpdatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scan %s: %w", aggregateType, err)
		}
		out = append(out, snap)
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))

	return out, rows.Err()
}

func (s *Store) Commit(ctx context.Context, m aggregate.Mutation) error {
	ctx, span := s.tracer.Start(ctx, "Store.Commit")
	defer span.End()

	span.SetAttributes(
		attribute.String("idempotency_key", m.IdempotencyKey),
		attribute.Int("messages", len(m.Messages)),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(shutdownCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(shutdownCtx, s.logger, "Failed to rollback transaction", zap.Error(err))
		}
	}()

	if m.IdempotencyKey != "" {
		if err := s.rememberKey(ctx, tx, m); err != nil {
			return err
		}
	}

	if m.Snapshot != nil {
		if err := s.writeSnapshot(ctx, tx, m.Snapshot, m.ExpectedVersion); err != nil {
			if !errors.Is(err, aggregate.ErrConcurrencyConflict) {
				span.RecordError(err)
			}
			return err
		}
	}

	for _, msg := range m.Messages {
		if err := s.saveOutboxRecord(ctx, tx, msg); err != nil {
			span.RecordError(err)
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *Store) Processed(ctx context.Context, idempotencyKey string) (*aggregate.Processed, error) {
	ctx, span := s.tracer.Start(ctx, "Store.Processed")
	defer span.End()

	query := `
		SELECT message_id, replies, processed_at
		FROM processed_commands
		WHERE idempotency_key = $1
	`

	p := aggregate.Processed{IdempotencyKey: idempotencyKey}
	var replies []byte

	err := s.pool.QueryRow(ctx, query, idempotencyKey).Scan(&p.MessageID, &replies, &p.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: idempotency key %s", aggregate.ErrNotFound, idempotencyKey)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load idempotency key %s: %w", idempotencyKey, err)
	}

	if err := json.Unmarshal(replies, &p.Replies); err != nil {
		return nil, fmt.Errorf("decode replies of %s: %w", idempotencyKey, err)
	}

	return &p, nil
}

func (s *Store) rememberKey(ctx context.Context, tx pgx.Tx, m aggregate.Mutation) error {
	replies := m.Messages
	if replies == nil {
		replies = []messaging.Message{}
	}

	data, err := json.Marshal(replies)
	if err != nil {
		return fmt.Errorf("encode replies: %w", err)
	}

	query := `
		INSERT INTO processed_commands (idempotency_key, message_id, replies)
		VALUES ($1, $2, $3)
	`

	_, err = tx.Exec(ctx, query, m.IdempotencyKey, m.MessageID, data)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", aggregate.ErrDuplicateCommand, m.IdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("remember idempotency key: %w", err)
	}

	return nil
}

func (s *Store) writeSnapshot(ctx context.Context, tx pgx.Tx, snap *aggregate.Snapshot, expected int64) error {
	if expected == 0 {
		query := `
			INSERT INTO aggregates (aggregate_type, aggregate_id, version, state, archived, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`

		_, err := tx.Exec(ctx, query,
			snap.AggregateType, snap.AggregateID, snap.Version, snap.State, snap.Archived, snap.UpdatedAt)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s %s already exists", aggregate.ErrConcurrencyConflict, snap.AggregateType, snap.AggregateID)
		}
		if err != nil {
			return fmt.Errorf("insert %s %s: %w", snap.AggregateType, snap.AggregateID, err)
		}

		return nil
	}

	query := `
		UPDATE aggregates
		SET version = $3, state = $4, archived = $5, updated_at = $6
		WHERE aggregate_type = $1 AND aggregate_id = $2 AND version = $7
	`

	tag, err := tx.Exec(ctx, query,
		snap.AggregateType, snap.AggregateID, snap.Version, snap.State, snap.Archived, snap.UpdatedAt, expected)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", snap.AggregateType, snap.AggregateID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s moved past version %d", aggregate.ErrConcurrencyConflict, snap.AggregateType, snap.AggregateID, expected)
	}

	return nil
}

func (s *Store) saveOutboxRecord(ctx context.Context, tx pgx.Tx, msg messaging.Message) error {
	record, err := domain.NewRecord(msg)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO outbox (message_id, aggregate_type, aggregate_id, event_type, topic, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = tx.Exec(
		ctx,
		query,
		record.MessageID,
		record.AggregateType,
		record.AggregateID,
		record.EventType,
		record.Topic,
		record.Payload,
	)
	if err != nil {
		return fmt.Errorf("save outbox record: %w", err)
	}

	return nil
}
