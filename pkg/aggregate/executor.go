package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultConflictRetries = 5

// Command describes one invocation against an aggregate. Trigger is the
// channel message being handled and is zero for direct calls. When
// ExpectedVersion is nil the handler runs against whatever version is stored
// and a lost race is retried; otherwise a mismatch surfaces as
// ErrConcurrencyConflict.
type Command struct {
	AggregateID     string
	Trigger         messaging.Envelope
	IdempotencyKey  string
	ExpectedVersion *int64
}

// Decide mutates agg through its domain methods and returns extra replies
// that are not domain events. exists is false for a fresh aggregate.
type Decide[T Entity] func(agg T, exists bool) ([]messaging.Message, error)

// Executor runs commands for one aggregate type: duplicate detection on the
// idempotency key, load, decide, then one atomic commit of state, events and
// replies.
type Executor[T Entity] struct {
	repo        *Repository[T]
	store       Store
	eventsTopic string
	logger      *zap.Logger
	tracer      trace.Tracer
	retries     int
}

func NewExecutor[T Entity](repo *Repository[T], store Store, eventsTopic string, logger *zap.Logger) *Executor[T] {
	return &Executor[T]{
		repo:        repo,
		store:       store,
		eventsTopic: eventsTopic,
		logger:      logger,
		tracer:      otel.Tracer("aggregate/executor"),
		retries:     defaultConflictRetries,
	}
}

func (e *Executor[T]) Repository() *Repository[T] {
	return e.repo
}

// Execute returns the aggregate as committed. On a duplicate idempotency key
// it returns ErrDuplicateCommand after re-emitting the stored replies when the
// duplicate arrived as a new message.
func (e *Executor[T]) Execute(ctx context.Context, cmd Command, decide Decide[T]) (T, error) {
	ctx, span := e.tracer.Start(ctx, "Executor.Execute")
	defer span.End()

	span.SetAttributes(
		attribute.String("aggregate_type", e.repo.AggregateType()),
		attribute.String("aggregate_id", cmd.AggregateID),
		attribute.String("idempotency_key", cmd.IdempotencyKey),
	)

	var zero T

	if cmd.IdempotencyKey != "" {
		processed, err := e.store.Processed(ctx, cmd.IdempotencyKey)
		switch {
		case err == nil:
			if redeliverErr := e.redeliver(ctx, cmd, processed); redeliverErr != nil {
				span.RecordError(redeliverErr)
				return zero, redeliverErr
			}

			return zero, ErrDuplicateCommand
		case !errors.Is(err, ErrNotFound):
			span.RecordError(err)
			return zero, fmt.Errorf("check idempotency key: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		agg, err := e.attempt(ctx, cmd, decide)
		if err == nil {
			return agg, nil
		}

		if errors.Is(err, ErrConcurrencyConflict) && cmd.ExpectedVersion == nil && attempt < e.retries {
			mylogger.Debug(
				ctx,
				e.logger,
				"Concurrency conflict, reloading aggregate",
				zap.String("aggregate_id", cmd.AggregateID),
				zap.Int("attempt", attempt+1),
			)

			continue
		}

		if !errors.Is(err, ErrDuplicateCommand) {
			span.RecordError(err)
		}

		return zero, err
	}
}

func (e *Executor[T]) attempt(ctx context.Context, cmd Command, decide Decide[T]) (T, error) {
	var zero T

	agg, exists, err := e.repo.LoadOrNew(ctx, cmd.AggregateID)
	if err != nil {
		return zero, err
	}

	base := agg.Base()
	loaded := base.Version()

	if cmd.ExpectedVersion != nil {
		if err := base.CheckVersion(*cmd.ExpectedVersion); err != nil {
			return zero, err
		}
	}

	replies, err := decide(agg, exists)
	if err != nil {
		return zero, err
	}

	events := base.PendingEvents()
	messages := make([]messaging.Message, 0, len(events)+len(replies))
	for _, ev := range events {
		env := ev.Envelope()
		if cmd.Trigger.ID != "" {
			env = env.CausedBy(cmd.Trigger)
		}
		messages = append(messages, messaging.Message{Topic: e.eventsTopic, Envelope: env})
	}
	for _, reply := range replies {
		if cmd.Trigger.ID != "" {
			reply.Envelope = reply.Envelope.CausedBy(cmd.Trigger)
		}
		messages = append(messages, reply)
	}

	mutation := Mutation{
		ExpectedVersion: loaded,
		IdempotencyKey:  cmd.IdempotencyKey,
		MessageID:       cmd.Trigger.ID,
		Messages:        messages,
	}

	if len(events) > 0 {
		mutation.Snapshot, err = e.repo.Snapshot(agg)
		if err != nil {
			return zero, err
		}
	}

	if len(messages) == 0 && cmd.IdempotencyKey == "" {
		return agg, nil
	}

	if err := e.store.Commit(ctx, mutation); err != nil {
		return zero, err
	}

	base.ClearPendingEvents()

	return agg, nil
}

func (e *Executor[T]) redeliver(ctx context.Context, cmd Command, processed *Processed) error {
	if processed.MessageID == cmd.Trigger.ID || len(processed.Replies) == 0 {
		return nil
	}

	mylogger.Info(
		ctx,
		e.logger,
		"Retried command already processed, re-emitting replies",
		zap.String("idempotency_key", cmd.IdempotencyKey),
		zap.Int("replies", len(processed.Replies)),
	)

	return e.store.Commit(ctx, Mutation{Messages: processed.Replies})
}
