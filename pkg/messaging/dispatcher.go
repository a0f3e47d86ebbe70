package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"go.uber.org/zap"
)

type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Dispatcher hands a message to a handler with bounded retries. Messages that
// still fail once the budget is spent are moved to the dead-letter topic and
// reported as handled, so one bad message never blocks its partition.
type Dispatcher struct {
	policy       RetryPolicy
	deadLetters  Publisher
	logger       *zap.Logger
	onDeadLetter func(topic string)
}

func NewDispatcher(policy RetryPolicy, deadLetters Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		policy:      policy,
		deadLetters: deadLetters,
		logger:      logger,
	}
}

// OnDeadLetter registers a hook invoked after a message is dead-lettered.
func (d *Dispatcher) OnDeadLetter(fn func(topic string)) {
	d.onDeadLetter = fn
}

func (d *Dispatcher) Deliver(ctx context.Context, topic string, env Envelope, handler Handler) error {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return handler(ctx, env)
	}, d.policy.backOff(ctx))
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	mylogger.Error(
		ctx,
		d.logger,
		"Message exhausted retry budget, moving to dead letter",
		zap.String("topic", topic),
		zap.String("message_id", env.ID),
		zap.String("type", env.Type),
		zap.Int("attempts", attempts),
		zap.Bool("malformed", errors.Is(err, ErrMalformed)),
		zap.Error(err),
	)

	if d.deadLetters == nil {
		return nil
	}

	if pubErr := d.deadLetters.Publish(ctx, DeadLetterTopic(topic), env); pubErr != nil {
		return fmt.Errorf("dead letter %s: %w", env.ID, pubErr)
	}

	if d.onDeadLetter != nil {
		d.onDeadLetter(topic)
	}

	return nil
}
