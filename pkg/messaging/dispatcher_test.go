package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capture struct {
	topics []string
}

func (c *capture) Publish(_ context.Context, topic string, _ Envelope) error {
	c.topics = append(c.topics, topic)
	return nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestDeliverRetriesUntilHandled(t *testing.T) {
	dlq := &capture{}
	d := NewDispatcher(fastPolicy(), dlq, zap.NewNop())

	calls := 0
	err := d.Deliver(context.Background(), "order.events", Envelope{ID: "m-1", Type: "OrderCreated"}, func(context.Context, Envelope) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Empty(t, dlq.topics)
}

func TestDeliverDeadLettersAfterBudget(t *testing.T) {
	dlq := &capture{}
	d := NewDispatcher(fastPolicy(), dlq, zap.NewNop())

	var dead string
	d.OnDeadLetter(func(topic string) { dead = topic })

	calls := 0
	err := d.Deliver(context.Background(), "order.events", Envelope{ID: "m-1", Type: "OrderCreated"}, func(context.Context, Envelope) error {
		calls++
		return errors.New("poison")
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []string{DeadLetterTopic("order.events")}, dlq.topics)
	require.Equal(t, "order.events", dead)
}

func TestDeliverStopsOnCancel(t *testing.T) {
	d := NewDispatcher(RetryPolicy{MaxAttempts: 100, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}, &capture{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := d.Deliver(ctx, "order.events", Envelope{ID: "m-1"}, func(context.Context, Envelope) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("transient")
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope("OrderCreated", "o-1", map[string]string{"orderId": "o-1"})
	require.NoError(t, err)
	require.False(t, env.IsEvent())
	require.Equal(t, env.ID, env.DedupKey())

	data, err := Marshal(env)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, decoded.Decode(&payload))
	require.Equal(t, "o-1", payload["orderId"])

	_, err = Unmarshal([]byte(`{"payload":{}}`))
	require.ErrorIs(t, err, ErrMalformed)
}
