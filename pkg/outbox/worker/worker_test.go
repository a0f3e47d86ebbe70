package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment/pkg/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []messaging.Envelope
	failFor   map[string]bool
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, env messaging.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failFor[env.AggregateID] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, env)

	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.published))
	for _, env := range p.published {
		out = append(out, env.AggregateID+":"+env.Type)
	}

	return out
}

func commit(t *testing.T, store *memory.Store, aggregateID string, types ...string) {
	t.Helper()

	messages := make([]messaging.Message, 0, len(types))
	for _, typ := range types {
		messages = append(messages, messaging.Message{
			Topic: "order.events",
			Envelope: messaging.Envelope{
				ID:            aggregateID + "-" + typ,
				Type:          typ,
				AggregateType: "Order",
				AggregateID:   aggregateID,
				Payload:       json.RawMessage(`{}`),
			},
		})
	}

	require.NoError(t, store.Commit(context.Background(), aggregate.Mutation{Messages: messages}))
}

func TestProcessBatchPublishesInOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pub := &recordingPublisher{}
	processor := worker.NewOutboxProcessor(store, pub, zap.NewNop())

	commit(t, store, "o-1", "OrderCreated", "OrderConfirmed")
	commit(t, store, "o-2", "OrderCreated")

	n, err := processor.ProcessBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"o-1:OrderCreated", "o-1:OrderConfirmed", "o-2:OrderCreated"}, pub.types())

	n, err = processor.ProcessBatch(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestFailedPublishHoldsBackOnlyThatAggregate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pub := &recordingPublisher{failFor: map[string]bool{"o-1": true}}
	processor := worker.NewOutboxProcessor(store, pub, zap.NewNop(), worker.WithRetryBackoff(time.Millisecond, time.Millisecond))

	commit(t, store, "o-1", "OrderCreated", "OrderConfirmed")
	commit(t, store, "o-2", "OrderCreated")

	n, err := processor.ProcessBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"o-2:OrderCreated"}, pub.types())

	pub.mu.Lock()
	pub.failFor = nil
	pub.mu.Unlock()

	require.Eventually(t, func() bool {
		_, err := processor.ProcessBatch(ctx)
		return err == nil && len(pub.types()) == 3
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []string{"o-2:OrderCreated", "o-1:OrderCreated", "o-1:OrderConfirmed"}, pub.types())
}

func TestStartStopsWithContext(t *testing.T) {
	store := memory.NewStore()
	pub := &recordingPublisher{}
	processor := worker.NewOutboxProcessor(store, pub, zap.NewNop(), worker.WithInterval(5*time.Millisecond))

	commit(t, store, "o-1", "OrderCreated")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		processor.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(pub.types()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop")
	}
}
