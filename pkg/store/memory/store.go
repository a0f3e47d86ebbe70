package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/outbox/domain"
)

type rowKey struct {
	aggregateType string
	aggregateID   string
}

// Store is an arena keyed by (aggregate type, id) with an explicit version
// column, co-located with its outbox and processed idempotency keys so that
// one lock makes every Commit atomic.
type Store struct {
	mu        sync.Mutex
	rows      map[rowKey]aggregate.Snapshot
	outbox    []*domain.OutboxRecord
	nextID    int64
	processed map[string]aggregate.Processed

	// held by the batch in flight, the in-memory stand-in for a row lock
	batchMu sync.Mutex
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		rows:      make(map[rowKey]aggregate.Snapshot),
		processed: make(map[string]aggregate.Processed),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Load(ctx context.Context, aggregateType, id string) (*aggregate.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.rows[rowKey{aggregateType, id}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", aggregate.ErrNotFound, aggregateType, id)
	}

	return cloneSnapshot(snap), nil
}

func (s *Store) List(ctx context.Context, aggregateType string, includeArchived bool) ([]aggregate.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]aggregate.Snapshot, 0)
	for key, snap := range s.rows {
		if key.aggregateType != aggregateType || (snap.Archived && !includeArchived) {
			continue
		}
		out = append(out, *cloneSnapshot(snap))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].AggregateID < out[j].AggregateID
	})

	return out, nil
}

func (s *Store) Commit(ctx context.Context, m aggregate.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	records := make([]*domain.OutboxRecord, 0, len(m.Messages))
	for _, msg := range m.Messages {
		record, err := domain.NewRecord(msg)
		if err != nil {
			return err
		}
		records = append(records, record)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.IdempotencyKey != "" {
		if _, ok := s.processed[m.IdempotencyKey]; ok {
			return fmt.Errorf("%w: %s", aggregate.ErrDuplicateCommand, m.IdempotencyKey)
		}
	}

	if m.Snapshot != nil {
		key := rowKey{m.Snapshot.AggregateType, m.Snapshot.AggregateID}

		stored, exists := s.rows[key]
		switch {
		case !exists && m.ExpectedVersion != 0:
			return fmt.Errorf("%w: %s %s not stored, expected version %d",
				aggregate.ErrConcurrencyConflict, key.aggregateType, key.aggregateID, m.ExpectedVersion)
		case exists && stored.Version != m.ExpectedVersion:
			return fmt.Errorf("%w: %s %s at version %d, expected %d",
				aggregate.ErrConcurrencyConflict, key.aggregateType, key.aggregateID, stored.Version, m.ExpectedVersion)
		}

		s.rows[key] = *cloneSnapshot(*m.Snapshot)
	}

	for _, record := range records {
		s.nextID++
		record.ID = s.nextID
		s.outbox = append(s.outbox, record)
	}

	if m.IdempotencyKey != "" {
		replies := make([]messaging.Message, len(m.Messages))
		copy(replies, m.Messages)

		s.processed[m.IdempotencyKey] = aggregate.Processed{
			IdempotencyKey: m.IdempotencyKey,
			MessageID:      m.MessageID,
			Replies:        replies,
			ProcessedAt:    s.now(),
		}
	}

	return nil
}

func (s *Store) Processed(ctx context.Context, idempotencyKey string) (*aggregate.Processed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.processed[idempotencyKey]
	if !ok {
		return nil, fmt.Errorf("%w: idempotency key %s", aggregate.ErrNotFound, idempotencyKey)
	}

	return &p, nil
}

// Outbox returns a copy of every outbox record in creation order.
func (s *Store) Outbox() []domain.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.OutboxRecord, 0, len(s.outbox))
	for _, r := range s.outbox {
		out = append(out, *r)
	}

	return out
}

// Messages decodes the outbox records addressed to topic, in creation order.
func (s *Store) Messages(topic string) []messaging.Envelope {
	var out []messaging.Envelope
	for _, r := range s.Outbox() {
		if r.Topic != topic {
			continue
		}

		env, err := r.Envelope()
		if err != nil {
			continue
		}
		out = append(out, env)
	}

	return out
}

func cloneSnapshot(snap aggregate.Snapshot) *aggregate.Snapshot {
	state := make([]byte, len(snap.State))
	copy(state, snap.State)
	snap.State = state

	return &snap
}
