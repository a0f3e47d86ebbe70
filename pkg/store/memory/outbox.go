package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/outbox/domain"
	"github.com/sakashimaa/fulfillment/pkg/outbox/worker"
)

// NextBatch implements worker.OutboxRepository. Only one batch is open at a
// time; marks are buffered and applied on Commit.
func (s *Store) NextBatch(ctx context.Context, size int) (worker.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.batchMu.Lock()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	held := make(map[string]bool)
	records := make([]*domain.OutboxRecord, 0, size)

	for _, r := range s.outbox {
		if len(records) >= size {
			break
		}
		if r.Status != domain.StatusPending {
			continue
		}

		key := r.OrderingKey()
		if held[key] {
			continue
		}
		if r.NextAttemptAt.After(now) {
			held[key] = true
			continue
		}

		cp := *r
		records = append(records, &cp)
	}

	return &batch{store: s, records: records}, nil
}

type mark struct {
	id            int64
	delivered     bool
	errMsg        string
	nextAttemptAt time.Time
}

type batch struct {
	store   *Store
	records []*domain.OutboxRecord
	marks   []mark
	once    sync.Once
	closed  bool
}

func (b *batch) Records() []*domain.OutboxRecord {
	return b.records
}

func (b *batch) MarkDelivered(_ context.Context, id int64) error {
	if b.closed {
		return worker.ErrBatchClosed
	}
	b.marks = append(b.marks, mark{id: id, delivered: true})

	return nil
}

func (b *batch) MarkFailed(_ context.Context, id int64, errMsg string, nextAttemptAt time.Time) error {
	if b.closed {
		return worker.ErrBatchClosed
	}
	b.marks = append(b.marks, mark{id: id, errMsg: errMsg, nextAttemptAt: nextAttemptAt})

	return nil
}

func (b *batch) Commit(_ context.Context) error {
	if b.closed {
		return worker.ErrBatchClosed
	}

	s := b.store
	s.mu.Lock()
	now := s.now()
	byID := make(map[int64]*domain.OutboxRecord, len(b.marks))
	for _, r := range s.outbox {
		byID[r.ID] = r
	}

	var missing int64
	for _, m := range b.marks {
		r, ok := byID[m.id]
		if !ok {
			missing = m.id
			continue
		}

		if m.delivered {
			r.Status = domain.StatusDelivered
			r.DeliveredAt = &now
			r.LastError = nil
			continue
		}

		errMsg := m.errMsg
		r.Attempts++
		r.LastError = &errMsg
		r.NextAttemptAt = m.nextAttemptAt
	}
	s.mu.Unlock()

	b.close()

	if missing != 0 {
		return fmt.Errorf("outbox record %d vanished", missing)
	}

	return nil
}

func (b *batch) Rollback(_ context.Context) error {
	if b.closed {
		return worker.ErrBatchClosed
	}
	b.close()

	return nil
}

func (b *batch) close() {
	b.once.Do(func() {
		b.closed = true
		b.store.batchMu.Unlock()
	})
}

func (s *Store) PurgeDelivered(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	kept := s.outbox[:0]
	var purged int64

	for _, r := range s.outbox {
		if r.Status == domain.StatusDelivered && r.DeliveredAt != nil && r.DeliveredAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	s.outbox = kept

	return purged, nil
}
