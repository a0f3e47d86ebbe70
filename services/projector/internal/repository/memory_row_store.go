package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
)

type rowKey struct {
	view string
	key  string
}

type MemoryRowStore struct {
	mu   sync.RWMutex
	rows map[rowKey]domain.Row
}

func NewMemoryRowStore() *MemoryRowStore {
	return &MemoryRowStore{rows: make(map[rowKey]domain.Row)}
}

func (s *MemoryRowStore) Get(_ context.Context, view, key string) (*domain.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[rowKey{view, key}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrRowNotFound, view, key)
	}

	return clone(row), nil
}

func (s *MemoryRowStore) Upsert(_ context.Context, row domain.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[rowKey{row.View, row.Key}] = *clone(row)

	return nil
}

func (s *MemoryRowStore) List(_ context.Context, view string) ([]domain.Row, error) {
	return s.filter(func(r domain.Row) bool { return r.View == view }), nil
}

func (s *MemoryRowStore) ListByOwner(_ context.Context, view, owner string) ([]domain.Row, error) {
	return s.filter(func(r domain.Row) bool { return r.View == view && r.Owner == owner }), nil
}

func (s *MemoryRowStore) filter(match func(domain.Row) bool) []domain.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Row, 0)
	for _, row := range s.rows {
		if match(row) {
			out = append(out, *clone(row))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out
}

func clone(row domain.Row) *domain.Row {
	data := make([]byte, len(row.Data))
	copy(data, row.Data)
	row.Data = data

	return &row
}
