package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Entity interface {
	Base() *Root
}

// Archivable aggregates stop showing up in List once archived.
type Archivable interface {
	IsArchived() bool
}

type Repository[T Entity] struct {
	store         Store
	aggregateType string
	factory       func(id string) T
}

func NewRepository[T Entity](store Store, aggregateType string, factory func(id string) T) *Repository[T] {
	return &Repository[T]{
		store:         store,
		aggregateType: aggregateType,
		factory:       factory,
	}
}

func (r *Repository[T]) AggregateType() string {
	return r.aggregateType
}

func (r *Repository[T]) Load(ctx context.Context, id string) (T, error) {
	snap, err := r.store.Load(ctx, r.aggregateType, id)
	if err != nil {
		var zero T
		return zero, err
	}

	return r.FromSnapshot(snap)
}

// LoadOrNew returns a fresh version-zero aggregate when none is stored.
func (r *Repository[T]) LoadOrNew(ctx context.Context, id string) (T, bool, error) {
	agg, err := r.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return r.factory(id), false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}

	return agg, true, nil
}

func (r *Repository[T]) List(ctx context.Context, includeArchived bool) ([]T, error) {
	snaps, err := r.store.List(ctx, r.aggregateType, includeArchived)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(snaps))
	for i := range snaps {
		agg, err := r.FromSnapshot(&snaps[i])
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}

	return out, nil
}

func (r *Repository[T]) FromSnapshot(snap *Snapshot) (T, error) {
	agg := r.factory(snap.AggregateID)
	if err := json.Unmarshal(snap.State, agg); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s %s: %w", r.aggregateType, snap.AggregateID, err)
	}

	agg.Base().AggregateID = snap.AggregateID
	agg.Base().AggregateVersion = snap.Version

	return agg, nil
}

func (r *Repository[T]) Snapshot(agg T) (*Snapshot, error) {
	state, err := json.Marshal(agg)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", r.aggregateType, agg.Base().ID(), err)
	}

	snap := &Snapshot{
		AggregateType: r.aggregateType,
		AggregateID:   agg.Base().ID(),
		Version:       agg.Base().Version(),
		State:         state,
		UpdatedAt:     time.Now().UTC(),
	}

	if a, ok := any(agg).(Archivable); ok {
		snap.Archived = a.IsArchived()
	}

	return snap, nil
}
