package repository

import (
	"context"

	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
)

// RowStore persists read-model rows. Rows are always derivable from the
// write side, so a store may be dropped and rebuilt at any time.
type RowStore interface {
	Get(ctx context.Context, view, key string) (*domain.Row, error)
	Upsert(ctx context.Context, row domain.Row) error
	List(ctx context.Context, view string) ([]domain.Row, error)
	ListByOwner(ctx context.Context, view, owner string) ([]domain.Row, error)
}
