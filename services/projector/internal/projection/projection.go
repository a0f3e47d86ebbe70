package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"github.com/sakashimaa/fulfillment/services/projector/internal/repository"
)

// Projection folds the event stream of one aggregate type into its view.
// Each aggregate owns exactly one row of View keyed by its id; the engine
// loads that row, lets the projection rewrite Data and Owner, then stamps
// the version. Projections may also touch rows of other views.
type Projection interface {
	AggregateType() string
	View() string
	Project(ctx context.Context, rows repository.RowStore, row *domain.Row, env messaging.Envelope) error
	Rebuild(ctx context.Context, rows repository.RowStore, row *domain.Row, snap aggregate.Snapshot) error
}

func All() []Projection {
	return []Projection{
		Catalog{},
		Carts{},
		Orders{},
		Payments{},
		Ratings{},
		Checkouts{},
	}
}

func decodeState(snap aggregate.Snapshot, v any) error {
	if err := json.Unmarshal(snap.State, v); err != nil {
		return fmt.Errorf("decode %s snapshot %s: %w", snap.AggregateType, snap.AggregateID, err)
	}

	return nil
}
