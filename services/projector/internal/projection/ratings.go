package projection

import (
	"context"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"github.com/sakashimaa/fulfillment/services/projector/internal/repository"
)

// Ratings keeps one row per rating owned by its target; summaries are
// aggregated when queried.
type Ratings struct{}

func (Ratings) AggregateType() string { return generalDomain.AggregateRating }

func (Ratings) View() string { return domain.ViewRatings }

func (Ratings) Project(_ context.Context, _ repository.RowStore, row *domain.Row, env messaging.Envelope) error {
	var p generalDomain.RatingPayload
	if err := env.Decode(&p); err != nil {
		return err
	}

	row.Owner = p.TargetID

	return row.Encode(domain.RatingEntry{
		RatingID:   env.AggregateID,
		CustomerID: p.CustomerID,
		TargetID:   p.TargetID,
		Score:      p.Score,
		Comment:    p.Comment,
	})
}

type ratingState struct {
	CustomerID string `json:"customerId"`
	TargetID   string `json:"targetId"`
	Score      int    `json:"score"`
	Comment    string `json:"comment"`
}

func (Ratings) Rebuild(_ context.Context, _ repository.RowStore, row *domain.Row, snap aggregate.Snapshot) error {
	var state ratingState
	if err := decodeState(snap, &state); err != nil {
		return err
	}

	row.Owner = state.TargetID

	return row.Encode(domain.RatingEntry{
		RatingID:   snap.AggregateID,
		CustomerID: state.CustomerID,
		TargetID:   state.TargetID,
		Score:      state.Score,
		Comment:    state.Comment,
	})
}
