package repository

import (
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/services/rating/internal/domain"
)

func NewRatingRepository(store aggregate.Store) *aggregate.Repository[*domain.Rating] {
	return aggregate.NewRepository(store, generalDomain.AggregateRating, domain.NewRating)
}
