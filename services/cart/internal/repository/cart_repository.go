package repository

import (
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/services/cart/internal/domain"
)

func NewCartRepository(store aggregate.Store) *aggregate.Repository[*domain.Cart] {
	return aggregate.NewRepository(store, generalDomain.AggregateCart, domain.NewCart)
}
