package repository

import (
	"github.com/sakashimaa/fulfillment/services/inventory/internal/domain"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
)

func NewProductRepository(store aggregate.Store) *aggregate.Repository[*domain.Product] {
	return aggregate.NewRepository(store, generalDomain.AggregateInventory, domain.NewProduct)
}
