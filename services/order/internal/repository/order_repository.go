package repository

import (
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/services/order/internal/domain"
)

func NewOrderRepository(store aggregate.Store) *aggregate.Repository[*domain.Order] {
	return aggregate.NewRepository(store, generalDomain.AggregateOrder, domain.NewOrder)
}
