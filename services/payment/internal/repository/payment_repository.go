package repository

import (
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/services/payment/internal/domain"
)

func NewPaymentRepository(store aggregate.Store) *aggregate.Repository[*domain.Payment] {
	return aggregate.NewRepository(store, generalDomain.AggregatePayment, domain.NewPayment)
}
