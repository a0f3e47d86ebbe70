package repository

import (
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/services/orchestrator/internal/domain"
)

func NewSagaRepository(store aggregate.Store) *aggregate.Repository[*domain.Saga] {
	return aggregate.NewRepository(store, generalDomain.AggregateSaga, domain.NewSaga)
}
