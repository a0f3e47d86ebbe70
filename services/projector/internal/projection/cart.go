package projection

import (
	"context"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"github.com/sakashimaa/fulfillment/services/projector/internal/repository"
)

type Carts struct{}

func (Carts) AggregateType() string { return generalDomain.AggregateCart }

func (Carts) View() string { return domain.ViewCart }

func (Carts) Project(_ context.Context, _ repository.RowStore, row *domain.Row, env messaging.Envelope) error {
	var p generalDomain.CartPayload
	if err := env.Decode(&p); err != nil {
		return err
	}

	return writeCart(row, env.AggregateID, p.ConsumerID, p.Status, p.SagaID, p.Items)
}

type cartState struct {
	ConsumerID string                   `json:"consumerId"`
	Items      []generalDomain.CartItem `json:"items"`
	Status     string                   `json:"status"`
	SagaID     string                   `json:"sagaId"`
}

func (Carts) Rebuild(_ context.Context, _ repository.RowStore, row *domain.Row, snap aggregate.Snapshot) error {
	var state cartState
	if err := decodeState(snap, &state); err != nil {
		return err
	}

	return writeCart(row, snap.AggregateID, state.ConsumerID, state.Status, state.SagaID, state.Items)
}

func writeCart(row *domain.Row, cartID, consumerID, status, sagaID string, items []generalDomain.CartItem) error {
	view := domain.CartView{
		CartID:     cartID,
		ConsumerID: consumerID,
		Status:     status,
		SagaID:     sagaID,
		Items:      make([]domain.CartLine, 0, len(items)),
	}
	for _, it := range items {
		view.Items = append(view.Items, domain.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	row.Owner = consumerID

	return row.Encode(view)
}
