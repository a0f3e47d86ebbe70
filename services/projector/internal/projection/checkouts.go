package projection

import (
	"context"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"github.com/sakashimaa/fulfillment/services/projector/internal/repository"
	"github.com/shopspring/decimal"
)

const (
	sagaCompleted   = "COMPLETED"
	sagaCompensated = "COMPENSATED"
)

type Checkouts struct{}

func (Checkouts) AggregateType() string { return generalDomain.AggregateSaga }

func (Checkouts) View() string { return domain.ViewCheckouts }

func (Checkouts) Project(_ context.Context, _ repository.RowStore, row *domain.Row, env messaging.Envelope) error {
	var p generalDomain.SagaPayload
	if err := env.Decode(&p); err != nil {
		return err
	}

	p.SagaID = env.AggregateID
	row.Owner = p.ConsumerID

	return row.Encode(domain.CheckoutView(p))
}

type sagaState struct {
	ConsumerID    string          `json:"consumerId"`
	State         string          `json:"state"`
	OrderID       string          `json:"orderId"`
	OrderStatus   string          `json:"orderStatus"`
	Total         decimal.Decimal `json:"total"`
	FailureReason string          `json:"failureReason"`
	Stuck         bool            `json:"stuck"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (Checkouts) Rebuild(_ context.Context, _ repository.RowStore, row *domain.Row, snap aggregate.Snapshot) error {
	var state sagaState
	if err := decodeState(snap, &state); err != nil {
		return err
	}

	view := domain.CheckoutView{
		SagaID:        snap.AggregateID,
		ConsumerID:    state.ConsumerID,
		State:         state.State,
		Terminal:      state.State == sagaCompleted || state.State == sagaCompensated,
		Stuck:         state.Stuck,
		Total:         state.Total,
		FailureReason: state.FailureReason,
		UpdatedAt:     state.UpdatedAt,
	}
	// the order id is only exposed once the order exists
	switch state.OrderStatus {
	case "", "requested", "failed":
	default:
		view.OrderID = state.OrderID
	}

	row.Owner = state.ConsumerID

	return row.Encode(view)
}
