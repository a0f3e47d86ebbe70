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

type Payments struct{}

func (Payments) AggregateType() string { return generalDomain.AggregatePayment }

func (Payments) View() string { return domain.ViewPayments }

func (Payments) Project(ctx context.Context, rows repository.RowStore, row *domain.Row, env messaging.Envelope) error {
	var p generalDomain.PaymentPayload
	if err := env.Decode(&p); err != nil {
		return err
	}

	return writePayment(ctx, rows, row, domain.PaymentView{
		PaymentID: env.AggregateID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Method:    p.Method,
		Status:    p.Status,
		Reason:    p.Reason,
	}, env.OccurredAt)
}

type paymentState struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
	Status  string          `json:"status"`
	Reason  string          `json:"reason"`
}

func (Payments) Rebuild(ctx context.Context, rows repository.RowStore, row *domain.Row, snap aggregate.Snapshot) error {
	var state paymentState
	if err := decodeState(snap, &state); err != nil {
		return err
	}

	return writePayment(ctx, rows, row, domain.PaymentView{
		PaymentID: snap.AggregateID,
		OrderID:   state.OrderID,
		Amount:    state.Amount,
		Method:    state.Method,
		Status:    state.Status,
		Reason:    state.Reason,
	}, snap.UpdatedAt)
}

func writePayment(ctx context.Context, rows repository.RowStore, row *domain.Row, view domain.PaymentView, at time.Time) error {
	row.Owner = view.OrderID
	if err := row.Encode(view); err != nil {
		return err
	}

	if view.OrderID == "" {
		return nil
	}

	return linkPayment(ctx, rows, view, at)
}
