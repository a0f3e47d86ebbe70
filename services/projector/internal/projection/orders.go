package projection

import (
	"context"
	"errors"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"github.com/sakashimaa/fulfillment/services/projector/internal/repository"
	"github.com/shopspring/decimal"
)

type Orders struct{}

func (Orders) AggregateType() string { return generalDomain.AggregateOrder }

func (Orders) View() string { return domain.ViewOrders }

func (Orders) Project(ctx context.Context, rows repository.RowStore, row *domain.Row, env messaging.Envelope) error {
	var p generalDomain.OrderPayload
	if err := env.Decode(&p); err != nil {
		return err
	}

	var entry domain.OrderHistoryEntry
	if err := row.Decode(&entry); err != nil {
		return err
	}

	entry.OrderID = env.AggregateID
	if p.ConsumerID != "" {
		entry.ConsumerID = p.ConsumerID
	}
	if len(p.Items) > 0 {
		entry.Items = p.Items
	}
	entry.Total = p.Total
	entry.Status = p.Status
	entry.Reason = p.Reason
	entry.UpdatedAt = env.OccurredAt

	return writeOrder(ctx, rows, row, entry)
}

type orderState struct {
	ConsumerID string                   `json:"consumerId"`
	Items      []generalDomain.LineItem `json:"items"`
	Total      decimal.Decimal          `json:"total"`
	Status     string                   `json:"status"`
	Reason     string                   `json:"reason"`
}

func (Orders) Rebuild(ctx context.Context, rows repository.RowStore, row *domain.Row, snap aggregate.Snapshot) error {
	var state orderState
	if err := decodeState(snap, &state); err != nil {
		return err
	}

	return writeOrder(ctx, rows, row, domain.OrderHistoryEntry{
		OrderID:    snap.AggregateID,
		ConsumerID: state.ConsumerID,
		Items:      state.Items,
		Total:      state.Total,
		Status:     state.Status,
		Reason:     state.Reason,
		UpdatedAt:  snap.UpdatedAt,
	})
}

// writeOrder picks up a payment projected before its order.
func writeOrder(ctx context.Context, rows repository.RowStore, row *domain.Row, entry domain.OrderHistoryEntry) error {
	payments, err := rows.ListByOwner(ctx, domain.ViewPayments, entry.OrderID)
	if err != nil {
		return err
	}
	if len(payments) > 0 {
		var payment domain.PaymentView
		if err := payments[0].Decode(&payment); err != nil {
			return err
		}
		entry.PaymentID = payment.PaymentID
		entry.PaymentStatus = payment.Status
	}

	row.Owner = entry.ConsumerID

	return row.Encode(entry)
}

// linkPayment copies payment progress onto an already projected order.
func linkPayment(ctx context.Context, rows repository.RowStore, payment domain.PaymentView, now time.Time) error {
	order, err := rows.Get(ctx, domain.ViewOrders, payment.OrderID)
	if errors.Is(err, domain.ErrRowNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var entry domain.OrderHistoryEntry
	if err := order.Decode(&entry); err != nil {
		return err
	}
	if entry.PaymentID == payment.PaymentID && entry.PaymentStatus == payment.Status {
		return nil
	}

	entry.PaymentID = payment.PaymentID
	entry.PaymentStatus = payment.Status
	if err := order.Encode(entry); err != nil {
		return err
	}
	order.UpdatedAt = now

	return rows.Upsert(ctx, *order)
}
