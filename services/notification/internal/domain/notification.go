package domain

import (
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	CheckoutCompleted Kind = "checkout_completed"
	CheckoutFailed    Kind = "checkout_failed"
)

// Notification tells a consumer how their checkout ended.
type Notification struct {
	Kind       Kind
	SagaID     string
	ConsumerID string
	OrderID    string
	Total      decimal.Decimal
	Reason     string
}

// Key identifies the notification across redeliveries and replays.
func (n Notification) Key() string {
	return n.SagaID + ":" + string(n.Kind)
}

func (n Notification) Subject() string {
	if n.Kind == CheckoutCompleted {
		return "Your order is confirmed"
	}

	return "We could not complete your order"
}

// FromCheckout returns the notification owed for a finished checkout. Running
// checkouts owe nothing.
func FromCheckout(p generalDomain.SagaPayload) (Notification, bool) {
	if !p.Terminal {
		return Notification{}, false
	}

	n := Notification{
		Kind:       CheckoutFailed,
		SagaID:     p.SagaID,
		ConsumerID: p.ConsumerID,
		OrderID:    p.OrderID,
		Total:      p.Total,
		Reason:     p.FailureReason,
	}
	if p.State == "COMPLETED" {
		n.Kind = CheckoutCompleted
	}

	return n, true
}
