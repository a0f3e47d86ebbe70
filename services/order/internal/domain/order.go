package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrNoItems       = fmt.Errorf("%w: order has no items", aggregate.ErrInvalidArgument)
	ErrInvalidItem   = fmt.Errorf("%w: item quantity and price must be positive", aggregate.ErrInvalidArgument)
	ErrTotalMismatch = fmt.Errorf("%w: total does not match items", aggregate.ErrInvalidArgument)
	ErrOrderExists   = fmt.Errorf("%w: order already exists", aggregate.ErrInvalidStateTransition)
)

type Order struct {
	aggregate.Root

	ConsumerID string                   `json:"consumerId"`
	Items      []generalDomain.LineItem `json:"items"`
	Total      decimal.Decimal          `json:"total"`
	Status     Status                   `json:"status"`
	Reason     string                   `json:"reason,omitempty"`
	CreatedAt  time.Time                `json:"createdAt"`
}

func NewOrder(id string) *Order {
	return &Order{Root: aggregate.Root{AggregateID: id}}
}

func Total(items []generalDomain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}

	return total
}

// Create places the order in PENDING. total must equal the sum of the
// captured unit prices times quantities.
func (o *Order) Create(consumerID string, items []generalDomain.LineItem, total decimal.Decimal) error {
	if o.Version() > 0 {
		return ErrOrderExists
	}

	if len(items) == 0 {
		return ErrNoItems
	}

	for _, item := range items {
		if item.Quantity <= 0 || !item.UnitPrice.IsPositive() {
			return fmt.Errorf("%w: product %s", ErrInvalidItem, item.ProductID)
		}
	}

	if !Total(items).Equal(total) {
		return fmt.Errorf("%w: got %s, items sum to %s", ErrTotalMismatch, total, Total(items))
	}

	o.ConsumerID = consumerID
	o.Items = items
	o.Total = total
	o.Status = StatusPending
	o.CreatedAt = time.Now().UTC()

	return o.Record(generalDomain.AggregateOrder, generalDomain.OrderCreated, o.payload())
}

func (o *Order) Confirm() error {
	if o.Status != StatusPending {
		return o.illegal("confirm")
	}

	o.Status = StatusConfirmed

	return o.Record(generalDomain.AggregateOrder, generalDomain.OrderConfirmed, o.payload())
}

// Cancel is legal from PENDING or CONFIRMED. An order that was never created
// is cancelled in place so a late CreateOrder cannot revive it.
func (o *Order) Cancel(reason string) error {
	switch {
	case o.Version() == 0:
	case o.Status == StatusPending, o.Status == StatusConfirmed:
	default:
		return o.illegal("cancel")
	}

	o.Status = StatusCancelled
	o.Reason = reason

	return o.Record(generalDomain.AggregateOrder, generalDomain.OrderCancelled, o.payload())
}

func (o *Order) Payload() generalDomain.OrderPayload {
	return o.payload()
}

func (o *Order) payload() generalDomain.OrderPayload {
	return generalDomain.OrderPayload{
		OrderID:    o.ID(),
		ConsumerID: o.ConsumerID,
		Items:      o.Items,
		Total:      o.Total,
		Status:     string(o.Status),
		Reason:     o.Reason,
	}
}

func (o *Order) illegal(action string) error {
	return fmt.Errorf("%w: cannot %s order %s in status %s", aggregate.ErrInvalidStateTransition, action, o.ID(), o.Status)
}

func IsBusinessError(err error) bool {
	return errors.Is(err, aggregate.ErrInvalidArgument) || errors.Is(err, aggregate.ErrInvalidStateTransition)
}
