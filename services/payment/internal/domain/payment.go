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
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

var (
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", aggregate.ErrInvalidArgument)
	ErrPaymentExists = fmt.Errorf("%w: payment already exists", aggregate.ErrInvalidStateTransition)
)

type Payment struct {
	aggregate.Root

	OrderID       string          `json:"orderId"`
	ConsumerID    string          `json:"consumerId"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Status        Status          `json:"status"`
	TransactionID string          `json:"transactionId,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func NewPayment(id string) *Payment {
	return &Payment{Root: aggregate.Root{AggregateID: id}}
}

func (p *Payment) Create(orderID, consumerID string, amount decimal.Decimal, method string) error {
	if p.Version() > 0 {
		return ErrPaymentExists
	}

	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	p.OrderID = orderID
	p.ConsumerID = consumerID
	p.Amount = amount
	p.Method = method
	p.Status = StatusPending
	p.CreatedAt = time.Now().UTC()

	return p.Record(generalDomain.AggregatePayment, generalDomain.PaymentCreated, p.Payload())
}

func (p *Payment) Complete(transactionID string) error {
	if p.Status != StatusPending {
		return p.illegal("complete")
	}

	p.Status = StatusCompleted
	p.TransactionID = transactionID

	return p.Record(generalDomain.AggregatePayment, generalDomain.PaymentCompleted, p.Payload())
}

func (p *Payment) Fail(reason string) error {
	if p.Status != StatusPending {
		return p.illegal("fail")
	}

	p.Status = StatusFailed
	p.Reason = reason

	return p.Record(generalDomain.AggregatePayment, generalDomain.PaymentFailed, p.Payload())
}

// Void fails a payment that was never charged. Stored as FAILED, it also
// stops a ProcessPayment arriving after the saga gave up.
func (p *Payment) Void(orderID, reason string) error {
	if p.Version() > 0 {
		return ErrPaymentExists
	}

	p.OrderID = orderID
	p.Status = StatusFailed
	p.Reason = reason

	return p.Record(generalDomain.AggregatePayment, generalDomain.PaymentFailed, p.Payload())
}

func (p *Payment) Refund(reason string) error {
	if p.Status != StatusCompleted {
		return p.illegal("refund")
	}

	p.Status = StatusRefunded
	p.Reason = reason

	return p.Record(generalDomain.AggregatePayment, generalDomain.PaymentRefunded, p.Payload())
}

func (p *Payment) Payload() generalDomain.PaymentPayload {
	return generalDomain.PaymentPayload{
		PaymentID: p.ID(),
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Method:    p.Method,
		Status:    string(p.Status),
		Reason:    p.Reason,
	}
}

// Outcome is the reply type describing the payment's current status.
func (p *Payment) Outcome() string {
	switch p.Status {
	case StatusCompleted:
		return generalDomain.PaymentCompleted
	case StatusRefunded:
		return generalDomain.PaymentRefunded
	case StatusFailed:
		return generalDomain.PaymentFailed
	default:
		return generalDomain.PaymentCreated
	}
}

func (p *Payment) illegal(action string) error {
	return fmt.Errorf("%w: cannot %s payment %s in status %s", aggregate.ErrInvalidStateTransition, action, p.ID(), p.Status)
}

func IsBusinessError(err error) bool {
	return errors.Is(err, aggregate.ErrInvalidArgument) || errors.Is(err, aggregate.ErrInvalidStateTransition)
}
