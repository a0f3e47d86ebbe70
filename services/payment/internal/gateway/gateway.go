package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/pkg/utils"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	ErrDeclined    = errors.New("payment declined")
	ErrUnavailable = errors.New("payment gateway unavailable")
)

// DeclinedMethod is the payment method the simulated gateway always declines.
const DeclinedMethod = "declined-card"

type Gateway interface {
	// Charge is idempotent per paymentID and returns the transaction id.
	Charge(ctx context.Context, paymentID string, amount decimal.Decimal, method string) (string, error)
	Refund(ctx context.Context, transactionID string) error
}

// Simulated approves every charge up to Limit unless the method is
// DeclinedMethod. SetAvailable(false) simulates an outage.
type Simulated struct {
	mu          sync.Mutex
	limit       decimal.Decimal
	unavailable bool
	charges     map[string]string
	refunds     map[string]bool
}

func NewSimulated(limit decimal.Decimal) *Simulated {
	return &Simulated{
		limit:   limit,
		charges: make(map[string]string),
		refunds: make(map[string]bool),
	}
}

func (g *Simulated) SetAvailable(available bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.unavailable = !available
}

func (g *Simulated) Charge(ctx context.Context, paymentID string, amount decimal.Decimal, method string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.unavailable {
		return "", ErrUnavailable
	}

	if txID, ok := g.charges[paymentID]; ok {
		return txID, nil
	}

	if method == DeclinedMethod {
		return "", fmt.Errorf("%w: method %s", ErrDeclined, method)
	}

	if g.limit.IsPositive() && amount.GreaterThan(g.limit) {
		return "", fmt.Errorf("%w: amount %s over limit %s", ErrDeclined, amount, g.limit)
	}

	txID := uuid.NewString()
	g.charges[paymentID] = txID

	return txID, nil
}

func (g *Simulated) Refund(ctx context.Context, transactionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.unavailable {
		return ErrUnavailable
	}

	g.refunds[transactionID] = true

	return nil
}

func (g *Simulated) Refunded(transactionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.refunds[transactionID]
}

type breakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker guards next with a circuit breaker. Declines are business
// outcomes and do not count as breaker failures.
func WithBreaker(next Gateway, logger *zap.Logger) Gateway {
	cb := utils.NewBreaker("payment-gateway", logger)

	return &breakerGateway{next: next, cb: cb}
}

func (g *breakerGateway) Charge(ctx context.Context, paymentID string, amount decimal.Decimal, method string) (string, error) {
	var declined error

	txID, err := utils.ExecuteWithBreaker(g.cb, func() (string, error) {
		txID, err := g.next.Charge(ctx, paymentID, amount, method)
		if errors.Is(err, ErrDeclined) {
			declined = err
			return "", nil
		}

		return txID, err
	})
	if declined != nil {
		return "", declined
	}

	return txID, err
}

func (g *breakerGateway) Refund(ctx context.Context, transactionID string) error {
	_, err := utils.ExecuteWithBreaker(g.cb, func() (struct{}, error) {
		return struct{}{}, g.next.Refund(ctx, transactionID)
	})

	return err
}
