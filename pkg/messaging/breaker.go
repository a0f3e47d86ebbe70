package messaging

import (
	"context"

	"github.com/sakashimaa/fulfillment/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type breakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerPublisher wraps next in a circuit breaker. While the breaker is
// open Publish fails fast with gobreaker.ErrOpenState.
func NewBreakerPublisher(next Publisher, name string, logger *zap.Logger) Publisher {
	return &breakerPublisher{
		next: next,
		cb:   utils.NewBreaker(name, logger),
	}
}

func (p *breakerPublisher) Publish(ctx context.Context, topic string, env Envelope) error {
	_, err := utils.ExecuteWithBreaker(p.cb, func() (struct{}, error) {
		return struct{}{}, p.next.Publish(ctx, topic, env)
	})

	return err
}
