package gateway

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSimulated_ChargeIsIdempotentPerPayment(t *testing.T) {
	g := NewSimulated(decimal.NewFromInt(1000))

	first, err := g.Charge(context.Background(), "p1", decimal.NewFromInt(10), "card")
	require.NoError(t, err)

	second, err := g.Charge(context.Background(), "p1", decimal.NewFromInt(10), "card")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSimulated_Declines(t *testing.T) {
	g := NewSimulated(decimal.NewFromInt(100))

	_, err := g.Charge(context.Background(), "p1", decimal.NewFromInt(10), DeclinedMethod)
	assert.ErrorIs(t, err, ErrDeclined)

	_, err = g.Charge(context.Background(), "p2", decimal.NewFromInt(101), "card")
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestBreaker_DeclinesDoNotTrip(t *testing.T) {
	sim := NewSimulated(decimal.Zero)
	g := WithBreaker(sim, zap.NewNop())

	for i := 0; i < 10; i++ {
		_, err := g.Charge(context.Background(), "p", decimal.NewFromInt(1), DeclinedMethod)
		assert.ErrorIs(t, err, ErrDeclined)
	}

	_, err := g.Charge(context.Background(), "ok", decimal.NewFromInt(1), "card")
	assert.NoError(t, err)
}

func TestBreaker_OpensOnOutage(t *testing.T) {
	sim := NewSimulated(decimal.Zero)
	sim.SetAvailable(false)
	g := WithBreaker(sim, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := g.Charge(context.Background(), "p", decimal.NewFromInt(1), "card")
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	sim.SetAvailable(true)

	_, err := g.Charge(context.Background(), "p", decimal.NewFromInt(1), "card")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
