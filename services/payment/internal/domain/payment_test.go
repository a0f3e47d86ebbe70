package domain

import (
	"testing"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending(t *testing.T) *Payment {
	t.Helper()

	p := NewPayment("pay-1")
	require.NoError(t, p.Create("order-1", "consumer-1", decimal.NewFromInt(10), "card"))

	return p
}

func TestPayment_CompleteAndFailAreExclusive(t *testing.T) {
	p := pending(t)
	require.NoError(t, p.Complete("tx-1"))

	assert.ErrorIs(t, p.Fail("late"), aggregate.ErrInvalidStateTransition)
	assert.ErrorIs(t, p.Complete("tx-2"), aggregate.ErrInvalidStateTransition)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, "tx-1", p.TransactionID)

	p = pending(t)
	require.NoError(t, p.Fail("declined"))

	assert.ErrorIs(t, p.Complete("tx"), aggregate.ErrInvalidStateTransition)
	assert.Equal(t, StatusFailed, p.Status)
}

func TestPayment_Refund(t *testing.T) {
	p := pending(t)
	assert.ErrorIs(t, p.Refund("x"), aggregate.ErrInvalidStateTransition)

	require.NoError(t, p.Complete("tx-1"))
	require.NoError(t, p.Refund("saga compensated"))
	assert.Equal(t, StatusRefunded, p.Status)
	assert.Equal(t, int64(3), p.Version())
}

func TestPayment_CreateValidation(t *testing.T) {
	assert.ErrorIs(t, NewPayment("p").Create("o", "c", decimal.Zero, "card"), ErrInvalidAmount)

	p := pending(t)
	assert.ErrorIs(t, p.Create("o", "c", decimal.NewFromInt(1), "card"), ErrPaymentExists)
}

func TestPayment_Void(t *testing.T) {
	p := NewPayment("p")
	require.NoError(t, p.Void("order-1", "saga timed out"))
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, int64(1), p.Version())

	assert.ErrorIs(t, p.Void("order-1", "again"), ErrPaymentExists)
}
