package domain

import (
	"testing"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStockedProduct(t *testing.T, available int64) *Product {
	t.Helper()

	p := NewProduct("sku-1")
	require.NoError(t, p.Create("Vinyl", decimal.RequireFromString("19.99"), available))
	p.ClearPendingEvents()

	return p
}

func TestProduct_Create(t *testing.T) {
	p := NewProduct("sku-1")

	require.NoError(t, p.Create("Vinyl", decimal.NewFromInt(10), 5))
	assert.Equal(t, int64(1), p.Version())

	events := p.PendingEvents()
	require.Len(t, events, 1)
	assert.Equal(t, generalDomain.ProductCreated, events[0].Kind)
	assert.Equal(t, int64(1), events[0].Version)

	err := p.Create("Vinyl", decimal.NewFromInt(10), 5)
	assert.ErrorIs(t, err, ErrProductExists)
}

func TestProduct_CreateValidation(t *testing.T) {
	assert.ErrorIs(t, NewProduct("a").Create(" ", decimal.NewFromInt(1), 1), aggregate.ErrInvalidArgument)
	assert.ErrorIs(t, NewProduct("a").Create("Vinyl", decimal.Zero, 1), ErrInvalidPrice)
	assert.ErrorIs(t, NewProduct("a").Create("Vinyl", decimal.NewFromInt(1), -1), ErrInvalidQuantity)
}

func TestProduct_ReserveThenInsufficient(t *testing.T) {
	p := newStockedProduct(t, 5)

	res, changed, err := p.Reserve("saga-1:sku-1", 3)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(3), res.Quantity)
	assert.Equal(t, int64(3), p.Reserved)
	assert.Equal(t, int64(5), p.Available)
	assert.Equal(t, int64(2), p.Version())

	_, _, err = p.Reserve("saga-2:sku-1", 3)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, int64(3), p.Reserved)
	assert.Equal(t, int64(2), p.Version())
	assert.Len(t, p.PendingEvents(), 1)
}

func TestProduct_ReserveCapturesPrice(t *testing.T) {
	p := newStockedProduct(t, 5)

	_, _, err := p.Reserve("r1", 1)
	require.NoError(t, err)
	require.NoError(t, p.ChangePrice(decimal.NewFromInt(100)))

	assert.True(t, p.Reservations["r1"].UnitPrice.Equal(decimal.RequireFromString("19.99")))
}

func TestProduct_ReserveSameReservationTwice(t *testing.T) {
	p := newStockedProduct(t, 5)

	_, _, err := p.Reserve("r1", 2)
	require.NoError(t, err)

	_, changed, err := p.Reserve("r1", 2)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, int64(2), p.Reserved)
}

func TestProduct_ReleaseIsIdempotent(t *testing.T) {
	p := newStockedProduct(t, 5)

	_, _, err := p.Reserve("r1", 3)
	require.NoError(t, err)

	_, changed, err := p.Release("r1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Zero(t, p.Reserved)

	version := p.Version()
	_, changed, err = p.Release("r1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, version, p.Version())
	assert.Zero(t, p.Reserved)
}

func TestProduct_ReleaseBeforeReserveBlocksReservation(t *testing.T) {
	p := newStockedProduct(t, 5)

	res, changed, err := p.Release("r1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Zero(t, res.Quantity)

	_, _, err = p.Reserve("r1", 1)
	assert.ErrorIs(t, err, ErrReservationReleased)
	assert.Zero(t, p.Reserved)
}

func TestProduct_Confirm(t *testing.T) {
	p := newStockedProduct(t, 5)

	_, _, err := p.Reserve("r1", 3)
	require.NoError(t, err)

	_, changed, err := p.Confirm("r1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(2), p.Available)
	assert.Zero(t, p.Reserved)

	_, changed, err = p.Confirm("r1")
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = p.Release("r1")
	assert.ErrorIs(t, err, aggregate.ErrInvalidStateTransition)

	_, _, err = p.Confirm("missing")
	assert.ErrorIs(t, err, ErrUnknownReservation)
}

func TestProduct_Restock(t *testing.T) {
	p := newStockedProduct(t, 5)

	_, _, err := p.Reserve("r1", 4)
	require.NoError(t, err)

	err = p.Restock(-2)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, int64(5), p.Available)

	require.NoError(t, p.Restock(-1))
	assert.Equal(t, int64(4), p.Available)
	assert.Zero(t, p.Free())

	assert.ErrorIs(t, p.Restock(0), ErrInvalidQuantity)
}
