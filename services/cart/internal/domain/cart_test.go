package domain

import (
	"testing"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openCart(t *testing.T) *Cart {
	t.Helper()

	c := NewCart("cart-1")
	require.NoError(t, c.Create("consumer-1"))

	return c
}

func TestCart_AddItemMergesQuantities(t *testing.T) {
	c := openCart(t)

	require.NoError(t, c.AddItem("sock", 2))
	require.NoError(t, c.AddItem("sock", 3))
	require.NoError(t, c.AddItem("shoe", 1))

	assert.Equal(t, []generalDomain.CartItem{{ProductID: "sock", Quantity: 5}, {ProductID: "shoe", Quantity: 1}}, c.Items)
	assert.Equal(t, int64(4), c.Version())
	assert.ErrorIs(t, c.AddItem("sock", 0), ErrInvalidQuantity)
}

func TestCart_ChangeItemQuantity(t *testing.T) {
	c := openCart(t)
	require.NoError(t, c.AddItem("sock", 2))

	require.NoError(t, c.ChangeItemQuantity("sock", 7))
	assert.Equal(t, int64(7), c.Items[0].Quantity)

	require.NoError(t, c.ChangeItemQuantity("sock", 0))
	assert.Empty(t, c.Items)

	events := c.PendingEvents()
	assert.Equal(t, generalDomain.CartItemRemoved, events[len(events)-1].Kind)

	assert.ErrorIs(t, c.ChangeItemQuantity("sock", 1), ErrItemNotInCart)
	assert.ErrorIs(t, c.RemoveItem("sock"), ErrItemNotInCart)
}

func TestCart_CheckOut(t *testing.T) {
	c := openCart(t)

	_, err := c.CheckOut("saga-1")
	assert.ErrorIs(t, err, ErrEmptyCart)

	require.NoError(t, c.AddItem("sock", 1))

	changed, err := c.CheckOut("saga-1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, c.IsArchived())

	changed, err = c.CheckOut("saga-1")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = c.CheckOut("saga-2")
	assert.ErrorIs(t, err, aggregate.ErrInvalidStateTransition)
	assert.ErrorIs(t, c.AddItem("shoe", 1), aggregate.ErrInvalidStateTransition)
}

func TestCart_Create(t *testing.T) {
	assert.ErrorIs(t, NewCart("c").Create(""), ErrInvalidConsumer)
	assert.ErrorIs(t, openCart(t).Create("consumer-2"), ErrCartExists)
}
