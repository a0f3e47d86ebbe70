package domain

import (
	"testing"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items() []generalDomain.LineItem {
	return []generalDomain.LineItem{
		{ProductID: "a", Quantity: 2, UnitPrice: decimal.RequireFromString("10.50")},
		{ProductID: "b", Quantity: 1, UnitPrice: decimal.NewFromInt(4)},
	}
}

func TestTotal(t *testing.T) {
	assert.True(t, Total(items()).Equal(decimal.NewFromInt(25)))
	assert.True(t, Total(nil).IsZero())
}

func TestOrder_Lifecycle(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(o *Order) error
		act     func(o *Order) error
		want    Status
		wantErr error
	}{
		{
			name:    "confirm pending",
			prepare: func(o *Order) error { return nil },
			act:     func(o *Order) error { return o.Confirm() },
			want:    StatusConfirmed,
		},
		{
			name:    "cancel pending",
			prepare: func(o *Order) error { return nil },
			act:     func(o *Order) error { return o.Cancel("payment failed") },
			want:    StatusCancelled,
		},
		{
			name:    "cancel confirmed",
			prepare: func(o *Order) error { return o.Confirm() },
			act:     func(o *Order) error { return o.Cancel("operator") },
			want:    StatusCancelled,
		},
		{
			name:    "confirm confirmed",
			prepare: func(o *Order) error { return o.Confirm() },
			act:     func(o *Order) error { return o.Confirm() },
			want:    StatusConfirmed,
			wantErr: aggregate.ErrInvalidStateTransition,
		},
		{
			name:    "confirm cancelled",
			prepare: func(o *Order) error { return o.Cancel("x") },
			act:     func(o *Order) error { return o.Confirm() },
			want:    StatusCancelled,
			wantErr: aggregate.ErrInvalidStateTransition,
		},
		{
			name:    "cancel cancelled",
			prepare: func(o *Order) error { return o.Cancel("x") },
			act:     func(o *Order) error { return o.Cancel("y") },
			want:    StatusCancelled,
			wantErr: aggregate.ErrInvalidStateTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrder("order-1")
			require.NoError(t, o.Create("consumer-1", items(), decimal.NewFromInt(25)))
			require.NoError(t, tt.prepare(o))

			version := o.Version()
			err := tt.act(o)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, version, o.Version())
			} else {
				require.NoError(t, err)
				assert.Equal(t, version+1, o.Version())
			}
			assert.Equal(t, tt.want, o.Status)
		})
	}
}

func TestOrder_CreateValidation(t *testing.T) {
	assert.ErrorIs(t, NewOrder("o").Create("c", nil, decimal.Zero), ErrNoItems)
	assert.ErrorIs(t, NewOrder("o").Create("c", items(), decimal.NewFromInt(24)), ErrTotalMismatch)

	bad := items()
	bad[0].Quantity = 0
	assert.ErrorIs(t, NewOrder("o").Create("c", bad, decimal.Zero), ErrInvalidItem)

	o := NewOrder("o")
	require.NoError(t, o.Create("c", items(), decimal.NewFromInt(25)))
	assert.ErrorIs(t, o.Create("c", items(), decimal.NewFromInt(25)), ErrOrderExists)
}

func TestOrder_CancelBeforeCreateLeavesTombstone(t *testing.T) {
	o := NewOrder("o")

	require.NoError(t, o.Cancel("saga timed out"))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, int64(1), o.Version())

	err := o.Create("c", items(), decimal.NewFromInt(25))
	assert.ErrorIs(t, err, ErrOrderExists)
}
