package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
)

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusCheckedOut Status = "CHECKED_OUT"
)

var (
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", aggregate.ErrInvalidArgument)
	ErrInvalidConsumer = fmt.Errorf("%w: consumer id is required", aggregate.ErrInvalidArgument)
	ErrItemNotInCart   = fmt.Errorf("%w: item is not in the cart", aggregate.ErrInvalidArgument)
	ErrEmptyCart       = fmt.Errorf("%w: cart is empty", aggregate.ErrInvalidStateTransition)
	ErrCartExists      = fmt.Errorf("%w: cart already exists", aggregate.ErrInvalidStateTransition)
)

type Cart struct {
	aggregate.Root

	ConsumerID string                   `json:"consumerId"`
	Items      []generalDomain.CartItem `json:"items"`
	Status     Status                   `json:"status"`
	SagaID     string                   `json:"sagaId,omitempty"`
	CreatedAt  time.Time                `json:"createdAt"`
}

func NewCart(id string) *Cart {
	return &Cart{Root: aggregate.Root{AggregateID: id}}
}

// IsArchived hides checked out carts from listings.
func (c *Cart) IsArchived() bool {
	return c.Status == StatusCheckedOut
}

func (c *Cart) Create(consumerID string) error {
	if c.Version() > 0 {
		return ErrCartExists
	}

	if consumerID == "" {
		return ErrInvalidConsumer
	}

	c.ConsumerID = consumerID
	c.Status = StatusOpen
	c.CreatedAt = time.Now().UTC()

	return c.Record(generalDomain.AggregateCart, generalDomain.CartCreated, c.Payload())
}

// AddItem merges the quantity into an existing line for the same product.
func (c *Cart) AddItem(productID string, quantity int64) error {
	if err := c.open("add item to"); err != nil {
		return err
	}

	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	if i := c.find(productID); i >= 0 {
		c.Items[i].Quantity += quantity
	} else {
		c.Items = append(c.Items, generalDomain.CartItem{ProductID: productID, Quantity: quantity})
	}

	return c.Record(generalDomain.AggregateCart, generalDomain.CartItemAdded, c.Payload())
}

func (c *Cart) RemoveItem(productID string) error {
	if err := c.open("remove item from"); err != nil {
		return err
	}

	i := c.find(productID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotInCart, productID)
	}

	c.Items = append(c.Items[:i], c.Items[i+1:]...)

	return c.Record(generalDomain.AggregateCart, generalDomain.CartItemRemoved, c.Payload())
}

// ChangeItemQuantity sets the quantity of a line; zero removes it.
func (c *Cart) ChangeItemQuantity(productID string, quantity int64) error {
	if quantity == 0 {
		return c.RemoveItem(productID)
	}

	if err := c.open("change item in"); err != nil {
		return err
	}

	if quantity < 0 {
		return ErrInvalidQuantity
	}

	i := c.find(productID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotInCart, productID)
	}

	c.Items[i].Quantity = quantity

	return c.Record(generalDomain.AggregateCart, generalDomain.CartItemQuantityChanged, c.Payload())
}

// CheckOut closes the cart for the saga that bought it. Repeating it for the
// same saga reports changed=false.
func (c *Cart) CheckOut(sagaID string) (bool, error) {
	if c.Status == StatusCheckedOut && c.SagaID == sagaID {
		return false, nil
	}

	if err := c.open("check out"); err != nil {
		return false, err
	}

	if len(c.Items) == 0 {
		return false, ErrEmptyCart
	}

	c.Status = StatusCheckedOut
	c.SagaID = sagaID

	return true, c.Record(generalDomain.AggregateCart, generalDomain.CartCheckedOut, c.Payload())
}

func (c *Cart) Payload() generalDomain.CartPayload {
	items := make([]generalDomain.CartItem, len(c.Items))
	copy(items, c.Items)

	return generalDomain.CartPayload{
		CartID:     c.ID(),
		ConsumerID: c.ConsumerID,
		Items:      items,
		Status:     string(c.Status),
		SagaID:     c.SagaID,
	}
}

func (c *Cart) find(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}

	return -1
}

func (c *Cart) open(action string) error {
	if c.Status != StatusOpen {
		return fmt.Errorf("%w: cannot %s cart %s in status %s", aggregate.ErrInvalidStateTransition, action, c.ID(), c.Status)
	}

	return nil
}

func IsBusinessError(err error) bool {
	return errors.Is(err, aggregate.ErrInvalidArgument) || errors.Is(err, aggregate.ErrInvalidStateTransition)
}
