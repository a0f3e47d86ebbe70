package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Stock is the inventory level after the event that carries it.
type Stock struct {
	Available int64 `json:"available"`
	Reserved  int64 `json:"reserved"`
}

type ReserveInventoryCommand struct {
	ReservationID string `json:"reservationId"`
	ProductID     string `json:"productId"`
	Quantity      int64  `json:"quantity"`
}

type ReleaseInventoryCommand struct {
	ReservationID string `json:"reservationId"`
	ProductID     string `json:"productId"`
}

type ConfirmInventoryCommand struct {
	ReservationID string `json:"reservationId"`
	ProductID     string `json:"productId"`
}

type ProductPayload struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Stock     Stock           `json:"stock"`
}

type ReservationPayload struct {
	ReservationID string          `json:"reservationId"`
	ProductID     string          `json:"productId"`
	Name          string          `json:"name,omitempty"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	Stock         Stock           `json:"stock"`
	Reason        string          `json:"reason,omitempty"`
}

type CreateOrderCommand struct {
	OrderID    string          `json:"orderId"`
	ConsumerID string          `json:"consumerId"`
	Items      []LineItem      `json:"items"`
	Total      decimal.Decimal `json:"total"`
}

type ConfirmOrderCommand struct {
	OrderID string `json:"orderId"`
}

type CancelOrderCommand struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason,omitempty"`
}

type OrderPayload struct {
	OrderID    string          `json:"orderId"`
	ConsumerID string          `json:"consumerId,omitempty"`
	Items      []LineItem      `json:"items,omitempty"`
	Total      decimal.Decimal `json:"total"`
	Status     string          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
}

type ProcessPaymentCommand struct {
	PaymentID  string          `json:"paymentId"`
	OrderID    string          `json:"orderId"`
	ConsumerID string          `json:"consumerId"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
}

type RefundPaymentCommand struct {
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
	Reason    string `json:"reason,omitempty"`
}

type PaymentPayload struct {
	PaymentID string          `json:"paymentId"`
	OrderID   string          `json:"orderId"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
}

type CheckOutCartCommand struct {
	CartID string `json:"cartId"`
	SagaID string `json:"sagaId"`
}

type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type CartPayload struct {
	CartID     string     `json:"cartId"`
	ConsumerID string     `json:"consumerId"`
	Items      []CartItem `json:"items"`
	Status     string     `json:"status"`
	SagaID     string     `json:"sagaId,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

type RatingPayload struct {
	RatingID      string `json:"ratingId"`
	CustomerID    string `json:"customerId"`
	TargetID      string `json:"targetId"`
	Score         int    `json:"score"`
	PreviousScore int    `json:"previousScore,omitempty"`
	Comment       string `json:"comment,omitempty"`
}

type SagaPayload struct {
	SagaID        string          `json:"sagaId"`
	ConsumerID    string          `json:"consumerId"`
	State         string          `json:"state"`
	Terminal      bool            `json:"terminal"`
	Stuck         bool            `json:"stuck"`
	OrderID       string          `json:"orderId,omitempty"`
	Total         decimal.Decimal `json:"total"`
	FailureReason string          `json:"failureReason,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
