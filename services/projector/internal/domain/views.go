package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/shopspring/decimal"
)

const (
	ViewCatalog   = "catalog"
	ViewCart      = "cart"
	ViewOrders    = "order_history"
	ViewPayments  = "payment"
	ViewRatings   = "rating"
	ViewCheckouts = "checkout"
)

var ErrRowNotFound = fmt.Errorf("%w: read model row", aggregate.ErrNotFound)

// Row is one denormalized read-model entry. Version is the last aggregate
// version folded into it; Owner is the secondary lookup key of the view.
type Row struct {
	View      string          `json:"view"`
	Key       string          `json:"key"`
	Owner     string          `json:"owner"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Decode leaves v untouched for a row that has no data yet.
func (r *Row) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode %s row %s: %w", r.View, r.Key, err)
	}

	return nil
}

func (r *Row) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s row %s: %w", r.View, r.Key, err)
	}

	r.Data = data

	return nil
}

type CatalogItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	// Available is what can still be reserved: on hand minus reserved.
	Available int64 `json:"available"`
	OnHand    int64 `json:"onHand"`
	Reserved  int64 `json:"reserved"`
}

func (c *CatalogItem) SetStock(stock generalDomain.Stock) {
	c.OnHand = stock.Available
	c.Reserved = stock.Reserved
	c.Available = stock.Available - stock.Reserved
}

type CartLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type CartView struct {
	CartID     string     `json:"cartId"`
	ConsumerID string     `json:"consumerId"`
	Status     string     `json:"status"`
	SagaID     string     `json:"sagaId,omitempty"`
	Items      []CartLine `json:"items"`
	// Total is priced at query time from the catalog view.
	Total decimal.Decimal `json:"total"`
}

type OrderHistoryEntry struct {
	OrderID       string                   `json:"orderId"`
	ConsumerID    string                   `json:"consumerId"`
	Items         []generalDomain.LineItem `json:"items"`
	Total         decimal.Decimal          `json:"total"`
	Status        string                   `json:"status"`
	Reason        string                   `json:"reason,omitempty"`
	PaymentID     string                   `json:"paymentId,omitempty"`
	PaymentStatus string                   `json:"paymentStatus,omitempty"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

type PaymentView struct {
	PaymentID string          `json:"paymentId"`
	OrderID   string          `json:"orderId"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
}

type RatingEntry struct {
	RatingID   string `json:"ratingId"`
	CustomerID string `json:"customerId"`
	TargetID   string `json:"targetId"`
	Score      int    `json:"score"`
	Comment    string `json:"comment,omitempty"`
}

type RatingSummary struct {
	TargetID     string          `json:"targetId"`
	Count        int             `json:"count"`
	Average      decimal.Decimal `json:"average"`
	Distribution map[int]int     `json:"distribution"`
}

type CheckoutView = generalDomain.SagaPayload
