package service

import (
	"context"
	"errors"
	"sort"

	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"github.com/sakashimaa/fulfillment/services/projector/internal/repository"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// QueryService answers reads from the projected views only. Results may lag
// the write side.
type QueryService interface {
	Catalog(ctx context.Context) ([]domain.CatalogItem, error)
	Product(ctx context.Context, productID string) (*domain.CatalogItem, error)
	Cart(ctx context.Context, cartID string) (*domain.CartView, error)
	OrderHistory(ctx context.Context, consumerID string) ([]domain.OrderHistoryEntry, error)
	Order(ctx context.Context, orderID string) (*domain.OrderHistoryEntry, error)
	Payment(ctx context.Context, paymentID string) (*domain.PaymentView, error)
	RatingSummary(ctx context.Context, targetID string) (*domain.RatingSummary, error)
	Checkout(ctx context.Context, sagaID string) (*domain.CheckoutView, error)
	Checkouts(ctx context.Context, consumerID string) ([]domain.CheckoutView, error)
}

type queryService struct {
	rows   repository.RowStore
	tracer trace.Tracer
}

func NewQueryService(rows repository.RowStore) QueryService {
	return &queryService{
		rows:   rows,
		tracer: otel.Tracer("service/query_service"),
	}
}

func (s *queryService) Catalog(ctx context.Context) ([]domain.CatalogItem, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Catalog")
	defer span.End()

	return list[domain.CatalogItem](s.rows.List(ctx, domain.ViewCatalog))
}

func (s *queryService) Product(ctx context.Context, productID string) (*domain.CatalogItem, error) {
	return get[domain.CatalogItem](ctx, s.rows, domain.ViewCatalog, productID)
}

func (s *queryService) Cart(ctx context.Context, cartID string) (*domain.CartView, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Cart")
	defer span.End()

	cart, err := get[domain.CartView](ctx, s.rows, domain.ViewCart, cartID)
	if err != nil {
		return nil, err
	}

	cart.Total = decimal.Zero
	for i := range cart.Items {
		line := &cart.Items[i]

		product, err := s.Product(ctx, line.ProductID)
		if errors.Is(err, domain.ErrRowNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		line.Name = product.Name
		line.UnitPrice = product.UnitPrice
		cart.Total = cart.Total.Add(product.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
	}

	return cart, nil
}

func (s *queryService) OrderHistory(ctx context.Context, consumerID string) ([]domain.OrderHistoryEntry, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.OrderHistory")
	defer span.End()

	orders, err := list[domain.OrderHistoryEntry](s.rows.ListByOwner(ctx, domain.ViewOrders, consumerID))
	if err != nil {
		return nil, err
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].UpdatedAt.After(orders[j].UpdatedAt)
	})

	return orders, nil
}

func (s *queryService) Order(ctx context.Context, orderID string) (*domain.OrderHistoryEntry, error) {
	return get[domain.OrderHistoryEntry](ctx, s.rows, domain.ViewOrders, orderID)
}

func (s *queryService) Payment(ctx context.Context, paymentID string) (*domain.PaymentView, error) {
	return get[domain.PaymentView](ctx, s.rows, domain.ViewPayments, paymentID)
}

func (s *queryService) RatingSummary(ctx context.Context, targetID string) (*domain.RatingSummary, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.RatingSummary")
	defer span.End()

	ratings, err := list[domain.RatingEntry](s.rows.ListByOwner(ctx, domain.ViewRatings, targetID))
	if err != nil {
		return nil, err
	}

	summary := &domain.RatingSummary{
		TargetID:     targetID,
		Count:        len(ratings),
		Average:      decimal.Zero,
		Distribution: make(map[int]int),
	}
	if len(ratings) == 0 {
		return summary, nil
	}

	var sum int64
	for _, r := range ratings {
		sum += int64(r.Score)
		summary.Distribution[r.Score]++
	}
	summary.Average = decimal.NewFromInt(sum).DivRound(decimal.NewFromInt(int64(len(ratings))), 2)

	return summary, nil
}

func (s *queryService) Checkout(ctx context.Context, sagaID string) (*domain.CheckoutView, error) {
	return get[domain.CheckoutView](ctx, s.rows, domain.ViewCheckouts, sagaID)
}

func (s *queryService) Checkouts(ctx context.Context, consumerID string) ([]domain.CheckoutView, error) {
	return list[domain.CheckoutView](s.rows.ListByOwner(ctx, domain.ViewCheckouts, consumerID))
}

func get[T any](ctx context.Context, rows repository.RowStore, view, key string) (*T, error) {
	row, err := rows.Get(ctx, view, key)
	if err != nil {
		return nil, err
	}

	var out T
	if err := row.Decode(&out); err != nil {
		return nil, err
	}

	return &out, nil
}

func list[T any](rows []domain.Row, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	for i := range rows {
		var v T
		if err := rows[i].Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	return out, nil
}
