package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
)

// cachedQueryService serves hot point reads from redis. Entries expire after
// cacheTTL, which bounds how much staler than the view a read can be.
type cachedQueryService struct {
	next        QueryService
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewCachedQueryService(next QueryService, redisClient *redis.Client, ttl time.Duration) QueryService {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	return &cachedQueryService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    ttl,
	}
}

func (s *cachedQueryService) Catalog(ctx context.Context) ([]domain.CatalogItem, error) {
	return s.next.Catalog(ctx)
}

func (s *cachedQueryService) Product(ctx context.Context, productID string) (*domain.CatalogItem, error) {
	return cached(ctx, s, fmt.Sprintf("catalog:%s", productID), func() (*domain.CatalogItem, error) {
		return s.next.Product(ctx, productID)
	})
}

func (s *cachedQueryService) Cart(ctx context.Context, cartID string) (*domain.CartView, error) {
	return s.next.Cart(ctx, cartID)
}

func (s *cachedQueryService) OrderHistory(ctx context.Context, consumerID string) ([]domain.OrderHistoryEntry, error) {
	return s.next.OrderHistory(ctx, consumerID)
}

func (s *cachedQueryService) Order(ctx context.Context, orderID string) (*domain.OrderHistoryEntry, error) {
	return s.next.Order(ctx, orderID)
}

func (s *cachedQueryService) Payment(ctx context.Context, paymentID string) (*domain.PaymentView, error) {
	return s.next.Payment(ctx, paymentID)
}

func (s *cachedQueryService) RatingSummary(ctx context.Context, targetID string) (*domain.RatingSummary, error) {
	return cached(ctx, s, fmt.Sprintf("rating_summary:%s", targetID), func() (*domain.RatingSummary, error) {
		return s.next.RatingSummary(ctx, targetID)
	})
}

func (s *cachedQueryService) Checkout(ctx context.Context, sagaID string) (*domain.CheckoutView, error) {
	return s.next.Checkout(ctx, sagaID)
}

func (s *cachedQueryService) Checkouts(ctx context.Context, consumerID string) ([]domain.CheckoutView, error) {
	return s.next.Checkouts(ctx, consumerID)
}

func cached[T any](ctx context.Context, s *cachedQueryService, key string, load func() (*T, error)) (*T, error) {
	val, err := s.redisClient.Get(ctx, key).Result()
	if err == nil {
		var out T
		if err := json.Unmarshal([]byte(val), &out); err == nil {
			return &out, nil
		}
	}

	out, err := load()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(out); err == nil {
		s.redisClient.Set(ctx, key, data, s.cacheTTL)
	}

	return out, nil
}
