package service

import (
	"context"
	"fmt"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/rating/internal/domain"
	"go.uber.org/zap"
)

type RatingService interface {
	Submit(ctx context.Context, customerID, targetID string, score int, comment string) (*domain.Rating, error)
	UpdateScore(ctx context.Context, id string, score int, comment string, expectedVersion *int64) (*domain.Rating, error)
	FindByID(ctx context.Context, id string) (*domain.Rating, error)
}

type ratingService struct {
	executor *aggregate.Executor[*domain.Rating]
	logger   *zap.Logger
}

func NewRatingService(repo *aggregate.Repository[*domain.Rating], store aggregate.Store, logger *zap.Logger) RatingService {
	return &ratingService{
		executor: aggregate.NewExecutor(repo, store, generalDomain.RatingEvents, logger),
		logger:   logger,
	}
}

func (s *ratingService) Submit(ctx context.Context, customerID, targetID string, score int, comment string) (*domain.Rating, error) {
	id := domain.RatingID(customerID, targetID)

	rating, err := s.executor.Execute(ctx, aggregate.Command{AggregateID: id}, func(r *domain.Rating, _ bool) ([]messaging.Message, error) {
		return nil, r.Submit(customerID, targetID, score, comment)
	})
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Rating refused", zap.String("target_id", targetID), zap.Error(err))
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Rating submitted", zap.String("rating_id", id), zap.Int("score", score))

	return rating, nil
}

func (s *ratingService) UpdateScore(
	ctx context.Context,
	id string,
	score int,
	comment string,
	expectedVersion *int64,
) (*domain.Rating, error) {
	cmd := aggregate.Command{AggregateID: id, ExpectedVersion: expectedVersion}

	return s.executor.Execute(ctx, cmd, func(r *domain.Rating, exists bool) ([]messaging.Message, error) {
		if !exists {
			return nil, fmt.Errorf("%w: rating %s", aggregate.ErrNotFound, id)
		}

		return nil, r.UpdateScore(score, comment)
	})
}

func (s *ratingService) FindByID(ctx context.Context, id string) (*domain.Rating, error) {
	return s.executor.Repository().Load(ctx, id)
}
