package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/services/rating/internal/repository"
	"github.com/sakashimaa/fulfillment/services/rating/internal/service"
	"github.com/sakashimaa/fulfillment/services/rating/internal/transport/http"
	"go.uber.org/zap"
)

// App serves ratings over HTTP only; rating events reach the read side
// through the outbox.
type App struct {
	Service service.RatingService
	handler *http.RatingHandler
}

func New(store aggregate.Store, logger *zap.Logger) *App {
	svc := service.NewRatingService(repository.NewRatingRepository(store), store, logger)

	return &App{
		Service: svc,
		handler: http.NewRatingHandler(svc, logger),
	}
}

func (a *App) Routes(router fiber.Router) {
	a.handler.Register(router)
}
