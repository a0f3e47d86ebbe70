package app

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/cart/internal/repository"
	"github.com/sakashimaa/fulfillment/services/cart/internal/service"
	"github.com/sakashimaa/fulfillment/services/cart/internal/transport/channel"
	"github.com/sakashimaa/fulfillment/services/cart/internal/transport/http"
	"go.uber.org/zap"
)

type App struct {
	Service  service.CartService
	consumer *channel.Consumer
	handler  *http.CartHandler
}

func New(store aggregate.Store, subscriber messaging.Subscriber, logger *zap.Logger) *App {
	svc := service.NewCartService(repository.NewCartRepository(store), store, logger)

	return &App{
		Service:  svc,
		consumer: channel.NewConsumer(svc, subscriber, logger),
		handler:  http.NewCartHandler(svc, logger),
	}
}

func (a *App) Routes(router fiber.Router) {
	a.handler.Register(router)
}

func (a *App) Consume(ctx context.Context) error {
	return a.consumer.Start(ctx)
}
