package app

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/inventory/internal/repository"
	"github.com/sakashimaa/fulfillment/services/inventory/internal/service"
	"github.com/sakashimaa/fulfillment/services/inventory/internal/transport/channel"
	"github.com/sakashimaa/fulfillment/services/inventory/internal/transport/http"
	"go.uber.org/zap"
)

// App wires the inventory participant: the Product aggregate behind its
// command consumer and admin HTTP routes.
type App struct {
	Service  service.InventoryService
	consumer *channel.Consumer
	handler  *http.ProductHandler
}

func New(store aggregate.Store, subscriber messaging.Subscriber, logger *zap.Logger) *App {
	svc := service.NewInventoryService(repository.NewProductRepository(store), store, logger)

	return &App{
		Service:  svc,
		consumer: channel.NewConsumer(svc, subscriber, logger),
		handler:  http.NewProductHandler(svc, logger),
	}
}

func (a *App) Routes(router fiber.Router) {
	a.handler.Register(router)
}

func (a *App) Consume(ctx context.Context) error {
	return a.consumer.Start(ctx)
}
