package app

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/order/internal/repository"
	"github.com/sakashimaa/fulfillment/services/order/internal/service"
	"github.com/sakashimaa/fulfillment/services/order/internal/transport/channel"
	"github.com/sakashimaa/fulfillment/services/order/internal/transport/http"
	"go.uber.org/zap"
)

type App struct {
	Service  service.OrderService
	consumer *channel.Consumer
	handler  *http.OrderHandler
}

func New(store aggregate.Store, subscriber messaging.Subscriber, logger *zap.Logger) *App {
	svc := service.NewOrderService(repository.NewOrderRepository(store), store, logger)

	return &App{
		Service:  svc,
		consumer: channel.NewConsumer(svc, subscriber, logger),
		handler:  http.NewOrderHandler(svc, logger),
	}
}

func (a *App) Routes(router fiber.Router) {
	a.handler.Register(router)
}

func (a *App) Consume(ctx context.Context) error {
	return a.consumer.Start(ctx)
}
