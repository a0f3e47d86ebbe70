package app

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/payment/internal/gateway"
	"github.com/sakashimaa/fulfillment/services/payment/internal/repository"
	"github.com/sakashimaa/fulfillment/services/payment/internal/service"
	"github.com/sakashimaa/fulfillment/services/payment/internal/transport/channel"
	"github.com/sakashimaa/fulfillment/services/payment/internal/transport/http"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DeclinedMethod is declined by the simulated gateway.
const DeclinedMethod = gateway.DeclinedMethod

type App struct {
	Service  service.PaymentService
	Gateway  *gateway.Simulated
	consumer *channel.Consumer
	handler  *http.PaymentHandler
}

// New wires the payment participant to a simulated gateway that declines
// charges above limit. A zero limit accepts any amount.
func New(store aggregate.Store, subscriber messaging.Subscriber, limit decimal.Decimal, logger *zap.Logger) *App {
	sim := gateway.NewSimulated(limit)
	svc := service.NewPaymentService(
		repository.NewPaymentRepository(store),
		store,
		gateway.WithBreaker(sim, logger),
		logger,
	)

	return &App{
		Service:  svc,
		Gateway:  sim,
		consumer: channel.NewConsumer(svc, subscriber, logger),
		handler:  http.NewPaymentHandler(svc, logger),
	}
}

func (a *App) Routes(router fiber.Router) {
	a.handler.Register(router)
}

func (a *App) Consume(ctx context.Context) error {
	return a.consumer.Start(ctx)
}
