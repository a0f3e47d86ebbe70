package http

import (
	"github.com/gofiber/fiber/v2"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/server"
	"github.com/sakashimaa/fulfillment/services/order/internal/domain"
	"github.com/sakashimaa/fulfillment/services/order/internal/service"
	"go.uber.org/zap"
)

type OrderHandler struct {
	service service.OrderService
	logger  *zap.Logger
}

func NewOrderHandler(svc service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

func (h *OrderHandler) Register(router fiber.Router) {
	router.Get("/orders/:id", h.FindByID)
}

type OrderResponse struct {
	generalDomain.OrderPayload
	Version int64 `json:"version"`
}

func (h *OrderHandler) FindByID(c *fiber.Ctx) error {
	order, err := h.service.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		if status := server.StatusFor(err); status != fiber.StatusInternalServerError {
			return fiber.NewError(status, err.Error())
		}

		return err
	}

	return c.JSON(toResponse(order))
}

func toResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		OrderPayload: o.Payload(),
		Version:      o.Version(),
	}
}
