package http

import (
	"github.com/gofiber/fiber/v2"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/server"
	"github.com/sakashimaa/fulfillment/services/payment/internal/service"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	service service.PaymentService
	logger  *zap.Logger
}

func NewPaymentHandler(svc service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: svc,
		logger:  logger,
	}
}

func (h *PaymentHandler) Register(router fiber.Router) {
	router.Get("/payments/:id", h.FindByID)
}

type PaymentResponse struct {
	generalDomain.PaymentPayload
	Version int64 `json:"version"`
}

func (h *PaymentHandler) FindByID(c *fiber.Ctx) error {
	payment, err := h.service.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		if status := server.StatusFor(err); status != fiber.StatusInternalServerError {
			return fiber.NewError(status, err.Error())
		}

		return err
	}

	return c.JSON(PaymentResponse{
		PaymentPayload: payment.Payload(),
		Version:        payment.Version(),
	})
}
