package http

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/server"
	"github.com/sakashimaa/fulfillment/pkg/utils"
	"github.com/sakashimaa/fulfillment/services/orchestrator/internal/domain"
	"github.com/sakashimaa/fulfillment/services/orchestrator/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type CheckoutHandler struct {
	service  service.OrchestratorService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewCheckoutHandler(svc service.OrchestratorService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service:  svc,
		validate: utils.NewValidator(),
		logger:   logger,
	}
}

func (h *CheckoutHandler) Register(router fiber.Router) {
	checkout := router.Group("/checkout")
	checkout.Post("", h.Start)
	checkout.Get("/stuck", h.ListStuck)
	checkout.Get("/:id", h.Get)
	checkout.Post("/:id/abort", h.Abort)
	checkout.Post("/:id/retry", h.Retry)
}

type LineItemInput struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
}

type CheckoutInput struct {
	ConsumerID    string          `json:"consumerId" validate:"required,max=64"`
	CartID        string          `json:"cartId" validate:"omitempty,max=64"`
	PaymentMethod string          `json:"paymentMethod" validate:"required,max=32"`
	LineItems     []LineItemInput `json:"lineItems" validate:"required,min=1,dive"`
}

type AbortInput struct {
	Reason string `json:"reason" validate:"max=200"`
}

type CheckoutResponse struct {
	SagaID string `json:"sagaId"`
}

type ItemResponse struct {
	ProductID string          `json:"productId"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Status    string          `json:"status"`
}

type SagaResponse struct {
	SagaID        string          `json:"sagaId"`
	State         string          `json:"state"`
	Terminal      bool            `json:"terminal"`
	OrderID       string          `json:"orderId,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Stuck         bool            `json:"stuck"`
	Attempts      int             `json:"attempts"`
	FailureReason string          `json:"failureReason,omitempty"`
	Items         []ItemResponse  `json:"items"`
	Version       int64           `json:"version"`
}

func (h *CheckoutHandler) Start(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	var input CheckoutInput
	if err := server.Bind(c, h.validate, &input); err != nil {
		return err
	}

	items := make([]generalDomain.LineItem, 0, len(input.LineItems))
	for _, li := range input.LineItems {
		items = append(items, generalDomain.LineItem{ProductID: li.ProductID, Quantity: li.Quantity})
	}

	saga, err := h.service.Start(ctx, service.StartRequest{
		IdempotencyKey: c.Get(IdempotencyKeyHeader),
		ConsumerID:     input.ConsumerID,
		CartID:         input.CartID,
		PaymentMethod:  input.PaymentMethod,
		Items:          items,
	})
	if err != nil {
		return mapError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(CheckoutResponse{SagaID: saga.ID()})
}

func (h *CheckoutHandler) Get(c *fiber.Ctx) error {
	saga, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapError(err)
	}

	return c.JSON(toResponse(saga))
}

func (h *CheckoutHandler) Abort(c *fiber.Ctx) error {
	var input AbortInput
	if len(c.Body()) > 0 {
		if err := server.Bind(c, h.validate, &input); err != nil {
			return err
		}
	}

	saga, err := h.service.Abort(c.UserContext(), c.Params("id"), input.Reason)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(toResponse(saga))
}

func (h *CheckoutHandler) Retry(c *fiber.Ctx) error {
	saga, err := h.service.Retry(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapError(err)
	}

	return c.JSON(toResponse(saga))
}

func (h *CheckoutHandler) ListStuck(c *fiber.Ctx) error {
	sagas, err := h.service.ListStuck(c.UserContext())
	if err != nil {
		return mapError(err)
	}

	resp := make([]SagaResponse, 0, len(sagas))
	for _, sg := range sagas {
		resp = append(resp, toResponse(sg))
	}

	return c.JSON(resp)
}

func mapError(err error) error {
	status := server.StatusFor(err)
	if status == fiber.StatusInternalServerError {
		return err
	}

	return fiber.NewError(status, err.Error())
}

func toResponse(sg *domain.Saga) SagaResponse {
	payload := sg.Payload()

	items := make([]ItemResponse, 0, len(sg.Items))
	for _, it := range sg.Items {
		items = append(items, ItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Status:    string(it.Status),
		})
	}

	return SagaResponse{
		SagaID:        payload.SagaID,
		State:         payload.State,
		Terminal:      payload.Terminal,
		OrderID:       payload.OrderID,
		Total:         payload.Total,
		Stuck:         payload.Stuck,
		Attempts:      sg.Attempts,
		FailureReason: payload.FailureReason,
		Items:         items,
		Version:       sg.Version(),
	}
}
