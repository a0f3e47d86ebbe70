package http

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/server"
	"github.com/sakashimaa/fulfillment/pkg/utils"
	"github.com/sakashimaa/fulfillment/services/cart/internal/domain"
	"github.com/sakashimaa/fulfillment/services/cart/internal/service"
	"go.uber.org/zap"
)

type CartHandler struct {
	service  service.CartService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewCartHandler(svc service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		service:  svc,
		validate: utils.NewValidator(),
		logger:   logger,
	}
}

func (h *CartHandler) Register(router fiber.Router) {
	carts := router.Group("/carts")
	carts.Post("", h.Create)
	carts.Get("/:id", h.FindByID)
	carts.Post("/:id/items", h.AddItem)
	carts.Put("/:id/items/:productId", h.ChangeItemQuantity)
	carts.Delete("/:id/items/:productId", h.RemoveItem)
}

type CreateCartInput struct {
	ID         string `json:"id" validate:"omitempty,max=64"`
	ConsumerID string `json:"consumerId" validate:"required,max=64"`
}

type AddItemInput struct {
	ProductID       string `json:"productId" validate:"required,max=64"`
	Quantity        int64  `json:"quantity" validate:"required,gt=0"`
	ExpectedVersion *int64 `json:"expectedVersion" validate:"omitempty,gt=0"`
}

type ChangeQuantityInput struct {
	Quantity        int64  `json:"quantity" validate:"gte=0"`
	ExpectedVersion *int64 `json:"expectedVersion" validate:"omitempty,gt=0"`
}

type CartResponse struct {
	generalDomain.CartPayload
	Version int64 `json:"version"`
}

func (h *CartHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	var input CreateCartInput
	if err := server.Bind(c, h.validate, &input); err != nil {
		return err
	}

	cart, err := h.service.Create(ctx, input.ID, input.ConsumerID)
	if err != nil {
		return mapError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toResponse(cart))
}

func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	var input AddItemInput
	if err := server.Bind(c, h.validate, &input); err != nil {
		return err
	}

	cart, err := h.service.AddItem(ctx, c.Params("id"), input.ProductID, input.Quantity, input.ExpectedVersion)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "Add item failed", zap.String("cart_id", c.Params("id")), zap.Error(err))
		return mapError(err)
	}

	return c.JSON(toResponse(cart))
}

func (h *CartHandler) ChangeItemQuantity(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	var input ChangeQuantityInput
	if err := server.Bind(c, h.validate, &input); err != nil {
		return err
	}

	cart, err := h.service.ChangeItemQuantity(ctx, c.Params("id"), c.Params("productId"), input.Quantity, input.ExpectedVersion)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(toResponse(cart))
}

func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	cart, err := h.service.RemoveItem(c.UserContext(), c.Params("id"), c.Params("productId"), nil)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(toResponse(cart))
}

func (h *CartHandler) FindByID(c *fiber.Ctx) error {
	cart, err := h.service.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapError(err)
	}

	return c.JSON(toResponse(cart))
}

func mapError(err error) error {
	status := server.StatusFor(err)
	if status == fiber.StatusInternalServerError {
		return err
	}

	return fiber.NewError(status, err.Error())
}

func toResponse(c *domain.Cart) CartResponse {
	return CartResponse{
		CartPayload: c.Payload(),
		Version:     c.Version(),
	}
}
