package http

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/server"
	"github.com/sakashimaa/fulfillment/pkg/utils"
	"github.com/sakashimaa/fulfillment/services/inventory/internal/domain"
	"github.com/sakashimaa/fulfillment/services/inventory/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductHandler struct {
	service  service.InventoryService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewProductHandler(svc service.InventoryService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		service:  svc,
		validate: utils.NewValidator(),
		logger:   logger,
	}
}

func (h *ProductHandler) Register(router fiber.Router) {
	products := router.Group("/products")
	products.Post("", h.Create)
	products.Get("", h.List)
	products.Get("/:id", h.FindByID)
	products.Post("/:id/restock", h.Restock)
	products.Put("/:id/price", h.ChangePrice)
}

type CreateProductInput struct {
	ID        string          `json:"id" validate:"omitempty,max=64"`
	Name      string          `json:"name" validate:"required,min=3,max=100"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Available int64           `json:"available" validate:"gte=0"`
}

type RestockInput struct {
	Delta           int64  `json:"delta" validate:"required"`
	ExpectedVersion *int64 `json:"expectedVersion" validate:"omitempty,gt=0"`
}

type ChangePriceInput struct {
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	ExpectedVersion *int64          `json:"expectedVersion" validate:"omitempty,gt=0"`
}

type ProductResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Available int64           `json:"available"`
	Reserved  int64           `json:"reserved"`
	Version   int64           `json:"version"`
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	var input CreateProductInput
	if err := server.Bind(c, h.validate, &input); err != nil {
		return err
	}

	product, err := h.service.CreateProduct(ctx, input.ID, input.Name, input.UnitPrice, input.Available)
	if err != nil {
		return mapError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toResponse(product))
}

func (h *ProductHandler) Restock(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	var input RestockInput
	if err := server.Bind(c, h.validate, &input); err != nil {
		return err
	}

	product, err := h.service.Restock(ctx, c.Params("id"), input.Delta, input.ExpectedVersion)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "Restock failed", zap.String("product_id", c.Params("id")), zap.Error(err))
		return mapError(err)
	}

	return c.JSON(toResponse(product))
}

func (h *ProductHandler) ChangePrice(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	var input ChangePriceInput
	if err := server.Bind(c, h.validate, &input); err != nil {
		return err
	}

	product, err := h.service.ChangePrice(ctx, c.Params("id"), input.UnitPrice, input.ExpectedVersion)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(toResponse(product))
}

func (h *ProductHandler) FindByID(c *fiber.Ctx) error {
	product, err := h.service.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapError(err)
	}

	return c.JSON(toResponse(product))
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	products, err := h.service.List(c.UserContext())
	if err != nil {
		return mapError(err)
	}

	resp := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toResponse(p))
	}

	return c.JSON(resp)
}

func toResponse(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:        p.ID(),
		Name:      p.Name,
		UnitPrice: p.UnitPrice,
		Available: p.Available,
		Reserved:  p.Reserved,
		Version:   p.Version(),
	}
}
