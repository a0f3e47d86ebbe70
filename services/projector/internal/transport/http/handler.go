package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/pkg/server"
	"github.com/sakashimaa/fulfillment/services/projector/internal/service"
	"go.uber.org/zap"
)

type Rebuilder interface {
	RebuildAll(ctx context.Context, aggregateType string) (int, error)
}

type ViewHandler struct {
	queries   service.QueryService
	rebuilder Rebuilder
	logger    *zap.Logger
}

func NewViewHandler(queries service.QueryService, rebuilder Rebuilder, logger *zap.Logger) *ViewHandler {
	return &ViewHandler{
		queries:   queries,
		rebuilder: rebuilder,
		logger:    logger,
	}
}

func (h *ViewHandler) Register(router fiber.Router) {
	views := router.Group("/views")
	views.Get("/catalog", h.Catalog)
	views.Get("/catalog/:id", h.Product)
	views.Get("/carts/:id", h.Cart)
	views.Get("/consumers/:id/orders", h.OrderHistory)
	views.Get("/consumers/:id/checkouts", h.Checkouts)
	views.Get("/orders/:id", h.Order)
	views.Get("/payments/:id", h.Payment)
	views.Get("/ratings/:targetId", h.RatingSummary)
	views.Get("/checkouts/:id", h.Checkout)
	views.Post("/rebuild/:aggregateType", h.Rebuild)
}

func (h *ViewHandler) Catalog(c *fiber.Ctx) error {
	items, err := h.queries.Catalog(c.UserContext())
	if err != nil {
		return mapError(err)
	}

	return c.JSON(fiber.Map{"items": items})
}

func (h *ViewHandler) Product(c *fiber.Ctx) error {
	return respond(c, func(ctx context.Context) (any, error) {
		return h.queries.Product(ctx, c.Params("id"))
	})
}

func (h *ViewHandler) Cart(c *fiber.Ctx) error {
	return respond(c, func(ctx context.Context) (any, error) {
		return h.queries.Cart(ctx, c.Params("id"))
	})
}

func (h *ViewHandler) OrderHistory(c *fiber.Ctx) error {
	orders, err := h.queries.OrderHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapError(err)
	}

	return c.JSON(fiber.Map{"orders": orders})
}

func (h *ViewHandler) Checkouts(c *fiber.Ctx) error {
	checkouts, err := h.queries.Checkouts(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapError(err)
	}

	return c.JSON(fiber.Map{"checkouts": checkouts})
}

func (h *ViewHandler) Order(c *fiber.Ctx) error {
	return respond(c, func(ctx context.Context) (any, error) {
		return h.queries.Order(ctx, c.Params("id"))
	})
}

func (h *ViewHandler) Payment(c *fiber.Ctx) error {
	return respond(c, func(ctx context.Context) (any, error) {
		return h.queries.Payment(ctx, c.Params("id"))
	})
}

func (h *ViewHandler) RatingSummary(c *fiber.Ctx) error {
	return respond(c, func(ctx context.Context) (any, error) {
		return h.queries.RatingSummary(ctx, c.Params("targetId"))
	})
}

func (h *ViewHandler) Checkout(c *fiber.Ctx) error {
	return respond(c, func(ctx context.Context) (any, error) {
		return h.queries.Checkout(ctx, c.Params("id"))
	})
}

func (h *ViewHandler) Rebuild(c *fiber.Ctx) error {
	ctx := c.UserContext()
	aggregateType := c.Params("aggregateType")

	n, err := h.rebuilder.RebuildAll(ctx, aggregateType)
	if err != nil {
		mylogger.Error(ctx, h.logger, "Rebuild failed", zap.String("aggregate_type", aggregateType), zap.Error(err))
		return mapError(err)
	}

	return c.JSON(fiber.Map{"aggregateType": aggregateType, "rebuilt": n})
}

func respond(c *fiber.Ctx, query func(ctx context.Context) (any, error)) error {
	v, err := query(c.UserContext())
	if err != nil {
		return mapError(err)
	}

	return c.JSON(v)
}

func mapError(err error) error {
	status := server.StatusFor(err)
	if status == fiber.StatusInternalServerError {
		return err
	}

	return fiber.NewError(status, err.Error())
}
