package http

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/server"
	"github.com/sakashimaa/fulfillment/pkg/utils"
	"github.com/sakashimaa/fulfillment/services/rating/internal/domain"
	"github.com/sakashimaa/fulfillment/services/rating/internal/service"
	"go.uber.org/zap"
)

type RatingHandler struct {
	service  service.RatingService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewRatingHandler(svc service.RatingService, logger *zap.Logger) *RatingHandler {
	return &RatingHandler{
		service:  svc,
		validate: utils.NewValidator(),
		logger:   logger,
	}
}

func (h *RatingHandler) Register(router fiber.Router) {
	ratings := router.Group("/ratings")
	ratings.Post("", h.Submit)
	ratings.Get("/:id", h.FindByID)
	ratings.Put("/:id", h.UpdateScore)
}

type SubmitRatingInput struct {
	CustomerID string `json:"customerId" validate:"required,max=64"`
	TargetID   string `json:"targetId" validate:"required,max=64"`
	Score      int    `json:"score" validate:"required,min=1,max=5"`
	Comment    string `json:"comment" validate:"max=500"`
}

type UpdateScoreInput struct {
	Score           int    `json:"score" validate:"required,min=1,max=5"`
	Comment         string `json:"comment" validate:"max=500"`
	ExpectedVersion *int64 `json:"expectedVersion" validate:"omitempty,gt=0"`
}

type RatingResponse struct {
	generalDomain.RatingPayload
	Version int64 `json:"version"`
}

func (h *RatingHandler) Submit(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	var input SubmitRatingInput
	if err := server.Bind(c, h.validate, &input); err != nil {
		return err
	}

	rating, err := h.service.Submit(ctx, input.CustomerID, input.TargetID, input.Score, input.Comment)
	if err != nil {
		return mapError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toResponse(rating))
}

func (h *RatingHandler) UpdateScore(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	var input UpdateScoreInput
	if err := server.Bind(c, h.validate, &input); err != nil {
		return err
	}

	rating, err := h.service.UpdateScore(ctx, c.Params("id"), input.Score, input.Comment, input.ExpectedVersion)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(toResponse(rating))
}

func (h *RatingHandler) FindByID(c *fiber.Ctx) error {
	rating, err := h.service.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapError(err)
	}

	return c.JSON(toResponse(rating))
}

func mapError(err error) error {
	status := server.StatusFor(err)
	if status == fiber.StatusInternalServerError {
		return err
	}

	return fiber.NewError(status, err.Error())
}

func toResponse(r *domain.Rating) RatingResponse {
	return RatingResponse{
		RatingPayload: r.Payload(),
		Version:       r.Version(),
	}
}
