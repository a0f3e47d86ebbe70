package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment/pkg/server"
	"github.com/sakashimaa/fulfillment/services/inventory/internal/domain"
)

func mapError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		status := server.StatusFor(err)
		if status == fiber.StatusInternalServerError {
			return err
		}

		return fiber.NewError(status, err.Error())
	}
}
