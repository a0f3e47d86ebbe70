package server

import (
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/fulfillment/pkg/utils"
)

// Bind parses the request body into input and validates it. The returned
// error is a 400 fiber error ready to be returned from a handler.
func Bind(c *fiber.Ctx, validate *validator.Validate, input any) error {
	if err := c.BodyParser(input); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := validate.Struct(input); err != nil {
		fields := utils.FormatValidationError(err)

		msgs := make([]string, 0, len(fields))
		for _, msg := range fields {
			msgs = append(msgs, msg)
		}
		sort.Strings(msgs)

		return fiber.NewError(fiber.StatusBadRequest, strings.Join(msgs, "; "))
	}

	return nil
}
