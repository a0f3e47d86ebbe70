package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"go.uber.org/zap"
)

func NewHTTP(cfg config.Limiter, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
			}

			status := StatusFor(err)
			if status == fiber.StatusInternalServerError {
				logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
				return c.Status(status).JSON(fiber.Map{"error": "internal error"})
			}

			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(otelfiber.Middleware())

	if cfg.RPC > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RPC,
			Expiration: cfg.TTL,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests. Try again later.",
				})
			},
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("alive")
	})

	return app
}

func StatusFor(err error) int {
	switch {
	case errors.Is(err, aggregate.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, aggregate.ErrConcurrencyConflict), errors.Is(err, aggregate.ErrDuplicateCommand):
		return fiber.StatusConflict
	case errors.Is(err, aggregate.ErrInvalidStateTransition):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, aggregate.ErrInvalidArgument):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// ServeHTTP blocks until ctx is done, then shuts the app down.
func ServeHTTP(ctx context.Context, app *fiber.App, addr string, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown failed", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		return nil
	case err := <-errCh:
		return err
	}
}
