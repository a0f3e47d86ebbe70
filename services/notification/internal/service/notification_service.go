package service

import (
	"context"
	"errors"
	"fmt"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/notification/internal/domain"
	"github.com/sakashimaa/fulfillment/services/notification/internal/infrastructure/email"
	"github.com/sakashimaa/fulfillment/services/notification/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type NotificationService struct {
	sender email.Sender
	sent   repository.SentLog
	logger *zap.Logger
	tracer trace.Tracer
}

func NewNotificationService(sender email.Sender, sent repository.SentLog, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		sender: sender,
		sent:   sent,
		logger: logger,
		tracer: otel.Tracer("notification-service"),
	}
}

// HandleCheckout notifies the consumer once their checkout finished. Every
// later update of the same checkout is a duplicate.
func (s *NotificationService) HandleCheckout(ctx context.Context, env messaging.Envelope) error {
	if env.Type != generalDomain.SagaUpdated {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleCheckout")
	defer span.End()

	span.SetAttributes(attribute.String("saga_id", env.AggregateID), attribute.Int64("version", env.Version))

	var payload generalDomain.SagaPayload
	if err := env.Decode(&payload); err != nil {
		mylogger.Error(ctx, s.logger, "Error parsing checkout event", zap.String("message_id", env.ID), zap.Error(err))
		return nil
	}

	n, ok := domain.FromCheckout(payload)
	if !ok {
		return nil
	}

	claimed, err := s.sent.Claim(ctx, n.Key())
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !claimed {
		mylogger.Debug(ctx, s.logger, "Checkout notification already sent", zap.String("saga_id", n.SagaID))
		return nil
	}

	if err := s.sender.Send(ctx, n); err != nil {
		span.RecordError(err)
		if releaseErr := s.sent.Release(ctx, n.Key()); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}

		return fmt.Errorf("notify %s: %w", n.ConsumerID, err)
	}

	return nil
}
