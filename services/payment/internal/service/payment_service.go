package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/payment/internal/domain"
	"github.com/sakashimaa/fulfillment/services/payment/internal/gateway"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PaymentService interface {
	FindByID(ctx context.Context, id string) (*domain.Payment, error)
	ProcessPayment(ctx context.Context, env messaging.Envelope, cmd generalDomain.ProcessPaymentCommand) error
	RefundPayment(ctx context.Context, env messaging.Envelope, cmd generalDomain.RefundPaymentCommand) error
}

type paymentService struct {
	executor *aggregate.Executor[*domain.Payment]
	gateway  gateway.Gateway
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewPaymentService(
	repo *aggregate.Repository[*domain.Payment],
	store aggregate.Store,
	gw gateway.Gateway,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		executor: aggregate.NewExecutor(repo, store, generalDomain.PaymentEvents, logger),
		gateway:  gw,
		logger:   logger,
		tracer:   otel.Tracer("service/payment_service"),
	}
}

func (s *paymentService) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	return s.executor.Repository().Load(ctx, id)
}

// ProcessPayment records the payment and its gateway outcome in one commit.
// A gateway outage commits nothing so the command is redelivered; the
// gateway charge is idempotent per payment id.
func (s *paymentService) ProcessPayment(ctx context.Context, env messaging.Envelope, cmd generalDomain.ProcessPaymentCommand) error {
	ctx, span := s.tracer.Start(ctx, "PaymentService.ProcessPayment")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", cmd.PaymentID), attribute.String("order_id", cmd.OrderID))

	mylogger.Info(
		ctx,
		s.logger,
		"Processing payment",
		zap.String("payment_id", cmd.PaymentID),
		zap.String("order_id", cmd.OrderID),
		zap.String("amount", cmd.Amount.String()),
	)

	payment, err := s.executor.Execute(ctx, command(cmd.PaymentID, env), func(p *domain.Payment, exists bool) ([]messaging.Message, error) {
		if exists {
			mylogger.Warn(ctx, s.logger, "Payment already exists for this order", zap.String("payment_id", cmd.PaymentID))
			return reply(p.Outcome(), p)
		}

		if err := p.Create(cmd.OrderID, cmd.ConsumerID, cmd.Amount, cmd.Method); err != nil {
			if domain.IsBusinessError(err) {
				return nil, p.Void(cmd.OrderID, err.Error())
			}

			return nil, err
		}

		txID, err := s.gateway.Charge(ctx, p.ID(), p.Amount, p.Method)
		switch {
		case errors.Is(err, gateway.ErrDeclined):
			return nil, p.Fail(err.Error())
		case err != nil:
			return nil, fmt.Errorf("charge payment %s: %w", p.ID(), err)
		default:
			return nil, p.Complete(txID)
		}
	})
	if err == nil {
		mylogger.Info(ctx, s.logger, "ProcessPayment finished", zap.String("payment_id", cmd.PaymentID), zap.String("status", string(payment.Status)))
	} else {
		span.RecordError(err)
	}

	return s.settle(ctx, env, err)
}

// RefundPayment settles a payment for compensation: a completed payment is
// refunded, an unknown one is voided, anything else is acknowledged as is.
func (s *paymentService) RefundPayment(ctx context.Context, env messaging.Envelope, cmd generalDomain.RefundPaymentCommand) error {
	ctx, span := s.tracer.Start(ctx, "PaymentService.RefundPayment")
	defer span.End()

	_, err := s.executor.Execute(ctx, command(cmd.PaymentID, env), func(p *domain.Payment, exists bool) ([]messaging.Message, error) {
		switch {
		case !exists:
			return nil, p.Void(cmd.OrderID, "voided: "+cmd.Reason)
		case p.Status == domain.StatusPending:
			return nil, p.Fail("voided: " + cmd.Reason)
		case p.Status == domain.StatusCompleted:
			if err := s.gateway.Refund(ctx, p.TransactionID); err != nil {
				return nil, fmt.Errorf("refund payment %s: %w", p.ID(), err)
			}

			return nil, p.Refund(cmd.Reason)
		default:
			return reply(p.Outcome(), p)
		}
	})

	return s.settle(ctx, env, err)
}

func (s *paymentService) settle(ctx context.Context, env messaging.Envelope, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, aggregate.ErrDuplicateCommand):
		mylogger.Debug(ctx, s.logger, "Duplicate command ignored", zap.String("key", env.DedupKey()))
		return nil
	case domain.IsBusinessError(err):
		mylogger.Warn(ctx, s.logger, "Payment command refused", zap.String("type", env.Type), zap.Error(err))
		return nil
	default:
		mylogger.Warn(ctx, s.logger, "Payment command failed", zap.String("type", env.Type), zap.Error(err))
		return err
	}
}

func command(paymentID string, env messaging.Envelope) aggregate.Command {
	return aggregate.Command{
		AggregateID:    paymentID,
		Trigger:        env,
		IdempotencyKey: env.DedupKey(),
	}
}

func reply(messageType string, p *domain.Payment) ([]messaging.Message, error) {
	msg, err := generalDomain.NewReply(generalDomain.PaymentEvents, messageType, generalDomain.AggregatePayment, p.ID(), p.Payload())
	if err != nil {
		return nil, err
	}

	return []messaging.Message{msg}, nil
}
