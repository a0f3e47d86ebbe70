package email

import (
	"context"
	"fmt"
	"net/smtp"
	"sync"

	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/notification/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

type smtpSender struct {
	cfg    config.Notify
	logger *zap.Logger
	tracer trace.Tracer
}

func NewSMTPSender(cfg config.Notify, logger *zap.Logger) Sender {
	return &smtpSender{
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("notification/infrastructure/email"),
	}
}

func (s *smtpSender) Send(ctx context.Context, n domain.Notification) error {
	ctx, span := s.tracer.Start(ctx, "smtp.Send")
	defer span.End()

	to := fmt.Sprintf("%s@%s", n.ConsumerID, s.cfg.Domain)

	span.SetAttributes(
		attribute.String("to.email", to),
		attribute.String("saga_id", n.SagaID),
		attribute.String("kind", string(n.Kind)),
	)

	subject := fmt.Sprintf("Subject: %s\n", n.Subject())
	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"

	msg := []byte(subject + mime + body(n))
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)

	mylogger.Info(ctx, s.logger, "Sending checkout email", zap.String("to", to), zap.String("saga_id", n.SagaID))

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			s.logger,
			"Error sending checkout email",
			zap.String("to", to),
			zap.String("saga_id", n.SagaID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to send mail: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Checkout email sent", zap.String("to", to))
	return nil
}

func body(n domain.Notification) string {
	if n.Kind == domain.CheckoutCompleted {
		return fmt.Sprintf(`
		<h1>Thank you for your order</h1>
		<p>Order %s is confirmed. You were charged %s.</p>
	`, n.OrderID, n.Total.StringFixed(2))
	}

	return fmt.Sprintf(`
		<h1>Your checkout did not go through</h1>
		<p>%s</p>
		<p>Nothing was charged and your items were released.</p>
	`, n.Reason)
}

// Recorder keeps notifications in memory instead of mailing them. The sandbox
// and tests read them back with Sent.
type Recorder struct {
	mu     sync.Mutex
	sent   []domain.Notification
	logger *zap.Logger
}

func NewRecorder(logger *zap.Logger) *Recorder {
	return &Recorder{logger: logger}
}

func (r *Recorder) Send(ctx context.Context, n domain.Notification) error {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()

	mylogger.Info(
		ctx,
		r.logger,
		"Checkout notification recorded",
		zap.String("consumer_id", n.ConsumerID),
		zap.String("saga_id", n.SagaID),
		zap.String("kind", string(n.Kind)),
	)

	return nil
}

func (r *Recorder) Sent() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Notification, len(r.sent))
	copy(out, r.sent)

	return out
}
