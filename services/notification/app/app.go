package app

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/fulfillment/pkg/config"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/notification/internal/domain"
	"github.com/sakashimaa/fulfillment/services/notification/internal/infrastructure/email"
	"github.com/sakashimaa/fulfillment/services/notification/internal/repository"
	"github.com/sakashimaa/fulfillment/services/notification/internal/service"
	"github.com/sakashimaa/fulfillment/services/notification/internal/transport/channel"
	"go.uber.org/zap"
)

type (
	Sender       = email.Sender
	Recorder     = email.Recorder
	SentLog      = repository.SentLog
	Notification = domain.Notification
)

const (
	CheckoutCompleted = domain.CheckoutCompleted
	CheckoutFailed    = domain.CheckoutFailed
)

// App mails consumers when their checkout completes or is compensated.
type App struct {
	Service  *service.NotificationService
	consumer *channel.Consumer
}

func SMTPSender(cfg config.Notify, logger *zap.Logger) Sender {
	return email.NewSMTPSender(cfg, logger)
}

func NewRecorder(logger *zap.Logger) *Recorder {
	return email.NewRecorder(logger)
}

// NewSentLog keeps the sent log in redis when a client is given, in memory
// otherwise.
func NewSentLog(redisClient *redis.Client, cfg config.Notify) SentLog {
	if redisClient == nil {
		return repository.NewMemorySentLog()
	}

	return repository.NewRedisSentLog(redisClient, cfg.SentTTL)
}

func New(subscriber messaging.Subscriber, sender Sender, sent SentLog, logger *zap.Logger) *App {
	svc := service.NewNotificationService(sender, sent, logger)

	return &App{
		Service:  svc,
		consumer: channel.NewConsumer(svc, subscriber, logger),
	}
}

func (a *App) Consume(ctx context.Context) error {
	return a.consumer.Start(ctx)
}
