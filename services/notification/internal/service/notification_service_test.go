package service

import (
	"context"
	"errors"
	"testing"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/notification/internal/domain"
	"github.com/sakashimaa/fulfillment/services/notification/internal/infrastructure/email"
	"github.com/sakashimaa/fulfillment/services/notification/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type flakySender struct {
	failures int
	sent     []domain.Notification
}

func (f *flakySender) Send(_ context.Context, n domain.Notification) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("smtp unavailable")
	}

	f.sent = append(f.sent, n)
	return nil
}

type NotificationServiceSuite struct {
	suite.Suite

	ctx      context.Context
	recorder *email.Recorder
	service  *NotificationService
}

func TestNotificationServiceSuite(t *testing.T) {
	suite.Run(t, new(NotificationServiceSuite))
}

func (s *NotificationServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.recorder = email.NewRecorder(zap.NewNop())
	s.service = NewNotificationService(s.recorder, repository.NewMemorySentLog(), zap.NewNop())
}

func (s *NotificationServiceSuite) checkout(version int64, payload generalDomain.SagaPayload) messaging.Envelope {
	env, err := messaging.NewEnvelope(generalDomain.SagaUpdated, payload.SagaID, payload)
	s.Require().NoError(err)

	env.AggregateType = generalDomain.AggregateSaga
	env.Version = version

	return env
}

func completed() generalDomain.SagaPayload {
	return generalDomain.SagaPayload{
		SagaID:     "saga-1",
		ConsumerID: "alice",
		State:      "COMPLETED",
		Terminal:   true,
		OrderID:    "order-1",
		Total:      decimal.NewFromInt(42),
	}
}

func (s *NotificationServiceSuite) TestCompletedCheckoutNotifiesOnce() {
	s.Require().NoError(s.service.HandleCheckout(s.ctx, s.checkout(7, completed())))
	s.Require().NoError(s.service.HandleCheckout(s.ctx, s.checkout(7, completed())))
	s.Require().NoError(s.service.HandleCheckout(s.ctx, s.checkout(8, completed())))

	sent := s.recorder.Sent()
	s.Require().Len(sent, 1)
	s.Equal(domain.CheckoutCompleted, sent[0].Kind)
	s.Equal("alice", sent[0].ConsumerID)
	s.Equal("order-1", sent[0].OrderID)
	s.True(decimal.NewFromInt(42).Equal(sent[0].Total))
}

func (s *NotificationServiceSuite) TestRunningCheckoutIsIgnored() {
	running := generalDomain.SagaPayload{SagaID: "saga-1", ConsumerID: "alice", State: "ORDER_CREATED"}

	s.Require().NoError(s.service.HandleCheckout(s.ctx, s.checkout(3, running)))
	s.Empty(s.recorder.Sent())
}

func (s *NotificationServiceSuite) TestCompensatedCheckoutCarriesReason() {
	failed := generalDomain.SagaPayload{
		SagaID:        "saga-2",
		ConsumerID:    "bob",
		State:         "COMPENSATED",
		Terminal:      true,
		FailureReason: "payment failed: declined",
	}

	s.Require().NoError(s.service.HandleCheckout(s.ctx, s.checkout(9, failed)))

	sent := s.recorder.Sent()
	s.Require().Len(sent, 1)
	s.Equal(domain.CheckoutFailed, sent[0].Kind)
	s.Equal("payment failed: declined", sent[0].Reason)
}

func (s *NotificationServiceSuite) TestOtherMessagesAreIgnored() {
	env, err := messaging.NewEnvelope(generalDomain.OrderCreated, "order-1", struct{}{})
	s.Require().NoError(err)
	env.Version = 1

	s.Require().NoError(s.service.HandleCheckout(s.ctx, env))
	s.Empty(s.recorder.Sent())
}

func (s *NotificationServiceSuite) TestFailedSendIsRetriedOnRedelivery() {
	sender := &flakySender{failures: 1}
	svc := NewNotificationService(sender, repository.NewMemorySentLog(), zap.NewNop())

	env := s.checkout(7, completed())

	s.Require().Error(svc.HandleCheckout(s.ctx, env))
	s.Empty(sender.sent)

	s.Require().NoError(svc.HandleCheckout(s.ctx, env))
	s.Len(sender.sent, 1)
}
