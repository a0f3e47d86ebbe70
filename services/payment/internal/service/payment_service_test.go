package service

import (
	"context"
	"testing"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/store/memory"
	"github.com/sakashimaa/fulfillment/services/payment/internal/domain"
	"github.com/sakashimaa/fulfillment/services/payment/internal/gateway"
	"github.com/sakashimaa/fulfillment/services/payment/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type PaymentServiceSuite struct {
	suite.Suite

	ctx     context.Context
	store   *memory.Store
	gateway *gateway.Simulated
	service PaymentService
}

func (s *PaymentServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.gateway = gateway.NewSimulated(decimal.NewFromInt(100))
	s.service = NewPaymentService(repository.NewPaymentRepository(s.store), s.store, s.gateway, zap.NewNop())
}

func (s *PaymentServiceSuite) process(amount int64, method string) {
	cmd := generalDomain.ProcessPaymentCommand{
		PaymentID:  "pay-1",
		OrderID:    "order-1",
		ConsumerID: "consumer-1",
		Amount:     decimal.NewFromInt(amount),
		Method:     method,
	}

	s.Require().NoError(s.service.ProcessPayment(s.ctx, s.envelope(generalDomain.ProcessPayment, "saga-1:ProcessPayment", cmd), cmd))
}

func (s *PaymentServiceSuite) refund(key string) {
	cmd := generalDomain.RefundPaymentCommand{PaymentID: "pay-1", OrderID: "order-1", Reason: "saga aborted"}

	s.Require().NoError(s.service.RefundPayment(s.ctx, s.envelope(generalDomain.RefundPayment, key, cmd), cmd))
}

func (s *PaymentServiceSuite) envelope(messageType, key string, payload any) messaging.Envelope {
	msg, err := generalDomain.NewCommand(generalDomain.PaymentCommands, messageType, generalDomain.AggregatePayment, "pay-1", "saga-1", key, payload)
	s.Require().NoError(err)

	return msg.Envelope
}

func (s *PaymentServiceSuite) types() []string {
	var out []string
	for _, env := range s.store.Messages(generalDomain.PaymentEvents) {
		out = append(out, env.Type)
	}

	return out
}

func (s *PaymentServiceSuite) TestProcessPayment_Completes() {
	s.process(50, "card")

	payment, err := s.service.FindByID(s.ctx, "pay-1")
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, payment.Status)
	s.NotEmpty(payment.TransactionID)
	s.Equal(int64(2), payment.Version())
	s.Equal([]string{generalDomain.PaymentCreated, generalDomain.PaymentCompleted}, s.types())
}

func (s *PaymentServiceSuite) TestProcessPayment_DeclineFails() {
	s.process(500, "card")

	payment, err := s.service.FindByID(s.ctx, "pay-1")
	s.Require().NoError(err)
	s.Equal(domain.StatusFailed, payment.Status)
	s.Equal([]string{generalDomain.PaymentCreated, generalDomain.PaymentFailed}, s.types())
}

func (s *PaymentServiceSuite) TestProcessPayment_GatewayOutageIsRetried() {
	s.gateway.SetAvailable(false)

	cmd := generalDomain.ProcessPaymentCommand{PaymentID: "pay-1", OrderID: "order-1", Amount: decimal.NewFromInt(10), Method: "card"}
	env := s.envelope(generalDomain.ProcessPayment, "saga-1:ProcessPayment", cmd)

	s.Error(s.service.ProcessPayment(s.ctx, env, cmd))
	s.Empty(s.types())

	s.gateway.SetAvailable(true)
	s.NoError(s.service.ProcessPayment(s.ctx, env, cmd))
	s.Equal([]string{generalDomain.PaymentCreated, generalDomain.PaymentCompleted}, s.types())
}

func (s *PaymentServiceSuite) TestRefundPayment_RefundsCompleted() {
	s.process(50, "card")
	s.refund("saga-1:RefundPayment")

	payment, err := s.service.FindByID(s.ctx, "pay-1")
	s.Require().NoError(err)
	s.Equal(domain.StatusRefunded, payment.Status)
	s.True(s.gateway.Refunded(payment.TransactionID))
}

func (s *PaymentServiceSuite) TestRefundPayment_VoidsUnknownAndBlocksLateCharge() {
	s.refund("saga-1:RefundPayment")
	s.process(50, "card")

	payment, err := s.service.FindByID(s.ctx, "pay-1")
	s.Require().NoError(err)
	s.Equal(domain.StatusFailed, payment.Status)
	s.Empty(payment.TransactionID)

	events := s.store.Messages(generalDomain.PaymentEvents)
	s.Require().Len(events, 2)
	s.Equal(generalDomain.PaymentFailed, events[0].Type)
	s.Equal(int64(1), events[0].Version)
	s.Equal(generalDomain.PaymentFailed, events[1].Type)
	s.Zero(events[1].Version)
}

func (s *PaymentServiceSuite) TestRefundPayment_FailedPaymentIsAcked() {
	s.process(500, "card")
	s.refund("saga-1:RefundPayment")

	s.Equal([]string{generalDomain.PaymentCreated, generalDomain.PaymentFailed, generalDomain.PaymentFailed}, s.types())
}

func TestPaymentServiceSuite(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}
