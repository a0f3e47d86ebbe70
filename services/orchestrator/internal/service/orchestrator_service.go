package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/orchestrator/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type StartRequest struct {
	// IdempotencyKey, when set, makes a repeated request return the saga it
	// started the first time.
	IdempotencyKey string
	ConsumerID     string
	CartID         string
	PaymentMethod  string
	Items          []generalDomain.LineItem
}

type OrchestratorService interface {
	Start(ctx context.Context, req StartRequest) (*domain.Saga, error)
	HandleReply(ctx context.Context, env messaging.Envelope) error
	Abort(ctx context.Context, sagaID, reason string) (*domain.Saga, error)
	Retry(ctx context.Context, sagaID string) (*domain.Saga, error)
	Get(ctx context.Context, sagaID string) (*domain.Saga, error)
	ListStuck(ctx context.Context) ([]*domain.Saga, error)
	// Sweep enforces deadlines on every running saga.
	Sweep(ctx context.Context) error
}

type orchestratorService struct {
	executor *aggregate.Executor[*domain.Saga]
	policy   domain.Policy
	metrics  *metrics.Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*orchestratorService)

// WithClock replaces time.Now, mostly for deadline tests.
func WithClock(now func() time.Time) Option {
	return func(s *orchestratorService) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *orchestratorService) { s.metrics = m }
}

func NewOrchestratorService(
	repo *aggregate.Repository[*domain.Saga],
	store aggregate.Store,
	policy domain.Policy,
	logger *zap.Logger,
	opts ...Option,
) OrchestratorService {
	s := &orchestratorService{
		executor: aggregate.NewExecutor(repo, store, generalDomain.SagaEvents, logger),
		policy:   policy,
		logger:   logger,
		tracer:   otel.Tracer("service/orchestrator_service"),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *orchestratorService) Start(ctx context.Context, req StartRequest) (*domain.Saga, error) {
	ctx, span := s.tracer.Start(ctx, "OrchestratorService.Start")
	defer span.End()

	id := uuid.NewString()
	if req.IdempotencyKey != "" {
		id = domain.SagaIDFor(req.IdempotencyKey)
	}

	span.SetAttributes(attribute.String("saga_id", id), attribute.Int("line_items", len(req.Items)))

	var created bool
	saga, err := s.executor.Execute(ctx, aggregate.Command{AggregateID: id}, func(sg *domain.Saga, exists bool) ([]messaging.Message, error) {
		created = !exists
		if exists {
			return nil, nil
		}

		return sg.Start(req.ConsumerID, req.CartID, req.PaymentMethod, req.Items, s.policy, s.now().UTC())
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, s.logger, "Checkout refused", zap.String("consumer_id", req.ConsumerID), zap.Error(err))
		return nil, err
	}

	if !created {
		mylogger.Info(ctx, s.logger, "Checkout already started for idempotency key", zap.String("saga_id", id))
		return saga, nil
	}

	s.metrics.SagaStarted()
	mylogger.Info(
		ctx,
		s.logger,
		"Checkout saga started",
		zap.String("saga_id", id),
		zap.String("consumer_id", req.ConsumerID),
		zap.Int("items", len(saga.Items)),
	)

	return saga, nil
}

// HandleReply routes a participant reply to the saga named by its
// correlation id. Each reply is applied at most once, keyed by its message id.
func (s *orchestratorService) HandleReply(ctx context.Context, env messaging.Envelope) error {
	if env.CorrelationID == "" {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "OrchestratorService.HandleReply")
	defer span.End()

	span.SetAttributes(attribute.String("saga_id", env.CorrelationID), attribute.String("message_type", env.Type))

	cmd := aggregate.Command{
		AggregateID:    env.CorrelationID,
		Trigger:        env,
		IdempotencyKey: "reply:" + env.ID,
	}

	var before domain.State
	saga, err := s.executor.Execute(ctx, cmd, func(sg *domain.Saga, exists bool) ([]messaging.Message, error) {
		if !exists {
			return nil, fmt.Errorf("%w: saga %s", aggregate.ErrNotFound, env.CorrelationID)
		}

		before = sg.State
		cmds, _, err := sg.Apply(env, s.policy, s.now().UTC())

		return cmds, err
	})

	switch {
	case err == nil:
		s.observe(ctx, before, saga)
		return nil
	case errors.Is(err, aggregate.ErrDuplicateCommand):
		mylogger.Debug(ctx, s.logger, "Duplicate reply ignored", mylogger.Saga(env.CorrelationID, env.Type)...)
		return nil
	case errors.Is(err, aggregate.ErrNotFound):
		mylogger.Debug(ctx, s.logger, "Reply for unknown saga ignored", mylogger.Saga(env.CorrelationID, env.Type)...)
		return nil
	default:
		span.RecordError(err)
		return err
	}
}

func (s *orchestratorService) Abort(ctx context.Context, sagaID, reason string) (*domain.Saga, error) {
	var before domain.State
	saga, err := s.executor.Execute(ctx, aggregate.Command{AggregateID: sagaID}, s.existing(sagaID, func(sg *domain.Saga) ([]messaging.Message, error) {
		before = sg.State
		cmds, _, err := sg.Abort(reason, s.policy, s.now().UTC())

		return cmds, err
	}))
	if err != nil {
		return nil, err
	}

	mylogger.Warn(ctx, s.logger, "Saga aborted by operator", zap.String("saga_id", sagaID), zap.String("reason", reason))
	s.observe(ctx, before, saga)

	return saga, nil
}

func (s *orchestratorService) Retry(ctx context.Context, sagaID string) (*domain.Saga, error) {
	var (
		before   domain.State
		wasStuck bool
	)

	saga, err := s.executor.Execute(ctx, aggregate.Command{AggregateID: sagaID}, s.existing(sagaID, func(sg *domain.Saga) ([]messaging.Message, error) {
		before = sg.State

		cmds, stuck, err := sg.Retry(s.policy, s.now().UTC())
		wasStuck = stuck

		return cmds, err
	}))
	if err != nil {
		return nil, err
	}

	if wasStuck {
		s.metrics.SagaUnstuck()
	}

	mylogger.Info(ctx, s.logger, "Saga compensation re-driven", zap.String("saga_id", sagaID), zap.Bool("was_stuck", wasStuck))
	s.observe(ctx, before, saga)

	return saga, nil
}

func (s *orchestratorService) Get(ctx context.Context, sagaID string) (*domain.Saga, error) {
	return s.executor.Repository().Load(ctx, sagaID)
}

func (s *orchestratorService) ListStuck(ctx context.Context) ([]*domain.Saga, error) {
	sagas, err := s.executor.Repository().List(ctx, false)
	if err != nil {
		return nil, err
	}

	stuck := make([]*domain.Saga, 0)
	for _, sg := range sagas {
		if sg.Stuck {
			stuck = append(stuck, sg)
		}
	}

	return stuck, nil
}

func (s *orchestratorService) Sweep(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "OrchestratorService.Sweep")
	defer span.End()

	sagas, err := s.executor.Repository().List(ctx, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("list running sagas: %w", err)
	}

	now := s.now().UTC()

	var errs []error
	for _, sg := range sagas {
		if sg.Stuck || now.Before(sg.Deadline) {
			continue
		}

		if err := s.expire(ctx, sg.ID()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *orchestratorService) expire(ctx context.Context, sagaID string) error {
	var (
		before  domain.State
		changed bool
	)

	saga, err := s.executor.Execute(ctx, aggregate.Command{AggregateID: sagaID}, s.existing(sagaID, func(sg *domain.Saga) ([]messaging.Message, error) {
		before = sg.State

		cmds, ok, err := sg.Expire(s.policy, s.now().UTC())
		changed = ok

		return cmds, err
	}))
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Saga deadline check failed", zap.String("saga_id", sagaID), zap.Error(err))
		return fmt.Errorf("expire saga %s: %w", sagaID, err)
	}

	if !changed {
		return nil
	}

	switch {
	case saga.Stuck:
		s.metrics.SagaStuck()
		mylogger.Error(
			ctx,
			s.logger,
			"Saga compensation exhausted its retries, operator action required",
			zap.String("saga_id", sagaID),
			zap.Int("attempts", saga.Attempts),
			zap.String("failure_reason", saga.FailureReason),
		)
	case before == domain.StateCompensating:
		mylogger.Warn(ctx, s.logger, "Compensation timed out, re-issuing", zap.String("saga_id", sagaID), zap.Int("attempt", saga.Attempts))
	default:
		mylogger.Warn(ctx, s.logger, "Saga step timed out", zap.String("saga_id", sagaID), zap.String("state", string(before)))
	}

	s.observe(ctx, before, saga)

	return nil
}

func (s *orchestratorService) observe(ctx context.Context, before domain.State, saga *domain.Saga) {
	if saga == nil || before == saga.State {
		return
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Saga transition",
		zap.String("saga_id", saga.ID()),
		zap.String("from", string(before)),
		zap.String("to", string(saga.State)),
		zap.String("failure_reason", saga.FailureReason),
	)

	if saga.State.Terminal() {
		s.metrics.SagaFinished(string(saga.State))
	}
}

func (s *orchestratorService) existing(
	sagaID string,
	fn func(sg *domain.Saga) ([]messaging.Message, error),
) aggregate.Decide[*domain.Saga] {
	return func(sg *domain.Saga, exists bool) ([]messaging.Message, error) {
		if !exists {
			return nil, fmt.Errorf("%w: saga %s", aggregate.ErrNotFound, sagaID)
		}

		return fn(sg)
	}
}
