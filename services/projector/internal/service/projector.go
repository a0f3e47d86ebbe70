package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/metrics"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"github.com/sakashimaa/fulfillment/services/projector/internal/projection"
	"github.com/sakashimaa/fulfillment/services/projector/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrUnknownAggregateType = fmt.Errorf("%w: unknown aggregate type", aggregate.ErrInvalidArgument)

// SnapshotSource is the read-only slice of a write-side store the projector
// rebuilds from.
type SnapshotSource interface {
	Load(ctx context.Context, aggregateType, id string) (*aggregate.Snapshot, error)
	List(ctx context.Context, aggregateType string, includeArchived bool) ([]aggregate.Snapshot, error)
}

// Sources maps an aggregate type to the store that owns it.
type Sources map[string]SnapshotSource

type Options struct {
	// MaxBuffered is how many out-of-order events one stream may hold
	// before it is rebuilt from its snapshot.
	MaxBuffered  int
	MaxBufferAge time.Duration
}

type stream struct {
	aggregateType string
	aggregateID   string
}

type gap struct {
	events map[int64]messaging.Envelope
	since  time.Time
}

// Projector applies each aggregate's events in version order exactly once.
// Duplicates are dropped, early events wait for the missing ones, and a
// stream whose gap does not close in time is rebuilt from its snapshot.
type Projector struct {
	rows        repository.RowStore
	projections map[string]projection.Projection
	sources     Sources
	opts        Options
	metrics     *metrics.Metrics
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time

	mu   sync.Mutex
	gaps map[stream]*gap
}

type Option func(*Projector)

func WithClock(now func() time.Time) Option {
	return func(p *Projector) { p.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Projector) { p.metrics = m }
}

func NewProjector(rows repository.RowStore, sources Sources, opts Options, logger *zap.Logger, options ...Option) *Projector {
	if opts.MaxBuffered <= 0 {
		opts.MaxBuffered = 100
	}
	if opts.MaxBufferAge <= 0 {
		opts.MaxBufferAge = 10 * time.Second
	}

	p := &Projector{
		rows:        rows,
		projections: make(map[string]projection.Projection),
		sources:     sources,
		opts:        opts,
		logger:      logger,
		tracer:      otel.Tracer("service/projector"),
		now:         time.Now,
		gaps:        make(map[stream]*gap),
	}

	for _, proj := range projection.All() {
		p.projections[proj.AggregateType()] = proj
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Handle projects one channel message. Replies and events of aggregates
// without a view are acknowledged and skipped.
func (p *Projector) Handle(ctx context.Context, env messaging.Envelope) error {
	if !env.IsEvent() {
		return nil
	}

	proj, ok := p.projections[env.AggregateType]
	if !ok {
		mylogger.Debug(ctx, p.logger, "No projection for aggregate type", zap.String("aggregate_type", env.AggregateType))
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "Projector.Handle")
	defer span.End()

	span.SetAttributes(
		attribute.String("aggregate_type", env.AggregateType),
		attribute.String("aggregate_id", env.AggregateID),
		attribute.Int64("version", env.Version),
	)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.handle(ctx, proj, env); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

func (p *Projector) handle(ctx context.Context, proj projection.Projection, env messaging.Envelope) error {
	row, err := p.load(ctx, proj, env.AggregateID)
	if err != nil {
		return err
	}

	key := stream{env.AggregateType, env.AggregateID}

	switch {
	case env.Version <= row.Version:
		mylogger.Debug(
			ctx,
			p.logger,
			"Skipping already projected event",
			zap.String("aggregate_id", env.AggregateID),
			zap.Int64("version", env.Version),
			zap.Int64("projected", row.Version),
		)
		return nil

	case env.Version > row.Version+1:
		g := p.buffer(key, env)
		mylogger.Debug(
			ctx,
			p.logger,
			"Buffering out-of-order event",
			zap.String("aggregate_id", env.AggregateID),
			zap.Int64("version", env.Version),
			zap.Int64("projected", row.Version),
		)

		if len(g.events) > p.opts.MaxBuffered || p.expired(g) {
			return p.rebuild(ctx, proj, env.AggregateID)
		}
		return nil
	}

	if err := p.apply(ctx, proj, row, env); err != nil {
		return err
	}

	return p.drain(ctx, proj, key, row)
}

func (p *Projector) load(ctx context.Context, proj projection.Projection, id string) (*domain.Row, error) {
	row, err := p.rows.Get(ctx, proj.View(), id)
	if errors.Is(err, domain.ErrRowNotFound) {
		return &domain.Row{View: proj.View(), Key: id}, nil
	}

	return row, err
}

func (p *Projector) apply(ctx context.Context, proj projection.Projection, row *domain.Row, env messaging.Envelope) error {
	if err := proj.Project(ctx, p.rows, row, env); err != nil {
		return fmt.Errorf("project %s v%d of %s: %w", env.Type, env.Version, env.AggregateID, err)
	}

	row.Version = env.Version
	row.UpdatedAt = env.OccurredAt
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = p.now().UTC()
	}

	if err := p.rows.Upsert(ctx, *row); err != nil {
		return err
	}

	p.metrics.ProjectionApplied(proj.View())

	return nil
}

func (p *Projector) buffer(key stream, env messaging.Envelope) *gap {
	g, ok := p.gaps[key]
	if !ok {
		g = &gap{events: make(map[int64]messaging.Envelope), since: p.now()}
		p.gaps[key] = g
	}

	if _, seen := g.events[env.Version]; !seen {
		g.events[env.Version] = env
		p.metrics.ProjectionBuffered(1)
	}

	return g
}

func (p *Projector) expired(g *gap) bool {
	return p.now().Sub(g.since) >= p.opts.MaxBufferAge
}

// drain applies buffered events that now follow the row's version and
// discards those it already covers.
func (p *Projector) drain(ctx context.Context, proj projection.Projection, key stream, row *domain.Row) error {
	g, ok := p.gaps[key]
	if !ok {
		return nil
	}

	for version := range g.events {
		if version <= row.Version {
			delete(g.events, version)
			p.metrics.ProjectionBuffered(-1)
		}
	}

	for {
		env, ok := g.events[row.Version+1]
		if !ok {
			break
		}

		if err := p.apply(ctx, proj, row, env); err != nil {
			return err
		}
		delete(g.events, env.Version)
		p.metrics.ProjectionBuffered(-1)
	}

	if len(g.events) == 0 {
		delete(p.gaps, key)
	}

	return nil
}

func (p *Projector) rebuild(ctx context.Context, proj projection.Projection, id string) error {
	source, ok := p.sources[proj.AggregateType()]
	if !ok {
		mylogger.Warn(ctx, p.logger, "No snapshot source, keeping events buffered",
			zap.String("aggregate_type", proj.AggregateType()),
			zap.String("aggregate_id", id),
		)
		return nil
	}

	snap, err := source.Load(ctx, proj.AggregateType(), id)
	if errors.Is(err, aggregate.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s snapshot %s: %w", proj.AggregateType(), id, err)
	}

	return p.rebuildFrom(ctx, proj, *snap)
}

func (p *Projector) rebuildFrom(ctx context.Context, proj projection.Projection, snap aggregate.Snapshot) error {
	row, err := p.load(ctx, proj, snap.AggregateID)
	if err != nil {
		return err
	}

	if snap.Version >= row.Version {
		if err := proj.Rebuild(ctx, p.rows, row, snap); err != nil {
			return err
		}

		row.Version = snap.Version
		row.UpdatedAt = snap.UpdatedAt
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = p.now().UTC()
		}

		if err := p.rows.Upsert(ctx, *row); err != nil {
			return err
		}

		p.metrics.ProjectionRebuilt(proj.View())
		mylogger.Info(
			ctx,
			p.logger,
			"Rebuilt read model from snapshot",
			zap.String("view", proj.View()),
			zap.String("aggregate_id", snap.AggregateID),
			zap.Int64("version", snap.Version),
		)
	}

	return p.drain(ctx, proj, stream{proj.AggregateType(), snap.AggregateID}, row)
}

// Sweep rebuilds every stream whose gap has outlived MaxBufferAge.
func (p *Projector) Sweep(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key, g := range p.gaps {
		if !p.expired(g) {
			continue
		}

		proj := p.projections[key.aggregateType]
		if err := p.rebuild(ctx, proj, key.aggregateID); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// RebuildAll replaces every row of an aggregate type's view with the state
// of the stored snapshots and returns how many were rebuilt.
func (p *Projector) RebuildAll(ctx context.Context, aggregateType string) (int, error) {
	proj, ok := p.projections[aggregateType]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAggregateType, aggregateType)
	}

	source, ok := p.sources[aggregateType]
	if !ok {
		return 0, fmt.Errorf("%w: no snapshot source for %s", aggregate.ErrInvalidArgument, aggregateType)
	}

	snaps, err := source.List(ctx, aggregateType, true)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, snap := range snaps {
		if err := p.rebuildFrom(ctx, proj, snap); err != nil {
			return 0, err
		}
	}

	mylogger.Info(ctx, p.logger, "Rebuilt view", zap.String("view", proj.View()), zap.Int("rows", len(snaps)))

	return len(snaps), nil
}

// Buffered reports how many events are waiting for a gap to close.
func (p *Projector) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, g := range p.gaps {
		n += len(g.events)
	}

	return n
}

// Start sweeps on every tick until ctx is done.
func (p *Projector) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}

	mylogger.Info(ctx, p.logger, "Starting projection sweeper", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Sweep(ctx); err != nil && ctx.Err() == nil {
				mylogger.Error(ctx, p.logger, "Projection sweep failed", zap.Error(err))
			}
		}
	}
}
