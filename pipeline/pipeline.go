// Package pipeline wires all draftgate subsystems together: the run engine,
// the middleware chain, the worker pool, the event bus, and the recurring
// brief scheduler.
//
// This package exists to break the import cycle: the root draftgate package
// defines Entity and Pipeline (imported by request, job, etc.) and so cannot
// import those packages back. The pipeline package sits above all subsystem
// packages and below the application layer.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/engine"
	"github.com/draftgate/draftgate/event"
	"github.com/draftgate/draftgate/id"
	mw "github.com/draftgate/draftgate/middleware"
	"github.com/draftgate/draftgate/qc"
	"github.com/draftgate/draftgate/request"
	"github.com/draftgate/draftgate/schedule"
	"github.com/draftgate/draftgate/store"
	"github.com/draftgate/draftgate/worker"
)

// Runtime wraps a Pipeline with fully wired subsystems.
// Use Build() to create one from a Pipeline.
type Runtime struct {
	p      *draftgate.Pipeline
	st     store.Store
	eng    *engine.Engine
	bus    *event.Bus
	pool   *worker.Pool
	sched  *schedule.Scheduler
	mws    []mw.Middleware
	logger *slog.Logger

	// Engine collaborators (optional).
	gate       *qc.Gate
	fixer      engine.Fixer
	profiler   engine.PageProfiler
	researcher engine.SerpResearcher
	analyzer   engine.IntentAnalyzer

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithMiddleware adds middleware to the runtime's chain, after the default
// stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(rt *Runtime) {
		rt.mws = append(rt.mws, m)
	}
}

// WithGate sets a custom quality gate for the engine.
func WithGate(g *qc.Gate) Option {
	return func(rt *Runtime) { rt.gate = g }
}

// WithFixer sets a custom auto-fix collaborator for the engine.
func WithFixer(f engine.Fixer) Option {
	return func(rt *Runtime) { rt.fixer = f }
}

// WithProfiler sets the page profiler consulted during context gathering.
func WithProfiler(p engine.PageProfiler) Option {
	return func(rt *Runtime) { rt.profiler = p }
}

// WithResearcher sets the SERP researcher consulted during context gathering.
func WithResearcher(r engine.SerpResearcher) Option {
	return func(rt *Runtime) { rt.researcher = r }
}

// WithAnalyzer sets the intent analyzer consulted during context gathering.
func WithAnalyzer(a engine.IntentAnalyzer) Option {
	return func(rt *Runtime) { rt.analyzer = a }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(rt *Runtime) { rt.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the metrics
// middleware uses this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(rt *Runtime) { rt.meterProvider = mp }
}

// Build creates a Runtime from an existing Pipeline and a content generator.
// The Pipeline's store must implement the composite store.Store interface.
func Build(p *draftgate.Pipeline, gen engine.Generator, opts ...Option) (*Runtime, error) {
	logger := p.Logger()

	if p.Store() == nil {
		return nil, draftgate.ErrNoStore
	}
	st, ok := p.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("draftgate: store does not implement store.Store")
	}

	rt := &Runtime{
		p:      p,
		st:     st,
		bus:    event.NewBus(),
		logger: logger,
	}

	for _, opt := range opts {
		opt(rt)
	}

	// Assemble the run engine with its collaborators.
	engOpts := []engine.Option{
		engine.WithBus(rt.bus),
		engine.WithLogger(logger),
	}
	if rt.gate != nil {
		engOpts = append(engOpts, engine.WithGate(rt.gate))
	}
	if rt.fixer != nil {
		engOpts = append(engOpts, engine.WithFixer(rt.fixer))
	}
	if rt.profiler != nil {
		engOpts = append(engOpts, engine.WithProfiler(rt.profiler))
	}
	if rt.researcher != nil {
		engOpts = append(engOpts, engine.WithResearcher(rt.researcher))
	}
	if rt.analyzer != nil {
		engOpts = append(engOpts, engine.WithAnalyzer(rt.analyzer))
	}

	eng, err := engine.New(st, gen, engOpts...)
	if err != nil {
		return nil, err
	}
	rt.eng = eng

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if rt.tracerProvider != nil {
		tracer := rt.tracerProvider.Tracer("github.com/draftgate/draftgate")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if rt.meterProvider != nil {
		meter := rt.meterProvider.Meter("github.com/draftgate/draftgate")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(rt.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, rt.mws...)

	// Create executor and pool.
	config := p.Config()
	executor := worker.NewExecutor(eng, st, logger, allMws...)
	rt.pool = worker.NewPool(st, executor, logger,
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPoolQueues(config.Queues),
		worker.WithPollInterval(config.PollInterval),
	)

	// Create the recurring-brief scheduler. A firing entry becomes an
	// ordinary queued request.
	enqueue := func(ctx context.Context, queue string, b *brief.Brief) (id.RequestID, error) {
		r, enqErr := rt.Enqueue(ctx, queue, b)
		if enqErr != nil {
			return id.RequestID{}, enqErr
		}
		return r.ID, nil
	}
	rt.sched = schedule.NewScheduler(st, enqueue, logger)

	// Wire back into the Pipeline.
	p.SetPool(rt.pool)
	p.SetScheduler(rt.sched)

	return rt, nil
}

// Enqueue creates a pending request for the brief and persists it. The
// pipeline's RunTimeout is applied when the request has none of its own.
func (rt *Runtime) Enqueue(ctx context.Context, queue string, b *brief.Brief) (*request.Request, error) {
	if queue == "" {
		queue = "default"
	}
	r := request.New(queue, b)
	if r.Timeout == 0 {
		r.Timeout = rt.p.Config().RunTimeout
	}
	if err := rt.st.EnqueueRequest(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// EnqueueAt creates a request due at the given time with the given priority.
func (rt *Runtime) EnqueueAt(ctx context.Context, queue string, b *brief.Brief, runAt time.Time, priority int) (*request.Request, error) {
	if queue == "" {
		queue = "default"
	}
	r := request.New(queue, b)
	r.RunAt = runAt
	r.Priority = priority
	if r.Timeout == 0 {
		r.Timeout = rt.p.Config().RunTimeout
	}
	if err := rt.st.EnqueueRequest(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterSchedule validates and persists a recurring brief. Firing entries
// enqueue a copy of the brief on the entry's queue.
func (rt *Runtime) RegisterSchedule(ctx context.Context, name, spec, queue string, b *brief.Brief) (*schedule.Entry, error) {
	e, err := schedule.NewEntry(name, spec, queue, b)
	if err != nil {
		return nil, err
	}
	if err := rt.st.RegisterSchedule(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Start begins request processing via the underlying Pipeline.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.p.Start(ctx)
}

// Stop gracefully shuts down processing and closes the event bus.
func (rt *Runtime) Stop(ctx context.Context) error {
	err := rt.p.Stop(ctx)
	rt.bus.Close()
	return err
}

// Engine returns the run engine.
func (rt *Runtime) Engine() *engine.Engine { return rt.eng }

// EventBus returns the progress event bus.
func (rt *Runtime) EventBus() *event.Bus { return rt.bus }

// Pool returns the worker pool.
func (rt *Runtime) Pool() *worker.Pool { return rt.pool }

// Scheduler returns the recurring-brief scheduler.
func (rt *Runtime) Scheduler() *schedule.Scheduler { return rt.sched }

// Store returns the composite store.
func (rt *Runtime) Store() store.Store { return rt.st }

// Pipeline returns the underlying Pipeline.
func (rt *Runtime) Pipeline() *draftgate.Pipeline { return rt.p }
