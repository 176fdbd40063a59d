package draftgate

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Option configures a Pipeline.
type Option func(*Pipeline) error

// Storer is the minimal store interface held by the Pipeline.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// schedRunner is an internal interface for scheduler lifecycle.
type schedRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Pipeline is the central coordinator for quality-gated content runs.
//
// Create one with New() and functional options. The Pipeline holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Use pipeline.Build to wire everything together.
type Pipeline struct {
	config    Config
	logger    *slog.Logger
	store     Storer
	pool      poolRunner
	scheduler schedRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Logger returns the pipeline's logger.
func (p *Pipeline) Logger() *slog.Logger { return p.logger }

// Store returns the pipeline's store.
func (p *Pipeline) Store() Storer { return p.store }

// Config returns a copy of the pipeline's configuration.
func (p *Pipeline) Config() Config { return p.config }

// SetPool sets the worker pool (called by the engine layer).
func (p *Pipeline) SetPool(r poolRunner) { p.pool = r }

// SetScheduler sets the recurring-brief scheduler (called by the engine layer).
func (p *Pipeline) SetScheduler(r schedRunner) { p.scheduler = r }

// Start migrates the store and begins request processing.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.started {
		return nil
	}
	if p.store == nil {
		return ErrNoStore
	}
	if err := p.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	if p.pool != nil {
		if err := p.pool.Start(ctx); err != nil {
			return fmt.Errorf("start worker pool: %w", err)
		}
	}
	if p.scheduler != nil {
		if err := p.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	p.started = true
	p.logger.Info("pipeline started",
		slog.Int("concurrency", p.config.Concurrency),
		slog.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop shuts down processing, bounded by ShutdownTimeout.
func (p *Pipeline) Stop(ctx context.Context) error {
	if !p.started {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.ShutdownTimeout)
	defer cancel()

	if p.scheduler != nil {
		if err := p.scheduler.Stop(ctx); err != nil {
			p.logger.Error("scheduler stop", slog.String("error", err.Error()))
		}
	}
	if p.pool != nil {
		if err := p.pool.Stop(ctx); err != nil {
			return fmt.Errorf("stop worker pool: %w", err)
		}
	}
	p.started = false
	p.logger.Info("pipeline stopped")
	return p.store.Close()
}

// WithStore sets the persistence backend.
func WithStore(s Storer) Option {
	return func(p *Pipeline) error {
		if s == nil {
			return ErrNoStore
		}
		p.store = s
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) error {
		if l != nil {
			p.logger = l
		}
		return nil
	}
}

// WithConcurrency sets the maximum number of concurrent request runs.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("draftgate: concurrency must be >= 1, got %d", n)
		}
		p.config.Concurrency = n
		return nil
	}
}

// WithQueues sets the queues the pipeline polls.
func WithQueues(queues []string) Option {
	return func(p *Pipeline) error {
		if len(queues) > 0 {
			p.config.Queues = queues
		}
		return nil
	}
}

// WithPollInterval sets how often idle workers poll for due requests.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d > 0 {
			p.config.PollInterval = d
		}
		return nil
	}
}

// WithRunTimeout bounds a single end-to-end request run.
func WithRunTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.config.RunTimeout = d
		return nil
	}
}

// WithConfig replaces the whole configuration at once.
func WithConfig(c Config) Option {
	return func(p *Pipeline) error {
		p.config = c
		return nil
	}
}
