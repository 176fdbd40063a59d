package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
)

// EnqueueFunc is the callback the scheduler uses to enqueue a request for a
// due entry. The pipeline provides the implementation; the callback breaks
// the import cycle with the queue layer.
type EnqueueFunc func(ctx context.Context, queue string, b *brief.Brief) (id.RequestID, error)

// specParser supports standard 5-field cron and descriptors like "@every 6h".
var specParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSpec parses a cron expression and returns the schedule.
func ParseSpec(expr string) (cronlib.Schedule, error) {
	return specParser.Parse(expr)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// Scheduler fires due entries on a tick loop. One scheduler per deployment:
// entries carry no locks, so two concurrent schedulers would double-fire.
type Scheduler struct {
	store   Store
	enqueue EnqueueFunc
	logger  *slog.Logger

	tickInterval time.Duration

	// parsed caches compiled cron expressions by spec string.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(store Store, enqueue EnqueueFunc, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		enqueue:      enqueue,
		logger:       logger,
		tickInterval: time.Second,
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("scheduler started", slog.Duration("tick_interval", s.tickInterval))
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(context.Background(), time.Now().UTC())
		}
	}
}

// Tick fires every due entry once. Exposed so tests can drive the scheduler
// without waiting on the ticker.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	entries, err := s.store.ListSchedules(ctx)
	if err != nil {
		s.logger.Error("list schedules error", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		if !e.Due(now) {
			continue
		}
		s.fire(ctx, e, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, e *Entry, now time.Time) {
	sched, err := s.schedule(e.Spec)
	if err != nil {
		s.logger.Error("bad schedule spec",
			slog.String("schedule_id", e.ID.String()),
			slog.String("spec", e.Spec),
			slog.String("error", err.Error()),
		)
		return
	}

	reqID, err := s.enqueue(ctx, e.Queue, e.Brief.Clone())
	if err != nil {
		s.logger.Error("enqueue from schedule failed",
			slog.String("schedule_id", e.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	last := now
	next := sched.Next(now)
	e.LastRunAt = &last
	e.NextRunAt = &next
	e.Touch()
	if err := s.store.UpdateSchedule(ctx, e); err != nil {
		s.logger.Error("update schedule failed",
			slog.String("schedule_id", e.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("schedule fired",
		slog.String("schedule_id", e.ID.String()),
		slog.String("name", e.Name),
		slog.String("request_id", reqID.String()),
		slog.Time("next_run_at", next),
	)
}

func (s *Scheduler) schedule(spec string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[spec]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	s.parsedMu.Lock()
	s.parsed[spec] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
