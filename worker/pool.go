package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/request"
)

// Pool manages a set of concurrent worker goroutines that poll for due
// requests and execute them through the Executor.
type Pool struct {
	store        request.Store
	executor     *Executor
	concurrency  int
	queues       []string
	pollInterval time.Duration
	workerID     id.WorkerID
	logger       *slog.Logger

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeRuns map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolQueues sets the queues the pool will poll.
func WithPoolQueues(queues []string) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithPollInterval sets how often idle workers poll for new requests.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// NewPool creates a worker pool.
func NewPool(store request.Store, executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		store:        store,
		executor:     executor,
		concurrency:  4,
		queues:       []string{"default"},
		pollInterval: time.Second,
		workerID:     id.NewWorkerID(),
		logger:       logger,
		stopCh:       make(chan struct{}),
		activeRuns:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, active runs are cancelled when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active runs")
		p.cancelActiveRuns()
		p.wg.Wait()
	}

	return nil
}

// dequeueLoop is run by each worker goroutine.
func (p *Pool) dequeueLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		reqs, err := p.store.DequeueRequests(context.Background(), p.queues, p.workerID, 1)
		if err != nil {
			p.logger.Error("dequeue error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}

		if len(reqs) == 0 {
			p.sleep()
			continue
		}

		req := reqs[0]

		ctx, cancel := context.WithCancel(context.Background())
		p.trackRun(req.ID.String(), cancel)

		if execErr := p.executor.Execute(ctx, req); execErr != nil {
			p.logger.Debug("request execution failed",
				slog.String("request_id", req.ID.String()),
				slog.String("queue", req.Queue),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrackRun(req.ID.String())
		cancel()
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackRun(requestID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeRuns[requestID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackRun(requestID string) {
	p.activeMu.Lock()
	delete(p.activeRuns, requestID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveRuns() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for requestID, cancel := range p.activeRuns {
		p.logger.Warn("cancelling active run", slog.String("request_id", requestID))
		cancel()
	}
}
