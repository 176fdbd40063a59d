package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/engine"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/job"
	"github.com/draftgate/draftgate/middleware"
	"github.com/draftgate/draftgate/request"
	"github.com/draftgate/draftgate/store/memory"
	"github.com/draftgate/draftgate/worker"
)

// stubRunner counts runs and reports a fixed outcome without invoking the
// real pipeline.
type stubRunner struct {
	runs    atomic.Int64
	outcome engine.Outcome
	block   chan struct{} // when set, Run waits for it (or ctx) before returning
}

func (r *stubRunner) Run(ctx context.Context, _ *request.Request) *engine.Result {
	r.runs.Add(1)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	j := job.New(id.NewRequestID())
	return &engine.Result{Outcome: r.outcome, Job: j}
}

func testBrief() *brief.Brief {
	return &brief.Brief{RequestID: id.NewRequestID()}
}

func setupTestPool(t *testing.T, runner worker.Runner, concurrency int, pollInterval time.Duration) (*worker.Pool, *memory.Store) {
	t.Helper()
	logger := slog.Default()
	s := memory.New()

	executor := worker.NewExecutor(runner, s, logger, middleware.Recover(logger))
	pool := worker.NewPool(s, executor, logger,
		worker.WithPoolConcurrency(concurrency),
		worker.WithPollInterval(pollInterval),
		worker.WithPoolQueues([]string{"content"}),
	)
	return pool, s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestPoolStartStop(t *testing.T) {
	pool, _ := setupTestPool(t, &stubRunner{outcome: engine.OutcomeDelivered}, 2, 50*time.Millisecond)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	// Double start should be a no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}
	// Double stop should be a no-op.
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("double-stop error: %v", err)
	}
}

func TestPoolProcessesRequest(t *testing.T) {
	runner := &stubRunner{outcome: engine.OutcomeDelivered}
	pool, s := setupTestPool(t, runner, 1, 10*time.Millisecond)

	req := request.New("content", testBrief())
	if err := s.EnqueueRequest(context.Background(), req); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool { return runner.runs.Load() > 0 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	got, err := s.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("get request error: %v", err)
	}
	if got.State != request.StateCompleted {
		t.Errorf("request state = %q, want %q", got.State, request.StateCompleted)
	}
	if got.Outcome != string(engine.OutcomeDelivered) {
		t.Errorf("outcome = %q, want %q", got.Outcome, engine.OutcomeDelivered)
	}
	if got.JobID.IsNil() {
		t.Error("expected JobID to be set")
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if runner.runs.Load() != 1 {
		t.Errorf("runner invoked %d times, want 1", runner.runs.Load())
	}
}

func TestPoolRecordsAbortedOutcome(t *testing.T) {
	runner := &stubRunner{outcome: engine.OutcomeAborted}
	pool, s := setupTestPool(t, runner, 1, 10*time.Millisecond)

	req := request.New("content", testBrief())
	if err := s.EnqueueRequest(context.Background(), req); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool { return runner.runs.Load() > 0 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	// An aborted run is still a completed request: the outcome carries the
	// abort, not the queue state.
	got, err := s.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("get request error: %v", err)
	}
	if got.State != request.StateCompleted {
		t.Errorf("request state = %q, want %q", got.State, request.StateCompleted)
	}
	if got.Outcome != string(engine.OutcomeAborted) {
		t.Errorf("outcome = %q, want %q", got.Outcome, engine.OutcomeAborted)
	}
}

// panickingRunner simulates a bug below the middleware chain.
type panickingRunner struct{ runs atomic.Int64 }

func (r *panickingRunner) Run(_ context.Context, _ *request.Request) *engine.Result {
	r.runs.Add(1)
	panic("bad state")
}

func TestPoolMarksRequestFailedOnPanic(t *testing.T) {
	runner := &panickingRunner{}
	pool, s := setupTestPool(t, runner, 1, 10*time.Millisecond)

	req := request.New("content", testBrief())
	if err := s.EnqueueRequest(context.Background(), req); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool { return runner.runs.Load() > 0 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	got, err := s.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("get request error: %v", err)
	}
	if got.State != request.StateFailed {
		t.Errorf("request state = %q, want %q", got.State, request.StateFailed)
	}
	if got.LastError == "" {
		t.Error("expected LastError to be set")
	}
}

func TestPoolSkipsOtherQueues(t *testing.T) {
	runner := &stubRunner{outcome: engine.OutcomeDelivered}
	pool, s := setupTestPool(t, runner, 1, 10*time.Millisecond)

	req := request.New("newsletter", testBrief())
	if err := s.EnqueueRequest(context.Background(), req); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	if runner.runs.Load() != 0 {
		t.Errorf("runner invoked %d times for a queue the pool does not poll", runner.runs.Load())
	}
	got, _ := s.GetRequest(context.Background(), req.ID)
	if got.State != request.StatePending {
		t.Errorf("request state = %q, want pending", got.State)
	}
}

func TestExecutorUpdateFailureSurfaces(t *testing.T) {
	logger := slog.Default()
	s := &updateFailingStore{Store: memory.New(), err: errors.New("connection reset")}
	runner := &stubRunner{outcome: engine.OutcomeDelivered}
	executor := worker.NewExecutor(runner, s, logger)

	req := request.New("content", testBrief())
	req.Start(id.NewWorkerID())

	if err := executor.Execute(context.Background(), req); err == nil {
		t.Fatal("Execute() error = nil, want the update failure")
	}
}

type updateFailingStore struct {
	*memory.Store
	err error
}

func (s *updateFailingStore) UpdateRequest(_ context.Context, _ *request.Request) error {
	return s.err
}
