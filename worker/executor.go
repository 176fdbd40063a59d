// Package worker provides the request execution layer — an Executor that
// drives the engine through middleware, and a Pool that manages concurrent
// worker goroutines polling queues for due requests.
package worker

import (
	"context"
	"log/slog"

	"github.com/draftgate/draftgate/engine"
	"github.com/draftgate/draftgate/middleware"
	"github.com/draftgate/draftgate/request"
)

// Runner executes one request to a terminal outcome.
type Runner interface {
	Run(ctx context.Context, req *request.Request) *engine.Result
}

// Executor runs a single claimed request through the middleware chain and
// the engine, then persists the request's terminal state.
type Executor struct {
	runner Runner
	store  request.Store
	mw     middleware.Middleware
	logger *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(runner Runner, store request.Store, logger *slog.Logger, mws ...middleware.Middleware) *Executor {
	return &Executor{
		runner: runner,
		store:  store,
		mw:     middleware.Chain(mws...),
		logger: logger,
	}
}

// Execute runs a claimed request. The engine itself never fails; a non-nil
// error here means the middleware chain rejected the run (timeout, panic)
// before an outcome was recorded, and the request is marked failed.
func (e *Executor) Execute(ctx context.Context, req *request.Request) error {
	var res *engine.Result

	terminal := func(ctx context.Context) error {
		res = e.runner.Run(ctx, req)
		req.Complete(res.Job.ID, string(res.Outcome))
		return nil
	}

	err := e.mw(ctx, req, terminal)
	if err != nil {
		req.Fail(err.Error())
	}

	if updateErr := e.store.UpdateRequest(ctx, req); updateErr != nil {
		e.logger.Error("failed to update request after run",
			slog.String("request_id", req.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		if err == nil {
			err = updateErr
		}
	}

	if err == nil && res != nil && res.PersistErr != nil {
		e.logger.Warn("run finished with partial persistence",
			slog.String("request_id", req.ID.String()),
			slog.String("error", res.PersistErr.Error()),
		)
	}

	return err
}
