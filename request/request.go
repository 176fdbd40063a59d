// Package request models queued generation requests: the unit the worker
// pool leases and hands to the engine. A request carries the validated
// brief; the pipeline job it spawns lives in the job package.
package request

import (
	"time"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
)

// State represents the queue lifecycle of a request.
type State string

const (
	// StatePending means the request is waiting to be picked up by a worker.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing the request.
	StateRunning State = "running"
	// StateCompleted means the run finished and produced an outcome.
	StateCompleted State = "completed"
	// StateFailed means the run errored before producing an outcome.
	StateFailed State = "failed"
	// StateCancelled means the request was withdrawn before running.
	StateCancelled State = "cancelled"
)

// Request is one queued article-generation order.
type Request struct {
	draftgate.Entity

	ID        id.RequestID  `json:"id"`
	Queue     string        `json:"queue"`
	Brief     *brief.Brief  `json:"brief"`
	State     State         `json:"state"`
	Priority  int           `json:"priority"`
	LastError string        `json:"last_error,omitempty"`
	WorkerID  id.WorkerID   `json:"worker_id,omitempty"`
	RunAt     time.Time     `json:"run_at"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`

	// JobID and Outcome are set once a run finishes: the pipeline job the
	// run created and how it ended.
	JobID       id.JobID   `json:"job_id,omitempty"`
	Outcome     string     `json:"outcome,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending request for the given brief, runnable immediately.
func New(queue string, b *brief.Brief) *Request {
	r := &Request{
		Entity: draftgate.NewEntity(),
		ID:     id.NewRequestID(),
		Queue:  queue,
		Brief:  b,
		State:  StatePending,
	}
	r.RunAt = r.CreatedAt
	return r
}

// Start marks the request as leased by a worker.
func (r *Request) Start(workerID id.WorkerID) {
	now := time.Now().UTC()
	r.State = StateRunning
	r.WorkerID = workerID
	r.StartedAt = &now
	r.Touch()
}

// Complete records a finished run and its outcome.
func (r *Request) Complete(jobID id.JobID, outcome string) {
	now := time.Now().UTC()
	r.State = StateCompleted
	r.JobID = jobID
	r.Outcome = outcome
	r.CompletedAt = &now
	r.Touch()
}

// Fail records a run that errored before reaching an outcome.
func (r *Request) Fail(errMsg string) {
	now := time.Now().UTC()
	r.State = StateFailed
	r.LastError = errMsg
	r.CompletedAt = &now
	r.Touch()
}

// Cancel withdraws a pending request. Running requests are not interrupted.
func (r *Request) Cancel() bool {
	if r.State != StatePending {
		return false
	}
	r.State = StateCancelled
	r.Touch()
	return true
}

// Terminal reports whether the request has left the queue for good.
func (r *Request) Terminal() bool {
	switch r.State {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}
