package job

import (
	"context"

	"github.com/draftgate/draftgate/id"
)

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Store defines the persistence contract for job runs.
type Store interface {
	// SaveJob persists a job, inserting or overwriting by ID. The engine
	// saves once at the end of a run; intermediate states are never stored.
	SaveJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobsByState returns jobs in the given state, newest first.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)
}
