package request

import (
	"context"

	"github.com/draftgate/draftgate/id"
)

// ListOpts controls pagination and filtering for request list queries.
type ListOpts struct {
	// Limit is the maximum number of requests to return. Zero means no limit.
	Limit int
	// Offset is the number of requests to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
}

// CountOpts controls filtering for request count queries.
type CountOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// State filters by request state. Empty means all states.
	State State
}

// Store defines the persistence contract for requests.
type Store interface {
	// EnqueueRequest persists a new request in pending state.
	EnqueueRequest(ctx context.Context, r *Request) error

	// DequeueRequests atomically claims up to limit due pending requests
	// from the given queues, sets them to running under the given worker,
	// and returns them. Requests are ordered by priority (descending) then
	// RunAt (ascending).
	DequeueRequests(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*Request, error)

	// GetRequest retrieves a request by ID.
	GetRequest(ctx context.Context, requestID id.RequestID) (*Request, error)

	// UpdateRequest persists changes to an existing request.
	UpdateRequest(ctx context.Context, r *Request) error

	// DeleteRequest removes a request by ID.
	DeleteRequest(ctx context.Context, requestID id.RequestID) error

	// ListRequestsByState returns requests matching the given state.
	ListRequestsByState(ctx context.Context, state State, opts ListOpts) ([]*Request, error)

	// CountRequests returns the number of requests matching the options.
	CountRequests(ctx context.Context, opts CountOpts) (int64, error)
}
