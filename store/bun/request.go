package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/request"
)

// EnqueueRequest persists a new request in pending state.
func (s *Store) EnqueueRequest(ctx context.Context, r *request.Request) error {
	m, err := toRequestModel(r)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return draftgate.ErrRequestAlreadyExists
		}
		return fmt.Errorf("draftgate/bun: enqueue request: %w", err)
	}
	return nil
}

// DequeueRequests atomically claims up to limit due pending requests from
// the given queues, sets them to running under the given worker, and returns
// them. Uses SELECT FOR UPDATE SKIP LOCKED via raw SQL for concurrent-safe
// dequeue.
func (s *Store) DequeueRequests(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*request.Request, error) {
	var models []requestModel
	_, err := s.db.NewRaw(`
		WITH claimed AS (
			UPDATE draftgate_requests
			SET state = 'running', worker_id = ?0, started_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM draftgate_requests
				WHERE state = 'pending'
				  AND queue = ANY(?1)
				  AND run_at <= NOW()
				ORDER BY priority DESC, run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT ?2
			)
			RETURNING *
		)
		SELECT * FROM claimed ORDER BY priority DESC, run_at ASC`,
		workerID.String(), pgdialect.Array(queues), limit,
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("draftgate/bun: dequeue requests: %w", err)
	}

	requests := make([]*request.Request, 0, len(models))
	for i := range models {
		r, convErr := fromRequestModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("draftgate/bun: dequeue convert: %w", convErr)
		}
		requests = append(requests, r)
	}
	return requests, nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, requestID id.RequestID) (*request.Request, error) {
	m := new(requestModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", requestID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrRequestNotFound
		}
		return nil, fmt.Errorf("draftgate/bun: get request: %w", err)
	}
	return fromRequestModel(m)
}

// UpdateRequest persists changes to an existing request.
func (s *Store) UpdateRequest(ctx context.Context, r *request.Request) error {
	m, err := toRequestModel(r)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("draftgate/bun: update request: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return draftgate.ErrRequestNotFound
	}
	return nil
}

// DeleteRequest removes a request by ID.
func (s *Store) DeleteRequest(ctx context.Context, requestID id.RequestID) error {
	res, err := s.db.NewDelete().
		TableExpr("draftgate_requests").
		Where("id = ?", requestID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("draftgate/bun: delete request: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return draftgate.ErrRequestNotFound
	}
	return nil
}

// ListRequestsByState returns requests matching the given state, newest
// first.
func (s *Store) ListRequestsByState(ctx context.Context, state request.State, opts request.ListOpts) ([]*request.Request, error) {
	var models []requestModel
	q := s.db.NewSelect().Model(&models).
		Where("state = ?", string(state))

	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue)
	}

	q = q.Order("created_at DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("draftgate/bun: list requests by state: %w", err)
	}

	requests := make([]*request.Request, 0, len(models))
	for i := range models {
		r, convErr := fromRequestModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("draftgate/bun: list convert: %w", convErr)
		}
		requests = append(requests, r)
	}
	return requests, nil
}

// CountRequests returns the number of requests matching the options.
func (s *Store) CountRequests(ctx context.Context, opts request.CountOpts) (int64, error) {
	q := s.db.NewSelect().Model((*requestModel)(nil))

	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("draftgate/bun: count requests: %w", err)
	}
	return int64(count), nil
}
