package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/request"
)

const requestColumns = `
	id, queue, brief, state, priority, last_error, worker_id,
	run_at, started_at, completed_at, timeout, job_id, outcome,
	created_at, updated_at`

// EnqueueRequest persists a new request in pending state.
func (s *Store) EnqueueRequest(ctx context.Context, r *request.Request) error {
	briefJSON, err := json.Marshal(r.Brief)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: marshal brief: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO draftgate_requests (
			id, queue, brief, state, priority, last_error, worker_id,
			run_at, started_at, completed_at, timeout, job_id, outcome,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15
		)`,
		r.ID.String(), r.Queue, briefJSON, string(r.State),
		r.Priority, r.LastError, r.WorkerID.String(),
		r.RunAt, r.StartedAt, r.CompletedAt, r.Timeout.Nanoseconds(),
		r.JobID.String(), r.Outcome,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return draftgate.ErrRequestAlreadyExists
		}
		return fmt.Errorf("draftgate/postgres: enqueue request: %w", err)
	}
	return nil
}

// DequeueRequests atomically claims up to limit due pending requests from
// the given queues, marking them running for the worker.
func (s *Store) DequeueRequests(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*request.Request, error) {
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE draftgate_requests
			SET state = 'running', worker_id = $3, started_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM draftgate_requests
				WHERE state = 'pending'
				  AND queue = ANY($1)
				  AND run_at <= NOW()
				ORDER BY priority DESC, run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING `+requestColumns+`
		)
		SELECT * FROM claimed ORDER BY priority DESC, run_at ASC`,
		queues, limit, workerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("draftgate/postgres: dequeue requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, requestID id.RequestID) (*request.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM draftgate_requests WHERE id = $1`,
		requestID.String(),
	)

	r, err := scanRequest(row)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrRequestNotFound
		}
		return nil, fmt.Errorf("draftgate/postgres: get request: %w", err)
	}
	return r, nil
}

// UpdateRequest persists changes to an existing request.
func (s *Store) UpdateRequest(ctx context.Context, r *request.Request) error {
	briefJSON, err := json.Marshal(r.Brief)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: marshal brief: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE draftgate_requests SET
			queue = $2, brief = $3, state = $4, priority = $5,
			last_error = $6, worker_id = $7, run_at = $8, started_at = $9,
			completed_at = $10, timeout = $11, job_id = $12, outcome = $13,
			updated_at = NOW()
		WHERE id = $1`,
		r.ID.String(), r.Queue, briefJSON, string(r.State), r.Priority,
		r.LastError, r.WorkerID.String(), r.RunAt, r.StartedAt,
		r.CompletedAt, r.Timeout.Nanoseconds(), r.JobID.String(), r.Outcome,
	)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: update request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return draftgate.ErrRequestNotFound
	}
	return nil
}

// DeleteRequest removes a request by ID.
func (s *Store) DeleteRequest(ctx context.Context, requestID id.RequestID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM draftgate_requests WHERE id = $1`, requestID.String())
	if err != nil {
		return fmt.Errorf("draftgate/postgres: delete request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return draftgate.ErrRequestNotFound
	}
	return nil
}

// ListRequestsByState returns requests matching the given state, newest
// first.
func (s *Store) ListRequestsByState(ctx context.Context, state request.State, opts request.ListOpts) ([]*request.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM draftgate_requests WHERE state = $1`
	args := []any{string(state)}
	argIdx := 2

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("draftgate/postgres: list requests by state: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// CountRequests returns the number of requests matching the given options.
func (s *Store) CountRequests(ctx context.Context, opts request.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM draftgate_requests WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("draftgate/postgres: count requests: %w", err)
	}
	return count, nil
}

// scanRequest scans a single request row.
func scanRequest(row pgx.Row) (*request.Request, error) {
	var (
		r         request.Request
		idStr     string
		briefJSON []byte
		stateStr  string
		workerStr string
		jobStr    string
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &r.Queue, &briefJSON, &stateStr,
		&r.Priority, &r.LastError, &workerStr,
		&r.RunAt, &r.StartedAt, &r.CompletedAt, &timeoutNs,
		&jobStr, &r.Outcome,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.State = request.State(stateStr)
	r.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseRequestID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("draftgate/postgres: parse request id %q: %w", idStr, parseErr)
	}
	r.ID = parsedID

	if len(briefJSON) > 0 && string(briefJSON) != "null" {
		var b brief.Brief
		if err := json.Unmarshal(briefJSON, &b); err != nil {
			return nil, fmt.Errorf("draftgate/postgres: unmarshal brief: %w", err)
		}
		r.Brief = &b
	}

	if workerStr != "" {
		if parsedWorker, workerErr := id.ParseWorkerID(workerStr); workerErr == nil {
			r.WorkerID = parsedWorker
		}
	}
	if jobStr != "" {
		if parsedJob, jobErr := id.ParseJobID(jobStr); jobErr == nil {
			r.JobID = parsedJob
		}
	}

	return &r, nil
}

// collectRequests collects all requests from query rows.
func collectRequests(rows pgx.Rows) ([]*request.Request, error) {
	var reqs []*request.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("draftgate/postgres: scan request row: %w", err)
		}
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("draftgate/postgres: iterate request rows: %w", err)
	}
	return reqs, nil
}
