package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/job"
)

const jobColumns = `
	id, request_id, state, rescue_count, history, fingerprints,
	started_at, completed_at, created_at, updated_at`

// SaveJob persists a job, inserting or overwriting by ID.
func (s *Store) SaveJob(ctx context.Context, j *job.Job) error {
	historyJSON, err := json.Marshal(j.History)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: marshal history: %w", err)
	}
	fpJSON, err := json.Marshal(j.Fingerprints)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: marshal fingerprints: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO draftgate_jobs (
			id, request_id, state, rescue_count, history, fingerprints,
			started_at, completed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			rescue_count = EXCLUDED.rescue_count,
			history = EXCLUDED.history,
			fingerprints = EXCLUDED.fingerprints,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at`,
		j.ID.String(), j.RequestID.String(), string(j.State), j.RescueCount,
		historyJSON, fpJSON,
		j.StartedAt, j.CompletedAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: save job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM draftgate_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrJobNotFound
		}
		return nil, fmt.Errorf("draftgate/postgres: get job: %w", err)
	}
	return j, nil
}

// ListJobsByState returns jobs matching the given state, newest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM draftgate_jobs WHERE state = $1 ORDER BY created_at DESC`
	args := []any{string(state)}
	argIdx := 2

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
		return nil, fmt.Errorf("draftgate/postgres: list jobs by state: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("draftgate/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("draftgate/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j           job.Job
		idStr       string
		requestStr  string
		stateStr    string
		historyJSON []byte
		fpJSON      []byte
	)
	err := row.Scan(
		&idStr, &requestStr, &stateStr, &j.RescueCount,
		&historyJSON, &fpJSON,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(stateStr)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("draftgate/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	parsedRequest, parseErr := id.ParseRequestID(requestStr)
	if parseErr != nil {
		return nil, fmt.Errorf("draftgate/postgres: parse request id %q: %w", requestStr, parseErr)
	}
	j.RequestID = parsedRequest

	if err := json.Unmarshal(historyJSON, &j.History); err != nil {
		return nil, fmt.Errorf("draftgate/postgres: unmarshal history: %w", err)
	}
	if err := json.Unmarshal(fpJSON, &j.Fingerprints); err != nil {
		return nil, fmt.Errorf("draftgate/postgres: unmarshal fingerprints: %w", err)
	}

	return &j, nil
}
