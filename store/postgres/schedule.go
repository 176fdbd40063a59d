package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/schedule"
)

const scheduleColumns = `
	id, name, spec, queue, brief, enabled, last_run_at, next_run_at,
	created_at, updated_at`

// RegisterSchedule persists a new recurring entry. Entry names are unique.
func (s *Store) RegisterSchedule(ctx context.Context, e *schedule.Entry) error {
	briefJSON, err := json.Marshal(e.Brief)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: marshal brief: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO draftgate_schedules (
			id, name, spec, queue, brief, enabled, last_run_at, next_run_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID.String(), e.Name, e.Spec, e.Queue, briefJSON, e.Enabled,
		e.LastRunAt, e.NextRunAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return draftgate.ErrDuplicateSchedule
		}
		return fmt.Errorf("draftgate/postgres: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves an entry by ID.
func (s *Store) GetSchedule(ctx context.Context, entryID id.ScheduleID) (*schedule.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM draftgate_schedules WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("draftgate/postgres: get schedule: %w", err)
	}
	return e, nil
}

// ListSchedules returns all entries ordered by name.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM draftgate_schedules ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("draftgate/postgres: list schedules: %w", err)
	}
	defer rows.Close()

	var entries []*schedule.Entry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("draftgate/postgres: scan schedule row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("draftgate/postgres: iterate schedule rows: %w", err)
	}
	return entries, nil
}

// UpdateSchedule persists changes to an existing entry.
func (s *Store) UpdateSchedule(ctx context.Context, e *schedule.Entry) error {
	briefJSON, err := json.Marshal(e.Brief)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: marshal brief: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE draftgate_schedules SET
			name = $2, spec = $3, queue = $4, brief = $5, enabled = $6,
			last_run_at = $7, next_run_at = $8, updated_at = NOW()
		WHERE id = $1`,
		e.ID.String(), e.Name, e.Spec, e.Queue, briefJSON, e.Enabled,
		e.LastRunAt, e.NextRunAt,
	)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return draftgate.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes an entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM draftgate_schedules WHERE id = $1`, entryID.String())
	if err != nil {
		return fmt.Errorf("draftgate/postgres: delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return draftgate.ErrScheduleNotFound
	}
	return nil
}

// scanSchedule scans a single schedule row.
func scanSchedule(row pgx.Row) (*schedule.Entry, error) {
	var (
		e         schedule.Entry
		idStr     string
		briefJSON []byte
	)
	err := row.Scan(
		&idStr, &e.Name, &e.Spec, &e.Queue, &briefJSON, &e.Enabled,
		&e.LastRunAt, &e.NextRunAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseScheduleID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("draftgate/postgres: parse schedule id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	if len(briefJSON) > 0 && string(briefJSON) != "null" {
		var b brief.Brief
		if err := json.Unmarshal(briefJSON, &b); err != nil {
			return nil, fmt.Errorf("draftgate/postgres: unmarshal brief: %w", err)
		}
		e.Brief = &b
	}

	return &e, nil
}
