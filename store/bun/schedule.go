package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/schedule"
)

// RegisterSchedule persists a new recurring entry. Entry names are unique.
func (s *Store) RegisterSchedule(ctx context.Context, e *schedule.Entry) error {
	m, err := toScheduleModel(e)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return draftgate.ErrDuplicateSchedule
		}
		return fmt.Errorf("draftgate/bun: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves an entry by ID.
func (s *Store) GetSchedule(ctx context.Context, entryID id.ScheduleID) (*schedule.Entry, error) {
	m := new(scheduleModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("draftgate/bun: get schedule: %w", err)
	}
	return fromScheduleModel(m)
}

// ListSchedules returns all entries ordered by name.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	var models []scheduleModel
	err := s.db.NewSelect().Model(&models).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("draftgate/bun: list schedules: %w", err)
	}

	entries := make([]*schedule.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromScheduleModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("draftgate/bun: list convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// UpdateSchedule persists changes to an existing entry.
func (s *Store) UpdateSchedule(ctx context.Context, e *schedule.Entry) error {
	m, err := toScheduleModel(e)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("draftgate/bun: update schedule: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return draftgate.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes an entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error {
	res, err := s.db.NewDelete().
		TableExpr("draftgate_schedules").
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("draftgate/bun: delete schedule: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return draftgate.ErrScheduleNotFound
	}
	return nil
}
