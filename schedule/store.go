package schedule

import (
	"context"

	"github.com/draftgate/draftgate/id"
)

// Store defines the persistence contract for schedule entries.
type Store interface {
	// RegisterSchedule persists a new entry. Returns an error if the name
	// already exists.
	RegisterSchedule(ctx context.Context, e *Entry) error

	// GetSchedule retrieves an entry by ID.
	GetSchedule(ctx context.Context, entryID id.ScheduleID) (*Entry, error)

	// ListSchedules returns all entries.
	ListSchedules(ctx context.Context) ([]*Entry, error)

	// UpdateSchedule updates an entry (Enabled, NextRunAt, LastRunAt, etc.).
	UpdateSchedule(ctx context.Context, e *Entry) error

	// DeleteSchedule removes an entry by ID.
	DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error
}
