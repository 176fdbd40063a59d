// Package schedule runs recurring briefs: a ticker loop that enqueues a new
// generation request whenever a stored cron entry comes due. Due-time
// bookkeeping lives in the store; the scheduler itself holds no state
// beyond its parsed-expression cache.
package schedule

import (
	"time"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
)

// Entry is one recurring brief.
type Entry struct {
	draftgate.Entity

	ID   id.ScheduleID `json:"id"`
	Name string        `json:"name"`
	// Spec is a 5-field cron expression or a descriptor like "@every 6h".
	Spec      string       `json:"spec"`
	Queue     string       `json:"queue,omitempty"`
	Brief     *brief.Brief `json:"brief"`
	Enabled   bool         `json:"enabled"`
	LastRunAt *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt *time.Time   `json:"next_run_at,omitempty"`
}

// NewEntry creates an enabled entry and stamps its first due time.
func NewEntry(name, spec, queue string, b *brief.Brief) (*Entry, error) {
	sched, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	next := sched.Next(time.Now().UTC())
	return &Entry{
		Entity:    draftgate.NewEntity(),
		ID:        id.NewScheduleID(),
		Name:      name,
		Spec:      spec,
		Queue:     queue,
		Brief:     b,
		Enabled:   true,
		NextRunAt: &next,
	}, nil
}

// Due reports whether the entry should fire at the given instant.
func (e *Entry) Due(now time.Time) bool {
	return e.Enabled && e.NextRunAt != nil && !e.NextRunAt.After(now)
}
