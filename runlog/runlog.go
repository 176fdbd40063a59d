// Package runlog records the chronological trace of one job run: state
// transitions, gate verdicts, applied fixes, and free-form notes, closed by
// a summary. Recording never fails the run; the log is diagnostic output,
// not control flow.
package runlog

import (
	"context"
	"sync"
	"time"

	"github.com/draftgate/draftgate/id"
)

// EntryType classifies a log entry.
type EntryType string

const (
	EntryStateTransition EntryType = "state_transition"
	EntryQCResult        EntryType = "qc_result"
	EntryAutoFix         EntryType = "autofix"
	EntryError           EntryType = "error"
	EntryWarning         EntryType = "warning"
	EntryInfo            EntryType = "info"
)

// Entry is one recorded event. Seq orders entries within a log even when
// timestamps collide.
type Entry struct {
	Seq     int            `json:"seq"`
	Type    EntryType      `json:"type"`
	Message string         `json:"message"`
	At      time.Time      `json:"at"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Summary closes a log: where the job ended, how long it took, and how many
// entries of each type were recorded.
type Summary struct {
	FinalState  string            `json:"final_state"`
	GateStatus  string            `json:"gate_status,omitempty"`
	Outcome     string            `json:"outcome,omitempty"`
	Counts      map[EntryType]int `json:"counts,omitempty"`
	Duration    time.Duration     `json:"duration"`
	CompletedAt time.Time         `json:"completed_at"`
}

// clone copies the summary, including the counts map, so callers can never
// mutate the log's closed state.
func (s *Summary) clone() *Summary {
	if s == nil {
		return nil
	}
	out := *s
	if s.Counts != nil {
		out.Counts = make(map[EntryType]int, len(s.Counts))
		for k, v := range s.Counts {
			out.Counts[k] = v
		}
	}
	return &out
}

// Log is the execution trace for one job. Safe for concurrent use.
type Log struct {
	ID        id.RunLogID `json:"id"`
	JobID     id.JobID    `json:"job_id"`
	StartedAt time.Time   `json:"started_at"`

	mu      sync.Mutex
	entries []Entry
	summary *Summary
	now     func() time.Time
}

// New creates a log for the given job.
func New(jobID id.JobID) *Log {
	now := func() time.Time { return time.Now().UTC() }
	return &Log{
		ID:        id.NewRunLogID(),
		JobID:     jobID,
		StartedAt: now(),
		now:       now,
	}
}

// SetClock replaces the timestamp source. Tests only.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *Log) append(t EntryType, msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		Seq:     len(l.entries),
		Type:    t,
		Message: msg,
		At:      l.now(),
		Fields:  fields,
	})
}

// Info records a free-form note.
func (l *Log) Info(msg string, fields map[string]any) { l.append(EntryInfo, msg, fields) }

// Warn records a non-fatal anomaly.
func (l *Log) Warn(msg string, fields map[string]any) { l.append(EntryWarning, msg, fields) }

// Error records a failure. The run may still continue; the entry does not.
func (l *Log) Error(msg string, fields map[string]any) { l.append(EntryError, msg, fields) }

// Transition records a state change.
func (l *Log) Transition(from, to string) {
	l.append(EntryStateTransition, "state changed", map[string]any{"from": from, "to": to})
}

// GateResult records a quality-gate verdict.
func (l *Log) GateResult(status string, score int, issues int) {
	l.append(EntryQCResult, "gate evaluated", map[string]any{
		"status": status,
		"score":  score,
		"issues": issues,
	})
}

// AutoFix records one applied fix.
func (l *Log) AutoFix(fixType, reason string) {
	l.append(EntryAutoFix, "fix applied", map[string]any{"fix_type": fixType, "reason": reason})
}

// Finalize closes the log with the run's end state. Calling it twice keeps
// the first summary.
func (l *Log) Finalize(finalState, gateStatus, outcome string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.summary != nil {
		return
	}
	at := l.now()
	counts := make(map[EntryType]int, len(l.entries))
	for i := range l.entries {
		counts[l.entries[i].Type]++
	}
	l.summary = &Summary{
		FinalState:  finalState,
		GateStatus:  gateStatus,
		Outcome:     outcome,
		Counts:      counts,
		Duration:    at.Sub(l.StartedAt),
		CompletedAt: at,
	}
}

// Entries returns a copy of the recorded entries in order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Summary returns the closing summary, or nil while the run is live.
func (l *Log) Summary() *Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summary.clone()
}

// Snapshot is the persisted form of a log.
type Snapshot struct {
	ID        id.RunLogID `json:"id"`
	JobID     id.JobID    `json:"job_id"`
	StartedAt time.Time   `json:"started_at"`
	Entries   []Entry     `json:"entries"`
	Summary   *Summary    `json:"summary,omitempty"`
}

// Snapshot captures the log for persistence.
func (l *Log) Snapshot() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return &Snapshot{
		ID:        l.ID,
		JobID:     l.JobID,
		StartedAt: l.StartedAt,
		Entries:   entries,
		Summary:   l.summary.clone(),
	}
}

// Store defines the persistence contract for run logs.
type Store interface {
	// SaveRunLog persists a snapshot, overwriting any previous one for the
	// same job.
	SaveRunLog(ctx context.Context, s *Snapshot) error

	// GetRunLog retrieves the snapshot for a job.
	GetRunLog(ctx context.Context, jobID id.JobID) (*Snapshot, error)
}
