// Package memory is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/job"
	"github.com/draftgate/draftgate/qc"
	"github.com/draftgate/draftgate/request"
	"github.com/draftgate/draftgate/runlog"
	"github.com/draftgate/draftgate/schedule"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ request.Store  = (*Store)(nil)
	_ job.Store      = (*Store)(nil)
	_ article.Store  = (*Store)(nil)
	_ qc.Store       = (*Store)(nil)
	_ runlog.Store   = (*Store)(nil)
	_ schedule.Store = (*Store)(nil)
)

// Store is the in-memory backend.
type Store struct {
	mu sync.RWMutex

	requests  map[string]*request.Request
	jobs      map[string]*job.Job
	articles  map[string]string // job ID -> canonical HTML
	reports   map[string]*qc.Report
	runlogs   map[string]*runlog.Snapshot
	schedules map[string]*schedule.Entry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		requests:  make(map[string]*request.Request),
		jobs:      make(map[string]*job.Job),
		articles:  make(map[string]string),
		reports:   make(map[string]*qc.Report),
		runlogs:   make(map[string]*runlog.Snapshot),
		schedules: make(map[string]*schedule.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Request Store
// ──────────────────────────────────────────────────

// EnqueueRequest persists a new request in pending state.
func (m *Store) EnqueueRequest(_ context.Context, r *request.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.requests[key]; exists {
		return draftgate.ErrRequestAlreadyExists
	}
	cp := *r
	m.requests[key] = &cp
	return nil
}

// DequeueRequests atomically claims up to limit due pending requests.
func (m *Store) DequeueRequests(_ context.Context, queues []string, workerID id.WorkerID, limit int) ([]*request.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	candidates := make([]*request.Request, 0, len(m.requests))
	for _, r := range m.requests {
		if r.State != request.StatePending {
			continue
		}
		if !r.RunAt.IsZero() && r.RunAt.After(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[r.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, r)
	}

	// Sort: priority DESC, RunAt ASC.
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*request.Request, len(candidates))
	for i, r := range candidates {
		r.Start(workerID)
		// Return a copy so callers can mutate without racing with the store.
		cp := *r
		result[i] = &cp
	}
	return result, nil
}

// GetRequest retrieves a request by ID.
func (m *Store) GetRequest(_ context.Context, requestID id.RequestID) (*request.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[requestID.String()]
	if !ok {
		return nil, draftgate.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateRequest persists changes to an existing request.
func (m *Store) UpdateRequest(_ context.Context, r *request.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, ok := m.requests[key]; !ok {
		return draftgate.ErrRequestNotFound
	}
	cp := *r
	m.requests[key] = &cp
	return nil
}

// DeleteRequest removes a request by ID.
func (m *Store) DeleteRequest(_ context.Context, requestID id.RequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := requestID.String()
	if _, ok := m.requests[key]; !ok {
		return draftgate.ErrRequestNotFound
	}
	delete(m.requests, key)
	return nil
}

// ListRequestsByState returns requests in the given state.
func (m *Store) ListRequestsByState(_ context.Context, state request.State, opts request.ListOpts) ([]*request.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*request.Request, 0)
	for _, r := range m.requests {
		if r.State != state {
			continue
		}
		if opts.Queue != "" && r.Queue != opts.Queue {
			continue
		}
		cp := *r
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, k int) bool {
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})
	return paginate(matched, opts.Offset, opts.Limit), nil
}

// CountRequests returns the number of requests matching the options.
func (m *Store) CountRequests(_ context.Context, opts request.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, r := range m.requests {
		if opts.Queue != "" && r.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && r.State != opts.State {
			continue
		}
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// SaveJob persists a job, inserting or overwriting by ID.
func (m *Store) SaveJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *j
	m.jobs[j.ID.String()] = &cp
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, draftgate.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// ListJobsByState returns jobs in the given state, newest first.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, k int) bool {
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})
	return paginate(matched, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Article Store
// ──────────────────────────────────────────────────

// SaveArticle persists the article produced by a job.
func (m *Store) SaveArticle(_ context.Context, jobID id.JobID, a *article.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.articles[jobID.String()] = a.HTML
	return nil
}

// GetArticle retrieves the article for a job.
func (m *Store) GetArticle(_ context.Context, jobID id.JobID) (*article.Article, error) {
	m.mu.RLock()
	html, ok := m.articles[jobID.String()]
	m.mu.RUnlock()
	if !ok {
		return nil, draftgate.ErrArticleNotFound
	}
	return article.Parse(html)
}

// ──────────────────────────────────────────────────
// QC Report Store
// ──────────────────────────────────────────────────

// SaveReport persists the report for a job, overwriting any previous one.
func (m *Store) SaveReport(_ context.Context, r *qc.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.reports[r.JobID.String()] = &cp
	return nil
}

// GetReport retrieves the report for a job.
func (m *Store) GetReport(_ context.Context, jobID id.JobID) (*qc.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[jobID.String()]
	if !ok {
		return nil, draftgate.ErrReportNotFound
	}
	cp := *r
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Run Log Store
// ──────────────────────────────────────────────────

// SaveRunLog persists a snapshot, overwriting any previous one for the job.
func (m *Store) SaveRunLog(_ context.Context, s *runlog.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.runlogs[s.JobID.String()] = &cp
	return nil
}

// GetRunLog retrieves the snapshot for a job.
func (m *Store) GetRunLog(_ context.Context, jobID id.JobID) (*runlog.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.runlogs[jobID.String()]
	if !ok {
		return nil, draftgate.ErrRunLogNotFound
	}
	cp := *s
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Schedule Store
// ──────────────────────────────────────────────────

// RegisterSchedule persists a new entry.
func (m *Store) RegisterSchedule(_ context.Context, e *schedule.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.schedules {
		if existing.Name == e.Name {
			return draftgate.ErrDuplicateSchedule
		}
	}
	cp := *e
	m.schedules[e.ID.String()] = &cp
	return nil
}

// GetSchedule retrieves an entry by ID.
func (m *Store) GetSchedule(_ context.Context, entryID id.ScheduleID) (*schedule.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.schedules[entryID.String()]
	if !ok {
		return nil, draftgate.ErrScheduleNotFound
	}
	cp := *e
	return &cp, nil
}

// ListSchedules returns all entries.
func (m *Store) ListSchedules(_ context.Context) ([]*schedule.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*schedule.Entry, 0, len(m.schedules))
	for _, e := range m.schedules {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}

// UpdateSchedule updates an entry.
func (m *Store) UpdateSchedule(_ context.Context, e *schedule.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.ID.String()
	if _, ok := m.schedules[key]; !ok {
		return draftgate.ErrScheduleNotFound
	}
	cp := *e
	m.schedules[key] = &cp
	return nil
}

// DeleteSchedule removes an entry by ID.
func (m *Store) DeleteSchedule(_ context.Context, entryID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryID.String()
	if _, ok := m.schedules[key]; !ok {
		return draftgate.ErrScheduleNotFound
	}
	delete(m.schedules, key)
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
