package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/job"
	"github.com/draftgate/draftgate/request"
	"github.com/draftgate/draftgate/schedule"
)

// Briefs, histories, reports, and log snapshots are stored as raw JSON
// blobs rather than native subdocuments so the wire form matches the SQL
// backends and survives ID-type marshaling exactly.

// ── Request model ─────────────────────────────────────────────────

type requestModel struct {
	ID          string     `bson:"_id"`
	Queue       string     `bson:"queue"`
	Brief       []byte     `bson:"brief,omitempty"`
	State       string     `bson:"state"`
	Priority    int        `bson:"priority"`
	LastError   string     `bson:"last_error"`
	WorkerID    string     `bson:"worker_id"`
	RunAt       time.Time  `bson:"run_at"`
	StartedAt   *time.Time `bson:"started_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
	Timeout     int64      `bson:"timeout"`
	JobID       string     `bson:"job_id"`
	Outcome     string     `bson:"outcome"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

func toRequestModel(r *request.Request) (*requestModel, error) {
	m := &requestModel{
		ID:          r.ID.String(),
		Queue:       r.Queue,
		State:       string(r.State),
		Priority:    r.Priority,
		LastError:   r.LastError,
		WorkerID:    r.WorkerID.String(),
		RunAt:       r.RunAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Timeout:     r.Timeout.Nanoseconds(),
		JobID:       r.JobID.String(),
		Outcome:     r.Outcome,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Brief != nil {
		briefJSON, err := json.Marshal(r.Brief)
		if err != nil {
			return nil, fmt.Errorf("draftgate/mongo: marshal brief: %w", err)
		}
		m.Brief = briefJSON
	}
	return m, nil
}

func fromRequestModel(m *requestModel) (*request.Request, error) {
	parsedID, err := id.ParseRequestID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("draftgate/mongo: parse request id %q: %w", m.ID, err)
	}

	r := &request.Request{
		Entity: draftgate.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Queue:       m.Queue,
		State:       request.State(m.State),
		Priority:    m.Priority,
		LastError:   m.LastError,
		RunAt:       m.RunAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		Timeout:     time.Duration(m.Timeout),
		Outcome:     m.Outcome,
	}

	if len(m.Brief) > 0 && string(m.Brief) != "null" {
		var b brief.Brief
		if err := json.Unmarshal(m.Brief, &b); err != nil {
			return nil, fmt.Errorf("draftgate/mongo: unmarshal brief: %w", err)
		}
		r.Brief = &b
	}

	if m.WorkerID != "" {
		parsedWorker, wErr := id.ParseWorkerID(m.WorkerID)
		if wErr == nil {
			r.WorkerID = parsedWorker
		}
	}
	if m.JobID != "" {
		parsedJob, jErr := id.ParseJobID(m.JobID)
		if jErr == nil {
			r.JobID = parsedJob
		}
	}

	return r, nil
}

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	ID           string     `bson:"_id"`
	RequestID    string     `bson:"request_id"`
	State        string     `bson:"state"`
	RescueCount  int        `bson:"rescue_count"`
	History      []byte     `bson:"history,omitempty"`
	Fingerprints []byte     `bson:"fingerprints,omitempty"`
	StartedAt    time.Time  `bson:"started_at"`
	CompletedAt  *time.Time `bson:"completed_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func toJobModel(j *job.Job) (*jobModel, error) {
	historyJSON, err := json.Marshal(j.History)
	if err != nil {
		return nil, fmt.Errorf("draftgate/mongo: marshal history: %w", err)
	}
	fpJSON, err := json.Marshal(j.Fingerprints)
	if err != nil {
		return nil, fmt.Errorf("draftgate/mongo: marshal fingerprints: %w", err)
	}
	return &jobModel{
		ID:           j.ID.String(),
		RequestID:    j.RequestID.String(),
		State:        string(j.State),
		RescueCount:  j.RescueCount,
		History:      historyJSON,
		Fingerprints: fpJSON,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}, nil
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("draftgate/mongo: parse job id %q: %w", m.ID, err)
	}
	parsedRequest, err := id.ParseRequestID(m.RequestID)
	if err != nil {
		return nil, fmt.Errorf("draftgate/mongo: parse request id %q: %w", m.RequestID, err)
	}

	j := &job.Job{
		Entity: draftgate.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		RequestID:   parsedRequest,
		State:       job.State(m.State),
		RescueCount: m.RescueCount,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}

	if len(m.History) > 0 {
		if err := json.Unmarshal(m.History, &j.History); err != nil {
			return nil, fmt.Errorf("draftgate/mongo: unmarshal history: %w", err)
		}
	}
	if len(m.Fingerprints) > 0 {
		if err := json.Unmarshal(m.Fingerprints, &j.Fingerprints); err != nil {
			return nil, fmt.Errorf("draftgate/mongo: unmarshal fingerprints: %w", err)
		}
	}

	return j, nil
}

// ── Artifact models ───────────────────────────────────────────────

type articleModel struct {
	JobID     string    `bson:"_id"`
	HTML      string    `bson:"html"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type reportModel struct {
	JobID     string    `bson:"_id"`
	Report    []byte    `bson:"report"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type runlogModel struct {
	JobID     string    `bson:"_id"`
	Snapshot  []byte    `bson:"snapshot"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// ── Schedule model ────────────────────────────────────────────────

type scheduleModel struct {
	ID        string     `bson:"_id"`
	Name      string     `bson:"name"`
	Spec      string     `bson:"spec"`
	Queue     string     `bson:"queue"`
	Brief     []byte     `bson:"brief,omitempty"`
	Enabled   bool       `bson:"enabled"`
	LastRunAt *time.Time `bson:"last_run_at,omitempty"`
	NextRunAt *time.Time `bson:"next_run_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

func toScheduleModel(e *schedule.Entry) (*scheduleModel, error) {
	m := &scheduleModel{
		ID:        e.ID.String(),
		Name:      e.Name,
		Spec:      e.Spec,
		Queue:     e.Queue,
		Enabled:   e.Enabled,
		LastRunAt: e.LastRunAt,
		NextRunAt: e.NextRunAt,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.Brief != nil {
		briefJSON, err := json.Marshal(e.Brief)
		if err != nil {
			return nil, fmt.Errorf("draftgate/mongo: marshal brief: %w", err)
		}
		m.Brief = briefJSON
	}
	return m, nil
}

func fromScheduleModel(m *scheduleModel) (*schedule.Entry, error) {
	parsedID, err := id.ParseScheduleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("draftgate/mongo: parse schedule id %q: %w", m.ID, err)
	}

	e := &schedule.Entry{
		Entity: draftgate.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        parsedID,
		Name:      m.Name,
		Spec:      m.Spec,
		Queue:     m.Queue,
		Enabled:   m.Enabled,
		LastRunAt: m.LastRunAt,
		NextRunAt: m.NextRunAt,
	}

	if len(m.Brief) > 0 && string(m.Brief) != "null" {
		var b brief.Brief
		if err := json.Unmarshal(m.Brief, &b); err != nil {
			return nil, fmt.Errorf("draftgate/mongo: unmarshal brief: %w", err)
		}
		e.Brief = &b
	}

	return e, nil
}
