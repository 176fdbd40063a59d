package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/job"
	"github.com/draftgate/draftgate/request"
	"github.com/draftgate/draftgate/schedule"
)

// ── Request model ─────────────────────────────────────────────────

type requestModel struct {
	bun.BaseModel `bun:"table:draftgate_requests"`

	ID          string     `bun:"id,pk"`
	Queue       string     `bun:"queue,notnull,default:'default'"`
	Brief       []byte     `bun:"brief,type:jsonb"`
	State       string     `bun:"state,notnull,default:'pending'"`
	Priority    int        `bun:"priority,notnull,default:0"`
	LastError   string     `bun:"last_error"`
	WorkerID    string     `bun:"worker_id"`
	RunAt       time.Time  `bun:"run_at,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at"`
	CompletedAt *time.Time `bun:"completed_at"`
	Timeout     int64      `bun:"timeout,notnull,default:0"`
	JobID       string     `bun:"job_id"`
	Outcome     string     `bun:"outcome"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toRequestModel(r *request.Request) (*requestModel, error) {
	briefJSON, err := json.Marshal(r.Brief)
	if err != nil {
		return nil, fmt.Errorf("draftgate/bun: marshal brief: %w", err)
	}
	return &requestModel{
		ID:          r.ID.String(),
		Queue:       r.Queue,
		Brief:       briefJSON,
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
	}, nil
}

func fromRequestModel(m *requestModel) (*request.Request, error) {
	parsedID, err := id.ParseRequestID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("draftgate/bun: parse request id %q: %w", m.ID, err)
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
			return nil, fmt.Errorf("draftgate/bun: unmarshal brief: %w", err)
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
	bun.BaseModel `bun:"table:draftgate_jobs"`

	ID           string     `bun:"id,pk"`
	RequestID    string     `bun:"request_id,notnull"`
	State        string     `bun:"state,notnull,default:'receive'"`
	RescueCount  int        `bun:"rescue_count,notnull,default:0"`
	History      []byte     `bun:"history,type:jsonb"`
	Fingerprints []byte     `bun:"fingerprints,type:jsonb"`
	StartedAt    time.Time  `bun:"started_at,notnull,default:current_timestamp"`
	CompletedAt  *time.Time `bun:"completed_at"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toJobModel(j *job.Job) (*jobModel, error) {
	historyJSON, err := json.Marshal(j.History)
	if err != nil {
		return nil, fmt.Errorf("draftgate/bun: marshal history: %w", err)
	}
	fpJSON, err := json.Marshal(j.Fingerprints)
	if err != nil {
		return nil, fmt.Errorf("draftgate/bun: marshal fingerprints: %w", err)
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
		return nil, fmt.Errorf("draftgate/bun: parse job id %q: %w", m.ID, err)
	}
	parsedRequest, err := id.ParseRequestID(m.RequestID)
	if err != nil {
		return nil, fmt.Errorf("draftgate/bun: parse request id %q: %w", m.RequestID, err)
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
			return nil, fmt.Errorf("draftgate/bun: unmarshal history: %w", err)
		}
	}
	if len(m.Fingerprints) > 0 {
		if err := json.Unmarshal(m.Fingerprints, &j.Fingerprints); err != nil {
			return nil, fmt.Errorf("draftgate/bun: unmarshal fingerprints: %w", err)
		}
	}

	return j, nil
}

// ── Artifact models ───────────────────────────────────────────────
//
// Articles, reports, and run logs are keyed by job. The article keeps its
// rendered HTML as text; reports and run logs are stored whole as JSON.

type articleModel struct {
	bun.BaseModel `bun:"table:draftgate_articles"`

	JobID     string    `bun:"job_id,pk"`
	HTML      string    `bun:"html,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type reportModel struct {
	bun.BaseModel `bun:"table:draftgate_reports"`

	JobID     string    `bun:"job_id,pk"`
	Report    []byte    `bun:"report,type:jsonb"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type runlogModel struct {
	bun.BaseModel `bun:"table:draftgate_runlogs"`

	JobID     string    `bun:"job_id,pk"`
	Snapshot  []byte    `bun:"snapshot,type:jsonb"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ── Schedule model ────────────────────────────────────────────────

type scheduleModel struct {
	bun.BaseModel `bun:"table:draftgate_schedules"`

	ID        string     `bun:"id,pk"`
	Name      string     `bun:"name,notnull,unique"`
	Spec      string     `bun:"spec,notnull"`
	Queue     string     `bun:"queue,notnull,default:'default'"`
	Brief     []byte     `bun:"brief,type:jsonb"`
	Enabled   bool       `bun:"enabled,notnull,default:true"`
	LastRunAt *time.Time `bun:"last_run_at"`
	NextRunAt *time.Time `bun:"next_run_at"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toScheduleModel(e *schedule.Entry) (*scheduleModel, error) {
	briefJSON, err := json.Marshal(e.Brief)
	if err != nil {
		return nil, fmt.Errorf("draftgate/bun: marshal brief: %w", err)
	}
	return &scheduleModel{
		ID:        e.ID.String(),
		Name:      e.Name,
		Spec:      e.Spec,
		Queue:     e.Queue,
		Brief:     briefJSON,
		Enabled:   e.Enabled,
		LastRunAt: e.LastRunAt,
		NextRunAt: e.NextRunAt,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}, nil
}

func fromScheduleModel(m *scheduleModel) (*schedule.Entry, error) {
	parsedID, err := id.ParseScheduleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("draftgate/bun: parse schedule id %q: %w", m.ID, err)
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
			return nil, fmt.Errorf("draftgate/bun: unmarshal brief: %w", err)
		}
		e.Brief = &b
	}

	return e, nil
}
