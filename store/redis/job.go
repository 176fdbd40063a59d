package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/job"
)

// SaveJob persists a pipeline job as a Hash, inserting or overwriting.
func (s *Store) SaveJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()

	historyJSON, err := json.Marshal(j.History)
	if err != nil {
		return fmt.Errorf("draftgate/redis: marshal history: %w", err)
	}
	fpJSON, err := json.Marshal(j.Fingerprints)
	if err != nil {
		return fmt.Errorf("draftgate/redis: marshal fingerprints: %w", err)
	}

	fields := map[string]interface{}{
		"id":           jID,
		"request_id":   j.RequestID.String(),
		"state":        string(j.State),
		"rescue_count": strconv.Itoa(j.RescueCount),
		"history":      string(historyJSON),
		"fingerprints": string(fpJSON),
		"started_at":   j.StartedAt.Format(time.RFC3339Nano),
		"created_at":   j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.CompletedAt != nil {
		fields["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jID), fields)
	pipe.SAdd(ctx, jobIDsKey, jID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("draftgate/redis: save job: %w", err)
	}
	return nil
}

// GetJob retrieves a pipeline job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, jobKey(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("draftgate/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, draftgate.ErrJobNotFound
	}
	return mapToJob(vals)
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("draftgate/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		vals, getErr := s.client.HGetAll(ctx, jobKey(jID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // skip missing
		}
		j, convErr := mapToJob(vals)
		if convErr != nil {
			continue
		}
		if j.State != state {
			continue
		}
		jobs = append(jobs, j)
	}

	if opts.Offset >= len(jobs) {
		return nil, nil
	}
	if opts.Offset > 0 {
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("draftgate/redis: parse job id: %w", err)
	}
	requestID, err := id.ParseRequestID(m["request_id"])
	if err != nil {
		return nil, fmt.Errorf("draftgate/redis: parse request id: %w", err)
	}

	rescueCount, _ := strconv.Atoi(m["rescue_count"]) //nolint:errcheck // best-effort parse from trusted Redis data

	startedAt, _ := time.Parse(time.RFC3339Nano, m["started_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: draftgate.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          jID,
		RequestID:   requestID,
		State:       job.State(m["state"]),
		RescueCount: rescueCount,
		StartedAt:   startedAt,
	}

	if v := m["history"]; v != "" && v != "null" {
		if err := json.Unmarshal([]byte(v), &j.History); err != nil {
			return nil, fmt.Errorf("draftgate/redis: unmarshal history: %w", err)
		}
	}
	if v := m["fingerprints"]; v != "" && v != "null" {
		if err := json.Unmarshal([]byte(v), &j.Fingerprints); err != nil {
			return nil, fmt.Errorf("draftgate/redis: unmarshal fingerprints: %w", err)
		}
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CompletedAt = &t
	}

	return j, nil
}
