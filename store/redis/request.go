package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/request"
)

// EnqueueRequest stores the request as a Hash and adds it to the queue's
// Sorted Set.
func (s *Store) EnqueueRequest(ctx context.Context, r *request.Request) error {
	rID := r.ID.String()
	key := requestKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("draftgate/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return draftgate.ErrRequestAlreadyExists
	}

	fields, err := requestToMap(r)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, requestIDsKey, rID)

	// Queue sorted set: score = priority (negated for DESC) + time component.
	score := requestScore(r.Priority, r.RunAt)
	pipe.ZAdd(ctx, queueKey(r.Queue), goredis.Z{Score: score, Member: rID})

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("draftgate/redis: enqueue request: %w", err)
	}
	return nil
}

// DequeueRequests atomically pops up to limit requests from the given
// queues and marks them running for the worker.
func (s *Store) DequeueRequests(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*request.Request, error) {
	now := time.Now().UTC()
	var reqs []*request.Request

	for _, q := range queues {
		if len(reqs) >= limit {
			break
		}
		remaining := limit - len(reqs)

		// Pop from sorted set (lowest score = highest priority + earliest RunAt).
		members, err := s.client.ZPopMin(ctx, queueKey(q), int64(remaining)).Result()
		if err != nil {
			return nil, fmt.Errorf("draftgate/redis: dequeue zpopmin: %w", err)
		}

		for _, z := range members {
			rID, ok := z.Member.(string)
			if !ok {
				continue
			}

			key := requestKey(rID)
			_, err := s.client.HSet(ctx, key,
				"state", string(request.StateRunning),
				"worker_id", workerID.String(),
				"started_at", now.Format(time.RFC3339Nano),
				"updated_at", now.Format(time.RFC3339Nano),
			).Result()
			if err != nil {
				return nil, fmt.Errorf("draftgate/redis: dequeue update: %w", err)
			}

			r, getErr := s.getRequestByKey(ctx, key)
			if getErr != nil {
				return nil, getErr
			}
			reqs = append(reqs, r)
		}
	}
	return reqs, nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, requestID id.RequestID) (*request.Request, error) {
	return s.getRequestByKey(ctx, requestKey(requestID.String()))
}

// UpdateRequest persists changes to an existing request.
func (s *Store) UpdateRequest(ctx context.Context, r *request.Request) error {
	key := requestKey(r.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("draftgate/redis: update request exists: %w", err)
	}
	if exists == 0 {
		return draftgate.ErrRequestNotFound
	}

	fields, err := requestToMap(r)
	if err != nil {
		return err
	}
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if _, err = s.client.HSet(ctx, key, fields).Result(); err != nil {
		return fmt.Errorf("draftgate/redis: update request: %w", err)
	}
	return nil
}

// DeleteRequest removes a request by ID.
func (s *Store) DeleteRequest(ctx context.Context, requestID id.RequestID) error {
	rID := requestID.String()
	key := requestKey(rID)

	// Queue name is needed to clear the sorted set entry.
	q, err := s.client.HGet(ctx, key, "queue").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return draftgate.ErrRequestNotFound
		}
		return fmt.Errorf("draftgate/redis: delete request get queue: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, requestIDsKey, rID)
	pipe.ZRem(ctx, queueKey(q), rID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("draftgate/redis: delete request: %w", err)
	}
	return nil
}

// ListRequestsByState returns requests matching the given state.
func (s *Store) ListRequestsByState(ctx context.Context, state request.State, opts request.ListOpts) ([]*request.Request, error) {
	ids, err := s.client.SMembers(ctx, requestIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("draftgate/redis: list requests smembers: %w", err)
	}

	reqs := make([]*request.Request, 0, len(ids))
	for _, rID := range ids {
		r, getErr := s.getRequestByKey(ctx, requestKey(rID))
		if getErr != nil {
			continue // skip missing
		}
		if r.State != state {
			continue
		}
		if opts.Queue != "" && r.Queue != opts.Queue {
			continue
		}
		reqs = append(reqs, r)
	}

	if opts.Offset >= len(reqs) {
		return nil, nil
	}
	if opts.Offset > 0 {
		reqs = reqs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(reqs) {
		reqs = reqs[:opts.Limit]
	}
	return reqs, nil
}

// CountRequests returns the number of requests matching the given options.
func (s *Store) CountRequests(ctx context.Context, opts request.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, requestIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("draftgate/redis: count smembers: %w", err)
	}

	var count int64
	for _, rID := range ids {
		r, getErr := s.getRequestByKey(ctx, requestKey(rID))
		if getErr != nil {
			continue
		}
		if opts.State != "" && r.State != opts.State {
			continue
		}
		if opts.Queue != "" && r.Queue != opts.Queue {
			continue
		}
		count++
	}
	return count, nil
}

// ── helpers ──

// requestScore computes a sorted-set score from priority and run_at.
// Lower score = dequeued first, so priority is negated.
func requestScore(priority int, runAt time.Time) float64 {
	return float64(-priority) + float64(runAt.UnixMilli())/1e15
}

func requestToMap(r *request.Request) (map[string]interface{}, error) {
	briefJSON, err := json.Marshal(r.Brief)
	if err != nil {
		return nil, fmt.Errorf("draftgate/redis: marshal brief: %w", err)
	}

	m := map[string]interface{}{
		"id":         r.ID.String(),
		"queue":      r.Queue,
		"brief":      string(briefJSON),
		"state":      string(r.State),
		"priority":   strconv.Itoa(r.Priority),
		"last_error": r.LastError,
		"worker_id":  r.WorkerID.String(),
		"run_at":     r.RunAt.Format(time.RFC3339Nano),
		"timeout":    strconv.FormatInt(int64(r.Timeout), 10),
		"job_id":     r.JobID.String(),
		"outcome":    r.Outcome,
		"created_at": r.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": r.UpdatedAt.Format(time.RFC3339Nano),
	}
	if r.StartedAt != nil {
		m["started_at"] = r.StartedAt.Format(time.RFC3339Nano)
	}
	if r.CompletedAt != nil {
		m["completed_at"] = r.CompletedAt.Format(time.RFC3339Nano)
	}
	return m, nil
}

func (s *Store) getRequestByKey(ctx context.Context, key string) (*request.Request, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("draftgate/redis: get request: %w", err)
	}
	if len(vals) == 0 {
		return nil, draftgate.ErrRequestNotFound
	}
	return mapToRequest(vals)
}

func mapToRequest(m map[string]string) (*request.Request, error) {
	rID, err := id.ParseRequestID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("draftgate/redis: parse request id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])           //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"])         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	r := &request.Request{
		Entity: draftgate.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:        rID,
		Queue:     m["queue"],
		State:     request.State(m["state"]),
		Priority:  priority,
		LastError: m["last_error"],
		RunAt:     runAt,
		Timeout:   time.Duration(timeout),
		Outcome:   m["outcome"],
	}

	if v := m["brief"]; v != "" && v != "null" {
		var b brief.Brief
		if err := json.Unmarshal([]byte(v), &b); err != nil {
			return nil, fmt.Errorf("draftgate/redis: unmarshal brief: %w", err)
		}
		r.Brief = &b
	}
	if wid := m["worker_id"]; wid != "" {
		r.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if jid := m["job_id"]; jid != "" {
		r.JobID, _ = id.ParseJobID(jid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		r.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		r.CompletedAt = &t
	}

	return r, nil
}
