package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/schedule"
)

// ── JSON model for KV storage ──

type scheduleEntity struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Spec      string       `json:"spec"`
	Queue     string       `json:"queue"`
	Brief     *brief.Brief `json:"brief,omitempty"`
	Enabled   bool         `json:"enabled"`
	LastRunAt *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt *time.Time   `json:"next_run_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func toScheduleEntity(e *schedule.Entry) *scheduleEntity {
	return &scheduleEntity{
		ID:        e.ID.String(),
		Name:      e.Name,
		Spec:      e.Spec,
		Queue:     e.Queue,
		Brief:     e.Brief,
		Enabled:   e.Enabled,
		LastRunAt: e.LastRunAt,
		NextRunAt: e.NextRunAt,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func fromScheduleEntity(e *scheduleEntity) (*schedule.Entry, error) {
	eID, err := id.ParseScheduleID(e.ID)
	if err != nil {
		return nil, fmt.Errorf("draftgate/redis: parse schedule id: %w", err)
	}

	return &schedule.Entry{
		Entity: draftgate.Entity{
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		},
		ID:        eID,
		Name:      e.Name,
		Spec:      e.Spec,
		Queue:     e.Queue,
		Brief:     e.Brief,
		Enabled:   e.Enabled,
		LastRunAt: e.LastRunAt,
		NextRunAt: e.NextRunAt,
	}, nil
}

func (s *Store) setSchedule(ctx context.Context, key string, e *scheduleEntity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("draftgate/redis: marshal schedule: %w", err)
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

func (s *Store) getSchedule(ctx context.Context, key string) (*scheduleEntity, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var e scheduleEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("draftgate/redis: unmarshal schedule: %w", err)
	}
	return &e, nil
}

// RegisterSchedule persists a new recurring entry. Entry names are unique.
func (s *Store) RegisterSchedule(ctx context.Context, entry *schedule.Entry) error {
	eID := entry.ID.String()

	// Check for duplicate name.
	existing, err := s.client.HGet(ctx, scheduleNamesKey, entry.Name).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("draftgate/redis: register schedule check name: %w", err)
	}
	if existing != "" {
		return draftgate.ErrDuplicateSchedule
	}

	if err := s.setSchedule(ctx, scheduleKey(eID), toScheduleEntity(entry)); err != nil {
		return fmt.Errorf("draftgate/redis: register schedule set: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, scheduleIDsKey, eID)
	pipe.HSet(ctx, scheduleNamesKey, entry.Name, eID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("draftgate/redis: register schedule indexes: %w", err)
	}
	return nil
}

// GetSchedule retrieves an entry by ID.
func (s *Store) GetSchedule(ctx context.Context, entryID id.ScheduleID) (*schedule.Entry, error) {
	e, err := s.getSchedule(ctx, scheduleKey(entryID.String()))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, draftgate.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("draftgate/redis: get schedule: %w", err)
	}
	return fromScheduleEntity(e)
}

// ListSchedules returns all entries.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	ids, err := s.client.SMembers(ctx, scheduleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("draftgate/redis: list schedules: %w", err)
	}

	entries := make([]*schedule.Entry, 0, len(ids))
	for _, eID := range ids {
		e, getErr := s.getSchedule(ctx, scheduleKey(eID))
		if getErr != nil {
			continue
		}
		entry, convErr := fromScheduleEntity(e)
		if convErr != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// UpdateSchedule persists changes to an existing entry.
func (s *Store) UpdateSchedule(ctx context.Context, entry *schedule.Entry) error {
	key := scheduleKey(entry.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("draftgate/redis: update schedule exists: %w", err)
	}
	if exists == 0 {
		return draftgate.ErrScheduleNotFound
	}

	e := toScheduleEntity(entry)
	e.UpdatedAt = time.Now().UTC()
	if err := s.setSchedule(ctx, key, e); err != nil {
		return fmt.Errorf("draftgate/redis: update schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes an entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error {
	eID := entryID.String()
	key := scheduleKey(eID)

	e, err := s.getSchedule(ctx, key)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return draftgate.ErrScheduleNotFound
		}
		return fmt.Errorf("draftgate/redis: delete schedule get: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, scheduleIDsKey, eID)
	pipe.HDel(ctx, scheduleNamesKey, e.Name)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("draftgate/redis: delete schedule: %w", err)
	}
	return nil
}
