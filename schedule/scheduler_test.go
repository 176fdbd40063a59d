package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/schedule"
)

// fakeStore is an in-memory schedule.Store for scheduler tests.
type fakeStore struct {
	mu      sync.Mutex
	entries map[id.ScheduleID]*schedule.Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[id.ScheduleID]*schedule.Entry)}
}

func (s *fakeStore) RegisterSchedule(_ context.Context, e *schedule.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return nil
}

func (s *fakeStore) GetSchedule(_ context.Context, entryID id.ScheduleID) (*schedule.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[entryID], nil
}

func (s *fakeStore) ListSchedules(_ context.Context) ([]*schedule.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schedule.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeStore) UpdateSchedule(_ context.Context, e *schedule.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return nil
}

func (s *fakeStore) DeleteSchedule(_ context.Context, entryID id.ScheduleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, entryID)
	return nil
}

func TestNewEntryStampsNextRun(t *testing.T) {
	e, err := schedule.NewEntry("weekly-roundup", "@every 1h", "default", &brief.Brief{})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if !e.Enabled {
		t.Error("new entry disabled")
	}
	if e.NextRunAt == nil || !e.NextRunAt.After(time.Now().UTC().Add(50*time.Minute)) {
		t.Errorf("next_run_at = %v, want about an hour out", e.NextRunAt)
	}
}

func TestNewEntryRejectsBadSpec(t *testing.T) {
	if _, err := schedule.NewEntry("broken", "every day at noon", "default", &brief.Brief{}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTickFiresDueEntryAndReschedules(t *testing.T) {
	store := newFakeStore()
	e, err := schedule.NewEntry("hourly", "@every 1h", "default", &brief.Brief{Anchor: brief.AnchorProfile{Text: "x"}})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	e.NextRunAt = &past
	if err := store.RegisterSchedule(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	var fired []string
	enqueue := func(_ context.Context, queue string, b *brief.Brief) (id.RequestID, error) {
		fired = append(fired, queue)
		if b == e.Brief {
			t.Error("enqueue received the stored brief, want a clone")
		}
		return id.NewRequestID(), nil
	}

	s := schedule.NewScheduler(store, enqueue, nil)
	now := time.Now().UTC()
	s.Tick(context.Background(), now)

	if len(fired) != 1 || fired[0] != "default" {
		t.Fatalf("fired = %v, want one default enqueue", fired)
	}

	got, _ := store.GetSchedule(context.Background(), e.ID)
	if got.LastRunAt == nil || !got.LastRunAt.Equal(now) {
		t.Errorf("last_run_at = %v, want %v", got.LastRunAt, now)
	}
	if got.NextRunAt == nil || !got.NextRunAt.After(now) {
		t.Errorf("next_run_at = %v, want after %v", got.NextRunAt, now)
	}

	// Rescheduled: the same tick instant must not fire again.
	s.Tick(context.Background(), now)
	if len(fired) != 1 {
		t.Errorf("fired %d times after second tick, want 1", len(fired))
	}
}

func TestTickSkipsDisabledEntries(t *testing.T) {
	store := newFakeStore()
	e, err := schedule.NewEntry("paused", "@every 1h", "default", &brief.Brief{})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	e.NextRunAt = &past
	e.Enabled = false
	_ = store.RegisterSchedule(context.Background(), e)

	fired := 0
	enqueue := func(_ context.Context, _ string, _ *brief.Brief) (id.RequestID, error) {
		fired++
		return id.NewRequestID(), nil
	}

	s := schedule.NewScheduler(store, enqueue, nil)
	s.Tick(context.Background(), time.Now().UTC())
	if fired != 0 {
		t.Errorf("disabled entry fired %d times", fired)
	}
}
