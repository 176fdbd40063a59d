package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/job"
	"github.com/draftgate/draftgate/qc"
	"github.com/draftgate/draftgate/request"
	"github.com/draftgate/draftgate/runlog"
	"github.com/draftgate/draftgate/schedule"
)

func testBrief() *brief.Brief {
	return &brief.Brief{RequestID: id.NewRequestID()}
}

// ──────────────────────────────────────────────────
// Requests
// ──────────────────────────────────────────────────

func TestEnqueueAndGetRequest(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := request.New("content", testBrief())
	if err := s.EnqueueRequest(ctx, r); err != nil {
		t.Fatalf("EnqueueRequest() error = %v", err)
	}

	got, err := s.GetRequest(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if got.ID != r.ID {
		t.Errorf("ID = %v, want %v", got.ID, r.ID)
	}
	if got.State != request.StatePending {
		t.Errorf("State = %v, want %v", got.State, request.StatePending)
	}
}

func TestEnqueueDuplicateRequest(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := request.New("content", testBrief())
	if err := s.EnqueueRequest(ctx, r); err != nil {
		t.Fatalf("EnqueueRequest() error = %v", err)
	}
	if err := s.EnqueueRequest(ctx, r); !errors.Is(err, draftgate.ErrRequestAlreadyExists) {
		t.Errorf("second EnqueueRequest() error = %v, want ErrRequestAlreadyExists", err)
	}
}

func TestGetRequestNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetRequest(context.Background(), id.NewRequestID()); !errors.Is(err, draftgate.ErrRequestNotFound) {
		t.Errorf("GetRequest() error = %v, want ErrRequestNotFound", err)
	}
}

func TestDequeueClaimsByPriorityThenRunAt(t *testing.T) {
	s := New()
	ctx := context.Background()

	low := request.New("content", testBrief())
	low.Priority = 1
	high := request.New("content", testBrief())
	high.Priority = 10
	older := request.New("content", testBrief())
	older.Priority = 10
	older.RunAt = high.RunAt.Add(-time.Minute)

	for _, r := range []*request.Request{low, high, older} {
		if err := s.EnqueueRequest(ctx, r); err != nil {
			t.Fatalf("EnqueueRequest() error = %v", err)
		}
	}

	workerID := id.NewWorkerID()
	got, err := s.DequeueRequests(ctx, []string{"content"}, workerID, 2)
	if err != nil {
		t.Fatalf("DequeueRequests() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("dequeued %d requests, want 2", len(got))
	}
	if got[0].ID != older.ID {
		t.Errorf("first dequeued = %v, want %v (older high-priority)", got[0].ID, older.ID)
	}
	if got[1].ID != high.ID {
		t.Errorf("second dequeued = %v, want %v", got[1].ID, high.ID)
	}
	for _, r := range got {
		if r.State != request.StateRunning {
			t.Errorf("dequeued request state = %v, want %v", r.State, request.StateRunning)
		}
		if r.WorkerID != workerID {
			t.Errorf("WorkerID = %v, want %v", r.WorkerID, workerID)
		}
	}

	// Claimed requests must not be handed out twice.
	again, err := s.DequeueRequests(ctx, []string{"content"}, workerID, 10)
	if err != nil {
		t.Fatalf("second DequeueRequests() error = %v", err)
	}
	if len(again) != 1 || again[0].ID != low.ID {
		t.Errorf("second dequeue returned %d requests, want only the low-priority one", len(again))
	}
}

func TestDequeueSkipsFutureAndOtherQueues(t *testing.T) {
	s := New()
	ctx := context.Background()

	future := request.New("content", testBrief())
	future.RunAt = time.Now().UTC().Add(time.Hour)
	other := request.New("newsletter", testBrief())

	for _, r := range []*request.Request{future, other} {
		if err := s.EnqueueRequest(ctx, r); err != nil {
			t.Fatalf("EnqueueRequest() error = %v", err)
		}
	}

	got, err := s.DequeueRequests(ctx, []string{"content"}, id.NewWorkerID(), 10)
	if err != nil {
		t.Fatalf("DequeueRequests() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("dequeued %d requests, want 0", len(got))
	}
}

func TestUpdateRequestIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := request.New("content", testBrief())
	if err := s.EnqueueRequest(ctx, r); err != nil {
		t.Fatalf("EnqueueRequest() error = %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	r.Priority = 99
	got, err := s.GetRequest(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if got.Priority == 99 {
		t.Error("store shares memory with the caller's request")
	}

	r.Fail("boom")
	if err := s.UpdateRequest(ctx, r); err != nil {
		t.Fatalf("UpdateRequest() error = %v", err)
	}
	got, _ = s.GetRequest(ctx, r.ID)
	if got.State != request.StateFailed || got.LastError != "boom" {
		t.Errorf("after update: state = %v lastError = %q", got.State, got.LastError)
	}
}

func TestListAndCountRequests(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := request.New("content", testBrief())
		if err := s.EnqueueRequest(ctx, r); err != nil {
			t.Fatalf("EnqueueRequest() error = %v", err)
		}
	}
	other := request.New("newsletter", testBrief())
	if err := s.EnqueueRequest(ctx, other); err != nil {
		t.Fatalf("EnqueueRequest() error = %v", err)
	}

	got, err := s.ListRequestsByState(ctx, request.StatePending, request.ListOpts{Queue: "content", Limit: 2})
	if err != nil {
		t.Fatalf("ListRequestsByState() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("listed %d requests, want 2", len(got))
	}

	n, err := s.CountRequests(ctx, request.CountOpts{Queue: "content"})
	if err != nil {
		t.Fatalf("CountRequests() error = %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestDeleteRequest(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := request.New("content", testBrief())
	if err := s.EnqueueRequest(ctx, r); err != nil {
		t.Fatalf("EnqueueRequest() error = %v", err)
	}
	if err := s.DeleteRequest(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRequest() error = %v", err)
	}
	if _, err := s.GetRequest(ctx, r.ID); !errors.Is(err, draftgate.ErrRequestNotFound) {
		t.Errorf("GetRequest() after delete error = %v, want ErrRequestNotFound", err)
	}
	if err := s.DeleteRequest(ctx, r.ID); !errors.Is(err, draftgate.ErrRequestNotFound) {
		t.Errorf("second DeleteRequest() error = %v, want ErrRequestNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Jobs, articles, reports, run logs
// ──────────────────────────────────────────────────

func TestSaveAndGetJob(t *testing.T) {
	s := New()
	ctx := context.Background()

	j := job.New(id.NewRequestID())
	if err := s.SaveJob(ctx, j); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.ID != j.ID {
		t.Errorf("ID = %v, want %v", got.ID, j.ID)
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, draftgate.ErrJobNotFound) {
		t.Errorf("GetJob() for unknown ID error = %v, want ErrJobNotFound", err)
	}
}

func TestSaveAndGetArticle(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, err := article.Parse(`<p>A short body with a <a href="https://example.com">link</a> inside.</p>`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	jobID := id.NewJobID()
	if err := s.SaveArticle(ctx, jobID, a); err != nil {
		t.Fatalf("SaveArticle() error = %v", err)
	}

	got, err := s.GetArticle(ctx, jobID)
	if err != nil {
		t.Fatalf("GetArticle() error = %v", err)
	}
	if got.HTML != a.HTML {
		t.Errorf("HTML round trip mismatch:\ngot  %q\nwant %q", got.HTML, a.HTML)
	}

	if _, err := s.GetArticle(ctx, id.NewJobID()); !errors.Is(err, draftgate.ErrArticleNotFound) {
		t.Errorf("GetArticle() for unknown job error = %v, want ErrArticleNotFound", err)
	}
}

func TestSaveAndGetReport(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := &qc.Report{JobID: id.NewJobID(), Status: qc.StatusPass, Score: 100}
	if err := s.SaveReport(ctx, r); err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}

	got, err := s.GetReport(ctx, r.JobID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.Status != qc.StatusPass || got.Score != 100 {
		t.Errorf("report = %v/%d, want pass/100", got.Status, got.Score)
	}

	if _, err := s.GetReport(ctx, id.NewJobID()); !errors.Is(err, draftgate.ErrReportNotFound) {
		t.Errorf("GetReport() for unknown job error = %v, want ErrReportNotFound", err)
	}
}

func TestSaveAndGetRunLog(t *testing.T) {
	s := New()
	ctx := context.Background()

	jobID := id.NewJobID()
	l := runlog.New(jobID)
	l.Info("request received", nil)
	snap := l.Snapshot()

	if err := s.SaveRunLog(ctx, snap); err != nil {
		t.Fatalf("SaveRunLog() error = %v", err)
	}

	got, err := s.GetRunLog(ctx, jobID)
	if err != nil {
		t.Fatalf("GetRunLog() error = %v", err)
	}
	if len(got.Entries) != 1 {
		t.Errorf("entries = %d, want 1", len(got.Entries))
	}

	if _, err := s.GetRunLog(ctx, id.NewJobID()); !errors.Is(err, draftgate.ErrRunLogNotFound) {
		t.Errorf("GetRunLog() for unknown job error = %v, want ErrRunLogNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Schedules
// ──────────────────────────────────────────────────

func TestRegisterAndListSchedules(t *testing.T) {
	s := New()
	ctx := context.Background()

	b, err := schedule.NewEntry("weekly-roundup", "0 9 * * 1", "content", testBrief())
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}
	a, err := schedule.NewEntry("daily-brief", "@daily", "content", testBrief())
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}

	if err := s.RegisterSchedule(ctx, b); err != nil {
		t.Fatalf("RegisterSchedule() error = %v", err)
	}
	if err := s.RegisterSchedule(ctx, a); err != nil {
		t.Fatalf("RegisterSchedule() error = %v", err)
	}

	dup, _ := schedule.NewEntry("daily-brief", "@daily", "content", testBrief())
	if err := s.RegisterSchedule(ctx, dup); !errors.Is(err, draftgate.ErrDuplicateSchedule) {
		t.Errorf("duplicate RegisterSchedule() error = %v, want ErrDuplicateSchedule", err)
	}

	got, err := s.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("ListSchedules() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("listed %d schedules, want 2", len(got))
	}
	if got[0].Name != "daily-brief" || got[1].Name != "weekly-roundup" {
		t.Errorf("list order = [%s, %s], want name-sorted", got[0].Name, got[1].Name)
	}
}

func TestUpdateAndDeleteSchedule(t *testing.T) {
	s := New()
	ctx := context.Background()

	e, err := schedule.NewEntry("daily-brief", "@daily", "content", testBrief())
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}
	if err := s.RegisterSchedule(ctx, e); err != nil {
		t.Fatalf("RegisterSchedule() error = %v", err)
	}

	e.Enabled = false
	if err := s.UpdateSchedule(ctx, e); err != nil {
		t.Fatalf("UpdateSchedule() error = %v", err)
	}
	got, err := s.GetSchedule(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if got.Enabled {
		t.Error("Enabled = true after disabling update")
	}

	if err := s.DeleteSchedule(ctx, e.ID); err != nil {
		t.Fatalf("DeleteSchedule() error = %v", err)
	}
	if _, err := s.GetSchedule(ctx, e.ID); !errors.Is(err, draftgate.ErrScheduleNotFound) {
		t.Errorf("GetSchedule() after delete error = %v, want ErrScheduleNotFound", err)
	}
}
