package job_test

import (
	"errors"
	"testing"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/job"
)

// walk advances a fresh job along the given path, failing the test on any
// illegal step.
func walk(t *testing.T, states ...job.State) *job.Job {
	t.Helper()
	j := job.New(id.NewRequestID())
	for _, s := range states {
		if err := j.Transition(s, nil); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	return j
}

// ──────────────────────────────────────────────────
// Transition legality
// ──────────────────────────────────────────────────

func TestLegalTransitions(t *testing.T) {
	paths := [][]job.State{
		{job.StateAbort},
		{job.StatePreflight, job.StateAbort},
		{job.StatePreflight, job.StateWrite, job.StateAbort},
		{job.StatePreflight, job.StateWrite, job.StateQC, job.StateDeliver},
		{job.StatePreflight, job.StateWrite, job.StateQC, job.StateAbort},
		{job.StatePreflight, job.StateWrite, job.StateQC, job.StateRescue, job.StateQC, job.StateDeliver},
		{job.StatePreflight, job.StateWrite, job.StateQC, job.StateRescue, job.StateAbort},
	}
	for _, path := range paths {
		j := walk(t, path...)
		if j.State != path[len(path)-1] {
			t.Errorf("state = %s, want %s", j.State, path[len(path)-1])
		}
		if len(j.History) != len(path) {
			t.Errorf("history length = %d, want %d", len(j.History), len(path))
		}
	}
}

func TestIllegalTransitions(t *testing.T) {
	tests := []struct {
		name   string
		setup  []job.State
		target job.State
	}{
		{"receive to write", nil, job.StateWrite},
		{"receive to qc", nil, job.StateQC},
		{"receive to deliver", nil, job.StateDeliver},
		{"receive to rescue", nil, job.StateRescue},
		{"preflight to qc", []job.State{job.StatePreflight}, job.StateQC},
		{"preflight to deliver", []job.State{job.StatePreflight}, job.StateDeliver},
		{"write to deliver", []job.State{job.StatePreflight, job.StateWrite}, job.StateDeliver},
		{"write to rescue", []job.State{job.StatePreflight, job.StateWrite}, job.StateRescue},
		{"qc to write", []job.State{job.StatePreflight, job.StateWrite, job.StateQC}, job.StateWrite},
		{"rescue to deliver", []job.State{job.StatePreflight, job.StateWrite, job.StateQC, job.StateRescue}, job.StateDeliver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := walk(t, tt.setup...)
			before := j.State
			err := j.Transition(tt.target, nil)
			if !errors.Is(err, draftgate.ErrInvalidTransition) {
				t.Fatalf("error = %v, want ErrInvalidTransition", err)
			}
			if j.State != before {
				t.Errorf("state changed on failed transition: %s -> %s", before, j.State)
			}
		})
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	all := []job.State{
		job.StateReceive, job.StatePreflight, job.StateWrite,
		job.StateQC, job.StateRescue, job.StateDeliver, job.StateAbort,
	}

	delivered := walk(t, job.StatePreflight, job.StateWrite, job.StateQC, job.StateDeliver)
	aborted := walk(t, job.StateAbort)

	for _, j := range []*job.Job{delivered, aborted} {
		if !j.Terminal() {
			t.Fatalf("job in %s not terminal", j.State)
		}
		if j.CompletedAt == nil {
			t.Errorf("terminal job %s missing completion time", j.State)
		}
		for _, target := range all {
			if err := j.Transition(target, nil); !errors.Is(err, draftgate.ErrInvalidTransition) {
				t.Errorf("%s -> %s: error = %v, want ErrInvalidTransition", j.State, target, err)
			}
		}
	}
}

// ──────────────────────────────────────────────────
// Rescue cap
// ──────────────────────────────────────────────────

func TestRescueEnterableOnce(t *testing.T) {
	j := walk(t,
		job.StatePreflight, job.StateWrite, job.StateQC,
		job.StateRescue, job.StateQC,
	)
	if j.RescueCount != 1 {
		t.Fatalf("RescueCount = %d, want 1", j.RescueCount)
	}

	err := j.Transition(job.StateRescue, nil)
	if !errors.Is(err, draftgate.ErrRescueLimit) {
		t.Fatalf("second rescue: error = %v, want ErrRescueLimit", err)
	}
	if j.State != job.StateQC {
		t.Errorf("state = %s, want qc (unchanged)", j.State)
	}
	if j.RescueCount != 1 {
		t.Errorf("RescueCount = %d, want 1 (never exceeds the cap)", j.RescueCount)
	}
}

// ──────────────────────────────────────────────────
// Force abort
// ──────────────────────────────────────────────────

func TestForceAbortFromAnyState(t *testing.T) {
	setups := [][]job.State{
		nil,
		{job.StatePreflight},
		{job.StatePreflight, job.StateWrite},
		{job.StatePreflight, job.StateWrite, job.StateQC},
		{job.StatePreflight, job.StateWrite, job.StateQC, job.StateRescue},
	}
	for _, setup := range setups {
		j := walk(t, setup...)
		j.ForceAbort("collaborator failure")
		if j.State != job.StateAbort {
			t.Errorf("after ForceAbort from %v: state = %s", setup, j.State)
		}
		last := j.History[len(j.History)-1]
		if last.Metadata["reason"] != "collaborator failure" {
			t.Errorf("abort reason = %q", last.Metadata["reason"])
		}
	}
}

func TestForceAbortOnTerminalIsNoop(t *testing.T) {
	j := walk(t, job.StatePreflight, job.StateWrite, job.StateQC, job.StateDeliver)
	transitions := len(j.History)
	j.ForceAbort("too late")
	if j.State != job.StateDeliver {
		t.Errorf("state = %s, want deliver", j.State)
	}
	if len(j.History) != transitions {
		t.Error("ForceAbort on a terminal job appended to history")
	}
}

// ──────────────────────────────────────────────────
// Loop detection
// ──────────────────────────────────────────────────

func TestCheckLoopDetectsRepeat(t *testing.T) {
	j := job.New(id.NewRequestID())

	first, err := j.CheckLoop("<p>same article</p>", job.StateWrite)
	if err != nil {
		t.Fatalf("CheckLoop: %v", err)
	}
	second, err := j.CheckLoop("<p>same article</p>", job.StateWrite)
	if err != nil {
		t.Fatalf("CheckLoop: %v", err)
	}
	if first || !second {
		t.Errorf("(first, second) = (%v, %v), want (false, true)", first, second)
	}
}

func TestCheckLoopDifferentContentResets(t *testing.T) {
	j := job.New(id.NewRequestID())

	if loop, _ := j.CheckLoop("draft one", job.StateWrite); loop {
		t.Error("first call returned loop")
	}
	if loop, _ := j.CheckLoop("draft two", job.StateWrite); loop {
		t.Error("different content returned loop")
	}
	// The stored fingerprint is now for "draft two"; the original content
	// no longer matches.
	if loop, _ := j.CheckLoop("draft one", job.StateWrite); loop {
		t.Error("replaced fingerprint still matched old content")
	}
}

func TestCheckLoopLabelsAreIndependent(t *testing.T) {
	j := job.New(id.NewRequestID())

	if _, err := j.CheckLoop("same", job.StateWrite); err != nil {
		t.Fatal(err)
	}
	loop, err := j.CheckLoop("same", job.StateRescue)
	if err != nil {
		t.Fatal(err)
	}
	if loop {
		t.Error("a different label matched the write fingerprint")
	}
	loop, _ = j.CheckLoop("same", job.StateRescue)
	if !loop {
		t.Error("identical content under the same label not detected")
	}
}

func TestFingerprintOrderIndependence(t *testing.T) {
	a := map[string]any{"title": "bikes", "words": 900, "tags": []string{"x", "y"}}
	b := map[string]any{"words": 900, "tags": []string{"x", "y"}, "title": "bikes"}

	fa, err := job.Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := job.Fingerprint(b)
	if err != nil {
		t.Fatal(err)
	}
	if fa != fb {
		t.Errorf("fingerprints differ for equal maps: %s vs %s", fa, fb)
	}

	fc, err := job.Fingerprint(map[string]any{"title": "bikes", "words": 901, "tags": []string{"x", "y"}})
	if err != nil {
		t.Fatal(err)
	}
	if fc == fa {
		t.Error("fingerprints equal for different content")
	}
}

func TestFingerprintStringStability(t *testing.T) {
	f1, _ := job.Fingerprint("hello world")
	f2, _ := job.Fingerprint("hello world")
	f3, _ := job.Fingerprint("hello world!")
	if f1 != f2 {
		t.Error("identical strings produced different fingerprints")
	}
	if f1 == f3 {
		t.Error("different strings produced identical fingerprints")
	}
}
