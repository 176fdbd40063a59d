package id_test

import (
	"strings"
	"testing"

	"github.com/draftgate/draftgate/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"RequestID", id.NewRequestID, "req_"},
		{"JobID", id.NewJobID, "job_"},
		{"ReportID", id.NewReportID, "qcr_"},
		{"FixID", id.NewFixID, "fix_"},
		{"RunLogID", id.NewRunLogID, "rlog_"},
		{"ScheduleID", id.NewScheduleID, "sched_"},
		{"WorkerID", id.NewWorkerID, "wkr_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixJob)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixJob {
		t.Errorf("expected prefix %q, got %q", id.PrefixJob, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"RequestID", id.NewRequestID, id.ParseRequestID},
		{"JobID", id.NewJobID, id.ParseJobID},
		{"ReportID", id.NewReportID, id.ParseReportID},
		{"RunLogID", id.NewRunLogID, id.ParseRunLogID},
		{"ScheduleID", id.NewScheduleID, id.ParseScheduleID},
		{"WorkerID", id.NewWorkerID, id.ParseWorkerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := tt.newFn()
			parsed, err := tt.parseFn(orig.String())
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if parsed.String() != orig.String() {
				t.Errorf("round trip mismatch: got %q, want %q", parsed.String(), orig.String())
			}
		})
	}
}

func TestParseWrongPrefix(t *testing.T) {
	jobID := id.NewJobID()
	if _, err := id.ParseRequestID(jobID.String()); err == nil {
		t.Error("expected error parsing job ID as request ID")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error parsing empty string")
	}
}

func TestNilID(t *testing.T) {
	if id.Nil.String() != "" {
		t.Errorf("Nil.String() = %q, want empty", id.Nil.String())
	}
	if !id.Nil.IsNil() {
		t.Error("Nil.IsNil() = false, want true")
	}
}

func TestTextRoundTrip(t *testing.T) {
	orig := id.NewJobID()
	data, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var parsed id.ID
	if err := parsed.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip mismatch: got %q, want %q", parsed.String(), orig.String())
	}
}

func TestScan(t *testing.T) {
	orig := id.NewRequestID()

	var fromString id.ID
	if err := fromString.Scan(orig.String()); err != nil {
		t.Fatalf("Scan(string): %v", err)
	}
	if fromString.String() != orig.String() {
		t.Errorf("Scan(string) = %q, want %q", fromString.String(), orig.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("Scan(nil) should yield Nil ID")
	}

	var fromInt id.ID
	if err := fromInt.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}
