// Package qc implements the quality gate: a pure function from a parsed
// article and its brief to a Report aggregating eight independent criteria.
// Identical inputs always yield an identical Report; the gate performs no
// I/O and reads no clocks.
package qc

import (
	"context"
	"time"

	"github.com/draftgate/draftgate/id"
)

// Severity ranks a quality issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// rank orders severities for worst-of comparisons. Higher is worse.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Status is a gate verdict, per criterion and in aggregate.
type Status string

const (
	StatusPass    Status = "pass"
	StatusWarning Status = "warning"
	StatusBlocked Status = "blocked"
)

func (s Status) rank() int {
	switch s {
	case StatusBlocked:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// WorstStatus returns the more severe of a and b.
func WorstStatus(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Category classifies a quality issue by the concern it touches.
type Category string

const (
	CategoryPreflight      Category = "preflight"
	CategoryWordCount      Category = "word_count"
	CategoryContentQuality Category = "content_quality"
	CategoryAnchorRisk     Category = "anchor_risk"
	CategoryLinkPlacement  Category = "link_placement"
	CategoryTrustSources   Category = "trust_sources"
	CategoryIntent         Category = "intent_alignment"
	CategoryLSI            Category = "lsi"
	CategoryCompliance     Category = "compliance"
)

// Issue is one finding from a criterion. Issues are data, never errors: a
// blocked report does not raise.
type Issue struct {
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	AutoFixable bool     `json:"auto_fixable"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// CriterionResult is the sub-result for one of the eight criteria.
type CriterionResult struct {
	Name     string   `json:"name"`
	Score    int      `json:"score"`
	Status   Status   `json:"status"`
	Messages []string `json:"messages,omitempty"`
}

// FixRecord documents one applied auto-fix.
type FixRecord struct {
	ID        id.FixID  `json:"id"`
	Category  Category  `json:"category"`
	FixType   string    `json:"fix_type"`
	Before    string    `json:"before"`
	After     string    `json:"after"`
	Reason    string    `json:"reason"`
	AppliedAt time.Time `json:"applied_at"`
}

// Report is the gate's full verdict for one job run. Reports carry no
// identity of their own — they are keyed by the job that produced them, and
// the gate stays a pure function of its inputs.
type Report struct {
	JobID id.JobID `json:"job_id"`

	Status Status `json:"status"`
	// Score is the arithmetic mean of the eight criterion scores.
	Score int `json:"score"`

	Issues   []Issue           `json:"issues,omitempty"`
	Criteria []CriterionResult `json:"criteria"`

	AutoFixApplied bool        `json:"auto_fix_applied"`
	FixLog         []FixRecord `json:"fix_log,omitempty"`

	SignoffRequired bool   `json:"signoff_required"`
	SignoffReason   string `json:"signoff_reason,omitempty"`

	Recommendations []string `json:"recommendations,omitempty"`
}

// Criterion returns the sub-result with the given name, or nil.
func (r *Report) Criterion(name string) *CriterionResult {
	for i := range r.Criteria {
		if r.Criteria[i].Name == name {
			return &r.Criteria[i]
		}
	}
	return nil
}

// StatusFromIssues derives the status implied by a set of issues, together
// with whether human signoff is required. Any critical issue blocks and
// requires signoff; any high issue blocks; any medium issue warns.
// A well-formed Report always satisfies Status == StatusFromIssues(Issues).
func StatusFromIssues(issues []Issue) (Status, bool) {
	worst := SeverityLow
	hasAny := false
	for _, is := range issues {
		hasAny = true
		if is.Severity.rank() > worst.rank() {
			worst = is.Severity
		}
	}
	switch {
	case worst == SeverityCritical:
		return StatusBlocked, true
	case worst == SeverityHigh:
		return StatusBlocked, false
	case worst == SeverityMedium:
		return StatusWarning, false
	case hasAny:
		return StatusPass, false
	default:
		return StatusPass, false
	}
}

// Store defines the persistence contract for QC reports.
type Store interface {
	// SaveReport persists the report for a job, overwriting any previous one.
	SaveReport(ctx context.Context, r *Report) error

	// GetReport retrieves the report for a job.
	GetReport(ctx context.Context, jobID id.JobID) (*Report, error)
}
