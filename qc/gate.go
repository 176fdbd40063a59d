package qc

import (
	"fmt"
	"strings"

	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
)

// Criterion names, in evaluation order.
const (
	CriterionPreflight  = "preflight"
	CriterionStructure  = "structure"
	CriterionAnchor     = "anchor_placement"
	CriterionTrust      = "source_trust"
	CriterionIntent     = "intent_alignment"
	CriterionDensity    = "term_density"
	CriterionTone       = "voice_tone"
	CriterionCompliance = "compliance"
)

// FixMarkerAttr is the HTML attribute the auto-fix pass stamps on content
// it inserts or moves. Its presence is evidence that remediation was needed.
const FixMarkerAttr = "data-df-fix"

// Gate evaluates articles against their briefs. A Gate is immutable after
// construction and safe for concurrent use.
type Gate struct {
	cfg Config
}

// NewGate creates a Gate with the given thresholds.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Config returns the gate's thresholds.
func (g *Gate) Config() Config { return g.cfg }

// deduction is one penalty found by a criterion.
type deduction struct {
	points      int
	message     string
	category    Category
	autoFixable bool
	suggestion  string
}

// evaluation is a criterion's raw outcome before scoring.
type evaluation struct {
	name string
	// critical marks the criteria whose blocking failures require human
	// signoff: anchor placement and compliance.
	critical bool
	deds     []deduction
}

// Evaluate runs all eight criteria and aggregates them into a Report.
// The aggregate status is the worst criterion status; the aggregate score
// is the arithmetic mean. Identical inputs yield an identical Report.
func (g *Gate) Evaluate(jobID id.JobID, art *article.Article, b *brief.Brief) *Report {
	an := art.Analyze(b.Target.URL, g.cfg.Density.WindowSentences)

	evals := []evaluation{
		g.evalPreflight(b),
		g.evalStructure(art, an, b),
		g.evalAnchor(an, b),
		g.evalTrust(b),
		g.evalIntent(b),
		g.evalDensity(an, b),
		g.evalTone(art, b),
		g.evalCompliance(art),
	}

	r := &Report{JobID: jobID, Status: StatusPass}

	totalScore := 0
	var criticalNames []string
	var recs []string
	seen := make(map[string]bool)

	for _, ev := range evals {
		score := 100
		for _, d := range ev.deds {
			score -= d.points
		}
		if score < 0 {
			score = 0
		}

		status := StatusPass
		switch {
		case score < g.cfg.BlockedBelow:
			status = StatusBlocked
		case score < g.cfg.WarningBelow:
			status = StatusWarning
		}

		cr := CriterionResult{Name: ev.name, Score: score, Status: status}
		for _, d := range ev.deds {
			cr.Messages = append(cr.Messages, d.message)
		}
		r.Criteria = append(r.Criteria, cr)
		r.Status = WorstStatus(r.Status, status)
		totalScore += score

		r.Issues = append(r.Issues, issuesFor(ev, status)...)

		if status == StatusBlocked && ev.critical {
			criticalNames = append(criticalNames, ev.name)
		}
		if status != StatusPass && len(ev.deds) > 0 {
			rec := fmt.Sprintf("%s: %s", ev.name, ev.deds[0].message)
			if !seen[rec] {
				seen[rec] = true
				recs = append(recs, rec)
			}
		}
	}

	r.Score = (totalScore + len(evals)/2) / len(evals)

	if len(criticalNames) > 0 {
		r.SignoffRequired = true
		r.SignoffReason = "critical failure in " + strings.Join(criticalNames, ", ")
		recs = append([]string{"CRITICAL: " + r.SignoffReason + " — human review required before delivery"}, recs...)
	}
	r.Recommendations = recs

	return r
}

// issuesFor converts a criterion's deductions into issues whose severities
// match the criterion's final status, so the severity-implied aggregate
// status always equals the worst-criterion aggregate. The largest deduction
// of a blocked criterion carries the blocking severity; a blocked critical
// criterion escalates it to critical.
func issuesFor(ev evaluation, status Status) []Issue {
	if len(ev.deds) == 0 {
		return nil
	}

	lead := 0
	for i, d := range ev.deds {
		if d.points > ev.deds[lead].points {
			lead = i
		}
	}

	issues := make([]Issue, 0, len(ev.deds))
	for i, d := range ev.deds {
		sev := SeverityLow
		switch status {
		case StatusBlocked:
			if i == lead {
				sev = SeverityHigh
				if ev.critical {
					sev = SeverityCritical
				}
			} else {
				sev = SeverityMedium
			}
		case StatusWarning:
			sev = SeverityMedium
		}
		issues = append(issues, Issue{
			Category:    d.category,
			Severity:    sev,
			Message:     d.message,
			AutoFixable: d.autoFixable,
			Suggestion:  d.suggestion,
		})
	}
	return issues
}
