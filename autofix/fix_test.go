package autofix_test

import (
	"strings"
	"testing"
	"time"

	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/autofix"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/qc"
)

const headingAnchorHTML = `
<h1>Why <a href="https://shop.example.com/bikes">a reliable commuter bike</a> matters</h1>
<p>City commuting rewards a well kept bike. Check the tire, the frame, the
saddle, the gear ratio and your cadence every week. Routine maintenance keeps
the drivetrain quiet.</p>
<h2>Simple Maintenance</h2>
<p>Wipe the chain after wet rides. A drop of lube goes a long way. Commuting
stays fun when the bike stays ready.</p>
`

func fixBrief() *brief.Brief {
	return &brief.Brief{
		RequestID: id.NewRequestID(),
		Publisher: brief.PublisherProfile{Domain: "cityrides.example", Topic: "cycling"},
		Target:    brief.TargetProfile{URL: "https://shop.example.com/bikes", Topic: "commuter bikes"},
		Anchor: brief.AnchorProfile{
			Text:       "a reliable commuter bike",
			RiskTier:   brief.RiskLow,
			BridgeType: brief.BridgePivot,
		},
		Intent: &brief.IntentAlignment{
			Overall:         brief.AlignmentAligned,
			BridgeTypeMatch: true,
			Confidence:      0.9,
		},
		Trust: &brief.TrustPolicy{
			Sources: []brief.TrustSource{{URL: "https://transport.gov.example/stats", Tier: brief.TierAuthority, Resolved: true}},
		},
		NearWindow: &brief.NearWindowPlan{
			SupportingTerms: []string{"tire", "frame", "saddle", "gear", "cadence", "chain", "lube", "drivetrain"},
			WindowSentences: 3,
		},
		Constraints: &brief.Constraints{
			MinWords:       40,
			ReadabilityMin: 0,
			ReadabilityMax: 120,
		},
	}
}

func parse(t *testing.T, html string) *article.Article {
	t.Helper()
	a, err := article.Parse(html)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return a
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestApplyRelocatesHeadingAnchor(t *testing.T) {
	cfg := qc.DefaultConfig()
	b := fixBrief()
	art := parse(t, headingAnchorHTML)
	report := qc.NewGate(cfg).Evaluate(id.NewJobID(), art, b)
	if report.Status != qc.StatusBlocked {
		t.Fatalf("precondition: status = %s, want blocked", report.Status)
	}

	fixer := autofix.NewFixer(cfg)
	fixer.SetClock(fixedClock())
	fixed, records, err := fixer.Apply(art, report, b)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.FixType != autofix.FixRelocateAnchor {
		t.Errorf("fix type = %s, want %s", rec.FixType, autofix.FixRelocateAnchor)
	}
	if rec.AppliedAt != fixedClock()() {
		t.Errorf("applied at = %v, want the fixed clock", rec.AppliedAt)
	}
	if !strings.Contains(fixed.HTML, qc.FixMarkerAttr) {
		t.Error("fixed article missing the fix marker")
	}

	an := fixed.Analyze(b.Target.URL, cfg.Density.WindowSentences)
	if !an.Anchor.Found {
		t.Fatal("anchor lost during relocation")
	}
	if an.Anchor.HeadingLevel != 0 {
		t.Errorf("anchor still under an h%d", an.Anchor.HeadingLevel)
	}

	recheck := qc.NewGate(cfg).Evaluate(id.NewJobID(), fixed, b)
	if cr := recheck.Criterion(qc.CriterionAnchor); cr.Status != qc.StatusPass {
		t.Errorf("anchor criterion after fix = %s, want pass", cr.Status)
	}
	if recheck.Status != qc.StatusPass {
		t.Errorf("status after fix = %s, want pass: %v", recheck.Status, recheck.Recommendations)
	}
}

func TestApplyInjectsMissingTerms(t *testing.T) {
	cfg := qc.DefaultConfig()
	b := fixBrief()
	b.NearWindow.SupportingTerms = []string{"derailleur", "crankset", "headset", "spokes", "hub", "pannier"}

	html := strings.Replace(headingAnchorHTML,
		`<h1>Why <a href="https://shop.example.com/bikes">a reliable commuter bike</a> matters</h1>`,
		`<h1>Commuting by Bike</h1>
<p>Many city riders eventually look for <a href="https://shop.example.com/bikes">a reliable commuter bike</a> that lasts. It is a fair goal.</p>`, 1)
	art := parse(t, html)
	report := qc.NewGate(cfg).Evaluate(id.NewJobID(), art, b)

	fixer := autofix.NewFixer(cfg)
	fixer.SetClock(fixedClock())
	fixed, records, err := fixer.Apply(art, report, b)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	var injected bool
	for _, rec := range records {
		if rec.FixType == autofix.FixInjectTerms {
			injected = true
		}
	}
	if !injected {
		t.Fatalf("no term injection in %+v", records)
	}

	an := fixed.Analyze(b.Target.URL, cfg.Density.WindowSentences)
	if got := article.TermMatches(an.NearWindow, b.NearWindow.SupportingTerms); got < cfg.Density.MinTerms {
		t.Errorf("matches after fix = %d, want at least %d", got, cfg.Density.MinTerms)
	}
}

func TestApplyInsertsDisclaimer(t *testing.T) {
	cfg := qc.DefaultConfig()
	b := fixBrief()
	html := strings.Replace(headingAnchorHTML,
		"Wipe the chain",
		"Several teams are funded by a casino brand. Wipe the chain", 1)
	art := parse(t, html)
	report := qc.NewGate(cfg).Evaluate(id.NewJobID(), art, b)

	fixer := autofix.NewFixer(cfg)
	fixer.SetClock(fixedClock())
	fixed, records, err := fixer.Apply(art, report, b)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	var disclaimed bool
	for _, rec := range records {
		if rec.FixType == autofix.FixInsertDisclaimer {
			disclaimed = true
		}
	}
	if !disclaimed {
		t.Fatalf("no disclaimer in %+v", records)
	}
	if !strings.Contains(strings.ToLower(fixed.HTML), "gamble responsibly") {
		t.Error("disclaimer text missing from fixed article")
	}

	recheck := qc.NewGate(cfg).Evaluate(id.NewJobID(), fixed, b)
	if cr := recheck.Criterion(qc.CriterionCompliance); cr.Status != qc.StatusPass {
		t.Errorf("compliance after fix = %s, want pass", cr.Status)
	}
}

func TestApplyNoFixableIssuesIsNoop(t *testing.T) {
	cfg := qc.DefaultConfig()
	b := fixBrief()
	b.Trust = nil // warns, but nothing auto-fixable

	html := strings.Replace(headingAnchorHTML,
		`<h1>Why <a href="https://shop.example.com/bikes">a reliable commuter bike</a> matters</h1>`,
		`<h1>Commuting by Bike</h1>
<p>Check the tire, the frame, the saddle, the gear ratio, your cadence, the
chain, the lube and the drivetrain before picking
<a href="https://shop.example.com/bikes">a reliable commuter bike</a>.</p>`, 1)
	art := parse(t, html)
	report := qc.NewGate(cfg).Evaluate(id.NewJobID(), art, b)

	fixed, records, err := autofix.NewFixer(cfg).Apply(art, report, b)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %+v, want none", records)
	}
	if fixed.HTML != art.HTML {
		t.Error("article changed without any applicable rule")
	}
}

func TestApplyDeterministicOutput(t *testing.T) {
	cfg := qc.DefaultConfig()
	b := fixBrief()
	art := parse(t, headingAnchorHTML)
	report := qc.NewGate(cfg).Evaluate(id.NewJobID(), art, b)

	fixer := autofix.NewFixer(cfg)
	first, _, err := fixer.Apply(art, report, b)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	second, _, err := fixer.Apply(art, report, b)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if first.HTML != second.HTML {
		t.Errorf("outputs differ:\n%s\n%s", first.HTML, second.HTML)
	}
}
