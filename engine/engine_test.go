package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/engine"
	"github.com/draftgate/draftgate/event"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/job"
	"github.com/draftgate/draftgate/qc"
	"github.com/draftgate/draftgate/request"
	"github.com/draftgate/draftgate/store/memory"
)

// cleanHTML passes every gate criterion against testBrief.
const cleanHTML = `
<h1>Commuting by Bike</h1>
<p>City commuting rewards a well kept bike. Check the tire, the frame, the
saddle, the gear ratio and your cadence before picking
<a href="https://shop.example.com/bikes">a reliable commuter bike</a> for the
season. Routine maintenance keeps the drivetrain quiet.</p>
<h2>Simple Maintenance</h2>
<p>Wipe the chain after wet rides. A drop of lube goes a long way. Commuting
stays fun when the bike stays ready.</p>
`

// headingAnchorHTML puts the anchor inside the h1, which the gate blocks and
// the auto-fix pass can relocate.
const headingAnchorHTML = `
<h1>Why <a href="https://shop.example.com/bikes">a reliable commuter bike</a> matters</h1>
<p>City commuting rewards a well kept bike. Check the tire, the frame, the
saddle, the gear ratio and your cadence every week. Routine maintenance keeps
the drivetrain quiet.</p>
<h2>Simple Maintenance</h2>
<p>Wipe the chain after wet rides. A drop of lube goes a long way. Commuting
stays fun when the bike stays ready.</p>
`

// gamblingHTML mentions regulated vocabulary without a disclaimer.
const gamblingHTML = `
<h1>Cycling Sponsorships</h1>
<p>City commuting rewards a well kept bike. Check the tire, the frame, the
saddle, the gear ratio and your cadence before picking
<a href="https://shop.example.com/bikes">a reliable commuter bike</a> for the
season. Routine maintenance keeps the drivetrain quiet.</p>
<h2>Team Funding</h2>
<p>Several teams are funded by a casino brand and a bookmaker. Wipe the chain
after wet rides for smooth commuting and easy maintenance.</p>
`

func testBrief() *brief.Brief {
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
			Components:      map[string]brief.Alignment{"topical": brief.AlignmentAligned},
			BridgeTypeMatch: true,
			Confidence:      0.9,
		},
		Trust: &brief.TrustPolicy{
			Sources: []brief.TrustSource{{URL: "https://transport.gov.example/stats", Tier: brief.TierAuthority, Resolved: true}},
		},
		NearWindow: &brief.NearWindowPlan{
			SupportingTerms:   []string{"tire", "frame", "saddle", "gear", "cadence", "chain", "lube", "drivetrain"},
			RequiredSubtopics: []string{"maintenance"},
			WindowSentences:   3,
		},
		Constraints: &brief.Constraints{
			MinWords:       40,
			RequiredTopics: []string{"commuting", "maintenance"},
			ReadabilityMin: 0,
			ReadabilityMax: 120,
		},
	}
}

type stubGenerator struct {
	html  string
	err   error
	panic bool
	calls int
}

func (g *stubGenerator) Generate(_ context.Context, _ *brief.Brief) (string, error) {
	g.calls++
	if g.panic {
		panic("generator blew up")
	}
	return g.html, g.err
}

type stubFixer struct {
	apply func(*article.Article, *qc.Report, *brief.Brief) (*article.Article, []qc.FixRecord, error)
}

func (f *stubFixer) Apply(a *article.Article, r *qc.Report, b *brief.Brief) (*article.Article, []qc.FixRecord, error) {
	return f.apply(a, r, b)
}

func newRequest(b *brief.Brief) *request.Request {
	return request.New("content", b)
}

func mustEngine(t *testing.T, s engine.Store, gen engine.Generator, opts ...engine.Option) *engine.Engine {
	t.Helper()
	e, err := engine.New(s, gen, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

// ─── Scenario: clean run ─────────────────────────────────────────────────

func TestRunCleanArticleDelivers(t *testing.T) {
	s := memory.New()
	gen := &stubGenerator{html: cleanHTML}
	e := mustEngine(t, s, gen)

	res := e.Run(context.Background(), newRequest(testBrief()))

	if res.Outcome != engine.OutcomeDelivered {
		t.Fatalf("outcome = %s (%s), want delivered", res.Outcome, res.Reason)
	}
	if res.Job.State != job.StateDeliver {
		t.Errorf("job state = %s, want %s", res.Job.State, job.StateDeliver)
	}
	if res.Report.Status != qc.StatusPass {
		t.Errorf("report status = %s, want pass", res.Report.Status)
	}
	if res.Report.AutoFixApplied {
		t.Error("AutoFixApplied = true on a clean run")
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
	if res.PersistErr != nil {
		t.Errorf("PersistErr = %v", res.PersistErr)
	}

	// Every artifact must be retrievable after the run.
	ctx := context.Background()
	if _, err := s.GetJob(ctx, res.Job.ID); err != nil {
		t.Errorf("GetJob() error = %v", err)
	}
	if _, err := s.GetArticle(ctx, res.Job.ID); err != nil {
		t.Errorf("GetArticle() error = %v", err)
	}
	if _, err := s.GetReport(ctx, res.Job.ID); err != nil {
		t.Errorf("GetReport() error = %v", err)
	}
	log, err := s.GetRunLog(ctx, res.Job.ID)
	if err != nil {
		t.Fatalf("GetRunLog() error = %v", err)
	}
	if log.Summary == nil || log.Summary.Outcome != string(engine.OutcomeDelivered) {
		t.Errorf("run log summary = %+v, want finalized delivered", log.Summary)
	}
}

// ─── Scenario: blocked, rescued, delivered ───────────────────────────────

func TestRunBlockedArticleIsRescuedAndDelivered(t *testing.T) {
	s := memory.New()
	e := mustEngine(t, s, &stubGenerator{html: headingAnchorHTML})

	res := e.Run(context.Background(), newRequest(testBrief()))

	if res.Outcome != engine.OutcomeDelivered {
		t.Fatalf("outcome = %s (%s), want delivered after rescue", res.Outcome, res.Reason)
	}
	if !res.Report.AutoFixApplied {
		t.Error("AutoFixApplied = false after a rescue pass")
	}
	if len(res.Report.FixLog) == 0 {
		t.Error("FixLog empty after a rescue pass")
	}
	an := res.Article.Analyze("https://shop.example.com/bikes", 3)
	if !an.Anchor.Found || an.Anchor.HeadingLevel != 0 {
		t.Errorf("anchor still in a heading after rescue: %+v", an.Anchor)
	}

	// The persisted article is the fixed one.
	stored, err := s.GetArticle(context.Background(), res.Job.ID)
	if err != nil {
		t.Fatalf("GetArticle() error = %v", err)
	}
	if stored.HTML != res.Article.HTML {
		t.Error("persisted article differs from the delivered one")
	}
}

func TestRunInsertsDisclaimerForRegulatedTopic(t *testing.T) {
	s := memory.New()
	e := mustEngine(t, s, &stubGenerator{html: gamblingHTML})

	res := e.Run(context.Background(), newRequest(testBrief()))

	if res.Outcome != engine.OutcomeDelivered {
		t.Fatalf("outcome = %s (%s), want delivered after disclaimer fix", res.Outcome, res.Reason)
	}
	if !res.Report.AutoFixApplied {
		t.Error("AutoFixApplied = false")
	}
	if !strings.Contains(strings.ToLower(res.Article.HTML), "responsibly") {
		t.Error("fixed article carries no disclaimer")
	}
}

// ─── Scenario: rescue cannot help ────────────────────────────────────────

func TestRunAbortsWhenNoFixApplies(t *testing.T) {
	s := memory.New()
	fixer := &stubFixer{apply: func(a *article.Article, _ *qc.Report, _ *brief.Brief) (*article.Article, []qc.FixRecord, error) {
		return a, nil, nil
	}}
	e := mustEngine(t, s, &stubGenerator{html: headingAnchorHTML}, engine.WithFixer(fixer))

	res := e.Run(context.Background(), newRequest(testBrief()))

	if res.Outcome != engine.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", res.Outcome)
	}
	if !strings.Contains(res.Reason, engine.ReasonNoAutofix) {
		t.Errorf("reason = %q, want it to contain %q", res.Reason, engine.ReasonNoAutofix)
	}
	if res.Job.State != job.StateAbort {
		t.Errorf("job state = %s, want %s", res.Job.State, job.StateAbort)
	}
}

func TestRunAbortsWhenFixChangesNothing(t *testing.T) {
	s := memory.New()
	fixer := &stubFixer{apply: func(a *article.Article, _ *qc.Report, _ *brief.Brief) (*article.Article, []qc.FixRecord, error) {
		// Claims to have fixed something but returns identical content.
		return a, []qc.FixRecord{{FixType: "relocate_anchor", Reason: "noop"}}, nil
	}}
	e := mustEngine(t, s, &stubGenerator{html: headingAnchorHTML}, engine.WithFixer(fixer))

	res := e.Run(context.Background(), newRequest(testBrief()))

	if res.Outcome != engine.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", res.Outcome)
	}
	if !strings.Contains(res.Reason, engine.ReasonRescueLoop) {
		t.Errorf("reason = %q, want it to contain %q", res.Reason, engine.ReasonRescueLoop)
	}
}

func TestRunBlockedAfterRescueKeepsArtifacts(t *testing.T) {
	s := memory.New()
	b := testBrief()
	// The disclaimer fix applies, but the off-intent block is not fixable.
	b.Intent.Overall = brief.AlignmentOff
	e := mustEngine(t, s, &stubGenerator{html: gamblingHTML})

	res := e.Run(context.Background(), newRequest(b))

	if res.Outcome != engine.OutcomeBlocked {
		t.Fatalf("outcome = %s (%s), want blocked", res.Outcome, res.Reason)
	}
	if res.Reason != engine.ReasonQCAfterRescue {
		t.Errorf("reason = %q, want %q", res.Reason, engine.ReasonQCAfterRescue)
	}
	if res.Job.State != job.StateAbort {
		t.Errorf("job state = %s, want %s", res.Job.State, job.StateAbort)
	}
	if !res.Report.AutoFixApplied {
		t.Error("AutoFixApplied = false even though the disclaimer fix ran")
	}

	// The blocked article and report stay available for human review.
	ctx := context.Background()
	if _, err := s.GetArticle(ctx, res.Job.ID); err != nil {
		t.Errorf("GetArticle() error = %v", err)
	}
	report, err := s.GetReport(ctx, res.Job.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if report.Status != qc.StatusBlocked {
		t.Errorf("persisted report status = %s, want blocked", report.Status)
	}
}

// ─── Failure paths ───────────────────────────────────────────────────────

func TestRunAbortsOnGeneratorError(t *testing.T) {
	s := memory.New()
	e := mustEngine(t, s, &stubGenerator{err: errors.New("model unavailable")})

	res := e.Run(context.Background(), newRequest(testBrief()))

	if res.Outcome != engine.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", res.Outcome)
	}
	if !strings.Contains(res.Reason, "generator failed") {
		t.Errorf("reason = %q, want generator failure", res.Reason)
	}
	// The job record is still persisted for the audit trail.
	if _, err := s.GetJob(context.Background(), res.Job.ID); err != nil {
		t.Errorf("GetJob() error = %v", err)
	}
}

func TestRunRecoversFromGeneratorPanic(t *testing.T) {
	s := memory.New()
	e := mustEngine(t, s, &stubGenerator{panic: true})

	res := e.Run(context.Background(), newRequest(testBrief()))

	if res.Outcome != engine.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", res.Outcome)
	}
	if !strings.Contains(res.Reason, "panic") {
		t.Errorf("reason = %q, want panic message", res.Reason)
	}
	if !res.Job.Terminal() {
		t.Errorf("job state = %s, want terminal", res.Job.State)
	}
}

func TestRunAbortsOnMissingBrief(t *testing.T) {
	s := memory.New()
	e := mustEngine(t, s, &stubGenerator{html: cleanHTML})

	res := e.Run(context.Background(), request.New("content", nil))

	if res.Outcome != engine.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", res.Outcome)
	}
	if !strings.Contains(res.Reason, "no brief") {
		t.Errorf("reason = %q, want missing-brief message", res.Reason)
	}
}

func TestRunAbortsOnInvalidBrief(t *testing.T) {
	s := memory.New()
	b := testBrief()
	b.Anchor.Text = ""
	e := mustEngine(t, s, &stubGenerator{html: cleanHTML})

	res := e.Run(context.Background(), newRequest(b))

	if res.Outcome != engine.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", res.Outcome)
	}
	if !strings.Contains(res.Reason, "brief validation failed") {
		t.Errorf("reason = %q, want validation failure", res.Reason)
	}
}

// ─── Enrichment ──────────────────────────────────────────────────────────

type stubAnalyzer struct {
	intent *brief.IntentAlignment
	err    error
	calls  int
}

func (a *stubAnalyzer) Analyze(_ context.Context, _ *brief.Brief) (*brief.IntentAlignment, error) {
	a.calls++
	return a.intent, a.err
}

func TestRunFillsMissingIntentFromAnalyzer(t *testing.T) {
	s := memory.New()
	b := testBrief()
	intent := b.Intent
	b.Intent = nil

	analyzer := &stubAnalyzer{intent: intent}
	e := mustEngine(t, s, &stubGenerator{html: cleanHTML}, engine.WithAnalyzer(analyzer))

	res := e.Run(context.Background(), newRequest(b))

	if res.Outcome != engine.OutcomeDelivered {
		t.Fatalf("outcome = %s (%s), want delivered", res.Outcome, res.Reason)
	}
	if analyzer.calls != 1 {
		t.Errorf("analyzer called %d times, want 1", analyzer.calls)
	}
}

func TestRunKeepsPresentIntentRecord(t *testing.T) {
	s := memory.New()
	analyzer := &stubAnalyzer{intent: &brief.IntentAlignment{Overall: brief.AlignmentOff}}
	e := mustEngine(t, s, &stubGenerator{html: cleanHTML}, engine.WithAnalyzer(analyzer))

	res := e.Run(context.Background(), newRequest(testBrief()))

	if res.Outcome != engine.OutcomeDelivered {
		t.Fatalf("outcome = %s (%s), want delivered", res.Outcome, res.Reason)
	}
	if analyzer.calls != 0 {
		t.Errorf("analyzer called %d times for a brief that already has intent", analyzer.calls)
	}
}

func TestRunAbortsWhenEnrichmentFails(t *testing.T) {
	s := memory.New()
	b := testBrief()
	b.Intent = nil

	analyzer := &stubAnalyzer{err: errors.New("upstream 503")}
	e := mustEngine(t, s, &stubGenerator{html: cleanHTML}, engine.WithAnalyzer(analyzer))

	res := e.Run(context.Background(), newRequest(b))

	if res.Outcome != engine.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", res.Outcome)
	}
	if !strings.Contains(res.Reason, "context gathering failed") {
		t.Errorf("reason = %q, want enrichment failure", res.Reason)
	}
}

// ─── Persistence and events ──────────────────────────────────────────────

type failingStore struct {
	*memory.Store
	reportErr error
}

func (f *failingStore) SaveReport(ctx context.Context, r *qc.Report) error {
	if f.reportErr != nil {
		return f.reportErr
	}
	return f.Store.SaveReport(ctx, r)
}

func TestRunReportsPersistErrorWithoutChangingOutcome(t *testing.T) {
	s := &failingStore{Store: memory.New(), reportErr: errors.New("disk full")}
	e := mustEngine(t, s, &stubGenerator{html: cleanHTML})

	res := e.Run(context.Background(), newRequest(testBrief()))

	if res.Outcome != engine.OutcomeDelivered {
		t.Fatalf("outcome = %s (%s), want delivered despite persist failure", res.Outcome, res.Reason)
	}
	if res.PersistErr == nil || !strings.Contains(res.PersistErr.Error(), "disk full") {
		t.Errorf("PersistErr = %v, want the report save failure", res.PersistErr)
	}
	// Artifacts that did save are still there.
	if _, err := s.GetArticle(context.Background(), res.Job.ID); err != nil {
		t.Errorf("GetArticle() error = %v", err)
	}
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	s := memory.New()
	bus := event.NewBus()
	defer bus.Close()

	events, cancel := bus.Subscribe(64)
	defer cancel()

	e := mustEngine(t, s, &stubGenerator{html: cleanHTML}, engine.WithBus(bus))
	res := e.Run(context.Background(), newRequest(testBrief()))
	if res.Outcome != engine.OutcomeDelivered {
		t.Fatalf("outcome = %s (%s), want delivered", res.Outcome, res.Reason)
	}

	seen := map[event.Kind]int{}
	for {
		select {
		case evt := <-events:
			seen[evt.Kind]++
			if evt.Kind == event.KindRunFinished {
				if evt.Outcome != string(engine.OutcomeDelivered) {
					t.Errorf("finished event outcome = %q, want delivered", evt.Outcome)
				}
				// receive -> preflight -> write -> qc -> deliver.
				if seen[event.KindStateChanged] != 4 {
					t.Errorf("state change events = %d, want 4", seen[event.KindStateChanged])
				}
				if seen[event.KindGateEvaluated] != 1 {
					t.Errorf("gate events = %d, want 1", seen[event.KindGateEvaluated])
				}
				return
			}
		default:
			t.Fatal("bus drained before the finished event arrived")
		}
	}
}
