// Package engine runs one content-generation request end to end: it drives
// the job state machine through preflight, generation, the quality gate,
// the single rescue pass, and a terminal outcome, persisting every artifact
// the run produced. The engine sits above the subsystem packages and below
// the worker pool.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/autofix"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/event"
	"github.com/draftgate/draftgate/job"
	"github.com/draftgate/draftgate/qc"
	"github.com/draftgate/draftgate/request"
	"github.com/draftgate/draftgate/runlog"
)

// Outcome is the user-visible result of one run. Exactly one of the three
// is returned; no intermediate state is ever exposed.
type Outcome string

const (
	// OutcomeDelivered means the article passed the gate, possibly with
	// warnings, and was persisted for delivery.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeBlocked means an article exists but needs human review: the
	// gate still blocked after the rescue pass.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeAborted means no usable article was produced: a loop, a
	// collaborator failure, or a panic ended the run.
	OutcomeAborted Outcome = "aborted"
)

// Abort reasons recorded on the job's terminal transition.
const (
	ReasonLoopDetected  = "loop_detected"
	ReasonNoAutofix     = "no_autofix"
	ReasonRescueLoop    = "rescue_loop"
	ReasonQCAfterRescue = "qc_failed_after_rescue"
)

// Result is everything one run produced. Job is always set; Article and
// Report are set as far as the run got; Log is the finalized trace.
type Result struct {
	Outcome Outcome
	Reason  string
	Job     *job.Job
	Article *article.Article
	Report  *qc.Report
	Log     *runlog.Snapshot

	// PersistErr carries storage failures from the final persist pass.
	// The outcome above is unaffected: artifacts that did save are usable.
	PersistErr error
}

// Engine executes requests. Safe for concurrent use; each run owns its own
// job, log, and loop-detection state.
type Engine struct {
	store      Store
	gen        Generator
	gate       *qc.Gate
	fixer      Fixer
	profiler   PageProfiler
	researcher SerpResearcher
	analyzer   IntentAnalyzer
	bus        *event.Bus
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithGate replaces the default gate.
func WithGate(g *qc.Gate) Option { return func(e *Engine) { e.gate = g } }

// WithFixer replaces the default auto-fix pass.
func WithFixer(f Fixer) Option { return func(e *Engine) { e.fixer = f } }

// WithProfiler sets the page profiler used to resolve missing trust data.
func WithProfiler(p PageProfiler) Option { return func(e *Engine) { e.profiler = p } }

// WithResearcher sets the SERP researcher used to build missing near-window
// plans.
func WithResearcher(r SerpResearcher) Option { return func(e *Engine) { e.researcher = r } }

// WithAnalyzer sets the intent analyzer used when a brief carries no
// alignment verdict.
func WithAnalyzer(a IntentAnalyzer) Option { return func(e *Engine) { e.analyzer = a } }

// WithBus sets the progress event bus.
func WithBus(b *event.Bus) Option { return func(e *Engine) { e.bus = b } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// New creates an Engine around a store and a generator. The gate and fixer
// default to the shipped thresholds.
func New(store Store, gen Generator, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, draftgate.ErrNoStore
	}
	if gen == nil {
		return nil, fmt.Errorf("draftgate: engine requires a generator")
	}
	cfg := qc.DefaultConfig()
	e := &Engine{
		store:  store,
		gen:    gen,
		gate:   qc.NewGate(cfg),
		fixer:  autofix.NewFixer(cfg),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes one request to a terminal outcome. It never returns an
// error: every failure path lands on OutcomeAborted with the message
// preserved, and all artifacts produced before the failure are persisted.
func (e *Engine) Run(ctx context.Context, req *request.Request) *Result {
	j := job.New(req.ID)
	trace := runlog.New(j.ID)
	res := &Result{Job: j}

	e.execute(ctx, req, j, trace, res)

	var gateStatus string
	if res.Report != nil {
		gateStatus = string(res.Report.Status)
	}
	trace.Finalize(string(j.State), gateStatus, string(res.Outcome))
	res.Log = trace.Snapshot()

	res.PersistErr = e.persist(ctx, res)
	if res.PersistErr != nil {
		e.logger.Error("run artifacts not fully persisted",
			slog.String("job_id", j.ID.String()),
			slog.String("error", res.PersistErr.Error()),
		)
	}

	e.publish(event.Event{
		Kind:      event.KindRunFinished,
		RequestID: req.ID,
		JobID:     j.ID,
		Outcome:   string(res.Outcome),
		Message:   res.Reason,
	})
	return res
}

// execute drives the state machine. It owns the panic barrier: a panic in
// any collaborator force-aborts the job and becomes an aborted outcome.
func (e *Engine) execute(ctx context.Context, req *request.Request, j *job.Job, trace *runlog.Log, res *Result) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			e.abort(j, trace, res, msg, nil)
		}
	}()

	trace.Info("request received", map[string]any{"request_id": req.ID.String(), "queue": req.Queue})

	// RECEIVE → PREFLIGHT: gather and validate the job context.
	if err := e.shift(j, trace, req, job.StatePreflight, nil); err != nil {
		e.abort(j, trace, res, "illegal preflight entry", err)
		return
	}
	b := req.Brief
	if b == nil {
		e.abort(j, trace, res, "request carries no brief", nil)
		return
	}
	if err := e.enrich(ctx, b, trace); err != nil {
		e.abort(j, trace, res, "context gathering failed", err)
		return
	}
	if err := b.Validate(); err != nil {
		e.abort(j, trace, res, "brief validation failed", err)
		return
	}

	// PREFLIGHT → WRITE: invoke the generator exactly once.
	if err := e.shift(j, trace, req, job.StateWrite, nil); err != nil {
		e.abort(j, trace, res, "illegal write entry", err)
		return
	}
	raw, err := e.gen.Generate(ctx, b)
	if err != nil {
		e.abort(j, trace, res, "generator failed", err)
		return
	}
	art, err := article.Parse(raw)
	if err != nil {
		e.abort(j, trace, res, "generated article unparsable", err)
		return
	}
	res.Article = art

	// Identical output to a previous write attempt cannot pass a gate it
	// already failed; stop before spending a QC run.
	if loop, err := j.CheckLoop(art.HTML, job.StateWrite); err != nil {
		e.abort(j, trace, res, "fingerprint failed", err)
		return
	} else if loop {
		e.abort(j, trace, res, ReasonLoopDetected, draftgate.ErrLoopDetected)
		return
	}

	// WRITE → QC.
	if err := e.shift(j, trace, req, job.StateQC, nil); err != nil {
		e.abort(j, trace, res, "illegal qc entry", err)
		return
	}
	report := e.gate.Evaluate(j.ID, art, b)
	res.Report = report
	trace.GateResult(string(report.Status), report.Score, len(report.Issues))
	e.publish(event.Event{
		Kind:      event.KindGateEvaluated,
		RequestID: req.ID,
		JobID:     j.ID,
		Status:    string(report.Status),
	})

	if report.Status == qc.StatusBlocked {
		e.rescue(ctx, req, j, trace, res, b)
		return
	}

	// QC → DELIVER. A warning still delivers; it is recorded, not fatal.
	if report.Status == qc.StatusWarning {
		trace.Warn("delivering with warnings", map[string]any{"score": report.Score})
	}
	if err := e.shift(j, trace, req, job.StateDeliver, nil); err != nil {
		e.abort(j, trace, res, "illegal deliver entry", err)
		return
	}
	res.Outcome = OutcomeDelivered
}

// rescue runs the single auto-fix pass and the re-check. The job arrives
// in QC with a blocked report and leaves terminal.
func (e *Engine) rescue(ctx context.Context, req *request.Request, j *job.Job, trace *runlog.Log, res *Result, b *brief.Brief) {
	if err := e.shift(j, trace, req, job.StateRescue, map[string]string{"score": fmt.Sprint(res.Report.Score)}); err != nil {
		e.abort(j, trace, res, "rescue unavailable", err)
		return
	}

	// Seed the rescue fingerprint with the blocked article so a fix pass
	// that changes nothing is caught as a loop.
	if _, err := j.CheckLoop(res.Article.HTML, job.StateRescue); err != nil {
		e.abort(j, trace, res, "fingerprint failed", err)
		return
	}

	fixed, records, err := e.fixer.Apply(res.Article, res.Report, b)
	if err != nil {
		e.abort(j, trace, res, "auto-fix failed", err)
		return
	}
	if len(records) == 0 {
		e.abort(j, trace, res, ReasonNoAutofix, nil)
		return
	}
	if loop, err := j.CheckLoop(fixed.HTML, job.StateRescue); err != nil {
		e.abort(j, trace, res, "fingerprint failed", err)
		return
	} else if loop {
		e.abort(j, trace, res, ReasonRescueLoop, draftgate.ErrLoopDetected)
		return
	}
	res.Article = fixed
	for _, rec := range records {
		trace.AutoFix(rec.FixType, rec.Reason)
		e.publish(event.Event{
			Kind:      event.KindFixApplied,
			RequestID: req.ID,
			JobID:     j.ID,
			Message:   rec.FixType,
		})
	}

	// RESCUE → QC: re-run the gate on the fixed content.
	if err := e.shift(j, trace, req, job.StateQC, nil); err != nil {
		e.abort(j, trace, res, "illegal qc re-entry", err)
		return
	}
	report := e.gate.Evaluate(j.ID, res.Article, b)
	report.AutoFixApplied = true
	report.FixLog = records
	res.Report = report
	trace.GateResult(string(report.Status), report.Score, len(report.Issues))
	e.publish(event.Event{
		Kind:      event.KindGateEvaluated,
		RequestID: req.ID,
		JobID:     j.ID,
		Status:    string(report.Status),
	})

	if report.Status == qc.StatusBlocked {
		// The article exists and is persisted for human review; only the
		// job ends in abort.
		trace.Warn("still blocked after rescue", map[string]any{"score": report.Score})
		if err := e.shift(j, trace, req, job.StateAbort, map[string]string{"reason": ReasonQCAfterRescue}); err != nil {
			e.abort(j, trace, res, "illegal abort entry", err)
			return
		}
		res.Outcome = OutcomeBlocked
		res.Reason = ReasonQCAfterRescue
		return
	}

	if report.Status == qc.StatusWarning {
		trace.Warn("delivering with warnings", map[string]any{"score": report.Score})
	}
	if err := e.shift(j, trace, req, job.StateDeliver, nil); err != nil {
		e.abort(j, trace, res, "illegal deliver entry", err)
		return
	}
	res.Outcome = OutcomeDelivered
}

// enrich fills the brief's missing analyzer-produced records from the
// configured collaborators. Records already present are kept as-is.
func (e *Engine) enrich(ctx context.Context, b *brief.Brief, trace *runlog.Log) error {
	if b.Intent == nil && e.analyzer != nil {
		intent, err := e.analyzer.Analyze(ctx, b)
		if err != nil {
			return fmt.Errorf("intent analyzer: %w", err)
		}
		b.Intent = intent
		trace.Info("intent analyzed", map[string]any{"overall": string(intent.Overall)})
	}
	if b.NearWindow == nil && e.researcher != nil {
		plan, err := e.researcher.Research(ctx, b)
		if err != nil {
			return fmt.Errorf("serp researcher: %w", err)
		}
		b.NearWindow = plan
		trace.Info("near-window planned", map[string]any{"terms": len(plan.SupportingTerms)})
	}
	if b.Trust == nil && e.profiler != nil {
		policy, err := e.profiler.Profile(ctx, b)
		if err != nil {
			return fmt.Errorf("page profiler: %w", err)
		}
		b.Trust = policy
		trace.Info("trust resolved", map[string]any{"sources": len(policy.Sources)})
	}
	return nil
}

// shift performs one legal transition, logging and publishing it.
func (e *Engine) shift(j *job.Job, trace *runlog.Log, req *request.Request, target job.State, metadata map[string]string) error {
	from := j.State
	if err := j.Transition(target, metadata); err != nil {
		return err
	}
	trace.Transition(string(from), string(target))
	e.publish(event.Event{
		Kind:      event.KindStateChanged,
		RequestID: req.ID,
		JobID:     j.ID,
		State:     string(target),
	})
	return nil
}

// abort force-terminates the job with the given reason. Legal from any
// non-terminal state; a no-op on the state machine if already terminal.
func (e *Engine) abort(j *job.Job, trace *runlog.Log, res *Result, reason string, cause error) {
	msg := reason
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", reason, cause)
	}
	trace.Error(msg, nil)
	j.ForceAbort(reason)
	res.Outcome = OutcomeAborted
	res.Reason = msg
}

// persist writes every artifact the run produced. Failures are joined, not
// fatal: the outcome already stands.
func (e *Engine) persist(ctx context.Context, res *Result) error {
	var errs []error
	if res.Article != nil {
		if err := e.store.SaveArticle(ctx, res.Job.ID, res.Article); err != nil {
			errs = append(errs, fmt.Errorf("article: %w", err))
		}
	}
	if res.Report != nil {
		if err := e.store.SaveReport(ctx, res.Report); err != nil {
			errs = append(errs, fmt.Errorf("report: %w", err))
		}
	}
	if res.Log != nil {
		if err := e.store.SaveRunLog(ctx, res.Log); err != nil {
			errs = append(errs, fmt.Errorf("run log: %w", err))
		}
	}
	if err := e.store.SaveJob(ctx, res.Job); err != nil {
		errs = append(errs, fmt.Errorf("job: %w", err))
	}
	return errors.Join(errs...)
}

func (e *Engine) publish(evt event.Event) {
	if e.bus != nil {
		e.bus.Publish(evt)
	}
}
