package engine

import (
	"context"

	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/job"
	"github.com/draftgate/draftgate/qc"
	"github.com/draftgate/draftgate/runlog"
)

// Generator produces the article HTML for a validated brief. Called exactly
// once per write step; any retry policy lives above it.
type Generator interface {
	Generate(ctx context.Context, b *brief.Brief) (string, error)
}

// PageProfiler resolves the trust policy for a brief whose publisher page
// has not been profiled yet.
type PageProfiler interface {
	Profile(ctx context.Context, b *brief.Brief) (*brief.TrustPolicy, error)
}

// SerpResearcher produces the near-window plan (supporting terms and
// required subtopics) for a brief that lacks one.
type SerpResearcher interface {
	Research(ctx context.Context, b *brief.Brief) (*brief.NearWindowPlan, error)
}

// IntentAnalyzer classifies the bridge between publisher and target. Its
// verdict is consumed as opaque structured data.
type IntentAnalyzer interface {
	Analyze(ctx context.Context, b *brief.Brief) (*brief.IntentAlignment, error)
}

// Fixer applies the single remediation batch between a blocked verdict and
// the rescue re-check. *autofix.Fixer satisfies this; tests substitute
// stubs.
type Fixer interface {
	Apply(art *article.Article, r *qc.Report, b *brief.Brief) (*article.Article, []qc.FixRecord, error)
}

// Store is the persistence surface one run needs: the four artifacts a run
// produces.
type Store interface {
	job.Store
	article.Store
	qc.Store
	runlog.Store
}
