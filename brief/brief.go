// Package brief defines the job context for one content-generation run: the
// publisher, target, and anchor profiles, the intent-alignment verdict, the
// trust policy, and the generation constraints. Each field group is owned by
// one upstream producer (page profiler, SERP research, intent analyzer) and
// the whole record is validated once, at the preflight boundary, instead of
// null-checked inside every quality criterion.
package brief

import (
	"fmt"
	"strings"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/id"
)

// BridgeType describes how the inserted link's surrounding context relates
// to the target page.
type BridgeType string

const (
	// BridgeStrong means the target is the direct, primary subject.
	BridgeStrong BridgeType = "strong"
	// BridgePivot means the context is an informational lead-in to the target.
	BridgePivot BridgeType = "pivot"
	// BridgeWrapper means the target is one of several mentioned options.
	BridgeWrapper BridgeType = "wrapper"
)

// Alignment is the intent analyzer's verdict for one alignment axis.
type Alignment string

const (
	AlignmentAligned Alignment = "aligned"
	AlignmentPartial Alignment = "partial"
	AlignmentOff     Alignment = "off"
)

// RiskTier classifies the anchor text's over-optimization risk.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// TrustTier classifies a cited reference by authority level.
type TrustTier string

const (
	// TierAuthority is a primary, high-authority reference.
	TierAuthority TrustTier = "authority"
	// TierEstablished is a reputable secondary reference.
	TierEstablished TrustTier = "established"
	// TierLow is the lowest acceptable reference tier.
	TierLow TrustTier = "low"
)

// PublisherProfile describes the page that will host the article.
// Produced by the page profiler.
type PublisherProfile struct {
	Domain   string `json:"domain"`
	Language string `json:"language,omitempty"`
	Topic    string `json:"topic"`
}

// TargetProfile describes the page the anchor links to.
// Produced by the page profiler.
type TargetProfile struct {
	URL   string `json:"url"`
	Topic string `json:"topic"`
}

// AnchorProfile describes the anchor to be placed.
type AnchorProfile struct {
	Text       string     `json:"text"`
	RiskTier   RiskTier   `json:"risk_tier"`
	BridgeType BridgeType `json:"bridge_type"`
}

// IntentAlignment is the intent analyzer's verdict. Components holds the
// per-axis verdicts keyed by axis name ("anchor", "topic", "page").
type IntentAlignment struct {
	Overall         Alignment            `json:"overall"`
	Components      map[string]Alignment `json:"components,omitempty"`
	BridgeTypeMatch bool                 `json:"bridge_type_match"`
	Confidence      float64              `json:"confidence"`
}

// TrustSource is one cited reference classified by the SERP researcher.
type TrustSource struct {
	URL      string    `json:"url"`
	Tier     TrustTier `json:"tier"`
	Resolved bool      `json:"resolved"`
	Fallback bool      `json:"fallback,omitempty"`
}

// TrustPolicy carries the references available to the writer.
// Produced by SERP research.
type TrustPolicy struct {
	Sources []TrustSource `json:"sources"`
}

// NearWindowPlan describes the supporting-term plan for the span of
// sentences around the anchor. Produced by SERP research.
type NearWindowPlan struct {
	SupportingTerms   []string `json:"supporting_terms"`
	RequiredSubtopics []string `json:"required_subtopics,omitempty"`
	WindowSentences   int      `json:"window_sentences"`
}

// Constraints carries the generation constraints the writer and the gate
// both honor.
type Constraints struct {
	MinWords        int      `json:"min_words,omitempty"`
	RequiredTopics  []string `json:"required_topics,omitempty"`
	RequiredSignals []string `json:"required_signals,omitempty"`
	ReadabilityMin  float64  `json:"readability_min,omitempty"`
	ReadabilityMax  float64  `json:"readability_max,omitempty"`
}

// Brief is the complete, validated job context for one run. The zero value
// is not usable; construct one field group per producer and call Validate
// before handing it to the generator.
type Brief struct {
	RequestID id.RequestID `json:"request_id"`

	Publisher PublisherProfile `json:"publisher"`
	Target    TargetProfile    `json:"target"`
	Anchor    AnchorProfile    `json:"anchor"`

	Intent      *IntentAlignment `json:"intent,omitempty"`
	Trust       *TrustPolicy     `json:"trust,omitempty"`
	NearWindow  *NearWindowPlan  `json:"near_window,omitempty"`
	Constraints *Constraints     `json:"constraints,omitempty"`
}

// Validate checks every required field group exactly once, at the
// preflight boundary. It reports all problems at once rather than
// failing on the first.
func (b *Brief) Validate() error {
	var missing []string

	if b.Publisher.Domain == "" {
		missing = append(missing, "publisher.domain")
	}
	if b.Publisher.Topic == "" {
		missing = append(missing, "publisher.topic")
	}
	if b.Target.URL == "" {
		missing = append(missing, "target.url")
	}
	if b.Target.Topic == "" {
		missing = append(missing, "target.topic")
	}
	if b.Anchor.Text == "" {
		missing = append(missing, "anchor.text")
	}
	if b.Anchor.RiskTier == "" {
		missing = append(missing, "anchor.risk_tier")
	}
	if b.Anchor.BridgeType == "" {
		missing = append(missing, "anchor.bridge_type")
	}
	if b.Intent == nil {
		missing = append(missing, "intent")
	} else if b.Intent.Overall == "" {
		missing = append(missing, "intent.overall")
	}
	if b.Trust == nil {
		missing = append(missing, "trust")
	}
	if b.NearWindow == nil {
		missing = append(missing, "near_window")
	} else if len(b.NearWindow.SupportingTerms) == 0 {
		missing = append(missing, "near_window.supporting_terms")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", draftgate.ErrBriefInvalid, strings.Join(missing, ", "))
	}

	if b.Anchor.BridgeType != BridgeStrong &&
		b.Anchor.BridgeType != BridgePivot &&
		b.Anchor.BridgeType != BridgeWrapper {
		return fmt.Errorf("%w: unknown bridge type %q", draftgate.ErrBriefInvalid, b.Anchor.BridgeType)
	}
	if b.Intent.Overall != AlignmentAligned &&
		b.Intent.Overall != AlignmentPartial &&
		b.Intent.Overall != AlignmentOff {
		return fmt.Errorf("%w: unknown alignment %q", draftgate.ErrBriefInvalid, b.Intent.Overall)
	}

	return nil
}

// Clone returns a deep copy of the brief. The scheduler clones the stored
// brief each time an entry fires so a mutated copy never leaks back into
// the entry.
func (b *Brief) Clone() *Brief {
	cp := *b
	if b.Intent != nil {
		intent := *b.Intent
		if b.Intent.Components != nil {
			intent.Components = make(map[string]Alignment, len(b.Intent.Components))
			for k, v := range b.Intent.Components {
				intent.Components[k] = v
			}
		}
		cp.Intent = &intent
	}
	if b.Trust != nil {
		trust := *b.Trust
		trust.Sources = append([]TrustSource(nil), b.Trust.Sources...)
		cp.Trust = &trust
	}
	if b.NearWindow != nil {
		nw := *b.NearWindow
		nw.SupportingTerms = append([]string(nil), b.NearWindow.SupportingTerms...)
		nw.RequiredSubtopics = append([]string(nil), b.NearWindow.RequiredSubtopics...)
		cp.NearWindow = &nw
	}
	if b.Constraints != nil {
		c := *b.Constraints
		c.RequiredTopics = append([]string(nil), b.Constraints.RequiredTopics...)
		c.RequiredSignals = append([]string(nil), b.Constraints.RequiredSignals...)
		cp.Constraints = &c
	}
	return &cp
}
