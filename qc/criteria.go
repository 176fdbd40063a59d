package qc

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/brief"
)

// evalPreflight checks bridge-type versus intent-alignment consistency.
func (g *Gate) evalPreflight(b *brief.Brief) evaluation {
	ev := evaluation{name: CriterionPreflight}
	cfg := g.cfg.Preflight

	if b.Intent != nil && !b.Intent.BridgeTypeMatch {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.MismatchPenalty,
			message:  fmt.Sprintf("bridge type %q contradicts the intent analysis", b.Anchor.BridgeType),
			category: CategoryPreflight,
		})
	}

	if b.Intent != nil && b.Intent.Overall == brief.AlignmentOff {
		switch b.Anchor.BridgeType {
		case brief.BridgeStrong:
			ev.deds = append(ev.deds, deduction{
				points:   cfg.StrongOffPenalty,
				message:  "strong bridge is disallowed when intent alignment is off",
				category: CategoryPreflight,
			})
		case brief.BridgeWrapper:
			ev.deds = append(ev.deds, deduction{
				points:   cfg.WrapperOffPenalty,
				message:  "wrapper bridge is disallowed when intent alignment is off",
				category: CategoryPreflight,
			})
		}
	}
	return ev
}

// evalStructure checks word count, heading count, and required-topic coverage.
func (g *Gate) evalStructure(art *article.Article, an *article.Analysis, b *brief.Brief) evaluation {
	ev := evaluation{name: CriterionStructure}
	cfg := g.cfg.Structure

	minWords := cfg.MinWords
	if b.Constraints != nil && b.Constraints.MinWords > 0 {
		minWords = b.Constraints.MinWords
	}
	if an.WordCount < minWords {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.UnderWordPenalty,
			message:  fmt.Sprintf("word count %d is under the %d minimum", an.WordCount, minWords),
			category: CategoryWordCount,
		})
	}

	if len(an.Headings) < cfg.MinHeadings {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.FewHeadingsPenalty,
			message:  fmt.Sprintf("only %d section headings, need at least %d", len(an.Headings), cfg.MinHeadings),
			category: CategoryContentQuality,
		})
	}

	if b.Constraints != nil && len(b.Constraints.RequiredTopics) > 0 {
		text := strings.ToLower(art.Text())
		covered := 0
		for _, topic := range b.Constraints.RequiredTopics {
			if strings.Contains(text, strings.ToLower(topic)) {
				covered++
			}
		}
		coverage := float64(covered) / float64(len(b.Constraints.RequiredTopics))
		if coverage < cfg.MinTopicCoverage {
			ev.deds = append(ev.deds, deduction{
				points:   cfg.LowCoveragePenalty,
				message:  fmt.Sprintf("required-topic coverage %.0f%% is under %.0f%%", coverage*100, cfg.MinTopicCoverage*100),
				category: CategoryContentQuality,
			})
		}
	}
	return ev
}

// evalAnchor checks the anchor's risk tier and placement. A link inside a
// heading is a correctness failure, not a style preference.
func (g *Gate) evalAnchor(an *article.Analysis, b *brief.Brief) evaluation {
	ev := evaluation{name: CriterionAnchor, critical: true}
	cfg := g.cfg.Anchor

	switch b.Anchor.RiskTier {
	case brief.RiskHigh:
		ev.deds = append(ev.deds, deduction{
			points:   cfg.HighRiskPenalty,
			message:  "anchor text is in the high over-optimization risk tier",
			category: CategoryAnchorRisk,
		})
	case brief.RiskMedium:
		ev.deds = append(ev.deds, deduction{
			points:   cfg.MediumRiskPenalty,
			message:  "anchor text is in the medium over-optimization risk tier",
			category: CategoryAnchorRisk,
		})
	}

	switch {
	case !an.Anchor.Found:
		ev.deds = append(ev.deds, deduction{
			points:   cfg.TopHeadingPenalty,
			message:  "target link is missing from the article",
			category: CategoryLinkPlacement,
		})
	case an.Anchor.HeadingLevel >= 1 && an.Anchor.HeadingLevel <= 2:
		ev.deds = append(ev.deds, deduction{
			points:      cfg.TopHeadingPenalty,
			message:     fmt.Sprintf("anchor sits inside an h%d heading", an.Anchor.HeadingLevel),
			category:    CategoryLinkPlacement,
			autoFixable: true,
			suggestion:  "relocate the anchor into the paragraph below the heading",
		})
	case an.Anchor.HeadingLevel > 2:
		ev.deds = append(ev.deds, deduction{
			points:      cfg.SubHeadingPenalty,
			message:     fmt.Sprintf("anchor sits inside an h%d heading", an.Anchor.HeadingLevel),
			category:    CategoryLinkPlacement,
			autoFixable: true,
			suggestion:  "relocate the anchor into the paragraph below the heading",
		})
	case an.Anchor.OpensSection:
		ev.deds = append(ev.deds, deduction{
			points:   cfg.FirstSentencePenalty,
			message:  "anchor opens its section's first sentence",
			category: CategoryLinkPlacement,
		})
	}
	return ev
}

// evalTrust checks the cited references' credibility.
func (g *Gate) evalTrust(b *brief.Brief) evaluation {
	ev := evaluation{name: CriterionTrust}
	cfg := g.cfg.Trust

	if b.Trust == nil || len(b.Trust.Sources) == 0 {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.NoSourcePenalty,
			message:  "no trust source cited",
			category: CategoryTrustSources,
		})
		return ev
	}

	unresolved := 0
	lowTier := false
	fallback := false
	for _, src := range b.Trust.Sources {
		if !src.Resolved {
			unresolved++
		}
		if src.Tier == brief.TierLow {
			lowTier = true
		}
		if src.Fallback {
			fallback = true
		}
	}

	if lowTier {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.LowTierPenalty,
			message:  "lowest trust tier used for a citation",
			category: CategoryTrustSources,
		})
	}
	if unresolved > 0 {
		scaled := int(math.Round(float64(cfg.UnresolvedPenalty) * float64(unresolved) / float64(len(b.Trust.Sources))))
		ev.deds = append(ev.deds, deduction{
			points:   scaled,
			message:  fmt.Sprintf("%d of %d references unresolved", unresolved, len(b.Trust.Sources)),
			category: CategoryTrustSources,
		})
	}
	if fallback {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.FallbackPenalty,
			message:  "fallback source used",
			category: CategoryTrustSources,
		})
	}
	return ev
}

// evalIntent checks the analyzer's alignment verdicts.
func (g *Gate) evalIntent(b *brief.Brief) evaluation {
	ev := evaluation{name: CriterionIntent}
	cfg := g.cfg.Intent

	if b.Intent == nil {
		return ev
	}

	if b.Intent.Overall == brief.AlignmentOff {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.OverallOffPenalty,
			message:  "overall intent alignment is off",
			category: CategoryIntent,
		})
	}

	// Deterministic order: axis names sorted.
	for _, axis := range sortedKeys(b.Intent.Components) {
		if b.Intent.Components[axis] == brief.AlignmentOff {
			ev.deds = append(ev.deds, deduction{
				points:   cfg.ComponentOffPenalty,
				message:  fmt.Sprintf("%s alignment is off", axis),
				category: CategoryIntent,
			})
		}
	}

	if b.Intent.Confidence > 0 && b.Intent.Confidence < cfg.MinConfidence {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.LowConfidencePenalty,
			message:  fmt.Sprintf("alignment confidence %.2f is under %.2f", b.Intent.Confidence, cfg.MinConfidence),
			category: CategoryIntent,
		})
	}
	return ev
}

// evalDensity checks supporting-term density in the near window.
func (g *Gate) evalDensity(an *article.Analysis, b *brief.Brief) evaluation {
	ev := evaluation{name: CriterionDensity}
	cfg := g.cfg.Density

	if b.NearWindow == nil {
		return ev
	}

	matches := article.TermMatches(an.NearWindow, b.NearWindow.SupportingTerms)
	switch {
	case matches < cfg.MinTerms:
		ev.deds = append(ev.deds, deduction{
			points:      cfg.BelowMinPenalty,
			message:     fmt.Sprintf("%d supporting terms near the anchor, need at least %d", matches, cfg.MinTerms),
			category:    CategoryLSI,
			autoFixable: true,
			suggestion:  "inject missing supporting terms near the anchor",
		})
	case matches > cfg.MaxTerms:
		ev.deds = append(ev.deds, deduction{
			points:   cfg.AboveMaxPenalty,
			message:  fmt.Sprintf("%d supporting terms near the anchor exceeds the %d maximum", matches, cfg.MaxTerms),
			category: CategoryLSI,
		})
	}

	if an.Anchor.Found && len(an.NearWindow) < cfg.MinWindowSentences {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.NarrowWindowPenalty,
			message:  fmt.Sprintf("near window spans only %d sentences", len(an.NearWindow)),
			category: CategoryLSI,
		})
	}

	if len(b.NearWindow.RequiredSubtopics) > 0 &&
		article.TermMatches(an.Sentences, b.NearWindow.RequiredSubtopics) == 0 {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.NoSubtopicPenalty,
			message:  "no required subtopic covered anywhere in the article",
			category: CategoryLSI,
		})
	}
	return ev
}

// evalTone checks readability and required analytical signals.
func (g *Gate) evalTone(art *article.Article, b *brief.Brief) evaluation {
	ev := evaluation{name: CriterionTone}
	cfg := g.cfg.Tone

	lo, hi := cfg.ReadabilityMin, cfg.ReadabilityMax
	if b.Constraints != nil && b.Constraints.ReadabilityMax > 0 {
		lo, hi = b.Constraints.ReadabilityMin, b.Constraints.ReadabilityMax
	}
	if score := art.Readability(); score < lo || score > hi {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.OutsideBandPenalty,
			message:  fmt.Sprintf("readability %.1f is outside the %.0f-%.0f target band", score, lo, hi),
			category: CategoryContentQuality,
		})
	}

	if strings.Contains(art.HTML, FixMarkerAttr) {
		ev.deds = append(ev.deds, deduction{
			points:   cfg.AutofixMarkerPenalty,
			message:  "article carries auto-fix markers",
			category: CategoryContentQuality,
		})
	}

	if b.Constraints != nil {
		text := strings.ToLower(art.Text())
		for _, signal := range b.Constraints.RequiredSignals {
			if !strings.Contains(text, strings.ToLower(signal)) {
				ev.deds = append(ev.deds, deduction{
					points:   cfg.MissingSignalPenalty,
					message:  fmt.Sprintf("missing required analytical signal %q", signal),
					category: CategoryContentQuality,
				})
			}
		}
	}
	return ev
}

// evalCompliance checks regulated-topic keyword families against their
// disclaimer markers.
func (g *Gate) evalCompliance(art *article.Article) evaluation {
	ev := evaluation{name: CriterionCompliance, critical: true}
	cfg := g.cfg.Compliance

	text := art.Text()
	for _, fam := range cfg.Families {
		if article.ContainsAny(text, fam.Keywords) && !article.ContainsAny(text, fam.Disclaimers) {
			ev.deds = append(ev.deds, deduction{
				points:      cfg.FamilyPenalty,
				message:     fmt.Sprintf("%s vocabulary present without a matching disclaimer", fam.Name),
				category:    CategoryCompliance,
				autoFixable: true,
				suggestion:  fmt.Sprintf("insert the %s disclaimer", fam.Name),
			})
		}
	}
	return ev
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
