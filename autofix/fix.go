// Package autofix applies the deterministic remediation pass that runs once
// between a blocked gate verdict and the rescue re-check. Every rule is a
// pure DOM or text transform keyed off an auto-fixable issue in the report;
// inserted content is stamped with the fix marker attribute so the gate can
// see that remediation happened.
package autofix

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/brief"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/qc"
)

// Fix type names, stored on FixRecord.FixType.
const (
	FixRelocateAnchor   = "relocate_anchor"
	FixInjectTerms      = "inject_terms"
	FixInsertDisclaimer = "insert_disclaimer"
)

// Fixer applies auto-fix rules. A Fixer is immutable after construction and
// safe for concurrent use.
type Fixer struct {
	cfg qc.Config
	now func() time.Time
}

// NewFixer creates a Fixer sharing the gate's thresholds, so the terms it
// injects and the disclaimers it inserts match what the gate measures.
func NewFixer(cfg qc.Config) *Fixer {
	return &Fixer{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the fix timestamp source. Tests only.
func (f *Fixer) SetClock(now func() time.Time) { f.now = now }

// Apply runs every rule whose auto-fixable issue appears in the report and
// returns the remediated article with one record per applied rule. When no
// rule applies, the input article is returned unchanged with no records —
// the caller decides whether that aborts the run.
func (f *Fixer) Apply(art *article.Article, r *qc.Report, b *brief.Brief) (*article.Article, []qc.FixRecord, error) {
	fixable := map[qc.Category]bool{}
	for _, is := range r.Issues {
		if is.AutoFixable {
			fixable[is.Category] = true
		}
	}
	if len(fixable) == 0 {
		return art, nil, nil
	}

	work, err := article.Parse(art.HTML)
	if err != nil {
		return nil, nil, fmt.Errorf("autofix: reparse: %w", err)
	}

	var records []qc.FixRecord
	if fixable[qc.CategoryLinkPlacement] {
		if rec, ok := f.relocateAnchor(work, b); ok {
			records = append(records, rec)
		}
	}
	if fixable[qc.CategoryLSI] {
		if rec, ok := f.injectTerms(work, b); ok {
			records = append(records, rec)
		}
	}
	if fixable[qc.CategoryCompliance] {
		records = append(records, f.insertDisclaimers(work)...)
	}

	if len(records) == 0 {
		return art, nil, nil
	}

	inner, err := work.Doc().Find("body").Html()
	if err != nil {
		return nil, nil, fmt.Errorf("autofix: serialize: %w", err)
	}
	fixed, err := article.Parse(inner)
	if err != nil {
		return nil, nil, fmt.Errorf("autofix: reparse fixed: %w", err)
	}
	return fixed, records, nil
}

// relocateAnchor moves a heading-bound anchor into the first paragraph after
// its heading. The heading keeps the plain anchor text.
func (f *Fixer) relocateAnchor(work *article.Article, b *brief.Brief) (qc.FixRecord, bool) {
	anchor := work.FindAnchor(b.Target.URL)
	if anchor == nil {
		return qc.FixRecord{}, false
	}

	var heading *goquery.Selection
	for parent := anchor.Parent(); parent.Length() > 0; parent = parent.Parent() {
		name := goquery.NodeName(parent)
		if len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
			heading = parent
			break
		}
	}
	if heading == nil {
		return qc.FixRecord{}, false
	}

	href, _ := anchor.Attr("href")
	text := strings.TrimSpace(anchor.Text())
	before, _ := goquery.OuterHtml(heading)

	anchor.ReplaceWithHtml(text)

	para := heading.Next()
	moved := fmt.Sprintf(` <span %s=%q>This section covers <a href=%q>%s</a> in practice.</span>`,
		qc.FixMarkerAttr, FixRelocateAnchor, href, text)
	if goquery.NodeName(para) == "p" {
		para.AppendHtml(moved)
	} else {
		heading.AfterHtml("<p>" + strings.TrimSpace(moved) + "</p>")
	}

	after, _ := goquery.OuterHtml(heading)
	return qc.FixRecord{
		ID:        id.NewFixID(),
		Category:  qc.CategoryLinkPlacement,
		FixType:   FixRelocateAnchor,
		Before:    before,
		After:     after,
		Reason:    "anchor moved out of a heading into body copy",
		AppliedAt: f.now(),
	}, true
}

// injectTerms appends a sentence carrying the missing supporting terms to
// the anchor's paragraph, raising the near-window density to the gate's
// minimum. Terms keep their brief order.
func (f *Fixer) injectTerms(work *article.Article, b *brief.Brief) (qc.FixRecord, bool) {
	if b.NearWindow == nil || len(b.NearWindow.SupportingTerms) == 0 {
		return qc.FixRecord{}, false
	}

	anchor := work.FindAnchor(b.Target.URL)
	if anchor == nil {
		return qc.FixRecord{}, false
	}
	para := anchor.Closest("p")
	if para.Length() == 0 {
		return qc.FixRecord{}, false
	}

	an := work.Analyze(b.Target.URL, f.cfg.Density.WindowSentences)
	present := strings.ToLower(strings.Join(an.NearWindow, " "))

	need := f.cfg.Density.MinTerms - article.TermMatches(an.NearWindow, b.NearWindow.SupportingTerms)
	var missing []string
	for _, term := range b.NearWindow.SupportingTerms {
		if need <= len(missing) {
			break
		}
		if !strings.Contains(present, strings.ToLower(term)) {
			missing = append(missing, term)
		}
	}
	if len(missing) == 0 {
		return qc.FixRecord{}, false
	}

	sentence := fmt.Sprintf(` <span %s=%q>Key aspects to weigh here include %s.</span>`,
		qc.FixMarkerAttr, FixInjectTerms, joinTerms(missing))
	para.AppendHtml(sentence)

	return qc.FixRecord{
		ID:        id.NewFixID(),
		Category:  qc.CategoryLSI,
		FixType:   FixInjectTerms,
		Before:    fmt.Sprintf("%d supporting terms near the anchor", f.cfg.Density.MinTerms-need),
		After:     fmt.Sprintf("injected: %s", strings.Join(missing, ", ")),
		Reason:    "supporting-term density raised to the gate minimum",
		AppliedAt: f.now(),
	}, true
}

// insertDisclaimers appends a disclaimer paragraph for every regulated
// family whose vocabulary appears without one.
func (f *Fixer) insertDisclaimers(work *article.Article) []qc.FixRecord {
	text := work.Text()
	body := work.Doc().Find("body")

	var records []qc.FixRecord
	for _, fam := range f.cfg.Compliance.Families {
		if len(fam.Disclaimers) == 0 {
			continue
		}
		if !article.ContainsAny(text, fam.Keywords) || article.ContainsAny(text, fam.Disclaimers) {
			continue
		}
		disclaimer := capitalize(fam.Disclaimers[0]) + "."
		body.AppendHtml(fmt.Sprintf("\n<p %s=%q>%s</p>", qc.FixMarkerAttr, FixInsertDisclaimer, disclaimer))
		records = append(records, qc.FixRecord{
			ID:        id.NewFixID(),
			Category:  qc.CategoryCompliance,
			FixType:   FixInsertDisclaimer,
			Before:    fmt.Sprintf("%s vocabulary without a disclaimer", fam.Name),
			After:     disclaimer,
			Reason:    fmt.Sprintf("%s disclaimer appended", fam.Name),
			AppliedAt: f.now(),
		})
	}
	return records
}

func joinTerms(terms []string) string {
	switch len(terms) {
	case 1:
		return terms[0]
	default:
		return strings.Join(terms[:len(terms)-1], ", ") + " and " + terms[len(terms)-1]
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
