// Package article wraps a generated article's HTML and exposes the
// structural facts the quality gate and the auto-fix pass read: word count,
// headings, anchor placement, sentence windows, and readability. Parsing is
// done once with goquery; all analysis is deterministic.
package article

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/draftgate/draftgate/id"
)

// Article is a parsed article. HTML holds the canonical serialization (the
// body inner HTML), so byte comparisons and fingerprints are stable across
// parse/serialize round trips.
type Article struct {
	HTML string

	doc *goquery.Document
}

// Parse parses raw HTML into an Article. Fragments are accepted; the stored
// HTML is normalized to the body inner HTML.
func Parse(raw string) (*Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("article: parse: %w", err)
	}
	body, err := doc.Find("body").Html()
	if err != nil {
		return nil, fmt.Errorf("article: serialize body: %w", err)
	}
	return &Article{HTML: body, doc: doc}, nil
}

// Doc returns the parsed document for structural queries.
func (a *Article) Doc() *goquery.Document { return a.doc }

// Text returns the article's visible text with whitespace collapsed.
func (a *Article) Text() string {
	return strings.Join(strings.Fields(a.doc.Find("body").Text()), " ")
}

// WordCount returns the number of whitespace-separated words in the text.
func (a *Article) WordCount() int {
	return len(strings.Fields(a.doc.Find("body").Text()))
}

// Store defines the persistence contract for article artifacts.
// Articles are keyed by the job that produced them.
type Store interface {
	// SaveArticle persists the article produced by a job. Saving twice for
	// the same job overwrites (the rescue pass produces a second version).
	SaveArticle(ctx context.Context, jobID id.JobID, a *Article) error

	// GetArticle retrieves the article for a job.
	GetArticle(ctx context.Context, jobID id.JobID) (*Article, error)
}
