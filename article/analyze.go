package article

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Heading is one section heading in document order.
type Heading struct {
	Level int
	Text  string
}

// AnchorPlacement describes where the target link sits in the article.
type AnchorPlacement struct {
	// Found reports whether a link to the target URL exists at all.
	Found bool
	// Text is the anchor's clickable text.
	Text string
	// HeadingLevel is non-zero when the anchor sits inside an <h1>..<h6>.
	HeadingLevel int
	// OpensSection reports whether the anchor appears in the first sentence
	// of its section's first paragraph.
	OpensSection bool
	// SentenceIndex is the index of the anchor's sentence within the full
	// text, or -1 when not found.
	SentenceIndex int
}

// Analysis is the structural fact sheet for one article against one target.
type Analysis struct {
	WordCount int
	Headings  []Heading
	Sentences []string
	Anchor    AnchorPlacement
	// NearWindow holds the sentences within the configured span around the
	// anchor's sentence. Empty when the anchor was not found in text.
	NearWindow []string
}

// Analyze computes the structural facts for the given target URL.
// windowSentences is the span measured on each side of the anchor sentence.
func (a *Article) Analyze(targetURL string, windowSentences int) *Analysis {
	text := a.Text()
	an := &Analysis{
		WordCount: len(strings.Fields(text)),
		Sentences: SplitSentences(text),
	}

	a.doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		an.Headings = append(an.Headings, Heading{
			Level: headingLevel(goquery.NodeName(s)),
			Text:  strings.TrimSpace(s.Text()),
		})
	})

	an.Anchor = a.locateAnchor(targetURL, an.Sentences)
	an.NearWindow = window(an.Sentences, an.Anchor.SentenceIndex, windowSentences)
	return an
}

// FindAnchor returns the selection for the link pointing at targetURL.
// Falls back to the first link when no href matches exactly.
func (a *Article) FindAnchor(targetURL string) *goquery.Selection {
	links := a.doc.Find("a[href]")
	match := links.FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return href == targetURL
	})
	if match.Length() > 0 {
		return match.First()
	}
	if links.Length() > 0 {
		return links.First()
	}
	return nil
}

func (a *Article) locateAnchor(targetURL string, sentences []string) AnchorPlacement {
	p := AnchorPlacement{SentenceIndex: -1}

	anchor := a.FindAnchor(targetURL)
	if anchor == nil {
		return p
	}
	p.Found = true
	p.Text = strings.TrimSpace(anchor.Text())

	for parent := anchor.Parent(); parent.Length() > 0; parent = parent.Parent() {
		if lvl := headingLevel(goquery.NodeName(parent)); lvl > 0 {
			p.HeadingLevel = lvl
			break
		}
	}

	for i, s := range sentences {
		if p.Text != "" && strings.Contains(s, p.Text) {
			p.SentenceIndex = i
			break
		}
	}

	p.OpensSection = a.anchorOpensSection(anchor, p.Text)
	return p
}

// anchorOpensSection reports whether the anchor sits in the first sentence
// of the first paragraph after the nearest preceding heading.
func (a *Article) anchorOpensSection(anchor *goquery.Selection, text string) bool {
	para := anchor.Closest("p")
	if para.Length() == 0 || text == "" {
		return false
	}

	// The paragraph must directly follow a heading.
	prev := para.Prev()
	if prev.Length() == 0 || headingLevel(goquery.NodeName(prev)) == 0 {
		return false
	}

	// The anchor text must begin before the paragraph's first sentence ends.
	paraText := strings.Join(strings.Fields(para.Text()), " ")
	idx := strings.Index(paraText, text)
	if idx < 0 {
		return false
	}
	return !strings.ContainsAny(paraText[:idx], ".!?")
}

// SplitSentences splits collapsed text into sentences on terminal
// punctuation. Good enough for window and density measurements; not a
// linguistic segmenter.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		b.WriteByte(text[i])
		if (text[i] == '.' || text[i] == '!' || text[i] == '?') &&
			(i+1 >= len(text) || text[i+1] == ' ') {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// TermMatches counts how many distinct terms appear in the given sentences,
// case-insensitively.
func TermMatches(sentences []string, terms []string) int {
	joined := strings.ToLower(strings.Join(sentences, " "))
	n := 0
	for _, term := range terms {
		if term != "" && strings.Contains(joined, strings.ToLower(term)) {
			n++
		}
	}
	return n
}

// ContainsAny reports whether any of the given terms appears in the text,
// case-insensitively.
func ContainsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func window(sentences []string, center, span int) []string {
	if center < 0 || len(sentences) == 0 {
		return nil
	}
	lo := max(center-span, 0)
	hi := min(center+span+1, len(sentences))
	return sentences[lo:hi]
}

func headingLevel(node string) int {
	if len(node) == 2 && node[0] == 'h' && node[1] >= '1' && node[1] <= '6' {
		return int(node[1] - '0')
	}
	return 0
}
