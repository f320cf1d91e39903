// Package extract distills fetched pages into clean text plus structured
// fields. Strategies run against a single parse of the document; structured
// data wins over heuristics for factual fields.
package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/prospector/internal/model"
)

// Strategy names recorded on extracted documents.
const (
	StrategyJSONLD      = "jsonld"
	StrategyMainContent = "maincontent"
	StrategyStripTags   = "striptags"
)

// strategyMargin biases selection toward the more surgical strategy: the
// generic full-strip must beat the focused extraction clearly, since its
// extra volume is usually nav and footer chrome.
const strategyMargin = 0.1

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}`)
)

// Extract distills one successful fetch into a document. It errors only on
// unparseable input; thin or junk pages come back with a low quality score
// instead.
func Extract(res model.FetchResult) (model.ExtractedDocument, error) {
	if res.Status != model.FetchOK {
		return model.ExtractedDocument{}, eris.Errorf("extract: fetch status %s for %s", res.Status, res.URL)
	}
	if len(res.Body) == 0 {
		return model.ExtractedDocument{}, eris.Errorf("extract: empty body for %s", res.URL)
	}

	doc, err := html.Parse(bytes.NewReader(res.Body))
	if err != nil {
		return model.ExtractedDocument{}, eris.Wrapf(err, "extract: parse %s", res.URL)
	}

	structured := extractJSONLD(doc)

	// Every strategy runs and is scored; the best output wins. Candidates
	// are ordered most-surgical first and a later one must win by a clear
	// margin to displace an earlier one.
	type candidate struct {
		strategy string
		text     string
		fields   map[string]string
		score    float64
	}
	candidates := []candidate{
		{strategy: StrategyMainContent, text: extractMainContent(doc)},
		{strategy: StrategyStripTags, text: extractStripTags(doc)},
	}
	for i := range candidates {
		c := &candidates[i]
		c.text = norm.NFC.String(c.text)
		c.fields = mergeFields(structured, c.text)
		c.score = scoreQuality(doc, len(res.Body), c.text, c.fields)
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score+strategyMargin || (best.text == "" && c.text != "") {
			best = c
		}
	}

	// Structured data supplying the factual fields outranks text heuristics.
	strategy := best.strategy
	if len(structured) > 0 {
		strategy = StrategyJSONLD
	}

	out := model.ExtractedDocument{
		URL:          res.URL,
		Title:        pageTitle(doc),
		CleanText:    best.text,
		Fields:       best.fields,
		Strategy:     strategy,
		QualityScore: best.score,
	}
	return out, nil
}

// mergeFields copies the structured fields and backfills contact fields from
// the candidate text. Structured values are never overwritten.
func mergeFields(structured map[string]string, text string) map[string]string {
	fields := make(map[string]string, len(structured)+2)
	for k, v := range structured {
		fields[k] = v
	}
	fillFromText(fields, text)
	return fields
}

// fillFromText backfills contact fields from the clean text when structured
// data did not provide them. Structured values are never overwritten.
func fillFromText(fields map[string]string, text string) {
	if fields[model.FieldEmail] == "" {
		if m := emailRe.FindString(text); m != "" {
			fields[model.FieldEmail] = m
		}
	}
	if fields[model.FieldPhone] == "" {
		if m := phoneRe.FindString(text); m != "" {
			fields[model.FieldPhone] = m
		}
	}
}

func pageTitle(doc *html.Node) string {
	t := findElement(doc, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return strings.TrimSpace(norm.NFC.String(t.FirstChild.Data))
}
