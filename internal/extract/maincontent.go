package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// skipElements never contribute to readable content.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"iframe":   true,
}

// chromeElements are page furniture excluded from main-content candidates.
var chromeElements = map[string]bool{
	"nav":    true,
	"header": true,
	"footer": true,
	"aside":  true,
	"form":   true,
}

// blockCandidates are elements considered as potential content roots.
var blockCandidates = map[string]bool{
	"article": true,
	"main":    true,
	"section": true,
	"div":     true,
	"td":      true,
}

// extractMainContent finds the densest content block: the candidate element
// with the most non-link text, weighted up for semantic containers. Returns
// empty when nothing stands out, letting the caller fall back to a full
// strip.
func extractMainContent(doc *html.Node) string {
	best := struct {
		node  *html.Node
		score float64
	}{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipElements[n.Data] || chromeElements[n.Data] {
				return
			}
			if blockCandidates[n.Data] {
				text := float64(len(textOf(n, false)))
				link := float64(len(linkTextOf(n)))
				score := text - 2*link
				switch n.Data {
				case "article", "main":
					score *= 1.5
				}
				if score > best.score {
					best.node, best.score = n, score
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if best.node == nil || best.score < 200 {
		return ""
	}
	return textOf(best.node, true)
}

// extractStripTags is the lowest-fidelity fallback: all visible text with
// page furniture removed.
func extractStripTags(doc *html.Node) string {
	body := findElement(doc, "body")
	if body == nil {
		body = doc
	}
	return textOf(body, true)
}

// textOf collects the visible text under n. When spaced, block boundaries
// become newlines and runs of whitespace collapse.
func textOf(n *html.Node, spaced bool) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			if skipElements[n.Data] || (spaced && chromeElements[n.Data]) {
				return
			}
			if spaced && isBlockElement(n.Data) {
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	if !spaced {
		return b.String()
	}
	return collapseWhitespace(b.String())
}

func linkTextOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			b.WriteString(textOf(n, false))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func isBlockElement(name string) bool {
	switch name {
	case "p", "div", "section", "article", "li", "br", "tr", "table",
		"h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre", "ul", "ol":
		return true
	}
	return false
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

// collapseWhitespace trims each line and drops blank runs so extracted text
// diffs cleanly between sources.
func collapseWhitespace(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
