package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// MinUsableQuality is the floor below which a document is treated as noise
// rather than evidence.
const MinUsableQuality = 0.25

// scoreQuality rates an extraction in [0,1] from three signals: how much
// text survived, how much of the raw page that text represents, and how
// link-heavy the page was. Boilerplate-only pages (pure nav shells, parked
// domains) land near zero.
func scoreQuality(doc *html.Node, rawLen int, cleanText string, fields map[string]string) float64 {
	if rawLen == 0 || cleanText == "" {
		return 0
	}

	score := 0.0

	// Volume: saturates at ~2000 chars of clean text.
	volume := float64(len(cleanText)) / 2000
	if volume > 1 {
		volume = 1
	}
	score += 0.4 * volume

	// Text-to-markup ratio: content pages keep a meaningful share of their
	// bytes as prose.
	ratio := float64(len(cleanText)) / float64(rawLen)
	if ratio > 0.25 {
		ratio = 0.25
	}
	score += 0.3 * (ratio / 0.25)

	// Landmarks: a title and at least one heading suggest a real page.
	if findElement(doc, "title") != nil {
		score += 0.05
	}
	for _, h := range []string{"h1", "h2", "h3"} {
		if findElement(doc, h) != nil {
			score += 0.05
			break
		}
	}

	// Structured fields are strong evidence of substance.
	if len(fields) >= 2 {
		score += 0.2
	} else if len(fields) == 1 {
		score += 0.1
	}

	// Link-density penalty: directories of links carry little testimony.
	if body := findElement(doc, "body"); body != nil {
		total := len(textOf(body, false))
		if total > 0 {
			linkShare := float64(len(linkTextOf(body))) / float64(total)
			if linkShare > 0.5 {
				score -= 0.3 * (linkShare - 0.5) * 2
			}
		}
	}

	// Token-level sanity: clean text that is mostly repeated short tokens
	// (cookie banners, menus) is down-weighted.
	if words := strings.Fields(cleanText); len(words) < 30 {
		score *= 0.6
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
