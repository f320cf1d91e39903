package search

import (
	"sort"

	"github.com/sells-group/prospector/internal/model"
)

// rrfK damps the contribution of deep ranks in reciprocal-rank fusion.
const rrfK = 60

// Candidate is one deduplicated URL with its fused score across providers
// and query phrasings.
type Candidate struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Snippet   string   `json:"snippet,omitempty"`
	Score     float64  `json:"score"`
	Providers []string `json:"providers"`
}

// Fuse merges ranked hit lists into one candidate list using reciprocal-rank
// fusion. Hits are deduplicated on the normalized URL; a URL surfaced by
// several lists accumulates score from each. Hits whose URL cannot be
// normalized are dropped. The result is sorted by score descending with the
// URL as a deterministic tiebreak.
func Fuse(lists ...[]model.SearchHit) []Candidate {
	byURL := make(map[string]*Candidate)

	for _, hits := range lists {
		for _, hit := range hits {
			norm, err := model.NormalizeURL(hit.URL)
			if err != nil {
				continue
			}

			c, ok := byURL[norm]
			if !ok {
				c = &Candidate{URL: norm}
				byURL[norm] = c
			}
			c.Score += 1.0 / float64(rrfK+hit.Rank)

			// Prefer the richest metadata seen across lists.
			if len(hit.Title) > len(c.Title) {
				c.Title = hit.Title
			}
			if len(hit.Snippet) > len(c.Snippet) {
				c.Snippet = hit.Snippet
			}
			if !contains(c.Providers, hit.Provider) {
				c.Providers = append(c.Providers, hit.Provider)
			}
		}
	}

	out := make([]Candidate, 0, len(byURL))
	for _, c := range byURL {
		sort.Strings(c.Providers)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URL < out[j].URL
	})
	return out
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
