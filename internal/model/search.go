package model

// SearchHit is a single candidate URL returned by a search provider.
// Ephemeral; deduplicated by normalized URL before fetching.
type SearchHit struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet,omitempty"`
	Provider string `json:"provider"`
	Rank     int    `json:"rank"`
}
