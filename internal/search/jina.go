package search

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/pkg/jina"
)

// JinaProvider adapts the Jina search API to the Provider interface.
type JinaProvider struct {
	client jina.Client
}

// NewJinaProvider wraps a Jina client as a search provider.
func NewJinaProvider(client jina.Client) *JinaProvider {
	return &JinaProvider{client: client}
}

func (p *JinaProvider) Name() string { return "jina" }

func (p *JinaProvider) Search(ctx context.Context, query string) ([]model.SearchHit, error) {
	resp, err := p.client.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "search: jina query")
	}

	hits := make([]model.SearchHit, 0, len(resp.Data))
	for i, r := range resp.Data {
		if r.URL == "" {
			continue
		}
		snippet := r.Description
		if snippet == "" {
			snippet = r.Content
		}
		hits = append(hits, model.SearchHit{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  snippet,
			Provider: p.Name(),
			Rank:     i + 1,
		})
	}
	return hits, nil
}
