package search

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/pkg/brave"
)

// BraveProvider adapts the Brave Search API to the Provider interface.
type BraveProvider struct {
	client brave.Client
	opts   []brave.SearchOption
}

// NewBraveProvider wraps a Brave client as a search provider. The given
// search options are applied to every query.
func NewBraveProvider(client brave.Client, opts ...brave.SearchOption) *BraveProvider {
	return &BraveProvider{client: client, opts: opts}
}

func (p *BraveProvider) Name() string { return "brave" }

func (p *BraveProvider) Search(ctx context.Context, query string) ([]model.SearchHit, error) {
	resp, err := p.client.Search(ctx, query, p.opts...)
	if err != nil {
		return nil, eris.Wrap(err, "search: brave query")
	}

	hits := make([]model.SearchHit, 0, len(resp.Web.Results))
	for i, r := range resp.Web.Results {
		if r.URL == "" {
			continue
		}
		hits = append(hits, model.SearchHit{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Description,
			Provider: p.Name(),
			Rank:     i + 1,
		})
	}
	return hits, nil
}
