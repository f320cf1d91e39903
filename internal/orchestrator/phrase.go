package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/pkg/llm"
)

// Phraser expands a goal query into alternative search phrasings.
type Phraser interface {
	Phrasings(ctx context.Context, query string, n int) ([]string, error)
}

const phrasingSystem = `You rewrite web-search queries. Respond with a JSON array of strings and nothing else.`

// LLMPhraser generates phrasings with a model call. Failures degrade to the
// original query; phrasing expansion is never load-bearing.
type LLMPhraser struct {
	client llm.Client
}

// NewLLMPhraser wraps an llm client as a Phraser.
func NewLLMPhraser(client llm.Client) *LLMPhraser {
	return &LLMPhraser{client: client}
}

func (p *LLMPhraser) Phrasings(ctx context.Context, query string, n int) ([]string, error) {
	prompt := fmt.Sprintf(
		"Produce %d alternative search phrasings for the query below. Keep the intent, vary the vocabulary.\n\nQuery: %s",
		n, query,
	)
	raw, err := p.client.ExtractStructured(ctx, phrasingSystem, prompt)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: phrasing call")
	}

	var phrasings []string
	if err := json.Unmarshal(raw, &phrasings); err != nil {
		return nil, eris.Wrap(err, "orchestrator: decode phrasings")
	}
	if len(phrasings) > n {
		phrasings = phrasings[:n]
	}
	return phrasings, nil
}
