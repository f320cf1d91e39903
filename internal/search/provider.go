// Package search fans a query out to multiple web-search providers and fuses
// their rankings into one deduplicated candidate list.
package search

import (
	"context"

	"github.com/sells-group/prospector/internal/model"
)

// Provider is one web-search backend.
type Provider interface {
	// Name identifies the provider in hit provenance and audit entries.
	Name() string
	// Search returns ranked hits for the query. Rank is 1-based within the
	// provider's own ordering.
	Search(ctx context.Context, query string) ([]model.SearchHit, error)
}
