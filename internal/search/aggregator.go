package search

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospector/internal/cache"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
)

// ErrNoProviders means the aggregator was built with an empty provider set.
// This is a configuration error and fails the run immediately.
var ErrNoProviders = eris.New("search: no providers configured")

// Failure records one provider query that did not produce results. The run
// continues; failures surface in the audit log.
type Failure struct {
	Provider string `json:"provider"`
	Query    string `json:"query"`
	Err      string `json:"error"`
}

// Aggregator fans queries out across providers and fuses the results. A
// provider that errors or whose circuit is open degrades the result set, it
// never fails the aggregation.
type Aggregator struct {
	providers []Provider
	breakers  *resilience.ServiceBreakers
	retry     resilience.RetryConfig
	cache     *cache.Tiered
	limit     int
}

// AggregatorOption configures the aggregator.
type AggregatorOption func(*Aggregator)

// WithConcurrency bounds the number of in-flight provider queries.
func WithConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithRetry overrides the per-query retry budget.
func WithRetry(cfg resilience.RetryConfig) AggregatorOption {
	return func(a *Aggregator) { a.retry = cfg }
}

// WithCache stores provider results under the search TTL class, keyed on
// provider and query. Repeated phrasings within the TTL skip the provider.
func WithCache(t *cache.Tiered) AggregatorOption {
	return func(a *Aggregator) { a.cache = t }
}

// NewAggregator builds an aggregator over the given providers.
func NewAggregator(providers []Provider, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		providers: providers,
		breakers:  resilience.NewServiceBreakers(resilience.DefaultBreakerConfig()),
		retry:     resilience.DefaultRetryConfig(),
		limit:     4,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Search issues every phrasing to every provider concurrently and fuses the
// ranked lists. It errors only on misconfiguration (no providers) or context
// cancellation; individual provider failures come back in the Failure slice.
func (a *Aggregator) Search(ctx context.Context, phrasings []string) ([]Candidate, []Failure, error) {
	if len(a.providers) == 0 {
		return nil, nil, ErrNoProviders
	}
	if len(phrasings) == 0 {
		return nil, nil, eris.New("search: no query phrasings")
	}

	var (
		mu       sync.Mutex
		lists    [][]model.SearchHit
		failures []Failure
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)

	for _, p := range a.providers {
		for _, query := range phrasings {
			g.Go(func() error {
				hits, err := a.query(ctx, p, query)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					// Cancellation aborts the whole fan-out; provider
					// trouble is recorded and tolerated.
					if ctx.Err() != nil {
						return ctx.Err()
					}
					zap.L().Warn("search: provider query failed",
						zap.String("provider", p.Name()),
						zap.String("query", query),
						zap.Error(err),
					)
					failures = append(failures, Failure{
						Provider: p.Name(),
						Query:    query,
						Err:      err.Error(),
					})
					return nil
				}
				lists = append(lists, hits)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, failures, err
	}

	if len(lists) == 0 {
		return nil, failures, eris.New("search: every provider query failed")
	}
	return Fuse(lists...), failures, nil
}

// query answers one provider+query pair, from the cache when possible.
// Failed provider calls are never cached.
func (a *Aggregator) query(ctx context.Context, p Provider, query string) ([]model.SearchHit, error) {
	if a.cache == nil {
		return a.callProvider(ctx, p, query)
	}

	key := cache.Key(p.Name()+"|"+query, "search")
	payload, _, err := a.cache.GetOrCompute(ctx, cache.ClassSearch, key, func(ctx context.Context) ([]byte, error) {
		hits, err := a.callProvider(ctx, p, query)
		if err != nil {
			return nil, err
		}
		return json.Marshal(hits)
	})
	if err != nil {
		return nil, err
	}

	var hits []model.SearchHit
	if err := json.Unmarshal(payload, &hits); err != nil {
		return nil, eris.Wrap(err, "search: decode cached hits")
	}
	return hits, nil
}

// callProvider runs one provider call behind its circuit breaker and retry
// budget.
func (a *Aggregator) callProvider(ctx context.Context, p Provider, query string) ([]model.SearchHit, error) {
	br := a.breakers.Get(p.Name())
	if err := br.Allow(); err != nil {
		return nil, err
	}

	hits, err := resilience.RetryVal(ctx, a.retry, func(ctx context.Context) ([]model.SearchHit, error) {
		return p.Search(ctx, query)
	})
	br.Record(err)
	return hits, err
}
