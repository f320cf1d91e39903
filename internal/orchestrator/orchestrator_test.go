package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/search"
)

type stubSearcher struct {
	candidates []search.Candidate
	failures   []search.Failure
	err        error
}

func (s *stubSearcher) Search(_ context.Context, _ []string) ([]search.Candidate, []search.Failure, error) {
	return s.candidates, s.failures, s.err
}

type stubFetcher struct {
	pages map[string]string // url -> body
	delay time.Duration
	calls atomic.Int32
}

func (f *stubFetcher) Fetch(ctx context.Context, req model.FetchRequest) model.FetchResult {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return model.FetchResult{URL: req.URL, Status: model.FetchTimeout, Reason: "deadline"}
		case <-time.After(f.delay):
		}
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return model.FetchResult{URL: req.URL, Status: model.FetchError, Reason: "not found"}
	}
	return model.FetchResult{URL: req.URL, Status: model.FetchOK, StatusCode: 200, Body: []byte(body)}
}

// businessPage builds a realistic page asserting a subject via JSON-LD.
func businessPage(name, city, phone string) string {
	return fmt.Sprintf(`<html><head><title>%s</title>
<script type="application/ld+json">
{"@type":"LocalBusiness","name":"%s","telephone":"%s","address":{"addressLocality":"%s","addressRegion":"MT"}}
</script></head><body><article><h1>%s</h1><p>%s serves %s and the surrounding valley with
dependable wholesale supply, same-week delivery, and a fully stocked warehouse open to trade
customers five days a week. Our staff has decades of combined experience matching studios and
shops with the right materials, and our pricing stays flat for standing orders placed before
the first of the month. Stop by the warehouse or call to set up a trade account today.</p>
</article></body></html>`, name, name, phone, city, name, name, city)
}

func candidates(urls ...string) []search.Candidate {
	out := make([]search.Candidate, len(urls))
	for i, u := range urls {
		out[i] = search.Candidate{URL: u, Score: 1.0 / float64(i+1)}
	}
	return out
}

func TestRun_NoProvidersFailsFast(t *testing.T) {
	o := New(&stubSearcher{err: search.ErrNoProviders}, &stubFetcher{})
	_, err := o.Run(context.Background(), model.Goal{Query: "clay suppliers"}, model.Constraints{})
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrNoProviders)
}

func TestRun_EmptyQuery(t *testing.T) {
	o := New(&stubSearcher{}, &stubFetcher{})
	_, err := o.Run(context.Background(), model.Goal{Query: "  "}, model.Constraints{})
	require.Error(t, err)
}

func TestRun_VerifiesAcrossSources(t *testing.T) {
	pages := map[string]string{
		"https://riverbendclay.com/about": businessPage("Riverbend Clay Supply", "Missoula", "(406) 555-0142"),
		"https://yelp.com/biz/riverbend":  businessPage("Riverbend Clay Supply", "Missoula", "406-555-0142"),
		"https://unrelated.example.com":   businessPage("Other Shop", "Helena", "406-555-7777"),
	}
	searcher := &stubSearcher{candidates: candidates(
		"https://riverbendclay.com/about",
		"https://yelp.com/biz/riverbend",
		"https://unrelated.example.com",
	)}

	o := New(searcher, &stubFetcher{pages: pages})
	result, err := o.Run(context.Background(), model.Goal{Query: "clay suppliers missoula"}, model.Constraints{})
	require.NoError(t, err)

	require.NotEmpty(t, result.Entities)
	top := result.Entities[0]
	assert.Equal(t, "riverbend clay supply", top.Subject)
	assert.Equal(t, model.StateVerified, top.State)
	assert.ElementsMatch(t, []string{"riverbendclay.com", "yelp.com"}, top.CorroboratingSources)

	// The single-source subject is present but not verified.
	var other *model.VerifiedEntity
	for i := range result.Entities {
		if result.Entities[i].Subject == "other shop" {
			other = &result.Entities[i]
		}
	}
	require.NotNil(t, other)
	assert.Equal(t, model.StateUnverified, other.State)

	assert.Equal(t, 3, result.FetchesIssued)
	assert.False(t, result.BudgetExhausted)
}

func TestRun_ProviderFailureIsAuditedNotFatal(t *testing.T) {
	pages := map[string]string{
		"https://a.example.com": businessPage("Shop A", "Bozeman", "406-555-0001"),
	}
	searcher := &stubSearcher{
		candidates: candidates("https://a.example.com"),
		failures:   []search.Failure{{Provider: "jina", Query: "q", Err: "upstream 503"}},
	}

	o := New(searcher, &stubFetcher{pages: pages})
	result, err := o.Run(context.Background(), model.Goal{Query: "shops bozeman"}, model.Constraints{})
	require.NoError(t, err)

	var audited bool
	for _, e := range result.Audit {
		if e.Stage == model.StageSearchFailed && e.Outcome == "upstream 503" {
			audited = true
		}
	}
	assert.True(t, audited, "provider failure must appear in the audit trail")
	assert.NotEmpty(t, result.Errors)
	assert.NotEmpty(t, result.Entities, "run proceeds on surviving providers")
}

func TestRun_RespectsCandidateCap(t *testing.T) {
	var urls []string
	pages := make(map[string]string)
	for i := range 30 {
		u := fmt.Sprintf("https://site%02d.example.com", i)
		urls = append(urls, u)
		pages[u] = businessPage(fmt.Sprintf("Shop %02d", i), "Helena", "406-555-0100")
	}

	fetcher := &stubFetcher{pages: pages}
	o := New(&stubSearcher{candidates: candidates(urls...)}, fetcher)

	result, err := o.Run(context.Background(), model.Goal{Query: "shops"}, model.Constraints{MaxCandidates: 5})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Candidates)
	assert.LessOrEqual(t, result.FetchesIssued, 5)
	assert.LessOrEqual(t, int(fetcher.calls.Load()), 5)
}

func TestRun_BudgetExhaustionYieldsPartialResults(t *testing.T) {
	pages := make(map[string]string)
	var urls []string
	for i := range 10 {
		u := fmt.Sprintf("https://slow%02d.example.com", i)
		urls = append(urls, u)
		pages[u] = businessPage(fmt.Sprintf("Slow Shop %02d", i), "Butte", "406-555-0200")
	}

	fetcher := &stubFetcher{pages: pages, delay: 60 * time.Millisecond}
	o := New(&stubSearcher{candidates: candidates(urls...)}, fetcher)

	result, err := o.Run(context.Background(), model.Goal{Query: "slow shops"}, model.Constraints{
		MaxWallClock:  200 * time.Millisecond,
		MaxConcurrent: 1,
	})
	require.NoError(t, err, "budget expiry is not an error")

	assert.True(t, result.BudgetExhausted)
	assert.Less(t, result.FetchesIssued, 10, "the budget must cut the fetch fan-out short")
	assert.NotEmpty(t, result.Entities, "evidence gathered before expiry is still verified")

	var budgetAudited bool
	for _, e := range result.Audit {
		if e.Stage == model.StageBudget {
			budgetAudited = true
		}
	}
	assert.True(t, budgetAudited)
}

func TestRun_MinConfidenceFilters(t *testing.T) {
	// Distinct registrable domains; subdomains of one site would fold
	// together and not corroborate.
	pages := map[string]string{
		"https://riverbendclay.com/about":   businessPage("Riverbend Clay Supply", "Missoula", "406-555-0142"),
		"https://mtsuppliers.com/riverbend": businessPage("Riverbend Clay Supply", "Missoula", "406-555-0142"),
		"https://lone.example.com":          businessPage("Lone Mention LLC", "Helena", "406-555-0300"),
	}
	o := New(&stubSearcher{candidates: candidates(
		"https://riverbendclay.com/about",
		"https://mtsuppliers.com/riverbend",
		"https://lone.example.com",
	)}, &stubFetcher{pages: pages})

	result, err := o.Run(context.Background(), model.Goal{Query: "suppliers"}, model.Constraints{
		MinConfidence: 0.5,
	})
	require.NoError(t, err)

	require.Len(t, result.Entities, 1)
	assert.Equal(t, "riverbend clay supply", result.Entities[0].Subject)
	assert.GreaterOrEqual(t, result.Entities[0].Confidence, 0.5)
}

func TestRun_ObserversSeeStagesInOrder(t *testing.T) {
	pages := map[string]string{
		"https://a.example.com": businessPage("Shop A", "Bozeman", "406-555-0001"),
	}
	var stages []string
	obs := ObserverFunc(func(_ string, e model.AuditEntry) {
		stages = append(stages, e.Stage)
	})

	o := New(
		&stubSearcher{candidates: candidates("https://a.example.com")},
		&stubFetcher{pages: pages},
		WithObserver(obs),
	)
	result, err := o.Run(context.Background(), model.Goal{Query: "shops"}, model.Constraints{})
	require.NoError(t, err)

	assert.Equal(t, len(result.Audit), len(stages))
	assert.Equal(t, model.StageSearchIssued, stages[0])
	assert.Contains(t, stages, model.StageFetchCompleted)
	assert.Contains(t, stages, model.StageEntityVerified)
}

func TestRun_BlockedFetchIsDegradedNotFatal(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{}} // everything errors
	o := New(&stubSearcher{candidates: candidates("https://blocked.example.com")}, fetcher)

	result, err := o.Run(context.Background(), model.Goal{Query: "anything"}, model.Constraints{})
	require.NoError(t, err)
	assert.Empty(t, result.Entities)
	assert.NotEmpty(t, result.Errors)
}
