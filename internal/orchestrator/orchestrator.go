// Package orchestrator drives a full acquisition run: search fan-out,
// bounded fetch and extraction, claim accumulation, and cross-source
// verification, all inside an explicit wall-clock budget with an append-only
// audit trail.
package orchestrator

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospector/internal/extract"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/search"
	"github.com/sells-group/prospector/internal/store"
	"github.com/sells-group/prospector/internal/verify"
)

// snippetLen bounds how much clean text travels with each claim for
// negative-signal scanning.
const snippetLen = 500

// verifyGrace is how long verification may run after the fetch budget
// expires. Verification is pure computation over already-gathered evidence.
const verifyGrace = 5 * time.Second

// Searcher is the search aggregation dependency.
type Searcher interface {
	Search(ctx context.Context, phrasings []string) ([]search.Candidate, []search.Failure, error)
}

// Fetcher is the page acquisition dependency.
type Fetcher interface {
	Fetch(ctx context.Context, req model.FetchRequest) model.FetchResult
}

// Orchestrator wires the acquisition stages together. Dependencies are
// injected; the store, phraser, and observers are optional.
type Orchestrator struct {
	searcher  Searcher
	fetcher   Fetcher
	store     store.Store
	phraser   Phraser
	observers []Observer
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithStore persists runs and verified entities.
func WithStore(s store.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithPhraser enables query phrasing expansion.
func WithPhraser(p Phraser) Option {
	return func(o *Orchestrator) { o.phraser = p }
}

// WithObserver registers a stage observer. May be given multiple times.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// New creates an orchestrator over the given search and fetch dependencies.
func New(searcher Searcher, fetcher Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{searcher: searcher, fetcher: fetcher}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func applyDefaults(c model.Constraints) model.Constraints {
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 20
	}
	if c.MaxWallClock <= 0 {
		c.MaxWallClock = 2 * time.Minute
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	return c
}

// Run executes one acquisition run. Configuration errors (no providers)
// fail fast; everything downstream degrades into the result instead of
// erroring. The returned result is populated even when the budget expires
// mid-run.
func (o *Orchestrator) Run(ctx context.Context, goal model.Goal, constraints model.Constraints) (*model.RunResult, error) {
	if strings.TrimSpace(goal.Query) == "" {
		return nil, eris.New("orchestrator: goal query is empty")
	}
	constraints = applyDefaults(constraints)

	runID := uuid.New().String()
	if o.store != nil {
		run, err := o.store.CreateRun(ctx, goal)
		if err != nil {
			return nil, eris.Wrap(err, "orchestrator: create run")
		}
		runID = run.ID
	}

	started := time.Now()
	trail := &auditTrail{runID: runID, observers: o.observers}
	result := &model.RunResult{}

	budgetCtx, cancel := context.WithTimeout(ctx, constraints.MaxWallClock)
	defer cancel()

	err := o.execute(budgetCtx, runID, goal, constraints, trail, result)
	result.Audit = trail.entries
	result.Elapsed = time.Since(started)

	if err != nil {
		o.setStatus(ctx, runID, model.RunStatusFailed)
		return nil, err
	}

	o.persistResult(runID, result)
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, runID string, goal model.Goal, constraints model.Constraints, trail *auditTrail, result *model.RunResult) error {
	// Search.
	o.setStatus(ctx, runID, model.RunStatusSearching)
	phrasings := o.phrasings(ctx, goal)

	searchStart := time.Now()
	trail.append(model.StageSearchIssued, strings.Join(phrasings, " | "), "", 0)

	candidates, failures, err := o.searcher.Search(ctx, phrasings)
	for _, f := range failures {
		trail.append(model.StageSearchFailed, f.Provider+": "+f.Query, f.Err, 0)
		result.Errors = append(result.Errors, "search "+f.Provider+": "+f.Err)
	}
	if err != nil {
		return eris.Wrap(err, "orchestrator: search")
	}
	trail.append(model.StageSearchIssued, goal.Query,
		"candidates="+strconv.Itoa(len(candidates)), time.Since(searchStart))

	if len(candidates) > constraints.MaxCandidates {
		candidates = candidates[:constraints.MaxCandidates]
	}
	result.Candidates = len(candidates)

	// Fetch and extract under the concurrency bound.
	o.setStatus(ctx, runID, model.RunStatusFetching)
	claims := o.acquire(ctx, candidates, constraints, trail, result)

	if ctx.Err() != nil {
		result.BudgetExhausted = true
		trail.append(model.StageBudget, goal.Query,
			"wall clock budget exhausted, verifying partial evidence", 0)
	}

	// Verify whatever evidence arrived. Runs even after budget expiry.
	o.setStatus(context.WithoutCancel(ctx), runID, model.RunStatusVerifying)
	verifyCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), verifyGrace)
		defer cancel()
	}
	o.verifyAll(verifyCtx, runID, claims, constraints, trail, result)
	return nil
}

// phrasings assembles the query variants: the goal's own, plus optional
// model-generated expansions.
func (o *Orchestrator) phrasings(ctx context.Context, goal model.Goal) []string {
	phrasings := append([]string{goal.Query}, goal.Phrasings...)
	if o.phraser != nil {
		extra, err := o.phraser.Phrasings(ctx, goal.Query, 3)
		if err != nil {
			zap.L().Warn("orchestrator: phrasing expansion failed", zap.Error(err))
		} else {
			phrasings = append(phrasings, extra...)
		}
	}

	seen := make(map[string]bool, len(phrasings))
	out := phrasings[:0]
	for _, p := range phrasings {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// acquire fetches and extracts every candidate, grouping resulting claims by
// subject. Individual failures degrade; only the context bound stops work.
func (o *Orchestrator) acquire(ctx context.Context, candidates []search.Candidate, constraints model.Constraints, trail *auditTrail, result *model.RunResult) map[string][]model.SourcedClaims {
	var mu sync.Mutex
	claims := make(map[string][]model.SourcedClaims)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constraints.MaxConcurrent)

	for _, cand := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := o.fetcher.Fetch(gctx, model.FetchRequest{URL: cand.URL, Transport: model.TransportAuto})

			mu.Lock()
			result.FetchesIssued++
			trail.append(model.StageFetchCompleted, cand.URL,
				string(res.Status)+outcomeDetail(res), res.Elapsed)
			mu.Unlock()

			if res.Status != model.FetchOK {
				if res.Status == model.FetchBlocked || res.Status == model.FetchError {
					mu.Lock()
					result.Errors = append(result.Errors, "fetch "+cand.URL+": "+res.Reason)
					mu.Unlock()
				}
				return nil
			}

			doc, err := extract.Extract(res)
			if err != nil {
				zap.L().Warn("orchestrator: extraction failed",
					zap.String("url", cand.URL), zap.Error(err))
				return nil
			}

			mu.Lock()
			trail.append(model.StageExtracted, cand.URL,
				"strategy="+doc.Strategy+" quality="+ftoa(doc.QualityScore), 0)
			mu.Unlock()

			if doc.QualityScore < extract.MinUsableQuality {
				return nil
			}

			subject := subjectKey(doc)
			if subject == "" {
				return nil
			}

			snippet := doc.CleanText
			if len(snippet) > snippetLen {
				snippet = snippet[:snippetLen]
			}
			claim := model.SourcedClaims{
				SourceURL: doc.URL,
				Domain:    model.Domain(doc.URL),
				Fields:    doc.Fields,
				Snippet:   snippet,
			}

			mu.Lock()
			claims[subject] = append(claims[subject], claim)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return claims
}

// verifyAll cross-references each subject's claims once all candidates have
// settled, filtering by the confidence floor.
func (o *Orchestrator) verifyAll(ctx context.Context, runID string, claims map[string][]model.SourcedClaims, constraints model.Constraints, trail *auditTrail, result *model.RunResult) {
	subjects := make([]string, 0, len(claims))
	for s := range claims {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	for _, subject := range subjects {
		if ctx.Err() != nil {
			break
		}
		entity := verify.Verify(subject, claims[subject])
		trail.append(model.StageEntityVerified, subject,
			string(entity.State)+" confidence="+ftoa(entity.Confidence), 0)

		if entity.Confidence < constraints.MinConfidence {
			continue
		}
		result.Entities = append(result.Entities, entity)

		if o.store != nil {
			if err := o.store.PutEntity(ctx, runID, entity); err != nil {
				zap.L().Warn("orchestrator: persist entity failed",
					zap.String("subject", subject), zap.Error(err))
			}
		}
	}

	sort.Slice(result.Entities, func(i, j int) bool {
		if result.Entities[i].Confidence != result.Entities[j].Confidence {
			return result.Entities[i].Confidence > result.Entities[j].Confidence
		}
		return result.Entities[i].Subject < result.Entities[j].Subject
	})
}

// subjectKey derives the grouping key for a document's claims: the
// canonicalized name field. Documents that assert no name cannot be
// attributed to a subject.
func subjectKey(doc model.ExtractedDocument) string {
	name := doc.Fields[model.FieldName]
	if name == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func (o *Orchestrator) setStatus(ctx context.Context, runID string, status model.RunStatus) {
	if o.store == nil {
		return
	}
	if err := o.store.UpdateRunStatus(ctx, runID, status); err != nil {
		zap.L().Warn("orchestrator: update status failed",
			zap.String("run_id", runID), zap.Error(err))
	}
}

func (o *Orchestrator) persistResult(runID string, result *model.RunResult) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.UpdateRunResult(ctx, runID, result); err != nil {
		zap.L().Warn("orchestrator: persist result failed",
			zap.String("run_id", runID), zap.Error(err))
	}
}

func outcomeDetail(res model.FetchResult) string {
	var parts []string
	if res.CacheHit {
		parts = append(parts, "cache_hit")
	}
	if res.Reason != "" {
		parts = append(parts, res.Reason)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
