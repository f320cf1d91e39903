package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/cache"
	"github.com/sells-group/prospector/internal/fetch"
	"github.com/sells-group/prospector/internal/govern"
	"github.com/sells-group/prospector/internal/orchestrator"
	"github.com/sells-group/prospector/internal/proxy"
	"github.com/sells-group/prospector/internal/resilience"
	"github.com/sells-group/prospector/internal/search"
	"github.com/sells-group/prospector/internal/store"
	"github.com/sells-group/prospector/pkg/brave"
	"github.com/sells-group/prospector/pkg/jina"
	"github.com/sells-group/prospector/pkg/llm"
)

// engineEnv holds the initialized store and orchestrator shared by the
// run and serve commands.
type engineEnv struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator

	stopHealth context.CancelFunc
}

// Close releases resources held by the engine environment.
func (e *engineEnv) Close() {
	if e.stopHealth != nil {
		e.stopHealth()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "prospector.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine sets up the store, search providers, and the fetch pipeline,
// and wires them into an orchestrator. Callers should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &engineEnv{Store: st}

	// Jina serves two roles: a search provider and the rendered transport.
	jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)

	// One tiered cache serves both search results and fetched pages; the
	// store is the durable tier beneath the bounded memory tier.
	tiers := cache.NewTiered(cache.NewMemory(cache.TTLPage, 0), st)

	var providers []search.Provider
	if cfg.Jina.Key != "" {
		providers = append(providers, search.NewJinaProvider(jinaClient))
	}
	if cfg.Brave.Key != "" {
		braveClient := brave.NewClient(cfg.Brave.Key, brave.WithBaseURL(cfg.Brave.BaseURL))
		var searchOpts []brave.SearchOption
		if cfg.Brave.Country != "" {
			searchOpts = append(searchOpts, brave.WithCountry(cfg.Brave.Country))
		}
		providers = append(providers, search.NewBraveProvider(braveClient, searchOpts...))
	} else {
		zap.L().Debug("PROSPECTOR_BRAVE_KEY not set, brave search disabled")
	}
	aggregator := search.NewAggregator(providers, search.WithCache(tiers))

	governor := govern.New(govern.Config{
		Baseline:          time.Duration(cfg.Govern.BaselineMs) * time.Millisecond,
		Ceiling:           time.Duration(cfg.Govern.CeilingSecs) * time.Second,
		BackoffFactor:     cfg.Govern.BackoffFactor,
		DecayFactor:       cfg.Govern.DecayFactor,
		SuccessWindow:     cfg.Govern.SuccessWindow,
		HardBlockCooldown: time.Duration(cfg.Govern.HardBlockCooldownSecs) * time.Second,
	})

	fetchOpts := []fetch.Option{
		fetch.WithCache(tiers),
	}
	if cfg.Jina.Key != "" {
		fetchOpts = append(fetchOpts, fetch.WithRenderer(fetch.NewJinaRenderer(jinaClient)))
	}
	if len(cfg.Proxy.Endpoints) > 0 {
		pool := proxy.NewPool(proxy.Config{}, cfg.Proxy.Endpoints)
		fetchOpts = append(fetchOpts, fetch.WithProxyPool(pool))

		healthCtx, stop := context.WithCancel(context.Background())
		env.stopHealth = stop
		go proxy.NewHealthChecker(pool, cfg.Proxy.ProbeURL, time.Minute).Run(healthCtx)
	}

	fetcher := fetch.NewClient(fetch.Config{
		UserAgent:      cfg.Fetch.UserAgent,
		RequestTimeout: time.Duration(cfg.Fetch.RequestTimeoutSecs) * time.Second,
		RenderTimeout:  time.Duration(cfg.Fetch.RenderTimeoutSecs) * time.Second,
		RespectRobots:  cfg.Fetch.RespectRobots,
		Retry:          resilience.RetryConfig{MaxAttempts: cfg.Fetch.MaxAttempts},
	}, governor, fetchOpts...)

	orchOpts := []orchestrator.Option{
		orchestrator.WithStore(st),
		orchestrator.WithObserver(orchestrator.LoggingObserver()),
	}
	if cfg.Anthropic.Key != "" {
		phraser := orchestrator.NewLLMPhraser(llm.NewAnthropic(cfg.Anthropic.Key, llm.Config{
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		}))
		orchOpts = append(orchOpts, orchestrator.WithPhraser(phraser))
	} else {
		zap.L().Debug("PROSPECTOR_ANTHROPIC_KEY not set, phrasing expansion disabled")
	}

	env.Orchestrator = orchestrator.New(aggregator, fetcher, orchOpts...)
	return env, nil
}
