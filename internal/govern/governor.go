// Package govern paces outbound requests per origin. Each domain carries its
// own adaptive interval: soft blocks widen it, sustained success decays it
// back toward the configured baseline, hard blocks impose a cooldown. State
// for one domain never throttles another.
package govern

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Outcome is the caller's report of how a request to an origin went.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeSoftBlock Outcome = "soft_block"
	OutcomeHardBlock Outcome = "hard_block"
	OutcomeError     Outcome = "error"
)

// Config tunes the governor. Zero values fall back to defaults.
type Config struct {
	// Baseline is the floor interval between requests to one domain.
	Baseline time.Duration
	// Ceiling caps the interval regardless of how many blocks occur.
	Ceiling time.Duration
	// BackoffFactor multiplies the interval on a soft block.
	BackoffFactor float64
	// DecayFactor divides the interval after SuccessWindow consecutive
	// successes.
	DecayFactor float64
	// SuccessWindow is how many consecutive successes trigger one decay step.
	SuccessWindow int
	// HardBlockCooldown is how long Admit refuses a hard-blocked domain.
	HardBlockCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.Baseline <= 0 {
		c.Baseline = 500 * time.Millisecond
	}
	if c.Ceiling <= 0 {
		c.Ceiling = 60 * time.Second
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2.0
	}
	if c.DecayFactor <= 1 {
		c.DecayFactor = 1.5
	}
	if c.SuccessWindow <= 0 {
		c.SuccessWindow = 5
	}
	if c.HardBlockCooldown <= 0 {
		c.HardBlockCooldown = 5 * time.Minute
	}
	return c
}

// originState is the per-domain pacing arena. Mutated only under its own
// lock; the interval never drops below the baseline floor and never exceeds
// the ceiling.
type originState struct {
	mu                   sync.Mutex
	limiter              *rate.Limiter
	interval             time.Duration
	consecutiveFailures  int
	consecutiveSuccesses int
	cooldownUntil        time.Time
}

// Governor hands out per-domain wait durations. It never sleeps itself;
// callers honor the returned delay.
type Governor struct {
	cfg     Config
	mu      sync.Mutex
	origins map[string]*originState

	// now is swapped in tests.
	now func() time.Time
}

// New creates a Governor with the given config.
func New(cfg Config) *Governor {
	return &Governor{
		cfg:     cfg.withDefaults(),
		origins: make(map[string]*originState),
		now:     time.Now,
	}
}

// Admit returns how long the caller must wait before issuing the next
// request to domain. During a hard-block cooldown it returns the remaining
// cooldown. Non-blocking.
func (g *Governor) Admit(domain string) time.Duration {
	st := g.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()

	if until := st.cooldownUntil; g.now().Before(until) {
		return until.Sub(g.now())
	}

	// Reserve the next slot; the limiter spaces requests one interval apart.
	r := st.limiter.Reserve()
	return r.Delay()
}

// Report feeds a request outcome back into the domain's pacing state.
func (g *Governor) Report(domain string, outcome Outcome) {
	st := g.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()

	switch outcome {
	case OutcomeSuccess:
		st.consecutiveFailures = 0
		st.consecutiveSuccesses++
		if st.consecutiveSuccesses >= g.cfg.SuccessWindow && st.interval > g.cfg.Baseline {
			st.consecutiveSuccesses = 0
			decayed := time.Duration(float64(st.interval) / g.cfg.DecayFactor)
			if decayed < g.cfg.Baseline {
				decayed = g.cfg.Baseline
			}
			setInterval(st, decayed)
		}

	case OutcomeSoftBlock:
		st.consecutiveSuccesses = 0
		st.consecutiveFailures++
		widened := time.Duration(float64(st.interval) * g.cfg.BackoffFactor)
		if widened > g.cfg.Ceiling {
			widened = g.cfg.Ceiling
		}
		setInterval(st, widened)

	case OutcomeHardBlock:
		st.consecutiveSuccesses = 0
		st.consecutiveFailures++
		st.cooldownUntil = g.now().Add(g.cfg.HardBlockCooldown)

	case OutcomeError:
		st.consecutiveSuccesses = 0
		st.consecutiveFailures++
	}
}

// Interval reports the current pacing interval for a domain.
func (g *Governor) Interval(domain string) time.Duration {
	st := g.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.interval
}

// CooldownRemaining reports how much hard-block cooldown is left for a domain.
func (g *Governor) CooldownRemaining(domain string) time.Duration {
	st := g.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	if rem := st.cooldownUntil.Sub(g.now()); rem > 0 {
		return rem
	}
	return 0
}

func setInterval(st *originState, d time.Duration) {
	st.interval = d
	st.limiter.SetLimit(rate.Every(d))
}

func (g *Governor) state(domain string) *originState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.origins[domain]
	if !ok {
		st = &originState{
			interval: g.cfg.Baseline,
			limiter:  rate.NewLimiter(rate.Every(g.cfg.Baseline), 1),
		}
		g.origins[domain] = st
	}
	return st
}
