// Package proxy tracks egress identities and their health. Identities are
// weighted by recent success rate and latency, quarantined after consecutive
// failures, and evicted permanently after quarantine recurs too often.
package proxy

import (
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config tunes pool behavior. Zero values fall back to defaults.
type Config struct {
	// QuarantineAfter is the consecutive-failure count that quarantines
	// an identity.
	QuarantineAfter int
	// QuarantineBase is the first quarantine duration; it doubles each
	// recurrence until a clean success resets it.
	QuarantineBase time.Duration
	// EvictAfter is how many quarantines inside EvictWindow evict an
	// identity permanently.
	EvictAfter  int
	EvictWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.QuarantineAfter <= 0 {
		c.QuarantineAfter = 3
	}
	if c.QuarantineBase <= 0 {
		c.QuarantineBase = 30 * time.Second
	}
	if c.EvictAfter <= 0 {
		c.EvictAfter = 4
	}
	if c.EvictWindow <= 0 {
		c.EvictWindow = time.Hour
	}
	return c
}

// Identity is one egress proxy. All counters are owned by the pool and
// mutated only through Release and the health checker.
type Identity struct {
	Endpoint *url.URL
	Protocol string

	successCount        int
	failureCount        int
	consecutiveFailures int
	avgLatency          time.Duration
	quarantinedUntil    time.Time
	quarantineStreak    int
	quarantineTimes     []time.Time
	evicted             bool
}

// SuccessRate reports the identity's lifetime success ratio. New identities
// start optimistic so they get traffic.
func (id *Identity) SuccessRate() float64 {
	total := id.successCount + id.failureCount
	if total == 0 {
		return 1.0
	}
	return float64(id.successCount) / float64(total)
}

// Pool manages the set of proxy identities.
type Pool struct {
	cfg Config

	mu  sync.Mutex
	ids []*Identity

	now func() time.Time
}

// NewPool creates a pool from raw proxy URLs. Unparseable entries are
// dropped with a warning rather than failing startup.
func NewPool(cfg Config, endpoints []string) *Pool {
	p := &Pool{cfg: cfg.withDefaults(), now: time.Now}
	for _, raw := range endpoints {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			zap.L().Warn("proxy: skipping unparseable endpoint", zap.String("endpoint", raw))
			continue
		}
		p.ids = append(p.ids, &Identity{Endpoint: u, Protocol: u.Scheme})
	}
	return p
}

// Size reports how many identities remain admitted (quarantined included).
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, id := range p.ids {
		if !id.evicted {
			n++
		}
	}
	return n
}

// Acquire picks an identity weighted by success rate and inverse latency,
// excluding quarantined and evicted ones. An empty or exhausted pool returns
// ok=false; callers proceed without a proxy, never treating this as fatal.
func (p *Pool) Acquire() (*Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var eligible []*Identity
	var weights []float64
	total := 0.0
	for _, id := range p.ids {
		if id.evicted || now.Before(id.quarantinedUntil) {
			continue
		}
		w := id.SuccessRate() / (1.0 + id.avgLatency.Seconds())
		if w <= 0 {
			w = 0.01
		}
		eligible = append(eligible, id)
		weights = append(weights, w)
		total += w
	}
	if len(eligible) == 0 {
		return nil, false
	}

	r := rand.Float64() * total
	for i, id := range eligible {
		r -= weights[i]
		if r <= 0 {
			return id, true
		}
	}
	return eligible[len(eligible)-1], true
}

// Release reports the outcome of a request made through id.
func (p *Pool) Release(id *Identity, ok bool, latency time.Duration) {
	if id == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if ok {
		id.successCount++
		id.consecutiveFailures = 0
		// One clean success after quarantine resets the escalation.
		id.quarantineStreak = 0
		id.avgLatency = ewma(id.avgLatency, latency)
		return
	}

	id.failureCount++
	id.consecutiveFailures++
	if id.consecutiveFailures >= p.cfg.QuarantineAfter {
		p.quarantineLocked(id)
	}
}

// quarantineLocked excludes id for an exponentially increasing duration and
// evicts it when quarantine recurs EvictAfter times within EvictWindow.
func (p *Pool) quarantineLocked(id *Identity) {
	now := p.now()
	dur := p.cfg.QuarantineBase << id.quarantineStreak
	id.quarantineStreak++
	id.consecutiveFailures = 0
	id.quarantinedUntil = now.Add(dur)

	// Roll the window.
	id.quarantineTimes = append(id.quarantineTimes, now)
	cutoff := now.Add(-p.cfg.EvictWindow)
	kept := id.quarantineTimes[:0]
	for _, ts := range id.quarantineTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	id.quarantineTimes = kept

	if len(id.quarantineTimes) >= p.cfg.EvictAfter {
		id.evicted = true
		zap.L().Warn("proxy: identity evicted",
			zap.String("endpoint", id.Endpoint.Host),
			zap.Int("quarantines_in_window", len(id.quarantineTimes)),
		)
		return
	}

	zap.L().Info("proxy: identity quarantined",
		zap.String("endpoint", id.Endpoint.Host),
		zap.Duration("for", dur),
	)
}

// quarantined returns the identities currently sidelined, for health probes.
func (p *Pool) quarantined() []*Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	var out []*Identity
	for _, id := range p.ids {
		if !id.evicted && now.Before(id.quarantinedUntil) {
			out = append(out, id)
		}
	}
	return out
}

// clearQuarantine readmits an identity that passed a health probe.
func (p *Pool) clearQuarantine(id *Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id.quarantinedUntil = time.Time{}
	id.consecutiveFailures = 0
}

// ewma smooths latency with a 0.3 weight on the newest sample.
func ewma(avg, sample time.Duration) time.Duration {
	if avg == 0 {
		return sample
	}
	return time.Duration(0.7*float64(avg) + 0.3*float64(sample))
}
