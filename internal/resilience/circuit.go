package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned when a call is rejected by an open breaker.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before allowing a probe.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns the per-provider defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
}

// Breaker is a closed → open → half-open circuit breaker for one service.
// After ResetTimeout a single probe is allowed; its outcome closes or
// reopens the circuit.
type Breaker struct {
	cfg BreakerConfig

	mu            sync.Mutex
	failures      int
	openedAt      time.Time
	open          bool
	probeInFlight bool

	now func() time.Time
}

// NewBreaker creates a breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a call may proceed. When the circuit is open and the
// reset timeout has elapsed, exactly one caller is admitted as the probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout || b.probeInFlight {
		return ErrCircuitOpen
	}
	b.probeInFlight = true
	return nil
}

// Record reports the outcome of an allowed call.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.open = false
		b.probeInFlight = false
		return
	}

	b.failures++
	b.probeInFlight = false
	if b.open || b.failures >= b.cfg.FailureThreshold {
		b.open = true
		b.openedAt = b.now()
	}
}

// Open reports whether the circuit currently rejects calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && b.now().Sub(b.openedAt) < b.cfg.ResetTimeout
}

// ServiceBreakers is a lazily-populated registry of per-service breakers.
type ServiceBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      BreakerConfig
}

// NewServiceBreakers creates the registry.
func NewServiceBreakers(cfg BreakerConfig) *ServiceBreakers {
	return &ServiceBreakers{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for service, creating it if needed.
func (sb *ServiceBreakers) Get(service string) *Breaker {
	sb.mu.RLock()
	br, ok := sb.breakers[service]
	sb.mu.RUnlock()
	if ok {
		return br
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if br, ok = sb.breakers[service]; ok {
		return br
	}
	br = NewBreaker(sb.cfg)
	sb.breakers[service] = br
	return br
}
