package govern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	return Config{
		Baseline:          100 * time.Millisecond,
		Ceiling:           2 * time.Second,
		BackoffFactor:     2.0,
		DecayFactor:       2.0,
		SuccessWindow:     3,
		HardBlockCooldown: 10 * time.Minute,
	}
}

func TestAdmit_FirstRequestImmediate(t *testing.T) {
	g := New(testConfig())
	wait := g.Admit("example.com")
	assert.LessOrEqual(t, wait, time.Millisecond)
}

func TestReport_SoftBlockWidensInterval(t *testing.T) {
	g := New(testConfig())
	before := g.Interval("example.com")

	g.Report("example.com", OutcomeSoftBlock)
	after := g.Interval("example.com")
	assert.Equal(t, 2*before, after)

	// Two sequential admits after a soft block must be spaced at least the
	// pre-backoff interval apart.
	_ = g.Admit("example.com")
	wait := g.Admit("example.com")
	assert.GreaterOrEqual(t, wait, before)
}

func TestReport_SoftBlockRespectsCeiling(t *testing.T) {
	g := New(testConfig())
	for range 20 {
		g.Report("example.com", OutcomeSoftBlock)
	}
	assert.Equal(t, 2*time.Second, g.Interval("example.com"))
}

func TestReport_SuccessDecaysTowardFloor(t *testing.T) {
	g := New(testConfig())
	g.Report("example.com", OutcomeSoftBlock)
	g.Report("example.com", OutcomeSoftBlock)
	assert.Equal(t, 400*time.Millisecond, g.Interval("example.com"))

	// One decay step after SuccessWindow consecutive successes.
	for range 3 {
		g.Report("example.com", OutcomeSuccess)
	}
	assert.Equal(t, 200*time.Millisecond, g.Interval("example.com"))

	// Never below the floor.
	for range 30 {
		g.Report("example.com", OutcomeSuccess)
	}
	assert.Equal(t, 100*time.Millisecond, g.Interval("example.com"))
}

func TestReport_HardBlockCooldown(t *testing.T) {
	g := New(testConfig())
	now := time.Now()
	g.now = func() time.Time { return now }

	g.Report("example.com", OutcomeHardBlock)

	wait := g.Admit("example.com")
	assert.Equal(t, 10*time.Minute, wait)

	// Cooldown expires.
	g.now = func() time.Time { return now.Add(11 * time.Minute) }
	assert.Equal(t, time.Duration(0), g.CooldownRemaining("example.com"))
}

func TestDomainsAreIndependent(t *testing.T) {
	g := New(testConfig())
	for range 5 {
		g.Report("slow.example.com", OutcomeSoftBlock)
	}

	assert.Greater(t, g.Interval("slow.example.com"), testConfig().Baseline)
	assert.Equal(t, testConfig().Baseline, g.Interval("fast.example.org"))

	wait := g.Admit("fast.example.org")
	assert.LessOrEqual(t, wait, time.Millisecond)
}
