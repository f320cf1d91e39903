package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for range 3 {
		require.NoError(t, b.Allow())
		b.Record(errors.New("provider down"))
	}

	assert.True(t, b.Open())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_ProbeAfterResetTimeout(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Allow())
	b.Record(errors.New("down"))
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	// After the reset timeout exactly one probe is admitted.
	b.now = func() time.Time { return now.Add(2 * time.Minute) }
	require.NoError(t, b.Allow())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	// Successful probe closes the circuit.
	b.Record(nil)
	require.NoError(t, b.Allow())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Allow())
	b.Record(errors.New("down"))

	b.now = func() time.Time { return now.Add(2 * time.Minute) }
	require.NoError(t, b.Allow())
	b.Record(errors.New("still down"))

	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestServiceBreakers_PerService(t *testing.T) {
	sb := NewServiceBreakers(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	a := sb.Get("jina")
	require.NoError(t, a.Allow())
	a.Record(errors.New("down"))

	assert.ErrorIs(t, sb.Get("jina").Allow(), ErrCircuitOpen)
	assert.NoError(t, sb.Get("brave").Allow())
	assert.Same(t, a, sb.Get("jina"))
}
