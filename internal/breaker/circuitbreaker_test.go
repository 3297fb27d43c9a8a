package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := New(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		require.Equalf(t, "CLOSED", b.State(), "after %d failures", i+1)
	}

	b.RecordFailure()
	require.Equal(t, "OPEN", b.State())
	assert.False(t, b.ShouldAttempt(), "ShouldAttempt should be false immediately after opening")
}

func TestBreakerHalfOpenAfterRecoveryTimeout(t *testing.T) {
	b := New(1, time.Millisecond)
	b.RecordFailure()
	require.Equal(t, "OPEN", b.State())

	time.Sleep(5 * time.Millisecond)

	require.True(t, b.ShouldAttempt(), "expected ShouldAttempt to transition to HALF_OPEN and return true")
	assert.Equal(t, "HALF_OPEN", b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New(1, time.Millisecond)
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	b.ShouldAttempt() // -> HALF_OPEN

	b.RecordFailure()
	assert.Equal(t, "OPEN", b.State(), "want OPEN after failure in HALF_OPEN")
}

func TestBreakerSuccessResetsFromAnyState(t *testing.T) {
	b := New(1, time.Minute)
	b.RecordFailure()
	require.Equal(t, "OPEN", b.State())

	b.RecordSuccess()
	assert.Equal(t, "CLOSED", b.State())
	assert.True(t, b.ShouldAttempt(), "expected ShouldAttempt to be true when CLOSED")
}

func TestBreakerPenalties(t *testing.T) {
	b := New(1, time.Millisecond)
	assert.Equal(t, 0, b.Penalty())

	b.RecordFailure() // -> OPEN
	assert.Equal(t, 100000, b.Penalty())

	time.Sleep(5 * time.Millisecond)
	b.ShouldAttempt() // -> HALF_OPEN
	assert.Equal(t, 50000, b.Penalty())
}
