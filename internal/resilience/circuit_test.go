package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
	})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return eris.New("down")
		})
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)
	assert.Equal(t, CircuitClosed, cb.State())

	failN(cb, 2)
	assert.Equal(t, CircuitClosed, cb.State())

	failN(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), func(context.Context) error {
		t.Fatal("call admitted through open circuit")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)
	failN(cb, 2)
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	failN(cb, 2)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakerProbesAfterResetTimeout(t *testing.T) {
	cb, now := testBreaker(2, 30*time.Second)
	failN(cb, 2)
	assert.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(31 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// successful probe closes the circuit
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	cb, now := testBreaker(2, 30*time.Second)
	failN(cb, 2)
	*now = now.Add(31 * time.Second)

	failN(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return nil }), ErrCircuitOpen)
}

func TestBreakerShouldTripFilter(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		ShouldTrip:       IsTransient,
	})

	// permanent errors pass through without tripping
	_ = cb.Execute(context.Background(), func(context.Context) error {
		return eris.New("bad request")
	})
	assert.Equal(t, CircuitClosed, cb.State())

	_ = cb.Execute(context.Background(), func(context.Context) error {
		return NewTransientError(eris.New("down"), 503)
	})
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestBreakerOnStateChange(t *testing.T) {
	var moves []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			moves = append(moves, from.String()+">"+to.String())
		},
	})
	failN(cb, 1)
	cb.Reset()
	assert.Equal(t, []string{"closed>open", "open>closed"}, moves)
}

func TestExecuteValPreservesValue(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	val, err := ExecuteVal(context.Background(), cb, func(context.Context) ([]int, error) {
		return []int{1, 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, val)
}

func TestServiceBreakersPerName(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	reddit := sb.Get("reddit")
	assert.Same(t, reddit, sb.Get("reddit"))

	failN(reddit, 1)
	assert.Equal(t, CircuitOpen, sb.Get("reddit").State())
	assert.Equal(t, CircuitClosed, sb.Get("mastodon").State())

	states := sb.States()
	assert.Equal(t, CircuitOpen, states["reddit"])
	assert.Equal(t, CircuitClosed, states["mastodon"])
}
