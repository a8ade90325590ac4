package biz

import (
	"context"
	"sync"
	"testing"
	"time"

	"PuckRelay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingObserver collects published events.
type recordingObserver struct {
	mu     sync.Mutex
	events []model.PipelineEvent
}

func (o *recordingObserver) OnEvent(_ context.Context, ev *model.PipelineEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, *ev)
}

func (o *recordingObserver) ofType(eventType string) []model.PipelineEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []model.PipelineEvent
	for _, ev := range o.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func newTestBreaker(clock *fakeClock) (*CircuitBreaker, *recordingObserver) {
	bus := NewEventBus(newTestLogger())
	obs := &recordingObserver{}
	bus.Register(obs)
	cb := NewCircuitBreaker("gemini", DefaultFailureThreshold, DefaultRecoveryTimeout, bus)
	cb.now = clock.Now
	return cb, obs
}

// Three consecutive failures open the breaker.
func TestCircuitBreaker_OpensAfterThreeFailures(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cb, obs := newTestBreaker(clock)

	for i := 0; i < 2; i++ {
		require.True(t, cb.CanMakeRequest())
		cb.RecordFailure()
		assert.Equal(t, CircuitClosed, cb.State(), "still closed after %d failures", i+1)
	}

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.CanMakeRequest())

	snap := cb.Snapshot()
	assert.Equal(t, 3, snap.FailureCount)
	require.NotNil(t, snap.LastFailureTime)
	assert.Equal(t, clock.Now(), *snap.LastFailureTime)

	changes := obs.ofType(model.EventBreakerStateChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, "closed", changes[0].Attributes["from"])
	assert.Equal(t, "open", changes[0].Attributes["to"])
	assert.Equal(t, "gemini", changes[0].Provider)
}

// The breaker half-opens at exactly recoveryTimeout and reopens on a failed trial.
func TestCircuitBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cb, _ := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, CircuitOpen, cb.State())

	clock.Advance(59 * time.Second)
	assert.False(t, cb.CanMakeRequest(), "59s is inside the recovery window")
	assert.Equal(t, CircuitOpen, cb.State())

	clock.Advance(time.Second)
	assert.True(t, cb.CanMakeRequest(), "60s ends the recovery window")
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.CanMakeRequest())
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cb, obs := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.Advance(DefaultRecoveryTimeout)
	require.True(t, cb.CanMakeRequest())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	snap := cb.Snapshot()
	assert.Equal(t, 0, snap.FailureCount)
	assert.Nil(t, snap.LastFailureTime)

	changes := obs.ofType(model.EventBreakerStateChanged)
	require.Len(t, changes, 3)
	assert.Equal(t, "half_open", changes[1].Attributes["to"])
	assert.Equal(t, "closed", changes[2].Attributes["to"])
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cb, _ := newTestBreaker(clock)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, CircuitClosed, cb.State(), "failures are counted consecutively")
	assert.Equal(t, 2, cb.Snapshot().FailureCount)
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("x", 0, 0, nil)
	assert.Equal(t, DefaultFailureThreshold, cb.failureThreshold)
	assert.Equal(t, DefaultRecoveryTimeout, cb.recoveryTimeout)

	// a nil bus is tolerated
	for i := 0; i < DefaultFailureThreshold; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half_open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}

func TestCircuitBreaker_ConcurrentUse(t *testing.T) {
	cb := NewCircuitBreaker("x", 1000, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.CanMakeRequest() {
				cb.RecordFailure()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, cb.Snapshot().FailureCount)
}
