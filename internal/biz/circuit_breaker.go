package biz

import (
	"context"
	"sync"
	"time"

	"PuckRelay/internal/model"
)

// CircuitState is the state of a provider circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	DefaultFailureThreshold = 3
	DefaultRecoveryTimeout  = 60 * time.Second
)

// BreakerSnapshot is a point-in-time view of a breaker.
type BreakerSnapshot struct {
	State           CircuitState
	FailureCount    int
	LastFailureTime *time.Time
}

// CircuitBreaker tracks consecutive failures of one provider and stops
// traffic to it for recoveryTimeout once failureThreshold is reached.
//
//	Closed   --failures >= threshold-->  Open
//	Open     --recoveryTimeout elapsed--> HalfOpen (on the next CanMakeRequest)
//	HalfOpen --success--> Closed, --failure--> Open
type CircuitBreaker struct {
	mu               sync.Mutex
	provider         string
	state            CircuitState
	failureCount     int
	lastFailureTime  *time.Time
	failureThreshold int
	recoveryTimeout  time.Duration

	now    func() time.Time
	events *EventBus
}

// NewCircuitBreaker creates a closed breaker. Non-positive settings fall back to the defaults.
func NewCircuitBreaker(provider string, failureThreshold int, recoveryTimeout time.Duration, events *EventBus) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}
	return &CircuitBreaker{
		provider:         provider,
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
		events:           events,
	}
}

// CanMakeRequest reports whether a physical attempt may be sent.
func (cb *CircuitBreaker) CanMakeRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.lastFailureTime != nil && cb.now().Sub(*cb.lastFailureTime) >= cb.recoveryTimeout {
			cb.transition(CircuitHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure count and closes a half-open breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.lastFailureTime = nil
	if cb.state == CircuitHalfOpen {
		cb.transition(CircuitClosed)
	}
}

// RecordFailure counts a failure. A failed half-open trial reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	now := cb.now()
	cb.lastFailureTime = &now

	switch {
	case cb.state == CircuitHalfOpen:
		cb.transition(CircuitOpen)
	case cb.state == CircuitClosed && cb.failureCount >= cb.failureThreshold:
		cb.transition(CircuitOpen)
	}
}

// State returns the current state without evaluating the recovery timeout.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns a copy of the breaker's counters.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := BreakerSnapshot{State: cb.state, FailureCount: cb.failureCount}
	if cb.lastFailureTime != nil {
		t := *cb.lastFailureTime
		s.LastFailureTime = &t
	}
	return s
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.events.Publish(context.Background(), model.EventBreakerStateChanged, cb.provider, map[string]any{
		"from":          from.String(),
		"to":            to.String(),
		"failure_count": cb.failureCount,
	})
}
