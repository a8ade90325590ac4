package biz

import (
	"context"
	"errors"
	"sync"
)

// ErrRequestsCancelled is the cancellation cause set by RequestRegistry.CancelAll.
var ErrRequestsCancelled = errors.New("requests cancelled by operator")

// RequestRegistry tracks cancel functions of in-flight calls so they can be
// aborted together.
type RequestRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	cancels map[uint64]context.CancelCauseFunc
}

// NewRequestRegistry creates an empty registry.
func NewRequestRegistry() *RequestRegistry {
	return &RequestRegistry{cancels: make(map[uint64]context.CancelCauseFunc)}
}

// Track registers cancel and returns the function that unregisters it.
func (r *RequestRegistry) Track(cancel context.CancelCauseFunc) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.cancels[id] = cancel
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.cancels, id)
		r.mu.Unlock()
	}
}

// CancelAll cancels every tracked call with ErrRequestsCancelled and returns
// how many were cancelled.
func (r *RequestRegistry) CancelAll() int {
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = make(map[uint64]context.CancelCauseFunc)
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel(ErrRequestsCancelled)
	}
	return len(cancels)
}

// InFlight returns the number of tracked calls.
func (r *RequestRegistry) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}
