package data

import (
	"context"
	"sync"
)

// MemoryRateLimitRepo keeps hit days in process memory.
type MemoryRateLimitRepo struct {
	mu   sync.Mutex
	days map[string]string
}

// NewMemoryRateLimitRepo creates an empty in-memory repository.
func NewMemoryRateLimitRepo() *MemoryRateLimitRepo {
	return &MemoryRateLimitRepo{days: make(map[string]string)}
}

func (m *MemoryRateLimitRepo) GetHitDate(_ context.Context, provider string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day, ok := m.days[provider]
	return day, ok, nil
}

func (m *MemoryRateLimitRepo) SetHitDate(_ context.Context, provider, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days[provider] = day
	return nil
}

func (m *MemoryRateLimitRepo) ClearHitDate(_ context.Context, provider, day string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.days[provider] != day {
		return false, nil
	}
	delete(m.days, provider)
	return true, nil
}

func (m *MemoryRateLimitRepo) DeleteHitDate(_ context.Context, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.days, provider)
	return nil
}
