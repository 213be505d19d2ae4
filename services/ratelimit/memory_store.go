package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count       int
	windowStart time.Time
}

// MemoryStore keeps counters in process memory. Suitable for a single replica.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// NewMemoryStore creates an empty in-memory counter store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*counter)}
}

// Increment implements Store
func (m *MemoryStore) Increment(_ context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok || !now.Before(c.windowStart.Add(window)) {
		c = &counter{windowStart: now}
		m.counters[key] = c
	}
	c.count++

	return c.count, c.windowStart, nil
}

// DeleteExpired implements Store
func (m *MemoryStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, c := range m.counters {
		if !c.windowStart.After(cutoff) {
			delete(m.counters, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked callers
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}
