package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps per-identifier timestamp sequences in process memory.
// Suitable for single-instance deployments; multi-instance deployments should
// use the Redis store so the window spans all replicas.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewMemoryStore creates an in-memory sliding window store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]time.Time),
	}
}

// Slide implements Store
func (m *MemoryStore) Slide(_ context.Context, identifier string, now time.Time, window time.Duration, max int) (bool, int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-window)
	timestamps := m.entries[identifier]

	// Timestamps are appended in order, so trim from the front.
	i := 0
	for i < len(timestamps) && !timestamps[i].After(cutoff) {
		i++
	}
	timestamps = timestamps[i:]

	if len(timestamps) >= max {
		m.entries[identifier] = timestamps
		return false, len(timestamps), timestamps[0], nil
	}

	timestamps = append(timestamps, now)
	m.entries[identifier] = timestamps

	return true, len(timestamps), timestamps[0], nil
}

// StartSweeper purges identifiers whose entire sequence has aged out of the
// retention window, bounding memory. Runs until ctx is cancelled.
func (m *MemoryStore) StartSweeper(ctx context.Context, interval, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep(time.Now().Add(-retention))
			}
		}
	}()
}

func (m *MemoryStore) sweep(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, timestamps := range m.entries {
		if len(timestamps) == 0 || !timestamps[len(timestamps)-1].After(cutoff) {
			delete(m.entries, id)
		}
	}
}

// Len reports how many identifiers are currently tracked
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
