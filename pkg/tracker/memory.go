package tracker

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker remembers fingerprints in a map with per-entry expiry.
type MemoryTracker struct {
	mu       sync.Mutex
	seen     map[string]time.Time // fingerprint -> expiry
	interval time.Duration
	now      func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// MemoryOption configures a MemoryTracker.
type MemoryOption func(*MemoryTracker)

// WithCleanupInterval sets how often expired fingerprints are evicted.
// Zero disables the background sweep; expired entries are then replaced lazily.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *MemoryTracker) {
		m.cleanupInterval = d
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryTracker) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryTracker creates a tracker that suppresses repeats for interval.
func NewMemoryTracker(interval time.Duration, opts ...MemoryOption) *MemoryTracker {
	m := &MemoryTracker{
		seen:            make(map[string]time.Time),
		interval:        interval,
		now:             time.Now,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.cleanupInterval > 0 {
		go m.cleanup()
	}
	return m
}

// Track reports whether key is new within the interval and records it.
func (m *MemoryTracker) Track(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if m.interval <= 0 {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiry, ok := m.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	m.seen[key] = now.Add(m.interval)
	return true, nil
}

// Len returns the number of remembered fingerprints, including expired ones not yet swept.
func (m *MemoryTracker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// Sweep evicts expired fingerprints.
func (m *MemoryTracker) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, expiry := range m.seen {
		if !now.Before(expiry) {
			delete(m.seen, key)
		}
	}
}

// Close stops the background sweep. Safe to call more than once.
func (m *MemoryTracker) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
	})
}

func (m *MemoryTracker) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stopCleanup:
			return
		}
	}
}
