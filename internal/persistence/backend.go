package persistence

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotConfigured is returned by backends whose connection was skipped.
var ErrNotConfigured = errors.New("storage backend not configured")

// Backend is a keyed string store. Set replaces the whole value atomically.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// MemoryBackend keeps values in process memory for the lifetime of the server.
// With a TTL, entries expire after that long without a read or write.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// NewMemoryBackend returns an empty in-memory backend whose values never expire.
func NewMemoryBackend() *MemoryBackend {
	return NewExpiringMemoryBackend(0)
}

// NewExpiringMemoryBackend returns an in-memory backend with a sliding TTL.
// Expired entries are swept on every write.
func NewExpiringMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	now := m.now()
	if m.expired(e, now) {
		delete(m.entries, key)
		return "", false, nil
	}
	m.entries[key] = m.entry(e.value, now)
	return e.value, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.ttl > 0 {
		for k, e := range m.entries {
			if m.expired(e, now) {
				delete(m.entries, k)
			}
		}
	}
	m.entries[key] = m.entry(value, now)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) entry(value string, now time.Time) memoryEntry {
	e := memoryEntry{value: value}
	if m.ttl > 0 {
		e.expires = now.Add(m.ttl)
	}
	return e
}

func (m *MemoryBackend) expired(e memoryEntry, now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}
