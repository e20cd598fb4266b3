package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is the in-process cache backend. Entries expire lazily: an
// expired entry is dropped when it is next read, not on a timer, so TTL
// here is best-effort. Suitable for a single process only.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Get returns the cached value, dropping the entry if its TTL passed.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if entry.expired(time.Now()) {
		m.mu.Lock()
		// Recheck under the write lock; a concurrent Set may have renewed it
		if cur, ok := m.entries[key]; ok && cur.expired(time.Now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set stores a value. A non-positive ttl stores without expiry.
func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete removes a key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Exists reports whether the key is present and unexpired.
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

// Clear wipes all entries.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
