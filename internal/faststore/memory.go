package faststore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store with the same single-key atomicity guarantees
// as the Redis implementation. It backs unit tests and single-node dev runs;
// it provides no cross-process sharing.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memEntry

	// now is a clock seam for tests.
	now func() time.Time
}

type memEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
}

// SetClock overrides the store's clock. Test helper; not safe to call
// concurrently with store operations.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

// live returns the entry for key if present and unexpired, lazily evicting
// expired entries. Caller must hold mu.
func (m *Memory) live(key string) *memEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

// SetNX implements Store.
func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live(key) != nil {
		return false, nil
	}
	e := &memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return true, nil
}

// Incr implements Store.
func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		e = &memEntry{}
		m.entries[key] = e
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if e.value != "" && err != nil {
		return 0, fmt.Errorf("faststore: incr %s: value is not an integer", key)
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	return n, nil
}

// Expire implements Store.
func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return false, nil
	}
	e.expiresAt = m.now().Add(ttl)
	return true, nil
}

// TTL implements Store.
func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return 0, fmt.Errorf("faststore: ttl %s: %w", key, ErrNotFound)
	}
	if e.expiresAt.IsZero() {
		return NoTTL, nil
	}
	return e.expiresAt.Sub(m.now()), nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return "", fmt.Errorf("faststore: get %s: %w", key, ErrNotFound)
	}
	return e.value, nil
}

// Del implements Store.
func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *Memory) Close() error { return nil }
