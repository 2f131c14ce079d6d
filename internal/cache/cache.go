// Package cache provides the TTL caches used for bot identity, response
// configuration and flow graphs. Entries are refreshed lazily on expiry and
// can be invalidated explicitly after configuration writes.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores values by key for a bounded time.
// Failures of the backing store are treated as misses.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V)
	Invalidate(ctx context.Context, key string)
	Clear(ctx context.Context)
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// Memory is a process-local Cache guarded by a mutex.
type Memory[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry[V]
	now     func() time.Time
}

// NewMemory creates a process-local cache. A non-positive ttl disables caching.
func NewMemory[V any](ttl time.Duration) *Memory[V] {
	return &Memory[V]{ttl: ttl, entries: make(map[string]entry[V]), now: time.Now}
}

// Get returns the cached value if present and not expired.
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key until the TTL elapses.
func (m *Memory[V]) Set(_ context.Context, key string, value V) {
	if m.ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.entries[key] = entry[V]{value: value, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
}

// Invalidate drops a single key.
func (m *Memory[V]) Invalidate(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Clear drops every entry.
func (m *Memory[V]) Clear(_ context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]entry[V])
	m.mu.Unlock()
}

// Len reports the number of stored entries, expired or not.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ Cache[int] = (*Memory[int])(nil)
