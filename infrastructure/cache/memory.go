// Package cache provides ports.CacheStore implementations.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-ragqa/internal/ports"
)

// MemoryStore is an in-process LRU cache with optional per-entry expiry.
type MemoryStore struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List
	maxItems int
	now      func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

type memoryEntry struct {
	key       string
	value     any
	expiresAt time.Time
}

var _ ports.CacheStore = (*MemoryStore)(nil)

// NewMemoryStore creates a cache holding at most maxItems entries. A
// non-positive maxItems means unbounded.
func NewMemoryStore(maxItems int) *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Get returns the value stored under key and marks it recently used.
func (m *MemoryStore) Get(_ context.Context, key string) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		m.misses.Add(1)
		return nil, false, nil
	}

	entry := el.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		m.removeElement(el)
		m.misses.Add(1)
		return nil, false, nil
	}

	m.order.MoveToFront(el)
	m.hits.Add(1)
	return entry.value, true, nil
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full. A zero expiration never expires.
func (m *MemoryStore) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = m.now().Add(expiration)
	}

	if el, ok := m.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		m.order.MoveToFront(el)
		return nil
	}

	if m.maxItems > 0 && m.order.Len() >= m.maxItems {
		if oldest := m.order.Back(); oldest != nil {
			m.removeElement(oldest)
		}
	}

	m.items[key] = m.order.PushFront(&memoryEntry{key: key, value: value, expiresAt: expiresAt})
	return nil
}

// Delete removes key. Missing keys are not an error.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.removeElement(el)
	}
	return nil
}

// Clear removes every entry.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.order.Init()
	return nil
}

// Len returns the number of entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Stats returns hit and miss counts since creation.
func (m *MemoryStore) Stats() (hits, misses uint64) {
	return m.hits.Load(), m.misses.Load()
}

func (m *MemoryStore) removeElement(el *list.Element) {
	m.order.Remove(el)
	delete(m.items, el.Value.(*memoryEntry).key)
}
