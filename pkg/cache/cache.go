// Package cache provides a generic, thread-safe LRU cache used for
// compiled trigger patterns and per-guild rule lists.
//
// Statistics are always enabled for observability.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
)

// Cache represents a generic cache interface parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry
	// was created, false if an existing entry was updated.
	Set(key string, value V) bool

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) bool

	// Clear removes all entries from the cache.
	Clear()

	// Size returns the current number of entries in the cache.
	Size() int

	// Stats returns a snapshot of cache statistics.
	Stats() Statistics
}

// Statistics holds cache hit/miss/eviction counters.
type Statistics struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// EvictCallback is called when an entry is evicted to make room.
type EvictCallback[V any] func(key string, value V)

// LRU is a fixed-capacity cache with least-recently-used eviction.
type LRU[V any] struct {
	capacity int
	onEvict  EvictCallback[V]

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type lruEntry[V any] struct {
	key   string
	value V
}

// Option configures an LRU cache.
type Option[V any] func(*LRU[V])

// WithEvictionCallback sets a callback invoked on each eviction.
func WithEvictionCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(c *LRU[V]) {
		c.onEvict = fn
	}
}

// NewLRU creates an LRU cache holding at most capacity entries.
func NewLRU[V any](capacity int, opts ...Option[V]) (*LRU[V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache: capacity must be positive, got %d", capacity)
	}
	c := &LRU[V]{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get retrieves a value and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	c.hits.Add(1)
	return elem.Value.(*lruEntry[V]).value, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *LRU[V]) Set(key string, value V) bool {
	c.mu.Lock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(elem)
		c.mu.Unlock()
		return false
	}

	c.entries[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value})

	var evicted *lruEntry[V]
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			evicted = oldest.Value.(*lruEntry[V])
			c.order.Remove(oldest)
			delete(c.entries, evicted.key)
			c.evictions.Add(1)
		}
	}
	c.mu.Unlock()

	// Callback outside the lock so callers may re-enter the cache.
	if evicted != nil && c.onEvict != nil {
		c.onEvict(evicted.key, evicted.value)
	}
	return true
}

// Delete removes an entry by key.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.entries, key)
	return true
}

// Clear removes all entries.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Size returns the current number of entries.
func (c *LRU[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of cache statistics.
func (c *LRU[V]) Stats() Statistics {
	return Statistics{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
