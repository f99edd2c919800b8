package provider

import (
	"sync"
	"sync/atomic"
)

// memoCache is a concurrent-safe bounded LRU used to memoize expensive
// conversions and remote lookups for the lifetime of the process. Entries
// never expire; capacity eviction alone caps memory.
type memoCache[V any] struct {
	mu         sync.Mutex
	entries    map[string]V
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	hits       atomic.Int64
	misses     atomic.Int64
}

func newMemoCache[V any](maxEntries int) *memoCache[V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &memoCache[V]{
		entries:    make(map[string]V),
		maxEntries: maxEntries,
	}
}

func (c *memoCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	if !ok {
		var zero V
		c.misses.Add(1)
		return zero, false
	}

	// Move to back (most recently used).
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	return v, true
}

func (c *memoCache[V]) put(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = v
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	// Evict from front if at capacity.
	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = v
	c.order = append(c.order, key)
}

func (c *memoCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *memoCache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
