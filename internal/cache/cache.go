// Package cache provides the process-wide LRU+TTL caches used by the core:
// token estimates, tool schemas, and model-validation verdicts.
//
// A Cache is safe for concurrent use. Expired entries are dropped lazily on
// Get and in bulk by Cleanup; the request handler drives Cleanup on a mixed
// time/activity cadence rather than each cache running its own goroutine.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

// HitRate returns hits / (hits + misses), 0 when the cache is untouched.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
	lastAccess time.Time
	ttl        time.Duration
}

// Cache is a string-keyed LRU cache with per-entry TTL.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	ttl      time.Duration

	hits, misses, evictions, expired uint64

	now func() time.Time // test hook
}

// New creates a Cache holding at most capacity entries, each expiring ttl
// after insertion. capacity <= 0 means unbounded; ttl <= 0 means no expiry.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Put inserts or replaces the value for key, refreshing its TTL.
// The least recently used entry is evicted when the cache is over capacity.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.insertedAt = now
		e.lastAccess = now
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry[V]{
		key:        key,
		value:      value,
		insertedAt: now,
		lastAccess: now,
		ttl:        c.ttl,
	})
	c.items[key] = el

	if c.capacity > 0 && c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.removeElement(oldest)
			c.evictions++
		}
	}
}

// Get returns the live value for key. Expired entries are removed and
// reported as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.expiredAt(e, c.now()) {
		c.removeElement(el)
		c.expired++
		c.misses++
		return zero, false
	}
	e.lastAccess = c.now()
	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Invalidate removes key from the cache if present.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Cleanup removes all expired entries and returns how many were dropped.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var dropped int
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.expiredAt(el.Value.(*entry[V]), now) {
			c.removeElement(el)
			c.expired++
			dropped++
		}
		el = prev
	}
	return dropped
}

// Len returns the number of entries currently held (including any that
// have expired but not yet been collected).
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Size:      c.order.Len(),
		Capacity:  c.capacity,
	}
}

func (c *Cache[V]) expiredAt(e *entry[V], now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.insertedAt) > e.ttl
}

func (c *Cache[V]) removeElement(el *list.Element) {
	e := el.Value.(*entry[V])
	delete(c.items, e.key)
	c.order.Remove(el)
}
