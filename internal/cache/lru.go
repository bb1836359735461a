package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry represents a cache entry with value and metadata.
type entry struct {
	key       string
	value     interface{}
	timestamp time.Time
}

// LRU implements a thread-safe least-recently-used cache bounded by entry
// count.
type LRU struct {
	mu           sync.RWMutex
	maxEntries   int
	items        map[string]*list.Element
	evictionList *list.List

	// Metrics
	hits      int64
	misses    int64
	evictions int64
}

// NewLRU creates a new LRU cache holding at most maxEntries items
// (0 = unlimited).
func NewLRU(maxEntries int) *LRU {
	return &LRU{
		maxEntries:   maxEntries,
		items:        make(map[string]*list.Element),
		evictionList: list.New(),
	}
}

// Get retrieves a value from the cache.
func (c *LRU) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.evictionList.MoveToFront(elem)
		c.hits++
		e, ok := elem.Value.(*entry)
		if !ok {
			return nil, false
		}
		return e.value, true
	}

	c.misses++
	return nil, false
}

// Put adds or updates a value in the cache.
func (c *LRU) Put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.evictionList.MoveToFront(elem)
		e, ok := elem.Value.(*entry)
		if !ok {
			return
		}
		e.value = value
		e.timestamp = time.Now()
		return
	}

	e := &entry{
		key:       key,
		value:     value,
		timestamp: time.Now(),
	}
	elem := c.evictionList.PushFront(e)
	c.items[key] = elem

	c.evict()
}

// evict removes least-recently-used entries until the count limit holds.
func (c *LRU) evict() {
	if c.maxEntries <= 0 {
		return
	}
	for c.evictionList.Len() > c.maxEntries {
		elem := c.evictionList.Back()
		if elem == nil {
			break
		}
		c.removeElement(elem)
		c.evictions++
	}
}

// removeElement removes an element from the cache.
func (c *LRU) removeElement(elem *list.Element) {
	c.evictionList.Remove(elem)
	e, ok := elem.Value.(*entry)
	if !ok {
		return
	}
	delete(c.items, e.key)
}

// Delete removes a key from the cache.
func (c *LRU) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
		return true
	}
	return false
}

// Clear removes all entries from the cache.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictionList.Init()
}

// Len returns the number of items in the cache.
func (c *LRU) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.evictionList == nil {
		return 0
	}
	return c.evictionList.Len()
}

// Stats returns cache statistics.
type Stats struct {
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// Stats returns current cache statistics.
func (c *LRU) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Items:     c.evictionList.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   hitRate,
	}
}

// ResetStats resets hit/miss/eviction counters.
func (c *LRU) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}
