package contextwindow

import (
	"sync"
	"time"
)

// cacheKey always includes the tenant so a conversation id collision across
// tenants can never share state.
type cacheKey struct {
	tenantID       string
	conversationID string
}

type cacheEntry struct {
	ctx      *Context
	loadedAt time.Time
}

// fifoCache is a capacity-bounded map with insertion-order eviction. The
// policy is deliberately FIFO rather than LRU: reads and rewrites of an
// existing key do not refresh its position in the eviction queue.
type fifoCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[cacheKey]*cacheEntry
	order    []cacheKey

	// evicted is invoked (with the lock held) when capacity pressure
	// drops an entry; nil-safe.
	evicted func(key cacheKey)
}

func newFIFOCache(capacity int, ttl time.Duration) *fifoCache {
	return &fifoCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[cacheKey]*cacheEntry),
	}
}

// get returns the cached context if present and within TTL. Expired entries
// are removed and reported as a miss.
func (c *fifoCache) get(key cacheKey, now time.Time) (*Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && now.Sub(entry.loadedAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}
	return entry.ctx, true
}

// put inserts or refreshes an entry. The TTL clock restarts on every write,
// but the eviction position only reflects first insertion.
func (c *fifoCache) put(key cacheKey, ctx *Context, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.ctx = ctx
		entry.loadedAt = now
		return
	}

	c.entries[key] = &cacheEntry{ctx: ctx, loadedAt: now}
	c.order = append(c.order, key)

	for c.capacity > 0 && len(c.entries) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; !ok {
			continue
		}
		delete(c.entries, oldest)
		if c.evicted != nil {
			c.evicted(oldest)
		}
	}
}

func (c *fifoCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *fifoCache) removeFromOrder(key cacheKey) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
