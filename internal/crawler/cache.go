package crawler

import (
	"container/list"
	"sync"
	"time"
)

// FreshnessCache stores fetched content keyed by URL with two independent
// validity checks: a hard TTL measured from insertion, and a freshness check
// against the entry's own access timestamp (the DateAccessed field the fetch
// recorded). Both clocks must allow the read; a failure of either is an
// ordinary miss and the caller re-fetches and overwrites.
//
// Capacity is bounded; insertion order decides eviction. All state is
// in-memory and lost on restart.
type FreshnessCache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	maxAge     time.Duration
	entries    map[string]*list.Element
	order      *list.List // front = oldest insertion
	now        func() time.Time
}

type cacheEntry struct {
	key        string
	value      FetchResult
	insertedAt time.Time
}

// NewFreshnessCache builds a cache bounded to maxEntries with the given hard
// TTL and secondary max-age.
func NewFreshnessCache(maxEntries int, ttl, maxAge time.Duration) *FreshnessCache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &FreshnessCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		maxAge:     maxAge,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the cached result for key when both the TTL and the freshness
// check pass. Expired entries are removed lazily.
func (c *FreshnessCache) Get(key string) (FetchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return FetchResult{}, false
	}
	ent := el.Value.(*cacheEntry)
	now := c.now()

	if now.Sub(ent.insertedAt) >= c.ttl {
		c.removeLocked(el)
		return FetchResult{}, false
	}
	if !c.freshLocked(ent.value, now) {
		c.removeLocked(el)
		return FetchResult{}, false
	}
	return ent.value, true
}

// Put inserts or overwrites the entry for key, evicting the oldest insertion
// once the bound is exceeded.
func (c *FreshnessCache) Put(key string, value FetchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	el := c.order.PushBack(&cacheEntry{key: key, value: value, insertedAt: c.now()})
	c.entries[key] = el

	for len(c.entries) > c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// Len reports the current entry count, counting entries not yet lazily evicted.
func (c *FreshnessCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// freshLocked applies the secondary max-age check against the value's own
// access timestamp. A value without a parseable DateAccessed is never fresh.
func (c *FreshnessCache) freshLocked(v FetchResult, now time.Time) bool {
	if v.DateAccessed == "" {
		return false
	}
	accessed, err := time.Parse(time.RFC3339, v.DateAccessed)
	if err != nil {
		return false
	}
	return now.Sub(accessed) < c.maxAge
}

func (c *FreshnessCache) removeLocked(el *list.Element) {
	ent := el.Value.(*cacheEntry)
	delete(c.entries, ent.key)
	c.order.Remove(el)
}
