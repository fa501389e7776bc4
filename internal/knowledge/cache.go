package knowledge

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"
)

// Cache is the process-wide query cache. Any write anywhere in the
// system can change the results of any query, so there is no selective
// invalidation: every successful mutation clears the whole cache. A
// stale entry is a consistency bug, not a performance nuisance.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	// now is a seam for TTL tests.
	now func() time.Time
}

type cacheEntry struct {
	value      any
	insertedAt time.Time
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// CacheKey builds the canonical key for a query: the query string (which
// callers prefix with their namespace and fold the user id into), the
// filters serialized with sorted keys, and the limit. Two calls with the
// same logical parameters always produce the same key. The namespace
// prefix keeps call paths that cache different result types from ever
// sharing an entry: a memory search and a rule search over the same
// query and filters must not see each other's payloads.
func CacheKey(query string, filters map[string]string, limit int) string {
	filterStr := ""
	if len(filters) > 0 {
		// encoding/json sorts map keys, which makes this stable.
		b, err := json.Marshal(filters)
		if err == nil {
			filterStr = string(b)
		}
	}
	return query + ":" + filterStr + ":" + strconv.Itoa(limit)
}

// Get returns the cached value for key, if present and fresh. Expired
// entries are evicted lazily here.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Put stores value under key, replacing any previous entry.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, insertedAt: c.now()}
}

// InvalidateAll drops every entry. Called after every successful
// add/delete/plan mutation and after an LLM config swap.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len reports the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
