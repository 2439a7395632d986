// Plan caching for VanirDB.
// Plans depend only on the query text, the planner options and the index
// catalog state, so a cached plan is safe to reuse until the catalog or the
// options change. Callers must invalidate on index creation or removal.

package plan

import (
	"container/list"
	"sync"
)

// CachedPlan is one cache entry; the AST storage and symbol table must be
// retained with the operator tree because the tree borrows expressions
// from them.
type CachedPlan struct {
	Root    LogicalOperator
	Payload any
}

// Cache is a bounded LRU of query text to plan. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	maxSize  int
	entries  map[string]*list.Element
	eviction *list.List
}

type cacheEntry struct {
	key  string
	plan *CachedPlan
}

// NewCache returns a cache holding at most maxSize plans; maxSize <= 0
// disables caching.
func NewCache(maxSize int) *Cache {
	return &Cache{
		maxSize:  maxSize,
		entries:  make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Get returns the cached plan for the query text, if any.
func (c *Cache) Get(query string) (*CachedPlan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[query]
	if !ok {
		return nil, false
	}
	c.eviction.MoveToFront(elem)
	return elem.Value.(*cacheEntry).plan, true
}

// Put stores a plan, evicting the least recently used entry when full.
func (c *Cache) Put(query string, plan *CachedPlan) {
	if c.maxSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[query]; ok {
		elem.Value.(*cacheEntry).plan = plan
		c.eviction.MoveToFront(elem)
		return
	}
	for len(c.entries) >= c.maxSize {
		oldest := c.eviction.Back()
		if oldest == nil {
			break
		}
		c.eviction.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	c.entries[query] = c.eviction.PushFront(&cacheEntry{key: query, plan: plan})
}

// Invalidate empties the cache. Call after any index catalog change; the
// starting atom choices baked into cached plans may no longer be valid.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.eviction.Init()
}

// Len returns the number of cached plans.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
