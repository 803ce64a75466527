package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a generic in-memory cache with LRU eviction, TTL expiry,
// source-signature staleness checks, and built-in singleflight for
// concurrent loads. Resolution sits on the hot path of every capability
// invocation, so eviction is O(1) per entry (intrusive list back-pop).
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	items      map[K]*list.Element
	evictList  *list.List
	maxEntries int
	defaultTTL time.Duration
	stats      Stats

	// singleflight: in-progress loads keyed by cache key
	inflight map[K]*call[V]
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	signature string
	hits      int64
	createdAt time.Time
	expiresAt time.Time
}

type call[V any] struct {
	wg  sync.WaitGroup
	val V
	err error
}

// New creates a cache with the given max entries and default TTL.
func New[K comparable, V any](maxEntries int, defaultTTL time.Duration) *Cache[K, V] {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &Cache[K, V]{
		items:      make(map[K]*list.Element),
		evictList:  list.New(),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		inflight:   make(map[K]*call[V]),
	}
}

// Get retrieves a value from the cache. Returns the value and true if
// found and not expired, or the zero value and false otherwise.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.get(key, "", false)
}

// GetIfCurrent retrieves a value only if its stored source signature
// matches signature. A mismatch means the backing definition changed
// since population; the stale entry is dropped and counted as a miss.
func (c *Cache[K, V]) GetIfCurrent(key K, signature string) (V, bool) {
	return c.get(key, signature, true)
}

func (c *Cache[K, V]) get(key K, signature string, checkSig bool) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	e := el.Value.(*entry[K, V])
	if time.Now().After(e.expiresAt) {
		c.removeLocked(el)
		c.stats.Misses++
		var zero V
		return zero, false
	}
	if checkSig && e.signature != signature {
		c.removeLocked(el)
		c.stats.Misses++
		var zero V
		return zero, false
	}

	c.evictList.MoveToFront(el)
	e.hits++
	c.stats.Hits++
	return e.value, true
}

// Set stores a value with the default TTL and no source signature.
func (c *Cache[K, V]) Set(key K, value V) {
	c.set(key, value, "", c.defaultTTL)
}

// SetWithTTL stores a value with a custom TTL.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.set(key, value, "", ttl)
}

// SetWithSignature stores a value together with the source signature it
// was derived from, using the default TTL. Value and signature are
// written atomically under the cache lock; a reader never observes a
// half-populated entry.
func (c *Cache[K, V]) SetWithSignature(key K, value V, signature string) {
	c.set(key, value, signature, c.defaultTTL)
}

func (c *Cache[K, V]) set(key K, value V, signature string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if el, ok := c.items[key]; ok {
		c.evictList.MoveToFront(el)
		e := el.Value.(*entry[K, V])
		e.value = value
		e.signature = signature
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		return
	}

	e := &entry[K, V]{
		key:       key,
		value:     value,
		signature: signature,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	el := c.evictList.PushFront(e)
	c.items[key] = el

	for c.evictList.Len() > c.maxEntries {
		c.evictOldestLocked()
	}
}

// GetOrLoad returns the cached value for key if its signature is still
// current, or calls loadFn to populate it. loadFn returns the value and
// the source signature it was derived from. The bool reports whether
// the value came from cache. Concurrent calls for the same key share a
// single load (singleflight): the second caller waits for the first's
// result instead of racing to discover.
func (c *Cache[K, V]) GetOrLoad(key K, signature string, loadFn func() (V, string, error)) (V, bool, error) {
	// Fast path: check cache.
	if v, ok := c.GetIfCurrent(key, signature); ok {
		return v, true, nil
	}

	// Singleflight: check if another goroutine is already loading.
	c.mu.Lock()
	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		cl.wg.Wait()
		if cl.err != nil {
			return cl.val, false, cl.err
		}
		// The loading goroutine already cached the result.
		if v, ok := c.GetIfCurrent(key, signature); ok {
			return v, true, nil
		}
		return cl.val, false, nil
	}

	cl := &call[V]{}
	cl.wg.Add(1)
	c.inflight[key] = cl
	c.mu.Unlock()

	// Execute the load function outside the lock.
	var loadedSig string
	cl.val, loadedSig, cl.err = loadFn()
	if cl.err == nil {
		c.SetWithSignature(key, cl.val, loadedSig)
	}
	cl.wg.Done()

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()

	return cl.val, false, cl.err
}

// Invalidate removes a single key from the cache. Counters are untouched.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// InvalidateFunc removes all entries for which predicate returns true.
func (c *Cache[K, V]) InvalidateFunc(predicate func(K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.items {
		if predicate(key) {
			c.removeLocked(el)
		}
	}
}

// Flush removes all entries and zeroes the hit/miss/eviction counters.
// Counters survive single-key invalidation; only a full clear resets them.
func (c *Cache[K, V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.evictList.Init()
	c.stats = Stats{}
}

// SweepExpired removes all entries past their TTL and returns how many
// were dropped. Swept entries count as evictions.
func (c *Cache[K, V]) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var swept int
	for el := c.evictList.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry[K, V])
		if now.After(e.expiresAt) {
			c.removeLocked(el)
			c.stats.Evictions++
			swept++
		}
		el = prev
	}
	return swept
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Cap returns the maximum number of entries.
func (c *Cache[K, V]) Cap() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxEntries
}

// Resize changes the entry bound. Shrinking evicts least-recently-used
// entries until the new bound holds.
func (c *Cache[K, V]) Resize(maxEntries int) {
	if maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxEntries = maxEntries
	for c.evictList.Len() > c.maxEntries {
		c.evictOldestLocked()
	}
}

// Stats returns a snapshot of cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.items)
	s.Capacity = c.maxEntries
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *Cache[K, V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[K, V])
	delete(c.items, e.key)
	c.evictList.Remove(el)
}

func (c *Cache[K, V]) evictOldestLocked() {
	el := c.evictList.Back()
	if el == nil {
		return
	}
	c.removeLocked(el)
	c.stats.Evictions++
}
