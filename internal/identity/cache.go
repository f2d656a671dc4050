package identity

import (
	"context"
	"sync"
	"time"
)

// CachedStore wraps a Store with an in-memory LRU cache keyed by
// spatial fingerprint. Replayed and out-of-order observations then skip
// the backing database entirely.
//
// A hit is only served when the observation does not advance the
// record's last-seen timestamp. Every advancing observation writes
// through, so the persisted last-seen never lags the newest observation
// and a restart or prune sees exactly what the cache saw.
type CachedStore struct {
	inner     Store
	window    time.Duration
	tolerance float64
	cache     *lruCache
}

// NewCachedStore creates a cache decorator around a store. The window
// and tolerance must match the inner store's configuration.
func NewCachedStore(inner Store, window time.Duration, toleranceDeg float64, maxEntries int) *CachedStore {
	return &CachedStore{
		inner:     inner,
		window:    window,
		tolerance: toleranceDeg,
		cache:     newLRUCache(maxEntries),
	}
}

func (c *CachedStore) Assign(ctx context.Context, lat, lon float64, obsTime time.Time) (Identity, error) {
	fp := Fingerprint(lat, lon, c.tolerance)
	if id, ok := c.cache.get(fp); ok {
		// Serve from cache only when last-seen would not move: the
		// cached record then still mirrors the persisted one.
		if !obsTime.After(id.LastSeen) && absDuration(obsTime.Sub(id.LastSeen)) <= c.window {
			id.New = false
			return id, nil
		}
	}
	id, err := c.inner.Assign(ctx, lat, lon, obsTime)
	if err != nil {
		return id, err
	}
	c.cache.put(fp, id)
	return id, nil
}

func (c *CachedStore) Prune(ctx context.Context, now time.Time) (int, error) {
	// Pruned fingerprints must not survive in the cache, or an expired
	// identifier could be handed out again.
	c.cache.evictOlderThan(now.Add(-c.window))
	return c.inner.Prune(ctx, now)
}

func (c *CachedStore) Close() error { return c.inner.Close() }

// lruCache is a simple thread-safe LRU cache of assignment results.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value Identity
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Identity{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) evictOlderThan(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if e.value.LastSeen.Before(cutoff) {
			delete(c.entries, key)
			c.remove(e)
		}
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
