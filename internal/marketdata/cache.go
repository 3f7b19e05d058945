package marketdata

import (
	"sync"
	"time"
)

// snapshotCache is a mutex-guarded TTL map. Entries are evicted lazily on
// read; the cache is process-local and never persisted.
type snapshotCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	snap    *Snapshot
	expires time.Time
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *snapshotCache) get(symbol string) (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[symbol]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, symbol)
		return nil, false
	}
	return e.snap, true
}

func (c *snapshotCache) put(symbol string, snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = cacheEntry{snap: snap, expires: time.Now().Add(c.ttl)}
}

func (c *snapshotCache) invalidate(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, symbol)
}
