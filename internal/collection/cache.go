package collection

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

// ResultCache is a short-TTL cache of the latest fetched value per resource.
// It collapses bursts of near-simultaneous collection requests into one
// provider call. The orchestrator owns the cache and invalidates it
// explicitly.
type ResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[uuid.UUID]cacheEntry
	locks   map[uuid.UUID]*sync.Mutex
	now     func() time.Time
}

type cacheEntry struct {
	sample   unit.Sample
	storedAt time.Time
}

// NewResultCache creates a cache with the given TTL (sub-second in
// production).
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl:     ttl,
		entries: make(map[uuid.UUID]cacheEntry),
		locks:   make(map[uuid.UUID]*sync.Mutex),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the cached sample when still within TTL.
func (c *ResultCache) Get(id uuid.UUID) (unit.Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		return unit.Sample{}, false
	}
	return e.sample, true
}

// Put stores a freshly fetched sample.
func (c *ResultCache) Put(id uuid.UUID, s unit.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{sample: s, storedAt: c.now()}
}

// Invalidate drops the cached value for one resource.
func (c *ResultCache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// lockFor returns the per-resource mutex serializing collection calls, so
// concurrent collects for one resource never race duplicate provider calls.
func (c *ResultCache) lockFor(id uuid.UUID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}
