// Package cache is a small key/value store with per-key time-to-live,
// explicit invalidation, and retention of the last value after it goes stale
// so callers can fall back to it when a refresh fails.
//
// Per key the lifecycle is ABSENT -> FRESH (Set) -> STALE (TTL expiry or
// Invalidate) -> FRESH (next Set). Stale entries are never returned by Get.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the freshness of a single key.
type State int

const (
	Absent State = iota
	Fresh
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

type entry[V any] struct {
	value       V
	storedAt    time.Time
	ttl         time.Duration
	invalidated bool
}

func (e *entry[V]) fresh(now time.Time) bool {
	return !e.invalidated && now.Before(e.storedAt.Add(e.ttl))
}

// Cache is safe for concurrent use. Concurrent Sets to one key are
// last-writer-wins.
type Cache[V any] struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	entries map[string]*entry[V]

	// Invalidation generations. seq increments on every invalidation; gens
	// records the seq at which a key was last invalidated and allGen the
	// seq of the last InvalidateAll.
	seq    uint64
	gens   map[string]uint64
	allGen uint64
}

// New creates an empty cache. A nil clock means the real clock.
func New[V any](clock clockwork.Clock) *Cache[V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache[V]{
		clock:   clock,
		entries: make(map[string]*entry[V]),
		gens:    make(map[string]uint64),
	}
}

// Get returns the value for key only while it is fresh.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !e.fresh(c.clock.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetStale returns the last stored value for key regardless of freshness.
func (c *Cache[V]) GetStale(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value as fresh for ttl.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry[V]{value: value, storedAt: c.clock.Now(), ttl: ttl}
}

// SetIfCurrent stores value and reports whether it was stored as fresh. If
// key has been invalidated since gen was read, the value is kept only as a
// stale fallback so a fetch that raced an invalidation cannot mask it.
func (c *Cache[V]) SetIfCurrent(key string, value V, ttl time.Duration, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.generationLocked(key) == gen
	c.entries[key] = &entry[V]{
		value:       value,
		storedAt:    c.clock.Now(),
		ttl:         ttl,
		invalidated: !current,
	}
	return current
}

// Generation returns a counter that changes whenever key is invalidated.
func (c *Cache[V]) Generation(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generationLocked(key)
}

func (c *Cache[V]) generationLocked(key string) uint64 {
	return max(c.gens[key], c.allGen)
}

// Invalidate marks key stale; the value stays available through GetStale.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.gens[key] = c.seq
	if e, ok := c.entries[key]; ok {
		e.invalidated = true
	}
}

// InvalidateAll marks every key stale.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.allGen = c.seq
	for _, e := range c.entries {
		e.invalidated = true
	}
}

// State reports the freshness of key.
func (c *Cache[V]) State(key string) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	switch {
	case !ok:
		return Absent
	case e.fresh(c.clock.Now()):
		return Fresh
	default:
		return Stale
	}
}

// StoredAt returns when key was last set.
func (c *Cache[V]) StoredAt(key string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return e.storedAt, true
}
