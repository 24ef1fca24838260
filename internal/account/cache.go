package account

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultCacheCapacity is used when NewCache is given a non-positive capacity
const DefaultCacheCapacity = 1024

// CacheMetrics receives cache hit and miss events
type CacheMetrics interface {
	RecordCacheHit()
	RecordCacheMiss()
}

type nopCacheMetrics struct{}

func (nopCacheMetrics) RecordCacheHit()  {}
func (nopCacheMetrics) RecordCacheMiss() {}

// slot holds one cached account. mu guards every field and is held for the
// whole of a Store operation, storage call included.
type slot struct {
	mu      sync.Mutex
	account Account
	loaded  bool
	evicted bool
}

// Cache maps account ids to slots, with a secondary email index.
// Past capacity, inserting a slot evicts some other idle slot.
type Cache struct {
	capacity int
	slots    *xsync.MapOf[string, *slot]
	byEmail  *xsync.MapOf[string, string]
	metrics  CacheMetrics
}

func NewCache(capacity int, metrics CacheMetrics) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if metrics == nil {
		metrics = nopCacheMetrics{}
	}
	return &Cache{
		capacity: capacity,
		slots:    xsync.NewMapOf[string, *slot](),
		byEmail:  xsync.NewMapOf[string, string](),
		metrics:  metrics,
	}
}

// acquire returns the locked slot for id, creating an empty one if needed.
// The caller must unlock it.
func (c *Cache) acquire(id string) *slot {
	for {
		s, loaded := c.slots.LoadOrCompute(id, func() *slot { return &slot{} })
		if !loaded {
			c.evictOver(id)
		}

		s.mu.Lock()
		if !s.evicted {
			return s
		}
		// lost a race with eviction; the map no longer holds s
		s.mu.Unlock()
	}
}

// lookup returns the locked slot for id if one is resident. It never inserts,
// so it never evicts.
func (c *Cache) lookup(id string) (*slot, bool) {
	for {
		s, ok := c.slots.Load(id)
		if !ok {
			return nil, false
		}
		s.mu.Lock()
		if !s.evicted {
			return s, true
		}
		s.mu.Unlock()
	}
}

// idFor resolves an email through the index
func (c *Cache) idFor(email string) (string, bool) {
	return c.byEmail.Load(email)
}

// fill stores a freshly loaded account in a locked slot
func (c *Cache) fill(s *slot, a Account) {
	s.account = a
	s.loaded = true
	c.byEmail.Store(a.Email, a.ID)
}

// dropLocked removes a slot the caller holds locked
func (c *Cache) dropLocked(id string, s *slot) {
	s.evicted = true
	c.slots.Compute(id, func(old *slot, loaded bool) (*slot, bool) {
		return old, !loaded || old == s
	})
	if s.loaded {
		c.byEmail.Compute(s.account.Email, func(old string, loaded bool) (string, bool) {
			return old, !loaded || old == id
		})
	}
}

// evictOver removes idle slots other than keep until the cache fits its capacity
func (c *Cache) evictOver(keep string) {
	for c.slots.Size() > c.capacity {
		evicted := false
		c.slots.Range(func(id string, s *slot) bool {
			if id == keep || !s.mu.TryLock() {
				return true
			}
			if !s.evicted {
				c.dropLocked(id, s)
				evicted = true
			}
			s.mu.Unlock()
			return !evicted
		})
		if !evicted {
			// every other slot is busy
			return
		}
	}
}

// Len reports the number of resident slots
func (c *Cache) Len() int {
	return c.slots.Size()
}

// Invalidate forgets id so the next access reloads it from storage
func (c *Cache) Invalidate(id string) {
	s, ok := c.lookup(id)
	if !ok {
		return
	}
	c.dropLocked(id, s)
	s.mu.Unlock()
}
