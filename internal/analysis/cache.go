package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key identifies one cached analysis.
type Key struct {
	Start   string
	End     string
	AgentID string
}

// KeyFor builds the cache key for a request.
func KeyFor(req Request) Key {
	return Key{
		Start:   req.Start.UTC().Format(dateLayout),
		End:     inclusiveEnd(req),
		AgentID: req.AgentID,
	}
}

func (k Key) String() string {
	agent := k.AgentID
	if agent == "" {
		agent = "*"
	}
	return fmt.Sprintf("%s..%s/%s", k.Start, k.End, agent)
}

// ComputeFunc produces the bytes for a key. Returning cacheable=false serves
// the bytes to waiting callers without storing them.
type ComputeFunc func(ctx context.Context) (data []byte, cacheable bool, err error)

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// Cache is a TTL cache of marshalled payloads with per-key single flight.
type Cache struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
	items map[Key]cacheEntry
	// gen advances on Invalidate so flights started earlier cannot store
	// stale results.
	gen   uint64
	group singleflight.Group
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithCacheClock overrides the time source used for expiry.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache returns an empty cache. A non-positive ttl disables storage.
func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{ttl: ttl, now: time.Now, items: make(map[Key]cacheEntry)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns unexpired bytes for key.
func (c *Cache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.items, key)
		return nil, false
	}
	return entry.data, true
}

// GetOrCompute returns cached bytes when present (hit=true). Otherwise it
// runs compute once for all concurrent callers of the same key. The
// computation is detached from any single caller's cancellation; a caller
// whose ctx ends stops waiting and gets ctx.Err(). Errors are never stored.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) ([]byte, bool, error) {
	if data, ok := c.Get(key); ok {
		return data, true, nil
	}
	detached := context.WithoutCancel(ctx)
	gen := c.generation()
	ch := c.group.DoChan(fmt.Sprintf("%d/%s", gen, key), func() (any, error) {
		// A flight that finished just before this one started may have
		// stored the value already.
		if data, ok := c.Get(key); ok {
			return data, nil
		}
		data, cacheable, err := compute(detached)
		if err != nil {
			return nil, err
		}
		if cacheable {
			c.put(key, data, gen)
		}
		return data, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *Cache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Cache) put(key Key, data []byte, gen uint64) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.items[key] = cacheEntry{data: data, expires: c.now().Add(c.ttl)}
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, entry := range c.items {
		if !now.Before(entry.expires) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
	c.gen++
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
