package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNotFound may be returned by a loader to cache a negative result.
var ErrNotFound = errors.New("cache: not found")

type Options struct {
	TTL                  time.Duration
	StaleWhileRevalidate time.Duration
	NegativeTTL          time.Duration
	MaxEntries           int
}

// Hooks receive the key of every cache event. Any hook may be nil.
type Hooks struct {
	OnHit   func(key string)
	OnMiss  func(key string)
	OnStale func(key string)
	OnError func(key string, err error)
}

// Loader produces the value for key on a miss.
type Loader[V any] func(ctx context.Context, key string) (V, error)

type entry[V any] struct {
	value     V
	err       error
	expiresAt time.Time
	staleAt   time.Time
}

// Cache is a TTL cache with stale-while-revalidate and collapsed loads.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]*entry[V]
	order []string
	opts  Options
	hooks Hooks
	sf    singleflight.Group
	now   func() time.Time
}

func New[V any](opts Options, hooks Hooks) *Cache[V] {
	return &Cache[V]{
		items: make(map[string]*entry[V]),
		opts:  opts,
		hooks: hooks,
		now:   time.Now,
	}
}

// Get returns the cached value for key, loading it when absent or expired.
// Stale values are served while one background refresh runs.
func (c *Cache[V]) Get(ctx context.Context, key string, loader Loader[V]) (V, error) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if ok {
		switch {
		case now.Before(e.expiresAt):
			if c.hooks.OnHit != nil {
				c.hooks.OnHit(key)
			}
			return e.value, e.err
		case e.err == nil && now.Before(e.staleAt):
			if c.hooks.OnStale != nil {
				c.hooks.OnStale(key)
			}
			go func() {
				// Detached from the caller so the refresh outlives the request.
				_, _, _ = c.sf.Do("refresh:"+key, func() (interface{}, error) {
					c.load(context.WithoutCancel(ctx), key, loader)
					return nil, nil
				})
			}()
			return e.value, nil
		}
	}

	if c.hooks.OnMiss != nil {
		c.hooks.OnMiss(key)
	}
	res, _, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.load(ctx, key, loader), nil
	})
	out := res.(*entry[V])
	return out.value, out.err
}

func (c *Cache[V]) load(ctx context.Context, key string, loader Loader[V]) *entry[V] {
	val, err := loader(ctx, key)
	now := c.now()
	e := &entry[V]{value: val, err: err}

	switch {
	case err == nil:
		e.expiresAt = now.Add(c.opts.TTL)
		e.staleAt = e.expiresAt.Add(c.opts.StaleWhileRevalidate)
	case errors.Is(err, ErrNotFound) && c.opts.NegativeTTL > 0:
		e.expiresAt = now.Add(c.opts.NegativeTTL)
		e.staleAt = e.expiresAt
	default:
		if c.hooks.OnError != nil {
			c.hooks.OnError(key, err)
		}
		return e
	}

	c.mu.Lock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = e
	c.evictLocked()
	c.mu.Unlock()
	return e
}

// Set stores val for ttl, replacing any existing entry.
func (c *Cache[V]) Set(key string, val V, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = &entry[V]{
		value:     val,
		expiresAt: now.Add(ttl),
		staleAt:   now.Add(ttl).Add(c.opts.StaleWhileRevalidate),
	}
	c.evictLocked()
}

// Peek returns a cached, non-negative value without loading. Stale values count.
func (c *Cache[V]) Peek(key string) (V, bool) {
	var zero V
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || e.err != nil || c.now().After(e.staleAt) {
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry[V])
	c.order = nil
}

// Len reports the number of stored entries, including negative ones.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// evictLocked drops the oldest inserted keys beyond MaxEntries.
func (c *Cache[V]) evictLocked() {
	if c.opts.MaxEntries <= 0 {
		return
	}
	for len(c.items) > c.opts.MaxEntries && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
	}
}
