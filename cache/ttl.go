// Package cache provides the process-local TTL store used by the service
// layer, stable cache key generation, and an atomic JSON file store.
package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL is how long an entry stays visible when no TTL is configured.
const DefaultTTL = 5 * time.Minute

// Cache is the read/write surface the service layer depends on.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Clear()
}

type entry struct {
	value     any
	expiresAt time.Time
}

// TTLCache stores entries with an absolute expiry. Expired entries are
// treated as absent and evicted on the next lookup; nothing sweeps them.
type TTLCache struct {
	store *gocache.Cache
	ttl   time.Duration
	now   func() time.Time
}

var _ Cache = (*TTLCache)(nil)

type Option func(*TTLCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TTLCache) { c.now = now }
}

// New returns a cache whose entries live for ttl (DefaultTTL when ttl <= 0).
func New(ttl time.Duration, opts ...Option) *TTLCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &TTLCache{
		// expiry is tracked per entry against our own clock, so go-cache
		// never expires or sweeps anything itself
		store: gocache.New(gocache.NoExpiration, 0),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the configured lifetime.
func (c *TTLCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the value for key if it has not expired.
func (c *TTLCache) Get(key string) (any, bool) {
	obj, found := c.store.Get(key)
	if !found {
		return nil, false
	}
	e := obj.(entry)
	if !c.now().Before(e.expiresAt) {
		c.store.Delete(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value with expiresAt = now + ttl.
func (c *TTLCache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.ttl)
}

func (c *TTLCache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.store.Set(key, entry{value: value, expiresAt: c.now().Add(ttl)}, gocache.NoExpiration)
}

func (c *TTLCache) Delete(key string) {
	c.store.Delete(key)
}

// DeletePrefix evicts every key starting with prefix and returns how many.
func (c *TTLCache) DeletePrefix(prefix string) int {
	n := 0
	for k := range c.store.Items() {
		if strings.HasPrefix(k, prefix) {
			c.store.Delete(k)
			n++
		}
	}
	return n
}

// Clear evicts every entry unconditionally.
func (c *TTLCache) Clear() {
	c.store.Flush()
}

// Len counts stored entries, including expired ones not yet evicted.
func (c *TTLCache) Len() int {
	return c.store.ItemCount()
}

// Lookup is Get with a type assertion.
func Lookup[T any](c Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
