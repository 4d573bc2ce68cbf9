// Package query is an observable query cache: every slot is addressed by a
// Key tuple and holds the last fetched value, its status and a staleness
// mark. Fetches are de-duplicated per key, fresh data is served without
// calling the fetch function, and invalidation by key prefix marks slots
// stale and refetches the ones somebody is observing.
package query

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/johnqh/heavymath-indexer-client/metrics"
)

type fetchFunc func(context.Context) (any, error)

type observer struct {
	ctx    context.Context
	notify func()
}

type entry struct {
	key         Key
	data        any
	hasData     bool
	err         error
	status      Status
	fetch       FetchStatus
	updatedAt   time.Time
	invalidated bool
	fn          fetchFunc // latest fetch function of an enabled query
	observers   map[int]*observer
}

func (e *entry) notifiers() []func() {
	out := make([]func(), 0, len(e.observers))
	for _, o := range e.observers {
		out = append(out, o.notify)
	}
	return out
}

// liveContext returns the context of an observer that is still active.
func (e *entry) liveContext() (context.Context, bool) {
	for _, o := range e.observers {
		if o.ctx.Err() == nil {
			return o.ctx, true
		}
	}
	return nil, false
}

// Client owns the query cache. The zero value is not usable; call NewClient.
type Client struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	nextID  int
	wg      sync.WaitGroup

	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		entries: map[string]*entry{},
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) ensureLocked(key Key) *entry {
	h := key.Hash()
	e, ok := c.entries[h]
	if !ok {
		e = &entry{key: key, observers: map[int]*observer{}}
		c.entries[h] = e
	}
	return e
}

func (c *Client) staleLocked(e *entry, staleTime time.Duration) bool {
	if !e.hasData || e.status == StatusError || e.invalidated {
		return true
	}
	return c.now().Sub(e.updatedAt) >= staleTime
}

// execute runs fn for key, sharing one call among concurrent callers of the
// same key. Failures keep the previous data.
func (c *Client) execute(ctx context.Context, key Key, fn fetchFunc) {
	_, _, _ = c.group.Do(key.Hash(), func() (any, error) {
		c.mu.Lock()
		e := c.ensureLocked(key)
		e.fn = fn
		e.fetch = FetchFetching
		notes := e.notifiers()
		c.mu.Unlock()
		notify(notes)

		v, err := fn(ctx)

		c.mu.Lock()
		e = c.ensureLocked(key)
		e.fetch = FetchIdle
		if err != nil {
			e.err = err
			e.status = StatusError
		} else {
			e.data = v
			e.hasData = true
			e.err = nil
			e.status = StatusSuccess
			e.updatedAt = c.now()
			e.invalidated = false
		}
		notes = e.notifiers()
		c.mu.Unlock()

		if err != nil {
			c.metrics.QueryFetch("error")
			c.logger.Debug().Err(err).Str("key", key.Hash()).Msg("query failed")
		} else {
			c.metrics.QueryFetch("success")
		}
		notify(notes)
		return nil, nil
	})
}

// background runs execute on its own goroutine; Wait blocks until all such
// fetches are done.
func (c *Client) background(ctx context.Context, key Key, fn fetchFunc) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.execute(ctx, key, fn)
	}()
}

// Wait blocks until every background fetch started so far has settled.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Invalidate marks every slot whose key starts with prefix as stale and
// returns how many were marked. Slots with an active observer are refetched
// in the background; the rest refetch on their next Fetch.
func (c *Client) Invalidate(prefix Key) int {
	type job struct {
		ctx context.Context
		key Key
		fn  fetchFunc
	}
	var jobs []job

	c.mu.Lock()
	n := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		n++
		if e.fn == nil {
			continue
		}
		if ctx, ok := e.liveContext(); ok {
			jobs = append(jobs, job{ctx: ctx, key: e.key, fn: e.fn})
		}
	}
	c.mu.Unlock()

	for _, j := range jobs {
		c.background(j.ctx, j.key, j.fn)
	}
	c.logger.Debug().Str("prefix", prefix.Hash()).Int("matched", n).Int("refetching", len(jobs)).Msg("invalidate")
	return n
}

// IsStale reports whether key would be refetched by a Fetch with staleTime.
// Unknown keys are stale.
func (c *Client) IsStale(key Key, staleTime time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.Hash()]
	if !ok {
		return true
	}
	return c.staleLocked(e, staleTime)
}

// IsInvalidated reports whether key has been invalidated since its last
// successful fetch.
func (c *Client) IsInvalidated(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.Hash()]
	return ok && e.invalidated
}

// SetQueryData stores v as fresh successful data for key and notifies
// observers.
func (c *Client) SetQueryData(key Key, v any) {
	c.mu.Lock()
	e := c.ensureLocked(key)
	e.data = v
	e.hasData = true
	e.err = nil
	e.status = StatusSuccess
	e.updatedAt = c.now()
	e.invalidated = false
	notes := e.notifiers()
	c.mu.Unlock()
	notify(notes)
}

// RemoveQueries drops every slot under prefix, observers included.
func (c *Client) RemoveQueries(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for h, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, h)
			n++
		}
	}
	return n
}

// Clear drops every slot.
func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*entry{}
}

// Len returns the number of slots.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func notify(fns []func()) {
	for _, f := range fns {
		f()
	}
}
