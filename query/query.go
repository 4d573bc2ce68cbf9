package query

import (
	"context"
	"sync"
	"time"
)

// Stale times by how fast the underlying data changes.
const (
	StaleFast   = 60 * time.Second  // predictions, oracle requests
	StaleNormal = 120 * time.Second // markets, dealers, withdrawals, favorites
	StaleSlow   = 300 * time.Second // history, stats
	StaleStatic = 600 * time.Second // permissions
)

// Query binds a key to the function that fills it.
type Query[T any] struct {
	Key       Key
	Fn        func(context.Context) (T, error)
	StaleTime time.Duration
	// Enabled gates the query; nil means enabled. A disabled query never
	// calls Fn and reports an inactive result.
	Enabled func() bool
}

func (q Query[T]) enabled() bool {
	return q.Enabled == nil || q.Enabled()
}

func (q Query[T]) erased() fetchFunc {
	return func(ctx context.Context) (any, error) {
		return q.Fn(ctx)
	}
}

func snapshot[T any](e *entry) Result[T] {
	r := Result[T]{
		Err:         e.err,
		Status:      e.status,
		FetchStatus: e.fetch,
		UpdatedAt:   e.updatedAt,
		Invalidated: e.invalidated,
	}
	if e.hasData {
		if v, ok := e.data.(T); ok {
			r.Data = v
		}
	}
	return r
}

// Peek returns the current state of q's slot without fetching.
func Peek[T any](qc *Client, q Query[T]) Result[T] {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	e, ok := qc.entries[q.Key.Hash()]
	if !ok {
		return Result[T]{}
	}
	return snapshot[T](e)
}

// GetQueryData returns the data cached under key, if any.
func GetQueryData[T any](qc *Client, key Key) (T, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	var zero T
	e, ok := qc.entries[key.Hash()]
	if !ok || !e.hasData {
		return zero, false
	}
	v, ok := e.data.(T)
	return v, ok
}

// Fetch returns q's data, calling Fn only when the slot is missing, failed,
// invalidated or older than StaleTime. Failures are not retried.
func Fetch[T any](ctx context.Context, qc *Client, q Query[T]) Result[T] {
	if !q.enabled() {
		return Peek(qc, q)
	}
	qc.mu.Lock()
	if e, ok := qc.entries[q.Key.Hash()]; ok && !qc.staleLocked(e, q.StaleTime) {
		r := snapshot[T](e)
		qc.mu.Unlock()
		return r
	}
	qc.mu.Unlock()

	qc.execute(ctx, q.Key, q.erased())
	return Peek(qc, q)
}

// Refetch calls Fn regardless of freshness.
func Refetch[T any](ctx context.Context, qc *Client, q Query[T]) Result[T] {
	if !q.enabled() {
		return Peek(qc, q)
	}
	qc.execute(ctx, q.Key, q.erased())
	return Peek(qc, q)
}

// Prefetch starts a background Fetch.
func Prefetch[T any](ctx context.Context, qc *Client, q Query[T]) {
	if !q.enabled() || !qc.IsStale(q.Key, q.StaleTime) {
		return
	}
	qc.background(ctx, q.Key, q.erased())
}

// Observe subscribes onChange to q's slot. It is called once with the
// current state, then on every change; a stale slot is fetched in the
// background. Observation ends when stop is called or ctx is done, and
// while it lasts invalidations of the slot trigger a refetch.
func Observe[T any](ctx context.Context, qc *Client, q Query[T], onChange func(Result[T])) (stop func()) {
	h := q.Key.Hash()

	qc.mu.Lock()
	e := qc.ensureLocked(q.Key)
	id := qc.nextID
	qc.nextID++
	e.observers[id] = &observer{
		ctx:    ctx,
		notify: func() { onChange(Peek(qc, q)) },
	}
	enabled := q.enabled()
	if enabled {
		e.fn = q.erased()
	}
	needsFetch := enabled && qc.staleLocked(e, q.StaleTime)
	qc.mu.Unlock()

	onChange(Peek(qc, q))
	if needsFetch {
		qc.background(ctx, q.Key, q.erased())
	}

	var once sync.Once
	stop = func() {
		once.Do(func() {
			qc.mu.Lock()
			defer qc.mu.Unlock()
			if e, ok := qc.entries[h]; ok {
				delete(e.observers, id)
			}
		})
	}
	context.AfterFunc(ctx, stop)
	return stop
}
