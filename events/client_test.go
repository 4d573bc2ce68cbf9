package events_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnqh/heavymath-indexer-client/events"
	"github.com/johnqh/heavymath-indexer-client/indexer"
	"github.com/johnqh/heavymath-indexer-client/query"
)

type item struct {
	raw []byte
	err error
}

type fakeStream struct {
	msgs   chan item
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan item, 16), closed: make(chan struct{})}
}

func (s *fakeStream) Next() ([]byte, error) {
	select {
	case it := <-s.msgs:
		return it.raw, it.err
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) send(raw string) { s.msgs <- item{raw: []byte(raw)} }
func (s *fakeStream) fail()           { s.msgs <- item{err: errors.New("connection reset")} }
func (s *fakeStream) ack()            { s.send(`{"type":"connected","clientId":"c1","subscriptionId":"s1","channel":"all"}`) }

type fakeDialer struct {
	mu      sync.Mutex
	err     error
	dials   int
	filters []events.Filters
	streams chan *fakeStream
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{streams: make(chan *fakeStream, 16)}
}

func (d *fakeDialer) Dial(_ context.Context, f events.Filters) (events.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.filters = append(d.filters, f)
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeStream()
	d.streams <- s
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-d.streams:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no stream dialed")
		return nil
	}
}

// scheduler queues reconnects so tests fire them by hand.
type scheduler struct {
	mu     sync.Mutex
	fns    []func()
	delays []time.Duration
}

type fakeTimer struct {
	s *scheduler
	i int
}

func (t fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.fns[t.i] == nil {
		return false
	}
	t.s.fns[t.i] = nil
	return true
}

func (s *scheduler) afterFunc(d time.Duration, fn func()) events.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
	s.delays = append(s.delays, d)
	return fakeTimer{s: s, i: len(s.fns) - 1}
}

func (s *scheduler) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

// fire runs the i-th scheduled reconnect if it was not stopped.
func (s *scheduler) fire(i int) bool {
	s.mu.Lock()
	fn := s.fns[i]
	s.fns[i] = nil
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func waitState(t *testing.T, c *events.Client, want events.ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 2*time.Second, time.Millisecond,
		"want state %s, have %s", want, c.State())
}

func waitScheduled(t *testing.T, s *scheduler, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.scheduled() == n }, 2*time.Second, time.Millisecond)
}

func newClient(t *testing.T, d events.Dialer, opts ...events.Option) (*events.Client, *scheduler) {
	t.Helper()
	s := &scheduler{}
	c := events.NewClient(d, append([]events.Option{events.WithAfterFunc(s.afterFunc)}, opts...)...)
	t.Cleanup(c.Close)
	return c, s
}

func TestConnectAcknowledged(t *testing.T) {
	d := newFakeDialer()
	var (
		mu     sync.Mutex
		states []events.ConnectionState
	)
	c, _ := newClient(t, d, events.OnStateChange(func(s events.ConnectionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))
	assert.Equal(t, events.Disconnected, c.State())

	c.Connect()
	assert.Equal(t, events.Connecting, c.State())
	c.Connect() // no-op while connecting
	d.next(t).ack()
	waitState(t, c, events.Connected)

	assert.Equal(t, "c1", c.ClientID())
	assert.Equal(t, "s1", c.SubscriptionID())
	assert.Equal(t, "all", c.Channel())
	assert.Equal(t, 1, d.dialCount())

	mu.Lock()
	assert.Equal(t, []events.ConnectionState{events.Connecting, events.Connected}, states)
	mu.Unlock()
}

func TestReconnectBound(t *testing.T) {
	d := newFakeDialer()
	d.err = errors.New("connection refused")
	var errs int
	var mu sync.Mutex
	c, s := newClient(t, d, events.OnError(func(error) {
		mu.Lock()
		errs++
		mu.Unlock()
	}))

	c.Connect()
	for i := 0; i < events.DefaultMaxReconnectAttempts; i++ {
		waitScheduled(t, s, i+1)
		assert.Equal(t, events.Error, c.State())
		assert.Equal(t, i+1, c.Attempts())
		require.True(t, s.fire(i))
	}

	// the sixth consecutive error gives up
	waitState(t, c, events.Disconnected)
	assert.Equal(t, events.DefaultMaxReconnectAttempts, s.scheduled())
	assert.Equal(t, 6, d.dialCount())
	for _, delay := range s.delays {
		assert.Equal(t, events.DefaultReconnectDelay, delay)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return errs == 6
	}, time.Second, time.Millisecond)

	// only a manual reconnect resumes
	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()
	c.Reconnect()
	d.next(t).ack()
	waitState(t, c, events.Connected)
	assert.Zero(t, c.Attempts())
}

func TestReconnectResetsAfterAck(t *testing.T) {
	d := newFakeDialer()
	c, s := newClient(t, d)

	c.Connect()
	cur := d.next(t)
	cur.ack()
	waitState(t, c, events.Connected)

	fired := 0
	failAndRetry := func() {
		cur.fail()
		waitScheduled(t, s, fired+1)
		require.True(t, s.fire(fired))
		fired++
		cur = d.next(t)
	}

	for i := 0; i < 3; i++ {
		failAndRetry()
		assert.Equal(t, i+1, c.Attempts())
	}
	cur.ack()
	waitState(t, c, events.Connected)
	assert.Zero(t, c.Attempts())

	// a fresh run of errors gets the full budget again
	for i := 0; i < events.DefaultMaxReconnectAttempts; i++ {
		failAndRetry()
	}
	assert.Equal(t, events.DefaultMaxReconnectAttempts, c.Attempts())
	cur.fail()
	waitState(t, c, events.Disconnected)
	assert.Equal(t, 3+events.DefaultMaxReconnectAttempts, s.scheduled())
}

func TestNoAutoReconnect(t *testing.T) {
	d := newFakeDialer()
	c, s := newClient(t, d, events.WithAutoReconnect(false))

	c.Connect()
	cur := d.next(t)
	cur.ack()
	waitState(t, c, events.Connected)
	cur.fail()
	waitState(t, c, events.Disconnected)
	assert.Zero(t, s.scheduled())
	assert.Empty(t, c.ClientID())
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	d := newFakeDialer()
	c, s := newClient(t, d)

	c.Connect()
	cur := d.next(t)
	cur.ack()
	waitState(t, c, events.Connected)
	cur.fail()
	waitScheduled(t, s, 1)

	c.Disconnect()
	assert.Equal(t, events.Disconnected, c.State())
	assert.False(t, s.fire(0), "timer was stopped")
	assert.Equal(t, 1, d.dialCount())

	c.Disconnect()
	assert.Equal(t, events.Disconnected, c.State())
}

func TestDisconnectClosesStream(t *testing.T) {
	d := newFakeDialer()
	c, s := newClient(t, d)

	c.Connect()
	cur := d.next(t)
	cur.ack()
	waitState(t, c, events.Connected)

	c.Disconnect()
	select {
	case <-cur.closed:
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
	assert.Empty(t, c.ClientID())
	assert.Empty(t, c.SubscriptionID())
	// a closed stream is not an error
	assert.Zero(t, s.scheduled())
	assert.Equal(t, events.Disconnected, c.State())
}

func TestSetFiltersReconnects(t *testing.T) {
	d := newFakeDialer()
	c, _ := newClient(t, d, events.WithFilters(events.Filters{Channel: "markets"}))

	// not connected: only remembered
	c.SetFilters(events.Filters{Channel: "predictions"})
	assert.Zero(t, d.dialCount())

	c.Connect()
	first := d.next(t)
	first.ack()
	waitState(t, c, events.Connected)

	c.SetFilters(events.Filters{Channel: "predictions", MarketID: "1-market-9"})
	second := d.next(t)
	select {
	case <-first.closed:
	case <-time.After(time.Second):
		t.Fatal("old stream kept running")
	}
	second.ack()
	waitState(t, c, events.Connected)

	d.mu.Lock()
	assert.Equal(t, []events.Filters{
		{Channel: "predictions"},
		{Channel: "predictions", MarketID: "1-market-9"},
	}, d.filters)
	d.mu.Unlock()

	// unchanged filters do not reconnect
	c.SetFilters(events.Filters{Channel: "predictions", MarketID: "1-market-9"})
	assert.Equal(t, 2, d.dialCount())
}

type recorder struct {
	mu   sync.Mutex
	keys []query.Key
}

func (r *recorder) Invalidate(k query.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, k)
	return 1
}

func (r *recorder) hashes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.keys))
	for i, k := range r.keys {
		out[i] = k.Hash()
	}
	return out
}

func TestDataUpdateHandling(t *testing.T) {
	d := newFakeDialer()
	rec := &recorder{}
	got := make(chan events.Event, 8)
	c, _ := newClient(t, d, events.WithInvalidator(rec), events.OnEvent(func(e events.Event) { got <- e }))
	subbed := make(chan events.Event, 8)
	unsubscribe := c.Subscribe(func(e events.Event) { subbed <- e })

	c.Connect()
	cur := d.next(t)
	cur.ack()
	cur.send(`{"type":"heartbeat","timestamp":"2024-01-01T00:00:00Z"}`)
	cur.send(`not json`)
	cur.send(`{"type":"data_update"}`)
	cur.send(`{"no":"type"}`)
	cur.send(`{"type":"subscription_confirmed","subscriptionId":"s2","channel":"markets"}`)
	cur.send(`{"type":"data_update","subscriptionId":"s2","eventType":"PredictionPlaced","data":{"marketId":"1-market-9","user":"0xabc"},"timestamp":"2024-01-01T00:00:01Z"}`)

	var ev events.Event
	select {
	case ev = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	assert.Equal(t, events.PredictionPlaced, ev.Type)
	assert.Equal(t, "1-market-9", ev.MarketID())
	assert.Equal(t, ev, <-subbed)

	assert.Equal(t, events.Connected, c.State(), "bad messages do not end the stream")
	assert.Equal(t, "s2", c.SubscriptionID())
	assert.Equal(t, "markets", c.Channel())
	require.Len(t, c.Events(), 1)
	last, ok := c.LastEvent()
	require.True(t, ok)
	assert.Equal(t, ev, last)

	require.Eventually(t, func() bool { return len(rec.hashes()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{
		query.PredictionsKey.Hash(),
		query.MarketPredictionsRootKey("1-market-9").Hash(),
		query.MarketKey("1-market-9").Hash(),
	}, rec.hashes())

	// unknown event types are kept but invalidate nothing
	unsubscribe()
	cur.send(`{"type":"data_update","eventType":"SomethingNew","data":{}}`)
	select {
	case ev = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	assert.Equal(t, "SomethingNew", ev.Type)
	assert.Len(t, rec.hashes(), 3)
	assert.Len(t, c.Events(), 2)
	assert.Empty(t, subbed)

	c.ClearEvents()
	assert.Empty(t, c.Events())
	_, ok = c.LastEvent()
	assert.False(t, ok)
}

func TestInvalidationDisabled(t *testing.T) {
	d := newFakeDialer()
	rec := &recorder{}
	got := make(chan events.Event, 1)
	c, _ := newClient(t, d,
		events.WithInvalidator(rec),
		events.WithInvalidateQueries(false),
		events.OnEvent(func(e events.Event) { got <- e }),
	)
	c.Connect()
	cur := d.next(t)
	cur.ack()
	cur.send(`{"type":"data_update","eventType":"MarketResolved","data":{"marketId":"1-market-1"}}`)
	<-got
	assert.Empty(t, rec.hashes())
}

func TestPredictionPlacedInvalidatesQueries(t *testing.T) {
	qc := query.NewClient()
	predictions := query.PredictionListKey(indexer.PredictionFilters{User: "0xabc"})
	market9 := query.MarketPredictionsKey("1-market-9", indexer.PageParams{Limit: 10})
	dealers := query.DealerListKey(indexer.DealerFilters{})
	for _, k := range []query.Key{predictions, market9, dealers} {
		qc.SetQueryData(k, "seed")
	}

	d := newFakeDialer()
	got := make(chan events.Event, 1)
	c, _ := newClient(t, d, events.WithInvalidator(qc), events.OnEvent(func(e events.Event) { got <- e }))
	c.Connect()
	cur := d.next(t)
	cur.ack()
	cur.send(`{"type":"data_update","eventType":"PredictionPlaced","data":{"marketId":"1-market-9"}}`)
	<-got

	require.Eventually(t, func() bool { return qc.IsInvalidated(market9) }, time.Second, time.Millisecond)
	assert.True(t, qc.IsInvalidated(predictions))
	assert.False(t, qc.IsInvalidated(dealers))
}
