// Package events follows the indexer's live update stream. The Client keeps
// a connection state machine with bounded fixed-delay reconnects and turns
// data_update messages into query invalidations.
package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/johnqh/heavymath-indexer-client/metrics"
	"github.com/johnqh/heavymath-indexer-client/query"
)

// ConnectionState is the stream's state machine position.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
	Error        ConnectionState = "error"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 3 * time.Second
)

// Invalidator is what the client marks stale on data updates.
// *query.Client implements it.
type Invalidator interface {
	Invalidate(prefix query.Key) int
}

var _ Invalidator = (*query.Client)(nil)

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// Client owns one stream at a time. All methods are safe for concurrent use;
// callbacks run on the stream goroutine, never under the client's lock.
type Client struct {
	dialer Dialer

	autoReconnect bool
	maxAttempts   int
	delay         time.Duration
	invalidate    bool
	invalidator   Invalidator
	afterFunc     func(time.Duration, func()) Timer
	now           func() time.Time
	logger        zerolog.Logger
	metrics       *metrics.Metrics

	onEvent func(Event)
	onState func(ConnectionState)
	onError func(error)

	mu             sync.Mutex
	state          ConnectionState
	attempts       int
	gen            uint64
	filters        Filters
	clientID       string
	subscriptionID string
	channel        string
	cancel         context.CancelFunc
	stream         Stream
	timer          Timer
	log            []Event
	last           *Event
	subs           map[int]func(Event)
	nextSub        int
	wg             sync.WaitGroup
}

type Option func(*Client)

// WithAutoReconnect toggles reconnecting after stream errors (default on).
func WithAutoReconnect(on bool) Option {
	return func(c *Client) { c.autoReconnect = on }
}

func WithMaxReconnectAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// WithInvalidator sets where data updates are turned into invalidations.
func WithInvalidator(inv Invalidator) Option {
	return func(c *Client) { c.invalidator = inv }
}

// WithInvalidateQueries toggles invalidation (default on when an
// Invalidator is set).
func WithInvalidateQueries(on bool) Option {
	return func(c *Client) { c.invalidate = on }
}

func WithFilters(f Filters) Option {
	return func(c *Client) { c.filters = f }
}

func OnEvent(fn func(Event)) Option {
	return func(c *Client) { c.onEvent = fn }
}

func OnStateChange(fn func(ConnectionState)) Option {
	return func(c *Client) { c.onState = fn }
}

// OnError receives stream and dial failures. They never reach request
// callers.
func OnError(fn func(error)) Option {
	return func(c *Client) { c.onError = fn }
}

// WithAfterFunc replaces time.AfterFunc for scheduling reconnects.
func WithAfterFunc(fn func(time.Duration, func()) Timer) Option {
	return func(c *Client) { c.afterFunc = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(d Dialer, opts ...Option) *Client {
	c := &Client{
		dialer:        d,
		autoReconnect: true,
		maxAttempts:   DefaultMaxReconnectAttempts,
		delay:         DefaultReconnectDelay,
		invalidate:    true,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		now:    time.Now,
		logger: zerolog.Nop(),
		state:  Disconnected,
		subs:   map[int]func(Event){},
	}
	for _, o := range opts {
		o(c)
	}
	c.metrics.SetStreamState(string(Disconnected))
	return c
}

// pending collects callbacks to run once the lock is released.
type pending []func()

func (p pending) run() {
	for _, fn := range p {
		fn()
	}
}

func (c *Client) setStateLocked(s ConnectionState, p *pending) {
	if c.state == s {
		return
	}
	c.state = s
	c.metrics.SetStreamState(string(s))
	c.logger.Debug().Str("state", string(s)).Int("attempt", c.attempts).Msg("stream state")
	if c.onState != nil {
		fn := c.onState
		*p = append(*p, func() { fn(s) })
	}
}

// Connect opens the stream if the client is disconnected or in error. It
// does not wait for the server's acknowledgement.
func (c *Client) Connect() {
	var p pending
	c.mu.Lock()
	if c.state == Disconnected || c.state == Error {
		c.startLocked(&p)
	}
	c.mu.Unlock()
	p.run()
}

func (c *Client) startLocked(p *pending) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setStateLocked(Connecting, p)

	filters := c.filters
	c.wg.Add(1)
	go c.run(ctx, gen, filters)
}

func (c *Client) run(ctx context.Context, gen uint64, f Filters) {
	defer c.wg.Done()

	stream, err := c.dialer.Dial(ctx, f)
	if err != nil {
		if ctx.Err() == nil {
			c.fail(gen, err)
		}
		return
	}
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		stream.Close()
		return
	}
	c.stream = stream
	c.mu.Unlock()

	for {
		raw, err := stream.Next()
		if err != nil {
			stream.Close()
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			c.fail(gen, err)
			return
		}
		c.handle(gen, raw)
	}
}

// fail moves to error and either schedules a reconnect or gives up.
func (c *Client) fail(gen uint64, err error) {
	var p pending
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.stream = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.clientID, c.subscriptionID = "", ""
	c.setStateLocked(Error, &p)
	if c.onError != nil {
		fn := c.onError
		p = append(p, func() { fn(err) })
	}
	c.logger.Warn().Err(err).Int("attempt", c.attempts).Msg("stream error")

	if c.autoReconnect && c.attempts < c.maxAttempts {
		c.attempts++
		c.metrics.StreamReconnect()
		c.timer = c.afterFunc(c.delay, func() { c.retry(gen) })
	} else {
		c.setStateLocked(Disconnected, &p)
		c.logger.Warn().Int("attempt", c.attempts).Msg("stream reconnect attempts exhausted")
	}
	c.mu.Unlock()
	p.run()
}

func (c *Client) retry(gen uint64) {
	var p pending
	c.mu.Lock()
	if gen == c.gen && c.state == Error {
		c.timer = nil
		c.startLocked(&p)
	}
	c.mu.Unlock()
	p.run()
}

func (c *Client) handle(gen uint64, raw []byte) {
	msg, err := ParseMessage(raw)
	if err != nil {
		c.metrics.StreamDropped()
		c.logger.Warn().Err(err).Msg("dropping malformed stream message")
		return
	}
	c.metrics.StreamMessage(msg.Type)

	var p pending
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	switch msg.Type {
	case TypeConnected:
		c.clientID = msg.ClientID
		c.subscriptionID = msg.SubscriptionID
		c.channel = msg.Channel
		c.attempts = 0
		c.setStateLocked(Connected, &p)
	case TypeSubscriptionConfirmed:
		if msg.SubscriptionID != "" {
			c.subscriptionID = msg.SubscriptionID
		}
		if msg.Channel != "" {
			c.channel = msg.Channel
		}
	case TypeHeartbeat:
	case TypeDataUpdate:
		ev := Event{
			Type:           msg.EventType,
			SubscriptionID: msg.SubscriptionID,
			Data:           msg.Data,
			Timestamp:      msg.Timestamp,
			ReceivedAt:     c.now(),
		}
		c.log = append(c.log, ev)
		c.last = &ev
		if c.onEvent != nil {
			fn := c.onEvent
			p = append(p, func() { fn(ev) })
		}
		for _, fn := range c.subs {
			fn := fn
			p = append(p, func() { fn(ev) })
		}
		if c.invalidate && c.invalidator != nil {
			inv := c.invalidator
			p = append(p, func() { c.invalidateFor(inv, ev) })
		}
	default:
		c.logger.Debug().Str("type", msg.Type).Msg("ignoring stream message")
	}
	c.mu.Unlock()
	p.run()
}

func (c *Client) invalidateFor(inv Invalidator, ev Event) {
	if !Known(ev.Type) {
		c.logger.Info().Str("event_type", ev.Type).Msg("unknown event type")
		return
	}
	for _, k := range KeysForEvent(ev.Type, ev.Data) {
		n := inv.Invalidate(k)
		c.logger.Debug().Str("event_type", ev.Type).Str("key", k.String()).Int("matched", n).Msg("invalidated")
	}
}

// Disconnect stops any pending reconnect, closes the stream and clears the
// connection ids. It is idempotent.
func (c *Client) Disconnect() {
	var p pending
	c.mu.Lock()
	c.disconnectLocked(&p)
	c.mu.Unlock()
	p.run()
}

func (c *Client) disconnectLocked(p *pending) {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	c.clientID, c.subscriptionID, c.channel = "", "", ""
	c.setStateLocked(Disconnected, p)
}

// Reconnect resets the attempt counter, disconnects and connects again.
func (c *Client) Reconnect() {
	var p pending
	c.mu.Lock()
	c.attempts = 0
	c.disconnectLocked(&p)
	c.startLocked(&p)
	c.mu.Unlock()
	p.run()
}

// SetFilters changes the subscription. A live or opening stream is
// reconnected so it never keeps streaming under the old filters.
func (c *Client) SetFilters(f Filters) {
	c.mu.Lock()
	changed := c.filters != f
	c.filters = f
	active := c.state == Connected || c.state == Connecting
	c.mu.Unlock()
	if changed && active {
		c.Reconnect()
	}
}

// Close disconnects and waits for the stream goroutine to exit.
func (c *Client) Close() {
	c.Disconnect()
	c.wg.Wait()
}

// Subscribe adds fn to the data update listeners.
func (c *Client) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts is the number of reconnects since the last acknowledgement.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

func (c *Client) SubscriptionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptionID
}

func (c *Client) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *Client) Filters() Filters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters
}

// Events returns a copy of every data update received since the last
// ClearEvents.
func (c *Client) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.log...)
}

func (c *Client) LastEvent() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Event{}, false
	}
	return *c.last, true
}

func (c *Client) ClearEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
	c.last = nil
}
