// Package metrics exposes Prometheus collectors for the client's caches and
// event stream. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stream states in gauge order.
var streamStates = []string{"disconnected", "connecting", "connected", "error"}

type Metrics struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	queryFetches   *prometheus.CounterVec
	streamMessages *prometheus.CounterVec
	streamDropped  prometheus.Counter
	reconnects     prometheus.Counter
	streamState    *prometheus.GaugeVec
	relayed        *prometheus.CounterVec
}

// New builds the collectors under namespace and registers them on reg when
// reg is non-nil.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "heavymath"
	}
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "TTL cache hits by operation",
		}, []string{"op"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "TTL cache misses by operation",
		}, []string{"op"}),
		queryFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "fetches_total",
			Help:      "Reactive query fetches by result",
		}, []string{"result"}),
		streamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Stream messages received by type",
		}, []string{"type"}),
		streamDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dropped_total",
			Help:      "Malformed stream messages dropped",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Scheduled stream reconnect attempts",
		}),
		streamState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state",
			Help:      "1 for the current stream connection state, 0 otherwise",
		}, []string{"state"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Stream events relayed to the task queue by event type",
		}, []string{"event_type"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.cacheHits, m.cacheMisses, m.queryFetches,
			m.streamMessages, m.streamDropped, m.reconnects, m.streamState,
			m.relayed,
		)
	}
	return m
}

func (m *Metrics) CacheHit(op string) {
	if m != nil {
		m.cacheHits.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) CacheMiss(op string) {
	if m != nil {
		m.cacheMisses.WithLabelValues(op).Inc()
	}
}

// QueryFetch records a reactive fetch outcome ("success" or "error").
func (m *Metrics) QueryFetch(result string) {
	if m != nil {
		m.queryFetches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) StreamMessage(msgType string) {
	if m != nil {
		m.streamMessages.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) StreamDropped() {
	if m != nil {
		m.streamDropped.Inc()
	}
}

func (m *Metrics) StreamReconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

// SetStreamState sets the gauge for state to 1 and every other state to 0.
func (m *Metrics) SetStreamState(state string) {
	if m == nil {
		return
	}
	for _, s := range streamStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.streamState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) Relayed(eventType string) {
	if m != nil {
		m.relayed.WithLabelValues(eventType).Inc()
	}
}
