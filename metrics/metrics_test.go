package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheHit("op")
		m.CacheMiss("op")
		m.QueryFetch("success")
		m.StreamMessage("heartbeat")
		m.StreamDropped()
		m.StreamReconnect()
		m.SetStreamState("connected")
		m.Relayed("MarketCreated")
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("test", reg)

	m.CacheHit("GetMarket")
	m.CacheHit("GetMarket")
	m.CacheMiss("GetMarket")
	m.StreamReconnect()
	m.Relayed("PredictionPlaced")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheHits.WithLabelValues("GetMarket")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses.WithLabelValues("GetMarket")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayed.WithLabelValues("PredictionPlaced")))

	n, err := testutil.GatherAndCount(reg, "test_cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStreamStateIsOneHot(t *testing.T) {
	m := New("", nil)
	m.SetStreamState("connecting")
	m.SetStreamState("connected")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamState.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.streamState.WithLabelValues("connecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.streamState.WithLabelValues("error")))
}
