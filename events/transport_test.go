package events_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnqh/heavymath-indexer-client/events"
	"github.com/johnqh/heavymath-indexer-client/internal/indexertest"
)

func TestSSEFraming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/base/api/events", r.URL.Path)
		assert.Equal(t, "markets", r.URL.Query().Get("channel"))
		assert.Equal(t, "0xabc", r.URL.Query().Get("user"))
		assert.False(t, r.URL.Query().Has("dealer"))
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "event: message\nid: 1\ndata: {\"type\":\ndata: \"heartbeat\"}\n\n")
		fmt.Fprint(w, "id: 2\nretry: 100\n\n")
		fmt.Fprint(w, "data:{\"type\":\"connected\"}\n\n")
	}))
	defer srv.Close()

	d, err := events.NewHTTPDialer(srv.URL+"/base", events.WithBearerToken("s3cret"))
	require.NoError(t, err)
	st, err := d.Dial(context.Background(), events.Filters{Channel: "markets", User: "0xabc"})
	require.NoError(t, err)
	defer st.Close()

	raw, err := st.Next()
	require.NoError(t, err)
	assert.Equal(t, "{\"type\":\n\"heartbeat\"}", string(raw))

	raw, err = st.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connected"}`, string(raw))

	_, err = st.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = st.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEOversizedEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: "+strings.Repeat("x", 2<<20)+"\n\n")
	}))
	defer srv.Close()

	d, err := events.NewHTTPDialer(srv.URL)
	require.NoError(t, err)
	st, err := d.Dial(context.Background(), events.Filters{})
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Next()
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestDialRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	d, err := events.NewHTTPDialer(srv.URL)
	require.NoError(t, err)
	_, err = d.Dial(context.Background(), events.Filters{})
	assert.ErrorContains(t, err, "status 401")

	_, err = events.NewHTTPDialer("/relative")
	assert.Error(t, err)
}

func TestStreamAgainstIndexer(t *testing.T) {
	srv := indexertest.New(t)
	d, err := events.NewHTTPDialer(srv.URL)
	require.NoError(t, err)

	got := make(chan events.Event, 8)
	c := events.NewClient(d,
		events.WithReconnectDelay(10*time.Millisecond),
		events.WithFilters(events.Filters{Channel: "markets"}),
		events.OnEvent(func(e events.Event) { got <- e }),
	)
	t.Cleanup(c.Close)

	c.Connect()
	waitState(t, c, events.Connected)
	assert.NotEmpty(t, c.ClientID())
	assert.Equal(t, "markets", c.Channel())

	srv.Publish(`{"type":"heartbeat","timestamp":"2024-01-01T00:00:00Z"}`)
	srv.Publish(`{broken`)
	srv.PublishUpdate(events.MarketResolved, map[string]any{"marketId": "1-market-1", "outcome": "yes"})
	select {
	case e := <-got:
		assert.Equal(t, events.MarketResolved, e.Type)
		assert.Equal(t, "1-market-1", e.MarketID())
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}

	// a server-side drop is an error followed by an automatic reconnect
	srv.DropStreams()
	require.Eventually(t, func() bool {
		return len(srv.StreamQueries()) == 2 && c.State() == events.Connected
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, c.Attempts())

	c.SetFilters(events.Filters{Channel: "predictions", MarketID: "1-market-1"})
	require.Eventually(t, func() bool {
		return len(srv.StreamQueries()) == 3 && c.State() == events.Connected
	}, 2*time.Second, 5*time.Millisecond)
	q := srv.StreamQueries()[2]
	assert.Equal(t, "predictions", q.Get("channel"))
	assert.Equal(t, "1-market-1", q.Get("marketId"))
	require.Eventually(t, func() bool { return srv.OpenStreams() == 1 }, time.Second, 5*time.Millisecond)

	c.Disconnect()
	require.Eventually(t, func() bool { return srv.OpenStreams() == 0 }, time.Second, 5*time.Millisecond)
}
