package relay_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnqh/heavymath-indexer-client/events"
	"github.com/johnqh/heavymath-indexer-client/indexer"
	"github.com/johnqh/heavymath-indexer-client/internal/indexertest"
	"github.com/johnqh/heavymath-indexer-client/internal/jobs"
	"github.com/johnqh/heavymath-indexer-client/relay"
	"github.com/johnqh/heavymath-indexer-client/service"
)

type fakeEnqueuer struct {
	mu     sync.Mutex
	tasks  []*asynq.Task
	queues []string
	err    error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	queue := "default"
	for _, o := range opts {
		if o.Type() == asynq.QueueOpt {
			queue = o.Value().(string)
		}
	}
	f.tasks = append(f.tasks, task)
	f.queues = append(f.queues, queue)
	return &asynq.TaskInfo{ID: "task-1", Queue: queue}, nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func TestForward(t *testing.T) {
	enq := &fakeEnqueuer{}
	r := relay.New(enq, relay.WithQueue("events"))

	ev := events.Event{
		Type:       events.MarketResolved,
		Data:       json.RawMessage(`{"marketId":"1-market-4","outcome":"yes"}`),
		Timestamp:  "2024-01-01T00:00:00Z",
		ReceivedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
	sent, err := r.Forward(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, sent)

	require.Len(t, enq.tasks, 1)
	assert.Equal(t, jobs.TaskIndexerEvent, enq.tasks[0].Type())
	assert.Equal(t, "events", enq.queues[0])

	var p jobs.IndexerEventPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &p))
	assert.Equal(t, events.MarketResolved, p.EventType)
	assert.Equal(t, "1-market-4", p.MarketID)
	assert.JSONEq(t, `{"marketId":"1-market-4","outcome":"yes"}`, string(p.Data))
	assert.True(t, ev.ReceivedAt.Equal(p.ReceivedAt))
}

func TestForwardSkipsUnknownAndReportsErrors(t *testing.T) {
	enq := &fakeEnqueuer{}
	r := relay.New(enq)

	sent, err := r.Forward(context.Background(), events.Event{Type: "Upgraded"})
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Zero(t, enq.count())

	enq.err = errors.New("redis down")
	_, err = r.Forward(context.Background(), events.Event{Type: events.Withdrawn})
	assert.ErrorContains(t, err, "redis down")
}

func TestOpsForEvent(t *testing.T) {
	assert.Contains(t, relay.OpsForEvent(events.PredictionPlaced), service.OpGetMarketPredictions)
	assert.Contains(t, relay.OpsForEvent(events.LicenseGranted), service.OpGetDealerDashboard)
	assert.NotContains(t, relay.OpsForEvent(events.PredictionPlaced), service.OpListDealers)
	assert.Equal(t, []string{service.OpListWithdrawals}, relay.OpsForEvent(events.FeesWithdrawn))
	assert.Empty(t, relay.OpsForEvent("Upgraded"))
}

func TestHandlerEvictsServiceCache(t *testing.T) {
	srv := indexertest.New(t)
	srv.AddMarkets(indexer.Market{ID: "1-market-4", Title: "Will it rain?"})
	srv.AddDealer(indexer.DealerNFT{ID: "1-dealer-1", Owner: "0xabc"})
	api, err := indexer.New(srv.URL)
	require.NoError(t, err)
	svc := service.New(api)
	defer svc.Close()

	ctx := context.Background()
	_, err = svc.GetMarket(ctx, "1-market-4")
	require.NoError(t, err)
	_, err = svc.ListDealers(ctx, indexer.DealerFilters{})
	require.NoError(t, err)

	task, err := relay.NewTask(events.Event{Type: events.MarketUpdated, Data: json.RawMessage(`{"marketId":"1-market-4"}`)})
	require.NoError(t, err)
	h := relay.NewHandler(svc, zerolog.Nop())
	require.NoError(t, h.ProcessTask(ctx, task))

	_, err = svc.GetMarket(ctx, "1-market-4")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Hits("GET /api/markets/1-market-4"))

	_, err = svc.ListDealers(ctx, indexer.DealerFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Hits("GET /api/dealers"), "dealers are untouched by market events")
}

func TestHandlerPayloads(t *testing.T) {
	h := relay.NewHandler(evictFunc(func(...string) int { t.Fatal("unexpected eviction"); return 0 }), zerolog.Nop())

	err := h.ProcessTask(context.Background(), asynq.NewTask(jobs.TaskIndexerEvent, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	payload, _ := json.Marshal(jobs.IndexerEventPayload{EventType: "Upgraded"})
	assert.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(jobs.TaskIndexerEvent, payload)))

	mux := asynq.NewServeMux()
	h.Register(mux)
	handler, pattern := mux.Handler(asynq.NewTask(jobs.TaskIndexerEvent, payload))
	assert.Equal(t, jobs.TaskIndexerEvent, pattern)
	assert.NotNil(t, handler)
}

type evictFunc func(ops ...string) int

func (f evictFunc) Evict(ops ...string) int { return f(ops...) }

func TestAttachForwardsStreamUpdates(t *testing.T) {
	srv := indexertest.New(t)
	d, err := events.NewHTTPDialer(srv.URL)
	require.NoError(t, err)
	c := events.NewClient(d)
	t.Cleanup(c.Close)

	enq := &fakeEnqueuer{}
	detach := relay.New(enq).Attach(c)
	defer detach()

	c.Connect()
	require.Eventually(t, func() bool { return c.State() == events.Connected }, 2*time.Second, 5*time.Millisecond)

	srv.PublishUpdate(events.OracleResponded, map[string]any{"requestId": "1-oracle-1"})
	srv.PublishUpdate("Upgraded", map[string]any{})
	srv.PublishUpdate(events.WithdrawalMade, map[string]any{"amount": "10"})

	require.Eventually(t, func() bool { return len(c.Events()) == 3 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return enq.count() == 2 }, time.Second, 5*time.Millisecond)
}
