// Package relay forwards stream data updates to asynq workers, which evict
// the affected operations from their service cache.
//
// A Handler only helps a process that also serves reads from the
// service.Service it evicts from: embed it, with an asynq.Server, in the
// long-running API process that owns that cache. One relay feeds any number
// of such processes, each consuming from its own queue.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/johnqh/heavymath-indexer-client/events"
	"github.com/johnqh/heavymath-indexer-client/internal/jobs"
	"github.com/johnqh/heavymath-indexer-client/metrics"
	"github.com/johnqh/heavymath-indexer-client/service"
)

// Enqueuer is the producing side of asynq. *asynq.Client implements it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

var _ Enqueuer = (*asynq.Client)(nil)

// Relay turns events into tasks. Unknown event types are not forwarded.
type Relay struct {
	enq     Enqueuer
	queue   string
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type Option func(*Relay)

func WithQueue(q string) Option {
	return func(r *Relay) { r.queue = q }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func New(enq Enqueuer, opts ...Option) *Relay {
	r := &Relay{enq: enq, queue: "default", logger: zerolog.Nop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewTask builds the task for ev.
func NewTask(ev events.Event) (*asynq.Task, error) {
	payload, err := json.Marshal(jobs.IndexerEventPayload{
		EventType:  ev.Type,
		MarketID:   ev.MarketID(),
		Data:       ev.Data,
		Timestamp:  ev.Timestamp,
		ReceivedAt: ev.ReceivedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.Type, err)
	}
	return asynq.NewTask(jobs.TaskIndexerEvent, payload), nil
}

// Forward enqueues ev. It reports false for event types that need no
// cache work.
func (r *Relay) Forward(ctx context.Context, ev events.Event) (bool, error) {
	if !events.Known(ev.Type) {
		r.logger.Debug().Str("event_type", ev.Type).Msg("not relaying unknown event")
		return false, nil
	}
	task, err := NewTask(ev)
	if err != nil {
		return false, err
	}
	info, err := r.enq.EnqueueContext(ctx, task,
		asynq.Queue(r.queue),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", ev.Type, err)
	}
	r.metrics.Relayed(ev.Type)
	r.logger.Debug().Str("event_type", ev.Type).Str("task_id", info.ID).Str("queue", info.Queue).Msg("relayed")
	return true, nil
}

// Attach forwards every data update c receives until the returned func is
// called. Enqueue failures are logged.
func (r *Relay) Attach(c *events.Client) (detach func()) {
	return c.Subscribe(func(ev events.Event) {
		if _, err := r.Forward(context.Background(), ev); err != nil {
			r.logger.Error().Err(err).Str("event_type", ev.Type).Msg("relay failed")
		}
	})
}

// Evicter drops cached operations. *service.Service implements it.
type Evicter interface {
	Evict(ops ...string) int
}

var _ Evicter = (*service.Service)(nil)

var opsByResource = map[string][]string{
	events.ResourceMarkets: {
		service.OpListMarkets,
		service.OpGetMarket,
		service.OpGetMarketStats,
		service.OpGetDealerMarkets,
		service.OpGetDealerDashboard,
	},
	events.ResourcePredictions: {
		service.OpListPredictions,
		service.OpGetPrediction,
		service.OpGetMarketPredictions,
		service.OpGetMarket,
		service.OpGetBettingHistory,
	},
	events.ResourceDealers: {
		service.OpListDealers,
		service.OpGetDealer,
		service.OpGetDealerPermissions,
		service.OpGetDealerMarkets,
		service.OpGetDealerDashboard,
	},
	events.ResourceOracle: {
		service.OpListOracleRequests,
		service.OpGetOracleRequest,
	},
	events.ResourceWithdrawals: {
		service.OpListWithdrawals,
	},
}

// OpsForEvent lists the service operations an event type makes stale.
func OpsForEvent(eventType string) []string {
	return opsByResource[events.Resource(eventType)]
}

// Handler consumes relayed events and evicts from svc. svc must be the
// service the surrounding process answers queries from.
type Handler struct {
	svc    Evicter
	logger zerolog.Logger
}

func NewHandler(svc Evicter, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register installs the handler on mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(jobs.TaskIndexerEvent, h.ProcessTask)
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p jobs.IndexerEventPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error().Err(err).Msg("bad relay payload")
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	ops := OpsForEvent(p.EventType)
	if len(ops) == 0 {
		h.logger.Info().Str("event_type", p.EventType).Msg("no cache work for event")
		return nil
	}
	n := h.svc.Evict(ops...)
	h.logger.Info().
		Str("event_type", p.EventType).
		Str("market_id", p.MarketID).
		Int("evicted", n).
		Msg("evicted cached operations")
	return nil
}
