package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/johnqh/heavymath-indexer-client/events"
	"github.com/johnqh/heavymath-indexer-client/internal/http/routes"
	"github.com/johnqh/heavymath-indexer-client/relay"
)

// streamClient builds an events client from the stream config. Extra
// options are applied last.
func (a *app) streamClient(opts ...events.Option) (*events.Client, error) {
	d, err := events.NewHTTPDialer(a.cfg.APIURL, events.WithBearerToken(a.cfg.APIToken))
	if err != nil {
		return nil, err
	}
	base := []events.Option{
		events.WithAutoReconnect(a.cfg.Stream.AutoReconnect),
		events.WithMaxReconnectAttempts(a.cfg.Stream.MaxReconnectAttempts),
		events.WithReconnectDelay(a.cfg.Stream.ReconnectDelay),
		events.WithFilters(events.Filters{Channel: a.cfg.Stream.Channel}),
		events.WithLogger(a.log),
		events.WithMetrics(a.metrics),
		events.OnError(func(err error) {
			a.log.Warn().Err(err).Msg("stream error")
		}),
	}
	return events.NewClient(d, append(base, opts...)...), nil
}

func streamStatus(c *events.Client) func() any {
	return func() any {
		st := map[string]any{
			"state":          c.State(),
			"attempts":       c.Attempts(),
			"clientId":       c.ClientID(),
			"subscriptionId": c.SubscriptionID(),
			"channel":        c.Channel(),
			"events":         len(c.Events()),
		}
		if ev, ok := c.LastEvent(); ok {
			st["lastEvent"] = ev.Type
			st["lastEventAt"] = ev.ReceivedAt
		}
		return st
	}
}

// serveOps runs the operational HTTP server until ctx is done. It does
// nothing when no metrics address is configured.
func (a *app) serveOps(ctx context.Context, status func() any) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	s := routes.New(routes.ServerOptions{Registry: a.reg, Logger: a.log, Status: status})
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: s.Router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Info().Str("addr", a.cfg.MetricsAddr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("metrics server")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// watch prints data updates and keeps the query cache coherent until ctx
// is cancelled.
func (a *app) watch(ctx context.Context) error {
	c, err := a.streamClient(
		events.WithInvalidator(a.qc),
		events.OnStateChange(func(s events.ConnectionState) {
			fmt.Fprintf(a.out, "[%s] %s\n", time.Now().Format(time.Kitchen), s)
		}),
		events.OnEvent(func(ev events.Event) {
			line := ev.Type
			if id := ev.MarketID(); id != "" {
				line += " market=" + id
			}
			fmt.Fprintf(a.out, "[%s] %s %s\n", ev.ReceivedAt.Format(time.Kitchen), line, string(ev.Data))
		}),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	a.serveOps(ctx, streamStatus(c))
	c.Connect()
	<-ctx.Done()
	return nil
}

// relay forwards data updates to the task queue until ctx is cancelled.
func (a *app) relay(ctx context.Context) error {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: a.cfg.RedisAddr})
	defer client.Close()

	c, err := a.streamClient(events.WithInvalidateQueries(false))
	if err != nil {
		return err
	}
	defer c.Close()

	r := relay.New(client,
		relay.WithQueue(a.cfg.RelayQueue),
		relay.WithLogger(a.log),
		relay.WithMetrics(a.metrics),
	)
	detach := r.Attach(c)
	defer detach()

	a.serveOps(ctx, streamStatus(c))
	c.Connect()
	a.log.Info().Str("redis", a.cfg.RedisAddr).Str("queue", a.cfg.RelayQueue).Msg("relay running")
	<-ctx.Done()
	return nil
}

// worker consumes relayed updates and evicts the affected operations from
// the service cache. The CLI answers no queries from that cache, so this
// command is a reference wiring and a smoke test for the queue: a real
// consumer registers relay.Handler in the process that serves reads.
func (a *app) worker(ctx context.Context) error {
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: a.cfg.RedisAddr}, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			a.cfg.RelayQueue: 10,
		},
		Logger:   asynqLogger{a.log},
		LogLevel: asynq.WarnLevel,
	})
	mux := asynq.NewServeMux()
	relay.NewHandler(a.svc, a.log).Register(mux)

	a.serveOps(ctx, nil)
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	a.log.Info().Str("queue", a.cfg.RelayQueue).Msg("worker running")
	<-ctx.Done()
	srv.Shutdown()
	return nil
}
