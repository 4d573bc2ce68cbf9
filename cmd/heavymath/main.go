package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/johnqh/heavymath-indexer-client/favorites"
	"github.com/johnqh/heavymath-indexer-client/indexer"
	"github.com/johnqh/heavymath-indexer-client/internal/config"
	"github.com/johnqh/heavymath-indexer-client/internal/logging"
	"github.com/johnqh/heavymath-indexer-client/metrics"
	"github.com/johnqh/heavymath-indexer-client/query"
	"github.com/johnqh/heavymath-indexer-client/service"
)

const version = "v0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runCLI(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: heavymath <command> [args]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  markets [status]                       List markets, optionally by status")
	fmt.Fprintln(w, "  market <id>                            Show a market with predictions and history")
	fmt.Fprintln(w, "  dashboard <owner>                      Dealer NFTs and their markets")
	fmt.Fprintln(w, "  bets <user>                            Active and claimed predictions")
	fmt.Fprintln(w, "  favorites <wallet>                     List a wallet's favorites")
	fmt.Fprintln(w, "  favorites <wallet> add <cat> <type> <id> [subcategory]")
	fmt.Fprintln(w, "  favorites <wallet> remove <favorite id>")
	fmt.Fprintln(w, "  stats                                  Market statistics")
	fmt.Fprintln(w, "  health                                 Indexer health")
	fmt.Fprintln(w, "  watch                                  Print live updates until interrupted")
	fmt.Fprintln(w, "  relay                                  Forward live updates to the worker queue")
	fmt.Fprintln(w, "  worker                                 Evict cached data for relayed updates")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  HEAVYMATH_API_URL    Indexer base URL (default http://localhost:3000)")
	fmt.Fprintln(w, "  HEAVYMATH_API_TOKEN  Bearer token (optional)")
	fmt.Fprintln(w, "  REDIS_ADDR           Queue broker for relay and worker")
	fmt.Fprintln(w, "  LOG_LEVEL, LOG_PRETTY")
}

func runCLI(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return nil
	}
	switch args[0] {
	case "help", "--help", "-h":
		usage(out)
		return nil
	case "version", "--version", "-v":
		fmt.Fprintf(out, "heavymath %s\n", version)
		return nil
	}

	a, err := newApp(out)
	if err != nil {
		return err
	}
	defer a.close()

	rest := args[1:]
	switch args[0] {
	case "markets":
		return a.markets(ctx, rest)
	case "market":
		return a.market(ctx, rest)
	case "dashboard":
		return a.dashboard(ctx, rest)
	case "bets":
		return a.bets(ctx, rest)
	case "favorites":
		return a.favorites(ctx, rest)
	case "stats":
		return a.stats(ctx)
	case "health":
		return a.health(ctx)
	case "watch":
		return a.watch(ctx)
	case "relay":
		return a.relay(ctx)
	case "worker":
		return a.worker(ctx)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// app holds the wired stack shared by every command.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	out     io.Writer
	api     *indexer.Client
	svc     *service.Service
	qc      *query.Client
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	pool    *pgxpool.Pool
}

func newApp(out io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	reg := prometheus.NewRegistry()
	m := metrics.New("heavymath", reg)

	api, err := indexer.New(cfg.APIURL,
		indexer.WithTimeout(cfg.Timeout),
		indexer.WithBearerToken(cfg.APIToken),
		indexer.WithRateLimit(cfg.RateLimit),
		indexer.WithUserAgent("heavymath/"+version),
		indexer.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("indexer client: %w", err)
	}

	return &app{
		cfg: cfg,
		log: logger,
		out: out,
		api: api,
		svc: service.New(api,
			service.WithTTL(cfg.CacheTTL),
			service.WithLogger(logger),
			service.WithMetrics(m),
		),
		qc:      query.NewClient(query.WithLogger(logger), query.WithMetrics(m)),
		reg:     reg,
		metrics: m,
	}, nil
}

// favoritesStore opens the configured persistence and loads it.
func (a *app) favoritesStore(ctx context.Context) (*favorites.Store, error) {
	var p favorites.Persistence = favorites.MemoryPersistence{}
	switch a.cfg.Favorites.Store {
	case config.StoreFile:
		fp, err := favorites.NewFilePersistence(a.cfg.Favorites.Path)
		if err != nil {
			return nil, fmt.Errorf("favorites file: %w", err)
		}
		p = fp
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		a.pool = pool
		pg, err := favorites.NewPGPersistence(ctx, pool)
		if err != nil {
			return nil, err
		}
		p = pg
	}
	store := favorites.NewStore(favorites.WithPersistence(p), favorites.WithStoreLogger(a.log))
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	return store, nil
}

func (a *app) close() {
	a.qc.Wait()
	_ = a.svc.Close()
	if a.pool != nil {
		a.pool.Close()
	}
}
