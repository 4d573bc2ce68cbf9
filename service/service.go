// Package service is the business layer over the indexer client: cached
// read operations for non-reactive callers plus composite operations such
// as the dealer dashboard.
package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/johnqh/heavymath-indexer-client/cache"
	"github.com/johnqh/heavymath-indexer-client/indexer"
	"github.com/johnqh/heavymath-indexer-client/metrics"
)

// Endpoints is the part of *indexer.Client the service calls.
type Endpoints interface {
	ListMarkets(ctx context.Context, f indexer.MarketFilters) (*indexer.Page[indexer.Market], error)
	GetMarket(ctx context.Context, id string) (*indexer.Market, error)
	GetMarketPredictions(ctx context.Context, id string, pp indexer.PageParams) (*indexer.Page[indexer.Prediction], error)
	GetMarketHistory(ctx context.Context, id string) ([]indexer.MarketHistory, error)
	ListPredictions(ctx context.Context, f indexer.PredictionFilters) (*indexer.Page[indexer.Prediction], error)
	GetPrediction(ctx context.Context, id string) (*indexer.Prediction, error)
	ListDealers(ctx context.Context, f indexer.DealerFilters) (*indexer.Page[indexer.DealerNFT], error)
	GetDealer(ctx context.Context, id string) (*indexer.DealerNFT, error)
	GetDealerPermissions(ctx context.Context, id string) ([]indexer.DealerPermission, error)
	GetDealerMarkets(ctx context.Context, id string, pp indexer.PageParams) (*indexer.Page[indexer.Market], error)
	ListWithdrawals(ctx context.Context, f indexer.WithdrawalFilters) (*indexer.Page[indexer.Withdrawal], error)
	ListOracleRequests(ctx context.Context, f indexer.OracleFilters) (*indexer.Page[indexer.OracleRequest], error)
	GetOracleRequest(ctx context.Context, id string) (*indexer.OracleRequest, error)
	ListFavorites(ctx context.Context, wallet string, f indexer.FavoriteFilters) (*indexer.Page[indexer.Favorite], error)
	AddFavorite(ctx context.Context, wallet string, req indexer.AddFavoriteRequest) (*indexer.Favorite, error)
	RemoveFavorite(ctx context.Context, wallet string, id int64) error
	GetMarketStats(ctx context.Context) (*indexer.MarketStats, error)
	Health(ctx context.Context) (*indexer.Health, error)
}

var _ Endpoints = (*indexer.Client)(nil)

// Service owns one TTL cache. Create one per caller; there is no shared
// instance.
type Service struct {
	api     Endpoints
	cache   *cache.TTLCache
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

// WithTTL sets how long results stay cached (default 5 minutes).
func WithTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(api Endpoints, opts ...Option) *Service {
	s := &Service{
		api:    api,
		ttl:    cache.DefaultTTL,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.cache = cache.New(s.ttl, cache.WithClock(s.now))
	return s
}

// cached serves op(args) from the cache or calls fn and caches its result.
// Failures are wrapped and never cached.
func cached[T any](ctx context.Context, s *Service, op, what string, args []any, fn func(context.Context) (T, error)) (T, error) {
	key := cache.Key(op, args...)
	if v, ok := cache.Lookup[T](s.cache, key); ok {
		s.metrics.CacheHit(op)
		return v, nil
	}
	s.metrics.CacheMiss(op)

	v, err := fn(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Str("op", op).Str("key", key).Msg("fetch failed")
		var zero T
		return zero, errors.Wrapf(err, "failed to get %s", what)
	}
	s.cache.Set(key, v)
	return v, nil
}

// ClearCache evicts every entry.
func (s *Service) ClearCache() {
	s.cache.Clear()
	s.logger.Debug().Msg("cache cleared")
}

// Evict drops the cached results of the named operations (the Op*
// constants) and returns how many entries went.
func (s *Service) Evict(ops ...string) int {
	n := 0
	for _, op := range ops {
		if _, ok := s.cache.Get(op); ok {
			s.cache.Delete(op)
			n++
		}
		n += s.cache.DeletePrefix(op + ":")
	}
	return n
}

// Close releases the cache. The service must not be used afterwards.
func (s *Service) Close() error {
	s.cache.Clear()
	return nil
}
