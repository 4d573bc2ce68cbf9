package query

import (
	"context"
	"strings"

	"github.com/johnqh/heavymath-indexer-client/indexer"
)

// FavoritesLister is all the Favorites query needs.
type FavoritesLister interface {
	ListFavorites(ctx context.Context, wallet string, f indexer.FavoriteFilters) (*indexer.Page[indexer.Favorite], error)
}

// API is the read surface of *indexer.Client the resource queries use.
type API interface {
	FavoritesLister

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
	GetMarketStats(ctx context.Context) (*indexer.MarketStats, error)
	Health(ctx context.Context) (*indexer.Health, error)
}

var _ API = (*indexer.Client)(nil)

func present(s string) func() bool {
	return func() bool { return strings.TrimSpace(s) != "" }
}

func Markets(api API, f indexer.MarketFilters) Query[*indexer.Page[indexer.Market]] {
	return Query[*indexer.Page[indexer.Market]]{
		Key:       MarketListKey(f),
		StaleTime: StaleNormal,
		Fn: func(ctx context.Context) (*indexer.Page[indexer.Market], error) {
			return api.ListMarkets(ctx, f)
		},
	}
}

// Market is disabled while id is empty.
func Market(api API, id string) Query[*indexer.Market] {
	return Query[*indexer.Market]{
		Key:       MarketKey(id),
		StaleTime: StaleNormal,
		Enabled:   present(id),
		Fn: func(ctx context.Context) (*indexer.Market, error) {
			return api.GetMarket(ctx, id)
		},
	}
}

func MarketPredictions(api API, id string, pp indexer.PageParams) Query[*indexer.Page[indexer.Prediction]] {
	return Query[*indexer.Page[indexer.Prediction]]{
		Key:       MarketPredictionsKey(id, pp),
		StaleTime: StaleFast,
		Enabled:   present(id),
		Fn: func(ctx context.Context) (*indexer.Page[indexer.Prediction], error) {
			return api.GetMarketPredictions(ctx, id, pp)
		},
	}
}

func MarketHistory(api API, id string) Query[[]indexer.MarketHistory] {
	return Query[[]indexer.MarketHistory]{
		Key:       MarketHistoryKey(id),
		StaleTime: StaleSlow,
		Enabled:   present(id),
		Fn: func(ctx context.Context) ([]indexer.MarketHistory, error) {
			return api.GetMarketHistory(ctx, id)
		},
	}
}

func Predictions(api API, f indexer.PredictionFilters) Query[*indexer.Page[indexer.Prediction]] {
	return Query[*indexer.Page[indexer.Prediction]]{
		Key:       PredictionListKey(f),
		StaleTime: StaleFast,
		Fn: func(ctx context.Context) (*indexer.Page[indexer.Prediction], error) {
			return api.ListPredictions(ctx, f)
		},
	}
}

func Prediction(api API, id string) Query[*indexer.Prediction] {
	return Query[*indexer.Prediction]{
		Key:       PredictionKey(id),
		StaleTime: StaleFast,
		Enabled:   present(id),
		Fn: func(ctx context.Context) (*indexer.Prediction, error) {
			return api.GetPrediction(ctx, id)
		},
	}
}

func Dealers(api API, f indexer.DealerFilters) Query[*indexer.Page[indexer.DealerNFT]] {
	return Query[*indexer.Page[indexer.DealerNFT]]{
		Key:       DealerListKey(f),
		StaleTime: StaleNormal,
		Fn: func(ctx context.Context) (*indexer.Page[indexer.DealerNFT], error) {
			return api.ListDealers(ctx, f)
		},
	}
}

func Dealer(api API, id string) Query[*indexer.DealerNFT] {
	return Query[*indexer.DealerNFT]{
		Key:       DealerKey(id),
		StaleTime: StaleNormal,
		Enabled:   present(id),
		Fn: func(ctx context.Context) (*indexer.DealerNFT, error) {
			return api.GetDealer(ctx, id)
		},
	}
}

func DealerPermissions(api API, id string) Query[[]indexer.DealerPermission] {
	return Query[[]indexer.DealerPermission]{
		Key:       DealerPermissionsKey(id),
		StaleTime: StaleStatic,
		Enabled:   present(id),
		Fn: func(ctx context.Context) ([]indexer.DealerPermission, error) {
			return api.GetDealerPermissions(ctx, id)
		},
	}
}

func DealerMarkets(api API, id string, pp indexer.PageParams) Query[*indexer.Page[indexer.Market]] {
	return Query[*indexer.Page[indexer.Market]]{
		Key:       DealerMarketsKey(id, pp),
		StaleTime: StaleNormal,
		Enabled:   present(id),
		Fn: func(ctx context.Context) (*indexer.Page[indexer.Market], error) {
			return api.GetDealerMarkets(ctx, id, pp)
		},
	}
}

func Withdrawals(api API, f indexer.WithdrawalFilters) Query[*indexer.Page[indexer.Withdrawal]] {
	return Query[*indexer.Page[indexer.Withdrawal]]{
		Key:       WithdrawalListKey(f),
		StaleTime: StaleNormal,
		Fn: func(ctx context.Context) (*indexer.Page[indexer.Withdrawal], error) {
			return api.ListWithdrawals(ctx, f)
		},
	}
}

func OracleRequests(api API, f indexer.OracleFilters) Query[*indexer.Page[indexer.OracleRequest]] {
	return Query[*indexer.Page[indexer.OracleRequest]]{
		Key:       OracleListKey(f),
		StaleTime: StaleFast,
		Fn: func(ctx context.Context) (*indexer.Page[indexer.OracleRequest], error) {
			return api.ListOracleRequests(ctx, f)
		},
	}
}

func OracleRequest(api API, id string) Query[*indexer.OracleRequest] {
	return Query[*indexer.OracleRequest]{
		Key:       OracleRequestKey(id),
		StaleTime: StaleFast,
		Enabled:   present(id),
		Fn: func(ctx context.Context) (*indexer.OracleRequest, error) {
			return api.GetOracleRequest(ctx, id)
		},
	}
}

// Favorites is disabled while no wallet is connected.
func Favorites(api FavoritesLister, wallet string, f indexer.FavoriteFilters) Query[*indexer.Page[indexer.Favorite]] {
	return Query[*indexer.Page[indexer.Favorite]]{
		Key:       FavoriteListKey(wallet, f),
		StaleTime: StaleNormal,
		Enabled:   present(wallet),
		Fn: func(ctx context.Context) (*indexer.Page[indexer.Favorite], error) {
			return api.ListFavorites(ctx, wallet, f)
		},
	}
}

func MarketStats(api API) Query[*indexer.MarketStats] {
	return Query[*indexer.MarketStats]{
		Key:       MarketStatsKey(),
		StaleTime: StaleSlow,
		Fn:        api.GetMarketStats,
	}
}

func Health(api API) Query[*indexer.Health] {
	return Query[*indexer.Health]{
		Key:       HealthKey,
		StaleTime: StaleFast,
		Fn:        api.Health,
	}
}
