package query

import (
	"strings"

	"github.com/johnqh/heavymath-indexer-client/indexer"
)

// Namespace is the first element of every key.
const Namespace = "heavymath"

// Resource roots. Invalidating a root invalidates everything beneath it.
var (
	MarketsKey     = Key{Namespace, "markets"}
	PredictionsKey = Key{Namespace, "predictions"}
	DealersKey     = Key{Namespace, "dealers"}
	WithdrawalsKey = Key{Namespace, "withdrawals"}
	OracleKey      = Key{Namespace, "oracle"}
	FavoritesKey   = Key{Namespace, "favorites"}
	StatsKey       = Key{Namespace, "stats"}
	HealthKey      = Key{Namespace, "health"}
)

func MarketListsKey() Key                       { return MarketsKey.With("list") }
func MarketListKey(f indexer.MarketFilters) Key { return MarketListsKey().With(f) }
func MarketKey(id string) Key                   { return MarketsKey.With("detail", id) }

// MarketPredictionsRootKey covers every page of a market's predictions.
func MarketPredictionsRootKey(id string) Key { return MarketKey(id).With("predictions") }

func MarketPredictionsKey(id string, pp indexer.PageParams) Key {
	return MarketPredictionsRootKey(id).With(pp)
}

func MarketHistoryKey(id string) Key { return MarketKey(id).With("history") }

func PredictionListsKey() Key                           { return PredictionsKey.With("list") }
func PredictionListKey(f indexer.PredictionFilters) Key { return PredictionListsKey().With(f) }
func PredictionKey(id string) Key                       { return PredictionsKey.With("detail", id) }

func DealerListsKey() Key                       { return DealersKey.With("list") }
func DealerListKey(f indexer.DealerFilters) Key { return DealerListsKey().With(f) }
func DealerKey(id string) Key                   { return DealersKey.With("detail", id) }
func DealerPermissionsKey(id string) Key        { return DealerKey(id).With("permissions") }

func DealerMarketsKey(id string, pp indexer.PageParams) Key {
	return DealerKey(id).With("markets", pp)
}

func WithdrawalListKey(f indexer.WithdrawalFilters) Key { return WithdrawalsKey.With("list", f) }

func OracleListKey(f indexer.OracleFilters) Key { return OracleKey.With("requests", "list", f) }
func OracleRequestKey(id string) Key            { return OracleKey.With("requests", "detail", id) }

// WalletFavoritesKey covers every favorites query of one wallet.
func WalletFavoritesKey(wallet string) Key {
	return FavoritesKey.With(strings.ToLower(wallet))
}

func FavoriteListKey(wallet string, f indexer.FavoriteFilters) Key {
	return WalletFavoritesKey(wallet).With(f)
}

func MarketStatsKey() Key { return StatsKey.With("markets") }
