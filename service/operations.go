package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/johnqh/heavymath-indexer-client/indexer"
)

// Operation names; they prefix cache keys and label metrics.
const (
	OpListMarkets          = "ListMarkets"
	OpGetMarket            = "GetMarket"
	OpGetMarketPredictions = "GetMarketPredictions"
	OpGetMarketHistory     = "GetMarketHistory"
	OpListPredictions      = "ListPredictions"
	OpGetPrediction        = "GetPrediction"
	OpListDealers          = "ListDealers"
	OpGetDealer            = "GetDealer"
	OpGetDealerPermissions = "GetDealerPermissions"
	OpGetDealerMarkets     = "GetDealerMarkets"
	OpListWithdrawals      = "ListWithdrawals"
	OpListOracleRequests   = "ListOracleRequests"
	OpGetOracleRequest     = "GetOracleRequest"
	OpGetMarketStats       = "GetMarketStats"
	OpGetDealerDashboard   = "GetDealerDashboard"
	OpGetBettingHistory    = "GetBettingHistory"
)

func (s *Service) ListMarkets(ctx context.Context, f indexer.MarketFilters) (*indexer.Page[indexer.Market], error) {
	return cached(ctx, s, OpListMarkets, "markets", []any{f}, func(ctx context.Context) (*indexer.Page[indexer.Market], error) {
		return s.api.ListMarkets(ctx, f)
	})
}

func (s *Service) GetMarket(ctx context.Context, id string) (*indexer.Market, error) {
	return cached(ctx, s, OpGetMarket, "market", []any{id}, func(ctx context.Context) (*indexer.Market, error) {
		return s.api.GetMarket(ctx, id)
	})
}

func (s *Service) GetMarketPredictions(ctx context.Context, id string, pp indexer.PageParams) (*indexer.Page[indexer.Prediction], error) {
	return cached(ctx, s, OpGetMarketPredictions, "market predictions", []any{id, pp}, func(ctx context.Context) (*indexer.Page[indexer.Prediction], error) {
		return s.api.GetMarketPredictions(ctx, id, pp)
	})
}

func (s *Service) GetMarketHistory(ctx context.Context, id string) ([]indexer.MarketHistory, error) {
	return cached(ctx, s, OpGetMarketHistory, "market history", []any{id}, func(ctx context.Context) ([]indexer.MarketHistory, error) {
		return s.api.GetMarketHistory(ctx, id)
	})
}

func (s *Service) ListPredictions(ctx context.Context, f indexer.PredictionFilters) (*indexer.Page[indexer.Prediction], error) {
	return cached(ctx, s, OpListPredictions, "predictions", []any{f}, func(ctx context.Context) (*indexer.Page[indexer.Prediction], error) {
		return s.api.ListPredictions(ctx, f)
	})
}

func (s *Service) GetPrediction(ctx context.Context, id string) (*indexer.Prediction, error) {
	return cached(ctx, s, OpGetPrediction, "prediction", []any{id}, func(ctx context.Context) (*indexer.Prediction, error) {
		return s.api.GetPrediction(ctx, id)
	})
}

func (s *Service) ListDealers(ctx context.Context, f indexer.DealerFilters) (*indexer.Page[indexer.DealerNFT], error) {
	return cached(ctx, s, OpListDealers, "dealers", []any{f}, func(ctx context.Context) (*indexer.Page[indexer.DealerNFT], error) {
		return s.api.ListDealers(ctx, f)
	})
}

func (s *Service) GetDealer(ctx context.Context, id string) (*indexer.DealerNFT, error) {
	return cached(ctx, s, OpGetDealer, "dealer", []any{id}, func(ctx context.Context) (*indexer.DealerNFT, error) {
		return s.api.GetDealer(ctx, id)
	})
}

func (s *Service) GetDealerPermissions(ctx context.Context, id string) ([]indexer.DealerPermission, error) {
	return cached(ctx, s, OpGetDealerPermissions, "dealer permissions", []any{id}, func(ctx context.Context) ([]indexer.DealerPermission, error) {
		return s.api.GetDealerPermissions(ctx, id)
	})
}

func (s *Service) GetDealerMarkets(ctx context.Context, id string, pp indexer.PageParams) (*indexer.Page[indexer.Market], error) {
	return cached(ctx, s, OpGetDealerMarkets, "dealer markets", []any{id, pp}, func(ctx context.Context) (*indexer.Page[indexer.Market], error) {
		return s.api.GetDealerMarkets(ctx, id, pp)
	})
}

func (s *Service) ListWithdrawals(ctx context.Context, f indexer.WithdrawalFilters) (*indexer.Page[indexer.Withdrawal], error) {
	return cached(ctx, s, OpListWithdrawals, "withdrawals", []any{f}, func(ctx context.Context) (*indexer.Page[indexer.Withdrawal], error) {
		return s.api.ListWithdrawals(ctx, f)
	})
}

func (s *Service) ListOracleRequests(ctx context.Context, f indexer.OracleFilters) (*indexer.Page[indexer.OracleRequest], error) {
	return cached(ctx, s, OpListOracleRequests, "oracle requests", []any{f}, func(ctx context.Context) (*indexer.Page[indexer.OracleRequest], error) {
		return s.api.ListOracleRequests(ctx, f)
	})
}

func (s *Service) GetOracleRequest(ctx context.Context, id string) (*indexer.OracleRequest, error) {
	return cached(ctx, s, OpGetOracleRequest, "oracle request", []any{id}, func(ctx context.Context) (*indexer.OracleRequest, error) {
		return s.api.GetOracleRequest(ctx, id)
	})
}

func (s *Service) GetMarketStats(ctx context.Context) (*indexer.MarketStats, error) {
	return cached(ctx, s, OpGetMarketStats, "market stats", nil, func(ctx context.Context) (*indexer.MarketStats, error) {
		return s.api.GetMarketStats(ctx)
	})
}

// Health is never cached.
func (s *Service) Health(ctx context.Context) (*indexer.Health, error) {
	h, err := s.api.Health(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get health")
	}
	return h, nil
}

// Favorites are per-wallet mutable state and pass through uncached.

func (s *Service) ListFavorites(ctx context.Context, wallet string, f indexer.FavoriteFilters) (*indexer.Page[indexer.Favorite], error) {
	page, err := s.api.ListFavorites(ctx, wallet, f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get favorites")
	}
	return page, nil
}

func (s *Service) AddFavorite(ctx context.Context, wallet string, req indexer.AddFavoriteRequest) (*indexer.Favorite, error) {
	fav, err := s.api.AddFavorite(ctx, wallet, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to add favorite")
	}
	return fav, nil
}

func (s *Service) RemoveFavorite(ctx context.Context, wallet string, id int64) error {
	if err := s.api.RemoveFavorite(ctx, wallet, id); err != nil {
		return errors.Wrap(err, "failed to remove favorite")
	}
	return nil
}
