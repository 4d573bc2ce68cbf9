package indexer

import (
	"context"
	"strconv"
)

var (
	opListMarkets          = op{"ListMarkets", "failed to fetch markets"}
	opGetMarket            = op{"GetMarket", "failed to fetch market"}
	opGetMarketPredictions = op{"GetMarketPredictions", "failed to fetch market predictions"}
	opGetMarketHistory     = op{"GetMarketHistory", "failed to fetch market history"}
	opListPredictions      = op{"ListPredictions", "failed to fetch predictions"}
	opGetPrediction        = op{"GetPrediction", "failed to fetch prediction"}
	opListDealers          = op{"ListDealers", "failed to fetch dealers"}
	opGetDealer            = op{"GetDealer", "failed to fetch dealer"}
	opGetDealerPermissions = op{"GetDealerPermissions", "failed to fetch dealer permissions"}
	opGetDealerMarkets     = op{"GetDealerMarkets", "failed to fetch dealer markets"}
	opListWithdrawals      = op{"ListWithdrawals", "failed to fetch withdrawals"}
	opListOracleRequests   = op{"ListOracleRequests", "failed to fetch oracle requests"}
	opGetOracleRequest     = op{"GetOracleRequest", "failed to fetch oracle request"}
	opListFavorites        = op{"ListFavorites", "failed to fetch favorites"}
	opAddFavorite          = op{"AddFavorite", "failed to add favorite"}
	opRemoveFavorite       = op{"RemoveFavorite", "failed to remove favorite"}
	opGetMarketStats       = op{"GetMarketStats", "failed to fetch market stats"}
	opHealth               = op{"Health", "health check failed"}
)

// ListMarkets returns a page of markets.
func (c *Client) ListMarkets(ctx context.Context, f MarketFilters) (*Page[Market], error) {
	return getPage[Market](ctx, c, opListMarkets, "/api/markets", f.values())
}

// GetMarket returns one market by its chain-prefixed id.
func (c *Client) GetMarket(ctx context.Context, id string) (*Market, error) {
	if err := required(opGetMarket.name, "id", id); err != nil {
		return nil, err
	}
	return getOne[Market](ctx, c, opGetMarket, "/api/markets/"+seg(id), nil)
}

// GetMarketPredictions returns a page of predictions placed on a market.
func (c *Client) GetMarketPredictions(ctx context.Context, id string, pp PageParams) (*Page[Prediction], error) {
	if err := required(opGetMarketPredictions.name, "id", id); err != nil {
		return nil, err
	}
	return getPage[Prediction](ctx, c, opGetMarketPredictions, "/api/markets/"+seg(id)+"/predictions", pp.values())
}

// GetMarketHistory returns a market's state transitions, oldest first.
func (c *Client) GetMarketHistory(ctx context.Context, id string) ([]MarketHistory, error) {
	if err := required(opGetMarketHistory.name, "id", id); err != nil {
		return nil, err
	}
	return getList[MarketHistory](ctx, c, opGetMarketHistory, "/api/markets/"+seg(id)+"/history", nil)
}

func (c *Client) ListPredictions(ctx context.Context, f PredictionFilters) (*Page[Prediction], error) {
	return getPage[Prediction](ctx, c, opListPredictions, "/api/predictions", f.values())
}

func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	if err := required(opGetPrediction.name, "id", id); err != nil {
		return nil, err
	}
	return getOne[Prediction](ctx, c, opGetPrediction, "/api/predictions/"+seg(id), nil)
}

func (c *Client) ListDealers(ctx context.Context, f DealerFilters) (*Page[DealerNFT], error) {
	return getPage[DealerNFT](ctx, c, opListDealers, "/api/dealers", f.values())
}

func (c *Client) GetDealer(ctx context.Context, id string) (*DealerNFT, error) {
	if err := required(opGetDealer.name, "id", id); err != nil {
		return nil, err
	}
	return getOne[DealerNFT](ctx, c, opGetDealer, "/api/dealers/"+seg(id), nil)
}

func (c *Client) GetDealerPermissions(ctx context.Context, id string) ([]DealerPermission, error) {
	if err := required(opGetDealerPermissions.name, "id", id); err != nil {
		return nil, err
	}
	return getList[DealerPermission](ctx, c, opGetDealerPermissions, "/api/dealers/"+seg(id)+"/permissions", nil)
}

// GetDealerMarkets returns a page of markets created under a dealer NFT.
func (c *Client) GetDealerMarkets(ctx context.Context, id string, pp PageParams) (*Page[Market], error) {
	if err := required(opGetDealerMarkets.name, "id", id); err != nil {
		return nil, err
	}
	return getPage[Market](ctx, c, opGetDealerMarkets, "/api/dealers/"+seg(id)+"/markets", pp.values())
}

func (c *Client) ListWithdrawals(ctx context.Context, f WithdrawalFilters) (*Page[Withdrawal], error) {
	return getPage[Withdrawal](ctx, c, opListWithdrawals, "/api/withdrawals", f.values())
}

func (c *Client) ListOracleRequests(ctx context.Context, f OracleFilters) (*Page[OracleRequest], error) {
	return getPage[OracleRequest](ctx, c, opListOracleRequests, "/api/oracle/requests", f.values())
}

func (c *Client) GetOracleRequest(ctx context.Context, id string) (*OracleRequest, error) {
	if err := required(opGetOracleRequest.name, "id", id); err != nil {
		return nil, err
	}
	return getOne[OracleRequest](ctx, c, opGetOracleRequest, "/api/oracle/requests/"+seg(id), nil)
}

// ListFavorites returns a page of a wallet's favorites.
func (c *Client) ListFavorites(ctx context.Context, wallet string, f FavoriteFilters) (*Page[Favorite], error) {
	if err := required(opListFavorites.name, "wallet", wallet); err != nil {
		return nil, err
	}
	return getPage[Favorite](ctx, c, opListFavorites, "/api/wallet/"+seg(wallet)+"/favorites", f.values())
}

// AddFavorite creates a favorite and returns the server-confirmed record.
func (c *Client) AddFavorite(ctx context.Context, wallet string, req AddFavoriteRequest) (*Favorite, error) {
	if err := required(opAddFavorite.name, "wallet", wallet); err != nil {
		return nil, err
	}
	if err := c.check(opAddFavorite.name, req); err != nil {
		return nil, err
	}
	resp, err := c.transport.Post(ctx, "/api/wallet/"+seg(wallet)+"/favorites", req)
	if err != nil {
		return nil, err
	}
	env, err := unwrap[*Favorite](opAddFavorite, resp)
	if err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, &APIError{Op: opAddFavorite.name, Status: resp.Status, Message: "empty data"}
	}
	return env.Data, nil
}

// RemoveFavorite deletes a confirmed favorite by its server id.
func (c *Client) RemoveFavorite(ctx context.Context, wallet string, id int64) error {
	if err := required(opRemoveFavorite.name, "wallet", wallet); err != nil {
		return err
	}
	if id < 0 {
		return &ValidationError{Op: opRemoveFavorite.name, Field: "id", Msg: "pending favorites have no server id"}
	}
	resp, err := c.transport.Delete(ctx, "/api/wallet/"+seg(wallet)+"/favorites/"+strconv.FormatInt(id, 10))
	if err != nil {
		return err
	}
	_, err = unwrap[any](opRemoveFavorite, resp)
	return err
}

func (c *Client) GetMarketStats(ctx context.Context) (*MarketStats, error) {
	return getOne[MarketStats](ctx, c, opGetMarketStats, "/api/stats/markets", nil)
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	return getOne[Health](ctx, c, opHealth, "/api/health", nil)
}
