package indexer_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnqh/heavymath-indexer-client/indexer"
	"github.com/johnqh/heavymath-indexer-client/internal/indexertest"
)

func newClient(t *testing.T, srv *indexertest.Server, opts ...indexer.Option) *indexer.Client {
	t.Helper()
	c, err := indexer.New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func market(id, dealer, status string) indexer.Market {
	return indexer.Market{
		ID:        id,
		ChainID:   1,
		Dealer:    dealer,
		Category:  "sports",
		Title:     "Market " + id,
		Status:    status,
		TotalPool: decimal.RequireFromString("12.5"),
	}
}

func TestListMarkets_FiltersAndPagination(t *testing.T) {
	srv := indexertest.New(t)
	srv.AddMarkets(
		market("1-market-1", "0xabc", indexer.MarketStatusActive),
		market("1-market-2", "0xabc", indexer.MarketStatusActive),
		market("1-market-3", "0xdef", indexer.MarketStatusResolved),
	)
	c := newClient(t, srv)

	page, err := c.ListMarkets(context.Background(), indexer.MarketFilters{Status: "active", Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "1-market-1", page.Items[0].ID)
	assert.True(t, decimal.RequireFromString("12.5").Equal(page.Items[0].TotalPool))
	assert.Equal(t, 2, page.Pagination.TotalCount)
	assert.True(t, page.Pagination.HasNextPage)
	assert.False(t, page.Pagination.HasPreviousPage)

	q := srv.LastQuery("GET /api/markets")
	assert.Equal(t, "active", q.Get("status"))
	assert.Equal(t, "1", q.Get("limit"))
	assert.False(t, q.Has("dealer"), "empty filters must not be sent")
	assert.False(t, q.Has("offset"), "zero offset is omitted")
}

func TestListMarkets_EmptyList(t *testing.T) {
	srv := indexertest.New(t)
	c := newClient(t, srv)

	page, err := c.ListMarkets(context.Background(), indexer.MarketFilters{})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Pagination.TotalCount)
}

func TestGetMarket(t *testing.T) {
	srv := indexertest.New(t)
	srv.AddMarkets(market("1-market-7", "0xabc", indexer.MarketStatusActive))
	c := newClient(t, srv)

	m, err := c.GetMarket(context.Background(), "1-market-7")
	require.NoError(t, err)
	assert.Equal(t, "Market 1-market-7", m.Title)

	_, err = c.GetMarket(context.Background(), "1-market-404")
	require.Error(t, err)
	assert.True(t, indexer.IsNotFound(err))
	var apiErr *indexer.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "market not found", apiErr.Message)
}

func TestRequiredArgumentsNeverHitTheNetwork(t *testing.T) {
	srv := indexertest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["GetMarket"] = c.GetMarket(ctx, "")
	_, checks["GetMarketPredictions"] = c.GetMarketPredictions(ctx, " ", indexer.PageParams{})
	_, checks["GetDealerMarkets"] = c.GetDealerMarkets(ctx, "", indexer.PageParams{})
	_, checks["ListFavorites"] = c.ListFavorites(ctx, "", indexer.FavoriteFilters{})
	_, checks["AddFavorite"] = c.AddFavorite(ctx, "0xabc", indexer.AddFavoriteRequest{Category: "sports"})
	checks["RemoveFavorite"] = c.RemoveFavorite(ctx, "0xabc", -3)

	for name, err := range checks {
		var verr *indexer.ValidationError
		assert.ErrorAs(t, err, &verr, name)
	}
	assert.Equal(t, 0, srv.TotalHits())
}

func TestErrorMessagePrecedence(t *testing.T) {
	srv := indexertest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()

	// body error wins
	srv.Fail("GET /api/stats/markets", http.StatusInternalServerError, "database unavailable")
	_, err := c.GetMarketStats(ctx)
	var apiErr *indexer.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "database unavailable", apiErr.Message)

	// then the status text
	srv.FailRaw("GET /api/health", http.StatusBadGateway, "upstream down")
	_, err = c.Health(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Bad Gateway", apiErr.Message)
	assert.Equal(t, http.StatusBadGateway, indexer.StatusCode(err))
}

func TestSuccessFalseEnvelope(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false}`))
	})
	ts := httptest.NewServer(h)
	defer ts.Close()

	c, err := indexer.New(ts.URL)
	require.NoError(t, err)

	_, err = c.GetDealer(context.Background(), "1-dealer-1")
	var apiErr *indexer.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "failed to fetch dealer", apiErr.Message)
	assert.Equal(t, http.StatusOK, apiErr.Status)
}

func TestNullDataIsAnAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":null}`))
	}))
	defer ts.Close()

	c, err := indexer.New(ts.URL)
	require.NoError(t, err)
	ctx := context.Background()

	m, err := c.GetMarket(ctx, "1-market-1")
	assert.Nil(t, m)
	var apiErr *indexer.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "empty data", apiErr.Message)
	assert.Equal(t, http.StatusOK, apiErr.Status)

	fav, err := c.AddFavorite(ctx, "0xabc", indexer.AddFavoriteRequest{Category: "sports", Type: "team", ID: "team-1"})
	assert.Nil(t, fav)
	require.ErrorAs(t, err, &apiErr)

	// lists treat null as empty
	history, err := c.GetMarketHistory(ctx, "1-market-1")
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestTransportFailure(t *testing.T) {
	c, err := indexer.New("http://127.0.0.1:1", indexer.WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, indexer.ErrRequestFailed))
	assert.Equal(t, 0, indexer.StatusCode(err))
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	srv := indexertest.New(t)
	srv.SetLatency(200 * time.Millisecond)
	c := newClient(t, srv, indexer.WithTimeout(20*time.Millisecond))

	_, err := c.GetMarketStats(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, indexer.ErrRequestFailed)
}

func TestPathSegmentsAreEscaped(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer ts.Close()

	c, err := indexer.New(ts.URL + "/base/")
	require.NoError(t, err)
	_, err = c.GetMarketHistory(context.Background(), "a/b c")
	require.NoError(t, err)
	assert.Equal(t, "/base/api/markets/a%2Fb%20c/history", gotPath)
}

func TestDotSegmentsStayInPlace(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"x"}}`))
	}))
	defer ts.Close()

	c, err := indexer.New(ts.URL)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.GetMarket(ctx, "..")
	require.NoError(t, err)
	assert.Equal(t, "/api/markets/%2E%2E", gotPath)

	_, err = c.GetDealer(ctx, ".")
	require.NoError(t, err)
	assert.Equal(t, "/api/dealers/%2E", gotPath)

	require.NoError(t, c.RemoveFavorite(ctx, "..", 5))
	assert.Equal(t, "/api/wallet/%2E%2E/favorites/5", gotPath)
}

func TestBearerTokenAndRequestID(t *testing.T) {
	var auth, reqID string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		reqID = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`{"success":true,"data":{"status":"ok"}}`))
	}))
	defer ts.Close()

	c, err := indexer.New(ts.URL, indexer.WithBearerToken("s3cret"))
	require.NoError(t, err)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "Bearer s3cret", auth)
	assert.NotEmpty(t, reqID)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost", "://x"} {
		_, err := indexer.New(raw)
		assert.Error(t, err, raw)
	}
}

func TestPredictionsAndDealerEndpoints(t *testing.T) {
	srv := indexertest.New(t)
	srv.AddMarkets(market("1-market-1", "0xabc", indexer.MarketStatusActive), market("1-market-2", "0xabc", indexer.MarketStatusActive))
	srv.AddPredictions(
		indexer.Prediction{ID: "p1", MarketID: "1-market-1", User: "0xu", Amount: decimal.NewFromInt(3)},
		indexer.Prediction{ID: "p2", MarketID: "1-market-2", User: "0xu", Claimed: true},
		indexer.Prediction{ID: "p3", MarketID: "1-market-1", User: "0xv"},
	)
	srv.AddDealer(indexer.DealerNFT{ID: "1-dealer-1", Owner: "0xabc"}, "1-market-2")
	srv.AddPermissions("1-dealer-1", indexer.DealerPermission{ID: "perm", Category: "sports", Granted: true})
	c := newClient(t, srv)
	ctx := context.Background()

	preds, err := c.GetMarketPredictions(ctx, "1-market-1", indexer.PageParams{})
	require.NoError(t, err)
	assert.Len(t, preds.Items, 2)

	claimed, err := c.ListPredictions(ctx, indexer.PredictionFilters{User: "0xu", Claimed: indexer.Bool(false)})
	require.NoError(t, err)
	require.Len(t, claimed.Items, 1)
	assert.Equal(t, "p1", claimed.Items[0].ID)
	assert.Equal(t, "false", srv.LastQuery("GET /api/predictions").Get("claimed"))

	p, err := c.GetPrediction(ctx, "p2")
	require.NoError(t, err)
	assert.True(t, p.Claimed)

	dealers, err := c.ListDealers(ctx, indexer.DealerFilters{Owner: "0xABC"})
	require.NoError(t, err)
	require.Len(t, dealers.Items, 1)

	perms, err := c.GetDealerPermissions(ctx, "1-dealer-1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.True(t, perms[0].Granted)

	dm, err := c.GetDealerMarkets(ctx, "1-dealer-1", indexer.PageParams{Limit: 5})
	require.NoError(t, err)
	require.Len(t, dm.Items, 1)
	assert.Equal(t, "1-market-2", dm.Items[0].ID)
}

func TestWithdrawalsAndOracle(t *testing.T) {
	srv := indexertest.New(t)
	srv.AddWithdrawals(
		indexer.Withdrawal{ID: "w1", Withdrawer: "0xabc", Type: "fees"},
		indexer.Withdrawal{ID: "w2", Withdrawer: "0xdef", Type: "winnings"},
	)
	srv.AddOracleRequests(
		indexer.OracleRequest{ID: "o1", MarketID: "1-market-1", TimedOut: true},
		indexer.OracleRequest{ID: "o2", MarketID: "1-market-1"},
	)
	c := newClient(t, srv)
	ctx := context.Background()

	ws, err := c.ListWithdrawals(ctx, indexer.WithdrawalFilters{Type: "fees"})
	require.NoError(t, err)
	require.Len(t, ws.Items, 1)
	assert.Equal(t, "w1", ws.Items[0].ID)

	reqs, err := c.ListOracleRequests(ctx, indexer.OracleFilters{TimedOut: indexer.Bool(true)})
	require.NoError(t, err)
	require.Len(t, reqs.Items, 1)

	o, err := c.GetOracleRequest(ctx, "o2")
	require.NoError(t, err)
	assert.False(t, o.TimedOut)
}

func TestFavoritesRoundTrip(t *testing.T) {
	srv := indexertest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()
	wallet := "0xWallet"

	fav, err := c.AddFavorite(ctx, wallet, indexer.AddFavoriteRequest{Category: "sports", Type: "market", ID: "1-market-1"})
	require.NoError(t, err)
	assert.False(t, fav.Pending())
	assert.Equal(t, "1-market-1", fav.ItemID)

	list, err := c.ListFavorites(ctx, wallet, indexer.FavoriteFilters{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)

	_, err = c.AddFavorite(ctx, wallet, indexer.AddFavoriteRequest{Category: "sports", Type: "market", ID: "1-market-1"})
	assert.Equal(t, http.StatusConflict, indexer.StatusCode(err))

	require.NoError(t, c.RemoveFavorite(ctx, wallet, fav.ID))
	assert.Empty(t, srv.Favorites(wallet))

	err = c.RemoveFavorite(ctx, wallet, fav.ID)
	assert.True(t, indexer.IsNotFound(err))
}
