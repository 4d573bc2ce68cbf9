package query

import (
	"context"
	"sync"

	"github.com/johnqh/heavymath-indexer-client/indexer"
)

// MarketDetails combines a market with its predictions and history.
type MarketDetails struct {
	Market      Result[*indexer.Market]
	Predictions Result[*indexer.Page[indexer.Prediction]]
	History     Result[[]indexer.MarketHistory]
}

func (d MarketDetails) states() Composite {
	return Compose(d.Market, d.Predictions, d.History)
}

func (d MarketDetails) IsLoading() bool  { return d.states().IsLoading() }
func (d MarketDetails) IsError() bool    { return d.states().IsError() }
func (d MarketDetails) Errors() []error  { return d.states().Errors() }
func (d MarketDetails) IsInactive() bool { return d.Market.IsInactive() }

// FetchMarketDetails fetches the three constituents concurrently.
func FetchMarketDetails(ctx context.Context, qc *Client, api API, id string) MarketDetails {
	var d MarketDetails
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); d.Market = Fetch(ctx, qc, Market(api, id)) }()
	go func() {
		defer wg.Done()
		d.Predictions = Fetch(ctx, qc, MarketPredictions(api, id, indexer.PageParams{}))
	}()
	go func() { defer wg.Done(); d.History = Fetch(ctx, qc, MarketHistory(api, id)) }()
	wg.Wait()
	return d
}

// PeekMarketDetails reads the constituents from the cache without fetching.
func PeekMarketDetails(qc *Client, api API, id string) MarketDetails {
	return MarketDetails{
		Market:      Peek(qc, Market(api, id)),
		Predictions: Peek(qc, MarketPredictions(api, id, indexer.PageParams{})),
		History:     Peek(qc, MarketHistory(api, id)),
	}
}

// BettingHistory is a user's unclaimed and claimed predictions.
type BettingHistory struct {
	Active  Result[*indexer.Page[indexer.Prediction]]
	Claimed Result[*indexer.Page[indexer.Prediction]]
}

func (b BettingHistory) states() Composite { return Compose(b.Active, b.Claimed) }
func (b BettingHistory) IsLoading() bool   { return b.states().IsLoading() }
func (b BettingHistory) IsError() bool     { return b.states().IsError() }
func (b BettingHistory) Errors() []error   { return b.states().Errors() }

func bettingQueries(api API, user string) (active, claimed Query[*indexer.Page[indexer.Prediction]]) {
	active = Predictions(api, indexer.PredictionFilters{User: user, Claimed: indexer.Bool(false)})
	claimed = Predictions(api, indexer.PredictionFilters{User: user, Claimed: indexer.Bool(true)})
	active.Enabled = present(user)
	claimed.Enabled = present(user)
	return active, claimed
}

func FetchBettingHistory(ctx context.Context, qc *Client, api API, user string) BettingHistory {
	active, claimed := bettingQueries(api, user)
	var b BettingHistory
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); b.Active = Fetch(ctx, qc, active) }()
	go func() { defer wg.Done(); b.Claimed = Fetch(ctx, qc, claimed) }()
	wg.Wait()
	return b
}

// DealerDashboard is an owner's dealer NFTs plus the markets of each NFT.
// The markets queries depend on the NFT list and stay inactive until it
// has loaded.
type DealerDashboard struct {
	NFTs    Result[*indexer.Page[indexer.DealerNFT]]
	Markets []Result[*indexer.Page[indexer.Market]]
}

func (d DealerDashboard) states() Composite {
	c := Compose(d.NFTs)
	for _, m := range d.Markets {
		c = append(c, m)
	}
	return c
}

func (d DealerDashboard) IsLoading() bool { return d.states().IsLoading() }
func (d DealerDashboard) IsError() bool   { return d.states().IsError() }
func (d DealerDashboard) Errors() []error { return d.states().Errors() }

// AllMarkets merges the loaded market lists, keeping the first position of
// each market id and the last value seen for it.
func (d DealerDashboard) AllMarkets() []indexer.Market {
	out := []indexer.Market{}
	index := map[string]int{}
	for _, r := range d.Markets {
		if r.Data == nil {
			continue
		}
		for _, m := range r.Data.Items {
			if i, seen := index[m.ID]; seen {
				out[i] = m
				continue
			}
			index[m.ID] = len(out)
			out = append(out, m)
		}
	}
	return out
}

func FetchDealerDashboard(ctx context.Context, qc *Client, api API, owner string) DealerDashboard {
	nftQuery := Dealers(api, indexer.DealerFilters{Owner: owner})
	nftQuery.Enabled = present(owner)

	d := DealerDashboard{NFTs: Fetch(ctx, qc, nftQuery)}
	if d.NFTs.Data == nil || d.NFTs.IsError() {
		return d
	}

	nfts := d.NFTs.Data.Items
	d.Markets = make([]Result[*indexer.Page[indexer.Market]], len(nfts))
	var wg sync.WaitGroup
	for i, nft := range nfts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Markets[i] = Fetch(ctx, qc, DealerMarkets(api, nft.ID, indexer.PageParams{}))
		}()
	}
	wg.Wait()
	return d
}
