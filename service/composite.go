package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/johnqh/heavymath-indexer-client/indexer"
)

// DealerDashboard is a wallet's dealer NFTs and every market they created.
type DealerDashboard struct {
	Owner   string              `json:"owner"`
	NFTs    []indexer.DealerNFT `json:"nfts"`
	Markets []indexer.Market    `json:"markets"`
}

// BettingHistory splits a user's predictions into unclaimed and claimed.
type BettingHistory struct {
	User    string               `json:"user"`
	Active  []indexer.Prediction `json:"active"`
	Claimed []indexer.Prediction `json:"claimed"`
}

// GetDealerDashboard lists the owner's dealer NFTs, then fetches the markets
// of every NFT concurrently and merges them by market id. Constituents are
// read from the API, not the cache, so only the merged result is ever
// stored and a failure leaves the cache unchanged. Refreshing the per-NFT
// market entries does not touch the merged entry.
func (s *Service) GetDealerDashboard(ctx context.Context, owner string) (*DealerDashboard, error) {
	return cached(ctx, s, OpGetDealerDashboard, "dealer dashboard", []any{owner}, func(ctx context.Context) (*DealerDashboard, error) {
		nfts, err := s.api.ListDealers(ctx, indexer.DealerFilters{Owner: owner})
		if err != nil {
			return nil, err
		}

		perNFT := make([][]indexer.Market, len(nfts.Items))
		g, gctx := errgroup.WithContext(ctx)
		for i, nft := range nfts.Items {
			g.Go(func() error {
				page, err := s.api.GetDealerMarkets(gctx, nft.ID, indexer.PageParams{})
				if err != nil {
					return err
				}
				perNFT[i] = page.Items
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		return &DealerDashboard{
			Owner:   owner,
			NFTs:    nfts.Items,
			Markets: mergeMarkets(perNFT),
		}, nil
	})
}

// mergeMarkets concatenates the lists, keeping the first position of each
// market id and the last value seen for it.
func mergeMarkets(lists [][]indexer.Market) []indexer.Market {
	out := []indexer.Market{}
	index := map[string]int{}
	for _, list := range lists {
		for _, m := range list {
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

// GetBettingHistory fetches a user's unclaimed and claimed predictions
// concurrently and caches them as one entry.
func (s *Service) GetBettingHistory(ctx context.Context, user string) (*BettingHistory, error) {
	return cached(ctx, s, OpGetBettingHistory, "betting history", []any{user}, func(ctx context.Context) (*BettingHistory, error) {
		h := &BettingHistory{User: user}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			page, err := s.api.ListPredictions(gctx, indexer.PredictionFilters{User: user, Claimed: indexer.Bool(false)})
			if err != nil {
				return err
			}
			h.Active = page.Items
			return nil
		})
		g.Go(func() error {
			page, err := s.api.ListPredictions(gctx, indexer.PredictionFilters{User: user, Claimed: indexer.Bool(true)})
			if err != nil {
				return err
			}
			h.Claimed = page.Items
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return h, nil
	})
}
