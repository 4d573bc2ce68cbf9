package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/johnqh/heavymath-indexer-client/favorites"
	"github.com/johnqh/heavymath-indexer-client/indexer"
	"github.com/johnqh/heavymath-indexer-client/query"
)

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
}

func (a *app) markets(ctx context.Context, args []string) error {
	var f indexer.MarketFilters
	if len(args) > 0 {
		f.Status = args[0]
	}
	page, err := a.svc.ListMarkets(ctx, f)
	if err != nil {
		return err
	}
	w := a.table()
	fmt.Fprintln(w, "ID\tSTATUS\tCATEGORY\tPOOL\tTITLE")
	for _, m := range page.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Status, m.Category, m.TotalPool.String(), m.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d of %d markets\n", len(page.Items), page.Pagination.TotalCount)
	return nil
}

func (a *app) market(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: market <id>")
	}
	d := query.FetchMarketDetails(ctx, a.qc, a.api, args[0])
	if d.IsError() {
		return errors.Join(d.Errors()...)
	}
	if d.IsInactive() || d.Market.Data == nil {
		return errors.New("market id is required")
	}
	m := d.Market.Data
	fmt.Fprintf(a.out, "%s  %s\n", m.ID, m.Title)
	fmt.Fprintf(a.out, "status: %s  category: %s  pool: %s  dealer fee: %s\n",
		m.Status, m.Category, m.TotalPool.String(), m.DealerFee.String())
	if m.CloseTime > 0 {
		fmt.Fprintf(a.out, "closes: %s\n", time.Unix(m.CloseTime, 0).UTC().Format(time.RFC3339))
	}

	w := a.table()
	fmt.Fprintf(w, "\nPREDICTION\tUSER\tOUTCOME\tAMOUNT\tCLAIMED\n")
	if d.Predictions.Data != nil {
		for _, p := range d.Predictions.Data.Items {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%v\n", p.ID, p.User, p.Outcome, p.Amount.String(), p.Claimed)
		}
	}
	if len(d.History.Data) > 0 {
		fmt.Fprintf(w, "\nAT\tFROM\tTO\n")
		for _, h := range d.History.Data {
			fmt.Fprintf(w, "%s\t%s\t%s\n", h.Timestamp.UTC().Format(time.RFC3339), h.FromStatus, h.ToStatus)
		}
	}
	return w.Flush()
}

func (a *app) dashboard(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: dashboard <owner>")
	}
	d := query.FetchDealerDashboard(ctx, a.qc, a.api, args[0])
	if d.IsError() {
		return errors.Join(d.Errors()...)
	}
	if d.NFTs.Data == nil {
		return errors.New("owner is required")
	}
	w := a.table()
	fmt.Fprintln(w, "NFT\tTOKEN\tMARKETS")
	for _, n := range d.NFTs.Data.Items {
		fmt.Fprintf(w, "%s\t%s\t%d\n", n.ID, n.TokenID, n.MarketCount)
	}
	fmt.Fprintln(w, "\nMARKET\tSTATUS\tPOOL\tTITLE")
	for _, m := range d.AllMarkets() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Status, m.TotalPool.String(), m.Title)
	}
	return w.Flush()
}

func (a *app) bets(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: bets <user>")
	}
	h := query.FetchBettingHistory(ctx, a.qc, a.api, args[0])
	if h.IsError() {
		return errors.Join(h.Errors()...)
	}
	if h.Active.Data == nil || h.Claimed.Data == nil {
		return errors.New("user is required")
	}
	w := a.table()
	fmt.Fprintln(w, "PREDICTION\tMARKET\tOUTCOME\tAMOUNT\tSTATE")
	for _, p := range h.Active.Data.Items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\tactive\n", p.ID, p.MarketID, p.Outcome, p.Amount.String())
	}
	for _, p := range h.Claimed.Data.Items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\tclaimed\n", p.ID, p.MarketID, p.Outcome, p.Amount.String())
	}
	return w.Flush()
}

func (a *app) favorites(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: favorites <wallet> [add <category> <type> <id> [subcategory] | remove <id>]")
	}
	store, err := a.favoritesStore(ctx)
	if err != nil {
		return err
	}
	m := favorites.NewManager(a.api, store, a.qc, favorites.WithLogger(a.log))
	defer m.Wait()

	wallet, rest := args[0], args[1:]
	if len(rest) == 0 {
		favs, err := m.Sync(ctx, wallet, indexer.FavoriteFilters{})
		if err != nil {
			a.log.Warn().Err(err).Str("wallet", wallet).Msg("showing local favorites")
			favs = m.View(ctx, wallet, indexer.FavoriteFilters{})
		}
		w := a.table()
		fmt.Fprintln(w, "ID\tCATEGORY\tSUBCATEGORY\tTYPE\tITEM")
		for _, f := range favs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", f.ID, f.Category, f.Subcategory, f.Type, f.ItemID)
		}
		return w.Flush()
	}

	switch rest[0] {
	case "add":
		if len(rest) < 4 {
			return errors.New("usage: favorites <wallet> add <category> <type> <id> [subcategory]")
		}
		req := indexer.AddFavoriteRequest{Category: rest[1], Type: rest[2], ID: rest[3]}
		if len(rest) > 4 {
			req.Subcategory = rest[4]
		}
		fav, err := m.Add(ctx, wallet, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "added favorite %d (%s %s)\n", fav.ID, fav.Type, fav.ItemID)
		return nil
	case "remove":
		if len(rest) < 2 {
			return errors.New("usage: favorites <wallet> remove <id>")
		}
		id, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid favorite id %q: %w", rest[1], err)
		}
		if err := m.Remove(ctx, wallet, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "removed favorite %d\n", id)
		return nil
	default:
		return fmt.Errorf("unknown favorites command: %s", rest[0])
	}
}

func (a *app) stats(ctx context.Context) error {
	st, err := a.svc.GetMarketStats(ctx)
	if err != nil {
		return err
	}
	w := a.table()
	fmt.Fprintf(w, "markets\t%d\n", st.TotalMarkets)
	fmt.Fprintf(w, "active\t%d\n", st.ActiveMarkets)
	fmt.Fprintf(w, "resolved\t%d\n", st.ResolvedMarkets)
	fmt.Fprintf(w, "cancelled\t%d\n", st.CancelledMarkets)
	fmt.Fprintf(w, "predictions\t%d\n", st.TotalPredictions)
	fmt.Fprintf(w, "volume\t%s\n", st.TotalVolume.String())
	fmt.Fprintf(w, "users\t%d\n", st.UniqueUsers)
	return w.Flush()
}

func (a *app) health(ctx context.Context) error {
	h, err := a.svc.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "status: %s\n", h.Status)
	if h.Database != "" {
		fmt.Fprintf(a.out, "database: %s\n", h.Database)
	}
	if h.Version != "" {
		fmt.Fprintf(a.out, "version: %s\n", h.Version)
	}
	if h.LastBlock > 0 {
		fmt.Fprintf(a.out, "last block: %d\n", h.LastBlock)
	}
	return nil
}
