package favorites

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/johnqh/heavymath-indexer-client/indexer"
	"github.com/johnqh/heavymath-indexer-client/query"
)

var (
	// ErrNoWallet is returned by mutations issued without a connected wallet.
	ErrNoWallet = errors.New("favorites: no wallet")
	// ErrAlreadyFavorite is returned by Add when the item is already listed.
	ErrAlreadyFavorite = errors.New("favorites: already a favorite")
	// ErrPending is returned when removing a record the server has not
	// confirmed yet.
	ErrPending = errors.New("favorites: favorite not confirmed yet")
)

// API is the slice of *indexer.Client the Manager calls.
type API interface {
	query.FavoritesLister
	AddFavorite(ctx context.Context, wallet string, req indexer.AddFavoriteRequest) (*indexer.Favorite, error)
	RemoveFavorite(ctx context.Context, wallet string, id int64) error
}

var _ API = (*indexer.Client)(nil)

// Manager binds a Store to the server through the query layer. Reads come
// from the store; writes are applied locally first.
type Manager struct {
	api    API
	store  *Store
	qc     *query.Client
	maxAge time.Duration
	logger zerolog.Logger
	wg     sync.WaitGroup
}

type ManagerOption func(*Manager)

// WithMaxAge sets how old a wallet's list may get before View refreshes it.
func WithMaxAge(d time.Duration) ManagerOption {
	return func(m *Manager) { m.maxAge = d }
}

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

func NewManager(api API, store *Store, qc *query.Client, opts ...ManagerOption) *Manager {
	m := &Manager{
		api:    api,
		store:  store,
		qc:     qc,
		maxAge: DefaultMaxAge,
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) Store() *Store { return m.store }

// View returns the wallet's local favorites matching f without waiting on
// the network. A background sync starts when the list is empty or older
// than the max age.
func (m *Manager) View(ctx context.Context, wallet string, f indexer.FavoriteFilters) []indexer.Favorite {
	if normalize(wallet) == "" {
		return []indexer.Favorite{}
	}
	local := m.store.Get(wallet)
	if len(local) == 0 || m.store.NeedsRefresh(wallet, m.maxAge) {
		bg := context.WithoutCancel(ctx)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if _, err := m.fetch(bg, wallet, f, false); err != nil {
				m.logger.Warn().Err(err).Str("wallet", normalize(wallet)).Msg("favorites sync")
			}
		}()
	}
	return filter(local, f)
}

// Sync loads the wallet's favorites from the server, bypassing freshness.
func (m *Manager) Sync(ctx context.Context, wallet string, f indexer.FavoriteFilters) ([]indexer.Favorite, error) {
	if normalize(wallet) == "" {
		return nil, ErrNoWallet
	}
	return m.fetch(ctx, wallet, f, true)
}

func (m *Manager) fetch(ctx context.Context, wallet string, f indexer.FavoriteFilters, force bool) ([]indexer.Favorite, error) {
	q := query.Favorites(m.api, normalize(wallet), f)
	var res query.Result[*indexer.Page[indexer.Favorite]]
	if force {
		res = query.Refetch(ctx, m.qc, q)
	} else {
		res = query.Fetch(ctx, m.qc, q)
	}
	if res.IsError() {
		return nil, res.Err
	}
	if res.Data == nil {
		return []indexer.Favorite{}, nil
	}
	// a filtered page is a subset and must not replace the full list
	if f.IsZero() {
		m.store.Set(wallet, res.Data.Items)
	}
	return append([]indexer.Favorite{}, res.Data.Items...), nil
}

// Add lists req's item immediately under a placeholder id, then swaps in
// the server record or rolls back if the request fails.
func (m *Manager) Add(ctx context.Context, wallet string, req indexer.AddFavoriteRequest) (*indexer.Favorite, error) {
	mut := query.Mutation[indexer.AddFavoriteRequest, *indexer.Favorite, indexer.Favorite]{
		OnMutate: func(req indexer.AddFavoriteRequest) (indexer.Favorite, error) {
			if normalize(wallet) == "" {
				return indexer.Favorite{}, ErrNoWallet
			}
			if m.store.IsFavorite(wallet, req.ID) {
				return indexer.Favorite{}, ErrAlreadyFavorite
			}
			return m.store.AddOptimistic(wallet, req), nil
		},
		Fn: func(ctx context.Context, req indexer.AddFavoriteRequest) (*indexer.Favorite, error) {
			return m.api.AddFavorite(ctx, normalize(wallet), req)
		},
		OnSuccess: func(fav *indexer.Favorite, _ indexer.AddFavoriteRequest, _ indexer.Favorite) {
			if fav != nil {
				m.store.UpdateFromServer(wallet, *fav)
			}
		},
		OnError: func(err error, req indexer.AddFavoriteRequest, pending indexer.Favorite) {
			m.store.RollbackAdd(wallet, req.ID)
			m.logger.Debug().Err(err).Str("wallet", normalize(wallet)).Int64("pending", pending.ID).Msg("favorite add rolled back")
		},
		OnSettled: func(*indexer.Favorite, error, indexer.AddFavoriteRequest, indexer.Favorite) {
			m.invalidate(wallet)
		},
	}
	return mut.Run(ctx, req)
}

// Remove drops the record with id immediately and restores it at the end
// of the list if the request fails.
func (m *Manager) Remove(ctx context.Context, wallet string, id int64) error {
	if normalize(wallet) == "" {
		return ErrNoWallet
	}
	if id < 0 {
		return ErrPending
	}
	mut := query.Mutation[int64, struct{}, *indexer.Favorite]{
		OnMutate: func(id int64) (*indexer.Favorite, error) {
			snap, ok := m.store.RemoveOptimistic(wallet, id)
			if !ok {
				return nil, nil
			}
			return &snap, nil
		},
		Fn: func(ctx context.Context, id int64) (struct{}, error) {
			return struct{}{}, m.api.RemoveFavorite(ctx, normalize(wallet), id)
		},
		OnError: func(err error, id int64, snap *indexer.Favorite) {
			if snap != nil {
				m.store.RollbackRemove(wallet, *snap)
			}
			m.logger.Debug().Err(err).Str("wallet", normalize(wallet)).Int64("id", id).Msg("favorite remove rolled back")
		},
		OnSettled: func(struct{}, error, int64, *indexer.Favorite) {
			m.invalidate(wallet)
		},
	}
	_, err := mut.Run(ctx, id)
	return err
}

func (m *Manager) IsFavorite(wallet, itemID string) bool {
	return m.store.IsFavorite(wallet, itemID)
}

// Toggle removes req's item if listed and adds it otherwise. It reports
// whether the item is a favorite afterwards.
func (m *Manager) Toggle(ctx context.Context, wallet string, req indexer.AddFavoriteRequest) (bool, error) {
	if fav, ok := m.store.Find(wallet, req.ID); ok {
		if fav.Pending() {
			return true, ErrPending
		}
		if err := m.Remove(ctx, wallet, fav.ID); err != nil {
			return true, err
		}
		return false, nil
	}
	if _, err := m.Add(ctx, wallet, req); err != nil {
		return false, err
	}
	return true, nil
}

// Wait blocks until background syncs and the refetches they triggered are
// done.
func (m *Manager) Wait() {
	m.wg.Wait()
	m.qc.Wait()
}

func (m *Manager) invalidate(wallet string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.qc.Invalidate(query.WalletFavoritesKey(wallet))
	}()
}

func filter(favs []indexer.Favorite, f indexer.FavoriteFilters) []indexer.Favorite {
	out := make([]indexer.Favorite, 0, len(favs))
	for _, fav := range favs {
		if f.Category != "" && !strings.EqualFold(fav.Category, f.Category) {
			continue
		}
		if f.Subcategory != "" && !strings.EqualFold(fav.Subcategory, f.Subcategory) {
			continue
		}
		if f.Type != "" && !strings.EqualFold(fav.Type, f.Type) {
			continue
		}
		out = append(out, fav)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []indexer.Favorite{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}
