// Package favorites keeps each wallet's favorites locally so reads never
// wait on the network. Adds and removes apply optimistically and are either
// confirmed from the server response or rolled back.
package favorites

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/johnqh/heavymath-indexer-client/indexer"
)

// DefaultMaxAge is how old a wallet's list may get before NeedsRefresh.
const DefaultMaxAge = 5 * time.Minute

// WalletState is one wallet's list and when it was last loaded from the
// server.
type WalletState struct {
	Favorites   []indexer.Favorite `json:"favorites"`
	LastFetched *time.Time         `json:"lastFetched,omitempty"`
}

// Store holds the per-wallet lists, keyed by lower-cased address. Mutations
// are applied in call order; it does not reorder or coalesce concurrent
// optimistic mutations on the same item.
type Store struct {
	mu          sync.Mutex
	saveMu      sync.Mutex // orders snapshots written to persistence
	wallets     map[string]*WalletState
	lastPending int64
	now         func() time.Time
	persist     Persistence
	logger      zerolog.Logger
}

type StoreOption func(*Store)

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithPersistence sets where the store is saved after each change
// (default MemoryPersistence).
func WithPersistence(p Persistence) StoreOption {
	return func(s *Store) { s.persist = p }
}

func WithStoreLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		wallets: map[string]*WalletState{},
		now:     time.Now,
		persist: MemoryPersistence{},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func normalize(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// Load replaces the in-memory state with what the persistence holds.
func (s *Store) Load(ctx context.Context) error {
	state, err := s.persist.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = map[string]*WalletState{}
	for w, ws := range state {
		ws := ws
		s.wallets[normalize(w)] = &ws
	}
	return nil
}

// save persists a copy of the state. Failures are logged, never returned:
// the in-memory state stays authoritative.
func (s *Store) save() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if err := s.persist.Save(context.Background(), snap); err != nil {
		s.logger.Warn().Err(err).Msg("persist favorites")
	}
}

func (s *Store) snapshotLocked() map[string]WalletState {
	out := make(map[string]WalletState, len(s.wallets))
	for w, ws := range s.wallets {
		out[w] = WalletState{
			Favorites:   append([]indexer.Favorite(nil), ws.Favorites...),
			LastFetched: ws.LastFetched,
		}
	}
	return out
}

func (s *Store) walletLocked(wallet string) *WalletState {
	w := normalize(wallet)
	ws, ok := s.wallets[w]
	if !ok {
		ws = &WalletState{}
		s.wallets[w] = ws
	}
	return ws
}

// Get returns a copy of the wallet's favorites.
func (s *Store) Get(wallet string) []indexer.Favorite {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.wallets[normalize(wallet)]
	if !ok {
		return []indexer.Favorite{}
	}
	return append([]indexer.Favorite{}, ws.Favorites...)
}

// Set overwrites the wallet's list with server truth and stamps lastFetched.
func (s *Store) Set(wallet string, favs []indexer.Favorite) {
	s.mu.Lock()
	ws := s.walletLocked(wallet)
	ws.Favorites = append([]indexer.Favorite{}, favs...)
	now := s.now()
	ws.LastFetched = &now
	s.mu.Unlock()
	s.save()
}

// LastFetched reports when the wallet was last loaded from the server.
func (s *Store) LastFetched(wallet string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.wallets[normalize(wallet)]
	if !ok || ws.LastFetched == nil {
		return time.Time{}, false
	}
	return *ws.LastFetched, true
}

// NeedsRefresh is true if the wallet was never fetched or its list is older
// than maxAge (DefaultMaxAge when maxAge <= 0).
func (s *Store) NeedsRefresh(wallet string, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	last, ok := s.LastFetched(wallet)
	if !ok {
		return true
	}
	return s.now().Sub(last) > maxAge
}

// placeholderIDLocked returns a negative id below every id handed out so
// far. It follows the clock but never repeats.
func (s *Store) placeholderIDLocked() int64 {
	id := -s.now().UnixNano()
	if id >= s.lastPending {
		id = s.lastPending - 1
	}
	s.lastPending = id
	return id
}

// AddOptimistic appends a pending record for req and returns it.
func (s *Store) AddOptimistic(wallet string, req indexer.AddFavoriteRequest) indexer.Favorite {
	s.mu.Lock()
	fav := indexer.Favorite{
		ID:            s.placeholderIDLocked(),
		WalletAddress: normalize(wallet),
		Category:      req.Category,
		Subcategory:   req.Subcategory,
		Type:          req.Type,
		ItemID:        req.ID,
		CreatedAt:     s.now().UTC(),
	}
	ws := s.walletLocked(wallet)
	ws.Favorites = append(ws.Favorites, fav)
	s.mu.Unlock()
	s.save()
	return fav
}

// UpdateFromServer swaps the pending record for confirmed.ItemID with the
// confirmed record, keeping its position. Without a pending match the
// record is appended unless its id is already present.
func (s *Store) UpdateFromServer(wallet string, confirmed indexer.Favorite) {
	s.mu.Lock()
	ws := s.walletLocked(wallet)
	replaced := false
	for i, f := range ws.Favorites {
		if f.Pending() && f.ItemID == confirmed.ItemID {
			ws.Favorites[i] = confirmed
			replaced = true
			break
		}
	}
	if !replaced && indexOf(ws.Favorites, confirmed.ID) < 0 {
		ws.Favorites = append(ws.Favorites, confirmed)
	}
	s.mu.Unlock()
	s.save()
}

// RemoveOptimistic drops the record with id and returns it as the snapshot
// for RollbackRemove.
func (s *Store) RemoveOptimistic(wallet string, id int64) (indexer.Favorite, bool) {
	s.mu.Lock()
	ws := s.walletLocked(wallet)
	i := indexOf(ws.Favorites, id)
	if i < 0 {
		s.mu.Unlock()
		return indexer.Favorite{}, false
	}
	removed := ws.Favorites[i]
	ws.Favorites = append(ws.Favorites[:i:i], ws.Favorites[i+1:]...)
	s.mu.Unlock()
	s.save()
	return removed, true
}

// RollbackAdd drops every record for itemID, pending or confirmed.
func (s *Store) RollbackAdd(wallet, itemID string) int {
	s.mu.Lock()
	ws := s.walletLocked(wallet)
	kept := ws.Favorites[:0:0]
	for _, f := range ws.Favorites {
		if f.ItemID != itemID {
			kept = append(kept, f)
		}
	}
	n := len(ws.Favorites) - len(kept)
	ws.Favorites = kept
	s.mu.Unlock()
	if n > 0 {
		s.save()
	}
	return n
}

// RollbackRemove re-appends a removed record at the end of the list; the
// original position is not restored.
func (s *Store) RollbackRemove(wallet string, snapshot indexer.Favorite) {
	s.mu.Lock()
	ws := s.walletLocked(wallet)
	if indexOf(ws.Favorites, snapshot.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	ws.Favorites = append(ws.Favorites, snapshot)
	s.mu.Unlock()
	s.save()
}

// Find returns the wallet's record for itemID.
func (s *Store) Find(wallet, itemID string) (indexer.Favorite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.wallets[normalize(wallet)]
	if !ok {
		return indexer.Favorite{}, false
	}
	for _, f := range ws.Favorites {
		if f.ItemID == itemID {
			return f, true
		}
	}
	return indexer.Favorite{}, false
}

func (s *Store) IsFavorite(wallet, itemID string) bool {
	_, ok := s.Find(wallet, itemID)
	return ok
}

// ClearWallet forgets one wallet, including its lastFetched stamp.
func (s *Store) ClearWallet(wallet string) {
	s.mu.Lock()
	delete(s.wallets, normalize(wallet))
	s.mu.Unlock()
	s.save()
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.wallets = map[string]*WalletState{}
	s.mu.Unlock()
	s.save()
}

func indexOf(favs []indexer.Favorite, id int64) int {
	for i, f := range favs {
		if f.ID == id {
			return i
		}
	}
	return -1
}
