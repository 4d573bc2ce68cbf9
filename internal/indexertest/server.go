// Package indexertest runs an in-process fake of the indexer REST API and
// its event stream for tests.
package indexertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/johnqh/heavymath-indexer-client/indexer"
)

type failure struct {
	status int
	msg    string
	raw    bool // respond with a non-JSON body
}

// Server is a fake indexer. Seed it with the Add* methods; every request is
// counted per URL path.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	markets       []indexer.Market
	predictions   []indexer.Prediction
	history       map[string][]indexer.MarketHistory
	dealers       []indexer.DealerNFT
	dealerMarkets map[string][]string
	permissions   map[string][]indexer.DealerPermission
	withdrawals   []indexer.Withdrawal
	oracle        []indexer.OracleRequest
	favorites     map[string][]indexer.Favorite
	stats         indexer.MarketStats
	nextFavID     int64

	failures  map[string]failure
	hits      map[string]int
	queries   map[string]url.Values
	latency   time.Duration
	streams   map[int]chan string
	streamSeq int
	streamQs  []url.Values
}

// New starts a fake indexer that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		history:       map[string][]indexer.MarketHistory{},
		dealerMarkets: map[string][]string{},
		permissions:   map[string][]indexer.DealerPermission{},
		favorites:     map[string][]indexer.Favorite{},
		failures:      map[string]failure{},
		hits:          map[string]int{},
		queries:       map[string]url.Values{},
		streams:       map[int]chan string{},
		nextFavID:     1,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(func() {
		s.DropStreams()
		s.Close()
	})
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.track)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats/markets", s.handleStats)

		r.Get("/markets", s.handleListMarkets)
		r.Get("/markets/{id}", s.handleGetMarket)
		r.Get("/markets/{id}/predictions", s.handleMarketPredictions)
		r.Get("/markets/{id}/history", s.handleMarketHistory)

		r.Get("/predictions", s.handleListPredictions)
		r.Get("/predictions/{id}", s.handleGetPrediction)

		r.Get("/dealers", s.handleListDealers)
		r.Get("/dealers/{id}", s.handleGetDealer)
		r.Get("/dealers/{id}/permissions", s.handleDealerPermissions)
		r.Get("/dealers/{id}/markets", s.handleDealerMarkets)

		r.Get("/withdrawals", s.handleListWithdrawals)
		r.Get("/oracle/requests", s.handleListOracle)
		r.Get("/oracle/requests/{id}", s.handleGetOracle)

		r.Get("/wallet/{address}/favorites", s.handleListFavorites)
		r.Post("/wallet/{address}/favorites", s.handleAddFavorite)
		r.Delete("/wallet/{address}/favorites/{id}", s.handleRemoveFavorite)

		r.Get("/events", s.handleEvents)
	})
	return r
}

// track counts hits and applies injected failures and latency.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		key := r.Method + " " + r.URL.EscapedPath()
		s.hits[key]++
		s.queries[key] = r.URL.Query()
		f, failing := s.failures[key]
		latency := s.latency
		s.mu.Unlock()

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			if f.raw {
				http.Error(w, f.msg, f.status)
				return
			}
			writeJSON(w, f.status, map[string]any{"success": false, "error": f.msg})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Fail makes "METHOD /escaped/path" respond with status and an error envelope.
func (s *Server) Fail(route string, status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, msg: msg}
}

// FailRaw is Fail with a plain-text body instead of an envelope.
func (s *Server) FailRaw(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, msg: body, raw: true}
}

// Recover clears an injected failure.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// SetLatency delays every response.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Hits returns how many requests reached "METHOD /escaped/path".
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// TotalHits returns the number of requests served, streams excluded.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.hits {
		if k != "GET /api/events" {
			n += v
		}
	}
	return n
}

// LastQuery returns the query string of the latest request to route.
func (s *Server) LastQuery(route string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[route]
}

func (s *Server) AddMarkets(ms ...indexer.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets = upsert(s.markets, ms, func(m indexer.Market) string { return m.ID })
}

func (s *Server) AddPredictions(ps ...indexer.Prediction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = upsert(s.predictions, ps, func(p indexer.Prediction) string { return p.ID })
}

func (s *Server) AddHistory(marketID string, hs ...indexer.MarketHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[marketID] = append(s.history[marketID], hs...)
}

// AddDealer registers a dealer NFT and the ids of the markets it created.
func (s *Server) AddDealer(d indexer.DealerNFT, marketIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dealers = upsert(s.dealers, []indexer.DealerNFT{d}, func(d indexer.DealerNFT) string { return d.ID })
	s.dealerMarkets[d.ID] = append([]string(nil), marketIDs...)
}

func (s *Server) AddPermissions(dealerID string, ps ...indexer.DealerPermission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[dealerID] = append(s.permissions[dealerID], ps...)
}

func (s *Server) AddWithdrawals(ws ...indexer.Withdrawal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawals = append(s.withdrawals, ws...)
}

func (s *Server) AddOracleRequests(os ...indexer.OracleRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oracle = append(s.oracle, os...)
}

func (s *Server) SetStats(st indexer.MarketStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = st
}

// Favorites returns the server-side favorites of a wallet.
func (s *Server) Favorites(wallet string) []indexer.Favorite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]indexer.Favorite(nil), s.favorites[strings.ToLower(wallet)]...)
}

// AddFavorites seeds server-side favorites; ids are assigned when zero.
func (s *Server) AddFavorites(wallet string, fs ...indexer.Favorite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := strings.ToLower(wallet)
	for _, f := range fs {
		if f.ID == 0 {
			f.ID = s.nextFavID
			s.nextFavID++
		}
		f.WalletAddress = w
		s.favorites[w] = append(s.favorites[w], f)
	}
}

func upsert[T any](list, items []T, id func(T) string) []T {
	for _, it := range items {
		replaced := false
		for i := range list {
			if id(list[i]) == id(it) {
				list[i] = it
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, it)
		}
	}
	return list
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": what + " not found"})
}

// paginate applies limit/offset and writes a paginated envelope.
func paginate[T any](w http.ResponseWriter, r *http.Request, items []T) {
	total := len(items)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := append([]T{}, items[offset:end]...)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    page,
		"pagination": indexer.Pagination{
			TotalCount:      total,
			PageSize:        limit,
			HasNextPage:     end < total,
			HasPreviousPage: offset > 0,
		},
	})
}

func match(want, got string) bool {
	return want == "" || strings.EqualFold(want, got)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok(w, indexer.Health{Status: "ok", Database: "connected", Version: "test", Timestamp: time.Now().UTC()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok(w, s.stats)
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	var out []indexer.Market
	for _, m := range s.markets {
		if match(q.Get("status"), m.Status) && match(q.Get("dealer"), m.Dealer) && match(q.Get("category"), m.Category) {
			out = append(out, m)
		}
	}
	s.mu.Unlock()
	paginate(w, r, out)
}

func (s *Server) findMarket(id string) (indexer.Market, bool) {
	for _, m := range s.markets {
		if m.ID == id {
			return m, true
		}
	}
	return indexer.Market{}, false
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m, found := s.findMarket(chi.URLParam(r, "id"))
	s.mu.Unlock()
	if !found {
		notFound(w, "market")
		return
	}
	ok(w, m)
}

func (s *Server) handleMarketPredictions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	var out []indexer.Prediction
	for _, p := range s.predictions {
		if p.MarketID == id {
			out = append(out, p)
		}
	}
	s.mu.Unlock()
	paginate(w, r, out)
}

func (s *Server) handleMarketHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	h := append([]indexer.MarketHistory{}, s.history[chi.URLParam(r, "id")]...)
	s.mu.Unlock()
	ok(w, h)
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	var out []indexer.Prediction
	for _, p := range s.predictions {
		if !match(q.Get("user"), p.User) || !match(q.Get("market"), p.MarketID) {
			continue
		}
		if c := q.Get("claimed"); c != "" && c != strconv.FormatBool(p.Claimed) {
			continue
		}
		out = append(out, p)
	}
	s.mu.Unlock()
	paginate(w, r, out)
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.predictions {
		if p.ID == id {
			ok(w, p)
			return
		}
	}
	notFound(w, "prediction")
}

func (s *Server) handleListDealers(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	s.mu.Lock()
	var out []indexer.DealerNFT
	for _, d := range s.dealers {
		if match(owner, d.Owner) {
			out = append(out, d)
		}
	}
	s.mu.Unlock()
	paginate(w, r, out)
}

func (s *Server) handleGetDealer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dealers {
		if d.ID == id {
			ok(w, d)
			return
		}
	}
	notFound(w, "dealer")
}

func (s *Server) handleDealerPermissions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ps := append([]indexer.DealerPermission{}, s.permissions[chi.URLParam(r, "id")]...)
	s.mu.Unlock()
	ok(w, ps)
}

func (s *Server) handleDealerMarkets(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var out []indexer.Market
	for _, id := range s.dealerMarkets[chi.URLParam(r, "id")] {
		if m, found := s.findMarket(id); found {
			out = append(out, m)
		}
	}
	s.mu.Unlock()
	paginate(w, r, out)
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	var out []indexer.Withdrawal
	for _, wd := range s.withdrawals {
		if match(q.Get("withdrawer"), wd.Withdrawer) && match(q.Get("type"), wd.Type) && match(q.Get("market"), wd.MarketID) {
			out = append(out, wd)
		}
	}
	s.mu.Unlock()
	paginate(w, r, out)
}

func (s *Server) handleListOracle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	var out []indexer.OracleRequest
	for _, o := range s.oracle {
		if !match(q.Get("market"), o.MarketID) {
			continue
		}
		if to := q.Get("timedOut"); to != "" && to != strconv.FormatBool(o.TimedOut) {
			continue
		}
		out = append(out, o)
	}
	s.mu.Unlock()
	paginate(w, r, out)
}

func (s *Server) handleGetOracle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.oracle {
		if o.ID == id {
			ok(w, o)
			return
		}
	}
	notFound(w, "oracle request")
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wallet := strings.ToLower(chi.URLParam(r, "address"))
	s.mu.Lock()
	var out []indexer.Favorite
	for _, f := range s.favorites[wallet] {
		if match(q.Get("category"), f.Category) && match(q.Get("subcategory"), f.Subcategory) && match(q.Get("type"), f.Type) {
			out = append(out, f)
		}
	}
	s.mu.Unlock()
	paginate(w, r, out)
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var req indexer.AddFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid favorite"})
		return
	}
	wallet := strings.ToLower(chi.URLParam(r, "address"))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.favorites[wallet] {
		if f.ItemID == req.ID {
			writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": "already a favorite"})
			return
		}
	}
	f := indexer.Favorite{
		ID:            s.nextFavID,
		WalletAddress: wallet,
		Category:      req.Category,
		Subcategory:   req.Subcategory,
		Type:          req.Type,
		ItemID:        req.ID,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	s.nextFavID++
	s.favorites[wallet] = append(s.favorites[wallet], f)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": f})
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	wallet := strings.ToLower(chi.URLParam(r, "address"))
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid id"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.favorites[wallet]
	for i, f := range list {
		if f.ID == id {
			s.favorites[wallet] = append(list[:i:i], list[i+1:]...)
			ok(w, map[string]any{"removed": id})
			return
		}
	}
	notFound(w, "favorite")
}

// handleEvents serves the SSE channel: an initial connected message, then
// whatever Publish sends.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan string, 64)
	s.mu.Lock()
	s.streamSeq++
	id := s.streamSeq
	s.streams[id] = ch
	s.streamQs = append(s.streamQs, r.URL.Query())
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.streams, id)
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = "all"
	}
	hello, _ := json.Marshal(map[string]any{
		"type":           "connected",
		"clientId":       uuid.NewString(),
		"subscriptionId": uuid.NewString(),
		"channel":        channel,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
	fmt.Fprintf(w, "data: %s\n\n", hello)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Publish sends one raw data payload to every open stream.
func (s *Server) Publish(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.streams {
		ch <- data
	}
}

// PublishUpdate sends a data_update message.
func (s *Server) PublishUpdate(eventType string, data any) {
	raw, _ := json.Marshal(map[string]any{
		"type":           "data_update",
		"subscriptionId": "sub",
		"eventType":      eventType,
		"data":           data,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
	s.Publish(string(raw))
}

// DropStreams ends every open stream from the server side.
func (s *Server) DropStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.streams {
		close(ch)
		delete(s.streams, id)
	}
}

// OpenStreams returns the number of connected stream clients.
func (s *Server) OpenStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// StreamQueries returns the query strings of every stream request so far.
func (s *Server) StreamQueries() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.streamQs...)
}
