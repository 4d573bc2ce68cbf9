package indexer

import (
	"net/url"
	"strconv"
)

// Zero values mean "absent": the parameter is left out of the request.
// An Offset of 0 is therefore indistinguishable from the server default.

// PageParams limits list endpoints that take no other filters.
type PageParams struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// MarketFilters narrows GET /api/markets.
type MarketFilters struct {
	Status   string `json:"status,omitempty"`
	Dealer   string `json:"dealer,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// PredictionFilters narrows GET /api/predictions.
type PredictionFilters struct {
	User    string `json:"user,omitempty"`
	Market  string `json:"market,omitempty"`
	Claimed *bool  `json:"claimed,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// DealerFilters narrows GET /api/dealers.
type DealerFilters struct {
	Owner  string `json:"owner,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// WithdrawalFilters narrows GET /api/withdrawals.
type WithdrawalFilters struct {
	Withdrawer string `json:"withdrawer,omitempty"`
	Type       string `json:"type,omitempty"`
	Market     string `json:"market,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// OracleFilters narrows GET /api/oracle/requests.
type OracleFilters struct {
	Market   string `json:"market,omitempty"`
	TimedOut *bool  `json:"timedOut,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// FavoriteFilters narrows GET /api/wallet/:address/favorites.
type FavoriteFilters struct {
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Type        string `json:"type,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// IsZero reports whether no filter is set, i.e. the query asks for the
// wallet's full favorites list.
func (f FavoriteFilters) IsZero() bool {
	return f == FavoriteFilters{}
}

// Bool returns a pointer to b, for the tri-state filters.
func Bool(b bool) *bool {
	return &b
}

type params url.Values

func (p params) str(k, v string) {
	if v != "" {
		url.Values(p).Set(k, v)
	}
}

func (p params) num(k string, v int) {
	if v > 0 {
		url.Values(p).Set(k, strconv.Itoa(v))
	}
}

func (p params) flag(k string, v *bool) {
	if v != nil {
		url.Values(p).Set(k, strconv.FormatBool(*v))
	}
}

func (f PageParams) values() url.Values {
	p := params{}
	p.num("limit", f.Limit)
	p.num("offset", f.Offset)
	return url.Values(p)
}

func (f MarketFilters) values() url.Values {
	p := params{}
	p.str("status", f.Status)
	p.str("dealer", f.Dealer)
	p.str("category", f.Category)
	p.num("limit", f.Limit)
	p.num("offset", f.Offset)
	return url.Values(p)
}

func (f PredictionFilters) values() url.Values {
	p := params{}
	p.str("user", f.User)
	p.str("market", f.Market)
	p.flag("claimed", f.Claimed)
	p.num("limit", f.Limit)
	p.num("offset", f.Offset)
	return url.Values(p)
}

func (f DealerFilters) values() url.Values {
	p := params{}
	p.str("owner", f.Owner)
	p.num("limit", f.Limit)
	p.num("offset", f.Offset)
	return url.Values(p)
}

func (f WithdrawalFilters) values() url.Values {
	p := params{}
	p.str("withdrawer", f.Withdrawer)
	p.str("type", f.Type)
	p.str("market", f.Market)
	p.num("limit", f.Limit)
	p.num("offset", f.Offset)
	return url.Values(p)
}

func (f OracleFilters) values() url.Values {
	p := params{}
	p.str("market", f.Market)
	p.flag("timedOut", f.TimedOut)
	p.num("limit", f.Limit)
	p.num("offset", f.Offset)
	return url.Values(p)
}

func (f FavoriteFilters) values() url.Values {
	p := params{}
	p.str("category", f.Category)
	p.str("subcategory", f.Subcategory)
	p.str("type", f.Type)
	p.num("limit", f.Limit)
	p.num("offset", f.Offset)
	return url.Values(p)
}
