package indexer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination mirrors the pagination block of a paginated envelope.
type Pagination struct {
	TotalCount      int  `json:"totalCount"`
	PageSize        int  `json:"pageSize"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// Page is one page of a paginated list endpoint.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Market status values reported by the indexer
const (
	MarketStatusActive    = "active"
	MarketStatusClosed    = "closed"
	MarketStatusResolved  = "resolved"
	MarketStatusCancelled = "cancelled"
)

// Market is a prediction market created by a dealer NFT.
// IDs are chain-prefixed, e.g. "1-market-9".
type Market struct {
	ID          string          `json:"id"`
	ChainID     int64           `json:"chainId"`
	MarketID    string          `json:"marketId"`
	Dealer      string          `json:"dealer"`
	DealerNFTID string          `json:"dealerNftId"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory,omitempty"`
	Title       string          `json:"title"`
	Status      string          `json:"status"`
	Outcome     *int            `json:"outcome,omitempty"`
	TotalPool   decimal.Decimal `json:"totalPool"`
	DealerFee   decimal.Decimal `json:"dealerFee"`
	CloseTime   int64           `json:"closeTime"` // seconds since epoch
	TxHash      string          `json:"txHash"`
	BlockNumber int64           `json:"blockNumber"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Prediction is a single bet placed on a market outcome.
type Prediction struct {
	ID        string           `json:"id"`
	ChainID   int64            `json:"chainId"`
	MarketID  string           `json:"marketId"`
	User      string           `json:"user"`
	Outcome   int              `json:"outcome"`
	Amount    decimal.Decimal  `json:"amount"`
	Claimed   bool             `json:"claimed"`
	Payout    *decimal.Decimal `json:"payout,omitempty"`
	TxHash    string           `json:"txHash"`
	CreatedAt time.Time        `json:"createdAt"`
	ClaimedAt *time.Time       `json:"claimedAt,omitempty"`
}

// MarketHistory records one state transition of a market.
type MarketHistory struct {
	ID          string    `json:"id"`
	MarketID    string    `json:"marketId"`
	FromStatus  string    `json:"fromStatus"`
	ToStatus    string    `json:"toStatus"`
	TxHash      string    `json:"txHash"`
	BlockNumber int64     `json:"blockNumber"`
	Timestamp   time.Time `json:"timestamp"`
}

// DealerNFT is a dealer license NFT; its owner may create markets.
type DealerNFT struct {
	ID          string    `json:"id"`
	ChainID     int64     `json:"chainId"`
	TokenID     string    `json:"tokenId"`
	Owner       string    `json:"owner"`
	MarketCount int       `json:"marketCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DealerPermission grants a dealer NFT the right to open markets in a category.
type DealerPermission struct {
	ID          string     `json:"id"`
	DealerNFTID string     `json:"dealerNftId"`
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory,omitempty"`
	Granted     bool       `json:"granted"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Withdrawal is a fee or winnings withdrawal.
type Withdrawal struct {
	ID         string          `json:"id"`
	ChainID    int64           `json:"chainId"`
	Withdrawer string          `json:"withdrawer"`
	Type       string          `json:"type"`
	MarketID   string          `json:"marketId,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	TxHash     string          `json:"txHash"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// OracleRequest is a resolution request sent to the oracle for a market.
type OracleRequest struct {
	ID          string     `json:"id"`
	ChainID     int64      `json:"chainId"`
	MarketID    string     `json:"marketId"`
	RequestID   string     `json:"requestId"`
	Outcome     *int       `json:"outcome,omitempty"`
	TimedOut    bool       `json:"timedOut"`
	RequestedAt time.Time  `json:"requestedAt"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
}

// Favorite is a wallet's bookmarked item. Confirmed records carry a
// server-assigned id >= 0; pending optimistic records carry a negative id.
type Favorite struct {
	ID            int64     `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	Category      string    `json:"category"`
	Subcategory   string    `json:"subcategory"`
	Type          string    `json:"type"`
	ItemID        string    `json:"itemId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Pending reports whether the record is an unconfirmed optimistic placeholder.
func (f Favorite) Pending() bool {
	return f.ID < 0
}

// AddFavoriteRequest is the POST body for adding a favorite.
type AddFavoriteRequest struct {
	Category    string `json:"category" validate:"required"`
	Subcategory string `json:"subcategory"`
	Type        string `json:"type" validate:"required"`
	ID          string `json:"id" validate:"required"`
}

// MarketStats holds aggregate market statistics.
type MarketStats struct {
	TotalMarkets     int             `json:"totalMarkets"`
	ActiveMarkets    int             `json:"activeMarkets"`
	ResolvedMarkets  int             `json:"resolvedMarkets"`
	CancelledMarkets int             `json:"cancelledMarkets"`
	TotalPredictions int             `json:"totalPredictions"`
	TotalVolume      decimal.Decimal `json:"totalVolume"`
	UniqueUsers      int             `json:"uniqueUsers"`
}

// Health is the indexer liveness report.
type Health struct {
	Status    string    `json:"status"`
	Database  string    `json:"database,omitempty"`
	Version   string    `json:"version,omitempty"`
	LastBlock int64     `json:"lastBlock,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
