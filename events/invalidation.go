package events

import "github.com/johnqh/heavymath-indexer-client/query"

// Domain event types carried by data_update messages.
const (
	MarketCreated       = "MarketCreated"
	MarketUpdated       = "MarketUpdated"
	MarketStatusChanged = "MarketStatusChanged"
	MarketResolved      = "MarketResolved"
	MarketCancelled     = "MarketCancelled"
	MarketClosed        = "MarketClosed"

	PredictionPlaced   = "PredictionPlaced"
	PredictionClaimed  = "PredictionClaimed"
	WinningsClaimed    = "WinningsClaimed"
	PredictionRefunded = "PredictionRefunded"

	DealerNFTMinted          = "DealerNFTMinted"
	DealerNFTTransferred     = "DealerNFTTransferred"
	LicenseGranted           = "LicenseGranted"
	LicenseRevoked           = "LicenseRevoked"
	DealerPermissionsUpdated = "DealerPermissionsUpdated"

	OracleRequested = "OracleRequested"
	OracleResponded = "OracleResponded"
	OracleTimedOut  = "OracleTimedOut"

	WithdrawalMade = "WithdrawalMade"
	FeesWithdrawn  = "FeesWithdrawn"
	Withdrawn      = "Withdrawn"
)

type group int

const (
	groupUnknown group = iota
	groupMarket
	groupPrediction
	groupDealer
	groupOracle
	groupWithdrawal
)

var groups = map[string]group{
	MarketCreated:       groupMarket,
	MarketUpdated:       groupMarket,
	MarketStatusChanged: groupMarket,
	MarketResolved:      groupMarket,
	MarketCancelled:     groupMarket,
	MarketClosed:        groupMarket,

	PredictionPlaced:   groupPrediction,
	PredictionClaimed:  groupPrediction,
	WinningsClaimed:    groupPrediction,
	PredictionRefunded: groupPrediction,

	DealerNFTMinted:          groupDealer,
	DealerNFTTransferred:     groupDealer,
	LicenseGranted:           groupDealer,
	LicenseRevoked:           groupDealer,
	DealerPermissionsUpdated: groupDealer,

	OracleRequested: groupOracle,
	OracleResponded: groupOracle,
	OracleTimedOut:  groupOracle,

	WithdrawalMade: groupWithdrawal,
	FeesWithdrawn:  groupWithdrawal,
	Withdrawn:      groupWithdrawal,
}

// Resources an event type can touch, as returned by Resource.
const (
	ResourceMarkets     = "markets"
	ResourcePredictions = "predictions"
	ResourceDealers     = "dealers"
	ResourceOracle      = "oracle"
	ResourceWithdrawals = "withdrawals"
)

var resources = map[group]string{
	groupMarket:     ResourceMarkets,
	groupPrediction: ResourcePredictions,
	groupDealer:     ResourceDealers,
	groupOracle:     ResourceOracle,
	groupWithdrawal: ResourceWithdrawals,
}

// Known reports whether eventType has an invalidation mapping.
func Known(eventType string) bool {
	return groups[eventType] != groupUnknown
}

// Resource names the family an event type belongs to, or "" if unknown.
func Resource(eventType string) string {
	return resources[groups[eventType]]
}

// KeysForEvent returns the query key prefixes an event makes stale. data is
// the event payload; its marketId narrows market and prediction events to
// one market's keys as well. Unknown event types map to nothing.
func KeysForEvent(eventType string, data []byte) []query.Key {
	id := marketID(data)
	switch groups[eventType] {
	case groupMarket:
		keys := []query.Key{query.MarketListsKey()}
		if id != "" {
			keys = append(keys, query.MarketKey(id))
		}
		return append(keys, query.MarketStatsKey())
	case groupPrediction:
		keys := []query.Key{query.PredictionsKey}
		if id != "" {
			keys = append(keys, query.MarketPredictionsRootKey(id), query.MarketKey(id))
		}
		return keys
	case groupDealer:
		return []query.Key{query.DealersKey}
	case groupOracle:
		return []query.Key{query.OracleKey}
	case groupWithdrawal:
		return []query.Key{query.WithdrawalsKey}
	}
	return nil
}
