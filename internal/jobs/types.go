package jobs

import (
	"encoding/json"
	"time"
)

const TaskIndexerEvent = "indexer:event"

// IndexerEventPayload is one stream data update handed to a worker.
type IndexerEventPayload struct {
	EventType  string          `json:"event_type"`
	MarketID   string          `json:"market_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}
