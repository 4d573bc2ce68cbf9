package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Message types sent on the stream.
const (
	TypeConnected             = "connected"
	TypeDataUpdate            = "data_update"
	TypeHeartbeat             = "heartbeat"
	TypeSubscriptionConfirmed = "subscription_confirmed"
)

// Message is one decoded stream payload. Only data_update messages carry
// EventType and Data.
type Message struct {
	Type           string          `json:"type"`
	ClientID       string          `json:"clientId,omitempty"`
	SubscriptionID string          `json:"subscriptionId,omitempty"`
	Channel        string          `json:"channel,omitempty"`
	EventType      string          `json:"eventType,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`
}

// Event is a data_update as handed to callbacks and kept in the event log.
type Event struct {
	Type           string          `json:"eventType"`
	SubscriptionID string          `json:"subscriptionId,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`
	ReceivedAt     time.Time       `json:"receivedAt"`
}

// MarketID returns data.marketId, or "" when the payload has none.
func (e Event) MarketID() string {
	return marketID(e.Data)
}

func marketID(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	r := gjson.GetBytes(data, "marketId")
	if r.Type != gjson.String && r.Type != gjson.Number {
		return ""
	}
	return r.String()
}

// ParseMessage decodes one stream payload. It fails on invalid JSON, a
// missing type, or a data_update without an eventType.
func ParseMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("decode message %.64q: %w", raw, err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("message without type: %.64q", raw)
	}
	if m.Type == TypeDataUpdate && m.EventType == "" {
		return Message{}, fmt.Errorf("data_update without eventType")
	}
	return m, nil
}
