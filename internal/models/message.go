package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Message is the envelope every WebSocket frame arrives in. Only the channel
// tag is needed for routing; event payloads are typed for the channels the
// client consumes and left raw for the rest.
type Message struct {
	Channel     Channel `json:"channel"`
	ClientID    string  `json:"client_id"`
	Timestamp   string  `json:"timestamp"`
	SequenceNum uint64  `json:"sequence_num"`
	Events      []Event `json:"events"`
}

// Event is a single entry of a message's events array. Which fields are
// populated depends on the channel.
type Event struct {
	Type      string `json:"type,omitempty"`
	ProductID string `json:"product_id,omitempty"`

	// Candles channel.
	Candles []CandleUpdate `json:"candles,omitempty"`

	// Ticker and ticker_batch channels.
	Tickers []TickerUpdate `json:"tickers,omitempty"`

	// Heartbeats channel.
	CurrentTime      string `json:"current_time,omitempty"`
	HeartbeatCounter uint64 `json:"heartbeat_counter,omitempty"`

	// Subscriptions channel: channel tag -> subscribed product ids.
	Subscriptions map[string][]string `json:"subscriptions,omitempty"`

	// Channels the client routes but does not interpret.
	Updates  json.RawMessage `json:"updates,omitempty"`
	Orders   json.RawMessage `json:"orders,omitempty"`
	Trades   json.RawMessage `json:"trades,omitempty"`
	Products json.RawMessage `json:"products,omitempty"`
}

// TickerUpdate is a per-product price update inside a ticker event.
type TickerUpdate struct {
	Type               string          `json:"type"`
	ProductID          string          `json:"product_id"`
	Price              decimal.Decimal `json:"price"`
	Volume24H          decimal.Decimal `json:"volume_24_h"`
	Low24H             decimal.Decimal `json:"low_24_h"`
	High24H            decimal.Decimal `json:"high_24_h"`
	PricePercentChg24H decimal.Decimal `json:"price_percent_chg_24_h"`
}

// ParseMessage decodes a raw frame into a Message and validates the channel tag.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Channel.IsValid() {
		return nil, &UnknownChannelError{Tag: string(msg.Channel)}
	}
	return &msg, nil
}

// UnknownChannelError is returned when a frame carries a channel tag the
// client does not recognize.
type UnknownChannelError struct {
	Tag string
}

func (e *UnknownChannelError) Error() string {
	return "unknown channel tag: " + e.Tag
}
