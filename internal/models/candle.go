package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WebSocketGranularity is the bucket size of candles delivered over the
// candles channel. This is fixed by Coinbase and cannot be changed.
const WebSocketGranularity = 5 * time.Minute

// Candle represents one OHLCV bucket as received from the WebSocket.
// Numeric fields arrive as JSON strings.
type Candle struct {
	// Start is the bucket start time in UNIX seconds.
	Start  int64           `json:"start,string"`
	Low    decimal.Decimal `json:"low"`
	High   decimal.Decimal `json:"high"`
	Open   decimal.Decimal `json:"open"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// StartTime returns the bucket start as a time.Time.
func (c Candle) StartTime() time.Time {
	return time.Unix(c.Start, 0).UTC()
}

// CandleUpdate is a per-product candle snapshot inside a candles event.
type CandleUpdate struct {
	ProductID string `json:"product_id"`
	Candle
}

// CompletedCandle is a candle whose bucket has closed, as derived by the
// candle watcher. It is what gets published and persisted downstream.
type CompletedCandle struct {
	ProductID string `json:"product_id"`
	Candle
	EmittedAt time.Time `json:"emitted_at"`
}
