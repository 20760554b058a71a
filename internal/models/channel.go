package models

import "fmt"

// Channel identifies a logical topic on the Advanced Trade WebSocket.
type Channel string

const (
	// ChannelStatus sends all products and currencies on a preset interval.
	ChannelStatus Channel = "status"
	// ChannelCandles updates every second; candles are grouped into
	// five-minute buckets.
	ChannelCandles Channel = "candles"
	// ChannelTicker sends real-time price updates every time a match happens.
	ChannelTicker Channel = "ticker"
	// ChannelTickerBatch sends price updates every 5000 milliseconds.
	ChannelTickerBatch Channel = "ticker_batch"
	// ChannelLevel2 sends all order book updates.
	ChannelLevel2 Channel = "level2"
	// ChannelMarketTrades sends real-time updates every time a market trade happens.
	ChannelMarketTrades Channel = "market_trades"
	// ChannelHeartbeats sends real-time pings to keep connections open.
	ChannelHeartbeats Channel = "heartbeats"
	// ChannelSubscriptions carries acknowledgements of subscription changes.
	ChannelSubscriptions Channel = "subscriptions"
	// ChannelUser sends order updates for the authenticated user.
	ChannelUser Channel = "user"
	// ChannelFuturesBalanceSummary sends updates when the user's futures balance changes.
	ChannelFuturesBalanceSummary Channel = "futures_balance_summary"
)

// EndpointKind is one of the two logical connections to the service.
type EndpointKind string

const (
	// EndpointPublic requires no credentials.
	EndpointPublic EndpointKind = "public"
	// EndpointUser requires an authenticated signer.
	EndpointUser EndpointKind = "user"
)

// channelEndpoints maps every channel to the endpoint that serves it.
// The mapping is static and total: a channel belongs to exactly one endpoint.
var channelEndpoints = map[Channel]EndpointKind{
	ChannelStatus:                EndpointPublic,
	ChannelCandles:               EndpointPublic,
	ChannelTicker:                EndpointPublic,
	ChannelTickerBatch:           EndpointPublic,
	ChannelLevel2:                EndpointPublic,
	ChannelMarketTrades:          EndpointPublic,
	ChannelHeartbeats:            EndpointPublic,
	ChannelSubscriptions:         EndpointPublic,
	ChannelUser:                  EndpointUser,
	ChannelFuturesBalanceSummary: EndpointUser,
}

// Endpoint returns the endpoint kind that serves the channel.
func (c Channel) Endpoint() (EndpointKind, error) {
	kind, ok := channelEndpoints[c]
	if !ok {
		return "", fmt.Errorf("unknown channel %q", string(c))
	}
	return kind, nil
}

// IsValid reports whether the channel is one of the known channels.
func (c Channel) IsValid() bool {
	_, ok := channelEndpoints[c]
	return ok
}

func (c Channel) String() string {
	return string(c)
}

// Channels returns every known channel.
func Channels() []Channel {
	channels := make([]Channel, 0, len(channelEndpoints))
	for c := range channelEndpoints {
		channels = append(channels, c)
	}
	return channels
}

// ParseChannel converts a serialized channel tag into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.IsValid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}
