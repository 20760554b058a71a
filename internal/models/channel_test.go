package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelEndpointMappingIsTotal(t *testing.T) {
	for _, c := range Channels() {
		kind, err := c.Endpoint()
		require.NoError(t, err, "channel %s has no endpoint", c)
		assert.Contains(t, []EndpointKind{EndpointPublic, EndpointUser}, kind)
	}
}

func TestChannelEndpoints(t *testing.T) {
	tests := []struct {
		channel Channel
		kind    EndpointKind
	}{
		{ChannelCandles, EndpointPublic},
		{ChannelHeartbeats, EndpointPublic},
		{ChannelLevel2, EndpointPublic},
		{ChannelUser, EndpointUser},
		{ChannelFuturesBalanceSummary, EndpointUser},
	}

	for _, tt := range tests {
		kind, err := tt.channel.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, tt.kind, kind, "channel %s", tt.channel)
	}
}

func TestChannelEndpointUnknown(t *testing.T) {
	_, err := Channel("nope").Endpoint()
	assert.Error(t, err)
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel("ticker_batch")
	require.NoError(t, err)
	assert.Equal(t, ChannelTickerBatch, c)

	_, err = ParseChannel("bogus")
	assert.Error(t, err)
}
