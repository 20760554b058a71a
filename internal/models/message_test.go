package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageCandles(t *testing.T) {
	data := `{
		"channel": "candles",
		"client_id": "",
		"timestamp": "2024-01-15T10:00:01.123456Z",
		"sequence_num": 4,
		"events": [
			{
				"type": "update",
				"candles": [
					{
						"start": "1705312800",
						"low": "42100.5",
						"high": "42350",
						"open": "42200",
						"close": "42300.25",
						"volume": "12.5",
						"product_id": "BTC-USD"
					}
				]
			}
		]
	}`

	msg, err := ParseMessage([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, ChannelCandles, msg.Channel)
	assert.Equal(t, uint64(4), msg.SequenceNum)
	require.Len(t, msg.Events, 1)
	require.Len(t, msg.Events[0].Candles, 1)

	update := msg.Events[0].Candles[0]
	assert.Equal(t, "BTC-USD", update.ProductID)
	assert.Equal(t, int64(1705312800), update.Start)
	assert.Equal(t, "42300.25", update.Close.String())
	assert.Equal(t, "12.5", update.Volume.String())
}

func TestParseMessageHeartbeats(t *testing.T) {
	data := `{
		"channel": "heartbeats",
		"client_id": "",
		"timestamp": "2025-01-14T22:11:18.791273556Z",
		"sequence_num": 17,
		"events": [
			{
				"current_time": "2025-01-14 22:11:18.787177997 +0000 UTC",
				"heartbeat_counter": 25539
			}
		]
	}`

	msg, err := ParseMessage([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, ChannelHeartbeats, msg.Channel)
	require.Len(t, msg.Events, 1)
	assert.Equal(t, uint64(25539), msg.Events[0].HeartbeatCounter)
}

func TestParseMessageUnknownChannel(t *testing.T) {
	data := `{"channel":"mystery","client_id":"","timestamp":"t","sequence_num":1,"events":[]}`

	_, err := ParseMessage([]byte(data))
	require.Error(t, err)

	var unknownErr *UnknownChannelError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "mystery", unknownErr.Tag)
}

func TestParseMessageMalformed(t *testing.T) {
	_, err := ParseMessage([]byte(`{"channel": candles`))
	assert.Error(t, err)
}
