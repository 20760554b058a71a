package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Stream.EnablePublic)
	assert.False(t, cfg.Stream.EnableUser)
	assert.Equal(t, 10, cfg.Stream.MaxReconnectAttempts)
	assert.True(t, cfg.Stream.ResetBackoffOnReconnect)
	assert.Equal(t, 15*time.Second, cfg.Stream.HandshakeTimeout)
	assert.Equal(t, 100, cfg.Service.BatchWriteSize)
	assert.Equal(t, time.Second, cfg.Service.BatchWriteInterval)
	assert.Equal(t, "coinbase:candles:completed", cfg.Redis.PubSubChannel)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STREAM_ENABLE_USER", "true")
	t.Setenv("STREAM_MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("STREAM_RESET_BACKOFF", "false")
	t.Setenv("STREAM_DIAL_RATE", "0.5")
	t.Setenv("COINBASE_API_KEY_NAME", "organizations/org/apiKeys/key")
	t.Setenv("CLICKHOUSE_PORT", "9440")
	t.Setenv("BATCH_WRITE_SIZE", "500")
	t.Setenv("BATCH_WRITE_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Stream.EnableUser)
	assert.Equal(t, 3, cfg.Stream.MaxReconnectAttempts)
	assert.False(t, cfg.Stream.ResetBackoffOnReconnect)
	assert.Equal(t, 0.5, cfg.Stream.DialRate)
	assert.Equal(t, "organizations/org/apiKeys/key", cfg.Coinbase.APIKeyName)
	assert.Equal(t, 9440, cfg.ClickHouse.Port)
	assert.Equal(t, 500, cfg.Service.BatchWriteSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Service.BatchWriteInterval)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate(), "no endpoints enabled")

	cfg.Stream.EnablePublic = true
	assert.NoError(t, cfg.Validate())

	cfg.Stream.EnableUser = true
	assert.Error(t, cfg.Validate(), "user endpoint without key name")

	cfg.Coinbase.APIKeyName = "key"
	assert.Error(t, cfg.Validate(), "user endpoint without secret")

	cfg.Coinbase.APISecret = "pem"
	assert.NoError(t, cfg.Validate())
}

func TestSecretPEM(t *testing.T) {
	inline := CoinbaseConfig{APISecret: "inline-pem"}
	pem, err := inline.SecretPEM()
	require.NoError(t, err)
	assert.Equal(t, "inline-pem", pem)

	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, []byte("file-pem"), 0o600))

	fromFile := CoinbaseConfig{APISecretFile: path}
	pem, err = fromFile.SecretPEM()
	require.NoError(t, err)
	assert.Equal(t, "file-pem", pem)

	var empty CoinbaseConfig
	_, err = empty.SecretPEM()
	assert.Error(t, err)
}

func TestConnectionStrings(t *testing.T) {
	ch := ClickHouseConfig{Host: "db", Port: 9000, Database: "coinbase", Username: "default"}
	assert.Contains(t, ch.DSN(), "clickhouse://default:@db:9000/coinbase")
	assert.Contains(t, ch.DSN(), "dial_timeout=10s")

	r := RedisConfig{Host: "cache", Port: 6379}
	assert.Equal(t, "cache:6379", r.Addr())
}
