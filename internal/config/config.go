package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Coinbase   CoinbaseConfig
	Stream     StreamConfig
	Service    ServiceConfig
	Watchlist  WatchlistConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
	Metrics    MetricsConfig
	Logging    LoggingConfig
}

type CoinbaseConfig struct {
	// APIKeyName is the full CDP key resource name.
	APIKeyName string
	// APISecret is the PEM-encoded EC private key, inline or via file.
	APISecret     string
	APISecretFile string
}

type StreamConfig struct {
	EnablePublic bool
	EnableUser   bool

	PublicURL string
	UserURL   string

	MaxReconnectAttempts    int
	ResetBackoffOnReconnect bool

	HandshakeTimeout time.Duration
	DialRate         float64
	DialBurst        int
}

type ServiceConfig struct {
	BatchWriteSize     int
	BatchWriteInterval time.Duration
}

type WatchlistConfig struct {
	File string
}

type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	PubSubChannel string
}

type MetricsConfig struct {
	Enabled bool
	Port    int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Coinbase: CoinbaseConfig{
			APIKeyName:    getEnv("COINBASE_API_KEY_NAME", ""),
			APISecret:     getEnv("COINBASE_API_SECRET", ""),
			APISecretFile: getEnv("COINBASE_API_SECRET_FILE", ""),
		},
		Stream: StreamConfig{
			EnablePublic:            getEnvBool("STREAM_ENABLE_PUBLIC", true),
			EnableUser:              getEnvBool("STREAM_ENABLE_USER", false),
			PublicURL:               getEnv("STREAM_PUBLIC_URL", ""),
			UserURL:                 getEnv("STREAM_USER_URL", ""),
			MaxReconnectAttempts:    getEnvInt("STREAM_MAX_RECONNECT_ATTEMPTS", 10),
			ResetBackoffOnReconnect: getEnvBool("STREAM_RESET_BACKOFF", true),
			HandshakeTimeout:        parseDuration(getEnv("STREAM_HANDSHAKE_TIMEOUT", "15s"), 15*time.Second),
			DialRate:                getEnvFloat("STREAM_DIAL_RATE", 2),
			DialBurst:               getEnvInt("STREAM_DIAL_BURST", 4),
		},
		Service: ServiceConfig{
			BatchWriteSize:     getEnvInt("BATCH_WRITE_SIZE", 100),
			BatchWriteInterval: parseDuration(getEnv("BATCH_WRITE_INTERVAL", "1s"), time.Second),
		},
		Watchlist: WatchlistConfig{
			File: getEnv("WATCHLIST_FILE", "products.yaml"),
		},
		ClickHouse: ClickHouseConfig{
			Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
			Port:     getEnvInt("CLICKHOUSE_PORT", 9000),
			Database: getEnv("CLICKHOUSE_DATABASE", "coinbase"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PubSubChannel: getEnv("REDIS_PUBSUB_CHANNEL", "coinbase:candles:completed"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 8080),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if !c.Stream.EnablePublic && !c.Stream.EnableUser {
		return fmt.Errorf("at least one of STREAM_ENABLE_PUBLIC or STREAM_ENABLE_USER is required")
	}
	if c.Stream.EnableUser && c.Coinbase.APIKeyName == "" {
		return fmt.Errorf("COINBASE_API_KEY_NAME is required for the user endpoint")
	}
	if c.Stream.EnableUser && c.Coinbase.APISecret == "" && c.Coinbase.APISecretFile == "" {
		return fmt.Errorf("COINBASE_API_SECRET or COINBASE_API_SECRET_FILE is required for the user endpoint")
	}
	return nil
}

// SecretPEM returns the API private key, reading the secret file when the
// inline value is empty.
func (c *CoinbaseConfig) SecretPEM() (string, error) {
	if c.APISecret != "" {
		return c.APISecret, nil
	}
	if c.APISecretFile == "" {
		return "", fmt.Errorf("no api secret configured")
	}
	data, err := os.ReadFile(c.APISecretFile)
	if err != nil {
		return "", fmt.Errorf("failed to read api secret file: %w", err)
	}
	return string(data), nil
}

func (c *ClickHouseConfig) DSN() string {
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s?dial_timeout=10s&max_execution_time=60",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}
