package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinbase-stream/internal/api"
	"coinbase-stream/internal/auth"
	"coinbase-stream/internal/candles"
	"coinbase-stream/internal/config"
	"coinbase-stream/internal/metrics"
	"coinbase-stream/internal/models"
	"coinbase-stream/internal/products"
	"coinbase-stream/internal/pubsub"
	"coinbase-stream/internal/repository"
	"coinbase-stream/internal/ws"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var version = "1.0.0"

func main() {
	// Setup logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	logger.Info("Starting Coinbase Candle Watcher...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid config: ", err)
	}

	// Set log level
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	// Initialize ClickHouse
	logger.Info("Connecting to ClickHouse...")
	chOptions, err := clickhouse.ParseDSN(cfg.ClickHouse.DSN())
	if err != nil {
		logger.Fatal("Invalid ClickHouse DSN: ", err)
	}
	chOptions.MaxOpenConns = 10
	chOptions.MaxIdleConns = 5
	chOptions.ConnMaxLifetime = time.Hour
	chOptions.ConnOpenStrategy = clickhouse.ConnOpenInOrder

	clickhouseConn, err := clickhouse.Open(chOptions)
	if err != nil {
		logger.Fatal("Failed to connect to ClickHouse: ", err)
	}
	defer clickhouseConn.Close()

	if err := clickhouseConn.Ping(context.Background()); err != nil {
		logger.Fatal("ClickHouse ping failed: ", err)
	}
	logger.Info("ClickHouse connected successfully")

	// Initialize Redis
	logger.Info("Connecting to Redis...")
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis: ", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected successfully")

	// Initialize storage and pub/sub
	candleRepo := repository.NewCandleRepository(clickhouseConn, logger)
	if err := candleRepo.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("Failed to create schema: ", err)
	}

	publisher := pubsub.NewPublisher(redisClient, cfg.Redis.PubSubChannel, logger)
	sink := candles.NewSink(candleRepo, publisher, logger, cfg.Service.BatchWriteSize, cfg.Service.BatchWriteInterval)

	// Build the streaming client
	var signer auth.Signer
	if cfg.Stream.EnableUser {
		pem, err := cfg.Coinbase.SecretPEM()
		if err != nil {
			logger.Fatal("Failed to load API secret: ", err)
		}
		signer, err = auth.NewJWTSigner(cfg.Coinbase.APIKeyName, pem)
		if err != nil {
			logger.Fatal("Failed to build signer: ", err)
		}
	}

	client, err := ws.NewStreamingClient(ws.Config{
		EnablePublic:            cfg.Stream.EnablePublic,
		EnableUser:              cfg.Stream.EnableUser,
		PublicURL:               cfg.Stream.PublicURL,
		UserURL:                 cfg.Stream.UserURL,
		Signer:                  signer,
		MaxReconnectAttempts:    cfg.Stream.MaxReconnectAttempts,
		ResetBackoffOnReconnect: cfg.Stream.ResetBackoffOnReconnect,
		DialRate:                rate.Limit(cfg.Stream.DialRate),
		DialBurst:               cfg.Stream.DialBurst,
		Dialer:                  ws.NewGorillaDialer(cfg.Stream.HandshakeTimeout),
		Logger:                  logger,
		Observer:                metrics.StreamObserver{},
	})
	if err != nil {
		logger.Fatal("Failed to build streaming client: ", err)
	}
	defer client.Close()

	// Load the product watchlist
	watchlist := products.LoadWatchlistWithFallback(cfg.Watchlist.File)
	logger.Infof("Watching %d products: %v", len(watchlist), watchlist)

	// Metrics, health and query endpoints
	if cfg.Metrics.Enabled {
		apiServer := api.NewServer(candleRepo, logger, version)
		go startHTTPServer(cfg, logger, apiServer.Routes())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sink.Run(ctx)

	// Drive the stream
	onCompleted := func(now int64, productID string, candle models.Candle) {
		metrics.CompletedCandles.WithLabelValues(productID).Inc()
		logger.Infof("🕯️  %s candle completed: start=%d close=%s", productID, candle.Start, candle.Close)
		sink.Offer(now, productID, candle)
	}
	onTicker := func(productID string, ticker models.TickerUpdate) {
		if err := publisher.PublishTicker(ctx, productID, &ticker); err != nil {
			logger.WithError(err).Debugf("Failed to publish ticker for %s", productID)
		}
	}

	streamErrChan := make(chan error, 1)
	go func() {
		streamErrChan <- candles.Watch(ctx, client, watchlist, logger, onCompleted, onTicker)
	}()

	logger.Infof("Coinbase Candle Watcher v%s started successfully", version)

	// Wait for shutdown signal or stream failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Received shutdown signal")
	case err := <-streamErrChan:
		if err != nil {
			logger.WithError(err).Error("Stream terminated")
		}
	}

	logger.Info("Shutting down gracefully...")
	cancel()

	time.Sleep(2 * time.Second)
	logger.Info("Shutdown complete")
}

func startHTTPServer(cfg *config.Config, logger *logrus.Logger, handler http.Handler) {
	addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	logger.Infof("HTTP server starting on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("HTTP server failed: ", err)
	}
}
