package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"coinbase-stream/internal/auth"
	"coinbase-stream/internal/config"
	"coinbase-stream/internal/models"
	"coinbase-stream/internal/ws"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Prints raw stream traffic for one or more channels. Useful for poking at
// the feed without the full watcher pipeline.
func main() {
	channelsFlag := flag.String("channels", "heartbeats,ticker", "comma-separated channels to subscribe")
	productsFlag := flag.String("products", "BTC-USD", "comma-separated product ids")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid config: ", err)
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	var channels []models.Channel
	for _, name := range strings.Split(*channelsFlag, ",") {
		channel, err := models.ParseChannel(strings.TrimSpace(name))
		if err != nil {
			logger.Fatal("Unknown channel: ", err)
		}
		channels = append(channels, channel)
	}

	var productIDs []string
	for _, id := range strings.Split(*productsFlag, ",") {
		if id = strings.TrimSpace(id); id != "" {
			productIDs = append(productIDs, id)
		}
	}

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
	})
	if err != nil {
		logger.Fatal("Failed to build streaming client: ", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
	}()

	if err := client.Connect(ctx); err != nil {
		logger.Fatal("Failed to connect: ", err)
	}

	for _, channel := range channels {
		if err := client.Subscribe(channel, productIDs); err != nil {
			logger.Fatal("Failed to subscribe: ", err)
		}
		logger.Infof("Subscribed to %s for %v", channel, productIDs)
	}

	err = client.Listen(ctx, func(msg *models.Message, err error) {
		if err != nil {
			logger.WithError(err).Warn("Unreadable frame")
			return
		}
		logger.WithFields(logrus.Fields{
			"channel":      msg.Channel,
			"sequence_num": msg.SequenceNum,
			"events":       len(msg.Events),
		}).Info("Message received")
	})
	if err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("Stream terminated")
	}
}
