package pubsub

import (
	"context"
	"encoding/json"

	"coinbase-stream/internal/metrics"
	"coinbase-stream/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type Publisher struct {
	client  *redis.Client
	channel string
	logger  *logrus.Logger
}

func NewPublisher(client *redis.Client, channel string, logger *logrus.Logger) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// PublishCompletedCandle publishes a completed candle to the configured
// Redis channel.
func (p *Publisher) PublishCompletedCandle(ctx context.Context, candle *models.CompletedCandle) error {
	data, err := json.Marshal(candle)
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		metrics.PublishFailures.Inc()
		p.logger.WithError(err).Warnf("Failed to publish completed candle for %s", candle.ProductID)
		return err
	}

	metrics.PublishSuccess.Inc()
	return nil
}

// PublishTicker publishes a ticker snapshot to a per-product channel.
func (p *Publisher) PublishTicker(ctx context.Context, productID string, ticker *models.TickerUpdate) error {
	data, err := json.Marshal(ticker)
	if err != nil {
		return err
	}

	channel := p.channel + ":ticker:" + productID
	return p.client.Publish(ctx, channel, data).Err()
}
