package repository

import (
	"context"
	"fmt"
	"time"

	"coinbase-stream/internal/metrics"
	"coinbase-stream/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type CandleRepository struct {
	clickhouse driver.Conn
	logger     *logrus.Logger
}

func NewCandleRepository(clickhouse driver.Conn, logger *logrus.Logger) *CandleRepository {
	return &CandleRepository{
		clickhouse: clickhouse,
		logger:     logger,
	}
}

// EnsureSchema creates the completed_candles table if it does not exist.
func (r *CandleRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS completed_candles (
			product_id String,
			start DateTime,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			emitted_at DateTime
		) ENGINE = ReplacingMergeTree(emitted_at)
		ORDER BY (product_id, start)`

	if err := r.clickhouse.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create completed_candles table: %w", err)
	}
	return nil
}

// InsertCandles writes a batch of completed candles.
func (r *CandleRepository) InsertCandles(ctx context.Context, candles []*models.CompletedCandle) error {
	if len(candles) == 0 {
		return nil
	}

	start := time.Now()
	defer metrics.TrackLatency(start, metrics.InsertLatency)

	batch, err := r.clickhouse.PrepareBatch(ctx, `
		INSERT INTO completed_candles (
			product_id, start, open, high, low, close, volume, emitted_at
		)`)
	if err != nil {
		metrics.CandleInserts.WithLabelValues("failure").Add(float64(len(candles)))
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, candle := range candles {
		open, _ := candle.Open.Float64()
		high, _ := candle.High.Float64()
		low, _ := candle.Low.Float64()
		close, _ := candle.Close.Float64()
		volume, _ := candle.Volume.Float64()

		err := batch.Append(
			candle.ProductID, candle.StartTime(),
			open, high, low, close, volume,
			candle.EmittedAt,
		)
		if err != nil {
			metrics.CandleInserts.WithLabelValues("failure").Add(float64(len(candles)))
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		metrics.CandleInserts.WithLabelValues("failure").Add(float64(len(candles)))
		return err
	}

	metrics.CandleInserts.WithLabelValues("success").Add(float64(len(candles)))
	return nil
}

// GetCandles retrieves completed candles for a product in chronological order.
func (r *CandleRepository) GetCandles(ctx context.Context, productID string, startTime, endTime time.Time, limit int) ([]models.CompletedCandle, error) {
	query := `
		SELECT product_id, start, open, high, low, close, volume, emitted_at
		FROM completed_candles
		WHERE product_id = ?`

	args := []interface{}{productID}

	if !startTime.IsZero() {
		query += " AND start >= ?"
		args = append(args, startTime)
	}

	if !endTime.IsZero() {
		query += " AND start < ?"
		args = append(args, endTime)
	}

	query += " ORDER BY start DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.clickhouse.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.CompletedCandle
	for rows.Next() {
		var candle models.CompletedCandle
		var start time.Time
		var open, high, low, close, volume float64

		err := rows.Scan(
			&candle.ProductID, &start,
			&open, &high, &low, &close, &volume,
			&candle.EmittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}

		candle.Start = start.Unix()
		candle.Open = decimal.NewFromFloat(open)
		candle.High = decimal.NewFromFloat(high)
		candle.Low = decimal.NewFromFloat(low)
		candle.Close = decimal.NewFromFloat(close)
		candle.Volume = decimal.NewFromFloat(volume)

		candles = append(candles, candle)
	}

	// Reverse to chronological order
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// GetLatestCandle retrieves the most recent completed candle for a product.
func (r *CandleRepository) GetLatestCandle(ctx context.Context, productID string) (*models.CompletedCandle, error) {
	query := `
		SELECT product_id, start, open, high, low, close, volume, emitted_at
		FROM completed_candles
		WHERE product_id = ?
		ORDER BY start DESC LIMIT 1`

	row := r.clickhouse.QueryRow(ctx, query, productID)

	var candle models.CompletedCandle
	var start time.Time
	var open, high, low, close, volume float64

	err := row.Scan(
		&candle.ProductID, &start,
		&open, &high, &low, &close, &volume,
		&candle.EmittedAt,
	)
	if err != nil {
		return nil, err
	}

	candle.Start = start.Unix()
	candle.Open = decimal.NewFromFloat(open)
	candle.High = decimal.NewFromFloat(high)
	candle.Low = decimal.NewFromFloat(low)
	candle.Close = decimal.NewFromFloat(close)
	candle.Volume = decimal.NewFromFloat(volume)

	return &candle, nil
}

// GetStats retrieves storage statistics.
func (r *CandleRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	query := `
		SELECT
			count() as total_candles,
			count(DISTINCT product_id) as total_products,
			min(start) as earliest_candle,
			max(start) as latest_candle
		FROM completed_candles`

	row := r.clickhouse.QueryRow(ctx, query)

	var totalCandles, totalProducts uint64
	var earliest, latest time.Time

	err := row.Scan(&totalCandles, &totalProducts, &earliest, &latest)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"total_candles":   totalCandles,
		"total_products":  totalProducts,
		"earliest_candle": earliest,
		"latest_candle":   latest,
	}, nil
}
