package candles

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"coinbase-stream/internal/models"
)

// Store persists batches of completed candles.
type Store interface {
	InsertCandles(ctx context.Context, candles []*models.CompletedCandle) error
}

// Publisher fans completed candles out to downstream consumers.
type Publisher interface {
	PublishCompletedCandle(ctx context.Context, candle *models.CompletedCandle) error
}

// Sink buffers completed candles and writes them in batches, publishing
// each one as it arrives. A nil store or publisher disables that half.
type Sink struct {
	store     Store
	publisher Publisher
	logger    *logrus.Logger

	batchSize     int
	flushInterval time.Duration

	in chan *models.CompletedCandle

	mu    sync.Mutex
	batch []*models.CompletedCandle
}

func NewSink(store Store, publisher Publisher, logger *logrus.Logger, batchSize int, flushInterval time.Duration) *Sink {
	if logger == nil {
		logger = logrus.New()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Sink{
		store:         store,
		publisher:     publisher,
		logger:        logger,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		in:            make(chan *models.CompletedCandle, 1024),
		batch:         make([]*models.CompletedCandle, 0, batchSize),
	}
}

// Offer accepts one completed candle. Matches CompletedFunc so it can be
// handed straight to a Watcher. Drops on a full buffer rather than stalling
// the stream.
func (s *Sink) Offer(now int64, productID string, candle models.Candle) {
	completed := &models.CompletedCandle{
		ProductID: productID,
		Candle:    candle,
		EmittedAt: time.Unix(now, 0),
	}

	select {
	case s.in <- completed:
	default:
		s.logger.Warnf("⚠️  candle sink buffer full, dropping %s candle at %d", productID, candle.Start)
	}
}

// Run drains the buffer until the context is cancelled, flushing on batch
// size and on a timer. Remaining candles are flushed before returning.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return

		case candle := <-s.in:
			if s.publisher != nil {
				if err := s.publisher.PublishCompletedCandle(ctx, candle); err != nil {
					s.logger.WithError(err).Warn("Failed to publish completed candle")
				}
			}

			s.mu.Lock()
			s.batch = append(s.batch, candle)
			shouldFlush := len(s.batch) >= s.batchSize
			s.mu.Unlock()

			if shouldFlush {
				s.flush(ctx)
			}

		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *Sink) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.batch
	s.batch = make([]*models.CompletedCandle, 0, s.batchSize)
	s.mu.Unlock()

	if s.store == nil {
		return
	}

	if err := s.store.InsertCandles(ctx, batch); err != nil {
		s.logger.WithError(err).Error("Failed to batch write candles")
		return
	}

	s.logger.Debugf("Flushed batch of %d candles", len(batch))
}
