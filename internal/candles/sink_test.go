package candles

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinbase-stream/internal/models"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]*models.CompletedCandle
}

func (f *fakeStore) InsertCandles(_ context.Context, candles []*models.CompletedCandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, candles)
	return nil
}

func (f *fakeStore) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*models.CompletedCandle
}

func (f *fakePublisher) PublishCompletedCandle(_ context.Context, candle *models.CompletedCandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, candle)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func testCandle(start int64) models.Candle {
	return models.Candle{Start: start, Close: decimal.NewFromInt(100)}
}

func TestSinkFlushesOnBatchSize(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store, nil, nil, 2, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	sink.Offer(600, "BTC-USD", testCandle(100))
	sink.Offer(600, "BTC-USD", testCandle(400))

	require.Eventually(t, func() bool { return store.total() == 2 }, time.Second, 10*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.batches, 1)
	assert.Equal(t, "BTC-USD", store.batches[0][0].ProductID)
	assert.Equal(t, time.Unix(600, 0), store.batches[0][0].EmittedAt)
}

func TestSinkFlushesOnInterval(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store, nil, nil, 100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	sink.Offer(600, "ETH-USD", testCandle(100))

	require.Eventually(t, func() bool { return store.total() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSinkFlushesRemainingOnShutdown(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store, nil, nil, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx)
		close(done)
	}()

	sink.Offer(600, "BTC-USD", testCandle(100))

	// Let Run pull the candle into the batch before cancelling.
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.batch) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 1, store.total())
}

func TestSinkPublishesEveryCandle(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(nil, pub, nil, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	sink.Offer(600, "BTC-USD", testCandle(100))
	sink.Offer(600, "ETH-USD", testCandle(100))

	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 10*time.Millisecond)
}
