package candles

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"coinbase-stream/internal/models"
)

// CompletedFunc is invoked once per completed candle. The now argument is
// wall-clock time floored to twice the candle granularity, informational
// context only.
type CompletedFunc func(now int64, productID string, candle models.Candle)

// Watcher turns the stream of in-progress candle updates into discrete
// completed-candle events. A candle is complete when a strictly later bucket
// appears for the same product. State is owned by the goroutine driving
// Handle, no locking needed.
type Watcher struct {
	granularity time.Duration
	tracked     map[string]models.Candle
	onCompleted CompletedFunc
	logger      *logrus.Logger

	now func() time.Time
}

func NewWatcher(logger *logrus.Logger, onCompleted CompletedFunc) *Watcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Watcher{
		granularity: models.WebSocketGranularity,
		tracked:     make(map[string]models.Candle),
		onCompleted: onCompleted,
		logger:      logger,
		now:         time.Now,
	}
}

// Handle consumes one classified frame from the stream. Parse failures are
// logged and skipped, non-candle frames are ignored.
func (w *Watcher) Handle(msg *models.Message, err error) {
	if err != nil {
		w.logger.WithError(err).Warn("⚠️  skipping unreadable frame")
		return
	}
	if msg.Channel != models.ChannelCandles {
		return
	}

	for _, update := range latestPerProduct(msg) {
		w.apply(update)
	}
}

// latestPerProduct collapses a frame to at most one update per product.
// Updates within a frame may arrive out of order; sorting by start
// descending and keeping the first occurrence discards stale duplicates.
func latestPerProduct(msg *models.Message) []models.CandleUpdate {
	var updates []models.CandleUpdate
	for _, event := range msg.Events {
		updates = append(updates, event.Candles...)
	}

	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].Start > updates[j].Start
	})

	seen := make(map[string]bool, len(updates))
	latest := updates[:0]
	for _, update := range updates {
		if seen[update.ProductID] {
			continue
		}
		seen[update.ProductID] = true
		latest = append(latest, update)
	}
	return latest
}

func (w *Watcher) apply(update models.CandleUpdate) {
	old, tracking := w.tracked[update.ProductID]
	w.tracked[update.ProductID] = update.Candle

	if !tracking || update.Start <= old.Start {
		// First sighting, or a refinement of the still-open bucket.
		return
	}

	w.onCompleted(w.flooredNow(), update.ProductID, old)
}

// flooredNow rounds wall-clock time down to the nearest multiple of twice
// the granularity.
func (w *Watcher) flooredNow() int64 {
	window := 2 * int64(w.granularity/time.Second)
	now := w.now().Unix()
	return now - now%window
}

// Streamer is the slice of the streaming client the watch loop needs.
type Streamer interface {
	Connect(ctx context.Context) error
	Subscribe(channel models.Channel, productIDs []string) error
	Listen(ctx context.Context, handler func(msg *models.Message, err error)) error
}

// TickerFunc is invoked once per ticker snapshot seen on the stream.
type TickerFunc func(productID string, ticker models.TickerUpdate)

// Watch connects the client, subscribes to candles for the given products
// plus heartbeats to keep the connection alive, and runs the listen loop
// feeding a Watcher. When onTicker is non-nil the batched ticker channel is
// subscribed too and each snapshot is forwarded. Blocks until the context is
// cancelled or the stream fails permanently.
func Watch(ctx context.Context, client Streamer, productIDs []string, logger *logrus.Logger, onCompleted CompletedFunc, onTicker TickerFunc) error {
	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(models.ChannelCandles, productIDs); err != nil {
		return err
	}
	if err := client.Subscribe(models.ChannelHeartbeats, nil); err != nil {
		return err
	}
	if onTicker != nil {
		if err := client.Subscribe(models.ChannelTickerBatch, productIDs); err != nil {
			return err
		}
	}

	watcher := NewWatcher(logger, onCompleted)
	return client.Listen(ctx, func(msg *models.Message, err error) {
		watcher.Handle(msg, err)
		if err != nil || onTicker == nil {
			return
		}
		if msg.Channel != models.ChannelTicker && msg.Channel != models.ChannelTickerBatch {
			return
		}
		for _, event := range msg.Events {
			for _, ticker := range event.Tickers {
				onTicker(ticker.ProductID, ticker)
			}
		}
	})
}
