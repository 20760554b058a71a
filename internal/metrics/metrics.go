package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"coinbase-stream/internal/models"
)

var (
	// Stream metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbase_stream_messages_total",
			Help: "Total application messages received by endpoint and channel",
		},
		[]string{"endpoint", "channel"},
	)

	ParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbase_stream_parse_errors_total",
			Help: "Total inbound frames that failed to parse",
		},
		[]string{"endpoint"},
	)

	ParseErrorRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coinbase_stream_parse_error_ratio",
			Help: "Fraction of inbound frames that failed to parse (0-1)",
		},
		[]string{"endpoint"},
	)

	ReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbase_stream_reconnect_attempts_total",
			Help: "Total reconnect attempts by endpoint",
		},
		[]string{"endpoint"},
	)

	RateLimitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coinbase_stream_rate_limit_wait_seconds",
			Help:    "Time control messages spent waiting on the token bucket",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"endpoint"},
	)

	// Candle metrics
	CompletedCandles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbase_stream_completed_candles_total",
			Help: "Total completed candles emitted by product",
		},
		[]string{"product"},
	)

	// Storage metrics
	CandleInserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinbase_stream_candle_inserts_total",
			Help: "Total candles written to storage",
		},
		[]string{"status"}, // success, failure
	)

	InsertLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coinbase_stream_insert_latency_ms",
			Help:    "Storage insert latency in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	// Publishing metrics
	PublishSuccess = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coinbase_stream_publish_success_total",
			Help: "Total successful Redis publishes",
		},
	)

	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coinbase_stream_publish_failures_total",
			Help: "Total failed Redis publishes",
		},
	)
)

// StreamObserver adapts the counters above to the streaming client's
// observer hooks.
type StreamObserver struct{}

func (StreamObserver) MessageReceived(kind models.EndpointKind, channel models.Channel) {
	MessagesReceived.WithLabelValues(string(kind), channel.String()).Inc()
	updateParseErrorRatio(kind)
}

func (StreamObserver) ParseError(kind models.EndpointKind) {
	ParseErrors.WithLabelValues(string(kind)).Inc()
	updateParseErrorRatio(kind)
}

func (StreamObserver) ReconnectAttempt(kind models.EndpointKind) {
	ReconnectAttempts.WithLabelValues(string(kind)).Inc()
}

func (StreamObserver) RateLimitWait(kind models.EndpointKind, waited time.Duration) {
	RateLimitWaitSeconds.WithLabelValues(string(kind)).Observe(waited.Seconds())
}

// updateParseErrorRatio recomputes the error ratio gauge from the raw
// counters. An approximation for dashboards, promql is authoritative.
func updateParseErrorRatio(kind models.EndpointKind) {
	errCounter, err := ParseErrors.GetMetricWithLabelValues(string(kind))
	if err != nil {
		return
	}

	errMetric := &dto.Metric{}
	if errCounter.Write(errMetric) != nil {
		return
	}
	errorsVal := errMetric.Counter.GetValue()

	var totalVal float64
	for _, channel := range models.Channels() {
		counter, err := MessagesReceived.GetMetricWithLabelValues(string(kind), channel.String())
		if err != nil {
			continue
		}
		m := &dto.Metric{}
		if counter.Write(m) == nil {
			totalVal += m.Counter.GetValue()
		}
	}

	total := totalVal + errorsVal
	if total > 0 {
		ParseErrorRatio.WithLabelValues(string(kind)).Set(errorsVal / total)
	}
}

// TrackLatency is a helper to measure and record latency
func TrackLatency(start time.Time, histogram prometheus.Observer) {
	duration := time.Since(start).Milliseconds()
	histogram.Observe(float64(duration))
}
