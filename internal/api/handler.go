package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"coinbase-stream/internal/models"
)

const (
	defaultCandlesLimit = 100
	maxCandlesLimit     = 1000
)

// CandleReader is the slice of the candle store the HTTP API serves.
type CandleReader interface {
	GetCandles(ctx context.Context, productID string, startTime, endTime time.Time, limit int) ([]models.CompletedCandle, error)
	GetLatestCandle(ctx context.Context, productID string) (*models.CompletedCandle, error)
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// Server exposes health, stats, metrics and candle queries over HTTP.
type Server struct {
	reader    CandleReader
	logger    *logrus.Logger
	version   string
	startTime time.Time
}

func NewServer(reader CandleReader, logger *logrus.Logger, version string) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		reader:    reader,
		logger:    logger,
		version:   version,
		startTime: time.Now(),
	}
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/candles", s.handleCandles)
	mux.HandleFunc("/api/v1/candles/latest", s.handleLatestCandle)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"healthy":true,"version":"%s","uptime_seconds":%d}`,
		s.version, int64(time.Since(s.startTime).Seconds()))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reader.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		writeError(w, http.StatusBadRequest, errors.New("product_id is required"))
		return
	}

	startTime := parseUnixParam(r, "start")
	endTime := parseUnixParam(r, "end")

	limit := defaultCandlesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > maxCandlesLimit {
		limit = maxCandlesLimit
	}

	candles, err := s.reader.GetCandles(r.Context(), productID, startTime, endTime, limit)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to query candles")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if candles == nil {
		candles = []models.CompletedCandle{}
	}
	writeJSON(w, candles)
}

func (s *Server) handleLatestCandle(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		writeError(w, http.StatusBadRequest, errors.New("product_id is required"))
		return
	}

	candle, err := s.reader.GetLatestCandle(r.Context(), productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, fmt.Errorf("no candles for %s", productID))
			return
		}
		s.logger.WithError(err).Warn("Failed to query latest candle")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, candle)
}

func parseUnixParam(r *http.Request, name string) time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, err.Error())
}
