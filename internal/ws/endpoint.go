package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"coinbase-stream/internal/models"
)

const (
	// PublicEndpointURL serves market-data channels without credentials.
	PublicEndpointURL = "wss://advanced-trade-ws.coinbase.com"
	// UserEndpointURL serves account channels and requires a signed token.
	UserEndpointURL = "wss://advanced-trade-ws-user.coinbase.com"
)

// Control message budget per endpoint: 750 tokens, refilled at 750/s.
const (
	controlMaxTokens  = 750.0
	controlRefillRate = 750.0
)

var (
	ErrNotConnected       = errors.New("endpoint not connected, call Connect first")
	ErrEndpointDisabled   = errors.New("endpoint not enabled on this client")
	ErrNoEndpointsEnabled = errors.New("no endpoints enabled")
	ErrReconnectDisabled  = errors.New("auto reconnect disabled")
	ErrRetriesExhausted   = errors.New("reconnect retries exhausted")
)

// Conn is the surface of a websocket connection the client needs. The
// default implementation is a gorilla connection; tests substitute fakes.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn for a websocket URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type gorillaDialer struct {
	handshakeTimeout time.Duration
}

// NewGorillaDialer returns the default websocket dialer.
func NewGorillaDialer(handshakeTimeout time.Duration) Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 15 * time.Second
	}
	return &gorillaDialer{handshakeTimeout: handshakeTimeout}
}

func (d *gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: d.handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// endpoint owns the live connection for one endpoint kind. The mutex guards
// the sink and is held across the token wait so sends reach the transport in
// the order tokens were granted.
type endpoint struct {
	kind    models.EndpointKind
	url     string
	enabled bool
	bucket  *TokenBucket

	mu   sync.Mutex
	conn Conn

	// failureCount drives the backoff schedule across reconnect attempts.
	failureCount int
}

func newEndpoint(kind models.EndpointKind, url string, enabled bool) *endpoint {
	return &endpoint{
		kind:    kind,
		url:     url,
		enabled: enabled,
		bucket:  NewTokenBucket(controlMaxTokens, controlRefillRate),
	}
}

// replaceConn installs a fresh connection, closing any prior one.
func (e *endpoint) replaceConn(c Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn != nil {
		e.conn.Close()
	}
	e.conn = c
}

func (e *endpoint) current() Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

func (e *endpoint) close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
}

// send writes one text frame after acquiring a rate-limit token. Returns the
// time spent waiting on the bucket.
func (e *endpoint) send(data []byte) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		return 0, ErrNotConnected
	}

	start := time.Now()
	e.bucket.ConsumeOrWait()
	waited := time.Since(start)

	if err := e.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return waited, err
	}
	return waited, nil
}

// backoffDelay returns the reconnect delay for a zero-based attempt number:
// 2s, 4s, 8s, ... capped at 60s.
func backoffDelay(attempt int) time.Duration {
	delay := 2 * time.Second
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= 60*time.Second {
			return 60 * time.Second
		}
	}
	return delay
}
