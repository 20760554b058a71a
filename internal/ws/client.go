package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"coinbase-stream/internal/auth"
	"coinbase-stream/internal/models"
)

// MessageHandler receives every classified inbound frame. Frames that fail
// to parse are delivered as a non-nil error with a nil message; the
// connection stays open. An alias so interfaces elsewhere can name the
// signature without importing this package.
type MessageHandler = func(msg *models.Message, err error)

// Observer receives stream lifecycle events. All methods may be called from
// multiple goroutines.
type Observer interface {
	MessageReceived(kind models.EndpointKind, channel models.Channel)
	ParseError(kind models.EndpointKind)
	ReconnectAttempt(kind models.EndpointKind)
	RateLimitWait(kind models.EndpointKind, waited time.Duration)
}

type nopObserver struct{}

func (nopObserver) MessageReceived(models.EndpointKind, models.Channel) {}
func (nopObserver) ParseError(models.EndpointKind)                      {}
func (nopObserver) ReconnectAttempt(models.EndpointKind)                {}
func (nopObserver) RateLimitWait(models.EndpointKind, time.Duration)    {}

// Config controls which endpoints a StreamingClient maintains and how it
// recovers from disconnects.
type Config struct {
	EnablePublic bool
	EnableUser   bool

	// PublicURL and UserURL default to the production endpoints.
	PublicURL string
	UserURL   string

	// Signer is required when EnableUser is set.
	Signer auth.Signer

	// MaxReconnectAttempts bounds reconnect cycles per disconnect.
	// Zero disables auto reconnect: a dropped connection is fatal.
	MaxReconnectAttempts int

	// ResetBackoffOnReconnect restarts the backoff schedule after every
	// successful reconnect. When false a flapping connection keeps
	// climbing toward the 60s cap.
	ResetBackoffOnReconnect bool

	// DialRate caps connection attempts across both endpoints.
	DialRate  rate.Limit
	DialBurst int

	Dialer   Dialer
	Logger   *logrus.Logger
	Observer Observer
}

// StreamingClient maintains one connection per enabled endpoint kind,
// tracks subscriptions for replay, and merges inbound frames into a single
// listen loop.
type StreamingClient struct {
	cfg       Config
	endpoints map[models.EndpointKind]*endpoint
	registry  *SubscriptionRegistry
	dialer    Dialer
	dialLim   *rate.Limiter
	logger    *logrus.Logger
	observer  Observer
}

// NewStreamingClient validates the config and builds a client. At least one
// endpoint must be enabled, and the user endpoint requires a signer.
func NewStreamingClient(cfg Config) (*StreamingClient, error) {
	if !cfg.EnablePublic && !cfg.EnableUser {
		return nil, ErrNoEndpointsEnabled
	}
	if cfg.EnableUser && cfg.Signer == nil {
		return nil, fmt.Errorf("user endpoint enabled without a signer")
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = PublicEndpointURL
	}
	if cfg.UserURL == "" {
		cfg.UserURL = UserEndpointURL
	}
	if cfg.Dialer == nil {
		cfg.Dialer = NewGorillaDialer(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.DialRate <= 0 {
		cfg.DialRate = rate.Limit(2)
	}
	if cfg.DialBurst <= 0 {
		cfg.DialBurst = 4
	}

	return &StreamingClient{
		cfg: cfg,
		endpoints: map[models.EndpointKind]*endpoint{
			models.EndpointPublic: newEndpoint(models.EndpointPublic, cfg.PublicURL, cfg.EnablePublic),
			models.EndpointUser:   newEndpoint(models.EndpointUser, cfg.UserURL, cfg.EnableUser),
		},
		registry: NewSubscriptionRegistry(),
		dialer:   cfg.Dialer,
		dialLim:  rate.NewLimiter(cfg.DialRate, cfg.DialBurst),
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}, nil
}

// Registry exposes the subscription registry, mainly for inspection.
func (c *StreamingClient) Registry() *SubscriptionRegistry {
	return c.registry
}

// Connect opens a connection for every enabled endpoint kind. Calling
// Connect on an already-connected client replaces the live connections.
func (c *StreamingClient) Connect(ctx context.Context) error {
	for _, kind := range []models.EndpointKind{models.EndpointPublic, models.EndpointUser} {
		ep := c.endpoints[kind]
		if !ep.enabled {
			continue
		}
		if err := c.dial(ctx, ep); err != nil {
			return fmt.Errorf("failed to connect %s endpoint: %w", kind, err)
		}
	}
	return nil
}

func (c *StreamingClient) dial(ctx context.Context, ep *endpoint) error {
	if err := c.dialLim.Wait(ctx); err != nil {
		return err
	}

	conn, err := c.dialer.Dial(ctx, ep.url)
	if err != nil {
		return err
	}

	ep.replaceConn(conn)
	c.logger.Infof("✅ %s endpoint connected (%s)", ep.kind, ep.url)
	return nil
}

// Close tears down all live connections.
func (c *StreamingClient) Close() {
	for _, ep := range c.endpoints {
		ep.close()
	}
}

// Subscribe sends a subscribe control message for the channel and records
// the subscription for replay after reconnects. The registry is updated only
// after the send succeeds.
func (c *StreamingClient) Subscribe(channel models.Channel, productIDs []string) error {
	ep, err := c.endpointFor(channel)
	if err != nil {
		return err
	}
	if err := c.sendControl(ep, "subscribe", channel, productIDs); err != nil {
		return err
	}
	c.registry.Add(ep.kind, channel, productIDs)
	return nil
}

// Unsubscribe sends an unsubscribe control message and drops the listed
// product ids from the registry.
func (c *StreamingClient) Unsubscribe(channel models.Channel, productIDs []string) error {
	ep, err := c.endpointFor(channel)
	if err != nil {
		return err
	}
	if err := c.sendControl(ep, "unsubscribe", channel, productIDs); err != nil {
		return err
	}
	c.registry.Remove(ep.kind, channel, productIDs)
	return nil
}

func (c *StreamingClient) endpointFor(channel models.Channel) (*endpoint, error) {
	kind, err := channel.Endpoint()
	if err != nil {
		return nil, err
	}

	ep := c.endpoints[kind]
	if !ep.enabled {
		return nil, fmt.Errorf("channel %s needs the %s endpoint: %w", channel, kind, ErrEndpointDisabled)
	}
	return ep, nil
}

// controlMessage is the wire shape of subscribe/unsubscribe requests.
// Public endpoints authenticate with a timestamp, user endpoints with a jwt.
type controlMessage struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channel    string   `json:"channel"`
	Timestamp  string   `json:"timestamp,omitempty"`
	JWT        string   `json:"jwt,omitempty"`
}

func (c *StreamingClient) sendControl(ep *endpoint, msgType string, channel models.Channel, productIDs []string) error {
	if productIDs == nil {
		productIDs = []string{}
	}

	msg := controlMessage{
		Type:       msgType,
		ProductIDs: productIDs,
		Channel:    channel.String(),
	}

	if ep.kind == models.EndpointUser {
		token, err := c.cfg.Signer.Sign("")
		if err != nil {
			return fmt.Errorf("failed to sign %s request: %w", msgType, err)
		}
		msg.JWT = token
	} else {
		msg.Timestamp = strconv.FormatInt(time.Now().Unix(), 10)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", msgType, err)
	}

	waited, err := ep.send(data)
	c.observer.RateLimitWait(ep.kind, waited)
	if err != nil {
		return fmt.Errorf("failed to send %s for %s: %w", msgType, channel, err)
	}

	c.logger.Debugf("📤 %s %s on %s endpoint (%d products)", msgType, channel, ep.kind, len(productIDs))
	return nil
}

// readEvent is one item on the merged inbound stream: a raw frame, a
// connection error for one endpoint kind, or a fatal condition that ends
// the listen loop.
type readEvent struct {
	kind  models.EndpointKind
	data  []byte
	err   error
	fatal bool
}

// Listen pulls frames from every connected endpoint, fairly merged, and
// invokes the handler for each application message. A dropped connection
// triggers reconnect-with-resubscribe for the affected endpoint only; frames
// from healthy endpoints keep flowing while it recovers. Listen returns when
// the context is cancelled or reconnect attempts are exhausted.
func (c *StreamingClient) Listen(ctx context.Context, handler MessageHandler) error {
	events := make(chan readEvent, 64)

	readers := 0
	for _, ep := range c.endpoints {
		if !ep.enabled {
			continue
		}
		conn := ep.current()
		if conn == nil {
			return fmt.Errorf("%s endpoint: %w", ep.kind, ErrNotConnected)
		}
		go c.readLoop(ep, conn, events)
		readers++
	}
	if readers == 0 {
		return ErrNoEndpointsEnabled
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-events:
			if ev.err != nil {
				if ev.fatal {
					return ev.err
				}
				c.logger.WithError(ev.err).Warnf("⚠️  %s endpoint dropped, reconnecting", ev.kind)
				go c.reconnect(ctx, c.endpoints[ev.kind], events)
				continue
			}

			msg, err := models.ParseMessage(ev.data)
			if err != nil {
				c.observer.ParseError(ev.kind)
				handler(nil, err)
				continue
			}
			c.observer.MessageReceived(ev.kind, msg.Channel)
			handler(msg, nil)
		}
	}
}

// readLoop pumps frames from one connection into the merged stream. Control
// frames (ping/pong) are consumed by the transport and never surface here.
func (c *StreamingClient) readLoop(ep *endpoint, conn Conn, events chan<- readEvent) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			events <- readEvent{kind: ep.kind, err: err}
			return
		}
		events <- readEvent{kind: ep.kind, data: data}
	}
}

// reconnect re-establishes one endpoint with exponential backoff, replays
// the registry snapshot through the normal subscribe path, and restarts the
// read loop. Exhausted retries surface as a fatal event.
func (c *StreamingClient) reconnect(ctx context.Context, ep *endpoint, events chan<- readEvent) {
	if c.cfg.MaxReconnectAttempts <= 0 {
		events <- readEvent{kind: ep.kind, err: fmt.Errorf("%s endpoint dropped: %w", ep.kind, ErrReconnectDisabled), fatal: true}
		return
	}

	for attempt := 0; attempt < c.cfg.MaxReconnectAttempts; attempt++ {
		delay := backoffDelay(ep.failureCount)
		c.logger.Infof("🔄 reconnecting %s endpoint in %v (attempt %d/%d)", ep.kind, delay, attempt+1, c.cfg.MaxReconnectAttempts)
		c.observer.ReconnectAttempt(ep.kind)

		select {
		case <-ctx.Done():
			events <- readEvent{kind: ep.kind, err: ctx.Err(), fatal: true}
			return
		case <-time.After(delay):
		}

		if err := c.dial(ctx, ep); err != nil {
			ep.failureCount++
			c.logger.WithError(err).Warnf("%s endpoint reconnect failed", ep.kind)
			continue
		}

		if err := c.resubscribe(ep); err != nil {
			ep.failureCount++
			c.logger.WithError(err).Warnf("%s endpoint resubscribe failed", ep.kind)
			ep.close()
			continue
		}

		if c.cfg.ResetBackoffOnReconnect {
			ep.failureCount = 0
		}

		c.logger.Infof("✅ %s endpoint recovered, subscriptions replayed", ep.kind)
		go c.readLoop(ep, ep.current(), events)
		return
	}

	events <- readEvent{
		kind:  ep.kind,
		err:   fmt.Errorf("%s endpoint: %w after %d attempts", ep.kind, ErrRetriesExhausted, c.cfg.MaxReconnectAttempts),
		fatal: true,
	}
}

// resubscribe replays every registry entry for the endpoint, including
// channels subscribed with an empty product list.
func (c *StreamingClient) resubscribe(ep *endpoint) error {
	snap := c.registry.Snapshot(ep.kind)

	channels := make([]models.Channel, 0, len(snap))
	for channel := range snap {
		channels = append(channels, channel)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	for _, channel := range channels {
		if err := c.sendControl(ep, "subscribe", channel, snap[channel]); err != nil {
			return err
		}
	}
	return nil
}
