package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iotcoss/powermirror/internal/device"
	"github.com/iotcoss/powermirror/internal/eventlog"
)

// State is the connection lifecycle state.
type State int

// Connection states. Closed is terminal: it is reached only by explicit
// teardown and suppresses all further transitions.
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the subset of the websocket connection the client uses.
// *websocket.Conn satisfies it; tests substitute a scripted fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a connection to the stream endpoint.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// defaultDial dials with the gorilla/websocket default dialer.
func defaultDial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricSink receives telemetry for applied deltas. *tsdb.Client
// satisfies it; a nil sink disables telemetry.
type MetricSink interface {
	WriteDeviceMetric(deviceMAC string, measurement string, value float64)
	WriteEnergyMetric(deviceMAC string, powerWatts float64, energyKWh float64)
}

// Config holds stream client settings.
type Config struct {
	// URL is the WebSocket endpoint (ws:// or wss://).
	URL string

	// ReconnectDelay is the fixed wait between a disconnect and the next
	// connection attempt.
	ReconnectDelay time.Duration

	// PingInterval is the cadence of keepalive pings. Zero disables them.
	PingInterval time.Duration
}

// Client owns the single logical connection to the backend's device
// stream and translates inbound frames into registry mutations.
//
// Reconnection uses a fixed delay with no retry cap: on a low-churn local
// network the client must never permanently give up unless torn down.
// Exactly one reconnect timer may be pending at a time; duplicate close
// and error events while a timer is pending do not schedule another.
//
// Thread Safety:
//   - Connect and Close are safe to call from any goroutine.
//   - Registry mutations happen only on the single read loop, preserving
//     frame order.
type Client struct {
	cfg      Config
	dial     DialFunc
	registry *device.Registry
	journal  *eventlog.Journal
	logger   Logger
	metrics  MetricSink

	mu             sync.Mutex
	state          State
	conn           Conn
	reconnectTimer *time.Timer
	sessionID      string

	// ctx is the lifetime context captured on the first Connect; reconnect
	// attempts dial under it.
	ctx context.Context

	// pingStop signals the ping loop for the current connection to exit.
	pingStop chan struct{}
}

// New creates a stream client. The metric sink may be nil.
func New(cfg Config, registry *device.Registry, journal *eventlog.Journal, logger Logger, metrics MetricSink) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	return &Client{
		cfg:      cfg,
		dial:     defaultDial,
		registry: registry,
		journal:  journal,
		logger:   logger,
		metrics:  metrics,
		state:    StateIdle,
	}
}

// SetDialFunc replaces the dial function. Call before Connect.
func (c *Client) SetDialFunc(dial DialFunc) {
	c.dial = dial
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the stream is currently connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// SessionID returns the identifier of the current connection session,
// empty when never connected.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connect opens the stream connection. An existing connection is closed
// first, making re-entry idempotent. On failure the fixed-delay reconnect
// cycle starts; Connect itself returns the dial error for the first
// attempt so callers can log it.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.ctx = ctx

	// Close existing connection first (idempotent re-entry guard).
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck // Old connection is being replaced
		c.conn = nil
		c.stopPingLocked()
	}

	c.state = StateConnecting
	c.mu.Unlock()

	c.journal.Append(eventlog.TypeConnection, eventlog.LevelInfo, "stream",
		fmt.Sprintf("connecting to %s", c.cfg.URL), "")

	conn, err := c.dial(ctx, c.cfg.URL)
	if err != nil {
		c.logger.Warn("stream dial failed", "url", c.cfg.URL, "error", err)
		c.journal.Append(eventlog.TypeError, eventlog.LevelError, "stream",
			fmt.Sprintf("connection to %s failed", c.cfg.URL), "")
		c.onClosed()
		return fmt.Errorf("dialling %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		// Torn down while dialling.
		c.mu.Unlock()
		conn.Close() //nolint:errcheck // Discarding a connection that lost the race
		return ErrClosed
	}
	c.conn = conn
	c.state = StateConnected
	c.sessionID = uuid.New().String()
	c.pingStop = make(chan struct{})
	session := c.sessionID
	pingStop := c.pingStop
	c.mu.Unlock()

	c.logger.Info("stream connected", "url", c.cfg.URL, "session", session)
	c.journal.Append(eventlog.TypeConnection, eventlog.LevelInfo, "stream",
		fmt.Sprintf("connected to %s", c.cfg.URL), "")

	go c.readLoop(conn)
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(conn, pingStop)
	}

	return nil
}

// readLoop consumes frames until the connection fails, then hands over to
// the close path. Frames are processed strictly in arrival order.
func (c *Client) readLoop(conn Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.onSocketError(conn, err)
			return
		}
		c.HandleMessage(raw)
	}
}

// pingLoop sends keepalive pings; the backend answers with pong frames.
func (c *Client) pingLoop(conn Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	ping := []byte(`{"type":"ping"}`)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				// The read loop surfaces the failure; just stop pinging.
				return
			}
		}
	}
}

// HandleMessage decodes one raw frame and applies it. It is exported so
// the direct MQTT source can feed broker payloads through the same path.
// Frames arriving after teardown are discarded, not applied.
func (c *Client) HandleMessage(raw []byte) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	switch msg := Decode(raw).(type) {
	case Heartbeat:
		// Keepalive: no mutation, no journal entry.

	case RosterSnapshot:
		// High-frequency and non-actionable: not journalled.
		c.registry.ReplaceAll(msg.Devices)
		c.logger.Debug("roster replaced", "devices", len(msg.Devices))

	case PartialUpdate:
		c.applyDelta(msg)

	case RelayedMessage:
		c.journal.Append(eventlog.TypeMessage, eventlog.LevelInfo, "stream",
			fmt.Sprintf("broker message on %s via %s", msg.Topic, msg.Broker),
			string(msg.Payload))

	case Unparseable:
		c.logger.Warn("unparseable frame dropped", "error", msg.Err)
		c.journal.Append(eventlog.TypeMessage, eventlog.LevelWarn, "stream",
			"unparseable frame dropped", string(msg.Raw))
	}
}

// applyDelta applies a partial update and records telemetry for the
// numeric fields it carried.
func (c *Client) applyDelta(msg PartialUpdate) {
	id, applied := c.registry.ApplyPartial(msg.MAC, msg.Fields)
	if !applied {
		// A delta never creates a device; unknown MACs are dropped.
		c.logger.Debug("delta for unknown device dropped", "mac", msg.MAC)
		return
	}

	c.journal.Append(eventlog.TypeMessage, eventlog.LevelInfo, "stream",
		fmt.Sprintf("state delta applied to device %d", id), string(msg.Raw))

	if c.metrics == nil {
		return
	}
	if msg.Fields.Temperature != nil {
		c.metrics.WriteDeviceMetric(msg.MAC, "temperature", *msg.Fields.Temperature)
	}
	if msg.Fields.Humidity != nil {
		c.metrics.WriteDeviceMetric(msg.MAC, "humidity", *msg.Fields.Humidity)
	}
	if msg.Fields.CurrentPower != nil {
		var energy float64
		if msg.Fields.TodayEnergyKWh != nil {
			energy = *msg.Fields.TodayEnergyKWh
		}
		c.metrics.WriteEnergyMetric(msg.MAC, *msg.Fields.CurrentPower, energy)
	}
}

// onSocketError runs when the read loop fails. Errors precede close in
// the transport lifecycle: record the error, then take the close path.
func (c *Client) onSocketError(conn Conn, err error) {
	c.mu.Lock()
	stale := conn != c.conn
	closed := c.state == StateClosed
	c.mu.Unlock()

	if stale || closed {
		return
	}

	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Error("stream read failed", "url", c.cfg.URL, "error", err)
		c.journal.Append(eventlog.TypeError, eventlog.LevelError, "stream",
			fmt.Sprintf("socket error on %s", c.cfg.URL), "")
	}

	c.onClosed()
}

// onClosed transitions to Disconnected and schedules a single reconnect.
func (c *Client) onClosed() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}

	if c.conn != nil {
		c.conn.Close() //nolint:errcheck // Connection already failed
		c.conn = nil
	}
	c.stopPingLocked()
	c.state = StateDisconnected

	// Exactly one pending timer: repeated close/error events while a
	// reconnect is pending must not stack attempts.
	if c.reconnectTimer == nil {
		c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectDelay, c.reconnect)
	}
	c.mu.Unlock()

	c.journal.Append(eventlog.TypeConnection, eventlog.LevelWarn, "stream",
		"connection closed", "")
}

// reconnect fires from the reconnect timer.
func (c *Client) reconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.mu.Unlock()

	c.logger.Info("reconnecting to stream", "url", c.cfg.URL)
	//nolint:errcheck // Failure re-enters the reconnect cycle internally
	c.Connect(ctx)
}

// stopPingLocked signals the current ping loop to exit. Caller holds mu.
func (c *Client) stopPingLocked() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}

// Close tears the client down: the pending reconnect timer is cancelled,
// the socket is closed, and all further reconnects and inbound frames are
// suppressed. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopPingLocked()
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck // Teardown path
		c.conn = nil
	}

	return nil
}
