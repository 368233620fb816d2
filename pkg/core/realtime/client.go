// Package realtime maintains the persistent socket to the conversational
// AI backend: one connection per streaming-mode call, typed inbound
// events, and a bounded reconnection budget.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clearline-ai/clearline/pkg/core"
)

// ErrReconnectExhausted is raised after the reconnection budget is spent.
// The orchestrator downgrades the call to the turn-based pipeline when it
// sees this.
var ErrReconnectExhausted = errors.New("realtime: reconnection budget exhausted")

const (
	defaultDialTimeout    = 10 * time.Second
	defaultPingInterval   = 25 * time.Second
	defaultHealthInterval = 30 * time.Second
	defaultPongWindow     = 60 * time.Second
	defaultMaxReconnects  = 5
	defaultReconnectBase  = time.Second
	writeTimeout          = 5 * time.Second
)

// Client is a realtime backend connection. Events() yields typed inbound
// events until a ClosedEvent, after which the channel is closed. Write
// methods are safe for concurrent use.
type Client struct {
	url    string
	header http.Header
	config SessionConfig
	logger *slog.Logger

	dialTimeout    time.Duration
	pingInterval   time.Duration
	healthInterval time.Duration
	pongWindow     time.Duration
	maxReconnects  int
	reconnectBase  time.Duration

	events chan Event

	mu       sync.Mutex
	conn     *websocket.Conn
	lastPong time.Time

	writeMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDialTimeout bounds the websocket handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithMaxReconnects sets the reconnection budget per disconnect episode.
func WithMaxReconnects(n int) Option {
	return func(c *Client) { c.maxReconnects = n }
}

// WithReconnectBase sets the first reconnect delay. Attempt n waits
// n times this value, so delays strictly increase.
func WithReconnectBase(d time.Duration) Option {
	return func(c *Client) { c.reconnectBase = d }
}

// WithKeepalive overrides the ping, health-check, and pong-window timings.
func WithKeepalive(ping, health, pongWindow time.Duration) Option {
	return func(c *Client) {
		c.pingInterval = ping
		c.healthInterval = health
		c.pongWindow = pongWindow
	}
}

// Dial connects to the backend, sends the session configuration, and
// starts the read loop. The configuration always precedes audio on the
// wire.
func Dial(ctx context.Context, url string, header http.Header, config SessionConfig, opts ...Option) (*Client, error) {
	c := &Client{
		url:            url,
		header:         header,
		config:         config,
		logger:         slog.Default(),
		dialTimeout:    defaultDialTimeout,
		pingInterval:   defaultPingInterval,
		healthInterval: defaultHealthInterval,
		pongWindow:     defaultPongWindow,
		maxReconnects:  defaultMaxReconnects,
		reconnectBase:  defaultReconnectBase,
		events:         make(chan Event, 64),
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.setConn(conn)
	if err := c.sendSessionUpdate(); err != nil {
		conn.Close()
		return nil, core.NewConnectionError("send session config", true, err)
	}

	go c.run()
	return c, nil
}

// Events returns the inbound event channel. The channel is closed after
// a ClosedEvent is delivered.
func (c *Client) Events() <-chan Event { return c.events }

// AppendAudio forwards caller audio to the backend's input buffer. The
// audio must already be in the configured input format.
func (c *Client) AppendAudio(audio []byte) error {
	return c.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(audio),
	})
}

// CreateItem injects a text turn into the backend conversation.
func (c *Client) CreateItem(role, text string) error {
	return c.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": role,
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// CreateResponse asks the backend to generate a reply turn.
func (c *Client) CreateResponse() error {
	return c.sendJSON(map[string]any{"type": "response.create"})
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if conn := c.currentConn(); conn != nil {
			deadline := time.Now().Add(writeTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		}
	})
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, c.url, c.header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, core.NewConnectionError(
				fmt.Sprintf("realtime auth rejected (%d)", resp.StatusCode), false, err)
		}
		return nil, core.NewConnectionError("realtime dial failed", true, err)
	}

	conn.SetPongHandler(func(string) error {
		c.notePong()
		return nil
	})
	c.notePong()
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) notePong() {
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()
}

func (c *Client) sincePong() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastPong)
}

func (c *Client) sendSessionUpdate() error {
	return c.sendJSON(map[string]any{
		"type":    "session.update",
		"session": c.config.wire(),
	})
}

func (c *Client) sendJSON(v any) error {
	conn := c.currentConn()
	if conn == nil || c.isClosed() {
		return core.NewConnectionError("realtime connection closed", false, nil)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return core.NewConnectionError("realtime write failed", true, err)
	}
	return nil
}

// run owns the connection lifecycle: read until failure, reconnect within
// budget, and always finish by closing the event channel. The budget
// counts consecutive disconnects; delivering events from a connection
// resets the streak, a reconnect handshake alone does not.
func (c *Client) run() {
	defer close(c.events)

	consecutive := 0
	for {
		delivered, err := c.readLoop(c.currentConn())
		if c.isClosed() {
			c.emit(&ClosedEvent{})
			return
		}
		if !retryableClose(err) {
			c.logger.Error("realtime connection terminal", "error", err)
			c.emit(&ClosedEvent{Err: err})
			return
		}
		if delivered {
			consecutive = 0
		}
		consecutive++
		c.logger.Warn("realtime connection lost",
			"consecutive", consecutive, "error", err)

		reconnected := false
		for ; consecutive <= c.maxReconnects; consecutive++ {
			select {
			case <-c.closed:
				c.emit(&ClosedEvent{})
				return
			case <-time.After(c.reconnectDelay(consecutive)):
			}

			conn, err := c.dial(context.Background())
			if err != nil {
				if core.IsTerminal(err) {
					c.emit(&ClosedEvent{Err: err})
					return
				}
				c.logger.Warn("realtime reconnect failed",
					"attempt", consecutive, "max", c.maxReconnects, "error", err)
				continue
			}
			c.setConn(conn)
			if err := c.sendSessionUpdate(); err != nil {
				conn.Close()
				continue
			}
			c.logger.Info("realtime reconnected", "attempt", consecutive)
			reconnected = true
			break
		}
		if !reconnected {
			c.emit(&ClosedEvent{Err: core.NewConnectionError(
				"realtime reconnect budget spent", false, ErrReconnectExhausted)})
			return
		}
	}
}

// readLoop reads one connection until it fails, reporting whether any
// event was delivered. A keepalive goroutine pings and force-closes the
// socket when pongs stop arriving.
func (c *Client) readLoop(conn *websocket.Conn) (bool, error) {
	stop := make(chan struct{})
	defer close(stop)
	go c.keepalive(conn, stop)

	delivered := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return delivered, err
		}
		ev, err := decodeServerEvent(data)
		if err != nil {
			c.logger.Warn("realtime event dropped", "error", err)
			continue
		}
		if ev == nil {
			continue
		}
		if errEv, ok := ev.(*ErrorEvent); ok {
			c.logger.Warn("realtime backend error", "code", errEv.Code, "message", errEv.Message)
		}
		c.emit(ev)
		delivered = true
	}
}

func (c *Client) keepalive(conn *websocket.Conn, stop chan struct{}) {
	pingTicker := time.NewTicker(c.pingInterval)
	defer pingTicker.Stop()
	healthTicker := time.NewTicker(c.healthInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.closed:
			return
		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return
			}
		case <-healthTicker.C:
			if c.sincePong() > c.pongWindow {
				c.logger.Warn("realtime pong overdue, forcing reconnect",
					"since_pong", c.sincePong())
				conn.Close()
				return
			}
		}
	}
}

// reconnectDelay is strictly increasing in the attempt number, so each
// retry in a streak waits longer than the one before it.
func (c *Client) reconnectDelay(attempt int) time.Duration {
	return time.Duration(attempt) * c.reconnectBase
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
		// Consumer is gone; drop rather than block the read loop.
	}
}

// retryableClose reports whether a connection failure is worth a
// reconnect. Policy violations and provider auth closes are not.
func retryableClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.ClosePolicyViolation, 3000:
			return false
		}
	}
	return true
}
