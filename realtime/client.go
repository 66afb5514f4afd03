// Package realtime maintains the websocket channel to the backend. The
// channel is a receive-mostly feed: the backend pushes order and
// reservation updates, the client surfaces them on a channel and
// reconnects with a bounded backoff when the connection drops.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clubsincronica/clubd/config"
)

// ErrClosed is returned when an operation runs against a closed client.
var ErrClosed = errors.New("realtime client closed")

// Message is one inbound frame from the backend.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Client is a websocket client with automatic reconnection. Incoming
// frames are delivered on Messages; when the reconnect budget is
// exhausted the channel is closed and Err reports the last failure.
type Client struct {
	cfg    config.RealtimeConfig
	token  string
	logger *slog.Logger

	messages chan Message
	done     chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	lastErr error
	closed  bool
}

// NewClient creates a realtime client. token is appended to the dial
// URL as a query parameter; the backend rejects unauthenticated dials.
func NewClient(cfg config.RealtimeConfig, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		token:    token,
		logger:   logger,
		messages: make(chan Message, 64),
		done:     make(chan struct{}),
	}
}

// Messages returns the inbound message channel. It is closed when the
// client is closed or the reconnect budget runs out.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Err returns the last connection error, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect dials the backend and starts the read loop. It returns once
// the first connection is established; reconnection after that happens
// in the background.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(ctx, conn)
	return nil
}

// Send writes a JSON frame to the backend.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if conn == nil {
		return errors.New("not connected")
	}
	return conn.WriteJSON(v)
}

// Close tears down the connection and stops reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		// Best-effort close handshake before dropping the socket.
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		return conn.Close()
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime URL: %w", err)
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (HTTP %d)", c.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()

			select {
			case <-c.done:
				close(c.messages)
				return
			case <-ctx.Done():
				c.setErr(ctx.Err())
				close(c.messages)
				return
			default:
			}

			c.logger.Warn("Realtime connection lost", "error", err)
			next, rerr := c.reconnect(ctx)
			if rerr != nil {
				c.setErr(rerr)
				close(c.messages)
				return
			}
			conn = next
			continue
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			conn.Close()
			close(c.messages)
			return
		case <-ctx.Done():
			conn.Close()
			c.setErr(ctx.Err())
			close(c.messages)
			return
		}
	}
}

// reconnect retries the dial up to the configured attempt budget with a
// delay that doubles per attempt, capped at ReconnectDelayMax.
func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, error) {
	delay := c.cfg.ReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		conn, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				conn.Close()
				return nil, ErrClosed
			}
			c.conn = conn
			c.mu.Unlock()
			c.logger.Info("Realtime reconnected", "attempt", attempt)
			return conn, nil
		}
		lastErr = err
		c.logger.Warn("Realtime reconnect failed",
			"attempt", attempt,
			"max_attempts", c.cfg.ReconnectAttempts,
			"error", err)

		delay *= 2
		if c.cfg.ReconnectDelayMax > 0 && delay > c.cfg.ReconnectDelayMax {
			delay = c.cfg.ReconnectDelayMax
		}
	}

	if lastErr == nil {
		lastErr = errors.New("reconnect disabled")
	}
	return nil, fmt.Errorf("reconnect attempts exhausted: %w", lastErr)
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
