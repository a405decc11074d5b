// Package server manages individual WebSocket subscribers, handling the read
// pump, keepalive pings, rate limiting, and lifecycle control for each
// connection.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/ssechat/internal/hub"
)

const (
	// pongWait is how long to wait for a pong before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = 54 * time.Second

	// closeGracePeriod is how long the server waits for the peer to answer
	// a close frame at shutdown.
	closeGracePeriod = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Client is one WebSocket connection subscribed to the hub. Published
// messages are written as text frames; inbound text frames are ingested the
// same way as GET /chat.
type Client struct {
	conn         *websocket.Conn
	hub          *hub.Hub
	addr         string
	rateLimiter  *rate.Limiter
	rateLimit    RateLimitConfig
	writeTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a Client for conn using the active configuration.
func NewClient(conn *websocket.Conn, h *hub.Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil && cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:         conn,
		hub:          h,
		addr:         addr,
		rateLimiter:  newRateLimiter(cfg.RateLimit),
		rateLimit:    cfg.RateLimit,
		writeTimeout: cfg.WriteTimeout,
		done:         make(chan struct{}),
	}
}

// WebSocket serves GET /ws. It upgrades the connection, subscribes it to the
// hub and blocks until the connection ends.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		slog.Warn("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, h.hub, r.RemoteAddr)
	id := h.hub.Subscribe(client.deliver)
	slog.Info("ws: client connected", "remote", client.addr, "handle", id)

	go client.keepalive()
	client.readPump()

	h.hub.Unsubscribe(id)
	client.stop()
	client.closeConnection()
	slog.Info("ws: client disconnected", "remote", client.addr, "handle", id)
}

// deliver is the hub callback. A failed write closes the connection so that
// the read pump returns and the handler cleans up.
func (c *Client) deliver(msg hub.Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.closeConnection()
		return fmt.Errorf("ws: set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg.Text)); err != nil {
		c.closeConnection()
		return fmt.Errorf("ws: write: %w", err)
	}
	return nil
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Debug("ws: set read deadline", "remote", c.addr, "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs why the read loop ended.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("ws: message exceeded size limit", "remote", c.addr, "limit", currentConfig().MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		slog.Debug("ws: client closed connection", "remote", c.addr, "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		slog.Debug("ws: connection closed", "remote", c.addr, "err", err)
	default:
		slog.Warn("ws: read error", "remote", c.addr, "err", err)
	}
}

// checkRateLimit reports whether the next inbound message may be processed.
func (c *Client) checkRateLimit() bool {
	if allow(c.rateLimiter) {
		return true
	}
	slog.Warn("ws: rate limit exceeded, discarding message",
		"remote", c.addr,
		"burst", c.rateLimit.Burst,
		"interval", c.rateLimit.RefillInterval)
	return false
}

// processMessage trims an inbound frame and publishes it when non-empty.
func (c *Client) processMessage(raw []byte) bool {
	text := trimMessage(string(raw))
	if text == "" {
		return false
	}
	delivered := c.hub.Publish(hub.Message{Text: text})
	slog.Debug("ws: message published", "remote", c.addr, "bytes", len(text), "delivered", delivered)
	return true
}

func (c *Client) readPump() {
	c.setupReadConnection()

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !c.checkRateLimit() {
			continue
		}
		c.processMessage(raw)
	}
}

// keepalive pings the peer every pingPeriod and, when the hub closes, sends
// a close frame and gives the peer closeGracePeriod to answer it.
func (c *Client) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case <-c.hub.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout)); err != nil {
				c.closeConnection()
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(closeGracePeriod))
			return

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				slog.Debug("ws: ping failed", "remote", c.addr, "err", err)
				c.closeConnection()
				return
			}
		}
	}
}

func (c *Client) stop() {
	c.closeOnce.Do(func() { close(c.done) })
}

// closeConnection closes the connection, ignoring errors from a connection
// that is already gone.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		slog.Debug("ws: close connection", "remote", c.addr, "err", err)
	}
}
