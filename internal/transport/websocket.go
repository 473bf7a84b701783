// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/livefeed/internal/logging"
)

// WebSocketDialer dials the remote push endpoint over WebSocket.
//
// The endpoint is configured with an http(s) URL and converted to ws(s)
// at dial time. Subscription parameters are carried as query parameters,
// alongside any session token header injected by the caller (explicit
// dependency, never read from ambient globals).
type WebSocketDialer struct {
	// BaseURL is the push endpoint, e.g. "https://api.example.com/stream/map".
	BaseURL string

	// Header carries authentication headers for the handshake.
	Header http.Header

	// HandshakeTimeout bounds the dial. Default: 10s.
	HandshakeTimeout time.Duration

	// ReadTimeout bounds the gap between received frames. Heartbeats are
	// expected to arrive well within this. Default: 60s.
	ReadTimeout time.Duration

	// PingInterval is the keepalive ping cadence. Default: 30s.
	PingInterval time.Duration
}

// Dial opens a WebSocket connection for the given subscription query.
func (d *WebSocketDialer) Dial(ctx context.Context, query url.Values) (Conn, error) {
	wsURL, err := d.buildURL(query)
	if err != nil {
		return nil, fmt.Errorf("build websocket url: %w", err)
	}

	handshake := d.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshake,
		// Enable compression for large payloads
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, d.Header)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &wsConn{
		conn:         conn,
		readTimeout:  d.ReadTimeout,
		pingInterval: d.PingInterval,
		stopChan:     make(chan struct{}),
	}
	if c.readTimeout <= 0 {
		c.readTimeout = 60 * time.Second
	}
	if c.pingInterval <= 0 {
		c.pingInterval = 30 * time.Second
	}

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// buildURL converts the configured http(s) base URL to ws(s) and attaches
// the subscription query.
func (d *WebSocketDialer) buildURL(query url.Values) (string, error) {
	parsed, err := url.Parse(d.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
		// Already a websocket URL
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	q := parsed.Query()
	for key, values := range query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

// wsConn wraps a gorilla websocket connection with keepalive pings and a
// close that unblocks pending reads.
type wsConn struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	pingInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

// ReadMessage returns the next payload from the connection.
func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrConnClosed
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		logging.Warn().Err(err).Msg("websocket: failed to set read deadline")
	}

	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		c.mu.Lock()
		closed = c.closed
		c.mu.Unlock()
		if closed {
			return nil, ErrConnClosed
		}
		return nil, err
	}
	return payload, nil
}

// pingLoop sends keepalive pings until the connection closes.
func (c *wsConn) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logging.Debug().Err(err).Msg("websocket: ping failed")
				return
			}
		}
	}
}

// Close sends a close frame, tears the connection down and unblocks any
// pending ReadMessage. Safe for concurrent calls.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.stopChan)

		deadline := time.Now().Add(1 * time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			logging.Debug().Err(err).Msg("websocket: failed to send close message")
		}
		if err := c.conn.Close(); err != nil {
			logging.Debug().Err(err).Msg("websocket: failed to close connection")
		}

		c.wg.Wait()
	})
	return nil
}
