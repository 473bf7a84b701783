// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

// Package transport abstracts the bidirectional push channel used by the
// feed managers.
//
// A Dialer opens one Conn per subscription; the feed manager owns the Conn
// lifecycle and decides, from the close code, whether a closure is fatal
// (policy rejection, capacity limit) or transient and retryable.
package transport

import (
	"context"
	"errors"
	"net/url"

	"github.com/gorilla/websocket"
)

// Close codes the remote feed uses to reject a subscription permanently.
// A manager receiving one of these surfaces failed and never retries.
const (
	// ClosePolicyRejected indicates the subscription was rejected by
	// server policy (RFC 6455 policy violation).
	ClosePolicyRejected = websocket.ClosePolicyViolation // 1008

	// CloseTooManyConnections indicates the server refused the connection
	// due to a per-client concurrent connection limit.
	CloseTooManyConnections = 4429
)

// ErrConnClosed is returned by ReadMessage after Close has been called.
var ErrConnClosed = errors.New("transport: connection closed")

// Conn is a single established push connection.
//
// ReadMessage blocks until the next payload arrives or the connection
// dies. Implementations must unblock any pending read when Close is
// called, so the owning manager can tear down synchronously.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a push connection for a normalized set of subscription
// parameters, expressed as a query string.
type Dialer interface {
	Dial(ctx context.Context, query url.Values) (Conn, error)
}

// CloseCode extracts the close code from a read error.
// Returns 0 and false when the error does not carry a close frame
// (network drops, timeouts, local closure).
func CloseCode(err error) (int, bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}

// IsFatalClose reports whether a read error carries a close code the
// manager must never retry.
func IsFatalClose(err error) bool {
	code, ok := CloseCode(err)
	if !ok {
		return false
	}
	return code == ClosePolicyRejected || code == CloseTooManyConnections
}
