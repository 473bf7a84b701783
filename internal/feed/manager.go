// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package feed

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/livefeed/internal/backoff"
	"github.com/tomtom215/livefeed/internal/logging"
	"github.com/tomtom215/livefeed/internal/metrics"
	"github.com/tomtom215/livefeed/internal/models"
	"github.com/tomtom215/livefeed/internal/transport"
)

// ItemFunc receives each pushed item as it arrives.
// Called from the manager's read goroutine; implementations must be
// safe to call concurrently with queue operations.
type ItemFunc func(models.QueueItem)

// Options configure one feed manager instance.
type Options struct {
	// Name identifies the feed in logs and metrics, e.g. "location", "message".
	Name string

	// Dialer opens the push transport for a subscription.
	Dialer transport.Dialer

	// Backoff is the retry policy. Zero value means backoff.Default().
	Backoff backoff.Policy

	// OnItem receives decoded items. Optional.
	OnItem ItemFunc
}

// Manager owns one logical push-connection lifecycle: connect, receive,
// classify closures, schedule reconnects and expose status.
//
// State machine (see State):
//
//	disconnected -> connecting        when enabled and params present
//	connecting   -> connected         on transport open; retry attempt resets to 0
//	connecting/connected -> failed    on fatal close code, or retry budget exhausted
//	connecting/connected -> disconnected
//	                                  on self-initiated close (disable, param
//	                                  change, Close) with no retry, or on a
//	                                  transient closure with a reconnect
//	                                  scheduled after the backoff delay
//
// Closure classification uses a generation counter rather than an
// out-of-band "intentional close" flag: every self-initiated teardown
// bumps the generation, and any event carrying a stale generation is
// ignored. A stale reconnect timer can therefore never resurrect a
// subscription that no longer applies.
//
// Two independent instances exist in the application (location feed,
// message feed) sharing this implementation; there is no ordering
// relationship between them.
type Manager struct {
	name   string
	id     string
	dialer transport.Dialer
	policy backoff.Policy
	onItem ItemFunc
	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	enabled    bool
	params     Params
	attempt    int
	gen        uint64
	conn       transport.Conn
	retryTimer *time.Timer
	dialCancel context.CancelFunc
	lastSeen   time.Time
	received   uint64
}

// NewManager creates a feed manager. It starts disconnected; nothing
// dials until the manager is enabled and has subscription parameters.
func NewManager(opts Options) *Manager {
	policy := opts.Backoff
	if policy == (backoff.Policy{}) {
		policy = backoff.Default()
	}

	id := uuid.NewString()
	m := &Manager{
		name:   opts.Name,
		id:     id,
		dialer: opts.Dialer,
		policy: policy,
		onItem: opts.OnItem,
		state:  StateDisconnected,
		logger: logging.With().Str("component", "feed").Str("feed", opts.Name).Str("instance", id).Logger(),
	}
	metrics.FeedConnectionState.WithLabelValues(m.name).Set(metrics.ConnectionStateValue(string(StateDisconnected)))
	return m
}

// Name returns the feed name given at construction.
func (m *Manager) Name() string {
	return m.name
}

// Status returns the current connection state.
func (m *Manager) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Received returns the monotonically increasing count of items received.
func (m *Manager) Received() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

// LastSeen returns the time of the last message (item or heartbeat)
// received on the transport. Zero until the first message arrives.
func (m *Manager) LastSeen() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeen
}

// Attempt returns the current retry attempt count.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// SetEnabled turns the feed on or off. Disabling tears down the
// connection, cancels any pending reconnect and resets the retry state;
// re-enabling a failed manager starts fresh.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enabled == enabled {
		return
	}
	m.enabled = enabled

	if !enabled {
		m.teardownLocked()
		return
	}
	m.maybeConnectLocked()
}

// SetParams replaces the subscription parameters. Params whose normalized
// key matches the current one are a no-op; a genuinely new key is treated
// as an explicit teardown followed immediately by a fresh connection
// attempt (pending retries cancelled, retry state reset).
func (m *Manager) SetParams(p Params) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p != nil && m.params != nil && p.Key() == m.params.Key() {
		return
	}

	m.params = p
	m.teardownLocked()
	m.maybeConnectLocked()
}

// Close tears the manager down: the transport is closed, pending
// reconnects are cancelled and no retry fires. The manager can be reused
// by calling SetEnabled(true) again.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.teardownLocked()
	return nil
}

// teardownLocked performs a self-initiated close: bumps the generation so
// in-flight dials, read loops and scheduled retries become stale, cancels
// the pending retry timer, closes the transport and resets retry state.
// Must be called with mu held.
func (m *Manager) teardownLocked() {
	m.gen++

	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	if m.conn != nil {
		// Close unblocks the read loop; its error carries a stale
		// generation and is discarded.
		conn := m.conn
		m.conn = nil
		go func() {
			if err := conn.Close(); err != nil {
				m.logger.Debug().Err(err).Msg("transport close")
			}
		}()
	}

	m.attempt = 0
	m.setStateLocked(StateDisconnected)
}

// maybeConnectLocked starts a dial if the manager is enabled, has params,
// and no transport is currently connecting or connected for this
// instance. Must be called with mu held.
func (m *Manager) maybeConnectLocked() {
	if !m.enabled || m.params == nil {
		return
	}
	// Duplicate-connection guard: one underlying transport at a time.
	if m.state == StateConnecting || m.state == StateConnected || m.conn != nil {
		return
	}

	m.setStateLocked(StateConnecting)
	go m.connect(m.gen, m.params)
}

// connect dials the transport and, on success, runs the read loop.
// gen is the generation this dial belongs to; if a self-initiated
// teardown happens while the dial is in flight, the result is discarded.
func (m *Manager) connect(gen uint64, params Params) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		cancel()
		return
	}
	m.dialCancel = cancel
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx, params.Query())

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		cancel()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.dialCancel = nil

	if err != nil {
		m.logger.Warn().Err(err).Msg("dial failed")
		m.handleClosureLocked(err)
		m.mu.Unlock()
		cancel()
		return
	}

	m.conn = conn
	m.attempt = 0
	m.setStateLocked(StateConnected)
	m.logger.Info().Str("key", params.Key()).Msg("feed connected")
	m.mu.Unlock()

	m.readLoop(gen, conn)
	cancel()
}

// readLoop processes transport messages in delivery order until the
// connection dies or the manager tears down.
func (m *Manager) readLoop(gen uint64, conn transport.Conn) {
	for {
		payload, err := conn.ReadMessage(context.Background())
		if err != nil {
			m.mu.Lock()
			if gen != m.gen {
				// Self-initiated close; teardown already reset state.
				m.mu.Unlock()
				return
			}
			m.conn = nil
			m.handleClosureLocked(err)
			m.mu.Unlock()
			return
		}
		m.handlePayload(payload)
	}
}

// handleClosureLocked classifies a non-self-initiated closure and either
// surfaces failed or schedules a reconnect. Must be called with mu held.
func (m *Manager) handleClosureLocked(err error) {
	if transport.IsFatalClose(err) {
		code, _ := transport.CloseCode(err)
		m.logger.Error().Err(err).Int("code", code).Msg("fatal close, not retrying")
		m.setStateLocked(StateFailed)
		return
	}

	m.attempt++
	if m.policy.IsExhausted(m.attempt) {
		// Clamp so the exposed count never exceeds the budget.
		m.attempt = m.policy.MaxAttempts
		m.logger.Error().Int("attempts", m.attempt).Msg("retry budget exhausted")
		m.setStateLocked(StateFailed)
		return
	}

	m.setStateLocked(StateDisconnected)
	delay := m.policy.NextDelay(m.attempt)
	gen := m.gen

	metrics.FeedReconnectsTotal.WithLabelValues(m.name).Inc()
	m.logger.Warn().Err(err).Int("attempt", m.attempt).Dur("delay", delay).Msg("transient closure, reconnect scheduled")

	m.retryTimer = time.AfterFunc(delay, func() {
		m.retry(gen)
	})
}

// retry fires a scheduled reconnect unless it has gone stale.
func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}
	m.retryTimer = nil

	if !m.enabled || m.params == nil {
		return
	}
	if m.state == StateConnecting || m.state == StateConnected || m.conn != nil {
		return
	}

	m.setStateLocked(StateConnecting)
	go m.connect(m.gen, m.params)
}

// handlePayload decodes one transport payload and routes it. Malformed
// payloads are logged and dropped; they never affect connection state.
func (m *Manager) handlePayload(payload []byte) {
	env, err := models.DecodeEnvelope(payload)
	if err != nil {
		metrics.FeedPayloadsDropped.WithLabelValues(m.name).Inc()
		m.logger.Warn().Err(err).Msg("dropping malformed push payload")
		return
	}

	switch env.Type {
	case models.MessageTypeHeartbeat:
		m.mu.Lock()
		m.lastSeen = heartbeatTime(env.Timestamp)
		m.mu.Unlock()
		metrics.FeedHeartbeatsReceived.WithLabelValues(m.name).Inc()

	case models.MessageTypeItem:
		item, err := env.Item()
		if err != nil {
			metrics.FeedPayloadsDropped.WithLabelValues(m.name).Inc()
			m.logger.Warn().Err(err).Msg("dropping malformed item payload")
			return
		}

		m.mu.Lock()
		m.received++
		m.lastSeen = time.Now()
		onItem := m.onItem
		m.mu.Unlock()

		metrics.FeedItemsReceived.WithLabelValues(m.name).Inc()
		if onItem != nil {
			onItem(item)
		}
	}
}

// setStateLocked transitions the visible state. Must be called with mu held.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug().Str("from", string(m.state)).Str("to", string(s)).Msg("state transition")
	m.state = s
	metrics.FeedConnectionState.WithLabelValues(m.name).Set(metrics.ConnectionStateValue(string(s)))
}

// heartbeatTime prefers the server timestamp and falls back to local time.
func heartbeatTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}
