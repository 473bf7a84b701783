// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/livefeed/internal/backoff"
	"github.com/tomtom215/livefeed/internal/models"
	"github.com/tomtom215/livefeed/internal/transport"
)

// fakeConn is a scriptable transport connection. Tests push payloads or
// errors; Close unblocks any pending read.
type fakeConn struct {
	msgs   chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		msgs:   make(chan []byte, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.msgs:
		return msg, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, transport.ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer records every dial and serves scripted results.
type fakeDialer struct {
	mu      sync.Mutex
	dials   []url.Values
	conns   []*fakeConn
	dialErr error // when set, every dial fails with this error
}

func (d *fakeDialer) Dial(_ context.Context, query url.Values) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, query)
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) dial(i int) url.Values {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[i]
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// fastPolicy keeps retries quick enough for unit tests.
func fastPolicy() backoff.Policy {
	return backoff.Policy{
		BaseDelay:   time.Millisecond,
		CapDelay:    5 * time.Millisecond,
		MaxAttempts: 10,
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func testParams() Params {
	return BoundingBox{MinLat: 40.7, MinLon: -74.0, MaxLat: 40.8, MaxLon: -73.9}
}

func itemPayload(id string) []byte {
	return []byte(fmt.Sprintf(`{"type":"item","data":{"id":%q,"timestamp":"2026-08-24T10:00:00Z"}}`, id))
}

func TestManager_ConnectsWhenEnabledWithParams(t *testing.T) {
	dialer := &fakeDialer{}
	m := NewManager(Options{Name: "location", Dialer: dialer, Backoff: fastPolicy()})
	defer m.Close()

	if m.Status() != StateDisconnected {
		t.Fatalf("initial status = %v, want disconnected", m.Status())
	}

	m.SetParams(testParams())
	if got := dialer.dialCount(); got != 0 {
		t.Fatalf("dial count before enable = %d, want 0", got)
	}

	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return m.Status() == StateConnected }, "connected")

	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
	if got := m.Attempt(); got != 0 {
		t.Errorf("attempt after connect = %d, want 0", got)
	}
}

func TestManager_DuplicateEnableIsNoOp(t *testing.T) {
	dialer := &fakeDialer{}
	m := NewManager(Options{Name: "location", Dialer: dialer, Backoff: fastPolicy()})
	defer m.Close()

	m.SetParams(testParams())
	m.SetEnabled(true)
	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return m.Status() == StateConnected }, "connected")

	time.Sleep(10 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
}

func TestManager_TransientClosuresExhaustRetryBudget(t *testing.T) {
	dialer := &fakeDialer{dialErr: errors.New("connection refused")}
	m := NewManager(Options{Name: "location", Dialer: dialer, Backoff: fastPolicy()})
	defer m.Close()

	m.SetParams(testParams())
	m.SetEnabled(true)

	// 11 consecutive transient closures with no intervening open: the
	// initial dial plus 10 retries, after which status is failed.
	waitFor(t, 2*time.Second, func() bool { return m.Status() == StateFailed }, "failed")

	if got := dialer.dialCount(); got != 11 {
		t.Errorf("dial count = %d, want 11 (initial + 10 retries)", got)
	}

	// No 12th attempt is ever scheduled.
	time.Sleep(30 * time.Millisecond)
	if got := dialer.dialCount(); got != 11 {
		t.Errorf("dial count after settling = %d, want 11", got)
	}

	// The exposed attempt count stays within the retry budget.
	if got, max := m.Attempt(), fastPolicy().MaxAttempts; got > max {
		t.Errorf("attempt after exhaustion = %d, want at most %d", got, max)
	}
}

func TestManager_FatalCloseFailsWithoutRetry(t *testing.T) {
	dialer := &fakeDialer{}
	m := NewManager(Options{Name: "location", Dialer: dialer, Backoff: fastPolicy()})
	defer m.Close()

	m.SetParams(testParams())
	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return m.Status() == StateConnected }, "connected")

	dialer.conn(0).errs <- &websocket.CloseError{Code: transport.ClosePolicyRejected, Text: "policy"}
	waitFor(t, time.Second, func() bool { return m.Status() == StateFailed }, "failed")

	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1 (fatal close never retried)", got)
	}
}

func TestManager_TooManyConnectionsIsFatal(t *testing.T) {
	dialer := &fakeDialer{}
	m := NewManager(Options{Name: "message", Dialer: dialer, Backoff: fastPolicy()})
	defer m.Close()

	m.SetParams(FilterSet{Channels: []string{"alerts"}})
	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return m.Status() == StateConnected }, "connected")

	dialer.conn(0).errs <- &websocket.CloseError{Code: transport.CloseTooManyConnections, Text: "capacity"}
	waitFor(t, time.Second, func() bool { return m.Status() == StateFailed }, "failed")

	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
}

func TestManager_TransientCloseReconnects(t *testing.T) {
	dialer := &fakeDialer{}
	m := NewManager(Options{Name: "location", Dialer: dialer, Backoff: fastPolicy()})
	defer m.Close()

	m.SetParams(testParams())
	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return m.Status() == StateConnected }, "connected")

	dialer.conn(0).errs <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "drop"}
	waitFor(t, time.Second, func() bool { return dialer.dialCount() == 2 && m.Status() == StateConnected }, "reconnected")

	if got := m.Attempt(); got != 0 {
		t.Errorf("attempt after successful reconnect = %d, want 0", got)
	}
}

func TestManager_ParamChangeReconnectsOnce(t *testing.T) {
	dialer := &fakeDialer{}
	m := NewManager(Options{Name: "location", Dialer: dialer, Backoff: fastPolicy()})
	defer m.Close()

	m.SetParams(testParams())
	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return m.Status() == StateConnected }, "connected")

	m.SetParams(BoundingBox{MinLat: 51.4, MinLon: -0.2, MaxLat: 51.6, MaxLon: 0.1})
	waitFor(t, time.Second, func() bool { return dialer.dialCount() == 2 && m.Status() == StateConnected }, "reconnected with new params")

	if !dialer.conn(0).isClosed() {
		t.Error("old transport was not closed on param change")
	}
	if got := m.Attempt(); got != 0 {
		t.Errorf("attempt after param change = %d, want 0", got)
	}

	got := dialer.dial(1).Get("bbox")
	if got != "-0.200,51.400,0.100,51.600" {
		t.Errorf("second dial bbox = %q, want new parameters", got)
	}

	// At most one connecting transition for the new parameters.
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCount(); got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}
}

func TestManager_EquivalentParamsDoNotReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	m := NewManager(Options{Name: "location", Dialer: dialer, Backoff: fastPolicy()})
	defer m.Close()

	m.SetParams(testParams())
	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return m.Status() == StateConnected }, "connected")

	// Drift below the rounding precision normalizes to the same key.
	m.SetParams(BoundingBox{MinLat: 40.7001, MinLon: -74.0002, MaxLat: 40.8001, MaxLon: -73.9002})

	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1 (sub-precision drift must not reconnect)", got)
	}
	if m.Status() != StateConnected {
		t.Errorf("status = %v, want connected", m.Status())
	}
}

func TestManager_DisableCancelsPendingReconnect(t *testing.T) {
	dialer := &fakeDialer{dialErr: errors.New("connection refused")}
	m := NewManager(Options{
		Name:   "location",
		Dialer: dialer,
		Backoff: backoff.Policy{
			BaseDelay:   50 * time.Millisecond,
			CapDelay:    time.Second,
			MaxAttempts: 10,
		},
	})
	defer m.Close()

	m.SetParams(testParams())
	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return dialer.dialCount() == 1 }, "first dial")

	// A reconnect is now pending; disabling must cancel it.
	m.SetEnabled(false)
	if m.Status() != StateDisconnected {
		t.Errorf("status after disable = %v, want disconnected", m.Status())
	}

	time.Sleep(120 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1 (stale retry must not fire)", got)
	}
}

func TestManager_ReenableAfterFailedStartsFresh(t *testing.T) {
	dialer := &fakeDialer{}
	m := NewManager(Options{Name: "location", Dialer: dialer, Backoff: fastPolicy()})
	defer m.Close()

	m.SetParams(testParams())
	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return m.Status() == StateConnected }, "connected")

	dialer.conn(0).errs <- &websocket.CloseError{Code: transport.ClosePolicyRejected, Text: "policy"}
	waitFor(t, time.Second, func() bool { return m.Status() == StateFailed }, "failed")

	m.SetEnabled(false)
	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return m.Status() == StateConnected }, "reconnected after re-enable")

	if got := dialer.dialCount(); got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}
}

func TestManager_ItemsAndHeartbeats(t *testing.T) {
	var (
		mu    sync.Mutex
		items []models.QueueItem
	)
	dialer := &fakeDialer{}
	m := NewManager(Options{
		Name:    "message",
		Dialer:  dialer,
		Backoff: fastPolicy(),
		OnItem: func(item models.QueueItem) {
			mu.Lock()
			items = append(items, item)
			mu.Unlock()
		},
	})
	defer m.Close()

	m.SetParams(FilterSet{Channels: []string{"alerts"}})
	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return m.Status() == StateConnected }, "connected")

	conn := dialer.conn(0)
	conn.msgs <- itemPayload("a1")
	conn.msgs <- []byte(`{"type":"heartbeat","timestamp":"2026-08-24T10:00:00Z"}`)
	conn.msgs <- itemPayload("a2")

	waitFor(t, time.Second, func() bool { return m.Received() == 2 }, "two items received")

	mu.Lock()
	defer mu.Unlock()
	if len(items) != 2 || items[0].ID != "a1" || items[1].ID != "a2" {
		t.Errorf("items = %+v, want a1, a2", items)
	}

	// Heartbeats update last-seen but are never forwarded.
	if m.LastSeen().IsZero() {
		t.Error("last-seen not updated")
	}
}

func TestManager_MalformedPayloadDropped(t *testing.T) {
	dialer := &fakeDialer{}
	m := NewManager(Options{Name: "message", Dialer: dialer, Backoff: fastPolicy()})
	defer m.Close()

	m.SetParams(FilterSet{Channels: []string{"alerts"}})
	m.SetEnabled(true)
	waitFor(t, time.Second, func() bool { return m.Status() == StateConnected }, "connected")

	conn := dialer.conn(0)
	conn.msgs <- []byte(`{not json`)
	conn.msgs <- []byte(`{"type":"mystery"}`)
	conn.msgs <- itemPayload("ok")

	waitFor(t, time.Second, func() bool { return m.Received() == 1 }, "valid item received")

	if m.Status() != StateConnected {
		t.Errorf("status = %v, want connected (malformed payloads must not affect state)", m.Status())
	}
}
