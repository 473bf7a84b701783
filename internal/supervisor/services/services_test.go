// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSwitchable struct {
	mu     sync.Mutex
	states []bool
}

func (f *fakeSwitchable) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, enabled)
}

func (f *fakeSwitchable) snapshot() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.states...)
}

func TestFeedService_EnablesWhileServing(t *testing.T) {
	mgr := &fakeSwitchable{}
	svc := NewFeedService("location-feed", mgr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(mgr.snapshot()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}

	states := mgr.snapshot()
	if len(states) != 2 || states[0] != true || states[1] != false {
		t.Errorf("enable sequence = %v, want [true false]", states)
	}
}

type fakeHTTPServer struct {
	started   chan struct{}
	stop      chan error
	shutdowns int
	mu        sync.Mutex
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{started: make(chan struct{}), stop: make(chan error, 1)}
}

func (f *fakeHTTPServer) Start() error {
	close(f.started)
	return <-f.stop
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.mu.Lock()
	f.shutdowns++
	f.mu.Unlock()
	f.stop <- nil
	return nil
}

func TestHTTPService_ShutsDownOnCancel(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPService(srv)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop after cancel")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", srv.shutdowns)
	}
}

func TestHTTPService_PropagatesListenerFailure(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPService(srv)

	listenerErr := errors.New("bind: address already in use")
	go func() {
		<-srv.started
		srv.stop <- listenerErr
	}()

	err := svc.Serve(context.Background())
	if !errors.Is(err, listenerErr) {
		t.Errorf("Serve returned %v, want listener error", err)
	}
}

type fakeTimer struct {
	mu     sync.Mutex
	starts []time.Duration
	stops  int
}

func (f *fakeTimer) Start(delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, delay)
}

func (f *fakeTimer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func TestAdvanceService_ArmsAndStops(t *testing.T) {
	timer := &fakeTimer{}
	svc := NewAdvanceService(timer, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		timer.mu.Lock()
		n := len(timer.starts)
		timer.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	timer.mu.Lock()
	defer timer.mu.Unlock()
	if len(timer.starts) != 1 || timer.starts[0] != 5*time.Second {
		t.Errorf("starts = %v, want [5s]", timer.starts)
	}
	if timer.stops != 1 {
		t.Errorf("stops = %d, want 1", timer.stops)
	}
}
