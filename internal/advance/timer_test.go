// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package advance

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock. The timer loop keeps its real
// sampling ticker; only the derived elapsed time comes from here.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTimer(clock *fakeClock, fired *atomic.Int32) *Timer {
	return NewTimer(Options{
		OnFire:   func() { fired.Add(1) },
		Interval: time.Millisecond,
		Now:      clock.Now,
	})
}

func waitForFires(t *testing.T, fired *atomic.Int32, want int32, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fired.Load() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("%s: fires = %d, want %d", msg, fired.Load(), want)
}

// settle gives the sampling loop a chance to observe the current clock.
func settle() { time.Sleep(20 * time.Millisecond) }

func TestTimer_PauseFreezesElapsedTime(t *testing.T) {
	clock := newFakeClock()
	var fired atomic.Int32
	timer := newTestTimer(clock, &fired)
	defer timer.Stop()

	timer.Start(1000 * time.Millisecond)

	// Pause at 400ms elapsed.
	clock.Advance(400 * time.Millisecond)
	timer.Pause()

	// Wall time keeps moving to 900ms; the timer must not.
	clock.Advance(500 * time.Millisecond)
	settle()
	if fired.Load() != 0 {
		t.Fatal("timer fired while paused")
	}
	if got := timer.Remaining(); got != 600*time.Millisecond {
		t.Errorf("remaining while paused = %v, want 600ms", got)
	}

	// After resuming, the remaining 600ms must elapse in full: 500ms
	// later the timer is still pending, 100ms after that it fires.
	timer.Resume()
	clock.Advance(500 * time.Millisecond)
	settle()
	if fired.Load() != 0 {
		t.Fatal("timer fired before the remaining time elapsed")
	}

	clock.Advance(100 * time.Millisecond)
	waitForFires(t, &fired, 1, "timer did not fire after full delay")
}

func TestTimer_FiresExactlyOnce(t *testing.T) {
	clock := newFakeClock()
	var fired atomic.Int32
	timer := newTestTimer(clock, &fired)
	defer timer.Stop()

	timer.Start(100 * time.Millisecond)
	clock.Advance(10 * time.Second)
	waitForFires(t, &fired, 1, "timer did not fire")

	// Clock keeps advancing past the deadline many times over.
	clock.Advance(10 * time.Second)
	settle()
	if got := fired.Load(); got != 1 {
		t.Errorf("fires = %d, want exactly 1", got)
	}
	if timer.Running() {
		t.Error("timer still running after firing")
	}
}

func TestTimer_StopPreventsFiring(t *testing.T) {
	clock := newFakeClock()
	var fired atomic.Int32
	timer := newTestTimer(clock, &fired)

	timer.Start(100 * time.Millisecond)
	timer.Stop()
	clock.Advance(time.Second)
	settle()

	if fired.Load() != 0 {
		t.Error("stopped timer fired")
	}
	if timer.Remaining() != 0 {
		t.Errorf("remaining = %v after stop, want 0", timer.Remaining())
	}
}

func TestTimer_ResetRestartsCountdown(t *testing.T) {
	clock := newFakeClock()
	var fired atomic.Int32
	timer := newTestTimer(clock, &fired)
	defer timer.Stop()

	timer.Start(100 * time.Millisecond)
	clock.Advance(90 * time.Millisecond)
	settle()

	// Reset rewinds to a full countdown without firing.
	timer.Reset()
	if got := timer.Remaining(); got != 100*time.Millisecond {
		t.Errorf("remaining after reset = %v, want 100ms", got)
	}

	clock.Advance(50 * time.Millisecond)
	settle()
	if fired.Load() != 0 {
		t.Fatal("reset timer carried over old progress")
	}

	clock.Advance(60 * time.Millisecond)
	waitForFires(t, &fired, 1, "reset timer did not fire after full delay")
}

func TestTimer_RestartDiscardsPreviousRun(t *testing.T) {
	clock := newFakeClock()
	var fired atomic.Int32
	timer := newTestTimer(clock, &fired)
	defer timer.Stop()

	timer.Start(100 * time.Millisecond)
	clock.Advance(90 * time.Millisecond)
	settle()

	// Restart rewinds: the old 90ms of progress must not count.
	timer.Start(100 * time.Millisecond)
	clock.Advance(50 * time.Millisecond)
	settle()
	if fired.Load() != 0 {
		t.Fatal("restarted timer carried over old progress")
	}

	clock.Advance(60 * time.Millisecond)
	waitForFires(t, &fired, 1, "restarted timer did not fire")
}

func TestTimer_PauseResumeWhileStoppedAreNoOps(t *testing.T) {
	clock := newFakeClock()
	var fired atomic.Int32
	timer := newTestTimer(clock, &fired)

	timer.Pause()
	timer.Resume()
	timer.Reset()

	if timer.Running() {
		t.Error("stopped timer reports running")
	}
	clock.Advance(time.Second)
	settle()
	if fired.Load() != 0 {
		t.Error("stopped timer fired")
	}
}
