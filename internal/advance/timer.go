// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

// Package advance implements the auto-advance timer that moves the
// consumption queue forward after a configured dwell time.
//
// The timer never counts down by decrementing state. It stores the
// instant it was started (or resumed) and derives the remaining time
// from the clock on every sampling tick, so drift from delayed ticks
// cannot accumulate. Pausing folds the elapsed time into an accumulator
// and freezes it; resuming restamps the baseline.
package advance

import (
	"sync"
	"time"
)

// DefaultInterval is the sampling resolution of the timer.
const DefaultInterval = 100 * time.Millisecond

// Timer fires a callback once after a configured delay of unpaused
// time. A fired or stopped timer stays inert until Start is called
// again.
type Timer struct {
	onFire   func()
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	delay    time.Duration
	baseline time.Time     // start or resume instant
	elapsed  time.Duration // accumulated across pauses
	running  bool
	paused   bool
	fired    bool
	stop     chan struct{}
}

// Options configure a Timer.
type Options struct {
	// OnFire runs exactly once when the delay elapses. Required.
	OnFire func()

	// Interval is the sampling resolution. Default: DefaultInterval.
	Interval time.Duration

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time
}

// NewTimer creates a stopped timer.
func NewTimer(opts Options) *Timer {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Timer{onFire: opts.OnFire, interval: interval, now: now}
}

// Start arms the timer for the given delay, discarding any previous
// run. A non-positive delay leaves the timer stopped.
func (t *Timer) Start(delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	if delay <= 0 {
		return
	}

	t.delay = delay
	t.baseline = t.now()
	t.elapsed = 0
	t.running = true
	t.paused = false
	t.fired = false
	t.stop = make(chan struct{})

	go t.loop(t.stop)
}

// Pause freezes the elapsed time. A paused timer never fires.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running || t.paused {
		return
	}
	t.elapsed += t.now().Sub(t.baseline)
	t.paused = true
}

// Resume continues from the frozen elapsed time.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running || !t.paused {
		return
	}
	t.baseline = t.now()
	t.paused = false
}

// Reset restarts the countdown from zero with the current delay,
// without firing. A timer that was never started has no delay and
// stays stopped.
func (t *Timer) Reset() {
	t.mu.Lock()
	delay := t.delay
	t.mu.Unlock()
	t.Start(delay)
}

// Stop halts the timer without firing. Remaining drops to zero; the
// timer stays inert until Start is called again.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Remaining reports the unpaused time left before the timer fires.
// Zero when the timer is not running.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return 0
	}
	left := t.delay - t.elapsedLocked()
	if left < 0 {
		return 0
	}
	return left
}

// Running reports whether the timer is armed, paused or not.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.running = false
	t.paused = false
}

func (t *Timer) elapsedLocked() time.Duration {
	if t.paused {
		return t.elapsed
	}
	return t.elapsed + t.now().Sub(t.baseline)
}

// loop samples the derived elapsed time until the delay is reached or
// the run is stopped. The stop channel belongs to one run; a restart
// closes it and starts a fresh loop.
func (t *Timer) loop(stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if t.tick(stop) {
				return
			}
		}
	}
}

// tick checks the elapsed time once, firing at most once per run.
// Returns true when the loop should exit.
func (t *Timer) tick(stop chan struct{}) bool {
	t.mu.Lock()
	if t.stop != stop { // superseded by a restart or reset
		t.mu.Unlock()
		return true
	}
	if t.paused || t.fired {
		t.mu.Unlock()
		return false
	}
	if t.elapsedLocked() < t.delay {
		t.mu.Unlock()
		return false
	}

	t.fired = true
	t.stopLocked()
	onFire := t.onFire
	t.mu.Unlock()

	if onFire != nil {
		onFire()
	}
	return true
}
