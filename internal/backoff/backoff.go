// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

// Package backoff computes reconnect delays for the feed managers.
//
// The policy is pure state: given an attempt number it returns the same
// delay every time, so tests never need timers to exercise it. Both feed
// instances (location, message) share the same defaults.
package backoff

import "time"

// Defaults shared by both feed instances.
const (
	DefaultBaseDelay   = 1 * time.Second
	DefaultCapDelay    = 30 * time.Second
	DefaultMaxAttempts = 10
)

// Policy computes exponential backoff with a cap and an attempt budget.
//
//	NextDelay(n) = min(BaseDelay * 2^n, CapDelay)
//	IsExhausted(n) = n > MaxAttempts
//
// A zero Policy is not usable; construct with Default() or fill all fields.
type Policy struct {
	// BaseDelay is the delay for attempt 0.
	BaseDelay time.Duration

	// CapDelay bounds the computed delay.
	CapDelay time.Duration

	// MaxAttempts is the number of retries allowed before the manager
	// surfaces failed. Attempt numbers above this are exhausted.
	MaxAttempts int
}

// Default returns the policy used by both feed instances:
// 1s base, 30s cap, 10 attempts.
func Default() Policy {
	return Policy{
		BaseDelay:   DefaultBaseDelay,
		CapDelay:    DefaultCapDelay,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// NextDelay returns the reconnect delay for the given attempt number.
// Negative attempts are treated as attempt 0. The result never exceeds
// CapDelay, including for attempt numbers large enough to overflow a
// naive shift.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Past this many doublings the delay is certainly capped; guard the
	// shift rather than computing an overflowed duration.
	if attempt >= 63 || p.BaseDelay<<uint(attempt) < p.BaseDelay {
		return p.CapDelay
	}

	delay := p.BaseDelay << uint(attempt)
	if delay > p.CapDelay {
		return p.CapDelay
	}
	return delay
}

// IsExhausted reports whether the attempt budget is spent.
// The boundary is exclusive: attempt MaxAttempts is still allowed,
// MaxAttempts+1 is exhausted.
func (p Policy) IsExhausted(attempt int) bool {
	return attempt > p.MaxAttempts
}
