// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package services

import (
	"context"
	"time"
)

// Stoppable matches the auto-advance timer's arm/halt surface.
//
// Satisfied by *advance.Timer.
type Stoppable interface {
	Start(delay time.Duration)
	Stop()
}

// AdvanceService arms the auto-advance timer while supervised and stops
// it on shutdown so no advance fires into a torn-down queue.
type AdvanceService struct {
	timer Stoppable
	delay time.Duration
}

// NewAdvanceService wraps an auto-advance timer with its configured
// dwell delay.
func NewAdvanceService(timer Stoppable, delay time.Duration) *AdvanceService {
	return &AdvanceService{timer: timer, delay: delay}
}

// Serve implements suture.Service.
func (s *AdvanceService) Serve(ctx context.Context) error {
	s.timer.Start(s.delay)
	<-ctx.Done()
	s.timer.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for supervision logs.
func (s *AdvanceService) String() string {
	return "auto-advance"
}
