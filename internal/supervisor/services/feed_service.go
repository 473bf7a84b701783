// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

// Package services wraps application components as suture services.
package services

import (
	"context"
)

// Switchable matches the feed manager's enable/disable surface without
// importing the feed package.
//
// Satisfied by *feed.Manager.
type Switchable interface {
	SetEnabled(enabled bool)
}

// FeedService ties a feed manager's enablement to supervision: the feed
// is enabled while the service runs and disabled on shutdown. The
// manager handles its own reconnection internally; the supervisor only
// owns the outer lifecycle.
type FeedService struct {
	mgr  Switchable
	name string
}

// NewFeedService wraps a feed manager.
func NewFeedService(name string, mgr Switchable) *FeedService {
	return &FeedService{mgr: mgr, name: name}
}

// Serve implements suture.Service.
func (s *FeedService) Serve(ctx context.Context) error {
	s.mgr.SetEnabled(true)
	<-ctx.Done()
	s.mgr.SetEnabled(false)
	return ctx.Err()
}

// String implements fmt.Stringer for supervision logs.
func (s *FeedService) String() string {
	return s.name
}
