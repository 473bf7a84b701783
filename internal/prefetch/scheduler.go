// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

// Package prefetch keeps a bounded look-ahead window of media resources
// warm while the user moves through the consumption queue.
//
// The scheduler owns the warmed-resource handles exclusively. After any
// Update the warmed set equals exactly the deduplicated resolved URLs of
// the first media reference of each item in the window; everything that
// falls outside is released in the same update cycle, cancelling
// in-flight loads rather than letting them complete and be discarded.
package prefetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tomtom215/livefeed/internal/logging"
	"github.com/tomtom215/livefeed/internal/metrics"
	"github.com/tomtom215/livefeed/internal/models"
)

// DefaultWindowSize is the number of upcoming items warmed ahead of the
// cursor.
const DefaultWindowSize = 3

// Warmer loads one resource ahead of need. Implementations differ per
// media class: images are fetched and decoded fully, videos get a
// metadata-only probe.
type Warmer interface {
	Warm(ctx context.Context, url string) error
}

// Resolver turns a media reference into a concrete resource URL.
type Resolver func(models.MediaRef) string

// Options configure a Scheduler.
type Options struct {
	// Images warms image media. Required.
	Images Warmer

	// Videos warms video media. Required.
	Videos Warmer

	// Resolve maps media references to resource URLs.
	// Default: the reference URL itself.
	Resolve Resolver

	// WindowSize is the default look-ahead. Default: DefaultWindowSize.
	WindowSize int

	// Limiter bounds how fast warms may start, capping concurrent
	// network usage. Optional.
	Limiter *rate.Limiter
}

// entry is one warmed (or warming) resource handle.
type entry struct {
	kind   models.MediaKind
	cancel context.CancelFunc
}

// Scheduler tracks warmed resource handles for the active window.
type Scheduler struct {
	images  Warmer
	videos  Warmer
	resolve Resolver
	window  int
	limiter *rate.Limiter

	mu     sync.Mutex
	warmed map[string]*entry
	closed bool
}

// NewScheduler creates a prefetch scheduler.
func NewScheduler(opts Options) *Scheduler {
	resolve := opts.Resolve
	if resolve == nil {
		resolve = func(ref models.MediaRef) string { return ref.URL }
	}
	window := opts.WindowSize
	if window <= 0 {
		window = DefaultWindowSize
	}

	return &Scheduler{
		images:  opts.Images,
		videos:  opts.Videos,
		resolve: resolve,
		window:  window,
		limiter: opts.Limiter,
		warmed:  make(map[string]*entry),
	}
}

// Update recomputes the target window and reconciles the warmed set.
// Idempotent; callable on every queue mutation. Re-entrant-safe: a URL
// already warming is never started twice.
func (s *Scheduler) Update(items []models.QueueItem, cursor, windowSize int) {
	if windowSize <= 0 {
		windowSize = s.window
	}

	// Target window: items at [cursor+1, cursor+1+windowSize), clipped.
	target := make(map[string]models.MediaKind)
	start := cursor + 1
	if start < 0 {
		start = 0
	}
	for i := start; i < start+windowSize && i < len(items); i++ {
		ref, ok := items[i].FirstMedia()
		if !ok {
			continue
		}
		url := s.resolve(ref)
		if url == "" {
			continue
		}
		if _, dup := target[url]; dup {
			continue
		}
		target[url] = ref.Kind
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	// Release everything outside the new window, cancelling in-flight
	// loads eagerly for both media classes.
	for url, e := range s.warmed {
		if _, keep := target[url]; keep {
			continue
		}
		e.cancel()
		delete(s.warmed, url)
		metrics.PrefetchReleasesTotal.Inc()
	}

	// Start loading whatever the window needs that is not already
	// warmed or warming.
	for url, kind := range target {
		if _, exists := s.warmed[url]; exists {
			continue
		}

		warmer := s.warmerFor(kind)
		if warmer == nil {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		e := &entry{kind: kind, cancel: cancel}
		s.warmed[url] = e

		metrics.PrefetchWarmsTotal.WithLabelValues(string(kind)).Inc()
		go s.warm(ctx, warmer, url, kind, e)
	}

	metrics.PrefetchWarmedResources.Set(float64(len(s.warmed)))
}

// warmerFor picks the warming strategy for a media class.
func (s *Scheduler) warmerFor(kind models.MediaKind) Warmer {
	switch kind {
	case models.MediaKindVideo:
		return s.videos
	default:
		return s.images
	}
}

// warm runs one warm attempt. A failed warm is evicted from the warmed
// set so a later pass may retry it; it is not retried automatically.
func (s *Scheduler) warm(ctx context.Context, warmer Warmer, url string, kind models.MediaKind, e *entry) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return // released while queued
		}
	}

	err := warmer.Warm(ctx, url)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		return // released mid-flight; eviction already happened
	}

	metrics.PrefetchWarmFailures.WithLabelValues(string(kind)).Inc()
	logging.Debug().Err(err).Str("url", url).Str("kind", string(kind)).Msg("prefetch warm failed")

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.warmed[url]; ok && current == e {
		delete(s.warmed, url)
		metrics.PrefetchWarmedResources.Set(float64(len(s.warmed)))
	}
}

// WarmedURLs returns the URLs currently tracked as warmed or warming.
func (s *Scheduler) WarmedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.warmed))
	for url := range s.warmed {
		out = append(out, url)
	}
	return out
}

// Close releases all warmed resources unconditionally. Further Update
// calls are no-ops.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for url, e := range s.warmed {
		e.cancel()
		delete(s.warmed, url)
		metrics.PrefetchReleasesTotal.Inc()
	}
	metrics.PrefetchWarmedResources.Set(0)
}
