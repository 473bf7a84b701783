// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

// Package main is the entry point for the Livefeed daemon.
//
// Livefeed is a resilient streaming client that maintains push
// subscriptions to a real-time content feed, keeps a local consumption
// queue of incoming items, warms upcoming media ahead of the user's
// position, and exposes a local HTTP API to drive it all.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//  1. Configuration: layered settings via Koanf v2 (defaults, YAML, env)
//  2. Storage: BadgerDB for the durable viewed-set
//  3. Consumption queue: paged history plus live pushes, with smart sort
//  4. Prefetch scheduler: bounded look-ahead media warming
//  5. Feed managers: one per subscription (map viewport, channel filters)
//  6. Auto-advance timer: optional hands-free queue progression
//  7. HTTP server: queue navigation, status, health and metrics
//
// All long-running components run under a suture supervision tree and
// shut down gracefully on SIGINT/SIGTERM.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (LIVEFEED_ prefix)
//   - Config file (config.yaml, or LIVEFEED_CONFIG_PATH)
//   - Built-in defaults
//
// # Example Usage
//
// Viewport-scoped feed:
//
//	export LIVEFEED_FEEDS_URL=wss://feed.example.com/stream
//	export LIVEFEED_FETCH_BASE_URL=https://feed.example.com
//	export LIVEFEED_FEEDS_MAP_ENABLED=true
//	export LIVEFEED_FEEDS_MAP_MIN_LAT=51.4
//	export LIVEFEED_FEEDS_MAP_MIN_LON=-0.2
//	export LIVEFEED_FEEDS_MAP_MAX_LAT=51.6
//	export LIVEFEED_FEEDS_MAP_MAX_LON=0.1
//	./livefeedd
//
// Channel-filtered feed with auto-advance:
//
//	export LIVEFEED_FEEDS_URL=wss://feed.example.com/stream
//	export LIVEFEED_FETCH_BASE_URL=https://feed.example.com
//	export LIVEFEED_FEEDS_FILTERS_ENABLED=true
//	export LIVEFEED_FEEDS_FILTERS_CHANNELS=news,sports
//	export LIVEFEED_ADVANCE_ENABLED=true
//	export LIVEFEED_ADVANCE_DELAY=8s
//	./livefeedd
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/time/rate"

	"github.com/tomtom215/livefeed/internal/advance"
	"github.com/tomtom215/livefeed/internal/backoff"
	"github.com/tomtom215/livefeed/internal/config"
	"github.com/tomtom215/livefeed/internal/feed"
	"github.com/tomtom215/livefeed/internal/fetch"
	"github.com/tomtom215/livefeed/internal/logging"
	"github.com/tomtom215/livefeed/internal/models"
	"github.com/tomtom215/livefeed/internal/prefetch"
	"github.com/tomtom215/livefeed/internal/queue"
	"github.com/tomtom215/livefeed/internal/server"
	"github.com/tomtom215/livefeed/internal/supervisor"
	"github.com/tomtom215/livefeed/internal/supervisor/services"
	"github.com/tomtom215/livefeed/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("Starting Livefeed daemon")

	db, err := openBadger(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open local store")
	}
	defer func() { _ = db.Close() }()

	// REST collaborator for history pages and single-item lookups.
	client := fetch.NewClient(fetch.Options{BaseURL: cfg.Fetch.BaseURL})

	q, err := queue.New(queue.Options{
		Pages:      client,
		Items:      client,
		Store:      queue.NewBadgerViewedStore(db),
		PageSize:   cfg.Queue.PageSize,
		SkipViewed: cfg.Queue.SkipViewed,
		Scoring: queue.ScoringConfig{
			DecayWindow: cfg.Queue.DecayWindow,
			// Pointers keep an operator's explicit zero distinct from
			// the package defaults.
			VideoBonus:       &cfg.Queue.VideoBonus,
			EngagementWeight: &cfg.Queue.EngagementWeight,
			EngagementScale:  cfg.Queue.EngagementScale,
		},
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize consumption queue")
	}
	if mode, err := queue.ParseSortMode(cfg.Queue.SortMode); err == nil {
		q.SetSortMode(mode)
	}

	var limiter *rate.Limiter
	if cfg.Prefetch.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Prefetch.RatePerSecond), max(cfg.Prefetch.Burst, 1))
	}
	scheduler := prefetch.NewScheduler(prefetch.Options{
		Images:     prefetch.NewImageWarmer(),
		Videos:     prefetch.NewVideoWarmer(),
		WindowSize: cfg.Prefetch.WindowSize,
		Limiter:    limiter,
	})
	defer scheduler.Close()

	// Every queue mutation recomputes the warm window.
	syncPrefetch := func() {
		snap := q.Snapshot()
		scheduler.Update(snap.Items, snap.Cursor, cfg.Prefetch.WindowSize)
	}

	queueCtl := &queueWithPrefetch{Queue: q, sync: syncPrefetch}

	// Fetch the first page of history before the feeds come up.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := q.FetchPage(ctx, 1, false); err != nil {
		logging.Warn().Err(err).Msg("Initial history fetch failed; continuing with live pushes only")
	}
	cancel()
	syncPrefetch()

	policy := backoff.Policy{
		BaseDelay:   cfg.Backoff.BaseDelay,
		CapDelay:    cfg.Backoff.CapDelay,
		MaxAttempts: cfg.Backoff.MaxAttempts,
	}
	onItem := func(item models.QueueItem) {
		queueCtl.Push(item)
	}

	slogLogger := logging.NewSlogLogger()
	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())

	var feeds []server.FeedStatus

	if cfg.Feeds.Map.Enabled {
		mgr := feed.NewManager(feed.Options{
			Name:    "location",
			Dialer:  &transport.WebSocketDialer{BaseURL: cfg.Feeds.URL},
			Backoff: policy,
			OnItem:  onItem,
		})
		mgr.SetParams(feed.BoundingBox{
			MinLat:    cfg.Feeds.Map.MinLat,
			MinLon:    cfg.Feeds.Map.MinLon,
			MaxLat:    cfg.Feeds.Map.MaxLat,
			MaxLon:    cfg.Feeds.Map.MaxLon,
			Precision: cfg.Feeds.Map.Precision,
		})
		tree.AddFeedService(services.NewFeedService("location-feed", mgr))
		feeds = append(feeds, mgr)
		logging.Info().Msg("Location feed added to supervisor tree")
	}

	if cfg.Feeds.Filters.Enabled {
		mgr := feed.NewManager(feed.Options{
			Name:    "message",
			Dialer:  &transport.WebSocketDialer{BaseURL: cfg.Feeds.URL},
			Backoff: policy,
			OnItem:  onItem,
		})
		mgr.SetParams(feed.FilterSet{Channels: cfg.Feeds.Filters.Channels})
		tree.AddFeedService(services.NewFeedService("message-feed", mgr))
		feeds = append(feeds, mgr)
		logging.Info().Msg("Message feed added to supervisor tree")
	}

	var timer *advance.Timer
	if cfg.Advance.Enabled {
		timer = advance.NewTimer(advance.Options{
			OnFire: func() {
				queueCtl.Next()
				timer.Start(cfg.Advance.Delay)
			},
		})
		tree.AddFeedService(services.NewAdvanceService(timer, cfg.Advance.Delay))
		logging.Info().Dur("delay", cfg.Advance.Delay).Msg("Auto-advance added to supervisor tree")
	}

	srv := server.New(server.Options{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Timeout: cfg.Server.Timeout,
		Queue:   queueCtl,
		Feeds:   feeds,
		Advance: advanceController(timer),
	})
	tree.AddAPIService(services.NewHTTPService(srv))

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(runCtx)

	select {
	case <-runCtx.Done():
		logging.Info().Msg("Shutdown signal received, stopping supervisor tree")
		if err := <-errCh; err != nil && err != context.Canceled {
			logging.Error().Err(err).Msg("Supervisor tree stopped with error")
		}
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logging.Fatal().Err(err).Msg("Supervisor tree failed")
		}
	}

	logging.Info().Msg("Livefeed daemon stopped")
}

// openBadger opens the durable local store, falling back to nothing: a
// broken store is fatal because the viewed-set contract requires
// persistence.
func openBadger(cfg config.StoreConfig) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, err
	}
	return badger.Open(opts)
}

// queueWithPrefetch decorates the queue so every mutation that can move
// the cursor or change membership refreshes the prefetch window.
type queueWithPrefetch struct {
	*queue.Queue
	sync func()
}

func (q *queueWithPrefetch) Next() (models.QueueItem, bool) {
	item, ok := q.Queue.Next()
	q.sync()
	return item, ok
}

func (q *queueWithPrefetch) Previous() (models.QueueItem, bool) {
	item, ok := q.Queue.Previous()
	q.sync()
	return item, ok
}

func (q *queueWithPrefetch) Push(item models.QueueItem) {
	q.Queue.Push(item)
	q.sync()
}

func (q *queueWithPrefetch) SetSortMode(mode queue.SortMode) {
	q.Queue.SetSortMode(mode)
	q.sync()
}

func (q *queueWithPrefetch) Reset() error {
	err := q.Queue.Reset()
	q.sync()
	return err
}

func (q *queueWithPrefetch) LoadMore(ctx context.Context) error {
	err := q.Queue.LoadMore(ctx)
	q.sync()
	return err
}

// advanceController adapts a possibly-nil timer to the server's
// optional interface without a typed-nil pitfall.
func advanceController(t *advance.Timer) server.AdvanceController {
	if t == nil {
		return nil
	}
	return t
}
