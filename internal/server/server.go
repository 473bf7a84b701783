// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

// Package server exposes the local HTTP control surface: queue
// navigation, feed status, health and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/livefeed/internal/feed"
	"github.com/tomtom215/livefeed/internal/logging"
	"github.com/tomtom215/livefeed/internal/models"
	"github.com/tomtom215/livefeed/internal/queue"
)

// QueueController is the slice of the consumption queue the API drives.
type QueueController interface {
	Snapshot() queue.Snapshot
	Next() (models.QueueItem, bool)
	Previous() (models.QueueItem, bool)
	MarkViewed(id string) error
	SetSortMode(mode queue.SortMode)
	Reset() error
	LoadMore(ctx context.Context) error
	Err() error
}

// FeedStatus is the read-only view of one feed manager.
type FeedStatus interface {
	Name() string
	Status() feed.State
	Received() uint64
	LastSeen() time.Time
	Attempt() int
}

// AdvanceController is the pause/resume surface of the auto-advance
// timer. Optional; endpoints 404 when absent.
type AdvanceController interface {
	Pause()
	Resume()
	Running() bool
	Remaining() time.Duration
}

// Options configure a Server.
type Options struct {
	Host    string
	Port    int
	Timeout time.Duration

	Queue   QueueController
	Feeds   []FeedStatus
	Advance AdvanceController
}

// Server is the HTTP API host.
type Server struct {
	opts Options
	http *http.Server
}

// New builds the server and its router.
func New(opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	s := &Server{opts: opts}
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       opts.Timeout,
		WriteTimeout:      opts.Timeout,
		IdleTimeout:       2 * opts.Timeout,
	}
	return s
}

// Router builds the chi routing tree. Exposed for httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(chimiddleware.Timeout(s.opts.Timeout))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", s.handleQueueSnapshot)
			r.Post("/next", s.handleQueueNext)
			r.Post("/previous", s.handleQueuePrevious)
			r.Post("/viewed", s.handleQueueViewed)
			r.Post("/sort", s.handleQueueSort)
			r.Post("/reset", s.handleQueueReset)
			r.Post("/more", s.handleQueueMore)
		})

		if s.opts.Advance != nil {
			r.Route("/advance", func(r chi.Router) {
				r.Post("/pause", s.handleAdvancePause)
				r.Post("/resume", s.handleAdvanceResume)
			})
		}
	})

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logging.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
