// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package services

import (
	"context"
	"time"
)

// HTTPServer matches *server.Server without importing the server
// package.
type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// shutdownGrace bounds the drain of in-flight requests after the
// supervisor cancels the service.
const shutdownGrace = 10 * time.Second

// HTTPService runs the HTTP server under supervision.
type HTTPService struct {
	srv  HTTPServer
	name string
}

// NewHTTPService wraps an HTTP server.
func NewHTTPService(srv HTTPServer) *HTTPService {
	return &HTTPService{srv: srv, name: "http-server"}
}

// Serve implements suture.Service. It returns the listener error if the
// server fails on its own, or ctx.Err() after a supervised shutdown.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return ctx.Err()
}

// String implements fmt.Stringer for supervision logs.
func (s *HTTPService) String() string {
	return s.name
}
