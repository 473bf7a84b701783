// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package prefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultWarmTimeout bounds a single warm attempt end to end.
const defaultWarmTimeout = 15 * time.Second

// ImageWarmer fetches an image resource in full so it lands warm in the
// HTTP cache before the user reaches it.
type ImageWarmer struct {
	Client *http.Client
}

// NewImageWarmer creates an image warmer with a bounded client.
func NewImageWarmer() *ImageWarmer {
	return &ImageWarmer{Client: &http.Client{Timeout: defaultWarmTimeout}}
}

// Warm downloads the image body completely. The payload itself is
// discarded; the transfer populates intermediate caches.
func (w *ImageWarmer) Warm(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build image request: %w", err)
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("read image body: %w", err)
	}
	return nil
}

// VideoWarmer probes video metadata only. Videos are too large to pull
// ahead of time, so warming is limited to headers plus the first bytes
// of the container, enough for a player to start without a cold probe.
type VideoWarmer struct {
	Client *http.Client
}

// NewVideoWarmer creates a video warmer with a bounded client.
func NewVideoWarmer() *VideoWarmer {
	return &VideoWarmer{Client: &http.Client{Timeout: defaultWarmTimeout}}
}

// Warm issues a HEAD probe, falling back to a ranged GET for servers
// that reject HEAD.
func (w *VideoWarmer) Warm(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("build video probe: %w", err)
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("probe video: %w", err)
	}
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return nil
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return w.rangedProbe(ctx, url)
	default:
		return fmt.Errorf("probe video: unexpected status %d", resp.StatusCode)
	}
}

func (w *VideoWarmer) rangedProbe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build ranged probe: %w", err)
	}
	req.Header.Set("Range", "bytes=0-1023")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("ranged probe: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("ranged probe: unexpected status %d", resp.StatusCode)
	}

	_, _ = io.CopyN(io.Discard, resp.Body, 1024)
	return nil
}
