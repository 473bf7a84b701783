// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

// Package fetch is the REST collaborator client: paged history fetches
// and single-item lookups for the consumption queue. All calls go
// through a circuit breaker so a degraded backend sheds load instead of
// stacking timeouts.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/livefeed/internal/logging"
	"github.com/tomtom215/livefeed/internal/metrics"
	"github.com/tomtom215/livefeed/internal/models"
)

// ErrNotFound is returned for single-item lookups the backend answers
// with 404.
var ErrNotFound = errors.New("item not found")

const (
	defaultTimeout     = 10 * time.Second
	maxResponseBody    = 10 << 20 // 10 MiB
	breakerMaxRequests = 3
	breakerInterval    = time.Minute
	breakerTimeout     = 30 * time.Second
)

// Options configure a Client.
type Options struct {
	// BaseURL is the backend root, e.g. "https://feed.example.com".
	BaseURL string

	// HTTPClient overrides the default bounded client.
	HTTPClient *http.Client

	// BreakerName labels the circuit breaker in logs and metrics.
	// Default: "fetch-api".
	BreakerName string
}

// Client fetches queue content over HTTP. It satisfies the queue's
// PageFetcher and ItemFetcher collaborator interfaces.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
	name    string
}

// NewClient creates a fetch client with circuit breaker protection.
// The breaker opens after 5 consecutive failures and probes recovery
// after 30 seconds.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	name := opts.BreakerName
	if name == "" {
		name = "fetch-api"
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerMaxRequests,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 404 is a definitive backend answer; it must not trip the
		// breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		baseURL: opts.BaseURL,
		http:    httpClient,
		cb:      cb,
		name:    name,
	}
}

// FetchPage retrieves one page of history items. The pagination flag in
// the response is passed through untouched.
func (c *Client) FetchPage(ctx context.Context, page, pageSize int) (models.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	body, err := c.get(ctx, "page", "/api/v1/items?"+q.Encode())
	if err != nil {
		return models.Page{}, err
	}

	var result models.Page
	if err := json.Unmarshal(body, &result); err != nil {
		metrics.FetchErrors.WithLabelValues("page").Inc()
		return models.Page{}, fmt.Errorf("decode page response: %w", err)
	}
	return result, nil
}

// FetchItem retrieves a single item by id, for seeding the queue at an
// item the paged history has not reached yet.
func (c *Client) FetchItem(ctx context.Context, id string) (models.QueueItem, error) {
	body, err := c.get(ctx, "item", "/api/v1/items/"+url.PathEscape(id))
	if err != nil {
		return models.QueueItem{}, err
	}

	var item models.QueueItem
	if err := json.Unmarshal(body, &item); err != nil {
		metrics.FetchErrors.WithLabelValues("item").Inc()
		return models.QueueItem{}, fmt.Errorf("decode item response: %w", err)
	}
	return item, nil
}

// get runs one GET through the breaker and returns the raw body.
func (c *Client) get(ctx context.Context, operation, path string) ([]byte, error) {
	start := time.Now()

	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.doGet(ctx, path)
	})

	metrics.FetchDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		// Not-found is a definitive answer, not a backend failure.
		if !errors.Is(err, ErrNotFound) {
			metrics.FetchErrors.WithLabelValues(operation).Inc()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Str("operation", operation).Msg("[CIRCUIT BREAKER] Request rejected")
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
