// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

// Package queue implements the adaptive consumption queue: an ordered
// list of playable items with a cursor, a durable viewed-set, a sort
// strategy and a skip-already-viewed navigation policy.
//
// All cursor movement funnels through Next/Previous so viewed-tracking
// and skip logic stay centralized. The queue owns the ViewedSet and its
// persisted copy exclusively; no other component mutates them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/livefeed/internal/logging"
	"github.com/tomtom215/livefeed/internal/metrics"
	"github.com/tomtom215/livefeed/internal/models"
)

// SortMode determines the derived ordering of the queue.
type SortMode string

const (
	// SortNewest preserves the fetch order (server-sorted by recency
	// descending).
	SortNewest SortMode = "newest"

	// SortSmart is a derived ordering combining recency decay, a video
	// bonus and a saturating engagement bonus. Recomputed whenever the
	// mode or the items change; the original fetch order is never
	// mutated in place.
	SortSmart SortMode = "smart"
)

// ParseSortMode validates a sort mode string.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(s) {
	case SortNewest:
		return SortNewest, nil
	case SortSmart:
		return SortSmart, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q", s)
	}
}

// PageFetcher is the paged-fetch collaborator.
type PageFetcher interface {
	FetchPage(ctx context.Context, page, pageSize int) (models.Page, error)
}

// ItemFetcher is the single-item fetch collaborator.
// Returning ErrItemNotFound is non-fatal for callers.
type ItemFetcher interface {
	FetchItem(ctx context.Context, id string) (models.QueueItem, error)
}

// ErrItemNotFound is returned by ItemFetcher implementations when the
// remote has no item with the requested id.
var ErrItemNotFound = errors.New("queue: item not found")

// ViewedStore persists the viewed-set across sessions.
// Implementations must keep Add and Clear durable: a cleared store has no
// leftover entries after reload.
type ViewedStore interface {
	Load() (map[string]struct{}, error)
	Add(id string) error
	Clear() error
}

// Options configure a Queue.
type Options struct {
	Pages PageFetcher
	Items ItemFetcher // optional; SeedAt degrades gracefully without it
	Store ViewedStore

	// PageSize for paged fetches. Default: 20.
	PageSize int

	// SkipViewed makes Next/Previous skip items already in the viewed-set.
	SkipViewed bool

	// Scoring tunes the smart sort. Unset fields take the package defaults.
	Scoring ScoringConfig
}

// Snapshot is the read-only view exposed upward to view code.
type Snapshot struct {
	Items    []models.QueueItem `json:"items"`
	Cursor   int                `json:"cursor"`
	Current  *models.QueueItem  `json:"current,omitempty"`
	SortMode SortMode           `json:"sort_mode"`
	HasMore  bool               `json:"has_more"`
}

// Queue holds the ordered item list, cursor, viewed-set and sort mode.
//
// Invariants:
//   - 0 <= cursor < len(items) whenever items is non-empty; clamped, never
//     negative, never past the end.
//   - items ordering is fully determined by sortMode; smart ordering is
//     recomputed into a new slice, fetch order is kept in fetched.
//   - a viewed id stays in the set until Reset, which clears the in-memory
//     set and the persisted copy together.
type Queue struct {
	mu sync.Mutex

	pages   PageFetcher
	singles ItemFetcher
	store   ViewedStore

	pageSize   int
	skipViewed bool
	scoring    ScoringConfig

	fetched  []models.QueueItem // original fetch order
	items    []models.QueueItem // active derived ordering
	cursor   int
	sortMode SortMode
	viewed   map[string]struct{}
	hasMore  bool
	nextPage int
	lastErr  error
}

// New creates a queue and loads the persisted viewed-set.
func New(opts Options) (*Queue, error) {
	if opts.Pages == nil {
		return nil, errors.New("queue: page fetcher is required")
	}
	if opts.Store == nil {
		return nil, errors.New("queue: viewed store is required")
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	viewed, err := opts.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load viewed set: %w", err)
	}
	if viewed == nil {
		viewed = make(map[string]struct{})
	}

	return &Queue{
		pages:      opts.Pages,
		singles:    opts.Items,
		store:      opts.Store,
		pageSize:   pageSize,
		skipViewed: opts.SkipViewed,
		scoring:    opts.Scoring.withDefaults(),
		sortMode:   SortNewest,
		viewed:     viewed,
		nextPage:   1,
	}, nil
}

// FetchPage requests one page from the collaborator and replaces or
// appends to the item list. On failure the existing items are left
// untouched and the error is surfaced; a failed refresh never clears the
// queue destructively.
func (q *Queue) FetchPage(ctx context.Context, page int, appendItems bool) error {
	result, err := q.pages.FetchPage(ctx, page, q.pageSize)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err != nil {
		q.lastErr = err
		return fmt.Errorf("fetch page %d: %w", page, err)
	}
	q.lastErr = nil

	if appendItems {
		existing := make(map[string]struct{}, len(q.fetched))
		for _, item := range q.fetched {
			existing[item.ID] = struct{}{}
		}
		for _, item := range result.Items {
			if _, dup := existing[item.ID]; dup {
				continue
			}
			q.fetched = append(q.fetched, item)
		}
	} else {
		q.fetched = append([]models.QueueItem(nil), result.Items...)
		q.cursor = 0
	}

	// hasMore comes directly from the collaborator's pagination flag.
	q.hasMore = result.HasMore
	q.nextPage = page + 1
	q.resortLocked()
	return nil
}

// LoadMore fetches the next page and appends it. No-op when the
// collaborator reported no further pages.
func (q *Queue) LoadMore(ctx context.Context) error {
	q.mu.Lock()
	if !q.hasMore && len(q.fetched) > 0 {
		q.mu.Unlock()
		return nil
	}
	page := q.nextPage
	q.mu.Unlock()

	return q.FetchPage(ctx, page, true)
}

// SeedAt positions the given item at index 0. If it is already in the
// freshly fetched items it is moved to the front (other order preserved);
// otherwise it is fetched individually and prepended. A failed singleton
// fetch is non-fatal: the queue proceeds without the seeded item.
func (q *Queue) SeedAt(ctx context.Context, itemID string) {
	q.mu.Lock()
	for i, item := range q.fetched {
		if item.ID == itemID {
			seeded := q.fetched[i]
			q.fetched = append(q.fetched[:i], q.fetched[i+1:]...)
			q.fetched = append([]models.QueueItem{seeded}, q.fetched...)
			q.cursor = 0
			q.resortLocked()
			q.mu.Unlock()
			return
		}
	}
	q.mu.Unlock()

	if q.singles == nil {
		return
	}

	item, err := q.singles.FetchItem(ctx, itemID)
	if err != nil {
		logging.Warn().Err(err).Str("item", itemID).Msg("seed fetch failed, proceeding without it")
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.fetched = append([]models.QueueItem{item}, q.fetched...)
	q.cursor = 0
	q.resortLocked()
}

// Push inserts an item arriving out of band from a feed. Duplicates by
// id are ignored. The cursor keeps pointing at the same item it was on.
func (q *Queue) Push(item models.QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.fetched {
		if existing.ID == item.ID {
			return
		}
	}

	var currentID string
	if len(q.items) > 0 {
		currentID = q.items[q.cursor].ID
	}

	// Pushed items are the newest; they take the front of the fetch order.
	q.fetched = append([]models.QueueItem{item}, q.fetched...)
	q.resortLocked()

	if currentID != "" {
		for i, it := range q.items {
			if it.ID == currentID {
				q.cursor = i
				break
			}
		}
	}
}

// Next moves the cursor forward one step, skipping viewed items when the
// skip policy is on. At the last index it is a no-op. Returns the item
// at the resulting cursor and false when the queue is empty.
func (q *Queue) Next() (models.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.moveLocked(1)
}

// Previous moves the cursor backward one step, with the same skip policy.
// At index 0 it is a no-op.
func (q *Queue) Previous() (models.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.moveLocked(-1)
}

// moveLocked advances the cursor in the given direction. With skipViewed
// on, it lands on the first unvisited index in that direction, or at the
// boundary when none remain. Never wraps, never errors. Must be called
// with mu held.
func (q *Queue) moveLocked(dir int) (models.QueueItem, bool) {
	if len(q.items) == 0 {
		return models.QueueItem{}, false
	}

	direction := "next"
	if dir < 0 {
		direction = "previous"
	}

	target := q.cursor
	if q.skipViewed && len(q.viewed) > 0 {
		for i := q.cursor + dir; i >= 0 && i < len(q.items); i += dir {
			target = i
			if _, seen := q.viewed[q.items[i].ID]; !seen {
				break
			}
		}
	} else {
		target = clamp(q.cursor+dir, 0, len(q.items)-1)
	}

	if target != q.cursor {
		q.cursor = target
		metrics.QueueCursorMoves.WithLabelValues(direction).Inc()
	}
	return q.items[q.cursor], true
}

// MarkViewed adds the id to the viewed-set and persists it. The durable
// copy is written first; the in-memory set only changes once the store
// has, so a failed write never leaves a memory-only entry that would
// vanish on reload.
func (q *Queue) MarkViewed(itemID string) error {
	q.mu.Lock()
	if _, seen := q.viewed[itemID]; seen {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	if err := q.store.Add(itemID); err != nil {
		return fmt.Errorf("persist viewed id: %w", err)
	}

	q.mu.Lock()
	_, seen := q.viewed[itemID]
	q.viewed[itemID] = struct{}{}
	q.mu.Unlock()

	if !seen {
		metrics.QueueItemsViewed.Inc()
	}
	return nil
}

// Viewed reports whether the id is in the viewed-set.
func (q *Queue) Viewed(itemID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, seen := q.viewed[itemID]
	return seen
}

// Reset clears the viewed-set in memory and in the persisted store
// together, forces the sort mode back to newest and rewinds the cursor.
// The store is cleared first: if the durable clear fails, the in-memory
// set stays populated so the two copies never diverge across a reload.
func (q *Queue) Reset() error {
	if err := q.store.Clear(); err != nil {
		return fmt.Errorf("clear viewed store: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.viewed = make(map[string]struct{})
	q.sortMode = SortNewest
	q.cursor = 0
	q.resortLocked()
	return nil
}

// SetSortMode re-derives the item ordering.
func (q *Queue) SetSortMode(mode SortMode) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sortMode == mode {
		return
	}
	q.sortMode = mode
	q.resortLocked()
}

// SortMode returns the active sort mode.
func (q *Queue) SortMode() SortMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sortMode
}

// Snapshot returns a copy of the queue state for the view layer.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := Snapshot{
		Items:    append([]models.QueueItem(nil), q.items...),
		Cursor:   q.cursor,
		SortMode: q.sortMode,
		HasMore:  q.hasMore,
	}
	if len(q.items) > 0 {
		current := q.items[q.cursor]
		snap.Current = &current
	}
	return snap
}

// Err returns the last paged-fetch error, or nil after a successful fetch.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

// Len returns the number of items currently in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cursor returns the current cursor index.
func (q *Queue) Cursor() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}

// HasMore reports the collaborator's pagination flag from the last fetch.
func (q *Queue) HasMore() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasMore
}

// resortLocked recomputes the active ordering from the fetch order and
// clamps the cursor. Must be called with mu held.
func (q *Queue) resortLocked() {
	switch q.sortMode {
	case SortSmart:
		q.items = q.scoring.Rank(q.fetched)
	default:
		q.items = append([]models.QueueItem(nil), q.fetched...)
	}

	if len(q.items) == 0 {
		q.cursor = 0
	} else {
		q.cursor = clamp(q.cursor, 0, len(q.items)-1)
	}
	metrics.QueueDepth.Set(float64(len(q.items)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
