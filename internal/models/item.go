// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package models

import "time"

// MediaKind classifies a media reference for prefetch purposes.
// Images are warmed with a full fetch-and-decode; videos with a
// metadata-only probe so full payloads are never downloaded ahead of need.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
	MediaKindOther MediaKind = "other"
)

// MediaRef is a single media resource attached to a queue item.
type MediaRef struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// Engagement carries the metrics used for smart-sort scoring.
// These values are read-only inputs to the scoring function and are
// never mutated by the queue.
type Engagement struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
}

// QueueItem is a unit of playable content.
//
// Items are immutable once placed in the consumption queue: the queue
// reorders and filters, it never writes item fields. Identity is the ID
// field; two items with the same ID are the same item.
type QueueItem struct {
	ID         string     `json:"id"`
	Title      string     `json:"title,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Media      []MediaRef `json:"media,omitempty"`
	Engagement Engagement `json:"engagement"`
}

// HasVideo reports whether any attached media reference is a video.
func (q QueueItem) HasVideo() bool {
	for _, m := range q.Media {
		if m.Kind == MediaKindVideo {
			return true
		}
	}
	return false
}

// FirstMedia returns the first media reference and true, or a zero
// MediaRef and false when the item carries no media.
func (q QueueItem) FirstMedia() (MediaRef, bool) {
	if len(q.Media) == 0 {
		return MediaRef{}, false
	}
	return q.Media[0], true
}

// Page is the result shape of the paged-fetch collaborator.
// HasMore comes directly from the collaborator's pagination flag and is
// never derived locally.
type Page struct {
	Items   []QueueItem `json:"items"`
	HasMore bool        `json:"has_more"`
}
