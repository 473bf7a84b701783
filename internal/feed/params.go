// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package feed

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
)

// Params identify what the remote feed should push.
//
// Equality is by normalized Key, not identity: two Params with equal keys
// are the same subscription and must not trigger a reconnect. Handing the
// manager Params with a new key tears down the connection and recreates
// it with the new parameters.
type Params interface {
	// Key returns the normalized comparable subscription key.
	Key() string

	// Query returns the wire form sent with the transport dial.
	Query() url.Values
}

// DefaultBBoxPrecision is the number of decimal places a bounding box is
// rounded to when computing its key. Map pans below this precision are
// treated as the same subscription. Whether that is the right product
// behavior is an open call; the precision is a config knob, not law.
const DefaultBBoxPrecision = 3

// BoundingBox subscribes the location feed to a geographic area.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64

	// Precision is the decimal rounding used for normalization.
	// Zero means DefaultBBoxPrecision.
	Precision int
}

// Key returns the rounded, order-stable key for this bounding box.
func (b BoundingBox) Key() string {
	p := b.precision()
	return fmt.Sprintf("bbox:%.*f,%.*f,%.*f,%.*f",
		p, roundTo(b.MinLat, p),
		p, roundTo(b.MinLon, p),
		p, roundTo(b.MaxLat, p),
		p, roundTo(b.MaxLon, p))
}

// Query encodes the rounded box as a single bbox query parameter,
// minLon,minLat,maxLon,maxLat.
func (b BoundingBox) Query() url.Values {
	p := b.precision()
	q := url.Values{}
	q.Set("bbox", fmt.Sprintf("%.*f,%.*f,%.*f,%.*f",
		p, roundTo(b.MinLon, p),
		p, roundTo(b.MinLat, p),
		p, roundTo(b.MaxLon, p),
		p, roundTo(b.MaxLat, p)))
	return q
}

func (b BoundingBox) precision() int {
	if b.Precision <= 0 {
		return DefaultBBoxPrecision
	}
	return b.Precision
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

// FilterSet subscribes the message feed to a set of channels.
// Normalization sorts and dedupes, so semantically equal sets produce
// equal keys regardless of input order.
type FilterSet struct {
	Channels []string
}

// Key returns the sorted, deduplicated channel list as the key.
func (f FilterSet) Key() string {
	return "filters:" + strings.Join(f.normalized(), ",")
}

// Query encodes the channels as a repeated channel query parameter.
func (f FilterSet) Query() url.Values {
	q := url.Values{}
	for _, ch := range f.normalized() {
		q.Add("channel", ch)
	}
	return q
}

func (f FilterSet) normalized() []string {
	seen := make(map[string]struct{}, len(f.Channels))
	out := make([]string, 0, len(f.Channels))
	for _, ch := range f.Channels {
		ch = strings.TrimSpace(strings.ToLower(ch))
		if ch == "" {
			continue
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}
