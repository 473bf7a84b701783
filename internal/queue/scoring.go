// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package queue

import (
	"sort"
	"time"

	"github.com/tomtom215/livefeed/internal/models"
)

// Smart-sort defaults. These constants are tuning policy, not law: the
// decay window, bonus sizes and saturation point carry no documented
// rationale beyond observed behavior, so they are all configurable.
const (
	DefaultDecayWindow      = 48 * time.Hour
	DefaultRecencyWeight    = 1.0
	DefaultVideoBonus       = 0.25
	DefaultEngagementWeight = 0.5
	DefaultEngagementScale  = 1000.0
)

// ScoringConfig tunes the smart ordering.
//
// Score(item) = recency + videoBonus + engagement, where:
//   - recency decays linearly from RecencyWeight at age 0 to zero at
//     DecayWindow, and stays zero past it
//   - videoBonus is a fixed VideoBonus for items carrying video media
//   - engagement is EngagementWeight * min(metric/EngagementScale, 1),
//     a saturating bonus whose contribution is capped
type ScoringConfig struct {
	DecayWindow time.Duration

	// Weight and bonus knobs are pointers so an explicit zero is
	// distinguishable from unset; nil takes the package default.
	RecencyWeight    *float64
	VideoBonus       *float64
	EngagementWeight *float64

	EngagementScale float64

	// Now is a test hook; nil means time.Now.
	Now func() time.Time
}

// withDefaults fills unset fields with the package defaults. For the
// pointer knobs only nil counts as unset; DecayWindow and
// EngagementScale must be positive, so zero means unset there.
func (c ScoringConfig) withDefaults() ScoringConfig {
	if c.DecayWindow <= 0 {
		c.DecayWindow = DefaultDecayWindow
	}
	if c.RecencyWeight == nil {
		w := DefaultRecencyWeight
		c.RecencyWeight = &w
	}
	if c.VideoBonus == nil {
		b := DefaultVideoBonus
		c.VideoBonus = &b
	}
	if c.EngagementWeight == nil {
		w := DefaultEngagementWeight
		c.EngagementWeight = &w
	}
	if c.EngagementScale <= 0 {
		c.EngagementScale = DefaultEngagementScale
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func knob(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

// Score computes the smart-sort score of one item at the given time.
func (c ScoringConfig) Score(item models.QueueItem, now time.Time) float64 {
	score := 0.0

	age := now.Sub(item.Timestamp)
	if age < 0 {
		age = 0
	}
	if age < c.DecayWindow {
		score += knob(c.RecencyWeight, DefaultRecencyWeight) * (1 - float64(age)/float64(c.DecayWindow))
	}

	if item.HasVideo() {
		score += knob(c.VideoBonus, DefaultVideoBonus)
	}

	metric := float64(item.Engagement.Views + 2*item.Engagement.Likes + 3*item.Engagement.Comments)
	saturation := metric / c.EngagementScale
	if saturation > 1 {
		saturation = 1
	}
	score += knob(c.EngagementWeight, DefaultEngagementWeight) * saturation

	return score
}

// Rank returns a new ordering of the given items by descending score.
// Ties keep the original fetch order (stable sort); the input slice is
// never mutated.
func (c ScoringConfig) Rank(fetched []models.QueueItem) []models.QueueItem {
	now := c.Now()

	ranked := append([]models.QueueItem(nil), fetched...)
	scores := make([]float64, len(ranked))
	for i, item := range ranked {
		scores[i] = c.Score(item, now)
	}

	order := make([]int, len(ranked))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	out := make([]models.QueueItem, len(ranked))
	for i, idx := range order {
		out[i] = ranked[idx]
	}
	return out
}
