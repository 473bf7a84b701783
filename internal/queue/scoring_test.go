// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package queue

import (
	"testing"
	"time"

	"github.com/tomtom215/livefeed/internal/models"
)

func scoringAt(now time.Time) ScoringConfig {
	return ScoringConfig{Now: func() time.Time { return now }}.withDefaults()
}

func TestScoring_RecencyDecay(t *testing.T) {
	now := time.Now()
	cfg := scoringAt(now)

	fresh := cfg.Score(models.QueueItem{ID: "fresh", Timestamp: now}, now)
	if fresh != *cfg.RecencyWeight {
		t.Errorf("score at age 0 = %v, want full recency weight %v", fresh, *cfg.RecencyWeight)
	}

	half := cfg.Score(models.QueueItem{ID: "half", Timestamp: now.Add(-24 * time.Hour)}, now)
	if want := *cfg.RecencyWeight / 2; half != want {
		t.Errorf("score at 24h = %v, want %v", half, want)
	}

	stale := cfg.Score(models.QueueItem{ID: "stale", Timestamp: now.Add(-49 * time.Hour)}, now)
	if stale != 0 {
		t.Errorf("score past decay window = %v, want 0", stale)
	}
}

func TestScoring_VideoBonus(t *testing.T) {
	now := time.Now()
	cfg := scoringAt(now)

	plain := models.QueueItem{ID: "p", Timestamp: now}
	video := models.QueueItem{ID: "v", Timestamp: now, Media: []models.MediaRef{{URL: "u", Kind: models.MediaKindVideo}}}

	diff := cfg.Score(video, now) - cfg.Score(plain, now)
	if diff != *cfg.VideoBonus {
		t.Errorf("video bonus = %v, want %v", diff, *cfg.VideoBonus)
	}
}

func TestScoring_EngagementSaturates(t *testing.T) {
	now := time.Now()
	cfg := scoringAt(now)

	big := models.QueueItem{ID: "big", Timestamp: now, Engagement: models.Engagement{Views: 1_000_000}}
	bigger := models.QueueItem{ID: "bigger", Timestamp: now, Engagement: models.Engagement{Views: 100_000_000}}

	a := cfg.Score(big, now)
	b := cfg.Score(bigger, now)
	if a != b {
		t.Errorf("engagement bonus not capped: %v vs %v", a, b)
	}
	if got := a - *cfg.RecencyWeight; got != *cfg.EngagementWeight {
		t.Errorf("saturated engagement contribution = %v, want %v", got, *cfg.EngagementWeight)
	}
}

func TestScoring_ExplicitZeroKnobsAreHonored(t *testing.T) {
	now := time.Now()
	zero := 0.0
	cfg := ScoringConfig{
		VideoBonus:       &zero,
		EngagementWeight: &zero,
		Now:              func() time.Time { return now },
	}.withDefaults()

	// An operator tuning a bonus to zero must get zero, not the default.
	plain := models.QueueItem{ID: "p", Timestamp: now}
	video := models.QueueItem{ID: "v", Timestamp: now, Media: []models.MediaRef{{URL: "u", Kind: models.MediaKindVideo}}}
	if a, b := cfg.Score(video, now), cfg.Score(plain, now); a != b {
		t.Errorf("zero video bonus still scored: %v vs %v", a, b)
	}

	hot := models.QueueItem{ID: "hot", Timestamp: now, Engagement: models.Engagement{Views: 1_000_000}}
	if a, b := cfg.Score(hot, now), cfg.Score(plain, now); a != b {
		t.Errorf("zero engagement weight still scored: %v vs %v", a, b)
	}
}

func TestScoring_RankStableTies(t *testing.T) {
	now := time.Now()
	cfg := scoringAt(now)

	// Identical scores keep fetch order.
	fetched := []models.QueueItem{
		{ID: "first", Timestamp: now},
		{ID: "second", Timestamp: now},
		{ID: "third", Timestamp: now},
	}

	ranked := cfg.Rank(fetched)
	for i, want := range []string{"first", "second", "third"} {
		if ranked[i].ID != want {
			t.Errorf("ranked[%d] = %q, want %q (ties must keep fetch order)", i, ranked[i].ID, want)
		}
	}
}

func TestScoring_RankDoesNotMutateInput(t *testing.T) {
	now := time.Now()
	cfg := scoringAt(now)

	fetched := []models.QueueItem{
		{ID: "old", Timestamp: now.Add(-40 * time.Hour)},
		{ID: "new", Timestamp: now},
	}

	ranked := cfg.Rank(fetched)
	if ranked[0].ID != "new" {
		t.Errorf("ranked[0] = %q, want new", ranked[0].ID)
	}
	if fetched[0].ID != "old" {
		t.Error("Rank mutated the fetch order in place")
	}
}
