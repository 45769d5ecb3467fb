// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package patterns derives behavior profiles from the interaction ledger.
//
// Learn is a pure function of its input: the resulting BehaviorProfile is
// derived state, rebuildable from the ledger at any time, and is never the
// source of truth. Callers recompute on demand instead of persisting it.
package patterns

import (
	"sort"
	"time"

	"github.com/tomtom215/attune/internal/ledger"
)

// DefaultSessionGap is the idle threshold separating two sessions.
// Consecutive interactions closer than this belong to the same session.
const DefaultSessionGap = 30 * time.Minute

// ContentPreferences aggregates per-activity engagement signals.
type ContentPreferences struct {
	// ActivityCounts is the number of interactions per activity type.
	ActivityCounts map[ledger.Type]int `json:"activity_counts"`

	// EffectivenessScores holds the running average self-reported
	// effectiveness per activity type, each in [0,1].
	EffectivenessScores map[ledger.Type]float64 `json:"effectiveness_scores"`

	// UserRatings holds the running average explicit rating per activity
	// type, each in [1,5].
	UserRatings map[ledger.Type]float64 `json:"user_ratings"`
}

// EngagementPatterns summarizes session behavior.
type EngagementPatterns struct {
	// AverageSessionLength is the mean span from first to last interaction
	// of each session.
	AverageSessionLength time.Duration `json:"average_session_length"`

	// SessionFrequency counts sessions per weekday (time.Weekday numbering).
	SessionFrequency map[int]int `json:"session_frequency"`

	// SessionCount is the total number of sessions observed.
	SessionCount int `json:"session_count"`
}

// BehaviorProfile is the derived preference model for one user.
type BehaviorProfile struct {
	// TimePreferences counts interactions per time-of-day bucket and type.
	TimePreferences map[ledger.TimeOfDay]map[ledger.Type]int `json:"time_preferences"`

	// ContentPreferences aggregates per-activity engagement.
	ContentPreferences ContentPreferences `json:"content_preferences"`

	// EngagementPatterns summarizes session behavior.
	EngagementPatterns EngagementPatterns `json:"engagement_patterns"`

	// MoodCounts counts interactions per normalized mood.
	MoodCounts map[Mood]int `json:"mood_counts"`

	// Interactions is the total number of records learned from.
	Interactions int `json:"interactions"`
}

// Empty reports whether the profile carries no signal at all.
func (p BehaviorProfile) Empty() bool {
	return p.Interactions == 0
}

// ActivitySet returns the set of activity types the user has engaged with.
func (p BehaviorProfile) ActivitySet() map[ledger.Type]bool {
	set := make(map[ledger.Type]bool, len(p.ContentPreferences.ActivityCounts))
	for typ := range p.ContentPreferences.ActivityCounts {
		set[typ] = true
	}
	return set
}

// TimeOfDayTotals sums interaction counts per time-of-day bucket.
func (p BehaviorProfile) TimeOfDayTotals() map[ledger.TimeOfDay]int {
	totals := make(map[ledger.TimeOfDay]int, len(p.TimePreferences))
	for bucket, byType := range p.TimePreferences {
		for _, n := range byType {
			totals[bucket] += n
		}
	}
	return totals
}

// PreferredBucket returns the time-of-day bucket with the most interactions
// and its count. Returns false when the profile is empty.
func (p BehaviorProfile) PreferredBucket() (ledger.TimeOfDay, int, bool) {
	totals := p.TimeOfDayTotals()
	if len(totals) == 0 {
		return "", 0, false
	}

	// Deterministic winner on ties: fixed bucket order.
	order := []ledger.TimeOfDay{ledger.Morning, ledger.Afternoon, ledger.Evening, ledger.Night}
	best, bestCount := order[0], -1
	for _, bucket := range order {
		if totals[bucket] > bestCount {
			best, bestCount = bucket, totals[bucket]
		}
	}
	return best, bestCount, true
}

// Options tunes learning. The zero value selects defaults.
type Options struct {
	// SessionGap is the idle threshold for session clustering.
	// Default: DefaultSessionGap.
	SessionGap time.Duration
}

// Learn aggregates ledger records into a behavior profile. It is a pure
// function: identical input yields an identical profile, and the input
// records are never mutated.
func Learn(records []ledger.InteractionRecord, opts Options) BehaviorProfile {
	gap := opts.SessionGap
	if gap <= 0 {
		gap = DefaultSessionGap
	}

	profile := BehaviorProfile{
		TimePreferences: make(map[ledger.TimeOfDay]map[ledger.Type]int),
		ContentPreferences: ContentPreferences{
			ActivityCounts:      make(map[ledger.Type]int),
			EffectivenessScores: make(map[ledger.Type]float64),
			UserRatings:         make(map[ledger.Type]float64),
		},
		EngagementPatterns: EngagementPatterns{
			SessionFrequency: make(map[int]int),
		},
		MoodCounts:   make(map[Mood]int),
		Interactions: len(records),
	}

	effectivenessN := make(map[ledger.Type]int)
	ratingN := make(map[ledger.Type]int)

	for _, rec := range records {
		bucket := rec.Context.TimeOfDay
		if bucket == "" {
			bucket = ledger.TimeOfDayAt(rec.Timestamp)
		}
		byType := profile.TimePreferences[bucket]
		if byType == nil {
			byType = make(map[ledger.Type]int)
			profile.TimePreferences[bucket] = byType
		}
		byType[rec.Type]++

		profile.ContentPreferences.ActivityCounts[rec.Type]++

		if content, ok := rec.Payload.(ledger.ContentPayload); ok {
			if content.EffectivenessScore > 0 {
				score := clamp01(content.EffectivenessScore)
				effectivenessN[rec.Type]++
				profile.ContentPreferences.EffectivenessScores[rec.Type] = runningAverage(
					profile.ContentPreferences.EffectivenessScores[rec.Type], score, effectivenessN[rec.Type])
			}
			if content.UserRating >= 1 && content.UserRating <= 5 {
				ratingN[rec.Type]++
				profile.ContentPreferences.UserRatings[rec.Type] = runningAverage(
					profile.ContentPreferences.UserRatings[rec.Type], float64(content.UserRating), ratingN[rec.Type])
			}
		}

		if rec.Context.Mood.Emotion != "" {
			profile.MoodCounts[NormalizeMood(rec.Context.Mood.Emotion)]++
		} else if mood, ok := rec.Payload.(ledger.MoodPayload); ok {
			profile.MoodCounts[NormalizeMood(mood.Emotion)]++
		}
	}

	profile.EngagementPatterns = clusterSessions(records, gap)

	return profile
}

// runningAverage folds the nth sample into the previous average.
func runningAverage(prev, sample float64, n int) float64 {
	return prev + (sample-prev)/float64(n)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// clusterSessions groups records into sessions by timestamp gaps and
// summarizes their lengths and weekday distribution.
func clusterSessions(records []ledger.InteractionRecord, gap time.Duration) EngagementPatterns {
	patterns := EngagementPatterns{SessionFrequency: make(map[int]int)}
	if len(records) == 0 {
		return patterns
	}

	sorted := make([]ledger.InteractionRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var totalLength time.Duration
	sessionStart := sorted[0].Timestamp
	sessionEnd := sorted[0].Timestamp

	closeSession := func() {
		totalLength += sessionEnd.Sub(sessionStart)
		patterns.SessionCount++
		patterns.SessionFrequency[int(sessionStart.Weekday())]++
	}

	for _, rec := range sorted[1:] {
		if rec.Timestamp.Sub(sessionEnd) > gap {
			closeSession()
			sessionStart = rec.Timestamp
		}
		sessionEnd = rec.Timestamp
	}
	closeSession()

	patterns.AverageSessionLength = totalLength / time.Duration(patterns.SessionCount)
	return patterns
}
