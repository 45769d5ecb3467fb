// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package insights

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/attune/internal/ledger"
	"github.com/tomtom215/attune/internal/patterns"
)

// RuleProvider derives insights locally from the behavior profile. It is
// the default provider when no external model endpoint is configured, and
// doubles as the degraded-mode fallback behind the same circuit breaker.
type RuleProvider struct{}

// GenerateInsight implements Provider.
func (RuleProvider) GenerateInsight(_ context.Context, _ string, profile patterns.BehaviorProfile) (*Insight, error) {
	if profile.Empty() {
		return &Insight{
			MoodSummary: "not enough history yet",
			Confidence:  0,
			GeneratedAt: time.Now().UTC(),
		}, nil
	}

	dominant := dominantMood(profile)

	var recommended []string
	switch dominant {
	case patterns.MoodAnxious, patterns.MoodStressed:
		recommended = []string{
			string(ledger.TypeBreathingExercise),
			string(ledger.TypeMeditation),
		}
	case patterns.MoodSad:
		recommended = []string{
			string(ledger.TypeJournaling),
			string(ledger.TypePhysicalExercise),
		}
	default:
		recommended = topEffective(profile, 2)
	}

	confidence := float64(profile.Interactions) / 50.0
	if confidence > 1 {
		confidence = 1
	}

	return &Insight{
		RecommendedTypes: recommended,
		MoodSummary:      fmt.Sprintf("predominantly %s over %d interactions", dominant, profile.Interactions),
		Confidence:       confidence,
		GeneratedAt:      time.Now().UTC(),
	}, nil
}

func dominantMood(profile patterns.BehaviorProfile) patterns.Mood {
	best := patterns.MoodNeutral
	bestCount := 0
	for mood, count := range profile.MoodCounts {
		if count > bestCount || (count == bestCount && mood < best) {
			best = mood
			bestCount = count
		}
	}
	return best
}

func topEffective(profile patterns.BehaviorProfile, n int) []string {
	type scored struct {
		typ   ledger.Type
		score float64
	}
	items := make([]scored, 0, len(profile.ContentPreferences.EffectivenessScores))
	for typ, score := range profile.ContentPreferences.EffectivenessScores {
		items = append(items, scored{typ, score})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].typ < items[j].typ
	})
	if len(items) > n {
		items = items[:n]
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it.typ)
	}
	return out
}
