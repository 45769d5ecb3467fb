// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package adapter re-ranks candidate recommendations against the user's
// current context. Adaptation is deterministic: identical input always
// produces an identical ordering, and ties keep the original order.
//
// The stress override is the highest-precedence rule. Once the context
// crosses the configured anxiety or stress threshold, everything except the
// safety allow-list is discarded; no boost can reintroduce a discarded item.
package adapter

import (
	"sort"
	"time"

	"github.com/tomtom215/attune/internal/ledger"
	"github.com/tomtom215/attune/internal/metrics"
	"github.com/tomtom215/attune/internal/patterns"
)

// Item is one candidate recommendation entering adaptation.
type Item struct {
	Type  ledger.Type `json:"type"`
	Score float64     `json:"score"`
}

// Adapted is an item after context adjustment, with annotations explaining
// which rules fired.
type Adapted struct {
	Type  ledger.Type `json:"type"`
	Score float64     `json:"score"`

	// ID identifies the served recommendation for outcome tracking.
	// The adapter leaves it empty; the engine assigns it before serving.
	ID string `json:"recommendation_id,omitempty"`

	// MoodBoost marks a calming item boosted for a distressed mood.
	MoodBoost bool `json:"mood_boost,omitempty"`

	// TimeOptimized marks an item boosted for the current time of day.
	TimeOptimized bool `json:"time_optimized,omitempty"`

	// StressLevel is "critical" when the safety override fired.
	StressLevel string `json:"stress_level,omitempty"`

	// ImmediateAction marks safety items that should surface immediately.
	ImmediateAction bool `json:"immediate_action,omitempty"`
}

// Config holds adaptation policy. Thresholds and boosts are configuration,
// not behavioral constants: clinical tuning must not require a code change.
type Config struct {
	// MoodBoostFactor is added to calming items when mood is distressed.
	MoodBoostFactor float64 `json:"mood_boost_factor"`

	// TimeBoostFactor is added to time-appropriate items.
	TimeBoostFactor float64 `json:"time_boost_factor"`

	// AnxietyThreshold triggers the safety override (inclusive).
	AnxietyThreshold int `json:"anxiety_threshold"`

	// StressThreshold triggers the safety override (inclusive).
	StressThreshold int `json:"stress_threshold"`
}

// DefaultConfig returns the default adaptation policy.
func DefaultConfig() Config {
	return Config{
		MoodBoostFactor:  0.25,
		TimeBoostFactor:  0.1,
		AnxietyThreshold: 8,
		StressThreshold:  7,
	}
}

// calmingTypes are boosted when the normalized mood is anxious or stressed.
var calmingTypes = map[ledger.Type]bool{
	ledger.TypeBreathingExercise: true,
	ledger.TypeMeditation:        true,
}

// safetyAllowList is the fixed set returned by the stress override,
// in presentation order.
var safetyAllowList = []ledger.Type{
	ledger.TypeBreathingExercise,
	ledger.TypeCrisisSupport,
	ledger.TypeEmergencyContact,
}

// timeAppropriate maps each time-of-day bucket to the types that suit it.
var timeAppropriate = map[ledger.TimeOfDay]map[ledger.Type]bool{
	ledger.Morning: {
		ledger.TypePhysicalExercise: true,
		ledger.TypeJournaling:       true,
	},
	ledger.Afternoon: {
		ledger.TypePhysicalExercise: true,
	},
	ledger.Evening: {
		ledger.TypeMeditation: true,
		ledger.TypeJournaling: true,
	},
	ledger.Night: {
		ledger.TypeBreathingExercise: true,
		ledger.TypeMeditation:        true,
	},
}

// Adapter applies context-sensitive re-ranking.
type Adapter struct {
	config Config
}

// New creates an adapter with the given policy. Zero-valued fields fall
// back to defaults.
func New(cfg Config) *Adapter {
	def := DefaultConfig()
	if cfg.MoodBoostFactor <= 0 {
		cfg.MoodBoostFactor = def.MoodBoostFactor
	}
	if cfg.TimeBoostFactor <= 0 {
		cfg.TimeBoostFactor = def.TimeBoostFactor
	}
	if cfg.AnxietyThreshold <= 0 {
		cfg.AnxietyThreshold = def.AnxietyThreshold
	}
	if cfg.StressThreshold <= 0 {
		cfg.StressThreshold = def.StressThreshold
	}
	return &Adapter{config: cfg}
}

// Critical reports whether the context triggers the stress override.
func (a *Adapter) Critical(ctx ledger.Context) bool {
	return ctx.AnxietyLevel >= a.config.AnxietyThreshold ||
		ctx.StressLevel >= a.config.StressThreshold
}

// Adapt re-ranks the base list for the current context. The returned list
// is sorted descending by adjusted score with the original order breaking
// ties. The input slice is never mutated.
func (a *Adapter) Adapt(base []Item, ctx ledger.Context) []Adapted {
	defer metrics.ObserveAdapt(time.Now())

	if a.Critical(ctx) {
		metrics.SafetyOverrides.Inc()
		return a.safetyList(base)
	}

	mood := patterns.NormalizeMood(ctx.Mood.Emotion)
	appropriate := timeAppropriate[ctx.TimeOfDay]

	out := make([]Adapted, 0, len(base))
	for _, item := range base {
		adapted := Adapted{Type: item.Type, Score: clamp01(item.Score)}

		if mood.IsDistressed() && calmingTypes[item.Type] {
			adapted.Score = clamp01(adapted.Score + a.config.MoodBoostFactor)
			adapted.MoodBoost = true
		}
		if appropriate[item.Type] {
			adapted.Score = clamp01(adapted.Score + a.config.TimeBoostFactor)
			adapted.TimeOptimized = true
		}

		out = append(out, adapted)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// safetyList builds the critical-state response: only allow-listed items
// survive, and any allow-listed item missing from the base list is added so
// the user always sees the full safety set.
func (a *Adapter) safetyList(base []Item) []Adapted {
	scores := make(map[ledger.Type]float64, len(safetyAllowList))
	for _, typ := range safetyAllowList {
		scores[typ] = 1.0
	}
	for _, item := range base {
		if _, ok := scores[item.Type]; ok && item.Score > 0 {
			scores[item.Type] = clamp01(item.Score)
		}
	}

	out := make([]Adapted, 0, len(safetyAllowList))
	for _, typ := range safetyAllowList {
		out = append(out, Adapted{
			Type:            typ,
			Score:           scores[typ],
			StressLevel:     "critical",
			ImmediateAction: true,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
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
