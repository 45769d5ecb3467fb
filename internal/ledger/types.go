// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package ledger

import (
	"time"
)

// Type classifies a tracked user interaction.
type Type string

// Interaction types. Activity-valued types (breathing_exercise, meditation,
// physical_exercise, journaling) double as content categories: the learner
// aggregates preferences per Type, and the adapter scores items of the same
// vocabulary.
const (
	TypeContentView           Type = "content_view"
	TypeContentComplete       Type = "content_complete"
	TypePeerMessage           Type = "peer_message"
	TypePeerConnect           Type = "peer_connect"
	TypeMoodLog               Type = "mood_log"
	TypeRecommendationAccept  Type = "recommendation_accept"
	TypeRecommendationDismiss Type = "recommendation_dismiss"
	TypeBreathingExercise     Type = "breathing_exercise"
	TypeMeditation            Type = "meditation"
	TypePhysicalExercise      Type = "physical_exercise"
	TypeJournaling            Type = "journaling"
	TypeCrisisSupport         Type = "crisis_support"
	TypeEmergencyContact      Type = "emergency_contact"
)

// IsRecommendation reports whether the interaction is a direct response to a
// recommendation. The scheduler treats a burst of these as high engagement.
func (t Type) IsRecommendation() bool {
	return t == TypeRecommendationAccept || t == TypeRecommendationDismiss
}

// IsSocial reports whether the interaction involves another user.
func (t Type) IsSocial() bool {
	return t == TypePeerMessage || t == TypePeerConnect
}

// TimeOfDay buckets the clock into four coarse periods.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

// TimeOfDayFromHour maps an hour (0-23) to its bucket.
func TimeOfDayFromHour(hour int) TimeOfDay {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 17:
		return Afternoon
	case hour >= 17 && hour < 22:
		return Evening
	default:
		return Night
	}
}

// TimeOfDayAt returns the bucket for a concrete instant.
func TimeOfDayAt(t time.Time) TimeOfDay {
	return TimeOfDayFromHour(t.Hour())
}

// Mood is a self-reported emotional state with detection confidence.
type Mood struct {
	// Emotion is a free-text label ("joy", "anxiety", ...). Consumers
	// normalize it into the canonical mood set before use.
	Emotion string `json:"emotion"`

	// Confidence is the detection confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// Context is a snapshot of the user's situation at interaction time.
// It is captured once at Record() and never mutated afterwards.
type Context struct {
	TimeOfDay TimeOfDay `json:"time_of_day"`

	// DayOfWeek follows time.Weekday numbering (Sunday=0).
	DayOfWeek int `json:"day_of_week"`

	Mood Mood `json:"mood"`

	// StressLevel is self-reported stress on a 0-10 scale.
	StressLevel int `json:"stress_level"`

	// AnxietyLevel is self-reported anxiety on a 0-10 scale.
	AnxietyLevel int `json:"anxiety_level"`
}

// ContextAt builds a Context for the given instant with neutral mood and
// zero stress signals. Callers overwrite the fields they know.
func ContextAt(t time.Time) Context {
	return Context{
		TimeOfDay: TimeOfDayAt(t),
		DayOfWeek: int(t.Weekday()),
	}
}

// InteractionRecord is one immutable entry in the ledger.
type InteractionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      Type      `json:"type"`
	Payload   Payload   `json:"-"`
	Context   Context   `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}
