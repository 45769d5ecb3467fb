// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package patterns

import "strings"

// Mood is one of the five canonical mood categories. Free-text emotion
// labels from mood logs and context snapshots are normalized into this
// closed set before any scoring; the adapter and compatibility scorer
// only ever see canonical moods.
type Mood string

const (
	MoodHappy    Mood = "happy"
	MoodSad      Mood = "sad"
	MoodAnxious  Mood = "anxious"
	MoodStressed Mood = "stressed"
	MoodNeutral  Mood = "neutral"
)

// CanonicalMoods lists all canonical moods in stable order.
var CanonicalMoods = []Mood{MoodHappy, MoodSad, MoodAnxious, MoodStressed, MoodNeutral}

// moodSynonyms maps lowercased free-text labels to canonical moods.
// Unmapped labels normalize to neutral.
var moodSynonyms = map[string]Mood{
	"happy":       MoodHappy,
	"joy":         MoodHappy,
	"joyful":      MoodHappy,
	"content":     MoodHappy,
	"cheerful":    MoodHappy,
	"excited":     MoodHappy,
	"grateful":    MoodHappy,
	"good":        MoodHappy,
	"great":       MoodHappy,
	"sad":         MoodSad,
	"down":        MoodSad,
	"depressed":   MoodSad,
	"unhappy":     MoodSad,
	"lonely":      MoodSad,
	"blue":        MoodSad,
	"grief":       MoodSad,
	"anxious":     MoodAnxious,
	"anxiety":     MoodAnxious,
	"worried":     MoodAnxious,
	"nervous":     MoodAnxious,
	"panicked":    MoodAnxious,
	"panic":       MoodAnxious,
	"uneasy":      MoodAnxious,
	"fearful":     MoodAnxious,
	"stressed":    MoodStressed,
	"stress":      MoodStressed,
	"overwhelmed": MoodStressed,
	"pressured":   MoodStressed,
	"tense":       MoodStressed,
	"frustrated":  MoodStressed,
	"irritable":   MoodStressed,
	"burned out":  MoodStressed,
	"neutral":     MoodNeutral,
	"okay":        MoodNeutral,
	"fine":        MoodNeutral,
	"calm":        MoodNeutral,
	"meh":         MoodNeutral,
}

// NormalizeMood maps a free-text emotion label onto the canonical set.
// Matching is case-insensitive and whitespace-trimmed; unknown or empty
// labels map to neutral.
func NormalizeMood(label string) Mood {
	if mood, ok := moodSynonyms[strings.ToLower(strings.TrimSpace(label))]; ok {
		return mood
	}
	return MoodNeutral
}

// IsDistressed reports whether the mood calls for calming content.
func (m Mood) IsDistressed() bool {
	return m == MoodAnxious || m == MoodStressed
}
