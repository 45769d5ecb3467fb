// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package patterns

import (
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/attune/internal/ledger"
)

func rec(typ ledger.Type, payload ledger.Payload, ts time.Time) ledger.InteractionRecord {
	return ledger.InteractionRecord{
		ID:        "id",
		UserID:    "u1",
		Type:      typ,
		Payload:   payload,
		Context:   ledger.ContextAt(ts),
		Timestamp: ts,
	}
}

func TestLearnEveningBreathingScenario(t *testing.T) {
	// Three completed five-star breathing exercises in the evening.
	evening := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)
	var records []ledger.InteractionRecord
	for i := 0; i < 3; i++ {
		records = append(records, rec(
			ledger.TypeBreathingExercise,
			ledger.ContentPayload{Completed: true, UserRating: 5},
			evening.Add(time.Duration(i)*time.Minute),
		))
	}

	profile := Learn(records, Options{})

	if got := profile.TimePreferences[ledger.Evening][ledger.TypeBreathingExercise]; got != 3 {
		t.Errorf("evening breathing_exercise count = %d, want 3", got)
	}
	if got := profile.ContentPreferences.UserRatings[ledger.TypeBreathingExercise]; got != 5 {
		t.Errorf("breathing_exercise rating = %v, want 5", got)
	}
	if got := profile.ContentPreferences.ActivityCounts[ledger.TypeBreathingExercise]; got != 3 {
		t.Errorf("activity count = %d, want 3", got)
	}
}

func TestLearnIsPureAndDeterministic(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []ledger.InteractionRecord{
		rec(ledger.TypeMeditation, ledger.ContentPayload{EffectivenessScore: 0.8}, base),
		rec(ledger.TypeMoodLog, ledger.MoodPayload{Emotion: "joy"}, base.Add(5*time.Minute)),
		rec(ledger.TypeMeditation, ledger.ContentPayload{EffectivenessScore: 0.4}, base.Add(2*time.Hour)),
	}
	snapshot := make([]ledger.InteractionRecord, len(records))
	copy(snapshot, records)

	first := Learn(records, Options{})
	second := Learn(records, Options{})

	if !reflect.DeepEqual(first, second) {
		t.Error("Learn must be deterministic for identical input")
	}
	if !reflect.DeepEqual(records, snapshot) {
		t.Error("Learn must not mutate its input")
	}
}

func TestLearnRunningAverages(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []ledger.InteractionRecord{
		rec(ledger.TypeMeditation, ledger.ContentPayload{EffectivenessScore: 0.8, UserRating: 4}, base),
		rec(ledger.TypeMeditation, ledger.ContentPayload{EffectivenessScore: 0.4, UserRating: 2}, base.Add(time.Minute)),
	}

	profile := Learn(records, Options{})

	eff := profile.ContentPreferences.EffectivenessScores[ledger.TypeMeditation]
	if eff < 0.599 || eff > 0.601 {
		t.Errorf("effectiveness average = %v, want 0.6", eff)
	}
	rating := profile.ContentPreferences.UserRatings[ledger.TypeMeditation]
	if rating != 3 {
		t.Errorf("rating average = %v, want 3", rating)
	}
}

func TestLearnIgnoresInvalidSignals(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []ledger.InteractionRecord{
		rec(ledger.TypeMeditation, ledger.ContentPayload{EffectivenessScore: 1.7, UserRating: 9}, base),
		rec(ledger.TypeMeditation, ledger.ContentPayload{}, base.Add(time.Minute)),
	}

	profile := Learn(records, Options{})

	// Out-of-range effectiveness clamps to 1; out-of-range rating is dropped.
	if got := profile.ContentPreferences.EffectivenessScores[ledger.TypeMeditation]; got != 1 {
		t.Errorf("effectiveness = %v, want clamped 1", got)
	}
	if _, ok := profile.ContentPreferences.UserRatings[ledger.TypeMeditation]; ok {
		t.Error("invalid rating must not enter the average")
	}
}

func TestSessionClustering(t *testing.T) {
	base := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC) // a Monday
	records := []ledger.InteractionRecord{
		// Session 1: 20 minutes, Monday morning.
		rec(ledger.TypeContentView, nil, base),
		rec(ledger.TypeMeditation, nil, base.Add(10*time.Minute)),
		rec(ledger.TypeContentView, nil, base.Add(20*time.Minute)),
		// Session 2: single interaction 2h later, same Monday.
		rec(ledger.TypeMoodLog, nil, base.Add(2*time.Hour+20*time.Minute)),
		// Session 3: next day (Tuesday), 10 minutes.
		rec(ledger.TypeContentView, nil, base.Add(25*time.Hour)),
		rec(ledger.TypeContentView, nil, base.Add(25*time.Hour+10*time.Minute)),
	}

	profile := Learn(records, Options{})
	eng := profile.EngagementPatterns

	if eng.SessionCount != 3 {
		t.Fatalf("session count = %d, want 3", eng.SessionCount)
	}
	// (20m + 0m + 10m) / 3 = 10m
	if eng.AverageSessionLength != 10*time.Minute {
		t.Errorf("average session length = %v, want 10m", eng.AverageSessionLength)
	}
	if eng.SessionFrequency[int(time.Monday)] != 2 {
		t.Errorf("Monday sessions = %d, want 2", eng.SessionFrequency[int(time.Monday)])
	}
	if eng.SessionFrequency[int(time.Tuesday)] != 1 {
		t.Errorf("Tuesday sessions = %d, want 1", eng.SessionFrequency[int(time.Tuesday)])
	}
}

func TestSessionClusteringUnsortedInput(t *testing.T) {
	base := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	records := []ledger.InteractionRecord{
		rec(ledger.TypeContentView, nil, base.Add(20*time.Minute)),
		rec(ledger.TypeContentView, nil, base),
		rec(ledger.TypeContentView, nil, base.Add(10*time.Minute)),
	}

	profile := Learn(records, Options{})
	if profile.EngagementPatterns.SessionCount != 1 {
		t.Errorf("session count = %d, want 1 (order must not matter)", profile.EngagementPatterns.SessionCount)
	}
}

func TestLearnEmptyLedger(t *testing.T) {
	profile := Learn(nil, Options{})

	if !profile.Empty() {
		t.Error("profile from empty ledger must report Empty()")
	}
	if profile.EngagementPatterns.SessionCount != 0 {
		t.Error("no sessions expected")
	}
	if _, _, ok := profile.PreferredBucket(); ok {
		t.Error("empty profile must have no preferred bucket")
	}
}

func TestMoodCountsUseNormalization(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []ledger.InteractionRecord{
		{Type: ledger.TypeMoodLog, Payload: ledger.MoodPayload{Emotion: "joy"}, Timestamp: base},
		{Type: ledger.TypeMoodLog, Payload: ledger.MoodPayload{Emotion: "anxiety"}, Timestamp: base},
		{Type: ledger.TypeMoodLog, Payload: ledger.MoodPayload{Emotion: "???"}, Timestamp: base},
	}

	profile := Learn(records, Options{})

	if profile.MoodCounts[MoodHappy] != 1 {
		t.Errorf("happy count = %d, want 1", profile.MoodCounts[MoodHappy])
	}
	if profile.MoodCounts[MoodAnxious] != 1 {
		t.Errorf("anxious count = %d, want 1", profile.MoodCounts[MoodAnxious])
	}
	if profile.MoodCounts[MoodNeutral] != 1 {
		t.Errorf("unmapped label must count as neutral, got %d", profile.MoodCounts[MoodNeutral])
	}
}

func TestNormalizeMood(t *testing.T) {
	tests := []struct {
		label string
		want  Mood
	}{
		{"joy", MoodHappy},
		{"JOY", MoodHappy},
		{" anxiety ", MoodAnxious},
		{"overwhelmed", MoodStressed},
		{"down", MoodSad},
		{"calm", MoodNeutral},
		{"", MoodNeutral},
		{"quixotic", MoodNeutral},
	}

	for _, tt := range tests {
		if got := NormalizeMood(tt.label); got != tt.want {
			t.Errorf("NormalizeMood(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestPreferredBucket(t *testing.T) {
	profile := BehaviorProfile{
		TimePreferences: map[ledger.TimeOfDay]map[ledger.Type]int{
			ledger.Morning: {ledger.TypeContentView: 2},
			ledger.Evening: {ledger.TypeMeditation: 5, ledger.TypeContentView: 1},
		},
	}

	bucket, count, ok := profile.PreferredBucket()
	if !ok {
		t.Fatal("expected a preferred bucket")
	}
	if bucket != ledger.Evening || count != 6 {
		t.Errorf("preferred bucket = %q (%d), want evening (6)", bucket, count)
	}
}
