// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package scheduler

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/tomtom215/attune/internal/ledger"
	"github.com/tomtom215/attune/internal/patterns"
)

type fakeHistory struct {
	records []ledger.InteractionRecord
}

func (f *fakeHistory) Recent(_ string, n int) []ledger.InteractionRecord {
	if n > len(f.records) {
		n = len(f.records)
	}
	return f.records[:n]
}

type fakeRates struct {
	rate float64
}

func (f *fakeRates) AcceptRate(_ string, _ time.Duration) float64 {
	return f.rate
}

type env struct {
	scheduler *Scheduler
	history   *fakeHistory
	rates     *fakeRates
	profile   *patterns.BehaviorProfile
	clock     *time.Time
	refreshed []struct {
		userID     string
		categories []Category
		reason     string
	}
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()

	e := &env{
		history: &fakeHistory{},
		rates:   &fakeRates{rate: 0.4},
		profile: &patterns.BehaviorProfile{},
	}
	now := time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC)
	e.clock = &now

	e.scheduler = New(cfg, e.history, e.rates,
		func(string) patterns.BehaviorProfile { return *e.profile },
		func(_ context.Context, userID string, categories []Category, reason string) {
			e.refreshed = append(e.refreshed, struct {
				userID     string
				categories []Category
				reason     string
			}{userID, categories, reason})
		})
	e.scheduler.now = func() time.Time { return *e.clock }
	e.scheduler.rng = rand.New(rand.NewSource(1))
	return e
}

func eveningContext() ledger.Context {
	return ledger.Context{
		TimeOfDay: ledger.Evening,
		DayOfWeek: 1,
		Mood:      ledger.Mood{Emotion: "neutral"},
	}
}

func TestComputeIntervalBase(t *testing.T) {
	e := newEnv(t, Config{MinInterval: 5 * time.Minute, MaxInterval: 2 * time.Hour})

	got := e.scheduler.ComputeInterval("user-a")
	if got != 10*time.Minute {
		t.Errorf("base interval = %v, want 10m", got)
	}
}

func TestComputeIntervalAdjustments(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *env)
		want  time.Duration
	}{
		{
			name: "long sessions shorten",
			setup: func(e *env) {
				e.profile.EngagementPatterns.AverageSessionLength = 15 * time.Minute
			},
			want: 7 * time.Minute,
		},
		{
			name: "frequent sessions shorten",
			setup: func(e *env) {
				e.profile.EngagementPatterns.SessionFrequency = map[int]int{1: 3, 3: 3}
			},
			want: 8 * time.Minute,
		},
		{
			name: "high accept rate shortens",
			setup: func(e *env) {
				e.rates.rate = 0.6
			},
			want: 9 * time.Minute,
		},
		{
			name: "low accept rate lengthens",
			setup: func(e *env) {
				e.rates.rate = 0.1
			},
			want: 15 * time.Minute,
		},
		{
			name: "preferred hour shortens",
			setup: func(e *env) {
				// Clock is 20:00, the evening bucket.
				e.profile.TimePreferences = map[ledger.TimeOfDay]map[ledger.Type]int{
					ledger.Evening: {ledger.TypeBreathingExercise: 12},
				}
			},
			want: 8 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, Config{MinInterval: 5 * time.Minute, MaxInterval: 2 * time.Hour})
			tt.setup(e)

			got := e.scheduler.ComputeInterval("user-a")
			if got != tt.want {
				t.Errorf("interval = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeIntervalClamped(t *testing.T) {
	e := newEnv(t, Config{MinInterval: 5 * time.Minute, MaxInterval: 12 * time.Minute})
	e.rates.rate = 0.1 // base 10m x1.5 = 15m, above the ceiling

	got := e.scheduler.ComputeInterval("user-a")
	if got != 12*time.Minute {
		t.Errorf("interval = %v, want clamp to 12m", got)
	}

	e2 := newEnv(t, Config{MinInterval: 10 * time.Minute, MaxInterval: time.Hour})
	e2.profile.EngagementPatterns.AverageSessionLength = 15 * time.Minute
	e2.profile.EngagementPatterns.SessionFrequency = map[int]int{1: 6}
	e2.rates.rate = 0.6
	// base 20m x0.7 x0.8 x0.9 = 10.08m, above the floor; push below it
	e2.profile.TimePreferences = map[ledger.TimeOfDay]map[ledger.Type]int{
		ledger.Evening: {ledger.TypeMeditation: 20},
	}

	got = e2.scheduler.ComputeInterval("user-a")
	if got != 10*time.Minute {
		t.Errorf("interval = %v, want clamp to floor 10m", got)
	}
}

func TestShouldRefreshTriggers(t *testing.T) {
	ctx := eveningContext()

	t.Run("first call is stale", func(t *testing.T) {
		e := newEnv(t, Config{})
		if !e.scheduler.ShouldRefresh("user-a", ctx) {
			t.Error("expected refresh with no prior refresh")
		}
	})

	t.Run("no trigger after fresh refresh", func(t *testing.T) {
		e := newEnv(t, Config{MinInterval: 5 * time.Minute, Staleness: 30 * time.Minute})
		e.scheduler.Refresh(context.Background(), "user-a", ctx, true)

		*e.clock = e.clock.Add(time.Minute)
		if e.scheduler.ShouldRefresh("user-a", ctx) {
			t.Error("expected no refresh right after one")
		}
	})

	t.Run("staleness", func(t *testing.T) {
		e := newEnv(t, Config{Staleness: 30 * time.Minute})
		e.scheduler.Refresh(context.Background(), "user-a", ctx, true)

		*e.clock = e.clock.Add(31 * time.Minute)
		if !e.scheduler.ShouldRefresh("user-a", ctx) {
			t.Error("expected refresh past staleness threshold")
		}
	})

	t.Run("recommendation heavy history", func(t *testing.T) {
		e := newEnv(t, Config{Staleness: 30 * time.Minute})
		e.scheduler.Refresh(context.Background(), "user-a", ctx, true)
		*e.clock = e.clock.Add(time.Minute)

		for i := 0; i < 5; i++ {
			e.history.records = append(e.history.records,
				ledger.InteractionRecord{Type: ledger.TypeRecommendationAccept})
		}
		for i := 0; i < 5; i++ {
			e.history.records = append(e.history.records,
				ledger.InteractionRecord{Type: ledger.TypeMoodLog})
		}

		if !e.scheduler.ShouldRefresh("user-a", ctx) {
			t.Error("expected refresh for recommendation-heavy history")
		}
	})

	t.Run("low engagement", func(t *testing.T) {
		e := newEnv(t, Config{Staleness: 30 * time.Minute, EngagementThreshold: 0.3})
		e.scheduler.Refresh(context.Background(), "user-a", ctx, true)
		*e.clock = e.clock.Add(time.Minute)

		e.rates.rate = 0.1
		if !e.scheduler.ShouldRefresh("user-a", ctx) {
			t.Error("expected refresh for low accept rate")
		}
	})

	t.Run("context change", func(t *testing.T) {
		e := newEnv(t, Config{Staleness: 30 * time.Minute})
		e.scheduler.Refresh(context.Background(), "user-a", ctx, true)
		*e.clock = e.clock.Add(time.Minute)

		changed := ctx
		changed.Mood.Emotion = "anxiety"
		if !e.scheduler.ShouldRefresh("user-a", changed) {
			t.Error("expected refresh on mood change")
		}
	})

	t.Run("raw mood synonym is not a change", func(t *testing.T) {
		e := newEnv(t, Config{Staleness: 30 * time.Minute})
		noted := ctx
		noted.Mood.Emotion = "anxiety"
		e.scheduler.Refresh(context.Background(), "user-a", noted, true)
		*e.clock = e.clock.Add(time.Minute)

		same := ctx
		same.Mood.Emotion = "anxious"
		if e.scheduler.ShouldRefresh("user-a", same) {
			t.Error("normalized-equal moods should not trigger a refresh")
		}
	})
}

func TestRefreshMinIntervalGuard(t *testing.T) {
	e := newEnv(t, Config{MinInterval: 5 * time.Minute})
	ctx := eveningContext()

	if got := e.scheduler.Refresh(context.Background(), "user-a", ctx, false); got == nil {
		t.Fatal("first refresh should run")
	}

	*e.clock = e.clock.Add(time.Minute)
	if got := e.scheduler.Refresh(context.Background(), "user-a", ctx, false); got != nil {
		t.Error("refresh within min interval should be a no-op")
	}

	if got := e.scheduler.Refresh(context.Background(), "user-a", ctx, true); got == nil {
		t.Error("forced refresh should bypass min interval")
	}
}

func TestRefreshSingleFlight(t *testing.T) {
	e := newEnv(t, Config{})
	e.scheduler.refreshing.Store(true)

	if got := e.scheduler.Refresh(context.Background(), "user-a", eveningContext(), true); got != nil {
		t.Error("refresh during in-flight pass should be a no-op")
	}
	if len(e.refreshed) != 0 {
		t.Error("refresh callback should not run while guarded")
	}
}

func TestRefreshCategorySelection(t *testing.T) {
	tests := []struct {
		name    string
		mood    string
		tod     ledger.TimeOfDay
		social  int
		want    map[Category]bool
		notWant []Category
	}{
		{
			name: "anxious evening",
			mood: "anxious",
			tod:  ledger.Evening,
			want: map[Category]bool{CategoryContent: true, CategoryPeers: true, CategoryExercises: true},
			notWant: []Category{
				CategoryActivities,
			},
		},
		{
			name: "neutral morning",
			mood: "neutral",
			tod:  ledger.Morning,
			want: map[Category]bool{CategoryContent: true, CategoryActivities: true},
			notWant: []Category{
				CategoryExercises,
			},
		},
		{
			name:    "socially active night",
			mood:    "neutral",
			tod:     ledger.Night,
			social:  3,
			want:    map[Category]bool{CategoryContent: true},
			notWant: []Category{CategoryExercises, CategoryActivities},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, Config{ExplorationRate: 0.0001})
			for i := 0; i < tt.social; i++ {
				e.history.records = append(e.history.records,
					ledger.InteractionRecord{Type: ledger.TypePeerMessage})
			}

			ctx := ledger.Context{TimeOfDay: tt.tod, Mood: ledger.Mood{Emotion: tt.mood}}
			got := e.scheduler.Refresh(context.Background(), "user-a", ctx, true)
			if got == nil {
				t.Fatal("expected refresh to run")
			}

			for cat := range tt.want {
				if _, ok := got[cat]; !ok {
					t.Errorf("expected category %s, got %v", cat, got)
				}
			}
			for _, cat := range tt.notWant {
				if _, ok := got[cat]; ok {
					t.Errorf("unexpected category %s in %v", cat, got)
				}
			}
			if len(got) == 0 {
				t.Error("at least one category must always refresh")
			}
		})
	}
}

func TestRefreshInvokesCallback(t *testing.T) {
	e := newEnv(t, Config{})

	e.scheduler.Refresh(context.Background(), "user-a", eveningContext(), true)

	if len(e.refreshed) != 1 {
		t.Fatalf("expected 1 callback, got %d", len(e.refreshed))
	}
	if e.refreshed[0].userID != "user-a" {
		t.Errorf("callback user = %s", e.refreshed[0].userID)
	}
	if len(e.refreshed[0].categories) == 0 {
		t.Error("callback got no categories")
	}
}

func TestRefreshDiscardedAfterStop(t *testing.T) {
	e := newEnv(t, Config{})

	// Tear the session down while the refresh callback is running.
	e.scheduler.refresh = func(_ context.Context, userID string, _ []Category, _ string) {
		e.scheduler.Stop(userID)
	}

	got := e.scheduler.Refresh(context.Background(), "user-a", eveningContext(), true)
	if got != nil {
		t.Errorf("expected discarded results, got %v", got)
	}
}

func TestStopIdempotent(t *testing.T) {
	e := newEnv(t, Config{})

	e.scheduler.Refresh(context.Background(), "user-a", eveningContext(), true)
	if e.scheduler.ActiveSessions() != 1 {
		t.Fatalf("expected 1 session, got %d", e.scheduler.ActiveSessions())
	}

	e.scheduler.Stop("user-a")
	e.scheduler.Stop("user-a")
	e.scheduler.Stop("never-seen")

	if e.scheduler.ActiveSessions() != 0 {
		t.Errorf("expected 0 sessions, got %d", e.scheduler.ActiveSessions())
	}
}

func TestDueSelection(t *testing.T) {
	e := newEnv(t, Config{MinInterval: 5 * time.Minute})
	ctx := eveningContext()

	e.scheduler.Refresh(context.Background(), "user-a", ctx, true)

	if due := e.scheduler.due(); len(due) != 0 {
		t.Errorf("freshly refreshed user should not be due: %v", due)
	}

	*e.clock = e.clock.Add(time.Hour)
	due := e.scheduler.due()
	if len(due) != 1 || due[0] != "user-a" {
		t.Errorf("expected user-a due, got %v", due)
	}
}
