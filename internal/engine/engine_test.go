// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/attune/internal/adapter"
	"github.com/tomtom215/attune/internal/analytics"
	"github.com/tomtom215/attune/internal/compat"
	"github.com/tomtom215/attune/internal/events"
	"github.com/tomtom215/attune/internal/insights"
	"github.com/tomtom215/attune/internal/ledger"
	"github.com/tomtom215/attune/internal/patterns"
	"github.com/tomtom215/attune/internal/scheduler"
	"github.com/tomtom215/attune/internal/storage"
)

func eveningContext() ledger.Context {
	return ledger.Context{
		TimeOfDay: ledger.Evening,
		DayOfWeek: 1,
		Mood:      ledger.Mood{Emotion: "neutral"},
	}
}

func TestTrackInteractionRecordsAndBridges(t *testing.T) {
	e := New(Config{}, nil, nil, nil)

	rec := e.TrackInteraction("user-a", ledger.TypeRecommendationAccept, ledger.RecommendationPayload{
		RecommendationID: "rec-1",
		Category:         "breathing",
		TimeToActionMs:   1500,
	}, eveningContext())

	if rec.ID == "" || rec.UserID != "user-a" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if e.Ledger().Len("user-a") != 1 {
		t.Errorf("ledger len = %d, want 1", e.Ledger().Len("user-a"))
	}

	perf, ok := e.Tracker().Performance("rec-1")
	if !ok {
		t.Fatal("expected analytics metric for accepted recommendation")
	}
	if perf.Metric.Accepts != 1 {
		t.Errorf("accepts = %d, want 1", perf.Metric.Accepts)
	}
}

func TestTrackInteractionFillsEmptyContext(t *testing.T) {
	e := New(Config{}, nil, nil, nil)
	e.now = func() time.Time { return time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC) }

	rec := e.TrackInteraction("user-a", ledger.TypeMoodLog, nil, ledger.Context{})
	if rec.Context.TimeOfDay != ledger.Morning {
		t.Errorf("time of day = %s, want morning", rec.Context.TimeOfDay)
	}
}

func TestGetRecommendationsFallbackForNewUser(t *testing.T) {
	e := New(Config{}, nil, nil, nil)

	got := e.GetRecommendations(context.Background(), "fresh-user", eveningContext())
	if len(got) == 0 {
		t.Fatal("expected curated fallback list")
	}

	types := make(map[ledger.Type]bool)
	for _, item := range got {
		types[item.Type] = true
	}
	if !types[ledger.TypeBreathingExercise] || !types[ledger.TypeMeditation] {
		t.Errorf("fallback list missing core items: %v", got)
	}
}

func TestGetRecommendationsPersonalized(t *testing.T) {
	e := New(Config{}, nil, nil, nil)
	ctx := eveningContext()

	for i := 0; i < 5; i++ {
		e.TrackInteraction("user-a", ledger.TypeJournaling, ledger.ContentPayload{
			Completed:  true,
			UserRating: 5,
		}, ctx)
	}
	e.TrackInteraction("user-a", ledger.TypeMeditation, ledger.ContentPayload{
		Completed:  true,
		UserRating: 1,
	}, ctx)

	got := e.GetRecommendations(context.Background(), "user-a", ctx)
	if len(got) == 0 {
		t.Fatal("expected recommendations")
	}
	if got[0].Type != ledger.TypeJournaling {
		t.Errorf("top item = %s, want journaling (heavily rated)", got[0].Type)
	}
}

func TestGetRecommendationsCached(t *testing.T) {
	e := New(Config{}, nil, nil, nil)
	ctx := eveningContext()

	first := e.GetRecommendations(context.Background(), "user-a", ctx)
	hitsBefore, _, _ := e.cache.Stats()
	second := e.GetRecommendations(context.Background(), "user-a", ctx)
	hitsAfter, _, _ := e.cache.Stats()

	if hitsAfter != hitsBefore+1 {
		t.Errorf("expected cache hit on second call, hits %d -> %d", hitsBefore, hitsAfter)
	}
	if len(first) != len(second) {
		t.Errorf("cached list differs: %d vs %d items", len(first), len(second))
	}
}

func TestGetRecommendationsSafetyBypassesCache(t *testing.T) {
	e := New(Config{}, nil, nil, nil)

	calm := eveningContext()
	e.GetRecommendations(context.Background(), "user-a", calm)

	critical := calm
	critical.AnxietyLevel = 9

	got := e.GetRecommendations(context.Background(), "user-a", critical)
	allowed := map[ledger.Type]bool{
		ledger.TypeBreathingExercise: true,
		ledger.TypeCrisisSupport:     true,
		ledger.TypeEmergencyContact:  true,
	}
	for _, item := range got {
		if !allowed[item.Type] {
			t.Errorf("non-safety item %s in critical response", item.Type)
		}
	}
	if len(got) != 3 {
		t.Errorf("expected 3 safety items, got %d", len(got))
	}
}

func TestGetRecommendationsUsesInsight(t *testing.T) {
	provider := &stubProvider{insight: &insights.Insight{
		RecommendedTypes: []string{string(ledger.TypeMeditation)},
		Confidence:       1.0,
	}}
	e := New(Config{}, nil, provider, nil)
	ctx := eveningContext()

	// Equal engagement on two activities; the insight should break the tie.
	for i := 0; i < 3; i++ {
		e.TrackInteraction("user-a", ledger.TypeJournaling, ledger.ContentPayload{UserRating: 4}, ctx)
		e.TrackInteraction("user-a", ledger.TypeMeditation, ledger.ContentPayload{UserRating: 4}, ctx)
	}

	got := e.GetRecommendations(context.Background(), "user-a", ctx)
	if len(got) == 0 {
		t.Fatal("expected recommendations")
	}
	if got[0].Type != ledger.TypeMeditation {
		t.Errorf("top item = %s, want meditation (insight boosted)", got[0].Type)
	}
}

func TestGetRecommendationsSurvivesFailingInsights(t *testing.T) {
	provider := &stubProvider{err: context.DeadlineExceeded}
	e := New(Config{}, nil, provider, nil)

	e.TrackInteraction("user-a", ledger.TypeJournaling, ledger.ContentPayload{UserRating: 4}, eveningContext())

	got := e.GetRecommendations(context.Background(), "user-a", eveningContext())
	if len(got) == 0 {
		t.Error("insight failure must not empty the recommendation list")
	}
}

type stubProvider struct {
	insight *insights.Insight
	err     error
}

func (p *stubProvider) GenerateInsight(_ context.Context, _ string, _ patterns.BehaviorProfile) (*insights.Insight, error) {
	return p.insight, p.err
}

func TestGetPeerMatchesWithoutStore(t *testing.T) {
	e := New(Config{}, nil, nil, nil)

	got := e.GetPeerMatches(context.Background(), "user-a", MatchOptions{})
	if got.Confidence != "low" {
		t.Errorf("confidence = %s, want low", got.Confidence)
	}
	if len(got.Excellent)+len(got.Good)+len(got.Fair) != 0 {
		t.Error("expected zero matches without storage")
	}
}

func TestGetPeerMatchesTiers(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	profiles := []compat.Profile{
		{
			UserID:             "user-a",
			Interests:          []string{"anxiety", "mindfulness"},
			Experiences:        []string{"therapy"},
			AgeRange:           compat.AgeRange{Min: 25, Max: 34},
			CommunicationStyle: "supportive",
		},
		{
			// Identical profile: top tier.
			UserID:             "twin",
			Interests:          []string{"anxiety", "mindfulness"},
			Experiences:        []string{"therapy"},
			AgeRange:           compat.AgeRange{Min: 25, Max: 34},
			CommunicationStyle: "supportive",
		},
		{
			// No overlap anywhere: filtered out.
			UserID:             "stranger",
			Interests:          []string{"running"},
			Experiences:        []string{"grief"},
			AgeRange:           compat.AgeRange{Min: 55, Max: 64},
			CommunicationStyle: "direct",
		},
	}
	for _, p := range profiles {
		if err := store.SaveUserProfile(ctx, p); err != nil {
			t.Fatalf("save %s: %v", p.UserID, err)
		}
	}

	e := New(Config{}, store, nil, nil)
	got := e.GetPeerMatches(ctx, "user-a", MatchOptions{})

	if len(got.Excellent) != 1 || got.Excellent[0].UserB != "twin" {
		t.Errorf("expected twin in excellent tier, got %+v", got)
	}
	for _, r := range append(got.Good, got.Fair...) {
		if r.UserB == "stranger" {
			t.Error("stranger should fall below the fair threshold")
		}
	}
}

func TestGetPeerMatchesUnknownUser(t *testing.T) {
	e := New(Config{}, storage.NewMemoryStore(), nil, nil)

	got := e.GetPeerMatches(context.Background(), "nobody", MatchOptions{})
	if got.Confidence != "low" {
		t.Errorf("confidence = %s, want low for missing profile", got.Confidence)
	}
}

func TestRefreshCallbackLifecycle(t *testing.T) {
	e := New(Config{Scheduler: scheduler.Config{MinInterval: time.Minute}}, nil, nil, nil)

	var invoked []string
	e.RegisterRefreshCallback("user-a", func(categories []scheduler.Category, reason string) {
		invoked = append(invoked, reason)
	})

	if got := e.Refresh(context.Background(), "user-a", eveningContext(), true); got == nil {
		t.Fatal("forced refresh should run")
	}
	if len(invoked) != 1 {
		t.Fatalf("expected 1 callback invocation, got %d", len(invoked))
	}

	e.UnregisterRefreshCallback("user-a")
	e.Refresh(context.Background(), "user-a", eveningContext(), true)
	if len(invoked) != 1 {
		t.Error("callback fired after unregistration")
	}
}

func TestStopRefreshIdempotent(t *testing.T) {
	e := New(Config{}, nil, nil, nil)

	e.Refresh(context.Background(), "user-a", eveningContext(), true)
	e.StopRefresh("user-a")
	e.StopRefresh("user-a")

	if e.Scheduler().ActiveSessions() != 0 {
		t.Errorf("expected 0 sessions, got %d", e.Scheduler().ActiveSessions())
	}
}

func TestRefreshEventsPublished(t *testing.T) {
	bus := events.NewBus(8, nil)
	e := New(Config{}, nil, nil, bus)
	defer e.Close()

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := bus.Subscribe(subCtx, events.TopicRefreshCompleted)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	e.Refresh(context.Background(), "user-a", eveningContext(), true)

	select {
	case msg := <-msgs:
		got, err := events.Decode[events.RefreshCompleted](msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		msg.Ack()
		if got.UserID != "user-a" || len(got.Categories) == 0 {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refresh event")
	}
}

func TestMilestoneEvent(t *testing.T) {
	bus := events.NewBus(8, nil)
	e := New(Config{}, nil, nil, bus)
	defer e.Close()

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := bus.Subscribe(subCtx, events.TopicMilestoneReached)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 10; i++ {
		e.TrackInteraction("user-a", ledger.TypeMoodLog, nil, eveningContext())
	}

	select {
	case msg := <-msgs:
		got, err := events.Decode[events.MilestoneReached](msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		msg.Ack()
		if got.Milestone != "first_10_interactions" {
			t.Errorf("milestone = %s", got.Milestone)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for milestone event")
	}
}

func TestAnalyticsSummary(t *testing.T) {
	e := New(Config{}, nil, nil, nil)
	ctx := eveningContext()

	for i := 0; i < 4; i++ {
		e.Track("rec-1", analytics.ActionImpression, analytics.TrackData{UserID: "user-a", Category: "breathing"})
	}
	e.TrackInteraction("user-a", ledger.TypeRecommendationAccept, ledger.RecommendationPayload{
		RecommendationID: "rec-1",
		Category:         "breathing",
	}, ctx)

	summary := e.AnalyticsSummary("user-a")
	if summary.Overview.TotalInteractions != 1 {
		t.Errorf("total interactions = %d, want 1", summary.Overview.TotalInteractions)
	}
	if summary.Overview.AcceptRate24h != 0.25 {
		t.Errorf("accept rate = %v, want 0.25", summary.Overview.AcceptRate24h)
	}
	if len(summary.Categories) != 1 || summary.Categories[0].Category != "breathing" {
		t.Errorf("categories = %+v", summary.Categories)
	}
	if summary.Categories[0].Trend != analytics.TrendNew {
		t.Errorf("trend = %s, want new", summary.Categories[0].Trend)
	}
}

func totalImpressions(t *testing.T, e *Engine, items []adapter.Adapted) int {
	t.Helper()
	total := 0
	for _, item := range items {
		if perf, ok := e.Tracker().Performance(item.ID); ok {
			total += perf.Metric.Impressions
		}
	}
	return total
}

func TestGetRecommendationsRecordsImpressions(t *testing.T) {
	e := New(Config{}, nil, nil, nil)
	ctx := eveningContext()
	e.TrackInteraction("user-a", ledger.TypeJournaling, ledger.ContentPayload{UserRating: 4}, ctx)

	got := e.GetRecommendations(context.Background(), "user-a", ctx)
	if len(got) == 0 {
		t.Fatal("expected recommendations")
	}
	for _, item := range got {
		if item.ID != "user-a|"+string(item.Type) {
			t.Errorf("item ID = %q, want user-a|%s", item.ID, item.Type)
		}
	}
	if n := totalImpressions(t, e, got); n != len(got) {
		t.Errorf("impressions after first serve = %d, want %d", n, len(got))
	}

	// A cache hit still counts as serving the list.
	again := e.GetRecommendations(context.Background(), "user-a", ctx)
	if n := totalImpressions(t, e, again); n != 2*len(again) {
		t.Errorf("impressions after cached serve = %d, want %d", n, 2*len(again))
	}
}

func TestAcceptRateClosesLoopWithServedID(t *testing.T) {
	e := New(Config{}, nil, nil, nil)
	ctx := eveningContext()
	e.TrackInteraction("user-a", ledger.TypeJournaling, ledger.ContentPayload{UserRating: 4}, ctx)

	served := e.GetRecommendations(context.Background(), "user-a", ctx)
	if len(served) == 0 {
		t.Fatal("expected recommendations")
	}

	e.TrackInteraction("user-a", ledger.TypeRecommendationAccept, ledger.RecommendationPayload{
		RecommendationID: served[0].ID,
		Category:         string(served[0].Type),
	}, ctx)

	summary := e.AnalyticsSummary("user-a")
	if summary.Overview.AcceptRate24h <= 0 {
		t.Errorf("accept rate = %v, want > 0 after accepting a served item", summary.Overview.AcceptRate24h)
	}
}

func TestTrackInteractionBridgesCompletion(t *testing.T) {
	e := New(Config{}, nil, nil, nil)

	e.TrackInteraction("user-a", ledger.TypeContentComplete, ledger.RecommendationPayload{
		RecommendationID: "rec-1",
		Category:         "meditation",
	}, eveningContext())

	perf, ok := e.Tracker().Performance("rec-1")
	if !ok {
		t.Fatal("expected analytics metric for completed recommendation")
	}
	if perf.Metric.Completions != 1 {
		t.Errorf("completions = %d, want 1", perf.Metric.Completions)
	}
}

func TestTrackInteractionBridgesRatingAsFeedback(t *testing.T) {
	e := New(Config{}, nil, nil, nil)

	e.TrackInteraction("user-a", ledger.TypeRecommendationAccept, ledger.RecommendationPayload{
		RecommendationID: "rec-1",
		Category:         "breathing",
		Rating:           4,
	}, eveningContext())

	perf, ok := e.Tracker().Performance("rec-1")
	if !ok {
		t.Fatal("expected analytics metric")
	}
	if perf.Metric.Accepts != 1 {
		t.Errorf("accepts = %d, want 1", perf.Metric.Accepts)
	}
	if len(perf.Metric.Ratings) != 1 || perf.Metric.Ratings[0] != 4 {
		t.Errorf("ratings = %v, want [4]", perf.Metric.Ratings)
	}
}

func TestHydrationFromStore(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 3, 9, 19, 0, 0, 0, time.UTC)
	persisted := make([]ledger.InteractionRecord, 0, 4)
	for i := 0; i < 4; i++ {
		persisted = append(persisted, ledger.InteractionRecord{
			ID:        string(rune('a' + i)),
			UserID:    "user-a",
			Type:      ledger.TypeJournaling,
			Payload:   ledger.ContentPayload{UserRating: 5},
			Context:   ledger.ContextAt(base),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	if err := store.AppendInteractions(ctx, persisted); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	e := New(Config{}, store, nil, nil)

	got := e.GetRecommendations(ctx, "user-a", eveningContext())
	if len(got) == 0 {
		t.Fatal("expected recommendations")
	}
	if got[0].Type != ledger.TypeJournaling {
		t.Errorf("top item = %s, want journaling from persisted history", got[0].Type)
	}
	if e.Ledger().Len("user-a") != 4 {
		t.Errorf("ledger len = %d, want 4 hydrated records", e.Ledger().Len("user-a"))
	}
}
