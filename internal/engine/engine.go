// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package engine wires the personalization components behind one facade.
//
// Every public entry point degrades instead of failing: a storage outage,
// a tripped insight breaker, or an internal panic yields a curated fallback
// list, zero matches with low confidence, or a no-op. Personalization is
// never allowed to block the user action that invoked it.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/attune/internal/adapter"
	"github.com/tomtom215/attune/internal/analytics"
	"github.com/tomtom215/attune/internal/cache"
	"github.com/tomtom215/attune/internal/compat"
	"github.com/tomtom215/attune/internal/events"
	"github.com/tomtom215/attune/internal/insights"
	"github.com/tomtom215/attune/internal/ledger"
	"github.com/tomtom215/attune/internal/logging"
	"github.com/tomtom215/attune/internal/metrics"
	"github.com/tomtom215/attune/internal/patterns"
	"github.com/tomtom215/attune/internal/scheduler"
	"github.com/tomtom215/attune/internal/storage"
)

// Config aggregates component configuration.
type Config struct {
	Ledger    ledger.Config
	Adapter   adapter.Config
	Weights   compat.Weights
	Scheduler scheduler.Config
	Analytics analytics.Config
	Insights  insights.Config

	// SessionGap separates interaction sessions when learning patterns.
	SessionGap time.Duration

	// CacheCapacity and CacheTTL bound the adapted-list cache.
	CacheCapacity int
	CacheTTL      time.Duration
}

// RefreshCallback is invoked after a refresh pass regenerates the given
// categories for the registered user.
type RefreshCallback func(categories []scheduler.Category, reason string)

// Engine is the personalization facade consumed by the HTTP layer.
type Engine struct {
	config Config

	ledger    *ledger.Ledger
	adapter   *adapter.Adapter
	scorer    *compat.Scorer
	tracker   *analytics.Tracker
	scheduler *scheduler.Scheduler
	insights  *insights.Client
	bus       *events.Bus
	store     storage.Store
	cache     *cache.LRU[[]adapter.Adapted]

	mu        sync.RWMutex
	callbacks map[string]RefreshCallback
	hydrated  map[string]bool

	logger zerolog.Logger
	now    func() time.Time
}

// milestones are interaction counts that emit a milestone event when
// crossed.
var milestones = map[int]string{
	10:  "first_10_interactions",
	50:  "consistent_engagement",
	100: "power_user",
}

// New wires the engine. store may be nil for in-memory-only operation;
// provider may be nil when no AI insight backend is configured; bus may be
// nil to disable event publication.
func New(cfg Config, store storage.Store, provider insights.Provider, bus *events.Bus) *Engine {
	if cfg.SessionGap <= 0 {
		cfg.SessionGap = patterns.DefaultSessionGap
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = 4096
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	e := &Engine{
		config:    cfg,
		adapter:   adapter.New(cfg.Adapter),
		scorer:    compat.New(cfg.Weights),
		insights:  insights.NewClient(provider, cfg.Insights),
		bus:       bus,
		store:     store,
		cache:     cache.NewLRU[[]adapter.Adapted](cfg.CacheCapacity, cfg.CacheTTL),
		callbacks: make(map[string]RefreshCallback),
		hydrated:  make(map[string]bool),
		logger:    logging.Component("engine"),
		now:       time.Now,
	}

	var sink ledger.Sink
	var metricSink analytics.MetricSink
	if store != nil {
		sink = store
		metricSink = store
	}
	e.ledger = ledger.New(cfg.Ledger, sink)
	e.tracker = analytics.New(cfg.Analytics, metricSink)
	e.scheduler = scheduler.New(cfg.Scheduler, e.ledger, e.tracker, e.profileFor, e.onRefresh)

	return e
}

// Ledger exposes the interaction ledger for supervision.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Tracker exposes the analytics tracker for supervision.
func (e *Engine) Tracker() *analytics.Tracker { return e.tracker }

// Scheduler exposes the refresh scheduler for supervision.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }

// TrackInteraction records one interaction. A zero snapshot is filled from
// the current wall clock. Recommendation accepts and dismissals also feed
// the analytics tracker. Never fails.
func (e *Engine) TrackInteraction(userID string, typ ledger.Type, payload ledger.Payload, snapshot ledger.Context) ledger.InteractionRecord {
	if snapshot == (ledger.Context{}) {
		snapshot = ledger.ContextAt(e.now())
	}

	e.hydrate(userID)
	rec := e.ledger.Record(userID, typ, payload, snapshot)

	if rp, ok := payload.(ledger.RecommendationPayload); ok && rp.RecommendationID != "" {
		data := analytics.TrackData{
			UserID:       userID,
			Category:     rp.Category,
			Rating:       rp.Rating,
			TimeToAction: time.Duration(rp.TimeToActionMs) * time.Millisecond,
		}
		switch typ {
		case ledger.TypeRecommendationAccept:
			e.tracker.Track(rp.RecommendationID, analytics.ActionAccept, data)
		case ledger.TypeRecommendationDismiss:
			e.tracker.Track(rp.RecommendationID, analytics.ActionDismiss, data)
		case ledger.TypeContentComplete:
			e.tracker.Track(rp.RecommendationID, analytics.ActionComplete, data)
		}
		// A rating can ride along on any outcome; record it separately so
		// the accept itself is not double-counted.
		if rp.Rating >= 1 && rp.Rating <= 5 {
			e.tracker.Track(rp.RecommendationID, analytics.ActionFeedback, data)
		}
	}

	e.checkMilestone(userID)
	return rec
}

// Track feeds a recommendation outcome directly to analytics.
func (e *Engine) Track(recommendationID string, action analytics.Action, data analytics.TrackData) {
	e.tracker.Track(recommendationID, action, data)
}

// GetRecommendations returns the adapted recommendation list for the user's
// current context. On any internal failure it serves the curated fallback
// list instead of an error.
func (e *Engine) GetRecommendations(ctx context.Context, userID string, current ledger.Context) (out []adapter.Adapted) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Fallbacks.WithLabelValues("recommendations").Inc()
			e.logger.Error().Interface("panic", r).Str("user_id", userID).
				Msg("recommendation pipeline failed, serving fallback list")
			out = e.fallbackList(current)
		}
	}()

	if current == (ledger.Context{}) {
		current = ledger.ContextAt(e.now())
	}

	// The safety path must reflect the live context, never a cached list.
	critical := e.adapter.Critical(current)
	key := cacheKey(userID, current)
	if !critical {
		if cached, ok := e.cache.Get(key); ok {
			e.recordImpressions(userID, cached)
			return cached
		}
	}

	e.hydrate(userID)
	base := e.baseItems(ctx, userID)
	adapted := e.adapter.Adapt(base, current)
	if len(adapted) == 0 {
		metrics.Fallbacks.WithLabelValues("recommendations").Inc()
		return e.fallbackList(current)
	}
	for i := range adapted {
		adapted[i].ID = recommendationID(userID, adapted[i].Type)
	}

	if !critical {
		e.cache.Set(key, adapted)
	}
	e.recordImpressions(userID, adapted)
	e.publish(events.TopicPlanAdapted, events.PlanAdapted{
		UserID:         userID,
		SafetyOverride: critical,
		ItemCount:      len(adapted),
		At:             e.now(),
	})
	return adapted
}

// recommendationID derives a stable identifier for a served item. Clients
// echo it back on accept, dismiss, and completion payloads so outcomes join
// up with the impressions recorded at serve time.
func recommendationID(userID string, typ ledger.Type) string {
	return userID + "|" + string(typ)
}

// recordImpressions counts one impression per served item so accept rates
// have a denominator.
func (e *Engine) recordImpressions(userID string, items []adapter.Adapted) {
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		e.tracker.Track(item.ID, analytics.ActionImpression, analytics.TrackData{
			UserID:   userID,
			Category: string(item.Type),
		})
	}
}

// MatchOptions tunes peer matching.
type MatchOptions struct {
	// Limit caps matches per tier. Zero means 10.
	Limit int
}

// Matches groups scored peers by compatibility tier.
type Matches struct {
	Excellent []compat.Result `json:"excellent"`
	Good      []compat.Result `json:"good"`
	Fair      []compat.Result `json:"fair"`

	// Confidence is "low" when matching degraded or data was sparse.
	Confidence string `json:"confidence"`
}

// GetPeerMatches scores the user against all candidate peers and buckets
// the results. Storage failures degrade to zero matches with low confidence.
func (e *Engine) GetPeerMatches(ctx context.Context, userID string, opts MatchOptions) (out Matches) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Fallbacks.WithLabelValues("matches").Inc()
			e.logger.Error().Interface("panic", r).Str("user_id", userID).
				Msg("peer matching failed, serving empty result")
			out = Matches{Confidence: "low"}
		}
	}()

	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	if e.store == nil {
		metrics.Fallbacks.WithLabelValues("matches").Inc()
		return Matches{Confidence: "low"}
	}

	profile, err := e.store.FetchUserProfile(ctx, userID)
	if err != nil {
		metrics.Fallbacks.WithLabelValues("matches").Inc()
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("profile fetch failed, no matches")
		return Matches{Confidence: "low"}
	}

	candidates, err := e.store.FetchCandidatePeers(ctx, userID)
	if err != nil {
		metrics.Fallbacks.WithLabelValues("matches").Inc()
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("candidate fetch failed, no matches")
		return Matches{Confidence: "low"}
	}

	e.hydrate(userID)
	behaviorA := e.profileFor(userID)

	results := make([]compat.Result, 0, len(candidates))
	for _, candidate := range candidates {
		e.hydrate(candidate.UserID)
		behaviorB := e.profileFor(candidate.UserID)
		results = append(results, e.scorer.Score(profile, candidate, behaviorA, behaviorB))
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	out.Confidence = "normal"
	lowCount := 0
	for _, r := range results {
		if r.Confidence == "low" {
			lowCount++
		}
		switch {
		case r.Score >= 0.75:
			if len(out.Excellent) < opts.Limit {
				out.Excellent = append(out.Excellent, r)
			}
		case r.Score >= 0.55:
			if len(out.Good) < opts.Limit {
				out.Good = append(out.Good, r)
			}
		case r.Score >= 0.40:
			if len(out.Fair) < opts.Limit {
				out.Fair = append(out.Fair, r)
			}
		}
	}
	if len(results) == 0 || lowCount*2 > len(results) {
		out.Confidence = "low"
	}
	return out
}

// SaveProfile persists the user's matching profile so peers can be scored
// against it. Unlike the read paths this surfaces storage errors: a silently
// dropped profile write would leave the user invisible to matching.
func (e *Engine) SaveProfile(ctx context.Context, profile compat.Profile) error {
	if e.store == nil {
		return fmt.Errorf("save profile: %w", storage.ErrUnavailable)
	}
	return e.store.SaveUserProfile(ctx, profile)
}

// ShouldRefresh reports whether the scheduler would refresh the user now.
func (e *Engine) ShouldRefresh(userID string, current ledger.Context) bool {
	if current == (ledger.Context{}) {
		current = ledger.ContextAt(e.now())
	}
	return e.scheduler.ShouldRefresh(userID, current)
}

// Refresh runs a refresh pass for the user. See scheduler.Refresh for the
// single-flight and min-interval semantics.
func (e *Engine) Refresh(ctx context.Context, userID string, current ledger.Context, force bool) map[scheduler.Category]scheduler.Result {
	if current == (ledger.Context{}) {
		current = ledger.ContextAt(e.now())
	}
	return e.scheduler.Refresh(ctx, userID, current, force)
}

// StopRefresh tears down the user's refresh session and callback. Safe to
// call repeatedly or when nothing is scheduled.
func (e *Engine) StopRefresh(userID string) {
	e.scheduler.Stop(userID)

	e.mu.Lock()
	delete(e.callbacks, userID)
	e.mu.Unlock()
}

// RegisterRefreshCallback sets the callback fired after the user's refresh
// passes. A second registration replaces the first.
func (e *Engine) RegisterRefreshCallback(userID string, cb RefreshCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks[userID] = cb
}

// UnregisterRefreshCallback removes the user's callback, if any.
func (e *Engine) UnregisterRefreshCallback(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.callbacks, userID)
}

// Summary is the analytics view returned to callers.
type Summary struct {
	Overview   Overview           `json:"overview"`
	Categories []CategoryAnalysis `json:"categories"`
}

// Overview aggregates per-user engagement.
type Overview struct {
	TotalInteractions int     `json:"total_interactions"`
	AcceptRate24h     float64 `json:"accept_rate_24h"`
	AcceptRate7d      float64 `json:"accept_rate_7d"`
}

// CategoryAnalysis pairs a category's trend with its suggestions.
type CategoryAnalysis struct {
	Category    string                 `json:"category"`
	Trend       analytics.Trend        `json:"trend"`
	Suggestions []analytics.Suggestion `json:"suggestions,omitempty"`
}

// AnalyticsSummary builds the performance overview for one user plus the
// cross-user category analysis.
func (e *Engine) AnalyticsSummary(userID string) Summary {
	e.hydrate(userID)

	summary := Summary{
		Overview: Overview{
			TotalInteractions: e.ledger.Len(userID),
			AcceptRate24h:     e.tracker.AcceptRate(userID, 24*time.Hour),
			AcceptRate7d:      e.tracker.AcceptRate(userID, 7*24*time.Hour),
		},
	}

	window := 7 * 24 * time.Hour
	for _, category := range e.tracker.Categories() {
		summary.Categories = append(summary.Categories, CategoryAnalysis{
			Category:    category,
			Trend:       e.tracker.CategoryTrend(category, window),
			Suggestions: e.tracker.Suggestions(category, window),
		})
	}
	return summary
}

// Close releases the event bus. The supervisor tree owns component
// shutdown; Close only covers resources outside it.
func (e *Engine) Close() error {
	if e.bus != nil {
		return e.bus.Close()
	}
	return nil
}

// profileFor learns the user's behavior profile from their ledger history.
func (e *Engine) profileFor(userID string) patterns.BehaviorProfile {
	return patterns.Learn(e.ledger.All(userID), patterns.Options{SessionGap: e.config.SessionGap})
}

// hydrate seeds the in-memory ledger from persisted history the first time
// a user is seen. Failures leave the user with an empty in-memory history.
func (e *Engine) hydrate(userID string) {
	e.mu.Lock()
	if e.hydrated[userID] {
		e.mu.Unlock()
		return
	}
	e.hydrated[userID] = true
	e.mu.Unlock()

	if e.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := e.store.LoadInteractions(ctx, userID)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("history hydration failed")
		return
	}
	e.ledger.Restore(userID, records)
}

// baseItems derives the pre-adaptation recommendation list from the user's
// learned preferences, reordered by AI insight when one is available.
func (e *Engine) baseItems(ctx context.Context, userID string) []adapter.Item {
	profile := e.profileFor(userID)
	if profile.Empty() {
		return defaultBaseItems()
	}

	maxCount := 0
	for _, n := range profile.ContentPreferences.ActivityCounts {
		if n > maxCount {
			maxCount = n
		}
	}

	items := make([]adapter.Item, 0, len(profile.ContentPreferences.ActivityCounts))
	for typ, count := range profile.ContentPreferences.ActivityCounts {
		score := 0.2 * float64(count) / float64(maxCount)
		if eff, ok := profile.ContentPreferences.EffectivenessScores[typ]; ok {
			score += 0.5 * eff
		}
		if rating, ok := profile.ContentPreferences.UserRatings[typ]; ok {
			score += 0.3 * rating / 5
		}
		items = append(items, adapter.Item{Type: typ, Score: clamp01(score)})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Type < items[j].Type
	})

	if insight, err := e.insights.Generate(ctx, userID, profile); err == nil {
		items = applyInsight(items, insight)
	}
	return items
}

// applyInsight boosts items the provider recommends, scaled by its
// confidence. Unknown types in the insight are ignored.
func applyInsight(items []adapter.Item, insight *insights.Insight) []adapter.Item {
	if insight == nil || insight.Confidence <= 0 {
		return items
	}

	recommended := make(map[ledger.Type]bool, len(insight.RecommendedTypes))
	for _, typ := range insight.RecommendedTypes {
		recommended[ledger.Type(typ)] = true
	}

	out := make([]adapter.Item, len(items))
	copy(out, items)
	for i := range out {
		if recommended[out[i].Type] {
			out[i].Score = clamp01(out[i].Score + 0.15*insight.Confidence)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// defaultBaseItems is the curated starting list for users with no history.
func defaultBaseItems() []adapter.Item {
	return []adapter.Item{
		{Type: ledger.TypeBreathingExercise, Score: 0.8},
		{Type: ledger.TypeMeditation, Score: 0.7},
		{Type: ledger.TypeJournaling, Score: 0.6},
		{Type: ledger.TypePhysicalExercise, Score: 0.5},
	}
}

// fallbackList is the degraded-mode response: the curated list run through
// adaptation so the safety override still applies, or verbatim if even that
// fails.
func (e *Engine) fallbackList(current ledger.Context) []adapter.Adapted {
	adapted := e.adapter.Adapt(defaultBaseItems(), current)
	if len(adapted) > 0 {
		return adapted
	}
	out := make([]adapter.Adapted, 0, 4)
	for _, item := range defaultBaseItems() {
		out = append(out, adapter.Adapted{Type: item.Type, Score: item.Score})
	}
	return out
}

// onRefresh is the scheduler's regeneration hook. It invalidates cached
// lists, notifies the registered callback, and publishes the refresh event.
func (e *Engine) onRefresh(_ context.Context, userID string, categories []scheduler.Category, reason string) {
	e.invalidateUser(userID)

	e.mu.RLock()
	cb := e.callbacks[userID]
	e.mu.RUnlock()
	if cb != nil {
		cb(categories, reason)
	}

	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	e.publish(events.TopicRefreshCompleted, events.RefreshCompleted{
		UserID:     userID,
		Categories: names,
		Reason:     reason,
		At:         e.now(),
	})
}

// invalidateUser drops every cached list for the user across contexts.
func (e *Engine) invalidateUser(userID string) {
	for _, tod := range []ledger.TimeOfDay{ledger.Morning, ledger.Afternoon, ledger.Evening, ledger.Night} {
		for _, mood := range patterns.CanonicalMoods {
			e.cache.Invalidate(userID + "|" + string(tod) + "|" + string(mood))
		}
	}
}

func (e *Engine) checkMilestone(userID string) {
	name, ok := milestones[e.ledger.Len(userID)]
	if !ok {
		return
	}
	e.publish(events.TopicMilestoneReached, events.MilestoneReached{
		UserID:    userID,
		Milestone: name,
		At:        e.now(),
	})
}

// publish sends an event best-effort. Delivery failures are logged only.
func (e *Engine) publish(topic string, payload any) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(topic, payload); err != nil {
		e.logger.Warn().Err(err).Str("topic", topic).Msg("event publish failed")
	}
}

func cacheKey(userID string, c ledger.Context) string {
	return userID + "|" + string(c.TimeOfDay) + "|" + string(patterns.NormalizeMood(c.Mood.Emotion))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
