// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package analytics records recommendation outcomes and derives
// effectiveness trends. Trends and adjustment suggestions are advisory:
// they feed the scheduler and a human reviewer, they are never applied
// automatically.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/attune/internal/logging"
	"github.com/tomtom215/attune/internal/metrics"
)

// Action is a tracked recommendation outcome.
type Action string

const (
	ActionImpression Action = "impression"
	ActionAccept     Action = "accept"
	ActionDismiss    Action = "dismiss"
	ActionComplete   Action = "complete"
	ActionFeedback   Action = "feedback"
)

// Valid reports whether the action is one of the tracked outcomes.
func (a Action) Valid() bool {
	switch a {
	case ActionImpression, ActionAccept, ActionDismiss, ActionComplete, ActionFeedback:
		return true
	default:
		return false
	}
}

// Trend classifies a category's recent effectiveness movement.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
	TrendNew       Trend = "new"
)

// TrackData carries optional details for a tracked action.
type TrackData struct {
	UserID       string        `json:"user_id,omitempty"`
	Category     string        `json:"category,omitempty"`
	Rating       int           `json:"rating,omitempty"`
	TimeToAction time.Duration `json:"time_to_action,omitempty"`
}

// Metric accumulates outcomes for one recommendation identifier.
type Metric struct {
	Impressions  int             `json:"impressions"`
	Accepts      int             `json:"accepts"`
	Dismisses    int             `json:"dismisses"`
	Completions  int             `json:"completions"`
	Feedbacks    int             `json:"feedbacks"`
	Ratings      []int           `json:"ratings"`
	TimeToAction []time.Duration `json:"time_to_action"`
	Category     string          `json:"category"`
	CreatedAt    time.Time       `json:"created_at"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// Performance is the derived effectiveness view for one recommendation.
type Performance struct {
	Metric Metric `json:"metric"`

	AcceptRate     float64 `json:"accept_rate"`
	CompletionRate float64 `json:"completion_rate"`
	EngagementRate float64 `json:"engagement_rate"`
	AverageRating  float64 `json:"average_rating"`

	// Score is the weighted composite in [0,1]:
	// 0.3·accept + 0.3·completion + 0.2·engagement + 0.2·(rating/5).
	Score float64 `json:"score"`
}

// Suggestion is a generated, never auto-applied tuning recommendation.
type Suggestion struct {
	Category string  `json:"category"`
	Kind     string  `json:"kind"`
	Message  string  `json:"message"`
	Factor   float64 `json:"factor,omitempty"`
}

// MetricSink persists metric snapshots. Failures degrade to in-memory
// operation; they are logged, never propagated to Track callers.
type MetricSink interface {
	UpsertMetric(ctx context.Context, id string, metric Metric) error
}

// outcome is one timestamped event in a category's history, kept for
// trend computation over time windows.
type outcome struct {
	at     time.Time
	action Action
	userID string
}

// Config holds analytics configuration.
type Config struct {
	// Retention is how long a metric may stay untouched before the sweep
	// removes it. Default: 30 days.
	Retention time.Duration

	// SweepInterval is how often the retention sweep runs.
	// Default: 1h.
	SweepInterval time.Duration

	// QueueSize bounds the pending metric persistence queue. When full,
	// snapshots are dropped (the metric stays current in memory).
	// Default: 256.
	QueueSize int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Retention:     30 * 24 * time.Hour,
		SweepInterval: time.Hour,
		QueueSize:     256,
	}
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Hour
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

// metricWrite is one queued metric snapshot awaiting persistence.
type metricWrite struct {
	id     string
	metric Metric
}

// Tracker aggregates recommendation outcomes. Safe for concurrent use.
type Tracker struct {
	config Config
	sink   MetricSink
	logger zerolog.Logger

	mu       sync.RWMutex
	metrics  map[string]*Metric
	outcomes map[string][]outcome // per category, chronological

	pending chan metricWrite

	now func() time.Time
}

// New creates a tracker. sink may be nil for in-memory-only operation.
func New(cfg Config, sink MetricSink) *Tracker {
	cfg = cfg.withDefaults()
	return &Tracker{
		config:   cfg,
		sink:     sink,
		logger:   logging.Component("analytics"),
		metrics:  make(map[string]*Metric),
		outcomes: make(map[string][]outcome),
		pending:  make(chan metricWrite, cfg.QueueSize),
		now:      time.Now,
	}
}

// Track records one outcome for a recommendation. Invalid actions are
// dropped with a warning; Track never fails.
func (t *Tracker) Track(recommendationID string, action Action, data TrackData) {
	if recommendationID == "" || !action.Valid() {
		t.logger.Warn().
			Str("recommendation_id", recommendationID).
			Str("action", string(action)).
			Msg("Dropping invalid analytics event")
		return
	}

	now := t.now()

	t.mu.Lock()
	metric := t.metrics[recommendationID]
	if metric == nil {
		metric = &Metric{Category: data.Category, CreatedAt: now}
		t.metrics[recommendationID] = metric
	}
	if metric.Category == "" {
		metric.Category = data.Category
	}

	switch action {
	case ActionImpression:
		metric.Impressions++
	case ActionAccept:
		metric.Accepts++
		if data.TimeToAction > 0 {
			metric.TimeToAction = append(metric.TimeToAction, data.TimeToAction)
		}
	case ActionDismiss:
		metric.Dismisses++
	case ActionComplete:
		metric.Completions++
	case ActionFeedback:
		metric.Feedbacks++
		if data.Rating >= 1 && data.Rating <= 5 {
			metric.Ratings = append(metric.Ratings, data.Rating)
		}
	}
	metric.LastUpdated = now

	category := metric.Category
	if category != "" {
		t.outcomes[category] = append(t.outcomes[category], outcome{at: now, action: action, userID: data.UserID})
	}
	snapshot := *metric
	t.mu.Unlock()

	if t.sink != nil {
		select {
		case t.pending <- metricWrite{id: recommendationID, metric: snapshot}:
		default:
			// Queue full: the metric stays current in memory, only this
			// snapshot's durability is lost.
			t.logger.Warn().Str("recommendation_id", recommendationID).
				Msg("Metric persistence queue full, snapshot dropped")
		}
	}
}

// Performance returns the derived view for one recommendation.
func (t *Tracker) Performance(recommendationID string) (Performance, bool) {
	t.mu.RLock()
	metric, ok := t.metrics[recommendationID]
	if !ok {
		t.mu.RUnlock()
		return Performance{}, false
	}
	snapshot := *metric
	snapshot.Ratings = append([]int(nil), metric.Ratings...)
	snapshot.TimeToAction = append([]time.Duration(nil), metric.TimeToAction...)
	t.mu.RUnlock()

	return derivePerformance(snapshot), true
}

// derivePerformance computes rates and the composite score from a metric.
func derivePerformance(m Metric) Performance {
	p := Performance{Metric: m}

	if m.Impressions > 0 {
		p.AcceptRate = clamp01(float64(m.Accepts) / float64(m.Impressions))
		p.EngagementRate = clamp01(float64(m.Accepts+m.Completions+m.Feedbacks) / float64(m.Impressions))
	}
	if m.Accepts > 0 {
		p.CompletionRate = clamp01(float64(m.Completions) / float64(m.Accepts))
	}
	if len(m.Ratings) > 0 {
		sum := 0
		for _, r := range m.Ratings {
			sum += r
		}
		p.AverageRating = float64(sum) / float64(len(m.Ratings))
	}

	p.Score = clamp01(0.3*p.AcceptRate + 0.3*p.CompletionRate + 0.2*p.EngagementRate + 0.2*(p.AverageRating/5))
	return p
}

// CategoryTrend splits the window in half and compares effectiveness
// (accept rate plus completion rate) between the halves. A difference
// above 0.1 is improving, below −0.1 declining, otherwise stable.
// A category with no older-half data is new.
func (t *Tracker) CategoryTrend(category string, window time.Duration) Trend {
	if window <= 0 {
		window = 24 * time.Hour
	}

	now := t.now()
	cutoff := now.Add(-window)
	middle := now.Add(-window / 2)

	t.mu.RLock()
	events := t.outcomes[category]
	var older, newer []outcome
	for _, ev := range events {
		switch {
		case ev.at.Before(cutoff):
		case ev.at.Before(middle):
			older = append(older, ev)
		default:
			newer = append(newer, ev)
		}
	}
	t.mu.RUnlock()

	if len(older) == 0 {
		return TrendNew
	}

	diff := halfEffectiveness(newer) - halfEffectiveness(older)
	switch {
	case diff > 0.1:
		return TrendImproving
	case diff < -0.1:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// halfEffectiveness is acceptRate + completionRate for one half-window.
func halfEffectiveness(events []outcome) float64 {
	var impressions, accepts, completions int
	for _, ev := range events {
		switch ev.action {
		case ActionImpression:
			impressions++
		case ActionAccept:
			accepts++
		case ActionComplete:
			completions++
		}
	}

	var acceptRate, completionRate float64
	if impressions > 0 {
		acceptRate = clamp01(float64(accepts) / float64(impressions))
	}
	if accepts > 0 {
		completionRate = clamp01(float64(completions) / float64(accepts))
	}
	return acceptRate + completionRate
}

// AcceptRate returns accepts/impressions over the window, optionally
// filtered to one user. Returns 0 when there were no impressions.
func (t *Tracker) AcceptRate(userID string, window time.Duration) float64 {
	cutoff := t.now().Add(-window)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var impressions, accepts int
	for _, events := range t.outcomes {
		for _, ev := range events {
			if ev.at.Before(cutoff) {
				continue
			}
			if userID != "" && ev.userID != userID {
				continue
			}
			switch ev.action {
			case ActionImpression:
				impressions++
			case ActionAccept:
				accepts++
			}
		}
	}

	if impressions == 0 {
		return 0
	}
	return clamp01(float64(accepts) / float64(impressions))
}

// Categories returns all categories with recorded outcomes.
func (t *Tracker) Categories() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.outcomes))
	for category := range t.outcomes {
		out = append(out, category)
	}
	return out
}

// Suggestions generates advisory adjustments for a category. Nothing here
// is applied automatically.
func (t *Tracker) Suggestions(category string, window time.Duration) []Suggestion {
	trend := t.CategoryTrend(category, window)

	var impressions, accepts int
	var ratings []int

	t.mu.RLock()
	for _, metric := range t.metrics {
		if metric.Category != category {
			continue
		}
		impressions += metric.Impressions
		accepts += metric.Accepts
		ratings = append(ratings, metric.Ratings...)
	}
	t.mu.RUnlock()

	var out []Suggestion

	if trend == TrendDeclining {
		out = append(out, Suggestion{
			Category: category,
			Kind:     "reduce_frequency",
			Message:  "Effectiveness is declining; reduce recommendation frequency",
			Factor:   0.7,
		})
	}

	if impressions > 0 && float64(accepts)/float64(impressions) < 0.2 {
		out = append(out, Suggestion{
			Category: category,
			Kind:     "quality_review",
			Message:  "Accept rate below 20%; review candidate quality",
		})
	}

	if len(ratings) > 0 {
		sum := 0
		for _, r := range ratings {
			sum += r
		}
		if avg := float64(sum) / float64(len(ratings)); avg < 3.0 {
			out = append(out, Suggestion{
				Category: category,
				Kind:     "content_review",
				Message:  "Average rating below 3.0; review content quality",
			})
		}
	}

	return out
}

// Sweep removes metrics untouched for longer than the retention period and
// trims outcome logs to the retention window. Returns the number of metrics
// removed.
func (t *Tracker) Sweep() int {
	cutoff := t.now().Add(-t.config.Retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, metric := range t.metrics {
		if metric.LastUpdated.Before(cutoff) {
			delete(t.metrics, id)
			removed++
		}
	}

	for category, events := range t.outcomes {
		idx := 0
		for idx < len(events) && events[idx].at.Before(cutoff) {
			idx++
		}
		if idx == len(events) {
			delete(t.outcomes, category)
		} else if idx > 0 {
			t.outcomes[category] = append([]outcome(nil), events[idx:]...)
		}
	}

	return removed
}

// Run drains the metric persistence queue and executes the periodic
// retention sweep until ctx is cancelled. It is intended to run under the
// supervisor tree.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case w := <-t.pending:
			t.persist(ctx, w)
		case <-ticker.C:
			if removed := t.Sweep(); removed > 0 {
				t.logger.Debug().Int("removed", removed).Msg("Retention sweep completed")
			}
		case <-ctx.Done():
			t.drainRemaining()
			return ctx.Err()
		}
	}
}

// persist writes one snapshot to the sink. Failures are logged; tracking
// never propagates storage errors.
func (t *Tracker) persist(ctx context.Context, w metricWrite) {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := t.sink.UpsertMetric(writeCtx, w.id, w.metric); err != nil {
		metrics.PersistErrors.Inc()
		t.logger.Warn().Err(err).Str("recommendation_id", w.id).
			Msg("Metric persistence failed")
	}
}

// drainRemaining flushes whatever is still queued at shutdown.
func (t *Tracker) drainRemaining() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case w := <-t.pending:
			t.persist(ctx, w)
		default:
			return
		}
	}
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
