// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package scheduler drives adaptive per-user recommendation refreshes.
//
// Each active user owns a session object holding their last refresh time,
// their computed interval, and a snapshot of the context at the last
// refresh. Intervals adapt to engagement: heavier usage shortens them,
// disengagement lengthens them. A single process-wide guard serializes
// refresh passes; a pass requested while one is in flight is dropped, not
// queued.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/attune/internal/ledger"
	"github.com/tomtom215/attune/internal/logging"
	"github.com/tomtom215/attune/internal/metrics"
	"github.com/tomtom215/attune/internal/patterns"
)

// Category identifies a refreshable recommendation category.
type Category string

const (
	CategoryContent    Category = "content"
	CategoryPeers      Category = "peers"
	CategoryExercises  Category = "exercises"
	CategoryActivities Category = "activities"
)

// Result describes one category's outcome within a refresh pass.
type Result struct {
	Category Category  `json:"category"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// HistorySource supplies a user's most recent interactions, newest first.
type HistorySource interface {
	Recent(userID string, n int) []ledger.InteractionRecord
}

// RateSource reports a user's recommendation accept rate over a window.
type RateSource interface {
	AcceptRate(userID string, window time.Duration) float64
}

// RefreshFunc regenerates the given categories for a user. It is invoked
// while the process-wide refresh guard is held.
type RefreshFunc func(ctx context.Context, userID string, categories []Category, reason string)

// Config tunes refresh cadence. Durations at or below zero take defaults.
type Config struct {
	// MinInterval is the floor between refreshes for one user.
	MinInterval time.Duration

	// MaxInterval is the ceiling on the adaptive interval.
	MaxInterval time.Duration

	// Staleness is the age of the last refresh past which a refresh is
	// overdue regardless of other signals.
	Staleness time.Duration

	// EngagementThreshold is the 24h accept rate below which a refresh
	// is triggered to try different recommendations.
	EngagementThreshold float64

	// ExplorationRate is the probability of refreshing peer matches even
	// when recent social activity suggests they are fine.
	ExplorationRate float64

	// TickInterval is the cadence of the background sweep in Run.
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinInterval <= 0 {
		c.MinInterval = 5 * time.Minute
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 2 * time.Hour
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = c.MinInterval
	}
	if c.Staleness <= 0 {
		c.Staleness = 30 * time.Minute
	}
	if c.EngagementThreshold <= 0 {
		c.EngagementThreshold = 0.3
	}
	if c.ExplorationRate <= 0 {
		c.ExplorationRate = 0.3
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	return c
}

// session is the per-user refresh state. Torn down on Stop.
type session struct {
	lastRefresh  time.Time
	interval     time.Duration
	lastSnapshot string
}

// Scheduler owns all user sessions and the process-wide refresh guard.
type Scheduler struct {
	config  Config
	history HistorySource
	rates   RateSource
	profile func(userID string) patterns.BehaviorProfile
	refresh RefreshFunc
	logger  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	refreshing atomic.Bool

	rng   *rand.Rand
	rngMu sync.Mutex

	now func() time.Time
}

// New builds a scheduler. profileFn derives the user's current behavior
// profile; refreshFn performs the actual regeneration.
func New(cfg Config, history HistorySource, rates RateSource, profileFn func(string) patterns.BehaviorProfile, refreshFn RefreshFunc) *Scheduler {
	return &Scheduler{
		config:   cfg.withDefaults(),
		history:  history,
		rates:    rates,
		profile:  profileFn,
		refresh:  refreshFn,
		logger:   logging.Component("scheduler"),
		sessions: make(map[string]*session),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// ComputeInterval derives the user's adaptive refresh interval from their
// behavior profile and recent accept rate.
func (s *Scheduler) ComputeInterval(userID string) time.Duration {
	interval := 2 * s.config.MinInterval

	profile := s.profile(userID)
	if profile.EngagementPatterns.AverageSessionLength > 10*time.Minute {
		interval = scale(interval, 0.7)
	}
	if weeklySessions(profile) > 5 {
		interval = scale(interval, 0.8)
	}

	acceptRate := s.rates.AcceptRate(userID, 24*time.Hour)
	switch {
	case acceptRate > 0.5:
		interval = scale(interval, 0.9)
	case acceptRate < 0.2:
		interval = scale(interval, 1.5)
	}

	if bucket, count, ok := profile.PreferredBucket(); ok {
		if count > 10 && bucket == ledger.TimeOfDayFromHour(s.now().Hour()) {
			interval = scale(interval, 0.8)
		}
	}

	if interval < s.config.MinInterval {
		interval = s.config.MinInterval
	}
	if interval > s.config.MaxInterval {
		interval = s.config.MaxInterval
	}

	metrics.RefreshInterval.Observe(interval.Seconds())
	return interval
}

// ShouldRefresh reports whether any refresh trigger currently holds for the
// user, given their present context.
func (s *Scheduler) ShouldRefresh(userID string, current ledger.Context) bool {
	s.mu.Lock()
	sess := s.ensureSessionLocked(userID)
	lastRefresh := sess.lastRefresh
	lastSnapshot := sess.lastSnapshot
	s.mu.Unlock()

	now := s.now()

	if lastRefresh.IsZero() || now.Sub(lastRefresh) > s.config.Staleness {
		return true
	}
	if s.recommendationHeavy(userID) {
		return true
	}
	if s.rates.AcceptRate(userID, 24*time.Hour) < s.config.EngagementThreshold {
		return true
	}
	if snapshotKey(current) != lastSnapshot {
		return true
	}
	return false
}

// Refresh runs one refresh pass for the user. It returns nil without doing
// anything when another pass is in flight, or when called again within
// MinInterval without force. Results are discarded if the user's session
// was stopped while the pass ran.
func (s *Scheduler) Refresh(ctx context.Context, userID string, current ledger.Context, force bool) map[Category]Result {
	if !s.refreshing.CompareAndSwap(false, true) {
		metrics.RefreshPasses.WithLabelValues("skipped").Inc()
		s.logger.Debug().Str("user_id", userID).Msg("refresh pass already in flight")
		return nil
	}
	defer s.refreshing.Store(false)

	now := s.now()

	s.mu.Lock()
	sess := s.ensureSessionLocked(userID)
	if !force && !sess.lastRefresh.IsZero() && now.Sub(sess.lastRefresh) < s.config.MinInterval {
		s.mu.Unlock()
		metrics.RefreshPasses.WithLabelValues("skipped").Inc()
		return nil
	}
	s.mu.Unlock()

	categories, reason := s.selectCategories(userID, current)

	if s.refresh != nil {
		s.refresh(ctx, userID, categories, reason)
	}

	s.mu.Lock()
	sess, alive := s.sessions[userID]
	if !alive {
		s.mu.Unlock()
		metrics.RefreshPasses.WithLabelValues("discarded").Inc()
		s.logger.Debug().Str("user_id", userID).Msg("session stopped mid-refresh, results discarded")
		return nil
	}
	sess.lastRefresh = now
	sess.lastSnapshot = snapshotKey(current)
	s.mu.Unlock()

	sessInterval := s.ComputeInterval(userID)
	s.mu.Lock()
	if sess, alive := s.sessions[userID]; alive {
		sess.interval = sessInterval
	}
	s.mu.Unlock()

	results := make(map[Category]Result, len(categories))
	for _, cat := range categories {
		results[cat] = Result{Category: cat, Reason: reason, At: now}
	}

	metrics.RefreshPasses.WithLabelValues("completed").Inc()
	s.logger.Info().
		Str("user_id", userID).
		Str("reason", reason).
		Int("categories", len(categories)).
		Dur("next_interval", sessInterval).
		Msg("refresh pass completed")
	return results
}

// Stop tears down the user's session. Safe to call when no session exists,
// and safe to call repeatedly.
func (s *Scheduler) Stop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userID]; !ok {
		return
	}
	delete(s.sessions, userID)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
}

// ActiveSessions returns the number of live sessions.
func (s *Scheduler) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run sweeps sessions on a soft timer, refreshing users whose interval has
// elapsed. A missed tick delays the next decision, it never builds backlog.
// Implements suture.Service.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("tick", s.config.TickInterval).
		Dur("min_interval", s.config.MinInterval).
		Dur("max_interval", s.config.MaxInterval).
		Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			for _, userID := range s.due() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.Refresh(ctx, userID, ledger.ContextAt(s.now()), false)
			}
		}
	}
}

// due lists users whose interval has elapsed since their last refresh.
func (s *Scheduler) due() []string {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for userID, sess := range s.sessions {
		interval := sess.interval
		if interval <= 0 {
			interval = 2 * s.config.MinInterval
		}
		if sess.lastRefresh.IsZero() || now.Sub(sess.lastRefresh) >= interval {
			out = append(out, userID)
		}
	}
	return out
}

// selectCategories decides which recommendation categories a pass covers.
// Content always refreshes, so the result is never empty.
func (s *Scheduler) selectCategories(userID string, current ledger.Context) ([]Category, string) {
	categories := []Category{CategoryContent}
	reason := "scheduled"

	if s.recentSocialCount(userID) < 3 {
		categories = append(categories, CategoryPeers)
	} else if s.explore() {
		categories = append(categories, CategoryPeers)
		reason = "exploration"
	}

	mood := patterns.NormalizeMood(current.Mood.Emotion)
	if mood == patterns.MoodAnxious || mood == patterns.MoodStressed || mood == patterns.MoodSad {
		categories = append(categories, CategoryExercises)
		reason = "mood"
	}

	if current.TimeOfDay == ledger.Morning || current.TimeOfDay == ledger.Afternoon {
		categories = append(categories, CategoryActivities)
	}

	return categories, reason
}

// recommendationHeavy reports whether at least 5 of the user's last 10
// interactions were recommendation-related.
func (s *Scheduler) recommendationHeavy(userID string) bool {
	recent := s.history.Recent(userID, 10)
	count := 0
	for _, rec := range recent {
		if rec.Type.IsRecommendation() {
			count++
		}
	}
	return count >= 5
}

func (s *Scheduler) recentSocialCount(userID string) int {
	recent := s.history.Recent(userID, 20)
	count := 0
	for _, rec := range recent {
		if rec.Type.IsSocial() {
			count++
		}
	}
	return count
}

func (s *Scheduler) explore() bool {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < s.config.ExplorationRate
}

// ensureSessionLocked creates the user's session on first use. Caller holds mu.
func (s *Scheduler) ensureSessionLocked(userID string) *session {
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{}
		s.sessions[userID] = sess
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
	return sess
}

// snapshotKey normalizes a context for change detection. Only mood,
// time-of-day, and day-of-week participate.
func snapshotKey(c ledger.Context) string {
	return fmt.Sprintf("%s|%s|%d", patterns.NormalizeMood(c.Mood.Emotion), c.TimeOfDay, c.DayOfWeek)
}

// weeklySessions estimates sessions per week from the weekday frequency map.
func weeklySessions(p patterns.BehaviorProfile) int {
	total := 0
	for _, n := range p.EngagementPatterns.SessionFrequency {
		total += n
	}
	return total
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}
