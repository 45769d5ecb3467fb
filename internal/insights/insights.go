// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package insights wraps an optional AI insight provider behind a circuit
// breaker and rate limiter. When the provider is absent, rate limited,
// tripped, or failing, callers get a nil insight and fall back to local
// heuristics.
package insights

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/attune/internal/logging"
	"github.com/tomtom215/attune/internal/metrics"
	"github.com/tomtom215/attune/internal/patterns"
)

// Insight is a provider-generated personalization hint.
type Insight struct {
	// RecommendedTypes orders activity types by predicted fit, best first.
	RecommendedTypes []string `json:"recommended_types"`

	// MoodSummary is a short natural-language read on the user's recent
	// emotional trajectory, suitable for display.
	MoodSummary string `json:"mood_summary"`

	// Confidence is the provider's self-reported confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Provider generates insights from a learned behavior profile. Implementations
// typically call an external model and may be slow or unreliable.
type Provider interface {
	GenerateInsight(ctx context.Context, userID string, profile patterns.BehaviorProfile) (*Insight, error)
}

// ErrRateLimited is returned when the local limiter rejects a request before
// it reaches the provider.
var ErrRateLimited = errors.New("insight request rate limited")

// Config tunes the protective wrapping around the provider.
type Config struct {
	// FailureThreshold is the consecutive failure count that opens the breaker.
	FailureThreshold uint32

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration

	// RequestsPerMinute caps calls to the provider. Zero disables the limiter.
	RequestsPerMinute int

	// RequestTimeout bounds a single provider call.
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// Client is the guarded entry point to the insight provider.
type Client struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker[*Insight]
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewClient wraps provider with breaker and limiter protection. A nil
// provider yields a client whose Generate always reports unavailability.
func NewClient(provider Provider, cfg Config) *Client {
	cfg = cfg.withDefaults()

	settings := gobreaker.Settings{
		Name:    "insight-provider",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger := logging.Component("insights")
			logger.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			metrics.BreakerState.Set(float64(to))
		},
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}

	return &Client{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker[*Insight](settings),
		limiter:  limiter,
		timeout:  cfg.RequestTimeout,
		logger:   logging.Component("insights"),
	}
}

// Available reports whether a provider is configured at all.
func (c *Client) Available() bool {
	return c != nil && c.provider != nil
}

// Generate requests an insight for the user. Any failure mode returns a nil
// insight with an error the caller should treat as "use heuristics instead".
func (c *Client) Generate(ctx context.Context, userID string, profile patterns.BehaviorProfile) (*Insight, error) {
	if !c.Available() {
		metrics.InsightRequests.WithLabelValues("unavailable").Inc()
		return nil, errors.New("no insight provider configured")
	}

	if c.limiter != nil && !c.limiter.Allow() {
		metrics.InsightRequests.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimited
	}

	insight, err := c.breaker.Execute(func() (*Insight, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.provider.GenerateInsight(callCtx, userID, profile)
	})
	if err != nil {
		metrics.InsightRequests.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("insight request failed")
		return nil, err
	}
	if insight == nil {
		metrics.InsightRequests.WithLabelValues("empty").Inc()
		return nil, errors.New("provider returned no insight")
	}

	metrics.InsightRequests.WithLabelValues("ok").Inc()
	return insight, nil
}

// State exposes the breaker state for health reporting.
func (c *Client) State() string {
	if c == nil || c.breaker == nil {
		return gobreaker.StateClosed.String()
	}
	return c.breaker.State().String()
}
