// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package config loads layered configuration: built-in defaults, then an
// optional YAML file, then environment variables. Invalid weights or
// thresholds are fatal at startup; the engine never runs with a
// misconfigured scoring model.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Ledger    LedgerConfig    `koanf:"ledger"`
	Adapter   AdapterConfig   `koanf:"adapter"`
	Compat    CompatConfig    `koanf:"compat"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Insights  InsightsConfig  `koanf:"insights"`
	Cache     CacheConfig     `koanf:"cache"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// StorageConfig controls the BadgerDB store.
type StorageConfig struct {
	// Path is the BadgerDB directory. Empty disables persistence and the
	// engine runs in-memory only.
	Path string `koanf:"path"`
}

// LedgerConfig controls the interaction ledger.
type LedgerConfig struct {
	PerUserCapacity int           `koanf:"per_user_capacity" validate:"min=1"`
	QueueSize       int           `koanf:"queue_size" validate:"min=1"`
	BatchSize       int           `koanf:"batch_size" validate:"min=1"`
	FlushInterval   time.Duration `koanf:"flush_interval" validate:"min=100ms"`
}

// AdapterConfig controls real-time adaptation.
type AdapterConfig struct {
	MoodBoostFactor  float64 `koanf:"mood_boost_factor" validate:"gt=0,lte=1"`
	TimeBoostFactor  float64 `koanf:"time_boost_factor" validate:"gt=0,lte=1"`
	AnxietyThreshold int     `koanf:"anxiety_threshold" validate:"min=1,max=10"`
	StressThreshold  int     `koanf:"stress_threshold" validate:"min=1,max=10"`
}

// CompatConfig holds the compatibility weights. They must form a convex
// combination.
type CompatConfig struct {
	Interests     float64 `koanf:"interests" validate:"gte=0,lte=1"`
	Experiences   float64 `koanf:"experiences" validate:"gte=0,lte=1"`
	AgeRange      float64 `koanf:"age_range" validate:"gte=0,lte=1"`
	Communication float64 `koanf:"communication" validate:"gte=0,lte=1"`
	Behavioral    float64 `koanf:"behavioral" validate:"gte=0,lte=1"`
}

// SchedulerConfig controls refresh cadence.
type SchedulerConfig struct {
	MinInterval         time.Duration `koanf:"min_interval" validate:"min=1s"`
	MaxInterval         time.Duration `koanf:"max_interval" validate:"min=1s"`
	Staleness           time.Duration `koanf:"staleness" validate:"min=1s"`
	EngagementThreshold float64       `koanf:"engagement_threshold" validate:"gt=0,lt=1"`
	ExplorationRate     float64       `koanf:"exploration_rate" validate:"gt=0,lt=1"`
	TickInterval        time.Duration `koanf:"tick_interval" validate:"min=1s"`
}

// AnalyticsConfig controls metric retention.
type AnalyticsConfig struct {
	Retention     time.Duration `koanf:"retention" validate:"min=1h"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"min=1m"`
}

// InsightsConfig controls the AI insight boundary.
type InsightsConfig struct {
	Enabled           bool          `koanf:"enabled"`
	FailureThreshold  uint32        `koanf:"failure_threshold" validate:"min=1"`
	BreakerTimeout    time.Duration `koanf:"breaker_timeout" validate:"min=1s"`
	RequestsPerMinute int           `koanf:"requests_per_minute" validate:"min=0"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"min=1s"`
}

// CacheConfig controls the adapted-list cache.
type CacheConfig struct {
	Capacity int           `koanf:"capacity" validate:"min=1"`
	TTL      time.Duration `koanf:"ttl" validate:"min=1s"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8484,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Storage: StorageConfig{
			Path: "/data/attune",
		},
		Ledger: LedgerConfig{
			PerUserCapacity: 500,
			QueueSize:       1024,
			BatchSize:       64,
			FlushInterval:   2 * time.Second,
		},
		Adapter: AdapterConfig{
			MoodBoostFactor:  0.25,
			TimeBoostFactor:  0.1,
			AnxietyThreshold: 8,
			StressThreshold:  7,
		},
		Compat: CompatConfig{
			Interests:     0.24,
			Experiences:   0.21,
			AgeRange:      0.09,
			Communication: 0.06,
			Behavioral:    0.40,
		},
		Scheduler: SchedulerConfig{
			MinInterval:         5 * time.Minute,
			MaxInterval:         2 * time.Hour,
			Staleness:           30 * time.Minute,
			EngagementThreshold: 0.3,
			ExplorationRate:     0.3,
			TickInterval:        time.Minute,
		},
		Analytics: AnalyticsConfig{
			Retention:     30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Insights: InsightsConfig{
			Enabled:           false,
			FailureThreshold:  5,
			BreakerTimeout:    30 * time.Second,
			RequestsPerMinute: 30,
			RequestTimeout:    10 * time.Second,
		},
		Cache: CacheConfig{
			Capacity: 4096,
			TTL:      5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks structural constraints plus the cross-field invariants
// the struct tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	weightSum := c.Compat.Interests + c.Compat.Experiences + c.Compat.AgeRange +
		c.Compat.Communication + c.Compat.Behavioral
	if diff := weightSum - 1.0; diff > 0.001 || diff < -0.001 {
		return fmt.Errorf("compat weights must sum to 1.0, got %.4f", weightSum)
	}

	if c.Scheduler.MaxInterval < c.Scheduler.MinInterval {
		return fmt.Errorf("scheduler max_interval %s below min_interval %s",
			c.Scheduler.MaxInterval, c.Scheduler.MinInterval)
	}

	return nil
}
