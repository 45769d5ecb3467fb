// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/attune/config.yaml",
	"/etc/attune/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "ATTUNE_CONFIG"

// Load builds the configuration from three layers with clear precedence:
// environment variables over the config file over built-in defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are the fields that arrive from env vars as
// comma-separated strings but unmarshal as slices.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to config paths.
// Unmapped variables are skipped so that unrelated environment noise never
// reaches the configuration.
func envTransformFunc(key string) string {
	mappings := map[string]string{
		"HTTP_HOST":             "server.host",
		"HTTP_PORT":             "server.port",
		"HTTP_TIMEOUT":          "server.timeout",
		"SHUTDOWN_TIMEOUT":      "server.shutdown_timeout",
		"CORS_ORIGINS":          "server.cors_origins",
		"RATE_LIMIT_REQUESTS":   "server.rate_limit_requests",
		"RATE_LIMIT_WINDOW":     "server.rate_limit_window",
		"STORAGE_PATH":          "storage.path",
		"LEDGER_CAPACITY":       "ledger.per_user_capacity",
		"LEDGER_QUEUE_SIZE":     "ledger.queue_size",
		"LEDGER_BATCH_SIZE":     "ledger.batch_size",
		"LEDGER_FLUSH_INTERVAL": "ledger.flush_interval",

		"ADAPTER_MOOD_BOOST":        "adapter.mood_boost_factor",
		"ADAPTER_TIME_BOOST":        "adapter.time_boost_factor",
		"ADAPTER_ANXIETY_THRESHOLD": "adapter.anxiety_threshold",
		"ADAPTER_STRESS_THRESHOLD":  "adapter.stress_threshold",

		"COMPAT_WEIGHT_INTERESTS":     "compat.interests",
		"COMPAT_WEIGHT_EXPERIENCES":   "compat.experiences",
		"COMPAT_WEIGHT_AGE_RANGE":     "compat.age_range",
		"COMPAT_WEIGHT_COMMUNICATION": "compat.communication",
		"COMPAT_WEIGHT_BEHAVIORAL":    "compat.behavioral",

		"REFRESH_MIN_INTERVAL":         "scheduler.min_interval",
		"REFRESH_MAX_INTERVAL":         "scheduler.max_interval",
		"REFRESH_STALENESS":            "scheduler.staleness",
		"REFRESH_ENGAGEMENT_THRESHOLD": "scheduler.engagement_threshold",
		"REFRESH_EXPLORATION_RATE":     "scheduler.exploration_rate",
		"REFRESH_TICK_INTERVAL":        "scheduler.tick_interval",

		"ANALYTICS_RETENTION":      "analytics.retention",
		"ANALYTICS_SWEEP_INTERVAL": "analytics.sweep_interval",

		"INSIGHTS_ENABLED":             "insights.enabled",
		"INSIGHTS_FAILURE_THRESHOLD":   "insights.failure_threshold",
		"INSIGHTS_BREAKER_TIMEOUT":     "insights.breaker_timeout",
		"INSIGHTS_REQUESTS_PER_MINUTE": "insights.requests_per_minute",
		"INSIGHTS_REQUEST_TIMEOUT":     "insights.request_timeout",

		"CACHE_CAPACITY": "cache.capacity",
		"CACHE_TTL":      "cache.ttl",

		"LOG_LEVEL":  "logging.level",
		"LOG_FORMAT": "logging.format",
		"LOG_CALLER": "logging.caller",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}
