// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package main is the entry point for the Attune server.
//
// Attune is an adaptive personalization engine for mental wellness
// applications: it learns behavior patterns from user interactions and
// serves context-aware recommendations, compatibility-scored peer matches
// and per-user engagement analytics over a REST API.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load from defaults, config.yaml and environment (Koanf v2)
//  2. Storage: BadgerDB interaction and profile store (in-memory when no path is set)
//  3. Event bus: Watermill in-process pub/sub for plan and refresh events
//  4. Engine: ledger, pattern learner, adapter, scorer, scheduler, analytics
//  5. HTTP server: chi router with the versioned JSON API and /metrics
//
// Long-running loops (ledger flusher, analytics sweep, refresh scheduler,
// HTTP server) run under a suture supervisor tree and restart independently
// on failure.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, then the config file named by
// ATTUNE_CONFIG (default config.yaml), then built-in defaults. Common
// overrides:
//
//	export HTTP_PORT=8484
//	export STORAGE_PATH=/data/attune   # empty string disables persistence
//	export INSIGHTS_ENABLED=true
//	export LOG_LEVEL=debug
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP server
// drains in-flight requests, the ledger flushes its persistence queue and
// the store is closed last.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/attune/internal/adapter"
	"github.com/tomtom215/attune/internal/analytics"
	"github.com/tomtom215/attune/internal/api"
	"github.com/tomtom215/attune/internal/compat"
	"github.com/tomtom215/attune/internal/config"
	"github.com/tomtom215/attune/internal/engine"
	"github.com/tomtom215/attune/internal/events"
	"github.com/tomtom215/attune/internal/insights"
	"github.com/tomtom215/attune/internal/ledger"
	"github.com/tomtom215/attune/internal/logging"
	"github.com/tomtom215/attune/internal/scheduler"
	"github.com/tomtom215/attune/internal/storage"
	"github.com/tomtom215/attune/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "attune: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	log := logging.Component("main")

	store, err := openStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("store close failed")
		}
	}()

	bus := events.NewBus(0, nil)

	var provider insights.Provider
	if cfg.Insights.Enabled {
		provider = insights.RuleProvider{}
	}

	eng := engine.New(engine.Config{
		Ledger: ledger.Config{
			PerUserCapacity: cfg.Ledger.PerUserCapacity,
			QueueSize:       cfg.Ledger.QueueSize,
			BatchSize:       cfg.Ledger.BatchSize,
			FlushInterval:   cfg.Ledger.FlushInterval,
		},
		Adapter: adapter.Config{
			MoodBoostFactor:  cfg.Adapter.MoodBoostFactor,
			TimeBoostFactor:  cfg.Adapter.TimeBoostFactor,
			AnxietyThreshold: cfg.Adapter.AnxietyThreshold,
			StressThreshold:  cfg.Adapter.StressThreshold,
		},
		Weights: compat.Weights{
			Interests:     cfg.Compat.Interests,
			Experiences:   cfg.Compat.Experiences,
			AgeRange:      cfg.Compat.AgeRange,
			Communication: cfg.Compat.Communication,
			Behavioral:    cfg.Compat.Behavioral,
		},
		Scheduler: scheduler.Config{
			MinInterval:         cfg.Scheduler.MinInterval,
			MaxInterval:         cfg.Scheduler.MaxInterval,
			Staleness:           cfg.Scheduler.Staleness,
			EngagementThreshold: cfg.Scheduler.EngagementThreshold,
			ExplorationRate:     cfg.Scheduler.ExplorationRate,
			TickInterval:        cfg.Scheduler.TickInterval,
		},
		Analytics: analytics.Config{
			Retention:     cfg.Analytics.Retention,
			SweepInterval: cfg.Analytics.SweepInterval,
		},
		Insights: insights.Config{
			FailureThreshold:  cfg.Insights.FailureThreshold,
			BreakerTimeout:    cfg.Insights.BreakerTimeout,
			RequestsPerMinute: cfg.Insights.RequestsPerMinute,
			RequestTimeout:    cfg.Insights.RequestTimeout,
		},
		CacheCapacity: cfg.Cache.Capacity,
		CacheTTL:      cfg.Cache.TTL,
	}, store, provider, bus)
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("engine close failed")
		}
	}()

	router := api.NewRouter(api.RouterConfig{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimitReqs,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		Timeout:           cfg.Server.Timeout,
	}, api.NewHandler(eng))
	server := api.NewServer(cfg.Server.Host, cfg.Server.Port, router,
		cfg.Server.Timeout, cfg.Server.ShutdownTimeout)

	slogger := slog.New(logging.NewSlogHandler())
	tree := supervisor.NewTree(slogger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddEngineService(supervisor.ServiceFunc{Name: "ledger", Fn: eng.Ledger().Run})
	tree.AddEngineService(supervisor.ServiceFunc{Name: "analytics", Fn: eng.Tracker().Run})
	tree.AddEngineService(supervisor.ServiceFunc{Name: "scheduler", Fn: eng.Scheduler().Run})
	tree.AddAPIService(supervisor.ServiceFunc{Name: "http", Fn: server.Run})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	log.Info().
		Str("addr", server.Addr()).
		Bool("persistent", cfg.Storage.Path != "").
		Bool("insights", cfg.Insights.Enabled).
		Msg("attune starting")

	err = <-tree.ServeBackground(ctx)
	if err != nil && err != context.Canceled {
		return fmt.Errorf("supervisor: %w", err)
	}

	if unstopped, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			log.Warn().Str("service", svc.Name).Msg("service did not stop in time")
		}
	}

	log.Info().Msg("attune stopped")
	return nil
}

// openStore opens BadgerDB at the configured path, or an in-memory store
// when no path is set.
func openStore(path string) (storage.Store, error) {
	if path == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.OpenBadger(path)
}
