// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/attune/internal/logging"
)

// RouterConfig holds the HTTP surface options.
type RouterConfig struct {
	// CORSOrigins is the allowed origin list. Empty disables CORS entirely,
	// which is the right default for a backend-only deployment.
	CORSOrigins []string

	// RateLimitRequests per RateLimitWindow per client IP. Zero disables
	// rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Timeout bounds each request via chi's Timeout middleware.
	Timeout time.Duration
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// NewRouter assembles the chi router: middleware stack, versioned API
// routes, health probes and the Prometheus endpoint.
func NewRouter(cfg RouterConfig, h *Handler) chi.Router {
	cfg = cfg.withDefaults()

	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Timeout))
	r.Use(httpMetrics)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(httprate.Limit(
				cfg.RateLimitRequests,
				cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}

		r.Post("/interactions", h.TrackInteraction)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Put("/profile", h.SaveProfile)
			r.Get("/recommendations", h.Recommendations)
			r.Get("/matches", h.Matches)
			r.Get("/analytics", h.Analytics)
			r.Post("/refresh", h.Refresh)
			r.Delete("/refresh", h.StopRefresh)
		})

		r.Get("/health", h.Health)
		r.Get("/health/live", h.HealthLive)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Server wraps http.Server as a supervisable service.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

// NewServer builds the HTTP server around an assembled router.
func NewServer(host string, port int, handler http.Handler, readTimeout, shutdownTimeout time.Duration) *Server {
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       readTimeout,
			WriteTimeout:      readTimeout,
			IdleTimeout:       2 * readTimeout,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.srv.Addr }

// Run serves until the context is cancelled, then drains in-flight
// requests within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	log := logging.Component("http")

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown incomplete")
		return err
	}
	log.Info().Msg("http server stopped")
	return <-errCh
}
