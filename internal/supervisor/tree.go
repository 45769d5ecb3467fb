// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package supervisor builds the suture tree that keeps the engine's
// long-running services alive: the ledger flusher, the analytics
// maintenance loop, the refresh scheduler and the HTTP server.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// ServiceFunc adapts a Run-style loop to suture.Service.
type ServiceFunc struct {
	Name string
	Fn   func(context.Context) error
}

// Serve implements suture.Service.
func (s ServiceFunc) Serve(ctx context.Context) error { return s.Fn(ctx) }

func (s ServiceFunc) String() string { return s.Name }

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's documented defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the two-layer supervisor hierarchy.
//
//   - engine: ledger persistence, analytics maintenance, refresh scheduler
//   - api: HTTP server
//
// A crash in an engine service restarts only that service; the API layer
// keeps serving from in-memory state while the engine layer recovers.
type Tree struct {
	root   *suture.Supervisor
	engine *suture.Supervisor
	api    *suture.Supervisor
	config TreeConfig

	mu sync.Mutex
	// owners maps each token to the supervisor that issued it; suture
	// rejects removal through any other supervisor.
	owners map[suture.ServiceToken]*suture.Supervisor
}

// NewTree creates the supervisor tree. The slog logger receives suture's
// lifecycle events; pass one built on logging.NewSlogHandler to route them
// through zerolog.
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	// MustHook has a pointer receiver; the handler must be addressable.
	handler := &sutureslog.Handler{Logger: logger}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("attune", rootSpec)
	engine := suture.New("engine-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(engine)
	root.Add(api)

	return &Tree{
		root:   root,
		engine: engine,
		api:    api,
		config: config,
		owners: make(map[suture.ServiceToken]*suture.Supervisor),
	}
}

// Root returns the root supervisor for direct access if needed.
func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// AddEngineService adds a service to the engine layer.
func (t *Tree) AddEngineService(svc suture.Service) suture.ServiceToken {
	token := t.engine.Add(svc)
	t.recordOwner(token, t.engine)
	return token
}

// AddAPIService adds a service to the API layer.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	token := t.api.Add(svc)
	t.recordOwner(token, t.api)
	return token
}

func (t *Tree) recordOwner(token suture.ServiceToken, sup *suture.Supervisor) {
	t.mu.Lock()
	t.owners[token] = sup
	t.mu.Unlock()
}

// owner returns the supervisor the token was issued by.
func (t *Tree) owner(token suture.ServiceToken) *suture.Supervisor {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sup, ok := t.owners[token]; ok {
		return sup
	}
	return t.root
}

func (t *Tree) forgetOwner(token suture.ServiceToken) {
	t.mu.Lock()
	delete(t.owners, token)
	t.mu.Unlock()
}

// Serve starts the tree and blocks until the context is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in a background goroutine. The returned
// channel receives the terminal error (or nil) when the supervisor stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that failed to stop within the
// shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// Remove stops and removes a service by its token.
func (t *Tree) Remove(token suture.ServiceToken) error {
	err := t.owner(token).Remove(token)
	if err == nil {
		t.forgetOwner(token)
	}
	return err
}

// RemoveAndWait removes a service and waits for it to fully stop.
func (t *Tree) RemoveAndWait(token suture.ServiceToken, timeout time.Duration) error {
	err := t.owner(token).RemoveAndWait(token, timeout)
	if err == nil {
		t.forgetOwner(token)
	}
	return err
}
