// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package storage defines the persistence boundary of the engine and its
// BadgerDB and in-memory implementations.
//
// Persistence is an optional collaborator: every consumer of Store must
// degrade to in-memory-only operation when calls fail. Callers detect
// storage trouble with errors.Is(err, ErrUnavailable) but are expected to
// log and continue, not to retry or propagate.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/attune/internal/analytics"
	"github.com/tomtom215/attune/internal/compat"
	"github.com/tomtom215/attune/internal/ledger"
)

// ErrUnavailable marks transient storage failures. Retry-with-backoff is
// the caller's concern; the engine itself only falls back.
var ErrUnavailable = errors.New("storage unavailable")

// ErrNotFound marks a missing record.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary consumed by the engine.
type Store interface {
	// AppendInteractions persists a batch of ledger records.
	AppendInteractions(ctx context.Context, records []ledger.InteractionRecord) error

	// LoadInteractions returns a user's persisted history in append order.
	LoadInteractions(ctx context.Context, userID string) ([]ledger.InteractionRecord, error)

	// UpsertMetric persists a recommendation metric snapshot.
	UpsertMetric(ctx context.Context, id string, metric analytics.Metric) error

	// SaveUserProfile stores or replaces a matching profile.
	SaveUserProfile(ctx context.Context, profile compat.Profile) error

	// FetchUserProfile loads one matching profile.
	FetchUserProfile(ctx context.Context, userID string) (compat.Profile, error)

	// FetchCandidatePeers loads all matching profiles except the given user.
	FetchCandidatePeers(ctx context.Context, excludeUserID string) ([]compat.Profile, error)

	// Close releases resources.
	Close() error
}

// unavailable wraps an implementation error so callers can match it with
// errors.Is(err, ErrUnavailable) without knowing the backend.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrUnavailable, err))
}
