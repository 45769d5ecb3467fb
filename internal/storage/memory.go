// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/tomtom215/attune/internal/analytics"
	"github.com/tomtom215/attune/internal/compat"
	"github.com/tomtom215/attune/internal/ledger"
)

// MemoryStore is a Store backed by process memory. It is the degraded-mode
// backend when BadgerDB cannot be opened, and the default in tests.
type MemoryStore struct {
	mu           sync.RWMutex
	interactions map[string][]ledger.InteractionRecord
	metrics      map[string]analytics.Metric
	profiles     map[string]compat.Profile
	closed       bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		interactions: make(map[string][]ledger.InteractionRecord),
		metrics:      make(map[string]analytics.Metric),
		profiles:     make(map[string]compat.Profile),
	}
}

var errClosed = errors.New("store closed")

func (s *MemoryStore) AppendInteractions(_ context.Context, records []ledger.InteractionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("append interactions", errClosed)
	}
	for _, rec := range records {
		s.interactions[rec.UserID] = append(s.interactions[rec.UserID], rec)
	}
	return nil
}

func (s *MemoryStore) LoadInteractions(_ context.Context, userID string) ([]ledger.InteractionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, unavailable("load interactions", errClosed)
	}
	records := s.interactions[userID]
	out := make([]ledger.InteractionRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemoryStore) UpsertMetric(_ context.Context, id string, metric analytics.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("upsert metric", errClosed)
	}
	s.metrics[id] = metric
	return nil
}

func (s *MemoryStore) SaveUserProfile(_ context.Context, profile compat.Profile) error {
	if profile.UserID == "" {
		return errors.New("profile user id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("save profile", errClosed)
	}
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *MemoryStore) FetchUserProfile(_ context.Context, userID string) (compat.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return compat.Profile{}, unavailable("fetch profile", errClosed)
	}
	profile, ok := s.profiles[userID]
	if !ok {
		return compat.Profile{}, ErrNotFound
	}
	return profile, nil
}

func (s *MemoryStore) FetchCandidatePeers(_ context.Context, excludeUserID string) ([]compat.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, unavailable("fetch candidate peers", errClosed)
	}
	out := make([]compat.Profile, 0, len(s.profiles))
	for id, profile := range s.profiles {
		if id == excludeUserID {
			continue
		}
		out = append(out, profile)
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
