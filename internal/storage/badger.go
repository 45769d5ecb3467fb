// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/attune/internal/analytics"
	"github.com/tomtom215/attune/internal/compat"
	"github.com/tomtom215/attune/internal/ledger"
)

// Key prefixes for BadgerDB storage.
const (
	interactionKeyPrefix = "interaction:"
	metricKeyPrefix      = "metric:"
	profileKeyPrefix     = "profile:"
)

// BadgerStore implements Store using BadgerDB for durable embedded storage.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a BadgerDB-backed store at path.
// An empty path opens an in-memory database, useful for tests.
func OpenBadger(path string) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an existing BadgerDB handle.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// AppendInteractions persists ledger records keyed by user and timestamp,
// so per-user history scans are a prefix iteration.
func (s *BadgerStore) AppendInteractions(_ context.Context, records []ledger.InteractionRecord) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for i := range records {
			rec := records[i]
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal interaction %s: %w", rec.ID, err)
			}
			key := fmt.Sprintf("%s%s:%020d:%s", interactionKeyPrefix, rec.UserID, rec.Timestamp.UnixNano(), rec.ID)
			if err := txn.Set([]byte(key), data); err != nil {
				return fmt.Errorf("set interaction %s: %w", rec.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("append interactions", err)
	}
	return nil
}

// LoadInteractions returns a user's persisted history in append order.
func (s *BadgerStore) LoadInteractions(_ context.Context, userID string) ([]ledger.InteractionRecord, error) {
	var out []ledger.InteractionRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(interactionKeyPrefix + userID + ":")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec ledger.InteractionRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("decode interaction: %w", err)
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("load interactions", err)
	}
	return out, nil
}

// UpsertMetric stores the latest metric snapshot for a recommendation.
func (s *BadgerStore) UpsertMetric(_ context.Context, id string, metric analytics.Metric) error {
	data, err := json.Marshal(metric)
	if err != nil {
		return fmt.Errorf("marshal metric %s: %w", id, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metricKeyPrefix+id), data)
	})
	if err != nil {
		return unavailable("upsert metric", err)
	}
	return nil
}

// SaveUserProfile stores or replaces a matching profile.
func (s *BadgerStore) SaveUserProfile(_ context.Context, profile compat.Profile) error {
	if profile.UserID == "" {
		return errors.New("profile user id required")
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile %s: %w", profile.UserID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(profileKeyPrefix+profile.UserID), data)
	})
	if err != nil {
		return unavailable("save profile", err)
	}
	return nil
}

// FetchUserProfile loads one matching profile.
func (s *BadgerStore) FetchUserProfile(_ context.Context, userID string) (compat.Profile, error) {
	var profile compat.Profile

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profileKeyPrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get profile: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		})
	})

	if errors.Is(err, ErrNotFound) {
		return compat.Profile{}, ErrNotFound
	}
	if err != nil {
		return compat.Profile{}, unavailable("fetch profile", err)
	}
	return profile, nil
}

// FetchCandidatePeers loads all profiles except the excluded user's.
func (s *BadgerStore) FetchCandidatePeers(_ context.Context, excludeUserID string) ([]compat.Profile, error) {
	var out []compat.Profile

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(profileKeyPrefix)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var profile compat.Profile
				if err := json.Unmarshal(val, &profile); err != nil {
					return fmt.Errorf("decode profile: %w", err)
				}
				if profile.UserID != excludeUserID {
					out = append(out, profile)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("fetch candidate peers", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
