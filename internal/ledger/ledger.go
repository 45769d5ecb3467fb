// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package ledger implements the append-only interaction ledger.
//
// The ledger is the authoritative record of user behavior. Everything derived
// from it (behavior profiles, refresh cadences, analytics trends) can be
// rebuilt from ledger contents at any time. Records are immutable once
// created.
//
// Persistence is fire-and-forget: Record() appends in memory and queues the
// record for a background flusher. A persistence failure is logged and
// counted, never surfaced to the caller. Tracking must not block or break
// the user action that triggered it.
package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/attune/internal/logging"
	"github.com/tomtom215/attune/internal/metrics"
)

// Sink persists ledger records. Implementations must tolerate duplicate
// appends; the flusher may retry a batch after a partial failure.
type Sink interface {
	AppendInteractions(ctx context.Context, records []InteractionRecord) error
}

// Config holds ledger configuration.
type Config struct {
	// PerUserCapacity bounds the in-memory history kept per user.
	// Older records are dropped from memory (not from the sink).
	// Default: 500
	PerUserCapacity int

	// QueueSize bounds the pending persistence queue. When full, new
	// records are dropped from the queue (still retained in memory).
	// Default: 1024
	QueueSize int

	// BatchSize is the number of records written to the sink per flush.
	// Default: 64
	BatchSize int

	// FlushInterval is how often the flusher drains a partial batch.
	// Default: 2s
	FlushInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PerUserCapacity: 500,
		QueueSize:       1024,
		BatchSize:       64,
		FlushInterval:   2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.PerUserCapacity <= 0 {
		c.PerUserCapacity = 500
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	return c
}

// Ledger is the append-only interaction record. Safe for concurrent use.
type Ledger struct {
	config Config
	sink   Sink
	logger zerolog.Logger

	mu     sync.RWMutex
	byUser map[string][]InteractionRecord

	pending chan InteractionRecord
	dropped atomic.Int64

	now func() time.Time
}

// New creates a ledger. sink may be nil, in which case the ledger runs
// in-memory only (degraded mode).
func New(cfg Config, sink Sink) *Ledger {
	cfg = cfg.withDefaults()
	return &Ledger{
		config:  cfg,
		sink:    sink,
		logger:  logging.Component("ledger"),
		byUser:  make(map[string][]InteractionRecord),
		pending: make(chan InteractionRecord, cfg.QueueSize),
		now:     time.Now,
	}
}

// Record appends a new interaction and queues it for persistence.
// It never fails and never blocks on I/O.
func (l *Ledger) Record(userID string, typ Type, payload Payload, snapshot Context) InteractionRecord {
	rec := InteractionRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Payload:   payload,
		Context:   snapshot,
		Timestamp: l.now(),
	}

	l.mu.Lock()
	history := append(l.byUser[userID], rec)
	if overflow := len(history) - l.config.PerUserCapacity; overflow > 0 {
		history = history[overflow:]
	}
	l.byUser[userID] = history
	l.mu.Unlock()

	metrics.InteractionsTracked.WithLabelValues(string(typ)).Inc()

	if l.sink != nil {
		select {
		case l.pending <- rec:
		default:
			// Queue full: the record stays in memory, only durability is lost.
			l.dropped.Add(1)
			l.logger.Warn().
				Str("user_id", userID).
				Str("type", string(typ)).
				Msg("Persistence queue full, record not queued")
		}
	}

	return rec
}

// Restore seeds a user's in-memory history from previously persisted
// records, keeping the newest PerUserCapacity entries. Restored records are
// not re-queued for persistence. It is a no-op when the user already has
// in-memory history.
func (l *Ledger) Restore(userID string, records []InteractionRecord) {
	if len(records) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.byUser[userID]) > 0 {
		return
	}

	history := make([]InteractionRecord, len(records))
	copy(history, records)
	if overflow := len(history) - l.config.PerUserCapacity; overflow > 0 {
		history = history[overflow:]
	}
	l.byUser[userID] = history
}

// Recent returns up to n records for the user, most recent first.
// The returned slice is a copy; a fresh call re-reads current state.
func (l *Ledger) Recent(userID string, n int) []InteractionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.byUser[userID]
	if n <= 0 || n > len(history) {
		n = len(history)
	}

	out := make([]InteractionRecord, n)
	for i := 0; i < n; i++ {
		out[i] = history[len(history)-1-i]
	}
	return out
}

// All returns the user's full in-memory history in chronological order.
func (l *Ledger) All(userID string) []InteractionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.byUser[userID]
	out := make([]InteractionRecord, len(history))
	copy(out, history)
	return out
}

// Len returns the number of in-memory records for the user.
func (l *Ledger) Len(userID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byUser[userID])
}

// Dropped returns the number of records that missed the persistence queue.
func (l *Ledger) Dropped() int64 {
	return l.dropped.Load()
}

// Run drains the persistence queue until ctx is cancelled. It satisfies
// suture.Service and is intended to run under the supervisor tree.
// A final best-effort flush runs on shutdown.
func (l *Ledger) Run(ctx context.Context) error {
	if l.sink == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]InteractionRecord, 0, l.config.BatchSize)

	for {
		select {
		case rec := <-l.pending:
			batch = append(batch, rec)
			if len(batch) >= l.config.BatchSize {
				l.flush(ctx, &batch)
			}
		case <-ticker.C:
			l.flush(ctx, &batch)
		case <-ctx.Done():
			l.drainRemaining(&batch)
			return ctx.Err()
		}
	}
}

// flush writes the batch to the sink. On failure the batch is abandoned:
// the records remain readable in memory and the failure is observable via
// metrics, but tracking never propagates storage errors.
func (l *Ledger) flush(ctx context.Context, batch *[]InteractionRecord) {
	if len(*batch) == 0 {
		return
	}

	if err := l.sink.AppendInteractions(ctx, *batch); err != nil {
		metrics.PersistErrors.Inc()
		l.logger.Error().Err(err).Int("batch", len(*batch)).Msg("Ledger persistence failed")
	}
	*batch = (*batch)[:0]
}

// drainRemaining performs the shutdown flush with a short deadline.
func (l *Ledger) drainRemaining(batch *[]InteractionRecord) {
	for {
		select {
		case rec := <-l.pending:
			*batch = append(*batch, rec)
		default:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			l.flush(ctx, batch)
			return
		}
	}
}
