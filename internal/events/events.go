// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package events publishes engine lifecycle events over an in-process
// Watermill bus. Subscribers consume them for UI refresh callbacks; the
// engine itself never blocks on delivery.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/attune/internal/metrics"
)

// Topics published by the engine.
const (
	TopicPlanAdapted      = "plan.adapted"
	TopicRefreshCompleted = "refresh.completed"
	TopicMilestoneReached = "milestone.reached"
)

// PlanAdapted fires when real-time adaptation reorders a user's plan.
type PlanAdapted struct {
	UserID         string    `json:"user_id"`
	SafetyOverride bool      `json:"safety_override"`
	ItemCount      int       `json:"item_count"`
	At             time.Time `json:"at"`
}

// RefreshCompleted fires when a scheduler pass refreshes recommendations.
type RefreshCompleted struct {
	UserID     string    `json:"user_id"`
	Categories []string  `json:"categories"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// MilestoneReached fires on engagement milestones such as streaks.
type MilestoneReached struct {
	UserID    string    `json:"user_id"`
	Milestone string    `json:"milestone"`
	At        time.Time `json:"at"`
}

// Bus wraps a GoChannel pub/sub for in-process event delivery.
type Bus struct {
	pubsub *gochannel.GoChannel
	mu     sync.RWMutex
	closed bool
}

// NewBus creates an in-process event bus. bufferSize bounds per-subscriber
// queues; zero means unbuffered.
func NewBus(bufferSize int64, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: bufferSize,
		}, logger),
	}
}

// Publish serializes payload and sends it to topic. Payload must be one of
// the event structs in this package.
func (b *Bus) Publish(topic string, payload any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("publish to %s: bus closed", topic)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Subscribe returns a channel of raw messages for topic. The caller must
// Ack or Nack every message and should stop consuming when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe to %s: bus closed", topic)
	}
	return b.pubsub.Subscribe(ctx, topic)
}

// Close tears down the bus. In-flight messages to closed subscribers are
// dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}

// Decode unmarshals a message payload into the given event struct.
func Decode[T any](msg *message.Message) (T, error) {
	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return event, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}
	return event, nil
}
