// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package events

import (
	"context"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(8, nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, TopicRefreshCompleted)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	want := RefreshCompleted{
		UserID:     "user-a",
		Categories: []string{"content", "exercises"},
		Reason:     "staleness",
		At:         time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC),
	}
	if err := bus.Publish(TopicRefreshCompleted, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-msgs:
		got, err := Decode[RefreshCompleted](msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		msg.Ack()
		if got.UserID != want.UserID || got.Reason != want.Reason {
			t.Errorf("got %+v, want %+v", got, want)
		}
		if len(got.Categories) != 2 {
			t.Errorf("categories lost: %v", got.Categories)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusTopicsAreIsolated(t *testing.T) {
	bus := NewBus(8, nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	planMsgs, err := bus.Subscribe(ctx, TopicPlanAdapted)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(TopicMilestoneReached, MilestoneReached{UserID: "user-a", Milestone: "streak_7"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-planMsgs:
		t.Fatalf("unexpected message on plan topic: %s", msg.UUID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus(0, nil)
	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if err := bus.Publish(TopicPlanAdapted, PlanAdapted{UserID: "user-a"}); err == nil {
		t.Error("expected error publishing to closed bus")
	}
	if _, err := bus.Subscribe(context.Background(), TopicPlanAdapted); err == nil {
		t.Error("expected error subscribing to closed bus")
	}
}
