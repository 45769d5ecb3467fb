// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestLRUSetGet(t *testing.T) {
	c := NewLRU[[]string](4, time.Minute)

	c.Set("user-a", []string{"breathing_exercise", "meditation"})

	got, ok := c.Get("user-a")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 2 || got[0] != "breathing_exercise" {
		t.Errorf("unexpected value: %v", got)
	}

	if _, ok := c.Get("user-b"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](3, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes the oldest.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for a")
	}

	c.Set("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %s to survive", key)
		}
	}
}

func TestLRUTTLExpiry(t *testing.T) {
	c := NewLRU[int](8, 10*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry removed on Get, len %d", c.Len())
	}
}

func TestLRUSetResetsTTL(t *testing.T) {
	c := NewLRU[int](8, 50*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(30 * time.Millisecond)
	c.Set("a", 2)
	time.Sleep(30 * time.Millisecond)

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected refreshed entry to survive")
	}
	if got != 2 {
		t.Errorf("expected updated value 2, got %d", got)
	}
}

func TestLRUInvalidate(t *testing.T) {
	c := NewLRU[int](8, time.Minute)

	c.Set("a", 1)
	if !c.Invalidate("a") {
		t.Error("expected invalidate to report removal")
	}
	if c.Invalidate("a") {
		t.Error("expected second invalidate to report absence")
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after invalidate")
	}
}

func TestLRUCleanupExpired(t *testing.T) {
	c := NewLRU[int](16, 10*time.Millisecond)

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	time.Sleep(20 * time.Millisecond)
	c.Set("fresh", 99)

	removed := c.CleanupExpired()
	if removed != 5 {
		t.Errorf("expected 5 removed, got %d", removed)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", c.Len())
	}
}

func TestLRUStats(t *testing.T) {
	c := NewLRU[int](8, time.Minute)

	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")

	hits, misses, size := c.Stats()
	if hits != 1 || misses != 1 || size != 1 {
		t.Errorf("stats = %d/%d/%d, want 1/1/1", hits, misses, size)
	}
}

func TestLRUConcurrentAccess(t *testing.T) {
	c := NewLRU[int](64, time.Minute)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%32)
				c.Set(key, g*1000+i)
				c.Get(key)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	if c.Len() > 64 {
		t.Errorf("capacity exceeded: %d", c.Len())
	}
}
