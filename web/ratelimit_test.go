// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"testing"
	"time"

	"github.com/purser-foundation/purser/lib/clock"
)

func TestRateLimiterCeiling(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	limiter := NewRateLimiter(fakeClock, 3, 3*time.Minute)

	for attempt := 0; attempt < 3; attempt++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("attempt %d rejected, want allowed", attempt+1)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("fourth attempt allowed, want rejected")
	}

	// Other sources are unaffected.
	if !limiter.Allow("10.0.0.2") {
		t.Fatal("different source rejected")
	}
}

func TestRateLimiterRollingWindow(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	limiter := NewRateLimiter(fakeClock, 3, 3*time.Minute)

	// One attempt now, two a minute later.
	limiter.Allow("10.0.0.1")
	fakeClock.Advance(time.Minute)
	limiter.Allow("10.0.0.1")
	limiter.Allow("10.0.0.1")

	if limiter.Allow("10.0.0.1") {
		t.Fatal("fourth attempt within window allowed")
	}

	// Just past the first entry's expiry exactly one slot opens; the
	// two later entries still count.
	fakeClock.Advance(2*time.Minute + time.Second)
	if !limiter.Allow("10.0.0.1") {
		t.Fatal("attempt after first entry expired rejected")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("attempt exceeding rolled window allowed")
	}

	// Another minute expires the two middle entries, leaving only the
	// attempt admitted above.
	fakeClock.Advance(time.Minute)
	if !limiter.Allow("10.0.0.1") {
		t.Fatal("attempt after middle entries expired rejected")
	}
}

func TestRateLimiterRejectionsNotRecorded(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	limiter := NewRateLimiter(fakeClock, 3, 3*time.Minute)

	for attempt := 0; attempt < 3; attempt++ {
		limiter.Allow("10.0.0.1")
	}
	// Hammering while limited must not extend the lockout.
	for attempt := 0; attempt < 10; attempt++ {
		limiter.Allow("10.0.0.1")
	}
	fakeClock.Advance(3*time.Minute + time.Second)
	if !limiter.Allow("10.0.0.1") {
		t.Fatal("attempt after full window rejected; rejected attempts were recorded")
	}
}

func TestRateLimiterEvictsDrainedSources(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	limiter := NewRateLimiter(fakeClock, 3, 3*time.Minute)

	for i := 0; i < 100; i++ {
		limiter.Allow("10.0.0." + string(rune('0'+i%10)))
	}
	fakeClock.Advance(4 * time.Minute)

	// The next Allow prunes every drained source.
	limiter.Allow("10.0.1.1")

	limiter.mu.Lock()
	sources := len(limiter.windows)
	limiter.mu.Unlock()
	if sources != 1 {
		t.Errorf("tracked sources = %d after drain, want 1", sources)
	}
}
