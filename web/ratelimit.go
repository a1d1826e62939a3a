// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"sync"
	"time"

	"github.com/purser-foundation/purser/lib/clock"
)

// RateLimiter is a per-source sliding-window counter. A source is
// allowed at most limit requests within any trailing window. State is
// in-memory only; restarts reset all windows.
type RateLimiter struct {
	clock  clock.Clock
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per source
// within the trailing window.
func NewRateLimiter(clk clock.Clock, limit int, window time.Duration) *RateLimiter {
	if clk == nil {
		panic("web: NewRateLimiter requires a clock")
	}
	if limit <= 0 || window <= 0 {
		panic("web: NewRateLimiter requires a positive limit and window")
	}
	return &RateLimiter{
		clock:   clk,
		limit:   limit,
		window:  window,
		windows: make(map[string][]time.Time),
	}
}

// Allow records an attempt from source and reports whether it is
// within the limit. Rejected attempts are not recorded, so a source
// that keeps retrying is readmitted as soon as an old entry leaves the
// window.
func (l *RateLimiter) Allow(source string) bool {
	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.windows[source]
	live := entries[:0]
	for _, entry := range entries {
		if entry.After(cutoff) {
			live = append(live, entry)
		}
	}

	if len(live) >= l.limit {
		l.windows[source] = live
		return false
	}

	l.windows[source] = append(live, now)

	// Evict other sources whose windows have fully drained, so the map
	// does not grow with every distinct address ever seen.
	for other, otherEntries := range l.windows {
		if other == source {
			continue
		}
		if l.allExpiredLocked(otherEntries, cutoff) {
			delete(l.windows, other)
		}
	}
	return true
}

func (l *RateLimiter) allExpiredLocked(entries []time.Time, cutoff time.Time) bool {
	for _, entry := range entries {
		if entry.After(cutoff) {
			return false
		}
	}
	return true
}
