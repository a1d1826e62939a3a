// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/purser-foundation/purser/dispatch"
	"github.com/purser-foundation/purser/lib/clock"
	"github.com/purser-foundation/purser/lib/testutil"
	"github.com/purser-foundation/purser/telegram"
)

// recordingLocator returns a fixed hint and records lookups.
type recordingLocator struct {
	hint    string
	lookups []string
}

func (l *recordingLocator) Locate(ctx context.Context, ip string) (string, error) {
	l.lookups = append(l.lookups, ip)
	return l.hint, nil
}

type gateFixture struct {
	gate       *AuthGate
	sessions   *SessionRegistry
	dispatcher *dispatch.Dispatcher
	clock      *clock.FakeClock
	locator    *recordingLocator
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	dispatcher := dispatch.New(dispatch.Config{
		Logger:  logger,
		Restart: func() error { return nil },
	})
	sessions := NewSessionRegistry(dispatcher)
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	locator := &recordingLocator{hint: "Iceland Reykjavik 101"}
	gate := NewAuthGate(AuthGateConfig{
		Sessions: sessions,
		Limiter:  NewRateLimiter(fakeClock, 3, 3*time.Minute),
		Live:     dispatcher,
		Locator:  locator,
		Clock:    fakeClock,
		Logger:   logger,
	})
	return &gateFixture{
		gate:       gate,
		sessions:   sessions,
		dispatcher: dispatcher,
		clock:      fakeClock,
		locator:    locator,
	}
}

func TestGateBootstrap(t *testing.T) {
	fixture := newGateFixture(t)

	token, decision := fixture.gate.Authorize(context.Background(), "203.0.113.7")
	if decision != DecisionBootstrap {
		t.Fatalf("decision = %v, want bootstrap", decision)
	}
	if !fixture.sessions.IsValid(token) {
		t.Error("bootstrap token not registered")
	}
	if len(fixture.locator.lookups) != 0 {
		t.Error("bootstrap performed geolocation lookups")
	}
}

func TestGateRateLimitsFourthRequest(t *testing.T) {
	fixture := newGateFixture(t)

	for attempt := 0; attempt < 3; attempt++ {
		if _, decision := fixture.gate.Authorize(context.Background(), "203.0.113.7"); decision != DecisionBootstrap {
			t.Fatalf("attempt %d decision = %v, want bootstrap", attempt+1, decision)
		}
	}
	token, decision := fixture.gate.Authorize(context.Background(), "203.0.113.7")
	if decision != DecisionRateLimited {
		t.Fatalf("fourth decision = %v, want rate limited", decision)
	}
	if token != "" {
		t.Error("rate-limited request received a token")
	}
}

func TestGateApproval(t *testing.T) {
	fixture := newGateFixture(t)
	approver := &fakeClient{
		account:   telegram.Account{ID: 1, Username: "owner"},
		confirmFn: func(ctx context.Context) (bool, error) { return true, nil },
	}
	fixture.dispatcher.Add(approver, approver.account)

	token, decision := fixture.gate.Authorize(context.Background(), "203.0.113.7")
	if decision != DecisionApproved {
		t.Fatalf("decision = %v, want approved", decision)
	}
	if !fixture.sessions.IsValid(token) {
		t.Error("approved token not registered")
	}

	prompt := approver.prompt()
	if !strings.Contains(prompt, "203.0.113.7") {
		t.Errorf("prompt missing client address: %q", prompt)
	}
	if !strings.Contains(prompt, "Iceland Reykjavik 101") {
		t.Errorf("prompt missing location hint: %q", prompt)
	}
}

func TestGateTimeout(t *testing.T) {
	fixture := newGateFixture(t)
	silent := &fakeClient{
		account: telegram.Account{ID: 1},
		confirmFn: func(ctx context.Context) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		},
	}
	fixture.dispatcher.Add(silent, silent.account)

	type outcome struct {
		token    string
		decision AuthDecision
	}
	done := make(chan outcome, 1)
	go func() {
		token, decision := fixture.gate.Authorize(context.Background(), "203.0.113.7")
		done <- outcome{token: token, decision: decision}
	}()

	// The gate registers its timeout with the fake clock; advancing
	// past it resolves the wait.
	fixture.clock.WaitForTimers(1)
	fixture.clock.Advance(3 * time.Minute)

	result := testutil.RequireReceive(t, done, 5*time.Second, "waiting for gate timeout")
	if result.decision != DecisionTimeout {
		t.Fatalf("decision = %v, want timeout", result.decision)
	}
	if result.token != "" {
		t.Error("timed-out request received a token")
	}
}

func TestGateUnconfirmed(t *testing.T) {
	fixture := newGateFixture(t)
	decliner := &fakeClient{
		account:   telegram.Account{ID: 1},
		confirmFn: func(ctx context.Context) (bool, error) { return false, nil },
	}
	fixture.dispatcher.Add(decliner, decliner.account)

	token, decision := fixture.gate.Authorize(context.Background(), "203.0.113.7")
	if decision != DecisionUnconfirmed {
		t.Fatalf("decision = %v, want unconfirmed", decision)
	}
	if token == "" {
		t.Fatal("unconfirmed request received no cookie value")
	}
	if fixture.sessions.IsValid(token) {
		t.Error("unconfirmed token validates")
	}
}

func TestGateFirstApprovalWins(t *testing.T) {
	fixture := newGateFixture(t)
	approver := &fakeClient{
		account:   telegram.Account{ID: 1},
		confirmFn: func(ctx context.Context) (bool, error) { return true, nil },
	}
	slow := &fakeClient{
		account: telegram.Account{ID: 2},
		confirmFn: func(ctx context.Context) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		},
	}
	fixture.dispatcher.Add(slow, slow.account)
	fixture.dispatcher.Add(approver, approver.account)

	token, decision := fixture.gate.Authorize(context.Background(), "203.0.113.7")
	if decision != DecisionApproved {
		t.Fatalf("decision = %v, want approved", decision)
	}
	if !fixture.sessions.IsValid(token) {
		t.Error("approved token not registered")
	}
}
