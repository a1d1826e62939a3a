// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/purser-foundation/purser/lib/testutil"
	"github.com/purser-foundation/purser/telegram"
)

// nullClient satisfies telegram.Client for dispatcher tests, which
// never call through it.
type nullClient struct {
	telegram.Client
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *int) {
	t.Helper()
	restarts := 0
	dispatcher := New(Config{
		Logger:  slog.New(slog.DiscardHandler),
		Restart: func() error { restarts++; return nil },
	})
	return dispatcher, &restarts
}

func TestAddDeduplicatesByAccountID(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)

	alice := telegram.Account{ID: 100, Username: "alice"}
	bob := telegram.Account{ID: 200, Username: "bob"}

	if !dispatcher.Add(nullClient{}, alice) {
		t.Fatal("first Add(alice) = false, want true")
	}
	if dispatcher.Add(nullClient{}, alice) {
		t.Fatal("second Add(alice) = true, want false")
	}
	if !dispatcher.Add(nullClient{}, bob) {
		t.Fatal("Add(bob) = false, want true")
	}

	entries := dispatcher.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries length = %d, want 2", len(entries))
	}
	if entries[0].Account.ID != 100 || entries[1].Account.ID != 200 {
		t.Errorf("entries out of promotion order: %+v", entries)
	}
}

func TestHasClients(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)

	if dispatcher.HasClients() {
		t.Error("empty dispatcher HasClients = true")
	}
	dispatcher.Add(nullClient{}, telegram.Account{ID: 1})
	if !dispatcher.HasClients() {
		t.Error("HasClients = false after Add")
	}
	if dispatcher.Len() != 1 {
		t.Errorf("Len = %d, want 1", dispatcher.Len())
	}
}

func TestWaitForClients(t *testing.T) {
	t.Run("unblocks on first add", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher(t)

		done := make(chan error, 1)
		go func() {
			done <- dispatcher.WaitForClients(context.Background())
		}()

		dispatcher.Add(nullClient{}, telegram.Account{ID: 1})
		if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for WaitForClients"); err != nil {
			t.Fatalf("WaitForClients failed: %v", err)
		}
	})

	t.Run("returns immediately when already populated", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher(t)
		dispatcher.Add(nullClient{}, telegram.Account{ID: 1})
		if err := dispatcher.WaitForClients(context.Background()); err != nil {
			t.Fatalf("WaitForClients failed: %v", err)
		}
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := dispatcher.WaitForClients(ctx); err == nil {
			t.Fatal("WaitForClients on empty dispatcher with cancelled context succeeded")
		}
	})
}

func TestRestart(t *testing.T) {
	dispatcher, restarts := newTestDispatcher(t)
	if err := dispatcher.Restart(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if *restarts != 1 {
		t.Errorf("restart function called %d times, want 1", *restarts)
	}
}
