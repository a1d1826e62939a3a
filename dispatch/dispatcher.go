// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/purser-foundation/purser/telegram"
)

// Entry is one live account in the dispatcher.
type Entry struct {
	// Client is the account's connection.
	Client telegram.Client

	// Account is the account's identity at promotion time.
	Account telegram.Account
}

// Config configures a Dispatcher.
type Config struct {
	// Logger receives structured dispatcher events. Required.
	Logger *slog.Logger

	// Restart replaces the running process so the full account set is
	// initialized from persistent state. Optional; defaults to
	// re-executing the current binary. Tests inject a recorder.
	Restart func() error
}

// Dispatcher holds the live account set. Safe for concurrent use.
//
// The set only grows: accounts enter via Add and stay until the
// process exits. Removing an account is a restart concern, since the
// engine owns the underlying sessions.
type Dispatcher struct {
	logger  *slog.Logger
	restart func() error

	mu      sync.Mutex
	entries []Entry
	byID    map[int64]bool

	// ready is closed when the first account is added. WaitForClients
	// blocks on it.
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates an empty dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		panic("dispatch: Config.Logger is required")
	}
	restart := cfg.Restart
	if restart == nil {
		restart = execRestart
	}
	return &Dispatcher{
		logger:  cfg.Logger,
		restart: restart,
		byID:    make(map[int64]bool),
		ready:   make(chan struct{}),
	}
}

// Add inserts an account into the live set. Returns false without
// modifying the set when an entry with the same account ID is already
// present, so repeated promotion of the same login is harmless.
func (d *Dispatcher) Add(client telegram.Client, account telegram.Account) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.byID[account.ID] {
		d.logger.Debug("duplicate account ignored", "account_id", account.ID)
		return false
	}
	d.byID[account.ID] = true
	d.entries = append(d.entries, Entry{Client: client, Account: account})
	d.readyOnce.Do(func() { close(d.ready) })

	d.logger.Info("account added",
		"account_id", account.ID,
		"username", account.Username,
		"total", len(d.entries),
	)
	return true
}

// Entries returns a snapshot of the live set in promotion order.
func (d *Dispatcher) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := make([]Entry, len(d.entries))
	copy(snapshot, d.entries)
	return snapshot
}

// HasClients reports whether at least one account is live.
func (d *Dispatcher) HasClients() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries) > 0
}

// Len returns the number of live accounts.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// WaitForClients blocks until at least one account is live or ctx
// expires.
func (d *Dispatcher) WaitForClients(ctx context.Context) error {
	select {
	case <-d.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart hands off to the configured restart function. Called after
// promoting an account into an instance that already had live
// accounts, so the new account's workers start from a clean slate.
func (d *Dispatcher) Restart() error {
	d.logger.Info("restarting to initialize new account")
	return d.restart()
}
