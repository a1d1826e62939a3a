// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/purser-foundation/purser/dispatch"
	"github.com/purser-foundation/purser/lib/clock"
	"github.com/purser-foundation/purser/telegram"
)

// AuthDecision is the outcome of an authorization gate pass.
type AuthDecision int

const (
	// DecisionApproved: an operator approved the confirmation prompt;
	// the returned token is registered.
	DecisionApproved AuthDecision = iota

	// DecisionBootstrap: no account is live yet, so the browser is
	// trusted without confirmation; the returned token is registered.
	DecisionBootstrap

	// DecisionRateLimited: a source address exceeded the request
	// ceiling. No prompt was sent and no token returned.
	DecisionRateLimited

	// DecisionTimeout: the approval wait elapsed. No token returned.
	DecisionTimeout

	// DecisionUnconfirmed: every live account answered without an
	// approval, or no prompt could be delivered. The returned token is
	// well-formed but unregistered, so the browser receives a cookie
	// that will never validate.
	DecisionUnconfirmed
)

// AuthGate pushes an in-app confirmation through the live accounts
// before trusting a new browser session.
type AuthGate struct {
	sessions *SessionRegistry
	limiter  *RateLimiter
	live     *dispatch.Dispatcher
	locator  Locator
	clock    clock.Clock
	logger   *slog.Logger

	// timeout bounds the approval wait.
	timeout time.Duration
}

// AuthGateConfig configures an AuthGate. All fields except Locator are
// required.
type AuthGateConfig struct {
	Sessions *SessionRegistry
	Limiter  *RateLimiter
	Live     *dispatch.Dispatcher

	// Locator enriches the prompt with location hints. Optional; when
	// nil, prompts carry only the raw addresses.
	Locator Locator

	Clock  clock.Clock
	Logger *slog.Logger

	// Timeout is the approval wait bound. Defaults to 3 minutes.
	Timeout time.Duration
}

// NewAuthGate creates a gate.
func NewAuthGate(cfg AuthGateConfig) *AuthGate {
	if cfg.Sessions == nil || cfg.Limiter == nil || cfg.Live == nil || cfg.Clock == nil || cfg.Logger == nil {
		panic("web: NewAuthGate requires sessions, limiter, live set, clock, and logger")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 3 * time.Minute
	}
	return &AuthGate{
		sessions: cfg.Sessions,
		limiter:  cfg.Limiter,
		live:     cfg.Live,
		locator:  cfg.Locator,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		timeout:  timeout,
	}
}

// ipPattern extracts IPv4 addresses from forwarding headers, which may
// carry several comma or space separated hops.
var ipPattern = regexp.MustCompile(`[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`)

// Authorize runs the gate for a request originating from the given
// forwarded-address string. Every extracted address is rate-limited
// before any account is contacted.
func (g *AuthGate) Authorize(ctx context.Context, forwarded string) (string, AuthDecision) {
	addresses := ipPattern.FindAllString(forwarded, -1)

	for _, address := range addresses {
		if !g.limiter.Allow(address) {
			g.logger.Warn("authorization request rate limited", "address", address)
			return "", DecisionRateLimited
		}
	}

	if !g.sessions.RequiresAuth() {
		g.logger.Info("bootstrap session issued", "from", forwarded)
		return g.sessions.Issue(), DecisionBootstrap
	}

	prompt := g.buildPrompt(ctx, forwarded, addresses)

	confirmCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type answer struct {
		approved bool
		err      error
	}
	entries := g.live.Entries()
	answers := make(chan answer, len(entries))
	for _, entry := range entries {
		go func(client telegram.Client, accountID int64) {
			approved, err := client.ConfirmAuthorization(confirmCtx, prompt)
			if err != nil {
				g.logger.Debug("confirmation prompt failed",
					"account_id", accountID,
					"error", err,
				)
			}
			answers <- answer{approved: approved, err: err}
		}(entry.Client, entry.Account.ID)
	}

	deadline := g.clock.After(g.timeout)
	for remaining := len(entries); remaining > 0; {
		select {
		case result := <-answers:
			remaining--
			if result.err == nil && result.approved {
				g.logger.Info("browser session approved", "from", forwarded)
				return g.sessions.Issue(), DecisionApproved
			}
		case <-deadline:
			g.logger.Info("authorization wait timed out", "from", forwarded)
			return "", DecisionTimeout
		case <-ctx.Done():
			return "", DecisionTimeout
		}
	}

	// Every account answered and none approved: either the prompts
	// were undeliverable or the operator declined. Hand back a cookie
	// value that will never validate rather than an error, so probes
	// cannot distinguish a declined request from a broken one.
	g.logger.Info("authorization unconfirmed", "from", forwarded)
	return g.sessions.Mint(), DecisionUnconfirmed
}

// buildPrompt renders the confirmation message, enriched with
// best-effort location hints for each address.
func (g *AuthGate) buildPrompt(ctx context.Context, forwarded string, addresses []string) string {
	var hints []string
	if g.locator != nil {
		for _, address := range addresses {
			hint, err := g.locator.Locate(ctx, address)
			if err != nil {
				g.logger.Debug("geolocation lookup failed", "address", address, "error", err)
				continue
			}
			hints = append(hints, hint)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A browser is requesting access to this Purser installation.\n\nClient IP: %s\n", forwarded)
	if len(hints) > 0 {
		fmt.Fprintf(&b, "Possible location: %s\n", strings.Join(hints, "; "))
	}
	b.WriteString("\nIf you did not open the web interface, do not approve this request.")
	return b.String()
}
