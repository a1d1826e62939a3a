// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"errors"
	"fmt"

	"github.com/purser-foundation/purser/telegram"
)

var (
	errNoPendingClient = errors.New("web: no pending client to promote")
	errLoginSuperseded = errors.New("web: login superseded before promotion")
)

// promotionNotice lands in the account's saved messages after a
// successful login.
const promotionNotice = "Purser is now attached to this account. You can close the setup page."

// promote moves a verified client into the live set, exactly once per
// account identity. client and generation come from the verifying
// handler's slot read; the slot is released only if that login still
// owns it, so a flow superseded between verification and promotion
// cannot push the superseding, unverified client into the live set.
// The session is exported and persisted so a restart can restore the
// account. When this is not the first live account, the process
// restarts: the dispatcher initializes its account topology at startup
// and does not hot-reload it.
func (s *Server) promote(ctx context.Context, client telegram.Client, generation uint64) error {
	if client == nil {
		return errNoPendingClient
	}
	if !s.slot.release(client, generation) {
		s.logger.Warn("login superseded before promotion, discarding verified client")
		if err := client.Close(ctx); err != nil {
			s.logger.Debug("closing superseded client failed", "error", err)
		}
		return errLoginSuperseded
	}

	account, err := client.Account(ctx)
	if err != nil {
		// The client left the slot above; without an identity it cannot
		// enter the live set either, so release the engine-side session.
		if closeErr := client.Close(ctx); closeErr != nil {
			s.logger.Debug("closing unidentifiable client failed", "error", closeErr)
		}
		return fmt.Errorf("web: resolving promoted account: %w", err)
	}

	first := !s.live.HasClients()
	if !s.live.Add(client, account) {
		// Same account already live: a repeated promotion of the same
		// identity. Drop the redundant connection.
		s.logger.Info("account already live", "account_id", account.ID)
		if err := client.Close(ctx); err != nil {
			s.logger.Debug("closing redundant client failed", "error", err)
		}
		return nil
	}

	// Persistence is best-effort: a failed export still leaves the
	// account usable for this process lifetime, it just will not
	// survive a restart.
	session, err := client.ExportSession(ctx)
	if err != nil {
		s.logger.Warn("session export failed", "account_id", account.ID, "error", err)
	} else if err := s.store.SaveAccount(ctx, account, session); err != nil {
		s.logger.Error("persisting account failed", "account_id", account.ID, "error", err)
	}

	if err := client.SendMessage(ctx, promotionNotice); err != nil {
		s.logger.Debug("post-login notice failed", "account_id", account.ID, "error", err)
	}

	if !first {
		return s.live.Restart()
	}
	return nil
}
