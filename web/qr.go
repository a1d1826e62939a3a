// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/purser-foundation/purser/telegram"
)

var errNoCredentials = errors.New("web: API credentials not configured")

// handleInitQR starts (or restarts) a QR login. Unlike the credential
// flow, an in-progress login is superseded: re-opening the login page
// is expected to begin a fresh scan.
func (s *Server) handleInitQR(w http.ResponseWriter, r *http.Request) {
	if s.hostPolicyForbids() {
		http.Error(w, "forbidden by hosting policy", http.StatusForbidden)
		return
	}
	if !s.trusted(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	url, err := s.startQRFlow(r.Context())
	if err != nil {
		s.writeQRInitError(w, err)
		return
	}
	io.WriteString(w, url)
}

// handleGetQRURL reports QR progress: 201 with the current URL while
// awaiting a scan (starting the flow lazily if needed), 403 "2FA" when
// a password is required, 200 "SUCCESS" once the login completed and
// the client is promoted.
func (s *Server) handleGetQRURL(w http.ResponseWriter, r *http.Request) {
	if !s.trusted(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	client, generation, state, url := s.slot.snapshot()
	switch state {
	case qrTwoFactorRequired:
		http.Error(w, "2FA", http.StatusForbidden)

	case qrCompleted:
		if err := s.promote(r.Context(), client, generation); err != nil {
			s.logger.Error("promotion failed", "error", err)
			http.Error(w, "promotion failed", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "SUCCESS")

	case qrAwaitingScan:
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, url)

	default:
		freshURL, err := s.startQRFlow(r.Context())
		if err != nil {
			s.writeQRInitError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, freshURL)
	}
}

// handleQRTwoFactor completes a QR login that hit the two-factor
// requirement.
func (s *Server) handleQRTwoFactor(w http.ResponseWriter, r *http.Request) {
	if !s.trusted(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := readBody(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	password := strings.TrimSpace(body)

	client, generation := s.slot.current()
	if client == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err = client.CheckPassword(r.Context(), password)
	switch {
	case err == nil:
	case errors.Is(err, telegram.ErrPasswordInvalid):
		http.Error(w, "invalid two-factor password", http.StatusForbidden)
		return
	default:
		if floodWait := telegram.AsFloodWait(err); floodWait != nil {
			http.Error(w, renderFloodWait(floodWait.RetryAfter), http.StatusMisdirectedRequest)
			return
		}
		s.logger.Error("two-factor check failed", "error", err)
		http.Error(w, "two-factor check failed", http.StatusInternalServerError)
		return
	}

	if err := s.promote(r.Context(), client, generation); err != nil {
		s.logger.Error("promotion failed", "error", err)
		http.Error(w, "promotion failed", http.StatusInternalServerError)
	}
}

func (s *Server) writeQRInitError(w http.ResponseWriter, err error) {
	if errors.Is(err, errNoCredentials) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Error("QR login initialization failed", "error", err)
	http.Error(w, "QR login initialization failed", http.StatusInternalServerError)
}

// startQRFlow supersedes any pending login with a fresh client, begins
// QR generation, and launches the background poll. Returns the first
// scannable URL.
func (s *Server) startQRFlow(ctx context.Context) (string, error) {
	credentials, ok := s.apiCredentials()
	if !ok {
		return "", errNoCredentials
	}

	client, err := s.dialer.NewClient(ctx, credentials)
	if err != nil {
		return "", err
	}
	generation := s.slot.supersede(client)

	qr, err := client.BeginQR(ctx)
	if err != nil {
		s.slot.clear()
		client.Close(ctx)
		return "", err
	}
	s.slot.commitQR(generation, qrAwaitingScan, qr.URL())

	// The poll outlives this request; it inherits the server's run
	// context so shutdown or supersession cancels it.
	pollCtx, cancel := context.WithCancel(s.runCtx)
	s.slot.setQRCancel(generation, cancel)
	go s.runQRPoll(pollCtx, generation, qr)

	s.logger.Info("QR login started")
	return qr.URL(), nil
}

// runQRPoll drives one QR login to a terminal state: waits for a scan,
// regenerating the token each time it expires, until the login
// completes or demands a two-factor password. All commits carry the
// captured generation, so a poll belonging to a superseded login
// cannot touch the current one.
func (s *Server) runQRPoll(ctx context.Context, generation uint64, qr telegram.QRLogin) {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, s.qrPollTimeout)
		err := qr.Wait(waitCtx)
		cancel()

		switch {
		case err == nil:
			if s.slot.commitQR(generation, qrCompleted, "") {
				s.logger.Info("QR login completed")
			}
			return

		case errors.Is(err, telegram.ErrPasswordNeeded):
			if s.slot.commitQR(generation, qrTwoFactorRequired, "") {
				s.logger.Info("QR login requires two-factor password")
			}
			return

		case ctx.Err() != nil:
			// Superseded or shutting down.
			return

		case errors.Is(err, telegram.ErrQRExpired), errors.Is(err, context.DeadlineExceeded):
			fresh, recreateErr := qr.Recreate(ctx)
			if recreateErr != nil {
				if errors.Is(recreateErr, telegram.ErrPasswordNeeded) {
					s.slot.commitQR(generation, qrTwoFactorRequired, "")
					return
				}
				s.logger.Error("QR token regeneration failed", "error", recreateErr)
				return
			}
			qr = fresh
			s.slot.commitQR(generation, qrAwaitingScan, fresh.URL())

		default:
			s.logger.Error("QR wait failed", "error", err)
			return
		}
	}
}
