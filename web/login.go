// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/purser-foundation/purser/telegram"
)

// parseCredentialPair parses the set-credentials body: 32 hex
// characters of API hash immediately followed by the numeric API ID.
func parseCredentialPair(text string) (telegram.Credentials, error) {
	text = strings.TrimSpace(text)
	if len(text) < 36 {
		return telegram.Credentials{}, errors.New("credential pair has the wrong length")
	}

	hash := text[:32]
	id := text[32:]

	for _, r := range hash {
		if !isHexDigit(r) {
			return telegram.Credentials{}, errors.New("malformed API hash")
		}
	}
	apiID, err := strconv.Atoi(id)
	if err != nil || apiID <= 0 {
		return telegram.Credentials{}, errors.New("malformed API ID")
	}

	return telegram.Credentials{APIID: apiID, APIHash: hash}, nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// handleSendCode starts a credential login: occupies the pending slot,
// dials a fresh client, and asks Telegram to send a confirmation code.
func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	if !s.trusted(r) {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}
	if s.hostPolicyForbids() {
		http.Error(w, "forbidden by hosting policy", http.StatusForbidden)
		return
	}

	body, err := readBody(r)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}
	phone, err := telegram.ParsePhone(strings.TrimSpace(body))
	if err != nil {
		http.Error(w, "invalid phone number", http.StatusBadRequest)
		return
	}

	credentials, ok := s.apiCredentials()
	if !ok {
		http.Error(w, "API credentials not configured", http.StatusBadRequest)
		return
	}

	client, err := s.dialer.NewClient(r.Context(), credentials)
	if err != nil {
		s.logger.Error("creating login client failed", "error", err)
		http.Error(w, "creating client failed", http.StatusInternalServerError)
		return
	}

	// Credential logins conflict rather than supersede: a second
	// phone submission while one is pending is a duplicate request.
	generation, err := s.slot.occupy(client)
	if err != nil {
		client.Close(r.Context())
		http.Error(w, "a login is already in progress", http.StatusAlreadyReported)
		return
	}

	if err := client.SendCode(r.Context(), phone); err != nil {
		s.slot.clear()
		client.Close(r.Context())
		if floodWait := telegram.AsFloodWait(err); floodWait != nil {
			http.Error(w, renderFloodWait(floodWait.RetryAfter), http.StatusTooManyRequests)
			return
		}
		s.logger.Error("sending login code failed", "error", err)
		http.Error(w, "sending code failed", http.StatusInternalServerError)
		return
	}

	s.slot.setPhone(generation, phone)
	s.logger.Info("login code sent")
	io.WriteString(w, "ok")
}

// handleTgCode completes a credential login. The body is newline
// delimited: code, phone, and an optional two-factor password. With a
// password present the request is treated as the two-factor step.
func (s *Server) handleTgCode(w http.ResponseWriter, r *http.Request) {
	if !s.trusted(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := readBody(r)
	if err != nil || len(body) < 6 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	parts := strings.SplitN(body, "\n", 3)
	if len(parts) < 2 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	code := parts[0]
	phone, phoneErr := telegram.ParsePhone(parts[1])
	password := ""
	if len(parts) == 3 {
		password = parts[2]
	}

	if phoneErr != nil || (password == "" && !validLoginCode(code)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	client, generation := s.slot.current()
	if client == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// The code was sent to a specific number; a submission for a
	// different one is a stale or confused request.
	if sent := s.slot.currentPhone(); sent != "" && sent != phone {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if password == "" {
		err = client.SignIn(r.Context(), phone, code)
		switch {
		case err == nil:
		case errors.Is(err, telegram.ErrPasswordNeeded):
			http.Error(w, "two-factor password required", http.StatusUnauthorized)
			return
		case errors.Is(err, telegram.ErrCodeExpired):
			http.Error(w, "code expired", http.StatusNotFound)
			return
		case errors.Is(err, telegram.ErrCodeInvalid):
			http.Error(w, "invalid code", http.StatusForbidden)
			return
		default:
			if floodWait := telegram.AsFloodWait(err); floodWait != nil {
				http.Error(w, renderFloodWait(floodWait.RetryAfter), http.StatusMisdirectedRequest)
				return
			}
			s.logger.Error("sign-in failed", "error", err)
			http.Error(w, "sign-in failed", http.StatusInternalServerError)
			return
		}
	} else {
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
	}

	if err := s.promote(r.Context(), client, generation); err != nil {
		s.logger.Error("promotion failed", "error", err)
		http.Error(w, "promotion failed", http.StatusInternalServerError)
		return
	}
}

// handleFinishLogin promotes whatever client is pending. The login
// endpoints promote on success themselves, so this succeeds only when
// a verified client is still waiting in the slot.
func (s *Server) handleFinishLogin(w http.ResponseWriter, r *http.Request) {
	if !s.trusted(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	client, generation := s.slot.current()
	if client == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.promote(r.Context(), client, generation); err != nil {
		s.logger.Error("promotion failed", "error", err)
		http.Error(w, "promotion failed", http.StatusInternalServerError)
		return
	}
}

// validLoginCode checks the confirmation code shape: exactly five
// ASCII digits.
func validLoginCode(code string) bool {
	if len(code) != 5 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// renderFloodWait formats a flood-wait duration for display.
func renderFloodWait(wait time.Duration) string {
	wait = wait.Round(time.Second)
	hours := int(wait.Hours())
	minutes := int(wait.Minutes()) % 60
	seconds := int(wait.Seconds()) % 60

	var b strings.Builder
	b.WriteString("Telegram imposed a flood wait of ")
	if hours > 0 {
		fmt.Fprintf(&b, "%dh ", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dm ", minutes)
	}
	fmt.Fprintf(&b, "%ds. Wait it out and try again.", seconds)
	return b.String()
}
