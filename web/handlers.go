// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
)

// sessionCookieName is the cookie carrying the browser's session
// token.
const sessionCookieName = "session"

// customBotSettingKey is the settings key for the operator's chosen
// inline bot username.
const customBotSettingKey = "inline.custom_bot"

// maxBodySize bounds request bodies. Everything this server accepts
// (phone numbers, codes, credential pairs, bot usernames) is tiny.
const maxBodySize = 4096

// sessionToken extracts the session cookie value, empty if absent.
func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// trusted reports whether the request may use session-gated endpoints.
func (s *Server) trusted(r *http.Request) bool {
	return s.sessions.Trusted(sessionToken(r))
}

// clientAddresses returns the requester's address string: the
// forwarding header when present, otherwise the transport peer.
func clientAddresses(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// readBody reads a size-capped request body as a string.
func readBody(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// hostPolicyForbids reports whether hosting policy blocks adding
// another account.
func (s *Server) hostPolicyForbids() bool {
	return s.singleAccount && s.live.HasClients()
}

// handleRoot reports onboarding state flags for the setup front end.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	_, credentialsSet := s.apiCredentials()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{
		"credentials_set": credentialsSet,
		"accounts_ready":  s.live.HasClients(),
		"single_account":  s.singleAccount,
	})
}

// handleCheckSession reports whether the request's cookie is trusted:
// body "1" or "0".
func (s *Server) handleCheckSession(w http.ResponseWriter, r *http.Request) {
	if s.trusted(r) {
		io.WriteString(w, "1")
		return
	}
	io.WriteString(w, "0")
}

// handleWebAuth runs the authorization gate. An already-trusted
// browser gets its own token back; otherwise the gate decides.
func (s *Server) handleWebAuth(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); s.sessions.RequiresAuth() && s.sessions.IsValid(token) {
		io.WriteString(w, token)
		return
	}

	token, decision := s.gate.Authorize(r.Context(), clientAddresses(r))
	switch decision {
	case DecisionRateLimited:
		w.WriteHeader(http.StatusTooManyRequests)
	case DecisionTimeout:
		io.WriteString(w, "TIMEOUT")
	default:
		io.WriteString(w, token)
	}
}

// handleSetAPI accepts the API credential pair as raw text: 32 hex
// characters of hash followed by the numeric ID.
func (s *Server) handleSetAPI(w http.ResponseWriter, r *http.Request) {
	if !s.trusted(r) {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}

	body, err := readBody(r)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}
	credentials, err := parseCredentialPair(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.SaveCredentials(r.Context(), credentials); err != nil {
		s.logger.Error("saving credentials failed", "error", err)
		http.Error(w, "storing credentials failed", http.StatusInternalServerError)
		return
	}
	s.setCredentials(credentials)
	s.logger.Info("api credentials configured")
	io.WriteString(w, "ok")
}

// handleCustomBot validates and stores the operator's inline bot
// username. Usernames are restricted to word characters and must end
// in "bot", per Telegram's rules.
func (s *Server) handleCustomBot(w http.ResponseWriter, r *http.Request) {
	if !s.trusted(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := readBody(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	username := strings.Trim(strings.TrimSpace(body), "@")

	if !validBotUsername(username) {
		io.WriteString(w, "OCCUPIED")
		return
	}

	// Availability is probed through a live account when one exists.
	// The probe is best-effort: a failed lookup does not block saving,
	// a taken username surfaces again at bot registration.
	if entries := s.live.Entries(); len(entries) > 0 {
		occupied, err := entries[0].Client.UsernameOccupied(r.Context(), username)
		if err != nil {
			s.logger.Warn("username availability check failed", "error", err)
		} else if occupied {
			io.WriteString(w, "OCCUPIED")
			return
		}
	}

	if err := s.store.SetSetting(r.Context(), customBotSettingKey, username); err != nil {
		s.logger.Error("saving custom bot failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "OK")
}

// handleCanAdd reports whether another account may be added under the
// hosting policy.
func (s *Server) handleCanAdd(w http.ResponseWriter, r *http.Request) {
	if s.hostPolicyForbids() {
		http.Error(w, "forbidden by hosting policy", http.StatusForbidden)
		return
	}
	io.WriteString(w, "Yes")
}

// validBotUsername checks Telegram bot username shape: letters,
// digits, underscores, ending in "bot".
func validBotUsername(username string) bool {
	if username == "" || !strings.HasSuffix(strings.ToLower(username), "bot") {
		return false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}
