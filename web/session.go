// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"
)

// sessionTokenPrefix marks Purser session tokens so they are
// recognizable in cookie jars and bug reports without being guessable.
const sessionTokenPrefix = "purser_"

// sessionHashKey is the BLAKE3 key for hashing session tokens at rest.
// Keys must be exactly 32 bytes; an ASCII string keeps the domain
// separation auditable.
const sessionHashKey = "purser-web-session-token-hash-01"

// LiveSet reports whether any account is live. Satisfied by
// dispatch.Dispatcher.
type LiveSet interface {
	HasClients() bool
}

// SessionRegistry issues and validates browser session tokens. Tokens
// are opaque 128-bit random strings; the registry keeps only keyed
// hashes, so a leaked registry dump cannot be replayed as cookies.
//
// The valid set grows for the process lifetime. Tokens are bound to a
// single operator's own browser, so expiry is a restart concern.
type SessionRegistry struct {
	live LiveSet

	mu     sync.Mutex
	hashes map[string]bool
}

// NewSessionRegistry creates an empty registry gated on the given live
// set.
func NewSessionRegistry(live LiveSet) *SessionRegistry {
	if live == nil {
		panic("web: NewSessionRegistry requires a live set")
	}
	return &SessionRegistry{
		live:   live,
		hashes: make(map[string]bool),
	}
}

// Issue mints a fresh token and records it as valid.
func (r *SessionRegistry) Issue() string {
	token := r.Mint()
	r.Register(token)
	return token
}

// Mint produces a fresh token without registering it. Used when the
// authorization gate hands a cookie to a browser it could not confirm:
// the browser gets a well-formed value that will never validate.
func (r *SessionRegistry) Mint() string {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("web: reading random bytes: %v", err))
	}
	return sessionTokenPrefix + hex.EncodeToString(raw)
}

// Register records a minted token as valid.
func (r *SessionRegistry) Register(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes[hashToken(token)] = true
}

// IsValid reports whether token was issued by this registry.
func (r *SessionRegistry) IsValid(token string) bool {
	if token == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hashes[hashToken(token)]
}

// RequiresAuth reports whether endpoints must demand a session token.
// False only while no account is live: the first-ever setup has no
// account that could confirm the browser, so it is trusted.
func (r *SessionRegistry) RequiresAuth() bool {
	return r.live.HasClients()
}

// Trusted reports whether a request carrying token may proceed:
// either the bootstrap condition holds or the token is valid.
func (r *SessionRegistry) Trusted(token string) bool {
	if !r.RequiresAuth() {
		return true
	}
	return r.IsValid(token)
}

func hashToken(token string) string {
	hasher, err := blake3.NewKeyed([]byte(sessionHashKey))
	if err != nil {
		panic(fmt.Sprintf("web: creating keyed hasher: %v", err))
	}
	hasher.WriteString(token)
	return hex.EncodeToString(hasher.Sum(nil))
}
