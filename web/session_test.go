// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"strings"
	"testing"
)

// staticLiveSet is a LiveSet with a settable population flag.
type staticLiveSet struct {
	populated bool
}

func (s *staticLiveSet) HasClients() bool { return s.populated }

func TestSessionTokens(t *testing.T) {
	registry := NewSessionRegistry(&staticLiveSet{populated: true})

	token := registry.Issue()
	if !strings.HasPrefix(token, "purser_") {
		t.Errorf("token %q missing prefix", token)
	}
	if len(token) != len("purser_")+32 {
		t.Errorf("token length = %d, want %d", len(token), len("purser_")+32)
	}
	if !registry.IsValid(token) {
		t.Error("issued token not valid")
	}
	if registry.IsValid("purser_" + strings.Repeat("0", 32)) {
		t.Error("unissued token valid")
	}
	if registry.IsValid("") {
		t.Error("empty token valid")
	}

	if second := registry.Issue(); second == token {
		t.Error("two issued tokens are identical")
	}
}

func TestMintedTokenNotValid(t *testing.T) {
	registry := NewSessionRegistry(&staticLiveSet{populated: true})
	token := registry.Mint()
	if registry.IsValid(token) {
		t.Error("minted (unregistered) token valid")
	}
	registry.Register(token)
	if !registry.IsValid(token) {
		t.Error("registered token not valid")
	}
}

func TestRequiresAuthTracksLiveSet(t *testing.T) {
	live := &staticLiveSet{}
	registry := NewSessionRegistry(live)

	if registry.RequiresAuth() {
		t.Error("RequiresAuth = true with no live clients")
	}
	if !registry.Trusted("") {
		t.Error("bootstrap request not trusted")
	}

	live.populated = true
	if !registry.RequiresAuth() {
		t.Error("RequiresAuth = false with live clients")
	}
	if registry.Trusted("") {
		t.Error("tokenless request trusted after bootstrap")
	}
	token := registry.Issue()
	if !registry.Trusted(token) {
		t.Error("valid token not trusted")
	}
}
