// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

// Package telegram defines Purser's interface to Telegram accounts.
//
// Purser does not speak MTProto itself. Session ownership lives in the
// purser-engine companion process, which exposes a CBOR request-response
// protocol on a Unix socket. This package provides the Go-side client
// for that protocol (EngineDialer) plus the interfaces the rest of
// Purser programs against, so that tests can substitute in-process
// fakes and the engine can be swapped without touching the web layer.
//
// The interfaces are deliberately narrow: they cover exactly the
// operations onboarding needs (send a login code, sign in, answer a
// two-factor prompt, QR login, confirmation messages, session export)
// rather than the full Telegram API surface.
package telegram
