// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

// Package web implements Purser's onboarding and session-authorization
// server: the browser-facing surface through which an operator proves
// ownership of a Telegram account and hands the authorized connection
// to the dispatcher.
//
// Three login paths share one pending-client slot: phone plus
// confirmation code, the same with a two-factor password, and QR scan
// polling. Browser sessions are gated by opaque tokens minted by the
// authorization gate, which pushes an in-app confirmation through the
// already-live accounts before trusting a new browser. The first-ever
// setup is trusted without a token, since there is no account yet that
// could confirm it.
package web
