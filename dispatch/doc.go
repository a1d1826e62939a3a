// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch tracks the live set of authorized Telegram accounts
// in a running Purser instance.
//
// The web onboarding layer promotes a freshly authorized client into
// the dispatcher exactly once per account; components that need "is
// anyone logged in yet" (session gating, the authorization gate's
// bootstrap rule) ask the dispatcher rather than keeping their own
// flags.
package dispatch
