// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Purser packages.
package testutil
