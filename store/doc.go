// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists Purser's durable state: the installation's
// API credentials and the set of authorized accounts with their
// exported sessions.
//
// Storage is a SQLite database in WAL mode. Secret material (API
// credentials, session strings) is sealed with age before it touches
// the database, so a copied database file alone does not yield usable
// authorization material. Non-secret account identity (ID, username,
// phone) is stored in the clear for listing without the private key.
package store
