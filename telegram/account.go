// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package telegram

// Credentials identifies an application to the Telegram API. Issued
// per-installation at my.telegram.org.
type Credentials struct {
	// APIID is the numeric application identifier.
	APIID int `cbor:"api_id" json:"api_id"`

	// APIHash is the 32-character hex application secret.
	APIHash string `cbor:"api_hash" json:"api_hash"`
}

// Valid reports whether both credential fields are plausibly set. It
// checks shape only; the values are proven against Telegram on first
// connect.
func (c Credentials) Valid() bool {
	return c.APIID > 0 && len(c.APIHash) == 32
}

// Account describes an authorized Telegram account.
type Account struct {
	// ID is Telegram's stable numeric user identifier. Purser uses it
	// to deduplicate accounts across repeated logins.
	ID int64 `cbor:"id"`

	// Username is the public @username, empty if unset.
	Username string `cbor:"username"`

	// FirstName is the profile first name.
	FirstName string `cbor:"first_name"`

	// Phone is the account phone number in normalized digit form.
	Phone string `cbor:"phone"`
}
