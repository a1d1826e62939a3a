// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package telegram

import "context"

// Dialer creates Telegram clients. The production implementation is
// EngineDialer; tests use in-process fakes.
type Dialer interface {
	// NewClient allocates a fresh unauthorized client using the given
	// API credentials. The client holds no session until a login flow
	// completes.
	NewClient(ctx context.Context, credentials Credentials) (Client, error)
}

// Client is one Telegram account connection. A client starts
// unauthorized; exactly one login flow (code or QR) authorizes it.
//
// Clients are not safe for concurrent use by multiple login flows, but
// the onboarding pending slot already guarantees single occupancy.
type Client interface {
	// SendCode asks Telegram to deliver a confirmation code to the
	// given phone number (normalized digits, see ParsePhone). May
	// return a FloodWaitError.
	SendCode(ctx context.Context, phone string) error

	// SignIn submits the confirmation code for the phone number given
	// to SendCode. Returns ErrPasswordNeeded when the account has
	// two-factor authentication, ErrCodeInvalid or ErrCodeExpired for
	// bad codes, or a FloodWaitError.
	SignIn(ctx context.Context, phone, code string) error

	// CheckPassword submits the two-factor cloud password. Returns
	// ErrPasswordInvalid when it is wrong.
	CheckPassword(ctx context.Context, password string) error

	// BeginQR starts a QR login flow and returns the first token.
	BeginQR(ctx context.Context) (QRLogin, error)

	// Authorized reports whether the client holds a live authorization.
	Authorized(ctx context.Context) (bool, error)

	// Account returns the authorized account's identity. Fails on an
	// unauthorized client.
	Account(ctx context.Context) (Account, error)

	// ExportSession returns the client's session in portable string
	// form. The caller seals it before persisting.
	ExportSession(ctx context.Context) (string, error)

	// ConfirmAuthorization asks the account's owner to approve or deny
	// a request via a message with inline buttons, blocking until they
	// answer or ctx expires. The engine removes the prompt message when
	// the call ends, whatever the outcome.
	ConfirmAuthorization(ctx context.Context, prompt string) (bool, error)

	// SendMessage delivers text to the account's saved messages. Used
	// for post-login notices.
	SendMessage(ctx context.Context, text string) error

	// UsernameOccupied reports whether a public @username is already
	// taken. Only authorized clients can resolve usernames.
	UsernameOccupied(ctx context.Context, username string) (bool, error)

	// Close releases the client. An unauthorized client's partial
	// state is discarded; an authorized client's session survives in
	// the engine.
	Close(ctx context.Context) error
}

// QRLogin is one QR login token. Telegram tokens are short-lived; when
// Wait returns ErrQRExpired the caller calls Recreate and displays the
// new URL.
type QRLogin interface {
	// URL is the tg://login token URL to render as a QR code.
	URL() string

	// Wait blocks until the token is scanned and accepted, the token
	// expires (ErrQRExpired), the account requires a two-factor
	// password (ErrPasswordNeeded), or ctx expires.
	Wait(ctx context.Context) error

	// Recreate replaces an expired token with a fresh one.
	Recreate(ctx context.Context) (QRLogin, error)
}
