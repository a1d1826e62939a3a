// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package telegram

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for login outcomes the web layer branches on. The
// engine client maps protocol error codes onto these; fake clients in
// tests return them directly.
var (
	// ErrPasswordNeeded means the account has two-factor authentication
	// enabled and sign-in cannot complete until the cloud password is
	// supplied.
	ErrPasswordNeeded = errors.New("telegram: two-factor password needed")

	// ErrCodeInvalid means the submitted confirmation code is wrong.
	ErrCodeInvalid = errors.New("telegram: confirmation code invalid")

	// ErrCodeExpired means the confirmation code is no longer valid and
	// a new one must be requested.
	ErrCodeExpired = errors.New("telegram: confirmation code expired")

	// ErrPasswordInvalid means the submitted two-factor password is wrong.
	ErrPasswordInvalid = errors.New("telegram: two-factor password invalid")

	// ErrQRExpired means the QR login token expired before it was
	// scanned. Callers regenerate the token and continue waiting.
	ErrQRExpired = errors.New("telegram: QR login token expired")
)

// FloodWaitError reports that Telegram is rate limiting the account or
// IP and the operation must not be retried before RetryAfter elapses.
type FloodWaitError struct {
	RetryAfter time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("telegram: flood wait, retry after %s", e.RetryAfter)
}

// AsFloodWait unwraps err as a FloodWaitError. Returns nil when err is
// not a flood wait.
func AsFloodWait(err error) *FloodWaitError {
	var floodWait *FloodWaitError
	if errors.As(err, &floodWait) {
		return floodWait
	}
	return nil
}
