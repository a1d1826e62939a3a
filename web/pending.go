// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"errors"
	"sync"

	"github.com/purser-foundation/purser/telegram"
)

// ErrSlotBusy is returned when a credential login starts while another
// login is already in progress. Credential flows conflict rather than
// supersede: a second phone submission from the same operator is
// almost always a duplicated request.
var ErrSlotBusy = errors.New("web: a login is already in progress")

// qrState is the QR flow's coordination variable, written by the
// background poll goroutine and read by the status endpoint.
type qrState int

const (
	qrAbsent qrState = iota
	qrAwaitingScan
	qrTwoFactorRequired
	qrCompleted
)

// pendingSlot holds the single in-progress login. Occupancy is
// generation-tagged: every occupant gets a fresh generation number,
// and background work captures the number at start and presents it
// when committing, so work belonging to a superseded login cannot
// touch the current one.
type pendingSlot struct {
	mu         sync.Mutex
	generation uint64
	client     telegram.Client
	phone      string

	qr       qrState
	qrURL    string
	qrCancel context.CancelFunc
}

// occupy installs client into an empty slot. Fails with ErrSlotBusy
// when a login is already in progress.
func (s *pendingSlot) occupy(client telegram.Client) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return 0, ErrSlotBusy
	}
	s.installLocked(client)
	return s.generation, nil
}

// supersede installs client, cancelling and discarding any login in
// progress. QR flows restart this way: re-opening the login page is
// expected to begin a fresh scan.
func (s *pendingSlot) supersede(client telegram.Client) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked()
	s.installLocked(client)
	return s.generation
}

// installLocked assumes the slot is empty.
func (s *pendingSlot) installLocked(client telegram.Client) {
	s.generation++
	s.client = client
	s.phone = ""
	s.qr = qrAbsent
	s.qrURL = ""
	s.qrCancel = nil
}

// discardLocked cancels QR work and empties the slot without bumping
// the generation; the next install does that.
func (s *pendingSlot) discardLocked() {
	if s.qrCancel != nil {
		s.qrCancel()
		s.qrCancel = nil
	}
	s.client = nil
	s.phone = ""
	s.qr = qrAbsent
	s.qrURL = ""
}

// clear empties the slot. Promotion calls this after taking ownership
// of the client; the generation bump on the next occupy invalidates
// any straggling background work.
func (s *pendingSlot) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked()
}

// current returns the occupying client and its generation, or nil when
// the slot is empty.
func (s *pendingSlot) current() (telegram.Client, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, s.generation
}

// release empties the slot for promotion, cancelling any QR work, but
// only if client at generation is still the occupant. Returns false
// when the login has been superseded; the caller keeps ownership of
// client and the current occupant is untouched.
func (s *pendingSlot) release(client telegram.Client, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation || s.client != client {
		return false
	}
	s.discardLocked()
	return true
}

// snapshot returns the occupant, its generation, and the QR state in
// one consistent read, so a status check and the promotion that
// follows it cannot straddle a supersession.
func (s *pendingSlot) snapshot() (telegram.Client, uint64, qrState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, s.generation, s.qr, s.qrURL
}

// setPhone records the phone a login code was sent to, for matching
// against the code submission.
func (s *pendingSlot) setPhone(generation uint64, phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return
	}
	s.phone = phone
}

// currentPhone returns the phone recorded for the current occupant.
func (s *pendingSlot) currentPhone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phone
}

// setQRCancel attaches the QR poll goroutine's cancel function. If the
// generation no longer matches, the goroutine has already been
// superseded and cancel is invoked immediately.
func (s *pendingSlot) setQRCancel(generation uint64, cancel context.CancelFunc) {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		cancel()
		return
	}
	s.qrCancel = cancel
	s.mu.Unlock()
}

// commitQR applies a QR state transition if generation still matches
// the slot's occupant. Stale commits from superseded poll goroutines
// are discarded. Returns whether the commit applied.
func (s *pendingSlot) commitQR(generation uint64, state qrState, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation || s.client == nil {
		return false
	}
	s.qr = state
	if url != "" {
		s.qrURL = url
	}
	return true
}

// qrStatus returns the current QR state and URL.
func (s *pendingSlot) qrStatus() (qrState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qr, s.qrURL
}
