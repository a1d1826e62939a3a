// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"errors"
	"sync"

	"github.com/purser-foundation/purser/telegram"
)

// fakeClient is a scriptable telegram.Client. Zero-value behavior is
// success everywhere; tests override individual steps with the
// function fields.
type fakeClient struct {
	account telegram.Account
	session string

	sendCodeFn      func(phone string) error
	signInFn        func(phone, code string) error
	checkPasswordFn func(password string) error
	confirmFn       func(ctx context.Context) (bool, error)
	beginQRFn       func() (telegram.QRLogin, error)
	usernameFn      func(username string) (bool, error)
	accountFn       func() (telegram.Account, error)

	mu         sync.Mutex
	sentPhone  string
	lastPrompt string
	messages   []string
	closed     bool
}

func (c *fakeClient) SendCode(ctx context.Context, phone string) error {
	c.mu.Lock()
	c.sentPhone = phone
	c.mu.Unlock()
	if c.sendCodeFn != nil {
		return c.sendCodeFn(phone)
	}
	return nil
}

func (c *fakeClient) SignIn(ctx context.Context, phone, code string) error {
	if c.signInFn != nil {
		return c.signInFn(phone, code)
	}
	return nil
}

func (c *fakeClient) CheckPassword(ctx context.Context, password string) error {
	if c.checkPasswordFn != nil {
		return c.checkPasswordFn(password)
	}
	return nil
}

func (c *fakeClient) BeginQR(ctx context.Context) (telegram.QRLogin, error) {
	if c.beginQRFn != nil {
		return c.beginQRFn()
	}
	return nil, errors.New("fakeClient: no QR script")
}

func (c *fakeClient) Authorized(ctx context.Context) (bool, error) {
	return true, nil
}

func (c *fakeClient) Account(ctx context.Context) (telegram.Account, error) {
	if c.accountFn != nil {
		return c.accountFn()
	}
	return c.account, nil
}

func (c *fakeClient) ExportSession(ctx context.Context) (string, error) {
	return c.session, nil
}

func (c *fakeClient) ConfirmAuthorization(ctx context.Context, prompt string) (bool, error) {
	c.mu.Lock()
	c.lastPrompt = prompt
	c.mu.Unlock()
	if c.confirmFn != nil {
		return c.confirmFn(ctx)
	}
	return false, errors.New("fakeClient: no confirmation script")
}

func (c *fakeClient) prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPrompt
}

func (c *fakeClient) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	c.messages = append(c.messages, text)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) sentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

func (c *fakeClient) UsernameOccupied(ctx context.Context, username string) (bool, error) {
	if c.usernameFn != nil {
		return c.usernameFn(username)
	}
	return false, nil
}

func (c *fakeClient) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out a scripted sequence of clients.
type fakeDialer struct {
	mu      sync.Mutex
	clients []telegram.Client
}

func (d *fakeDialer) queue(clients ...telegram.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients = append(d.clients, clients...)
}

func (d *fakeDialer) NewClient(ctx context.Context, credentials telegram.Credentials) (telegram.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		return nil, errors.New("fakeDialer: no client queued")
	}
	client := d.clients[0]
	d.clients = d.clients[1:]
	return client, nil
}

// fakeQR is a scriptable telegram.QRLogin. Wait consumes one result
// per call from the results channel.
type fakeQR struct {
	url     string
	results chan error

	// next is returned by Recreate.
	next *fakeQR

	// ignoreCancel makes Wait block on results even after the context
	// is cancelled, to exercise stale-commit discard.
	ignoreCancel bool
}

func newFakeQR(url string) *fakeQR {
	return &fakeQR{url: url, results: make(chan error, 4)}
}

func (q *fakeQR) URL() string { return q.url }

func (q *fakeQR) Wait(ctx context.Context) error {
	if q.ignoreCancel {
		return <-q.results
	}
	select {
	case err := <-q.results:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *fakeQR) Recreate(ctx context.Context) (telegram.QRLogin, error) {
	if q.next == nil {
		return nil, errors.New("fakeQR: no recreate script")
	}
	return q.next, nil
}
