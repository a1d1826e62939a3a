// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/purser-foundation/purser/lib/codec"
)

// EngineDialer talks to the purser-engine process over its Unix
// socket. Each call is one connection: dial, write a CBOR request,
// read a CBOR response, close. CBOR is self-delimiting so no framing
// protocol is needed.
//
// Client handles are allocated on this side (UUIDs) and passed with
// every request, so a reconnected engine can recognize stale handles
// and fail cleanly instead of routing calls to the wrong session.
type EngineDialer struct {
	socketPath  string
	dialTimeout time.Duration
	logger      *slog.Logger
}

// NewEngineDialer creates a dialer for the engine socket at
// socketPath. Panics if socketPath is empty or logger is nil: both
// come from validated configuration and a missing value is a wiring
// bug, not a runtime condition.
func NewEngineDialer(socketPath string, dialTimeout time.Duration, logger *slog.Logger) *EngineDialer {
	if socketPath == "" {
		panic("telegram: NewEngineDialer requires a socket path")
	}
	if logger == nil {
		panic("telegram: NewEngineDialer requires a logger")
	}
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &EngineDialer{
		socketPath:  socketPath,
		dialTimeout: dialTimeout,
		logger:      logger,
	}
}

// NewClient allocates a fresh unauthorized client in the engine.
func (d *EngineDialer) NewClient(ctx context.Context, credentials Credentials) (Client, error) {
	clientID := uuid.NewString()
	err := d.call(ctx, engineRequest{
		Action:   "create_client",
		ClientID: clientID,
		APIID:    credentials.APIID,
		APIHash:  credentials.APIHash,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: creating engine client: %w", err)
	}
	d.logger.Debug("engine client created", "client_id", clientID)
	return &engineClient{dialer: d, id: clientID}, nil
}

// RestoreClient recreates an authorized client in the engine from a
// previously exported session string. Used at startup to repopulate
// the live set from persistent state.
func (d *EngineDialer) RestoreClient(ctx context.Context, credentials Credentials, session string) (Client, error) {
	clientID := uuid.NewString()
	err := d.call(ctx, engineRequest{
		Action:   "restore_client",
		ClientID: clientID,
		APIID:    credentials.APIID,
		APIHash:  credentials.APIHash,
		Session:  session,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: restoring engine client: %w", err)
	}
	d.logger.Debug("engine client restored", "client_id", clientID)
	return &engineClient{dialer: d, id: clientID}, nil
}

// engineRequest is the wire format for all engine calls. Fields not
// relevant to an action are omitted from the encoding.
type engineRequest struct {
	Action   string `cbor:"action"`
	ClientID string `cbor:"client_id,omitempty"`
	APIID    int    `cbor:"api_id,omitempty"`
	APIHash  string `cbor:"api_hash,omitempty"`
	Phone    string `cbor:"phone,omitempty"`
	Code     string `cbor:"code,omitempty"`
	Password string `cbor:"password,omitempty"`
	Prompt   string `cbor:"prompt,omitempty"`
	Text     string `cbor:"text,omitempty"`
	QRToken  string `cbor:"qr_token,omitempty"`
	Session  string `cbor:"session,omitempty"`
	Username string `cbor:"username,omitempty"`
}

// engineResponse is the wire format for all engine replies. On
// failure, Code carries a machine-readable error class that call maps
// onto this package's sentinel errors.
type engineResponse struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`
	Code  string `cbor:"code,omitempty"`

	// RetryAfterSeconds accompanies code "flood_wait".
	RetryAfterSeconds int64 `cbor:"retry_after,omitempty"`

	Data codec.RawMessage `cbor:"data,omitempty"`
}

// call performs one request-response cycle. When result is non-nil,
// the response's data field is decoded into it.
func (d *EngineDialer) call(ctx context.Context, request engineRequest, result any) error {
	dialer := net.Dialer{Timeout: d.dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", d.socketPath)
	if err != nil {
		return fmt.Errorf("dialing engine at %s: %w", d.socketPath, err)
	}
	defer conn.Close()

	// Long-blocking actions (qr_wait, confirm_authorization) are
	// bounded by the caller's context deadline, not a fixed I/O
	// timeout.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("writing %s request: %w", request.Action, err)
	}

	var response engineResponse
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("reading %s response: %w", request.Action, err)
	}

	if !response.OK {
		return mapEngineError(response)
	}

	if result != nil {
		if response.Data == nil {
			return fmt.Errorf("%s response missing data", request.Action)
		}
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %s response data: %w", request.Action, err)
		}
	}
	return nil
}

// mapEngineError translates an engine failure response into the error
// the web layer branches on.
func mapEngineError(response engineResponse) error {
	switch response.Code {
	case "flood_wait":
		return &FloodWaitError{RetryAfter: time.Duration(response.RetryAfterSeconds) * time.Second}
	case "password_needed":
		return ErrPasswordNeeded
	case "code_invalid":
		return ErrCodeInvalid
	case "code_expired":
		return ErrCodeExpired
	case "password_invalid":
		return ErrPasswordInvalid
	case "qr_expired":
		return ErrQRExpired
	}
	if response.Error == "" {
		return fmt.Errorf("engine error (code %q)", response.Code)
	}
	return fmt.Errorf("engine error: %s", response.Error)
}

// engineClient is the socket-backed Client implementation. It holds no
// state beyond its handle; all session state lives in the engine.
type engineClient struct {
	dialer *EngineDialer
	id     string
}

func (c *engineClient) SendCode(ctx context.Context, phone string) error {
	return c.dialer.call(ctx, engineRequest{
		Action:   "send_code",
		ClientID: c.id,
		Phone:    phone,
	}, nil)
}

func (c *engineClient) SignIn(ctx context.Context, phone, code string) error {
	return c.dialer.call(ctx, engineRequest{
		Action:   "sign_in",
		ClientID: c.id,
		Phone:    phone,
		Code:     code,
	}, nil)
}

func (c *engineClient) CheckPassword(ctx context.Context, password string) error {
	return c.dialer.call(ctx, engineRequest{
		Action:   "check_password",
		ClientID: c.id,
		Password: password,
	}, nil)
}

func (c *engineClient) BeginQR(ctx context.Context) (QRLogin, error) {
	var token qrToken
	err := c.dialer.call(ctx, engineRequest{
		Action:   "qr_init",
		ClientID: c.id,
	}, &token)
	if err != nil {
		return nil, err
	}
	return &engineQR{client: c, token: token}, nil
}

func (c *engineClient) Authorized(ctx context.Context) (bool, error) {
	var status struct {
		Authorized bool `cbor:"authorized"`
	}
	err := c.dialer.call(ctx, engineRequest{
		Action:   "authorized",
		ClientID: c.id,
	}, &status)
	if err != nil {
		return false, err
	}
	return status.Authorized, nil
}

func (c *engineClient) Account(ctx context.Context) (Account, error) {
	var account Account
	err := c.dialer.call(ctx, engineRequest{
		Action:   "account",
		ClientID: c.id,
	}, &account)
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (c *engineClient) ExportSession(ctx context.Context) (string, error) {
	var exported struct {
		Session string `cbor:"session"`
	}
	err := c.dialer.call(ctx, engineRequest{
		Action:   "export_session",
		ClientID: c.id,
	}, &exported)
	if err != nil {
		return "", err
	}
	return exported.Session, nil
}

func (c *engineClient) ConfirmAuthorization(ctx context.Context, prompt string) (bool, error) {
	var answer struct {
		Approved bool `cbor:"approved"`
	}
	err := c.dialer.call(ctx, engineRequest{
		Action:   "confirm_authorization",
		ClientID: c.id,
		Prompt:   prompt,
	}, &answer)
	if err != nil {
		return false, err
	}
	return answer.Approved, nil
}

func (c *engineClient) SendMessage(ctx context.Context, text string) error {
	return c.dialer.call(ctx, engineRequest{
		Action:   "send_message",
		ClientID: c.id,
		Text:     text,
	}, nil)
}

func (c *engineClient) UsernameOccupied(ctx context.Context, username string) (bool, error) {
	var result struct {
		Occupied bool `cbor:"occupied"`
	}
	err := c.dialer.call(ctx, engineRequest{
		Action:   "resolve_username",
		ClientID: c.id,
		Username: username,
	}, &result)
	if err != nil {
		return false, err
	}
	return result.Occupied, nil
}

func (c *engineClient) Close(ctx context.Context) error {
	return c.dialer.call(ctx, engineRequest{
		Action:   "close_client",
		ClientID: c.id,
	}, nil)
}

// qrToken is the engine's QR token payload.
type qrToken struct {
	// URL is the tg://login URL to render.
	URL string `cbor:"url"`

	// Token identifies this token instance inside the engine, so Wait
	// and Recreate act on the token the caller is holding rather than
	// whatever the engine created last.
	Token string `cbor:"token"`
}

// engineQR is the socket-backed QRLogin implementation.
type engineQR struct {
	client *engineClient
	token  qrToken
}

func (q *engineQR) URL() string {
	return q.token.URL
}

func (q *engineQR) Wait(ctx context.Context) error {
	return q.client.dialer.call(ctx, engineRequest{
		Action:   "qr_wait",
		ClientID: q.client.id,
		QRToken:  q.token.Token,
	}, nil)
}

func (q *engineQR) Recreate(ctx context.Context) (QRLogin, error) {
	var token qrToken
	err := q.client.dialer.call(ctx, engineRequest{
		Action:   "qr_recreate",
		ClientID: q.client.id,
		QRToken:  q.token.Token,
	}, &token)
	if err != nil {
		return nil, err
	}
	return &engineQR{client: q.client, token: token}, nil
}
