// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/purser-foundation/purser/lib/codec"
	"github.com/purser-foundation/purser/lib/testutil"
)

// fakeEngine serves the engine socket protocol with a scripted handler
// per action.
type fakeEngine struct {
	listener net.Listener
	handlers map[string]func(engineRequest) engineResponse
}

func startFakeEngine(t *testing.T, handlers map[string]func(engineRequest) engineResponse) (*fakeEngine, string) {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "engine.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listening on %s: %v", socketPath, err)
	}
	engine := &fakeEngine{listener: listener, handlers: handlers}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go engine.handleConnection(conn)
		}
	}()
	return engine, socketPath
}

func (e *fakeEngine) handleConnection(conn net.Conn) {
	defer conn.Close()

	var request engineRequest
	if err := codec.NewDecoder(io.LimitReader(conn, 1<<20)).Decode(&request); err != nil {
		return
	}

	handler, ok := e.handlers[request.Action]
	if !ok {
		codec.NewEncoder(conn).Encode(engineResponse{OK: false, Error: "unknown action " + request.Action})
		return
	}
	codec.NewEncoder(conn).Encode(handler(request))
}

func okWithData(t *testing.T, data any) engineResponse {
	t.Helper()
	encoded, err := codec.Marshal(data)
	if err != nil {
		t.Fatalf("marshaling fake response data: %v", err)
	}
	return engineResponse{OK: true, Data: encoded}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestEngineClientLoginFlow(t *testing.T) {
	var created engineRequest
	var signIn engineRequest

	_, socketPath := startFakeEngine(t, map[string]func(engineRequest) engineResponse{
		"create_client": func(request engineRequest) engineResponse {
			created = request
			return engineResponse{OK: true}
		},
		"send_code": func(request engineRequest) engineResponse {
			if request.ClientID != created.ClientID {
				return engineResponse{OK: false, Error: "unknown client"}
			}
			return engineResponse{OK: true}
		},
		"sign_in": func(request engineRequest) engineResponse {
			signIn = request
			return engineResponse{OK: false, Code: "password_needed"}
		},
		"check_password": func(request engineRequest) engineResponse {
			if request.Password != "hunter2" {
				return engineResponse{OK: false, Code: "password_invalid"}
			}
			return engineResponse{OK: true}
		},
	})

	dialer := NewEngineDialer(socketPath, time.Second, testLogger())
	ctx := context.Background()

	client, err := dialer.NewClient(ctx, Credentials{APIID: 1234, APIHash: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if created.APIID != 1234 {
		t.Errorf("create_client api_id = %d, want 1234", created.APIID)
	}
	if created.ClientID == "" {
		t.Error("create_client had empty client_id")
	}

	if err := client.SendCode(ctx, "15551234567"); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	err = client.SignIn(ctx, "15551234567", "12345")
	if !errors.Is(err, ErrPasswordNeeded) {
		t.Fatalf("SignIn error = %v, want ErrPasswordNeeded", err)
	}
	if signIn.Code != "12345" || signIn.Phone != "15551234567" {
		t.Errorf("sign_in request = %+v", signIn)
	}

	err = client.CheckPassword(ctx, "wrong")
	if !errors.Is(err, ErrPasswordInvalid) {
		t.Fatalf("CheckPassword(wrong) error = %v, want ErrPasswordInvalid", err)
	}
	if err := client.CheckPassword(ctx, "hunter2"); err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
}

func TestEngineClientFloodWait(t *testing.T) {
	_, socketPath := startFakeEngine(t, map[string]func(engineRequest) engineResponse{
		"create_client": func(engineRequest) engineResponse { return engineResponse{OK: true} },
		"send_code": func(engineRequest) engineResponse {
			return engineResponse{OK: false, Code: "flood_wait", RetryAfterSeconds: 42}
		},
	})

	dialer := NewEngineDialer(socketPath, time.Second, testLogger())
	ctx := context.Background()
	client, err := dialer.NewClient(ctx, Credentials{APIID: 1, APIHash: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	err = client.SendCode(ctx, "15551234567")
	floodWait := AsFloodWait(err)
	if floodWait == nil {
		t.Fatalf("SendCode error = %v, want FloodWaitError", err)
	}
	if floodWait.RetryAfter != 42*time.Second {
		t.Errorf("RetryAfter = %v, want 42s", floodWait.RetryAfter)
	}
}

func TestEngineClientQRFlow(t *testing.T) {
	waits := 0
	_, socketPath := startFakeEngine(t, map[string]func(engineRequest) engineResponse{
		"create_client": func(engineRequest) engineResponse { return engineResponse{OK: true} },
		"qr_init": func(request engineRequest) engineResponse {
			return engineResponse{OK: true, Data: mustMarshal(qrToken{URL: "tg://login?token=first", Token: "t1"})}
		},
		"qr_wait": func(request engineRequest) engineResponse {
			waits++
			if request.QRToken == "t1" {
				return engineResponse{OK: false, Code: "qr_expired"}
			}
			return engineResponse{OK: true}
		},
		"qr_recreate": func(request engineRequest) engineResponse {
			if request.QRToken != "t1" {
				return engineResponse{OK: false, Error: "recreate of unknown token"}
			}
			return engineResponse{OK: true, Data: mustMarshal(qrToken{URL: "tg://login?token=second", Token: "t2"})}
		},
	})

	dialer := NewEngineDialer(socketPath, time.Second, testLogger())
	ctx := context.Background()
	client, err := dialer.NewClient(ctx, Credentials{APIID: 1, APIHash: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	qr, err := client.BeginQR(ctx)
	if err != nil {
		t.Fatalf("BeginQR failed: %v", err)
	}
	if qr.URL() != "tg://login?token=first" {
		t.Errorf("URL = %q", qr.URL())
	}

	if err := qr.Wait(ctx); !errors.Is(err, ErrQRExpired) {
		t.Fatalf("Wait error = %v, want ErrQRExpired", err)
	}

	fresh, err := qr.Recreate(ctx)
	if err != nil {
		t.Fatalf("Recreate failed: %v", err)
	}
	if fresh.URL() != "tg://login?token=second" {
		t.Errorf("recreated URL = %q", fresh.URL())
	}
	if err := fresh.Wait(ctx); err != nil {
		t.Fatalf("Wait on fresh token failed: %v", err)
	}
	if waits != 2 {
		t.Errorf("qr_wait called %d times, want 2", waits)
	}
}

func TestEngineClientUsernameLookup(t *testing.T) {
	_, socketPath := startFakeEngine(t, map[string]func(engineRequest) engineResponse{
		"create_client": func(engineRequest) engineResponse { return engineResponse{OK: true} },
		"resolve_username": func(request engineRequest) engineResponse {
			type resolution struct {
				Occupied bool `cbor:"occupied"`
			}
			return engineResponse{OK: true, Data: mustMarshal(resolution{
				Occupied: request.Username == "taken_bot",
			})}
		},
	})

	dialer := NewEngineDialer(socketPath, time.Second, testLogger())
	ctx := context.Background()
	client, err := dialer.NewClient(ctx, Credentials{APIID: 1, APIHash: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	occupied, err := client.UsernameOccupied(ctx, "taken_bot")
	if err != nil {
		t.Fatalf("UsernameOccupied failed: %v", err)
	}
	if !occupied {
		t.Error("taken_bot reported available")
	}

	occupied, err = client.UsernameOccupied(ctx, "free_bot")
	if err != nil {
		t.Fatalf("UsernameOccupied failed: %v", err)
	}
	if occupied {
		t.Error("free_bot reported occupied")
	}
}

func TestEngineClientContextCancellation(t *testing.T) {
	// qr_wait blocks in the engine; a cancelled context must unblock
	// the caller.
	block := make(chan struct{})
	defer close(block)

	socketPath := filepath.Join(testutil.SocketDir(t), "engine.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				var request engineRequest
				if err := codec.NewDecoder(conn).Decode(&request); err != nil {
					return
				}
				if request.Action == "create_client" {
					codec.NewEncoder(conn).Encode(engineResponse{OK: true})
					return
				}
				<-block
			}(conn)
		}
	}()

	dialer := NewEngineDialer(socketPath, time.Second, testLogger())
	client, err := dialer.NewClient(context.Background(), Credentials{APIID: 1, APIHash: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- client.SendCode(ctx, "15551234567")
	}()

	err = testutil.RequireReceive(t, done, 5*time.Second, "waiting for cancelled call to return")
	if err == nil {
		t.Fatal("cancelled call succeeded, want error")
	}
}

func mustMarshal(v any) codec.RawMessage {
	encoded, err := codec.Marshal(v)
	if err != nil {
		panic(err)
	}
	return encoded
}
