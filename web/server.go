// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/purser-foundation/purser/dispatch"
	"github.com/purser-foundation/purser/lib/clock"
	"github.com/purser-foundation/purser/store"
	"github.com/purser-foundation/purser/telegram"
)

// Rate limiting for the authorization gate: at most rateLimit
// requests per source address within rateWindow.
const (
	rateLimit  = 3
	rateWindow = 3 * time.Minute
)

// Config configures the onboarding server.
type Config struct {
	// Address is the TCP listen address. Required.
	Address string

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Clock drives rate-limit windows and the authorization wait.
	// Required.
	Clock clock.Clock

	// Dialer creates Telegram clients for login attempts. Required.
	Dialer telegram.Dialer

	// Store persists credentials and authorized accounts. Required.
	Store *store.Store

	// Dispatcher is the live account set. Required.
	Dispatcher *dispatch.Dispatcher

	// Locator enriches authorization prompts with location hints.
	// Optional.
	Locator Locator

	// Credentials preconfigures the API credential pair. Optional;
	// when unset, the operator supplies one through the set-credentials
	// endpoint.
	Credentials telegram.Credentials

	// SingleAccount restricts the installation to one authorized
	// account (hosting-provider policy).
	SingleAccount bool

	// AuthTimeout bounds the authorization gate's approval wait.
	// Defaults to 3 minutes.
	AuthTimeout time.Duration

	// QRPollTimeout is the per-attempt wait before a QR token is
	// regenerated. Defaults to 10 seconds.
	QRPollTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight
	// requests during graceful shutdown. Defaults to 10 seconds.
	ShutdownTimeout time.Duration
}

// Server is the onboarding HTTP server. Create with New, start with
// Serve.
type Server struct {
	logger        *slog.Logger
	clock         clock.Clock
	dialer        telegram.Dialer
	store         *store.Store
	live          *dispatch.Dispatcher
	sessions      *SessionRegistry
	gate          *AuthGate
	singleAccount bool
	qrPollTimeout time.Duration

	slot pendingSlot

	// credentials is the active API credential pair. credentialsReady
	// is closed when a valid pair becomes available, unblocking
	// whoever waits for setup to finish.
	credentialsMu    sync.Mutex
	credentials      telegram.Credentials
	credentialsReady chan struct{}
	credentialsOnce  sync.Once

	// runCtx is the context Serve was started with. Background QR
	// polling inherits it so shutdown cancels the poll goroutine.
	runCtx context.Context

	address         string
	shutdownTimeout time.Duration
	ready           chan struct{}
	addr            net.Addr
}

// New creates a server from config. Panics on missing required fields:
// the config comes from validated wiring, not user input.
func New(cfg Config) *Server {
	if cfg.Address == "" {
		panic("web: Config.Address is required")
	}
	if cfg.Logger == nil {
		panic("web: Config.Logger is required")
	}
	if cfg.Clock == nil {
		panic("web: Config.Clock is required")
	}
	if cfg.Dialer == nil {
		panic("web: Config.Dialer is required")
	}
	if cfg.Store == nil {
		panic("web: Config.Store is required")
	}
	if cfg.Dispatcher == nil {
		panic("web: Config.Dispatcher is required")
	}

	qrPollTimeout := cfg.QRPollTimeout
	if qrPollTimeout == 0 {
		qrPollTimeout = 10 * time.Second
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	sessions := NewSessionRegistry(cfg.Dispatcher)
	limiter := NewRateLimiter(cfg.Clock, rateLimit, rateWindow)
	gate := NewAuthGate(AuthGateConfig{
		Sessions: sessions,
		Limiter:  limiter,
		Live:     cfg.Dispatcher,
		Locator:  cfg.Locator,
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
		Timeout:  cfg.AuthTimeout,
	})

	server := &Server{
		logger:           cfg.Logger,
		clock:            cfg.Clock,
		dialer:           cfg.Dialer,
		store:            cfg.Store,
		live:             cfg.Dispatcher,
		sessions:         sessions,
		gate:             gate,
		singleAccount:    cfg.SingleAccount,
		qrPollTimeout:    qrPollTimeout,
		runCtx:           context.Background(),
		address:          cfg.Address,
		shutdownTimeout:  shutdownTimeout,
		ready:            make(chan struct{}),
		credentialsReady: make(chan struct{}),
	}
	if cfg.Credentials.Valid() {
		server.setCredentials(cfg.Credentials)
	}
	return server
}

// setCredentials installs the API credential pair and signals waiters.
func (s *Server) setCredentials(credentials telegram.Credentials) {
	s.credentialsMu.Lock()
	s.credentials = credentials
	s.credentialsMu.Unlock()
	s.credentialsOnce.Do(func() { close(s.credentialsReady) })
}

// apiCredentials returns the active credential pair. The second return
// is false while none is configured.
func (s *Server) apiCredentials() (telegram.Credentials, bool) {
	s.credentialsMu.Lock()
	defer s.credentialsMu.Unlock()
	return s.credentials, s.credentials.Valid()
}

// CredentialsReady returns a channel that is closed once a valid API
// credential pair is available.
func (s *Server) CredentialsReady() <-chan struct{} {
	return s.credentialsReady
}

// Ready returns a channel that is closed once the server is bound and
// accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address. Only valid after Ready()
// is closed; useful when the configured address uses port 0.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Handler returns the server's HTTP handler. Exposed for tests that
// drive the mux without a listener.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("PUT /set_api", s.handleSetAPI)
	mux.HandleFunc("POST /send_tg_code", s.handleSendCode)
	mux.HandleFunc("POST /check_session", s.handleCheckSession)
	mux.HandleFunc("POST /web_auth", s.handleWebAuth)
	mux.HandleFunc("POST /tg_code", s.handleTgCode)
	mux.HandleFunc("POST /finish_login", s.handleFinishLogin)
	mux.HandleFunc("POST /custom_bot", s.handleCustomBot)
	mux.HandleFunc("POST /init_qr_login", s.handleInitQR)
	mux.HandleFunc("POST /get_qr_url", s.handleGetQRURL)
	mux.HandleFunc("POST /qr_2fa", s.handleQRTwoFactor)
	mux.HandleFunc("POST /can_add", s.handleCanAdd)
	return mux
}

// Serve starts accepting HTTP connections. Blocks until ctx is
// cancelled, then performs graceful shutdown: stops accepting new
// connections and waits up to ShutdownTimeout for active requests to
// complete.
func (s *Server) Serve(ctx context.Context) error {
	s.runCtx = ctx

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("web: listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	httpServer := &http.Server{
		Handler: s.routes(),

		// The authorization gate holds /web_auth open for up to the
		// approval wait, so write timeouts must exceed it.
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("onboarding server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("onboarding server shutting down")
	case err := <-serveDone:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("onboarding server shutdown error", "error", err)
		return fmt.Errorf("web: server shutdown: %w", err)
	}

	s.logger.Info("onboarding server stopped")
	return nil
}
