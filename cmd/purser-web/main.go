// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

// purser-web is the onboarding and session-authorization server. It
// serves the browser-facing login endpoints, talks to the
// purser-engine process for Telegram operations, and promotes
// authorized accounts into the dispatcher.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/purser-foundation/purser/dispatch"
	"github.com/purser-foundation/purser/lib/clock"
	"github.com/purser-foundation/purser/lib/config"
	"github.com/purser-foundation/purser/store"
	"github.com/purser-foundation/purser/telegram"
	"github.com/purser-foundation/purser/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		debug      bool
	)
	pflag.StringVar(&configPath, "config", "", "path to purser.yaml (default: $PURSER_CONFIG)")
	pflag.BoolVar(&debug, "debug", false, "enable debug logging")
	pflag.Parse()

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	keypair, err := store.LoadOrCreateKeypair(filepath.Join(cfg.Paths.State, "seal.key"))
	if err != nil {
		return err
	}

	accountStore, err := store.Open(store.Config{
		Path:    filepath.Join(cfg.Paths.State, "purser.db"),
		Keypair: keypair,
		Clock:   clk,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer accountStore.Close()

	dispatcher := dispatch.New(dispatch.Config{Logger: logger})

	dialer := telegram.NewEngineDialer(
		cfg.Engine.SocketPath,
		config.Duration(cfg.Engine.DialTimeout, 5*time.Second),
		logger,
	)

	credentials, credentialsFound, err := accountStore.Credentials(ctx)
	if err != nil {
		return err
	}
	if credentialsFound {
		restoreAccounts(ctx, logger, accountStore, dialer, dispatcher, credentials)
	}

	server := web.New(web.Config{
		Address:         cfg.Web.ListenAddress,
		Logger:          logger,
		Clock:           clk,
		Dialer:          dialer,
		Store:           accountStore,
		Dispatcher:      dispatcher,
		Locator:         web.NewHTTPLocator(cfg.Geolocation.Endpoint, config.Duration(cfg.Geolocation.Timeout, 5*time.Second)),
		Credentials:     credentials,
		SingleAccount:   cfg.Hosting.SingleAccount,
		ShutdownTimeout: config.Duration(cfg.Web.ShutdownTimeout, 10*time.Second),
	})

	logger.Info("purser-web starting",
		"address", cfg.Web.ListenAddress,
		"accounts", dispatcher.Len(),
		"environment", string(cfg.Environment),
	)
	if !credentialsFound || dispatcher.Len() == 0 {
		logger.Info("setup incomplete, finish onboarding in the browser",
			"address", cfg.Web.ListenAddress,
		)
	}
	go announceReadiness(ctx, logger, server, dispatcher)

	return server.Serve(ctx)
}

// announceReadiness logs the two setup milestones as they are reached:
// a usable API credential pair, then the first authorized account. A
// fresh install sits at "setup incomplete" until the operator finishes
// the browser flow.
func announceReadiness(
	ctx context.Context,
	logger *slog.Logger,
	server *web.Server,
	dispatcher *dispatch.Dispatcher,
) {
	select {
	case <-ctx.Done():
		return
	case <-server.CredentialsReady():
	}
	logger.Info("api credentials available")

	if err := dispatcher.WaitForClients(ctx); err != nil {
		return
	}
	logger.Info("account set ready", "accounts", dispatcher.Len())
}

// restoreAccounts reconnects persisted accounts through the engine.
// Failures are logged and skipped: a dead session should not keep the
// onboarding surface from coming up, and the operator can re-login.
func restoreAccounts(
	ctx context.Context,
	logger *slog.Logger,
	accountStore *store.Store,
	dialer *telegram.EngineDialer,
	dispatcher *dispatch.Dispatcher,
	credentials telegram.Credentials,
) {
	records, err := accountStore.Accounts(ctx)
	if err != nil {
		logger.Error("listing stored accounts failed", "error", err)
		return
	}

	for _, record := range records {
		session, err := accountStore.Session(ctx, record.Account.ID)
		if err != nil {
			logger.Error("unsealing stored session failed",
				"account_id", record.Account.ID,
				"error", err,
			)
			continue
		}

		client, err := dialer.RestoreClient(ctx, credentials, session)
		if err != nil {
			logger.Error("restoring account failed",
				"account_id", record.Account.ID,
				"error", err,
			)
			continue
		}

		authorized, err := client.Authorized(ctx)
		if err != nil || !authorized {
			logger.Warn("stored session no longer authorized",
				"account_id", record.Account.ID,
				"error", err,
			)
			client.Close(ctx)
			continue
		}

		dispatcher.Add(client, record.Account)
	}
}
