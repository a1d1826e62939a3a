// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/purser-foundation/purser/lib/clock"
	"github.com/purser-foundation/purser/lib/codec"
	"github.com/purser-foundation/purser/lib/sealed"
	"github.com/purser-foundation/purser/telegram"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             INTEGER PRIMARY KEY,
	username       TEXT NOT NULL,
	first_name     TEXT NOT NULL,
	phone          TEXT NOT NULL,
	session_sealed TEXT NOT NULL,
	added_at       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// settings keys.
const credentialsKey = "api_credentials"

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. Use ":memory:" in tests.
	Path string

	// Keypair seals secret material at rest. Required.
	Keypair *sealed.Keypair

	// Clock provides timestamps for account records. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger

	// PoolSize is the number of SQLite connections. If zero, defaults
	// to 4. Must be 1 for in-memory databases, where each connection
	// is independent.
	PoolSize int
}

// Store is the account store. Safe for concurrent use.
type Store struct {
	pool    *sqlitex.Pool
	keypair *sealed.Keypair
	clock   clock.Clock
	logger  *slog.Logger
	path    string
}

// AccountRecord is one persisted account. The session stays sealed
// until explicitly requested via Session.
type AccountRecord struct {
	Account       telegram.Account
	SealedSession string
	AddedAt       int64
}

// Open opens (creating if necessary) the store at cfg.Path and applies
// the schema. The caller must call Close when done.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Path is required")
	}
	if cfg.Keypair == nil {
		panic("store: Config.Keypair is required")
	}
	if cfg.Clock == nil {
		panic("store: Config.Clock is required")
	}
	if cfg.Logger == nil {
		panic("store: Config.Logger is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	store := &Store{
		pool:    pool,
		keypair: cfg.Keypair,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		path:    cfg.Path,
	}
	cfg.Logger.Info("account store opened", "path", cfg.Path)
	return store, nil
}

// prepareConnection applies standard pragmas and the schema. Runs once
// per pooled connection, on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("store: applying schema: %w", err)
	}
	return nil
}

// Close closes all connections. Blocks until borrowed connections are
// returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("store: closing %s: %w", s.path, err)
	}
	s.logger.Info("account store closed", "path", s.path)
	return nil
}

// SaveCredentials seals and stores the installation's API credentials,
// replacing any existing pair.
func (s *Store) SaveCredentials(ctx context.Context, credentials telegram.Credentials) error {
	plaintext, err := codec.Marshal(credentials)
	if err != nil {
		return fmt.Errorf("store: encoding credentials: %w", err)
	}
	ciphertext, err := sealed.Encrypt(plaintext, []string{s.keypair.PublicKey})
	if err != nil {
		return fmt.Errorf("store: sealing credentials: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: take: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{Args: []any{credentialsKey, ciphertext}})
	if err != nil {
		return fmt.Errorf("store: saving credentials: %w", err)
	}
	return nil
}

// Credentials loads and unseals the stored API credentials. The second
// return is false when none are stored.
func (s *Store) Credentials(ctx context.Context) (telegram.Credentials, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return telegram.Credentials{}, false, fmt.Errorf("store: take: %w", err)
	}
	defer s.pool.Put(conn)

	var ciphertext string
	found := false
	err = sqlitex.Execute(conn,
		`SELECT value FROM settings WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{credentialsKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ciphertext = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return telegram.Credentials{}, false, fmt.Errorf("store: loading credentials: %w", err)
	}
	if !found {
		return telegram.Credentials{}, false, nil
	}

	plaintext, err := sealed.Decrypt(ciphertext, s.keypair.PrivateKey)
	if err != nil {
		return telegram.Credentials{}, false, fmt.Errorf("store: unsealing credentials: %w", err)
	}
	var credentials telegram.Credentials
	if err := codec.Unmarshal(plaintext, &credentials); err != nil {
		return telegram.Credentials{}, false, fmt.Errorf("store: decoding credentials: %w", err)
	}
	return credentials, true, nil
}

// SaveAccount seals the exported session and upserts the account
// record. Re-saving an existing account replaces its session.
func (s *Store) SaveAccount(ctx context.Context, account telegram.Account, session string) error {
	ciphertext, err := sealed.Encrypt([]byte(session), []string{s.keypair.PublicKey})
	if err != nil {
		return fmt.Errorf("store: sealing session: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: take: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO accounts (id, username, first_name, phone, session_sealed, added_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			phone = excluded.phone,
			session_sealed = excluded.session_sealed`,
		&sqlitex.ExecOptions{Args: []any{
			account.ID,
			account.Username,
			account.FirstName,
			account.Phone,
			ciphertext,
			s.clock.Now().Unix(),
		}})
	if err != nil {
		return fmt.Errorf("store: saving account %d: %w", account.ID, err)
	}

	s.logger.Info("account saved", "account_id", account.ID, "username", account.Username)
	return nil
}

// Accounts lists all persisted accounts in insertion order. Sessions
// remain sealed.
func (s *Store) Accounts(ctx context.Context) ([]AccountRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: take: %w", err)
	}
	defer s.pool.Put(conn)

	var records []AccountRecord
	err = sqlitex.Execute(conn,
		`SELECT id, username, first_name, phone, session_sealed, added_at
		 FROM accounts ORDER BY added_at, id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				records = append(records, AccountRecord{
					Account: telegram.Account{
						ID:        stmt.ColumnInt64(0),
						Username:  stmt.ColumnText(1),
						FirstName: stmt.ColumnText(2),
						Phone:     stmt.ColumnText(3),
					},
					SealedSession: stmt.ColumnText(4),
					AddedAt:       stmt.ColumnInt64(5),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: listing accounts: %w", err)
	}
	return records, nil
}

// Session unseals the stored session for the given account ID.
func (s *Store) Session(ctx context.Context, accountID int64) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("store: take: %w", err)
	}
	defer s.pool.Put(conn)

	var ciphertext string
	found := false
	err = sqlitex.Execute(conn,
		`SELECT session_sealed FROM accounts WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{accountID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ciphertext = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("store: loading session for %d: %w", accountID, err)
	}
	if !found {
		return "", fmt.Errorf("store: no account with ID %d", accountID)
	}

	plaintext, err := sealed.Decrypt(ciphertext, s.keypair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("store: unsealing session for %d: %w", accountID, err)
	}
	return string(plaintext), nil
}

// SetSetting stores a non-secret setting value under key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: take: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{Args: []any{key, value}})
	if err != nil {
		return fmt.Errorf("store: saving setting %q: %w", key, err)
	}
	return nil
}

// Setting loads a setting value. The second return is false when the
// key is not set.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", false, fmt.Errorf("store: take: %w", err)
	}
	defer s.pool.Put(conn)

	var value string
	found := false
	err = sqlitex.Execute(conn,
		`SELECT value FROM settings WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return "", false, fmt.Errorf("store: loading setting %q: %w", key, err)
	}
	return value, found, nil
}

// AccountCount returns the number of persisted accounts.
func (s *Store) AccountCount(ctx context.Context) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: take: %w", err)
	}
	defer s.pool.Put(conn)

	count := 0
	err = sqlitex.Execute(conn,
		`SELECT COUNT(*) FROM accounts`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("store: counting accounts: %w", err)
	}
	return count, nil
}
