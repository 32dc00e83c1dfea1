// Package sqlitestore is a storage.Store backed by a SQLite database. Several
// processes may open the same file; each write of the session record runs in a
// single IMMEDIATE transaction so readers see either the old or the new record.
package sqlitestore

import (
	"context"
	"fmt"

	"github.com/jrsteele09/erp-session/storage"
	"github.com/rs/zerolog"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var _ storage.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS session_record (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const (
	selectQuery = `SELECT value FROM session_record WHERE key = ?`
	upsertQuery = `INSERT INTO session_record (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	deleteQuery = `DELETE FROM session_record WHERE key = ?`
)

// Config holds the parameters for opening a Store. Path is required.
type Config struct {
	// Path is the database file. Use ":memory:" only with PoolSize 1.
	Path string

	// PoolSize defaults to 2.
	PoolSize int

	Logger zerolog.Logger
}

// Store is safe for concurrent use.
type Store struct {
	pool   *sqlitex.Pool
	logger zerolog.Logger
	path   string
}

// Open creates the database if needed and prepares every connection with
// WAL journaling and a busy timeout.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("[sqlitestore] Path is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("[sqlitestore] opening %s: %w", cfg.Path, err)
	}

	cfg.Logger.Debug().Str("path", cfg.Path).Int("pool_size", poolSize).Msg("session store opened")

	return &Store{
		pool:   pool,
		logger: cfg.Logger,
		path:   cfg.Path,
	}, nil
}

// Close closes every connection. Blocks until borrowed connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("session store close failed")
		return fmt.Errorf("[sqlitestore] closing %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", false, err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", false, fmt.Errorf("[sqlitestore] take: %w", err)
	}
	defer s.pool.Put(conn)

	var (
		value string
		found bool
	)
	err = sqlitex.Execute(conn, selectQuery, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("[sqlitestore] get %s: %w", key, err)
	}
	return value, found, nil
}

func (s *Store) SetAll(ctx context.Context, entries map[string]string) (err error) {
	for k := range entries {
		if err := storage.ValidateKey(k); err != nil {
			return err
		}
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("[sqlitestore] take: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("[sqlitestore] begin: %w", err)
	}
	defer endTransaction(&err)

	for k, v := range entries {
		if err = sqlitex.Execute(conn, upsertQuery, &sqlitex.ExecOptions{Args: []any{k, v}}); err != nil {
			return fmt.Errorf("[sqlitestore] set %s: %w", k, err)
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("[sqlitestore] take: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("[sqlitestore] begin: %w", err)
	}
	defer endTransaction(&err)

	for _, k := range keys {
		if err = sqlitex.Execute(conn, deleteQuery, &sqlitex.ExecOptions{Args: []any{k}}); err != nil {
			return fmt.Errorf("[sqlitestore] delete %s: %w", k, err)
		}
	}
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("[sqlitestore] %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("[sqlitestore] schema: %w", err)
	}
	return nil
}
