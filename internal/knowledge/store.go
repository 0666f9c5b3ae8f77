// Package knowledge implements the persistent knowledge engine for Kaizen.
//
// Namespaces own scopes, scopes form an inheritance DAG, and knowledge
// entries are bound to exactly one scope. Everything lives in SQLite with an
// FTS5 index over knowledge content and context. Every mutation runs in a
// single immediate transaction so invariant checks and writes commit or roll
// back together.
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds knowledge store configuration. The search values only seed
// the settings table on first start; afterwards the stored settings win.
type Config struct {
	DataDir          string
	MaxSearchResults int
	ContentWeight    float64
	ContextWeight    float64
}

// DefaultConfig returns the default configuration for the knowledge store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".kaizen"),
		MaxSearchResults: 50,
		ContentWeight:    1.0,
		ContextWeight:    0.5,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent knowledge engine backed by SQLite + FTS5.
type Store struct {
	db    *sql.DB // writes: every transaction is BEGIN IMMEDIATE
	rdb   *sql.DB // reads: deferred transactions, query_only
	cfg   Config
	log   *zap.Logger
	hooks storeHooks
}

// storeHooks lets tests fail a transaction at the boundaries.
type storeHooks struct {
	beginTx func(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		beginTx: func(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
			return db.BeginTx(ctx, nil)
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

func (s *Store) beginTxHook(ctx context.Context) (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(ctx, s.db)
	}
	return s.db.BeginTx(ctx, nil)
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New creates a new Store with the given configuration.
// It creates the data directory if needed, opens SQLite with WAL mode,
// runs migrations and seeds the global namespace. Writes go through a pool
// whose transactions take the write lock up front; reads use a second pool
// of deferred, query-only transactions so they never wait on a writer.
// A nil logger disables logging.
func New(cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("knowledge: create data dir: %w", err)
	}

	path := filepath.Join(cfg.DataDir, "knowledge.db")
	db, err := openDB("sqlite", dsn(path, true))
	if err != nil {
		return nil, fmt.Errorf("knowledge: open database: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, hooks: defaultStoreHooks()}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("knowledge: migration: %w", err)
	}

	// The reader opens after migration so the file is already in WAL mode.
	s.rdb, err = openDB("sqlite", dsn(path, false))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("knowledge: open read database: %w", err)
	}

	log.Debug("knowledge store opened", zap.String("data_dir", cfg.DataDir))
	return s, nil
}

// dsn builds the connection string. Pragmas go in the DSN so every pooled
// connection gets them. For the writer, _txlock=immediate makes each
// transaction take the write lock up front: a cycle check and the edge write
// it guards can never interleave with another writer. The reader keeps
// SQLite's deferred BEGIN, which under WAL reads a snapshot without locking
// out writers.
func dsn(path string, writer bool) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	if writer {
		q.Set("_txlock", "immediate")
	} else {
		q.Add("_pragma", "query_only(1)")
	}
	return "file:" + path + "?" + q.Encode()
}

// Close closes both database pools.
func (s *Store) Close() error {
	return errors.Join(s.rdb.Close(), s.db.Close())
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside one transaction and commits only if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := s.commitHook(tx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// withRead runs fn inside one read transaction that is always rolled back,
// so a multi-statement read sees a single snapshot.
func (s *Store) withRead(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.rdb.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	return fn(tx)
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS namespaces (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT    NOT NULL UNIQUE,
			description TEXT    NOT NULL,
			created_at  TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
			updated_at  TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
		);

		CREATE TABLE IF NOT EXISTS scopes (
			id           TEXT    PRIMARY KEY,
			namespace_id INTEGER NOT NULL,
			name         TEXT    NOT NULL,
			description  TEXT    NOT NULL,
			created_at   TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
			updated_at   TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
			UNIQUE (namespace_id, name),
			FOREIGN KEY (namespace_id) REFERENCES namespaces(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS scope_parents (
			child_id  TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			PRIMARY KEY (child_id, parent_id),
			FOREIGN KEY (child_id)  REFERENCES scopes(id) ON DELETE CASCADE,
			FOREIGN KEY (parent_id) REFERENCES scopes(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_scope_parents_parent ON scope_parents(parent_id);

		CREATE TABLE IF NOT EXISTS knowledge (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT    NOT NULL UNIQUE,
			scope_id      TEXT    NOT NULL,
			content       TEXT    NOT NULL,
			context       TEXT    NOT NULL,
			task_size     TEXT    CHECK (task_size IN ('XS', 'S', 'M', 'L', 'XL')),
			suppressed_by TEXT,
			created_at    TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
			updated_at    TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
			FOREIGN KEY (scope_id)      REFERENCES scopes(id)    ON DELETE CASCADE,
			FOREIGN KEY (suppressed_by) REFERENCES knowledge(id) ON DELETE SET NULL
		);

		CREATE INDEX IF NOT EXISTS idx_knowledge_scope      ON knowledge(scope_id);
		CREATE INDEX IF NOT EXISTS idx_knowledge_suppressed ON knowledge(suppressed_by);

		CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
			content,
			context,
			content='knowledge',
			content_rowid='seq',
			tokenize='porter unicode61'
		);

		CREATE TRIGGER IF NOT EXISTS knowledge_fts_insert AFTER INSERT ON knowledge BEGIN
			INSERT INTO knowledge_fts(rowid, content, context)
			VALUES (new.seq, new.content, new.context);
		END;

		CREATE TRIGGER IF NOT EXISTS knowledge_fts_delete AFTER DELETE ON knowledge BEGIN
			INSERT INTO knowledge_fts(knowledge_fts, rowid, content, context)
			VALUES ('delete', old.seq, old.content, old.context);
		END;

		CREATE TRIGGER IF NOT EXISTS knowledge_fts_update AFTER UPDATE OF content, context ON knowledge BEGIN
			INSERT INTO knowledge_fts(knowledge_fts, rowid, content, context)
			VALUES ('delete', old.seq, old.content, old.context);
			INSERT INTO knowledge_fts(rowid, content, context)
			VALUES (new.seq, new.content, new.context);
		END;

		CREATE TABLE IF NOT EXISTS settings (
			key           TEXT PRIMARY KEY,
			value         TEXT NOT NULL,
			default_value TEXT NOT NULL,
			value_type    TEXT NOT NULL,
			description   TEXT NOT NULL,
			updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.seedSettings(ctx, tx); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
		if _, err := s.createNamespaceTx(ctx, tx, globalNamespace, globalDescription); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("seed global namespace: %w", err)
		}
		return nil
	})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
