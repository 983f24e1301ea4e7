// Package db implements the repository contract against the embedded
// relational store. SQLite is the default engine; a PostgreSQL dialect
// is available through the same driver abstraction for deployments
// that already run a server. Vector search is not supported here and
// fails with CAPABILITY_UNSUPPORTED.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/taskvault/taskvault/internal/db/driver"
	"github.com/taskvault/taskvault/internal/store"
)

//go:embed schema/sqlite/*.sql schema/postgres/*.sql
var schemaFS embed.FS

// Store wraps a database connection with driver abstraction.
type Store struct {
	driver driver.Driver
	path   string
}

// Open opens a SQLite database at the given path.
// Creates the parent directory if it doesn't exist.
func Open(path string) (*Store, error) {
	return OpenWithDialect(path, driver.DialectSQLite)
}

// OpenInMemory opens an in-memory SQLite database. Each call creates a
// new isolated database; ideal for tests.
func OpenInMemory() (*Store, error) {
	drv := driver.NewSQLite()
	if err := drv.Open(":memory:"); err != nil {
		return nil, err
	}

	s := &Store{driver: drv, path: ":memory:"}
	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// OpenWithDialect opens a database with a specific dialect and applies
// pending schema migrations. For SQLite, dsn is the file path; for
// PostgreSQL, dsn is the connection string.
func OpenWithDialect(dsn string, dialect driver.Dialect) (*Store, error) {
	if dialect == driver.DialectSQLite {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}

	if err := drv.Open(dsn); err != nil {
		return nil, err
	}

	s := &Store{driver: drv, path: dsn}
	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.driver.Close()
}

// Path returns the database DSN/path.
func (s *Store) Path() string {
	return s.path
}

// Dialect returns the database dialect.
func (s *Store) Dialect() driver.Dialect {
	return s.driver.Dialect()
}

// DB returns the underlying sql.DB for advanced operations.
func (s *Store) DB() *sql.DB {
	return s.driver.DB()
}

// Migrate applies pending schema migrations for the active dialect.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx, schemaFS, "schema/"+string(s.Dialect()))
}

// rebind converts ? placeholders to the dialect's form. Queries in this
// package are written SQLite-first.
func (s *Store) rebind(query string) string {
	if s.Dialect() != driver.DialectPostgres {
		return query
	}
	return rebindPostgres(query)
}

func rebindPostgres(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Exec executes a query without returning rows.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.driver.Exec(ctx, s.rebind(query), args...)
}

// Query executes a query that returns rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.driver.Query(ctx, s.rebind(query), args...)
}

// QueryRow executes a query that returns at most one row.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.driver.QueryRow(ctx, s.rebind(query), args...)
}

// TxOps provides database operations within a transaction. The context
// captured at BeginTx is used for all operations, so cancellation
// propagates through the whole transaction.
type TxOps struct {
	tx  driver.Tx
	s   *Store
	ctx context.Context
}

// Exec executes a query within the transaction.
func (t *TxOps) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(t.ctx, t.s.rebind(query), args...)
}

// Query executes a query that returns rows within the transaction.
func (t *TxOps) Query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.Query(t.ctx, t.s.rebind(query), args...)
}

// QueryRow executes a query that returns at most one row within the transaction.
func (t *TxOps) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRow(t.ctx, t.s.rebind(query), args...)
}

// RunInTx executes fn within a database transaction. If fn returns an
// error the transaction is rolled back, otherwise it is committed.
// Multi-row writes (task update + history append) go through here so a
// failure leaves no partial trail.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *TxOps) error) error {
	tx, err := s.driver.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&TxOps{tx: tx, s: s, ctx: ctx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Repositories returns the repository bundle served by this store.
func (s *Store) Repositories() store.Repositories {
	return &localRepos{s: s}
}

// localRepos bundles the relational repositories.
type localRepos struct {
	s *Store
}

func (r *localRepos) Tasks() store.TaskRepository              { return &TaskRepo{s: r.s} }
func (r *localRepos) TaskHistory() store.TaskHistoryRepository { return &TaskHistoryRepo{s: r.s} }
func (r *localRepos) Memories() store.MemoryRepository         { return &MemoryRepo{s: r.s} }
func (r *localRepos) Backend() store.Backend                   { return store.BackendLocal }
func (r *localRepos) SupportsVectorSearch() bool               { return false }

// Close is a no-op for the bundle: the underlying store is shared
// process-wide and closed by its owner at shutdown.
func (r *localRepos) Close() error { return nil }
