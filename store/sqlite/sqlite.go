/*
Package sqlite provides the SQLite-backed ledger store.

PURPOSE:
  Opens a SQLite database with the pragmas the ledger relies on and plugs
  the SQLite dialect into sqlstore. This is the default backend for the
  server and the CLI.

CONCURRENCY:
  No in-process locks. Write serialization comes from the database:
  - _txlock=immediate takes the write lock at BEGIN, so two writers never
    interleave their read-back and insert
  - one open connection per process, so statements never wait on each other
  - busy_timeout absorbs contention from other processes (CLI vs server);
    a remaining SQLITE_BUSY is reported as a version conflict and retried

WAL MODE:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - store/sqlstore: shared SQL
  - ledger/store: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/inventory-ledger/store/sqlstore"
)

//go:embed schema.sql
var schemaSQL string

const dsnParams = "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"

// Store implements ledger.Store using SQLite.
type Store struct {
	*sqlstore.Store
}

// New opens the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?"+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection also keeps a ":memory:" database alive for the
	// life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := sqlstore.New(db, Dialect{})
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{Store: store}, nil
}

// Dialect is the SQLite flavour of sqlstore.Dialect.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Schema() []string { return sqlstore.SplitStatements(schemaSQL) }

func (Dialect) IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func (Dialect) IsBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
