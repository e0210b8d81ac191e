// Package mysql provides the MySQL-backed ledger store.
//
// Row locks taken by the guarded UPDATE serialize writers on the same
// variant. Deadlocks and lock wait timeouts are reported as version
// conflicts so the mutator retries them.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/warp/inventory-ledger/store/sqlstore"
)

//go:embed schema.sql
var schemaSQL string

// MySQL server error numbers.
const (
	errDuplicateEntry  = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// Store implements ledger.Store using MySQL.
type Store struct {
	*sqlstore.Store
}

// New connects with the given DSN
// (e.g. "root:root@tcp(localhost:3306)/inventory") and migrates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.Loc = time.UTC

	connector, err := driver.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	store := sqlstore.New(db, Dialect{})
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{Store: store}, nil
}

// Dialect is the MySQL flavour of sqlstore.Dialect.
type Dialect struct{}

func (Dialect) Name() string { return "mysql" }

func (Dialect) Schema() []string { return sqlstore.SplitStatements(schemaSQL) }

func (Dialect) IsUniqueViolation(err error) bool {
	var me *driver.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

func (Dialect) IsBusy(err error) bool {
	var me *driver.MySQLError
	return errors.As(err, &me) && (me.Number == errDeadlock || me.Number == errLockWaitTimeout)
}
