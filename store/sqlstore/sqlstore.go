/*
Package sqlstore implements ledger.Store over database/sql.

PURPOSE:
  Holds the SQL shared by the SQLite and MySQL backends. Both speak the same
  `?` placeholder dialect; the differences (DDL, error codes) live behind
  Dialect.

KEY TABLES:
  variants:           one stock row per (business_id, variant_id)
  inventory_history:  append-only ledger, seq is the replay order

MUTATION PRIMITIVES:
  ApplyDelta:     UPDATE qty = qty + ? guarded by ledger.DeltaBounds (no
                  int64 overflow, negative policy), then read back the row
                  and insert the entry, all in one tx.
  CompareAndSet:  UPDATE ... WHERE version = ?, then insert the entry.

  An order marker collision on the entry insert rolls back the quantity
  change with it and surfaces as ledger.ErrDuplicateEntry.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE is ever issued against inventory_history.

SEE ALSO:
  - store/sqlite: SQLite dialect and pragmas
  - store/mysql: MySQL dialect
  - ledger/store: in-memory implementation for tests
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/inventory-ledger/ledger"
)

// Dialect isolates the backend-specific parts of the store.
type Dialect interface {
	Name() string
	// Schema returns the DDL statements, applied in order on Migrate.
	Schema() []string
	IsUniqueViolation(err error) bool
	// IsBusy reports lock contention the caller may retry.
	IsBusy(err error) bool
}

// Store implements ledger.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ ledger.Store = (*Store)(nil)

// timeLayout is fixed width so text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Migrate applies the dialect's schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: apply schema: %w", s.dialect.Name(), err)
		}
	}
	return nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the connection, used by health endpoints.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction. The commit is the only point at which
// the row update and the entry become visible.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// classify maps driver contention onto ledger.ErrVersionConflict so the
// mutator retries it.
func (s *Store) classify(err error) error {
	if err == nil {
		return nil
	}
	if s.dialect.IsBusy(err) {
		return fmt.Errorf("%w: %v", ledger.ErrVersionConflict, err)
	}
	return err
}

// =============================================================================
// VARIANTS
// =============================================================================

const variantColumns = `business_id, variant_id, product_id, sku, inventory_qty, version, created_at, updated_at`

func (s *Store) CreateVariant(ctx context.Context, v ledger.Variant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO variants (`+variantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.BusinessID, v.VariantID, v.ProductID, nullString(v.SKU),
		v.InventoryQty, v.Version, formatTime(v.CreatedAt), formatTime(v.UpdatedAt),
	)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: variant %s", ledger.ErrVariantExists, v.VariantID)
		}
		return fmt.Errorf("create variant: %w", err)
	}
	return nil
}

func (s *Store) GetVariant(ctx context.Context, businessID ledger.BusinessID, variantID ledger.VariantID) (ledger.Variant, error) {
	return getVariant(ctx, s.db, businessID, variantID)
}

func getVariant(ctx context.Context, q querier, businessID ledger.BusinessID, variantID ledger.VariantID) (ledger.Variant, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+variantColumns+` FROM variants
		WHERE business_id = ? AND variant_id = ?`,
		businessID, variantID)
	v, err := scanVariant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Variant{}, fmt.Errorf("%w: variant %s", ledger.ErrNotFound, variantID)
	}
	return v, err
}

func (s *Store) GetVariantBySKU(ctx context.Context, businessID ledger.BusinessID, sku string) (ledger.Variant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+variantColumns+` FROM variants
		WHERE business_id = ? AND sku = ?`,
		businessID, sku)
	v, err := scanVariant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Variant{}, fmt.Errorf("%w: sku %s", ledger.ErrNotFound, sku)
	}
	return v, err
}

func (s *Store) DeleteVariant(ctx context.Context, businessID ledger.BusinessID, variantID ledger.VariantID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM variants WHERE business_id = ? AND variant_id = ?`,
		businessID, variantID)
	if err != nil {
		return fmt.Errorf("delete variant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete variant: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: variant %s", ledger.ErrNotFound, variantID)
	}
	return nil
}

func (s *Store) ListAtOrBelow(ctx context.Context, businessID ledger.BusinessID, threshold int64) ([]ledger.Variant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+variantColumns+` FROM variants
		WHERE business_id = ? AND inventory_qty <= ?
		ORDER BY inventory_qty ASC, variant_id ASC`,
		businessID, threshold)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var variants []ledger.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (s *Store) Businesses(ctx context.Context) ([]ledger.BusinessID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT business_id FROM variants ORDER BY business_id`)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	var out []ledger.BusinessID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		out = append(out, ledger.BusinessID(id))
	}
	return out, rows.Err()
}

// =============================================================================
// MUTATION PRIMITIVES
// =============================================================================

func (s *Store) ApplyDelta(ctx context.Context, d ledger.EntryDraft, delta int64, allowNegative bool) (ledger.Entry, error) {
	lo, hi := ledger.DeltaBounds(delta, allowNegative)
	var entry ledger.Entry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE variants
			SET inventory_qty = inventory_qty + ?, version = version + 1, updated_at = ?
			WHERE business_id = ? AND variant_id = ? AND inventory_qty BETWEEN ? AND ?`,
			delta, formatTime(d.CreatedAt), d.BusinessID, d.VariantID, lo, hi)
		if err != nil {
			return fmt.Errorf("apply delta: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("apply delta: %w", err)
		}

		v, err := getVariant(ctx, tx, d.BusinessID, d.VariantID)
		if err != nil {
			return err
		}
		if n == 0 {
			resulting, ok := ledger.AddQty(v.InventoryQty, delta)
			if !ok {
				return ledger.OverflowError(d.VariantID, v.InventoryQty, delta)
			}
			return &ledger.InsufficientStockError{
				VariantID: d.VariantID,
				Available: v.InventoryQty,
				Resulting: resulting,
			}
		}

		entry, err = s.insertEntry(ctx, tx, d, v.ProductID, v.InventoryQty-delta, v.InventoryQty)
		return err
	})
	return entry, s.classify(err)
}

func (s *Store) CompareAndSet(ctx context.Context, d ledger.EntryDraft, expected ledger.Variant, target int64) (ledger.Entry, error) {
	var entry ledger.Entry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE variants
			SET inventory_qty = ?, version = version + 1, updated_at = ?
			WHERE business_id = ? AND variant_id = ? AND version = ?`,
			target, formatTime(d.CreatedAt), d.BusinessID, d.VariantID, expected.Version)
		if err != nil {
			return fmt.Errorf("compare and set: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("compare and set: %w", err)
		}
		if n == 0 {
			if _, err := getVariant(ctx, tx, d.BusinessID, d.VariantID); err != nil {
				return err
			}
			return ledger.ErrVersionConflict
		}

		entry, err = s.insertEntry(ctx, tx, d, expected.ProductID, expected.InventoryQty, target)
		return err
	})
	return entry, s.classify(err)
}

func (s *Store) insertEntry(ctx context.Context, tx *sql.Tx, d ledger.EntryDraft, productID ledger.ProductID, previous, next int64) (ledger.Entry, error) {
	e := d.Complete(productID, previous, next)
	marker := d.Marker()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_history
		(entry_id, business_id, variant_id, product_id, previous_qty, new_qty, change_qty,
		 reason, note, order_id, actor_id, order_marker, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BusinessID, e.VariantID, e.ProductID, e.PreviousQty, e.NewQty, e.ChangeQty,
		e.Reason, nullString(e.Note), nullString(e.OrderID), nullString(e.ActorID),
		nullString(marker), formatTime(e.CreatedAt),
	)
	if err != nil {
		if marker != "" && s.dialect.IsUniqueViolation(err) {
			return ledger.Entry{}, fmt.Errorf("%w: %s", ledger.ErrDuplicateEntry, marker)
		}
		return ledger.Entry{}, fmt.Errorf("insert entry: %w", err)
	}

	e.Seq, err = res.LastInsertId()
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return e, nil
}

// =============================================================================
// HISTORY
// =============================================================================

const entryColumns = `seq, entry_id, business_id, variant_id, product_id, previous_qty, new_qty, change_qty,
	reason, note, order_id, actor_id, created_at`

func (s *Store) ListEntries(ctx context.Context, businessID ledger.BusinessID, f ledger.HistoryFilter) ([]ledger.Entry, error) {
	var (
		where = []string{"business_id = ?"}
		args  = []any{businessID}
	)
	if f.VariantID != "" {
		where = append(where, "variant_id = ?")
		args = append(args, f.VariantID)
	}
	if f.ProductID != "" {
		where = append(where, "product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.OrderID != "" {
		where = append(where, "order_id = ?")
		args = append(args, f.OrderID)
	}

	query := `SELECT ` + entryColumns + ` FROM inventory_history WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY seq DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.queryEntries(ctx, query, args...)
}

func (s *Store) VariantEntries(ctx context.Context, businessID ledger.BusinessID, variantID ledger.VariantID) ([]ledger.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM inventory_history
		WHERE business_id = ? AND variant_id = ?
		ORDER BY seq ASC`,
		businessID, variantID)
}

func (s *Store) HasOrderEntry(ctx context.Context, businessID ledger.BusinessID, orderID string, variantID ledger.VariantID, reason ledger.Reason) (bool, error) {
	marker := ledger.OrderMarker(orderID, variantID, reason)
	if marker == "" {
		return false, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM inventory_history
		WHERE business_id = ? AND order_marker = ?`,
		businessID, marker,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check order marker: %w", err)
	}
	return count > 0, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanVariant(row scanner) (ledger.Variant, error) {
	var (
		v                    ledger.Variant
		sku                  sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&v.BusinessID, &v.VariantID, &v.ProductID, &sku,
		&v.InventoryQty, &v.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return v, err
		}
		return v, fmt.Errorf("scan variant: %w", err)
	}
	v.SKU = sku.String
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return v, nil
}

func scanEntry(row scanner) (ledger.Entry, error) {
	var (
		e                      ledger.Entry
		reason                 string
		note, orderID, actorID sql.NullString
		createdAt              string
	)
	err := row.Scan(&e.Seq, &e.ID, &e.BusinessID, &e.VariantID, &e.ProductID,
		&e.PreviousQty, &e.NewQty, &e.ChangeQty,
		&reason, &note, &orderID, &actorID, &createdAt)
	if err != nil {
		return e, fmt.Errorf("scan entry: %w", err)
	}
	e.Reason = ledger.Reason(reason)
	e.Note = note.String
	e.OrderID = orderID.String
	e.ActorID = actorID.String
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

// Helper functions

// SplitStatements splits an embedded schema file on semicolons. Statements
// must not contain semicolons of their own.
func SplitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
