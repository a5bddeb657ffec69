// Package sqlite stores ledger records in SQLite tables and serves them back
// to views as a source.Provider. Tables are derived from a ledger's schema:
// one column per top-level field, nested values kept as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/asaidimu/go-tabula/core/schema"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// dbRunner abstracts the methods shared by *sql.DB and *sql.Tx, so the same
// code serves transactional and non-transactional calls.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options control table naming and creation.
type Options struct {
	// TablePrefix is prepended to every table name.
	TablePrefix string
	// IfNotExists makes CreateTable a no-op for existing tables.
	IfNotExists bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *Options {
	return &Options{IfNotExists: true}
}

// Store reads and writes ledger tables. A Store created by WithTransaction is
// bound to that transaction.
type Store struct {
	db      *sql.DB
	tx      *sql.Tx
	logger  *zap.Logger
	options *Options
}

// Open opens the SQLite database at path. In-memory databases are limited to
// a single connection so every query sees the same data.
func Open(path string, logger *zap.Logger, options *Options) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	if strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database %s: %w", path, err)
	}
	return NewStore(db, logger, options), nil
}

// NewStore wraps an open database.
func NewStore(db *sql.DB, logger *zap.Logger, options *Options) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultOptions()
	}
	return &Store{db: db, logger: logger, options: options}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runner() dbRunner {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// WithTransaction runs fn against a Store bound to a new transaction,
// committing when fn succeeds and rolling back otherwise.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return errors.New("cannot start a transaction inside a transaction")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.logger.Debug("Transaction started")

	if err := fn(&Store{db: s.db, tx: tx, logger: s.logger, options: s.options}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Debug("Transaction committed")
	return nil
}

// Select reads every row of a ledger table, ordered by the schema key when it
// has one. An empty table name uses the schema name.
func (s *Store) Select(ctx context.Context, sc *schema.SchemaDefinition, table string) ([]schema.Document, error) {
	table = resolveTable(sc, table)
	query := s.selectSQL(sc, table)
	s.logger.Debug("Executing SQL SELECT", zap.String("sql", query))

	rows, err := s.runner().QueryContext(ctx, query)
	if err != nil {
		s.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", query))
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	defer rows.Close()
	return readRows(s.logger, sc, rows)
}

// Insert writes records into a ledger table in one transaction and returns
// the number of rows written. An empty table name uses the schema name.
func (s *Store) Insert(ctx context.Context, sc *schema.SchemaDefinition, table string, records []schema.Document) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	table = resolveTable(sc, table)
	statements, err := s.insertSQL(sc, table, records)
	if err != nil {
		return 0, err
	}

	var written int64
	run := func(tx *Store) error {
		for _, stmt := range statements {
			result, err := tx.runner().ExecContext(ctx, stmt.sql, stmt.params...)
			if err != nil {
				tx.logger.Error("Failed to execute INSERT query", zap.Error(err), zap.String("table", table))
				return fmt.Errorf("failed to insert into %s: %w", table, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to count inserted rows: %w", err)
			}
			written += n
		}
		return nil
	}

	if s.tx != nil {
		err = run(s)
	} else {
		err = s.WithTransaction(ctx, run)
	}
	if err != nil {
		return 0, err
	}
	s.logger.Info("Inserted records", zap.String("table", table), zap.Int64("count", written))
	return written, nil
}

// readRows converts scanned rows into records using the schema to restore
// types SQLite does not keep: booleans, exact decimals and JSON values.
func readRows(logger *zap.Logger, sc *schema.SchemaDefinition, rows *sql.Rows) ([]schema.Document, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := make([]schema.Document, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(schema.Document, len(columns))
		for i, col := range columns {
			val := values[i]
			if val == nil {
				continue
			}
			fieldDef, ok := sc.Fields[col]
			if !ok {
				logger.Warn("Column not found in schema, using raw value", zap.String("column", col))
				row[col] = val
				continue
			}
			row[col] = fromColumn(fieldDef, val)
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return results, nil
}

func fromColumn(fieldDef *schema.FieldDefinition, val any) any {
	if b, ok := val.([]byte); ok {
		val = string(b)
	}
	switch fieldDef.Type {
	case schema.FieldTypeBoolean:
		if i, ok := val.(int64); ok {
			return i != 0
		}
	case schema.FieldTypeInteger:
		if f, ok := val.(float64); ok {
			return int64(f)
		}
	case schema.FieldTypeNumber:
		if i, ok := val.(int64); ok {
			return float64(i)
		}
	case schema.FieldTypeDecimal, schema.FieldTypeCurrency:
		if d, ok := schema.ToDecimal(val); ok {
			return d
		}
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeRecord:
		if s, ok := val.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
	}
	return val
}
