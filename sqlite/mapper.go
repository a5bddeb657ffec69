package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/asaidimu/go-tabula/core/schema"
	"go.uber.org/zap"
)

// quoteIdentifier quotes a table or column name.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral quotes a string literal for DDL.
func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// tableName returns the prefixed, quoted table name.
func (s *Store) tableName(table string) string {
	return quoteIdentifier(s.options.TablePrefix + table)
}

// resolveTable applies the default table name: the schema name.
func resolveTable(sc *schema.SchemaDefinition, table string) string {
	if table == "" {
		return sc.Name
	}
	return table
}

// CreateTable creates the table for a ledger schema. An empty table name uses
// the schema name.
func (s *Store) CreateTable(ctx context.Context, sc *schema.SchemaDefinition, table string) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	table = resolveTable(sc, table)
	stmt := s.CreateTableSQL(sc, table)
	if _, err := s.runner().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
	}
	s.logger.Info("Created table", zap.String("table", table), zap.String("schema", sc.Name))
	return nil
}

// CreateTableSQL generates the CREATE TABLE statement for a schema. The key
// field becomes the primary key and enum fields get a CHECK constraint.
func (s *Store) CreateTableSQL(sc *schema.SchemaDefinition, table string) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if s.options.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(s.tableName(table) + " (\n")

	columns := make([]string, 0, len(sc.Fields))
	for _, name := range sc.FieldNames() {
		columns = append(columns, "    "+columnDefinition(name, sc.Fields[name]))
	}
	sb.WriteString(strings.Join(columns, ",\n"))

	if sc.Key != "" {
		sb.WriteString(",\n    PRIMARY KEY (" + quoteIdentifier(sc.Key) + ")")
	}
	sb.WriteString("\n);")
	return sb.String()
}

func columnDefinition(name string, field *schema.FieldDefinition) string {
	parts := []string{quoteIdentifier(name), columnType(field.Type)}
	if field.IsRequired() {
		parts = append(parts, "NOT NULL")
	}
	if field.Type == schema.FieldTypeEnum && len(field.Values) > 0 {
		values := make([]string, 0, len(field.Values))
		for _, v := range field.Values {
			values = append(values, quoteLiteral(schema.Stringify(v)))
		}
		parts = append(parts, fmt.Sprintf("CHECK(%s IN (%s))", quoteIdentifier(name), strings.Join(values, ", ")))
	}
	return strings.Join(parts, " ")
}

// columnType maps a field type to its SQLite storage class. Decimals and
// currency are stored as text to keep them exact.
func columnType(fieldType schema.FieldType) string {
	switch fieldType {
	case schema.FieldTypeNumber:
		return "REAL"
	case schema.FieldTypeInteger, schema.FieldTypeBoolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// DropTable drops a ledger table if it exists.
func (s *Store) DropTable(ctx context.Context, table string) error {
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s;", s.tableName(table))
	if _, err := s.runner().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	return nil
}

// TableExists reports whether a ledger table exists.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	const query = "SELECT name FROM sqlite_master WHERE type='table' AND name = ?;"

	var name string
	err := s.runner().QueryRowContext(ctx, query, s.options.TablePrefix+table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
