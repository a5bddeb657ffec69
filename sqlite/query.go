package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/asaidimu/go-tabula/core/schema"
	"go.uber.org/zap"
)

// maxParams keeps a multi-row INSERT under SQLite's default host parameter
// limit.
const maxParams = 999

type statement struct {
	sql    string
	params []any
}

// selectSQL reads every schema column of a table.
func (s *Store) selectSQL(sc *schema.SchemaDefinition, table string) string {
	names := sc.FieldNames()
	columns := make([]string, len(names))
	for i, name := range names {
		columns[i] = quoteIdentifier(name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), s.tableName(table))
	if sc.Key != "" {
		query += " ORDER BY " + quoteIdentifier(sc.Key)
	}
	return query + ";"
}

// insertSQL builds batched INSERT statements over every schema column.
// Record fields the schema does not declare are skipped with a warning.
func (s *Store) insertSQL(sc *schema.SchemaDefinition, table string, records []schema.Document) ([]statement, error) {
	fields := sc.FieldNames()
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema '%s' declares no fields", sc.Name)
	}

	skipped := make(map[string]struct{})
	for _, record := range records {
		for name := range record {
			if _, ok := sc.Fields[name]; ok {
				continue
			}
			if _, seen := skipped[name]; !seen {
				skipped[name] = struct{}{}
				s.logger.Warn("Skipping field not defined in schema", zap.String("field", name), zap.String("schema", sc.Name))
			}
		}
	}

	quoted := make([]string, len(fields))
	for i, name := range fields {
		quoted[i] = quoteIdentifier(name)
	}
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", s.tableName(table), strings.Join(quoted, ", "))
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ") + ")"

	perBatch := max(1, maxParams/len(fields))
	var statements []statement
	for start := 0; start < len(records); start += perBatch {
		end := min(start+perBatch, len(records))
		batch := records[start:end]

		tuples := make([]string, 0, len(batch))
		params := make([]any, 0, len(batch)*len(fields))
		for i, record := range batch {
			for _, name := range fields {
				value, err := prepareValue(sc.Fields[name], record[name])
				if err != nil {
					return nil, fmt.Errorf("record %d field '%s': %w", start+i, name, err)
				}
				params = append(params, value)
			}
			tuples = append(tuples, placeholders)
		}
		statements = append(statements, statement{sql: head + strings.Join(tuples, ", ") + ";", params: params})
	}
	return statements, nil
}

// prepareValue converts a record value to the form it is stored in.
func prepareValue(field *schema.FieldDefinition, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch field.Type {
	case schema.FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
			if v {
				return 1, nil
			}
			return 0, nil
		case string:
			switch strings.ToLower(v) {
			case "true":
				return 1, nil
			case "false":
				return 0, nil
			}
		default:
			if f, ok := schema.ToFloat64(v); ok && (f == 0 || f == 1) {
				return int(f), nil
			}
		}
		return nil, fmt.Errorf("expected boolean, got %T", value)

	case schema.FieldTypeInteger:
		d, ok := schema.ToDecimal(value)
		if !ok || !d.IsInteger() {
			return nil, fmt.Errorf("expected integer, got %v", value)
		}
		return d.IntPart(), nil

	case schema.FieldTypeNumber:
		f, ok := schema.ToFloat64(value)
		if !ok {
			return nil, fmt.Errorf("expected number, got %v", value)
		}
		return f, nil

	case schema.FieldTypeDecimal, schema.FieldTypeCurrency:
		d, ok := schema.ToDecimal(value)
		if !ok {
			return nil, fmt.Errorf("expected number, got %v", value)
		}
		return d.String(), nil

	case schema.FieldTypeDate:
		if t, ok := value.(time.Time); ok {
			return t.Format(time.RFC3339Nano), nil
		}
		return schema.Stringify(value), nil

	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeRecord:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize to JSON: %w", err)
		}
		return string(data), nil

	default:
		return schema.Stringify(value), nil
	}
}
