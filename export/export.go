// Package export renders computed ledger rows as CSV and XLSX tables.
package export

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"time"

	"github.com/asaidimu/go-tabula/core/schema"
)

// RowNumberLabel heads the optional 1-based row number column.
const RowNumberLabel = "No"

var (
	// ErrUnknownColumn is returned when a column names a field the schema does not declare.
	ErrUnknownColumn = errors.New("unknown export column")
	// ErrUnknownMask is returned for a column mask other than the Mask constants.
	ErrUnknownMask = errors.New("unknown column mask")
)

// MaskPhone shows only the last four characters of a phone number: ***-***-1234.
const MaskPhone = "phone"

// Column is one exported field.
type Column struct {
	Field string `json:"field" yaml:"field"`
	// Label heads the column. Empty falls back to the schema label.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	// DateLayout reformats date values, e.g. "2006/01/02".
	DateLayout string `json:"dateLayout,omitempty" yaml:"dateLayout,omitempty"`
	// Labels maps stored enum values to their display text.
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	// Separator joins array values. Defaults to "・".
	Separator string `json:"separator,omitempty" yaml:"separator,omitempty"`
	// Mask hides personal data wherever the column's value leaves the ledger.
	Mask string `json:"mask,omitempty" yaml:"mask,omitempty"`

	numeric bool
}

// Layout is the ordered set of columns a ledger exports.
type Layout struct {
	Columns []Column `json:"columns" yaml:"columns"`
	// RowNumbers prepends a "No" column counting rows from 1.
	RowNumbers bool `json:"rowNumbers,omitempty" yaml:"rowNumbers,omitempty"`
}

// NewLayout resolves columns against a schema, filling missing labels from
// the field definitions. With no columns, every top-level field is exported
// in name order.
func NewLayout(s *schema.SchemaDefinition, rowNumbers bool, columns ...Column) (Layout, error) {
	if len(columns) == 0 {
		for _, name := range s.FieldNames() {
			if s.Fields[name].Type.IsNested() {
				continue
			}
			columns = append(columns, Column{Field: name})
		}
	}

	layout := Layout{RowNumbers: rowNumbers, Columns: make([]Column, 0, len(columns))}
	for _, col := range columns {
		def := s.FindField(col.Field)
		if def == nil {
			return Layout{}, fmt.Errorf("%w: '%s' in schema '%s'", ErrUnknownColumn, col.Field, s.Name)
		}
		if col.Label == "" {
			col.Label = def.Label
		}
		if col.Label == "" {
			col.Label = col.Field
		}
		switch col.Mask {
		case "", MaskPhone:
		default:
			return Layout{}, fmt.Errorf("%w: '%s' on column '%s'", ErrUnknownMask, col.Mask, col.Field)
		}
		col.numeric = def.Type.IsNumeric() && len(col.Labels) == 0 && col.Mask == ""
		layout.Columns = append(layout.Columns, col)
	}
	return layout, nil
}

// Header returns the header row.
func (l Layout) Header() []string {
	header := make([]string, 0, len(l.Columns)+1)
	if l.RowNumbers {
		header = append(header, RowNumberLabel)
	}
	for _, col := range l.Columns {
		header = append(header, col.Label)
	}
	return header
}

// Record returns the cells of the i-th (0-based) row.
func (l Layout) Record(i int, row schema.Document) []string {
	cells := make([]string, 0, len(l.Columns)+1)
	if l.RowNumbers {
		cells = append(cells, fmt.Sprint(i+1))
	}
	for _, col := range l.Columns {
		cells = append(cells, col.Cell(row))
	}
	return cells
}

// Cell renders the column's value for a row. Missing values render empty.
func (c Column) Cell(row schema.Document) string {
	raw, ok := row.Get(c.Field)
	if !ok {
		return ""
	}
	if c.Mask != "" {
		return c.MaskValue(schema.Stringify(raw))
	}
	return c.format(raw)
}

// MaskValue applies the column's mask to a rendered value.
func (c Column) MaskValue(s string) string {
	if c.Mask != MaskPhone {
		return s
	}
	digits := []rune(strings.TrimSpace(s))
	if len(digits) < 4 {
		return "****"
	}
	return "***-***-" + string(digits[len(digits)-4:])
}

// Redact returns row with every masked column replaced by its masked text.
// Rows without masked values are returned as they are; others are copied
// along the masked paths so the input is never written to.
func (l Layout) Redact(row schema.Document) schema.Document {
	out := row
	for _, col := range l.Columns {
		if col.Mask == "" {
			continue
		}
		raw, ok := row.Get(col.Field)
		if !ok {
			continue
		}
		masked := col.MaskValue(schema.Stringify(raw))
		if _, flat := row[col.Field]; flat {
			out = maps.Clone(out)
			out[col.Field] = masked
			continue
		}
		out = setPath(out, strings.Split(col.Field, "."), masked)
	}
	return out
}

// RedactValue masks a single value of field, as Options returns them.
func (l Layout) RedactValue(field, value string) string {
	for _, col := range l.Columns {
		if col.Field == field {
			return col.MaskValue(value)
		}
	}
	return value
}

// setPath copies each map on path and writes v at its end.
func setPath(m map[string]any, path []string, v any) map[string]any {
	out := maps.Clone(m)
	if len(path) == 1 {
		out[path[0]] = v
		return out
	}
	switch child := out[path[0]].(type) {
	case map[string]any:
		out[path[0]] = setPath(child, path[1:], v)
	case schema.Document:
		out[path[0]] = schema.Document(setPath(child, path[1:], v))
	}
	return out
}

func (c Column) format(raw any) string {
	if c.DateLayout != "" {
		if t, ok := schema.ToTime(raw); ok {
			return t.Format(c.DateLayout)
		}
	}
	if t, ok := raw.(time.Time); ok {
		return t.Format(time.RFC3339)
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		sep := c.Separator
		if sep == "" {
			sep = "・"
		}
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, c.label(rv.Index(i).Interface()))
		}
		return strings.Join(parts, sep)
	}
	return c.label(raw)
}

func (c Column) label(v any) string {
	s := schema.Stringify(v)
	if display, ok := c.Labels[s]; ok {
		return display
	}
	return s
}

// Filename names an export file the way the ledger pages always have:
// <name>_<YYYY-MM-DD>.<ext>.
func Filename(name, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", name, now.Format("2006-01-02"), ext)
}
