package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FindField resolves a dotted field path ("vehicle.area") to its definition.
// Paths through 'record' fields resolve to the record field itself, since its
// members are not declared.
func (s *SchemaDefinition) FindField(path string) *FieldDefinition {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	fields := s.Fields
	var def *FieldDefinition
	for i, part := range parts {
		def = fields[part]
		if def == nil {
			return nil
		}
		if i == len(parts)-1 {
			return def
		}
		switch def.Type {
		case FieldTypeRecord:
			return def
		case FieldTypeObject:
			fields = def.Fields
		default:
			return nil
		}
	}
	return def
}

// Get returns the value at a dotted path. Nested values must be map[string]any
// or Document; anything else ends the walk with a miss.
func (d Document) Get(path string) (any, bool) {
	if d == nil {
		return nil, false
	}
	if v, ok := d[path]; ok {
		return v, v != nil
	}
	parts := strings.Split(path, ".")
	var current any = map[string]any(d)
	for _, part := range parts {
		var m map[string]any
		switch node := current.(type) {
		case map[string]any:
			m = node
		case Document:
			m = node
		default:
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, current != nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// ToDecimal converts a value of various numeric types, or a numeric string, to
// an exact decimal. Floats go through their shortest decimal representation so
// 0.1 stays 0.1.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int8:
		return decimal.NewFromInt(int64(val)), true
	case int16:
		return decimal.NewFromInt(int64(val)), true
	case int32:
		return decimal.NewFromInt32(val), true
	case int64:
		return decimal.NewFromInt(val), true
	case uint:
		return fromUint(uint64(val)), true
	case uint32:
		return fromUint(uint64(val)), true
	case uint64:
		return fromUint(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case float64:
		return decimal.NewFromFloat(val), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	case json.Number:
		d, err := decimal.NewFromString(string(val))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func fromUint(u uint64) decimal.Decimal {
	d, _ := decimal.NewFromString(strconv.FormatUint(u, 10))
	return d
}

// ToFloat64 converts a value of various numeric types to a float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case decimal.Decimal:
		return val.InexactFloat64(), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// dateLayouts are the formats ledger data arrives in: ISO-8601 timestamps from
// the API, PostgreSQL-style timestamps and slash-separated dates from exports.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// ToTime converts a time.Time or a date string to a time.Time.
func ToTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, !val.IsZero()
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Stringify renders a field value the way it is searched and exported.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case decimal.Decimal:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
