// Package schema describes the shape of ledger records: field types, labels,
// enumerations and currency scales. A SchemaDefinition is the contract every
// view rule is checked against when a view is defined.
package schema

import (
	"errors"
	"fmt"
	"sort"
)

// FieldType represents the basic field types supported by the schema system.
type FieldType string

const (
	FieldTypeString   FieldType = "string"   // Text data
	FieldTypeNumber   FieldType = "number"   // Numeric data
	FieldTypeInteger  FieldType = "integer"  // Whole numbers
	FieldTypeDecimal  FieldType = "decimal"  // Fixed-point numbers
	FieldTypeCurrency FieldType = "currency" // Money, summed exactly in decimal
	FieldTypeBoolean  FieldType = "boolean"  // True/false values
	FieldTypeEnum     FieldType = "enum"     // One out of a set of pre-defined labels
	FieldTypeDate     FieldType = "date"     // Calendar date or timestamp
	FieldTypeObject   FieldType = "object"   // Structured data with nested fields
	FieldTypeRecord   FieldType = "record"   // Unorganized key-value object, resolves to map[string]any
	FieldTypeArray    FieldType = "array"    // Ordered list of items
)

var knownFieldTypes = map[FieldType]struct{}{
	FieldTypeString:   {},
	FieldTypeNumber:   {},
	FieldTypeInteger:  {},
	FieldTypeDecimal:  {},
	FieldTypeCurrency: {},
	FieldTypeBoolean:  {},
	FieldTypeEnum:     {},
	FieldTypeDate:     {},
	FieldTypeObject:   {},
	FieldTypeRecord:   {},
	FieldTypeArray:    {},
}

// IsNumeric reports whether values of this type can be ranged over and summed.
func (t FieldType) IsNumeric() bool {
	switch t {
	case FieldTypeNumber, FieldTypeInteger, FieldTypeDecimal, FieldTypeCurrency:
		return true
	}
	return false
}

// IsTextual reports whether values of this type can be searched as text.
func (t FieldType) IsTextual() bool {
	switch t {
	case FieldTypeString, FieldTypeEnum:
		return true
	}
	return false
}

// IsNested reports whether the type holds nested named values.
func (t FieldType) IsNested() bool {
	return t == FieldTypeObject || t == FieldTypeRecord
}

// ErrInvalidSchema is returned when a SchemaDefinition is structurally unusable.
var ErrInvalidSchema = errors.New("invalid schema")

// FieldDefinition defines a field within a schema.
type FieldDefinition struct {
	Name string    `json:"name" yaml:"name"`
	Type FieldType `json:"type" yaml:"type"`
	// Label is the human-readable column header used by exports.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	// Required indicates if the field is mandatory.
	Required *bool `json:"required,omitempty" yaml:"required,omitempty"`
	// Values specifies the allowed labels for an 'enum' type field.
	Values []any `json:"values,omitempty" yaml:"values,omitempty"`
	// Scale is the number of minor-unit digits of a 'currency' field (JPY 0, USD 2).
	Scale *int32 `json:"scale,omitempty" yaml:"scale,omitempty"`
	// Fields describes the members of an 'object' field.
	Fields map[string]*FieldDefinition `json:"fields,omitempty" yaml:"fields,omitempty"`
	// Description provides a brief explanation of the field.
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
}

// DisplayLabel returns the label, falling back to the field name.
func (f *FieldDefinition) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// MinorUnits returns the currency scale of the field, 0 when unset.
func (f *FieldDefinition) MinorUnits() int32 {
	if f.Scale == nil {
		return 0
	}
	return *f.Scale
}

// IsRequired reports whether the field must be present on every record.
func (f *FieldDefinition) IsRequired() bool {
	return f.Required != nil && *f.Required
}

// SchemaDefinition defines the shape of one ledger's records.
type SchemaDefinition struct {
	Name        string  `json:"name" yaml:"name"`
	Version     string  `json:"version,omitempty" yaml:"version,omitempty"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
	// Key names the field that identifies a record. Records have no other identity.
	Key    string                      `json:"key" yaml:"key"`
	Fields map[string]*FieldDefinition `json:"fields" yaml:"fields"`
}

// Validate checks the definition itself: a name, a known key field, known field
// types, enum values on enums and non-negative currency scales.
func (s *SchemaDefinition) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidSchema)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: schema must define a name", ErrInvalidSchema)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: schema '%s' declares no fields", ErrInvalidSchema, s.Name)
	}
	if s.Key != "" {
		if _, ok := s.Fields[s.Key]; !ok {
			return fmt.Errorf("%w: key field '%s' not found in schema '%s'", ErrInvalidSchema, s.Key, s.Name)
		}
	}
	return validateFields(s.Name, "", s.Fields)
}

func validateFields(schemaName, prefix string, fields map[string]*FieldDefinition) error {
	for name, def := range fields {
		path := joinPath(prefix, name)
		if def == nil {
			return fmt.Errorf("%w: field '%s' in schema '%s' is empty", ErrInvalidSchema, path, schemaName)
		}
		if _, ok := knownFieldTypes[def.Type]; !ok {
			return fmt.Errorf("%w: field '%s' has unknown type '%s'", ErrInvalidSchema, path, def.Type)
		}
		if def.Type == FieldTypeEnum && len(def.Values) == 0 {
			return fmt.Errorf("%w: enum field '%s' declares no values", ErrInvalidSchema, path)
		}
		if def.Scale != nil && *def.Scale < 0 {
			return fmt.Errorf("%w: field '%s' has negative scale", ErrInvalidSchema, path)
		}
		if len(def.Fields) > 0 {
			if def.Type != FieldTypeObject {
				return fmt.Errorf("%w: field '%s' of type '%s' cannot declare nested fields", ErrInvalidSchema, path, def.Type)
			}
			if err := validateFields(schemaName, path, def.Fields); err != nil {
				return err
			}
		}
	}
	return nil
}

// Normalize fills each field's Name from its map key, recursively. Call it
// once when the schema is loaded; Validate never writes to the definition.
func (s *SchemaDefinition) Normalize() {
	if s == nil {
		return
	}
	normalizeFields(s.Fields)
}

func normalizeFields(fields map[string]*FieldDefinition) {
	for name, def := range fields {
		if def == nil {
			continue
		}
		if def.Name == "" {
			def.Name = name
		}
		normalizeFields(def.Fields)
	}
}

// FieldNames returns the top-level field names in sorted order.
func (s *SchemaDefinition) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Issue represents a validation issue found on a record.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Severity string `json:"severity,omitempty"` // e.g., "error", "warning"
}

// ValidationResult bundles the outcome of validating one record.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// Document is one record: an opaque mapping from field name to value.
type Document map[string]any
