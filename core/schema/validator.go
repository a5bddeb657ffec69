package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Validator checks records against a schema. It never rejects a record on its
// own: callers decide whether an issue is worth a log line or a refusal.
type Validator struct {
	schema *SchemaDefinition
}

// NewValidator creates a new Validator for a given schema. The returned
// validator holds no per-call state and can be shared.
func NewValidator(schema *SchemaDefinition) *Validator {
	return &Validator{schema: schema}
}

// validation collects the issues of a single Validate call.
type validation struct {
	issues []Issue
}

// Validate checks if a record conforms to the validator's schema.
// The `loose` parameter ignores missing required fields.
func (v *Validator) Validate(data Document, loose bool) ValidationResult {
	run := &validation{issues: make([]Issue, 0)}
	run.validateFields(v.schema.Fields, data, "")

	issues := run.issues
	if loose {
		filtered := make([]Issue, 0, len(issues))
		for _, issue := range issues {
			if issue.Code != "REQUIRED_FIELD_MISSING" {
				filtered = append(filtered, issue)
			}
		}
		issues = filtered
	}
	valid := true
	for _, issue := range issues {
		if issue.Severity == "error" {
			valid = false
			break
		}
	}
	return ValidationResult{Valid: valid, Issues: issues}
}

func (r *validation) validateFields(fields map[string]*FieldDefinition, data map[string]any, path string) {
	for fieldName, fieldDef := range fields {
		fieldPath := joinPath(path, fieldName)
		value, exists := data[fieldName]

		if !exists || value == nil {
			if fieldDef.IsRequired() {
				r.addIssue("REQUIRED_FIELD_MISSING", fmt.Sprintf("Required field '%s' is missing", fieldName), fieldPath)
			}
			continue
		}
		r.validateFieldValue(value, fieldDef, fieldPath)
	}

	for dataKey := range data {
		if _, exists := fields[dataKey]; !exists {
			r.addWarning("UNEXPECTED_FIELD", fmt.Sprintf("Unexpected field '%s' not defined in schema", dataKey), joinPath(path, dataKey))
		}
	}
}

func (r *validation) validateFieldValue(value any, fieldDef *FieldDefinition, path string) {
	switch fieldDef.Type {
	case FieldTypeString:
		if _, ok := value.(string); !ok {
			r.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected string, got %T", value), path)
		}
	case FieldTypeNumber, FieldTypeDecimal, FieldTypeCurrency:
		if _, ok := ToDecimal(value); !ok {
			r.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected number, got %T", value), path)
		}
	case FieldTypeInteger:
		if !isIntegerValue(value) {
			r.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected integer, got %T", value), path)
		}
	case FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			r.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected boolean, got %T", value), path)
		}
	case FieldTypeDate:
		if _, ok := ToTime(value); !ok {
			r.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected date, got %v", value), path)
		}
	case FieldTypeEnum:
		r.validateEnumValue(value, fieldDef.Values, path)
	case FieldTypeArray:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			r.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected array, got %T", value), path)
		}
	case FieldTypeObject, FieldTypeRecord:
		obj, ok := asObject(value)
		if !ok {
			r.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected object, got %T", value), path)
			return
		}
		if fieldDef.Type == FieldTypeObject && len(fieldDef.Fields) > 0 {
			r.validateFields(fieldDef.Fields, obj, path)
		}
	}
}

// validateEnumValue validates that a value is one of the allowed enum labels.
// Labels loaded from JSON arrive as float64, so numbers compare by value.
func (r *validation) validateEnumValue(value any, allowedValues []any, path string) {
	for _, allowed := range allowedValues {
		if reflect.DeepEqual(value, allowed) {
			return
		}
		if a, ok := ToDecimal(allowed); ok {
			if b, ok := ToDecimal(value); ok && a.Equal(b) {
				return
			}
		}
	}
	labels := make([]string, 0, len(allowedValues))
	for _, allowed := range allowedValues {
		labels = append(labels, Stringify(allowed))
	}
	r.addIssue("ENUM_VIOLATION", fmt.Sprintf("Value must be one of: %s", strings.Join(labels, ", ")), path)
}

func isIntegerValue(value any) bool {
	switch val := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return val == float64(int64(val))
	case json.Number:
		_, err := val.Int64()
		return err == nil
	}
	return false
}

func asObject(value any) (map[string]any, bool) {
	switch obj := value.(type) {
	case map[string]any:
		return obj, true
	case Document:
		return obj, true
	}
	return nil, false
}

func (r *validation) addIssue(code, message, path string) {
	r.issues = append(r.issues, Issue{Code: code, Message: message, Path: path, Severity: "error"})
}

func (r *validation) addWarning(code, message, path string) {
	r.issues = append(r.issues, Issue{Code: code, Message: message, Path: path, Severity: "warning"})
}
