package view

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned when a rule references a field the schema does not declare.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidRule is returned when a rule cannot be evaluated as declared.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrUnknownSort is returned when a ViewState selects a sort rule that was never declared.
	ErrUnknownSort = errors.New("unknown sort")
	// ErrInvalidValue is returned when a ViewState binds a value a rule cannot use.
	ErrInvalidValue = errors.New("invalid value")
)

// ConfigError reports a malformed view definition. It is returned by Define,
// never by Compute.
type ConfigError struct {
	Rule  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("view rule '%s' (field '%s'): %v", e.Rule, e.Field, e.Err)
	}
	return fmt.Sprintf("view rule '%s': %v", e.Rule, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(rule, field string, err error, format string, args ...any) *ConfigError {
	if format != "" {
		err = fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
	}
	return &ConfigError{Rule: rule, Field: field, Err: err}
}

// StateError reports a ViewState value that does not fit its rule.
type StateError struct {
	Rule string
	Err  error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("view state for '%s': %v", e.Rule, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }
