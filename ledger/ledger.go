// Package ledger ties the pieces of a back-office ledger screen together: a
// schema, the view rules computed over it, the provider its records come
// from and the layout it exports with. A Registry holds the ledgers a
// deployment serves and runs fetch-then-compute for each request.
package ledger

import (
	"errors"
	"fmt"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/asaidimu/go-tabula/core/view"
	"github.com/asaidimu/go-tabula/export"
	"github.com/asaidimu/go-tabula/source"
)

var (
	// ErrUnknownLedger is returned when a name matches no registered ledger.
	ErrUnknownLedger = errors.New("unknown ledger")
	// ErrDuplicateLedger is returned when a name is registered twice.
	ErrDuplicateLedger = errors.New("ledger already registered")
	// ErrUnknownFormat is returned for an export format other than csv or xlsx.
	ErrUnknownFormat = errors.New("unknown export format")
	// ErrUnknownRecord is returned when no record carries the requested key.
	ErrUnknownRecord = errors.New("unknown record")
	// ErrNoKey is returned by a record lookup on a ledger whose schema has no key field.
	ErrNoKey = errors.New("ledger schema has no key field")
)

// FetchError reports that a ledger's provider failed. The view is never
// computed over a partial record set.
type FetchError struct {
	Ledger string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch ledger '%s': %v", e.Ledger, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Ledger is one named, servable table.
type Ledger struct {
	Name string
	// Title is a display name, e.g. "スタッフ台帳".
	Title    string
	View     *view.View
	Provider source.Provider
	Layout   export.Layout
}

// Spec describes a ledger to build.
type Spec struct {
	Name       string
	Title      string
	Schema     *schema.SchemaDefinition
	View       view.Definition
	Provider   source.Provider
	Columns    []export.Column
	RowNumbers bool
}

// New builds a ledger, defining its view against the schema and resolving
// the export columns. With no columns every scalar field is exported.
func New(spec Spec, opts ...view.Option) (*Ledger, error) {
	if spec.Name == "" {
		return nil, errors.New("ledger needs a name")
	}
	if spec.Provider == nil {
		return nil, fmt.Errorf("ledger '%s' needs a provider", spec.Name)
	}
	v, err := view.Define(spec.Schema, spec.View, opts...)
	if err != nil {
		return nil, fmt.Errorf("ledger '%s': %w", spec.Name, err)
	}
	layout, err := export.NewLayout(spec.Schema, spec.RowNumbers, spec.Columns...)
	if err != nil {
		return nil, fmt.Errorf("ledger '%s': %w", spec.Name, err)
	}
	return &Ledger{Name: spec.Name, Title: spec.Title, View: v, Provider: spec.Provider, Layout: layout}, nil
}

// Schema returns the ledger's schema.
func (l *Ledger) Schema() *schema.SchemaDefinition {
	return l.View.Schema()
}

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: '%s'", ErrUnknownFormat, s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}
