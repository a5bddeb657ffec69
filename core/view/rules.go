// Package view implements the tabular data view behind every ledger screen:
// declarative filter, sort and aggregate rules over a slice of records,
// evaluated as a pure function of the records and a ViewState.
package view

import (
	"encoding/json"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/shopspring/decimal"
)

// FilterKind identifies how a FilterRule matches a record.
type FilterKind string

// Supported filter kinds.
const (
	FilterSubstring    FilterKind = "substring"
	FilterExact        FilterKind = "exact"
	FilterNumericRange FilterKind = "numeric_range"
	FilterDateRange    FilterKind = "date_range"
	FilterCustom       FilterKind = "custom"
)

// AllSentinel is the enumerated value that disables an exact filter.
const AllSentinel = "all"

// FilterRule is a named predicate over one or more fields of a record.
type FilterRule struct {
	Name string     `json:"name" yaml:"name"`
	Kind FilterKind `json:"kind" yaml:"kind"`
	// Fields lists the fields the rule reads. Substring rules may search several
	// fields at once; every other kind reads exactly one.
	Fields []string `json:"fields" yaml:"fields"`
	// Sentinels are extra values meaning "no filter" for exact rules, on top of
	// the empty string and AllSentinel.
	Sentinels []string `json:"sentinels,omitempty" yaml:"sentinels,omitempty"`
	// AllowNull lets records without a value for the field pass the rule.
	AllowNull bool `json:"allowNull,omitempty" yaml:"allowNull,omitempty"`
	// FoldWidth makes substring matching treat full-width and half-width
	// characters alike.
	FoldWidth bool `json:"foldWidth,omitempty" yaml:"foldWidth,omitempty"`
	// Operator names a registered predicate for custom rules.
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty"`
}

// SortDirection specifies the direction for sorting.
type SortDirection string

// Supported sort directions.
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortStrategy specifies how two sort keys are compared.
type SortStrategy string

// Supported sort strategies.
const (
	SortCollate SortStrategy = "collate"
	SortNumeric SortStrategy = "numeric"
	SortDate    SortStrategy = "date"
)

// CollationOptions tune locale-aware string comparison.
type CollationOptions struct {
	// Locale is a BCP 47 tag such as "ja" or "en-US". Empty means root collation.
	Locale string `json:"locale,omitempty" yaml:"locale,omitempty"`
	// Numeric orders digit runs by value ("2" before "10").
	Numeric bool `json:"numeric,omitempty" yaml:"numeric,omitempty"`
	// Loose ignores case, width and accents.
	Loose bool `json:"loose,omitempty" yaml:"loose,omitempty"`
}

// SortRule is a named, selectable ordering.
type SortRule struct {
	Name      string           `json:"name" yaml:"name"`
	Field     string           `json:"field" yaml:"field"`
	Direction SortDirection    `json:"direction,omitempty" yaml:"direction,omitempty"`
	Strategy  SortStrategy     `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Collation CollationOptions `json:"collation,omitempty" yaml:"collation,omitempty"`
}

// AggregationType specifies the reduction an AggregateRule performs.
type AggregationType string

// Supported aggregation types.
const (
	AggregateCount      AggregationType = "count"
	AggregateCountWhere AggregationType = "count_where"
	AggregateSum        AggregationType = "sum"
	AggregateAvg        AggregationType = "avg"
	AggregateMin        AggregationType = "min"
	AggregateMax        AggregationType = "max"
)

// AggregateRule reduces the filtered rows to a named scalar.
type AggregateRule struct {
	Name string          `json:"name" yaml:"name"`
	Type AggregationType `json:"type" yaml:"type"`
	// Field is required for every type except count, where it narrows the count
	// to rows that carry a value.
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	// Value is the label count_where compares the field against.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`
}

// Definition is the declarative configuration of a view.
type Definition struct {
	Filters     []FilterRule    `json:"filters,omitempty" yaml:"filters,omitempty"`
	Sorts       []SortRule      `json:"sorts,omitempty" yaml:"sorts,omitempty"`
	DefaultSort string          `json:"defaultSort,omitempty" yaml:"defaultSort,omitempty"`
	Aggregates  []AggregateRule `json:"aggregates,omitempty" yaml:"aggregates,omitempty"`

	// Locale is the default collation locale for sort rules and option lists.
	Locale string `json:"locale,omitempty" yaml:"locale,omitempty"`
}

// Range is the value bound to numeric and date range rules. A nil or empty
// bound is open.
type Range struct {
	Min any `json:"min,omitempty"`
	Max any `json:"max,omitempty"`
}

// ViewState carries the live values bound to a view's rules. It belongs to
// the caller and is never retained by the view.
type ViewState struct {
	// Filters maps a filter rule name to its bound value.
	Filters map[string]any `json:"filters,omitempty"`
	// Sort names the selected sort rule. Empty selects the default sort.
	Sort string `json:"sort,omitempty"`
	// Direction overrides the selected rule's direction when set.
	Direction SortDirection `json:"direction,omitempty"`
}

// NewViewState returns an empty state: no filters bound, default sort.
func NewViewState() ViewState {
	return ViewState{Filters: map[string]any{}}
}

// With returns a copy of the state with a filter value bound.
func (s ViewState) With(rule string, value any) ViewState {
	next := s.clone()
	next.Filters[rule] = value
	return next
}

// WithRange returns a copy of the state with a range bound.
func (s ViewState) WithRange(rule string, lo, hi any) ViewState {
	return s.With(rule, Range{Min: lo, Max: hi})
}

// SortBy returns a copy of the state selecting a sort rule and direction.
func (s ViewState) SortBy(rule string, direction SortDirection) ViewState {
	next := s.clone()
	next.Sort = rule
	next.Direction = direction
	return next
}

func (s ViewState) clone() ViewState {
	next := ViewState{Filters: make(map[string]any, len(s.Filters)+1), Sort: s.Sort, Direction: s.Direction}
	for k, v := range s.Filters {
		next.Filters[k] = v
	}
	return next
}

// AggregateResult is one named scalar computed over the filtered rows.
type AggregateResult struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

// Float64 returns the value as a float64.
func (a AggregateResult) Float64() float64 {
	return a.Value.InexactFloat64()
}

// MarshalJSON renders the value as a JSON number rather than a string.
func (a AggregateResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name  string      `json:"name"`
		Value json.Number `json:"value"`
	}{Name: a.Name, Value: json.Number(a.Value.String())})
}

// Result is what a table renders: the derived rows and the aggregate totals.
type Result struct {
	Rows       []schema.Document `json:"rows"`
	Aggregates []AggregateResult `json:"aggregates"`
	// Total is the number of input records, Matched the number that passed
	// every active filter.
	Total   int `json:"total"`
	Matched int `json:"matched"`
}

// Aggregate returns the named aggregate and whether it exists.
func (r *Result) Aggregate(name string) (AggregateResult, bool) {
	for _, a := range r.Aggregates {
		if a.Name == name {
			return a, true
		}
	}
	return AggregateResult{}, false
}
