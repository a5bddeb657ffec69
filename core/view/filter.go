package view

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// compiledFilter is a FilterRule checked against the schema.
type compiledFilter struct {
	rule      FilterRule
	sentinels map[string]struct{}
	predicate PredicateFunction
}

// boundFilter is an active rule with its ViewState value applied.
type boundFilter func(schema.Document) bool

func (v *View) compileFilter(rule FilterRule) (compiledFilter, error) {
	cf := compiledFilter{rule: rule}

	switch rule.Kind {
	case FilterSubstring:
		if len(rule.Fields) == 0 {
			return cf, configErr(rule.Name, "", ErrInvalidRule, "substring rule needs at least one field")
		}
	case FilterExact, FilterNumericRange, FilterDateRange, FilterCustom:
		if len(rule.Fields) != 1 {
			return cf, configErr(rule.Name, "", ErrInvalidRule, "%s rule reads exactly one field, got %d", rule.Kind, len(rule.Fields))
		}
	default:
		return cf, configErr(rule.Name, "", ErrInvalidRule, "unknown filter kind '%s'", rule.Kind)
	}

	for _, field := range rule.Fields {
		def, err := v.lookupField(rule.Name, field)
		if err != nil {
			return cf, err
		}
		switch rule.Kind {
		case FilterSubstring, FilterExact:
			if def.Type.IsNested() || def.Type == schema.FieldTypeArray {
				return cf, configErr(rule.Name, field, ErrInvalidRule, "cannot match %s field", def.Type)
			}
		case FilterNumericRange:
			if !def.Type.IsNumeric() {
				return cf, configErr(rule.Name, field, ErrInvalidRule, "numeric range over %s field", def.Type)
			}
		case FilterDateRange:
			if def.Type != schema.FieldTypeDate {
				return cf, configErr(rule.Name, field, ErrInvalidRule, "date range over %s field", def.Type)
			}
		}
	}

	if rule.Kind == FilterExact {
		cf.sentinels = map[string]struct{}{"": {}, AllSentinel: {}}
		for _, s := range rule.Sentinels {
			cf.sentinels[s] = struct{}{}
		}
	}

	if rule.Kind == FilterCustom {
		if rule.Operator == "" {
			return cf, configErr(rule.Name, rule.Fields[0], ErrInvalidRule, "custom rule needs an operator")
		}
		fn, ok := v.predicates.Lookup(rule.Operator)
		if !ok {
			return cf, configErr(rule.Name, rule.Fields[0], ErrInvalidRule, "unregistered predicate '%s'", rule.Operator)
		}
		cf.predicate = fn
	}
	return cf, nil
}

// bindFilters applies the state's values to the view's rules, in declaration
// order, dropping every rule whose value is unset.
func (v *View) bindFilters(state ViewState) ([]boundFilter, error) {
	active := make([]boundFilter, 0, len(v.filters))
	for _, cf := range v.filters {
		value, ok := state.Filters[cf.rule.Name]
		if !ok || value == nil {
			continue
		}
		bound, err := cf.bind(value)
		if err != nil {
			return nil, &StateError{Rule: cf.rule.Name, Err: err}
		}
		if bound != nil {
			active = append(active, bound)
		}
	}
	return active, nil
}

// bind returns nil when value leaves the rule inactive.
func (cf compiledFilter) bind(value any) (boundFilter, error) {
	switch cf.rule.Kind {
	case FilterSubstring:
		return cf.bindSubstring(value), nil
	case FilterExact:
		return cf.bindExact(value), nil
	case FilterNumericRange:
		return cf.bindNumericRange(value)
	case FilterDateRange:
		return cf.bindDateRange(value)
	case FilterCustom:
		return cf.bindCustom(value), nil
	}
	return nil, fmt.Errorf("%w: kind '%s'", ErrInvalidRule, cf.rule.Kind)
}

func (cf compiledFilter) bindSubstring(value any) boundFilter {
	text := strings.TrimSpace(schema.Stringify(value))
	if text == "" {
		return nil
	}
	fold := newFolder(cf.rule.FoldWidth)
	needle := fold(text)
	fields := cf.rule.Fields
	allowNull := cf.rule.AllowNull

	return func(doc schema.Document) bool {
		present := false
		for _, field := range fields {
			raw, ok := doc.Get(field)
			if !ok {
				continue
			}
			present = true
			if strings.Contains(fold(schema.Stringify(raw)), needle) {
				return true
			}
		}
		return !present && allowNull
	}
}

// newFolder returns a case folder, optionally width folding first. Casers
// keep state, so each bound rule gets its own.
func newFolder(foldWidth bool) func(string) string {
	caser := cases.Fold()
	if foldWidth {
		return func(s string) string { return caser.String(width.Fold.String(s)) }
	}
	return caser.String
}

func (cf compiledFilter) bindExact(value any) boundFilter {
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	if _, unset := cf.sentinels[strings.TrimSpace(schema.Stringify(value))]; unset {
		return nil
	}
	field := cf.rule.Fields[0]
	allowNull := cf.rule.AllowNull

	return func(doc schema.Document) bool {
		raw, ok := doc.Get(field)
		if !ok {
			return allowNull
		}
		return EqualValues(raw, value)
	}
}

// EqualValues compares a record value with a bound value that may have come
// from a query string, so 25 matches "25" and true matches "true".
func EqualValues(recordValue, bound any) bool {
	if reflect.DeepEqual(recordValue, bound) {
		return true
	}
	if a, ok := schema.ToDecimal(recordValue); ok {
		if b, ok := schema.ToDecimal(bound); ok {
			return a.Equal(b)
		}
	}
	return schema.Stringify(recordValue) == schema.Stringify(bound)
}

func (cf compiledFilter) bindNumericRange(value any) (boundFilter, error) {
	r, ok := toRange(value)
	if !ok {
		return nil, fmt.Errorf("%w: expected a range, got %T", ErrInvalidValue, value)
	}
	lo, hasLo, err := decimalBound(r.Min)
	if err != nil {
		return nil, err
	}
	hi, hasHi, err := decimalBound(r.Max)
	if err != nil {
		return nil, err
	}
	if !hasLo && !hasHi {
		return nil, nil
	}
	if hasLo && hasHi && lo.GreaterThan(hi) {
		return matchNothing, nil
	}
	field := cf.rule.Fields[0]
	allowNull := cf.rule.AllowNull

	return func(doc schema.Document) bool {
		raw, ok := doc.Get(field)
		if !ok {
			return allowNull
		}
		d, ok := schema.ToDecimal(raw)
		if !ok {
			return false
		}
		if hasLo && d.LessThan(lo) {
			return false
		}
		if hasHi && d.GreaterThan(hi) {
			return false
		}
		return true
	}, nil
}

func (cf compiledFilter) bindDateRange(value any) (boundFilter, error) {
	r, ok := toRange(value)
	if !ok {
		return nil, fmt.Errorf("%w: expected a range, got %T", ErrInvalidValue, value)
	}
	lo, hasLo, err := dateBound(r.Min, false)
	if err != nil {
		return nil, err
	}
	hi, hasHi, err := dateBound(r.Max, true)
	if err != nil {
		return nil, err
	}
	if !hasLo && !hasHi {
		return nil, nil
	}
	if hasLo && hasHi && lo.After(hi) {
		return matchNothing, nil
	}
	field := cf.rule.Fields[0]
	allowNull := cf.rule.AllowNull

	return func(doc schema.Document) bool {
		raw, ok := doc.Get(field)
		if !ok {
			return allowNull
		}
		t, ok := schema.ToTime(raw)
		if !ok {
			return false
		}
		if hasLo && t.Before(lo) {
			return false
		}
		if hasHi && t.After(hi) {
			return false
		}
		return true
	}, nil
}

func (cf compiledFilter) bindCustom(value any) boundFilter {
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	field := cf.rule.Fields[0]
	allowNull := cf.rule.AllowNull
	predicate := cf.predicate

	return func(doc schema.Document) bool {
		if _, ok := doc.Get(field); !ok && allowNull {
			return true
		}
		return predicate(doc, field, value)
	}
}

func matchNothing(schema.Document) bool { return false }

// toRange accepts a Range, a *Range, a {"min","max"} map as decoded from JSON,
// or a two-element slice.
func toRange(value any) (Range, bool) {
	switch r := value.(type) {
	case Range:
		return r, true
	case *Range:
		if r == nil {
			return Range{}, true
		}
		return *r, true
	case map[string]any:
		return Range{Min: r["min"], Max: r["max"]}, true
	case []any:
		if len(r) == 2 {
			return Range{Min: r[0], Max: r[1]}, true
		}
	}
	return Range{}, false
}

func isOpenBound(b any) bool {
	if b == nil {
		return true
	}
	s, ok := b.(string)
	return ok && strings.TrimSpace(s) == ""
}

func decimalBound(b any) (decimal.Decimal, bool, error) {
	if isOpenBound(b) {
		return decimal.Zero, false, nil
	}
	d, ok := schema.ToDecimal(b)
	if !ok {
		return decimal.Zero, false, fmt.Errorf("%w: '%v' is not a number", ErrInvalidValue, b)
	}
	return d, true, nil
}

// dayLayouts are bound formats that name a whole calendar day.
var dayLayouts = []string{"2006-01-02", "2006/01/02"}

// dateBound parses a range bound. An upper bound given as a bare date covers
// that whole day.
func dateBound(b any, upper bool) (time.Time, bool, error) {
	if isOpenBound(b) {
		return time.Time{}, false, nil
	}
	if s, ok := b.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range dayLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				if upper {
					t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
				}
				return t, true, nil
			}
		}
	}
	t, ok := schema.ToTime(b)
	if !ok {
		return time.Time{}, false, fmt.Errorf("%w: '%v' is not a date", ErrInvalidValue, b)
	}
	return t, true, nil
}
