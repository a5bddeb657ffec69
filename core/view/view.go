package view

import (
	"fmt"
	"slices"

	"github.com/asaidimu/go-tabula/core/schema"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// View is a checked, immutable view definition bound to a schema. A View is
// safe for concurrent use; every Compute call is independent.
type View struct {
	schema     *schema.SchemaDefinition
	def        Definition
	locale     language.Tag
	filters    []compiledFilter
	sorts      map[string]compiledSort
	aggregates []compiledAggregate
	predicates *PredicateRegistry
	logger     *zap.Logger
}

// Option configures Define.
type Option func(*View)

// WithPredicates makes the predicates of a registry available to custom rules.
func WithPredicates(registry *PredicateRegistry) Option {
	return func(v *View) { v.predicates = registry }
}

// WithLogger sets the logger used for stage-level debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Define checks a Definition against a schema and returns a View ready to
// compute. Every configuration problem is reported here, as a *ConfigError,
// so that nothing fails once rows are flowing.
func Define(s *schema.SchemaDefinition, def Definition, opts ...Option) (*View, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("cannot define view: %w", err)
	}

	v := &View{
		schema: s,
		sorts:  make(map[string]compiledSort, len(def.Sorts)),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}

	locale, err := parseLocale(def.Locale)
	if err != nil {
		return nil, configErr("locale", "", ErrInvalidRule, "bad locale '%s': %v", def.Locale, err)
	}
	v.locale = locale

	seen := make(map[string]struct{}, len(def.Filters))
	for _, rule := range def.Filters {
		if rule.Name == "" {
			return nil, configErr("", "", ErrInvalidRule, "filter rule needs a name")
		}
		if _, dup := seen[rule.Name]; dup {
			return nil, configErr(rule.Name, "", ErrInvalidRule, "duplicate filter rule")
		}
		seen[rule.Name] = struct{}{}

		cf, err := v.compileFilter(rule)
		if err != nil {
			return nil, err
		}
		v.filters = append(v.filters, cf)
	}

	for _, rule := range def.Sorts {
		if rule.Name == "" {
			return nil, configErr("", rule.Field, ErrInvalidRule, "sort rule needs a name")
		}
		if _, dup := v.sorts[rule.Name]; dup {
			return nil, configErr(rule.Name, rule.Field, ErrInvalidRule, "duplicate sort rule")
		}
		cs, err := v.compileSort(rule)
		if err != nil {
			return nil, err
		}
		v.sorts[rule.Name] = cs
	}
	if def.DefaultSort != "" {
		if _, ok := v.sorts[def.DefaultSort]; !ok {
			return nil, configErr(def.DefaultSort, "", ErrUnknownSort, "default sort is not declared")
		}
	}

	names := make(map[string]struct{}, len(def.Aggregates))
	for _, rule := range def.Aggregates {
		if rule.Name == "" {
			return nil, configErr("", rule.Field, ErrInvalidRule, "aggregate needs a name")
		}
		if _, dup := names[rule.Name]; dup {
			return nil, configErr(rule.Name, rule.Field, ErrInvalidRule, "duplicate aggregate")
		}
		names[rule.Name] = struct{}{}
		ca, err := v.compileAggregate(rule)
		if err != nil {
			return nil, err
		}
		v.aggregates = append(v.aggregates, ca)
	}

	v.def = cloneDefinition(def)
	return v, nil
}

// MustDefine is like Define but panics on a configuration error. It is meant
// for package-level view declarations.
func MustDefine(s *schema.SchemaDefinition, def Definition, opts ...Option) *View {
	v, err := Define(s, def, opts...)
	if err != nil {
		panic(err)
	}
	return v
}

// lookupField resolves a rule's field against the schema.
func (v *View) lookupField(rule, field string) (*schema.FieldDefinition, error) {
	if field == "" {
		return nil, configErr(rule, field, ErrInvalidRule, "rule needs a field")
	}
	def := v.schema.FindField(field)
	if def == nil {
		return nil, configErr(rule, field, ErrUnknownField, "not declared in schema '%s'", v.schema.Name)
	}
	return def, nil
}

// Compute runs the filter, sort and aggregate stages over records for the
// given state. records is never modified; the returned rows share the record
// maps with the input. An error is returned only when the state binds a value
// a rule cannot use.
func (v *View) Compute(records []schema.Document, state ViewState) (*Result, error) {
	active, err := v.bindFilters(state)
	if err != nil {
		return nil, err
	}
	order, err := v.selectSort(state)
	if err != nil {
		return nil, err
	}

	rows := make([]schema.Document, 0, len(records))
	for _, record := range records {
		if matchesAll(active, record) {
			rows = append(rows, record)
		}
	}
	v.logger.Debug("Rows remaining after filters",
		zap.String("schema", v.schema.Name),
		zap.Int("total", len(records)),
		zap.Int("count", len(rows)))

	if order != nil {
		rows = order.apply(rows)
	}

	return &Result{
		Rows:       rows,
		Aggregates: v.aggregate(rows),
		Total:      len(records),
		Matched:    len(rows),
	}, nil
}

func matchesAll(active []boundFilter, record schema.Document) bool {
	for _, f := range active {
		if !f(record) {
			return false
		}
	}
	return true
}

// selectSort resolves the sort rule chosen by the state, falling back to the
// default sort. A nil result means rows keep their filtered order.
func (v *View) selectSort(state ViewState) (*boundSort, error) {
	name := state.Sort
	if name == "" {
		name = v.def.DefaultSort
	}
	if name == "" {
		return nil, nil
	}
	cs, ok := v.sorts[name]
	if !ok {
		return nil, &StateError{Rule: name, Err: ErrUnknownSort}
	}
	direction := cs.rule.Direction
	switch state.Direction {
	case "":
	case SortAsc, SortDesc:
		direction = state.Direction
	default:
		return nil, &StateError{Rule: name, Err: fmt.Errorf("%w: direction '%s'", ErrInvalidValue, state.Direction)}
	}
	return &boundSort{sort: cs, direction: direction}, nil
}

// Options returns the distinct non-empty values of field across records in
// collated order, for populating enumerated filter choices.
func (v *View) Options(records []schema.Document, field string) ([]string, error) {
	if _, err := v.lookupField("options", field); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	values := make([]string, 0)
	for _, record := range records {
		raw, ok := record.Get(field)
		if !ok {
			continue
		}
		s := schema.Stringify(raw)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		values = append(values, s)
	}
	col := newCollator(v.locale, CollationOptions{Numeric: true})
	slices.SortStableFunc(values, col.CompareString)
	return values, nil
}

// Clear returns the state a freshly mounted view starts from.
func (v *View) Clear() ViewState {
	return NewViewState()
}

// Rules returns a copy of the view's definition.
func (v *View) Rules() Definition {
	return cloneDefinition(v.def)
}

// Schema returns the schema the view was defined against.
func (v *View) Schema() *schema.SchemaDefinition {
	return v.schema
}

func cloneDefinition(def Definition) Definition {
	out := Definition{
		Locale:      def.Locale,
		Sorts:       slices.Clone(def.Sorts),
		DefaultSort: def.DefaultSort,
		Aggregates:  slices.Clone(def.Aggregates),
	}
	for _, f := range def.Filters {
		f.Fields = slices.Clone(f.Fields)
		f.Sentinels = slices.Clone(f.Sentinels)
		out.Filters = append(out.Filters, f)
	}
	return out
}

func parseLocale(tag string) (language.Tag, error) {
	if tag == "" {
		return language.Und, nil
	}
	return language.Parse(tag)
}
