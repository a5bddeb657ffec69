package view

import "slices"

// ViewBuilder provides a fluent API for building view Definitions. Build
// only assembles the rules; Define is where they are checked.
type ViewBuilder struct {
	def Definition
}

// NewViewBuilder creates a new, empty view builder.
func NewViewBuilder() *ViewBuilder {
	return &ViewBuilder{}
}

// Build returns the constructed Definition.
func (vb *ViewBuilder) Build() Definition {
	return vb.Clone().def
}

// Clone returns an independent copy of the builder.
func (vb *ViewBuilder) Clone() *ViewBuilder {
	next := &ViewBuilder{def: Definition{
		Filters:     make([]FilterRule, 0, len(vb.def.Filters)),
		Sorts:       slices.Clone(vb.def.Sorts),
		DefaultSort: vb.def.DefaultSort,
		Aggregates:  slices.Clone(vb.def.Aggregates),
		Locale:      vb.def.Locale,
	}}
	for _, f := range vb.def.Filters {
		f.Fields = slices.Clone(f.Fields)
		f.Sentinels = slices.Clone(f.Sentinels)
		next.def.Filters = append(next.def.Filters, f)
	}
	return next
}

// Reset clears all rules from the builder.
func (vb *ViewBuilder) Reset() *ViewBuilder {
	vb.def = Definition{}
	return vb
}

// Locale sets the default collation locale, a BCP 47 tag such as "ja".
func (vb *ViewBuilder) Locale(tag string) *ViewBuilder {
	vb.def.Locale = tag
	return vb
}

// FilterRuleBuilder binds a named filter rule to its kind and fields.
type FilterRuleBuilder struct {
	parent *ViewBuilder
	name   string
}

// Where begins a filter rule named name. The name is the key the rule's value
// is bound under in a ViewState.
func (vb *ViewBuilder) Where(name string) *FilterRuleBuilder {
	return &FilterRuleBuilder{parent: vb, name: name}
}

// Contains matches records where any of fields contains the bound text,
// ignoring case.
func (fb *FilterRuleBuilder) Contains(fields ...string) *ViewBuilder {
	return fb.add(FilterRule{Kind: FilterSubstring, Fields: fields})
}

// Equals matches records whose field equals the bound value. "all" and any
// extra sentinels leave the rule inactive.
func (fb *FilterRuleBuilder) Equals(field string, sentinels ...string) *ViewBuilder {
	return fb.add(FilterRule{Kind: FilterExact, Fields: []string{field}, Sentinels: sentinels})
}

// Between matches records whose numeric field lies within the bound Range.
func (fb *FilterRuleBuilder) Between(field string) *ViewBuilder {
	return fb.add(FilterRule{Kind: FilterNumericRange, Fields: []string{field}})
}

// Dated matches records whose date field lies within the bound Range.
func (fb *FilterRuleBuilder) Dated(field string) *ViewBuilder {
	return fb.add(FilterRule{Kind: FilterDateRange, Fields: []string{field}})
}

// Custom matches records with the predicate registered under operator.
func (fb *FilterRuleBuilder) Custom(field, operator string) *ViewBuilder {
	return fb.add(FilterRule{Kind: FilterCustom, Fields: []string{field}, Operator: operator})
}

func (fb *FilterRuleBuilder) add(rule FilterRule) *ViewBuilder {
	rule.Name = fb.name
	fb.parent.def.Filters = append(fb.parent.def.Filters, rule)
	return fb.parent
}

// AllowNull lets records missing the field pass the named filter rule.
func (vb *ViewBuilder) AllowNull(rule string) *ViewBuilder {
	for i := range vb.def.Filters {
		if vb.def.Filters[i].Name == rule {
			vb.def.Filters[i].AllowNull = true
		}
	}
	return vb
}

// FoldWidth makes the named substring rule ignore full-width/half-width
// differences.
func (vb *ViewBuilder) FoldWidth(rule string) *ViewBuilder {
	for i := range vb.def.Filters {
		if vb.def.Filters[i].Name == rule {
			vb.def.Filters[i].FoldWidth = true
		}
	}
	return vb
}

// SortRuleBuilder configures a named sort rule.
type SortRuleBuilder struct {
	parent *ViewBuilder
	rule   SortRule
}

// SortBy begins a sort rule named name over field. It defaults to ascending
// order with a strategy inferred from the field type.
func (vb *ViewBuilder) SortBy(name, field string) *SortRuleBuilder {
	return &SortRuleBuilder{parent: vb, rule: SortRule{Name: name, Field: field, Direction: SortAsc}}
}

// Asc sorts ascending.
func (sb *SortRuleBuilder) Asc() *SortRuleBuilder {
	sb.rule.Direction = SortAsc
	return sb
}

// Desc sorts descending.
func (sb *SortRuleBuilder) Desc() *SortRuleBuilder {
	sb.rule.Direction = SortDesc
	return sb
}

// Numeric compares keys as numbers.
func (sb *SortRuleBuilder) Numeric() *SortRuleBuilder {
	sb.rule.Strategy = SortNumeric
	return sb
}

// ByDate compares keys as dates.
func (sb *SortRuleBuilder) ByDate() *SortRuleBuilder {
	sb.rule.Strategy = SortDate
	return sb
}

// Collate compares keys with locale-aware collation.
func (sb *SortRuleBuilder) Collate(opts CollationOptions) *SortRuleBuilder {
	sb.rule.Strategy = SortCollate
	sb.rule.Collation = opts
	return sb
}

// End adds the sort rule and returns to the view builder.
func (sb *SortRuleBuilder) End() *ViewBuilder {
	sb.parent.def.Sorts = append(sb.parent.def.Sorts, sb.rule)
	return sb.parent
}

// DefaultSort selects the sort rule applied when a ViewState selects none.
func (vb *ViewBuilder) DefaultSort(name string) *ViewBuilder {
	vb.def.DefaultSort = name
	return vb
}

// Count adds a count of the filtered rows.
func (vb *ViewBuilder) Count(name string) *ViewBuilder {
	return vb.aggregate(AggregateRule{Name: name, Type: AggregateCount})
}

// CountField adds a count of the filtered rows that carry a value for field.
func (vb *ViewBuilder) CountField(name, field string) *ViewBuilder {
	return vb.aggregate(AggregateRule{Name: name, Type: AggregateCount, Field: field})
}

// CountWhere adds a count of filtered rows whose field equals value.
func (vb *ViewBuilder) CountWhere(name, field string, value any) *ViewBuilder {
	return vb.aggregate(AggregateRule{Name: name, Type: AggregateCountWhere, Field: field, Value: value})
}

// Sum adds the exact sum of a numeric field.
func (vb *ViewBuilder) Sum(name, field string) *ViewBuilder {
	return vb.aggregate(AggregateRule{Name: name, Type: AggregateSum, Field: field})
}

// Avg adds the mean of a numeric field over rows that carry a value.
func (vb *ViewBuilder) Avg(name, field string) *ViewBuilder {
	return vb.aggregate(AggregateRule{Name: name, Type: AggregateAvg, Field: field})
}

// Min adds the smallest value of a numeric field.
func (vb *ViewBuilder) Min(name, field string) *ViewBuilder {
	return vb.aggregate(AggregateRule{Name: name, Type: AggregateMin, Field: field})
}

// Max adds the largest value of a numeric field.
func (vb *ViewBuilder) Max(name, field string) *ViewBuilder {
	return vb.aggregate(AggregateRule{Name: name, Type: AggregateMax, Field: field})
}

func (vb *ViewBuilder) aggregate(rule AggregateRule) *ViewBuilder {
	vb.def.Aggregates = append(vb.def.Aggregates, rule)
	return vb
}
