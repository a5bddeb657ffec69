package view

import (
	"slices"
	"time"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// compiledSort is a SortRule with its strategy and locale resolved.
type compiledSort struct {
	rule     SortRule
	strategy SortStrategy
	locale   language.Tag
}

// boundSort is a compiledSort with the direction chosen by a ViewState.
type boundSort struct {
	sort      compiledSort
	direction SortDirection
}

func (v *View) compileSort(rule SortRule) (compiledSort, error) {
	cs := compiledSort{rule: rule, locale: v.locale}

	def, err := v.lookupField(rule.Name, rule.Field)
	if err != nil {
		return cs, err
	}
	if def.Type.IsNested() || def.Type == schema.FieldTypeArray {
		return cs, configErr(rule.Name, rule.Field, ErrInvalidRule, "cannot sort by %s field", def.Type)
	}

	switch rule.Direction {
	case "":
		cs.rule.Direction = SortAsc
	case SortAsc, SortDesc:
	default:
		return cs, configErr(rule.Name, rule.Field, ErrInvalidRule, "unknown direction '%s'", rule.Direction)
	}

	switch rule.Strategy {
	case "":
		cs.strategy = inferStrategy(def.Type)
	case SortCollate, SortNumeric, SortDate:
		cs.strategy = rule.Strategy
	default:
		return cs, configErr(rule.Name, rule.Field, ErrInvalidRule, "unknown strategy '%s'", rule.Strategy)
	}

	if rule.Collation.Locale != "" {
		tag, err := language.Parse(rule.Collation.Locale)
		if err != nil {
			return cs, configErr(rule.Name, rule.Field, ErrInvalidRule, "bad locale '%s': %v", rule.Collation.Locale, err)
		}
		cs.locale = tag
	}
	return cs, nil
}

func inferStrategy(t schema.FieldType) SortStrategy {
	switch {
	case t.IsNumeric():
		return SortNumeric
	case t == schema.FieldTypeDate:
		return SortDate
	default:
		return SortCollate
	}
}

// sortKey is one row's extracted key. Rows whose key is missing or
// unparseable always sort after the rest.
type sortKey struct {
	missing bool
	text    string
	number  decimal.Decimal
	when    time.Time
}

// apply returns a stably sorted copy of rows.
func (b *boundSort) apply(rows []schema.Document) []schema.Document {
	type keyed struct {
		key sortKey
		row schema.Document
	}
	items := make([]keyed, len(rows))
	for i, row := range rows {
		items[i] = keyed{key: b.sort.extract(row), row: row}
	}

	compare := b.sort.comparator()
	desc := b.direction == SortDesc
	slices.SortStableFunc(items, func(x, y keyed) int {
		switch {
		case x.key.missing && y.key.missing:
			return 0
		case x.key.missing:
			return 1
		case y.key.missing:
			return -1
		}
		c := compare(x.key, y.key)
		if desc {
			return -c
		}
		return c
	})

	out := make([]schema.Document, len(items))
	for i, it := range items {
		out[i] = it.row
	}
	return out
}

func (cs compiledSort) extract(row schema.Document) sortKey {
	raw, ok := row.Get(cs.rule.Field)
	if !ok {
		return sortKey{missing: true}
	}
	switch cs.strategy {
	case SortNumeric:
		d, ok := schema.ToDecimal(raw)
		return sortKey{missing: !ok, number: d}
	case SortDate:
		t, ok := schema.ToTime(raw)
		return sortKey{missing: !ok, when: t}
	default:
		return sortKey{text: schema.Stringify(raw)}
	}
}

// comparator returns the key comparison for the strategy. Collators are not
// safe for concurrent use, so one is built per sort.
func (cs compiledSort) comparator() func(a, b sortKey) int {
	switch cs.strategy {
	case SortNumeric:
		return func(a, b sortKey) int { return a.number.Cmp(b.number) }
	case SortDate:
		return func(a, b sortKey) int { return a.when.Compare(b.when) }
	default:
		col := newCollator(cs.locale, cs.rule.Collation)
		return func(a, b sortKey) int { return col.CompareString(a.text, b.text) }
	}
}

func newCollator(tag language.Tag, opts CollationOptions) *collate.Collator {
	var options []collate.Option
	if opts.Numeric {
		options = append(options, collate.Numeric)
	}
	if opts.Loose {
		options = append(options, collate.Loose)
	}
	return collate.New(tag, options...)
}
