package view

import (
	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/shopspring/decimal"
)

type compiledAggregate struct {
	rule AggregateRule
	// round is set for currency fields with a declared scale; averages are
	// rounded to it.
	round bool
	scale int32
}

func (v *View) compileAggregate(rule AggregateRule) (compiledAggregate, error) {
	ca := compiledAggregate{rule: rule}

	switch rule.Type {
	case AggregateCount:
		if rule.Field == "" {
			return ca, nil
		}
		_, err := v.lookupField(rule.Name, rule.Field)
		return ca, err
	case AggregateCountWhere:
		if _, err := v.lookupField(rule.Name, rule.Field); err != nil {
			return ca, err
		}
		if rule.Value == nil {
			return ca, configErr(rule.Name, rule.Field, ErrInvalidRule, "count_where needs a value")
		}
		return ca, nil
	case AggregateSum, AggregateAvg, AggregateMin, AggregateMax:
		def, err := v.lookupField(rule.Name, rule.Field)
		if err != nil {
			return ca, err
		}
		if !def.Type.IsNumeric() {
			return ca, configErr(rule.Name, rule.Field, ErrInvalidRule, "%s over %s field", rule.Type, def.Type)
		}
		if def.Type == schema.FieldTypeCurrency && def.Scale != nil {
			ca.round = true
			ca.scale = def.MinorUnits()
		}
		return ca, nil
	}
	return ca, configErr(rule.Name, rule.Field, ErrInvalidRule, "unknown aggregation '%s'", rule.Type)
}

// aggregate reduces rows in declaration order. Every aggregate of an empty
// row set is zero.
func (v *View) aggregate(rows []schema.Document) []AggregateResult {
	results := make([]AggregateResult, 0, len(v.aggregates))
	for _, ca := range v.aggregates {
		results = append(results, AggregateResult{Name: ca.rule.Name, Value: ca.reduce(rows)})
	}
	return results
}

func (ca compiledAggregate) reduce(rows []schema.Document) decimal.Decimal {
	switch ca.rule.Type {
	case AggregateCount:
		if ca.rule.Field == "" {
			return decimal.NewFromInt(int64(len(rows)))
		}
		n := 0
		for _, row := range rows {
			if _, ok := row.Get(ca.rule.Field); ok {
				n++
			}
		}
		return decimal.NewFromInt(int64(n))
	case AggregateCountWhere:
		n := 0
		for _, row := range rows {
			if raw, ok := row.Get(ca.rule.Field); ok && EqualValues(raw, ca.rule.Value) {
				n++
			}
		}
		return decimal.NewFromInt(int64(n))
	}

	values := ca.numbers(rows)
	if len(values) == 0 {
		return decimal.Zero
	}

	switch ca.rule.Type {
	case AggregateSum:
		return ca.sum(values)
	case AggregateAvg:
		avg := ca.sum(values).Div(decimal.NewFromInt(int64(len(values))))
		if ca.round {
			return avg.Round(ca.scale)
		}
		return avg
	case AggregateMin:
		return decimal.Min(values[0], values[1:]...)
	case AggregateMax:
		return decimal.Max(values[0], values[1:]...)
	}
	return decimal.Zero
}

// numbers collects the field's numeric values. Rows with a missing or
// non-numeric value are skipped.
func (ca compiledAggregate) numbers(rows []schema.Document) []decimal.Decimal {
	values := make([]decimal.Decimal, 0, len(rows))
	for _, row := range rows {
		raw, ok := row.Get(ca.rule.Field)
		if !ok {
			continue
		}
		if d, ok := schema.ToDecimal(raw); ok {
			values = append(values, d)
		}
	}
	return values
}

// sum adds values exactly. Decimal coefficients are arbitrary precision, so
// large currency totals do not overflow.
func (ca compiledAggregate) sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range values {
		total = total.Add(d)
	}
	return total
}
