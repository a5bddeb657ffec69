package view

import (
	"errors"
	"testing"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func slipSchema() *schema.SchemaDefinition {
	return &schema.SchemaDefinition{
		Name: "slips",
		Key:  "id",
		Fields: map[string]*schema.FieldDefinition{
			"id":     {Type: schema.FieldTypeInteger},
			"name":   {Type: schema.FieldTypeString, Label: "Name"},
			"kana":   {Type: schema.FieldTypeString},
			"area":   {Type: schema.FieldTypeEnum, Values: []any{"Shinjuku", "Shibuya", "Ikebukuro"}},
			"amount": {Type: schema.FieldTypeCurrency, Scale: ptr(int32(0))},
			"fee":    {Type: schema.FieldTypeCurrency, Scale: ptr(int32(2))},
			"age":    {Type: schema.FieldTypeInteger},
			"joined": {Type: schema.FieldTypeDate},
			"active": {Type: schema.FieldTypeBoolean},
			"vehicle": {Type: schema.FieldTypeObject, Fields: map[string]*schema.FieldDefinition{
				"plate": {Type: schema.FieldTypeString},
			}},
		},
	}
}

func slipDefinition() Definition {
	return NewViewBuilder().
		Locale("ja").
		Where("search").Contains("name", "kana").
		Where("area").Equals("area", "すべて").
		Where("amount").Between("amount").
		Where("joined").Dated("joined").
		SortBy("amount", "amount").End().
		SortBy("name", "name").Collate(CollationOptions{Numeric: true, Loose: true}).End().
		SortBy("joined", "joined").Desc().End().
		Count("count").
		Sum("total", "amount").
		Avg("average", "amount").
		Min("lowest", "amount").
		Max("highest", "amount").
		CountWhere("shinjuku", "area", "Shinjuku").
		Build()
}

func slipRecords() []schema.Document {
	return []schema.Document{
		{"id": 1, "name": "山田太郎", "kana": "やまだたろう", "area": "Shinjuku", "amount": 100, "joined": "2024-01-15"},
		{"id": 2, "name": "鈴木一郎", "kana": "すずきいちろう", "area": "Shibuya", "amount": 200, "joined": "2024-02-01"},
		{"id": 3, "name": "佐藤花子", "kana": "さとうはなこ", "area": "Shinjuku", "amount": 300, "joined": "2024-02-29T18:30:00Z"},
	}
}

func TestDefine(t *testing.T) {
	v, err := Define(slipSchema(), slipDefinition())
	require.NoError(t, err)
	assert.Equal(t, "slips", v.Schema().Name)
	assert.Len(t, v.Rules().Filters, 4)
}

func TestDefine_ConfigErrors(t *testing.T) {
	registry := NewPredicateRegistry(nil)
	tests := []struct {
		name    string
		def     Definition
		wantErr error
	}{
		{"unknown filter field", NewViewBuilder().Where("q").Contains("nickname").Build(), ErrUnknownField},
		{"unknown nested field", NewViewBuilder().Where("q").Contains("vehicle.color").Build(), ErrUnknownField},
		{"unknown sort field", NewViewBuilder().SortBy("s", "rank").End().Build(), ErrUnknownField},
		{"unknown aggregate field", NewViewBuilder().Sum("t", "price").Build(), ErrUnknownField},
		{"range over text", NewViewBuilder().Where("r").Between("name").Build(), ErrInvalidRule},
		{"date range over number", NewViewBuilder().Where("r").Dated("age").Build(), ErrInvalidRule},
		{"sum over text", NewViewBuilder().Sum("t", "name").Build(), ErrInvalidRule},
		{"substring over object", NewViewBuilder().Where("q").Contains("vehicle").Build(), ErrInvalidRule},
		{"duplicate filter", NewViewBuilder().Where("q").Contains("name").Where("q").Contains("kana").Build(), ErrInvalidRule},
		{"duplicate aggregate", NewViewBuilder().Count("n").Count("n").Build(), ErrInvalidRule},
		{"undeclared default sort", NewViewBuilder().DefaultSort("missing").Build(), ErrUnknownSort},
		{"unregistered predicate", NewViewBuilder().Where("c").Custom("age", "adult").Build(), ErrInvalidRule},
		{"count where without value", NewViewBuilder().CountWhere("n", "area", nil).Build(), ErrInvalidRule},
		{"bad locale", NewViewBuilder().Locale("not a locale!").Build(), ErrInvalidRule},
		{"unknown kind", Definition{Filters: []FilterRule{{Name: "x", Kind: "fuzzy", Fields: []string{"name"}}}}, ErrInvalidRule},
		{"exact over two fields", Definition{Filters: []FilterRule{{Name: "x", Kind: FilterExact, Fields: []string{"name", "kana"}}}}, ErrInvalidRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Define(slipSchema(), tt.def, WithPredicates(registry))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestDefine_InvalidSchema(t *testing.T) {
	_, err := Define(&schema.SchemaDefinition{Name: "empty"}, Definition{})
	assert.ErrorIs(t, err, schema.ErrInvalidSchema)
}

func TestMustDefine_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustDefine(slipSchema(), NewViewBuilder().Where("q").Contains("nope").Build())
	})
}

func TestCompute_Search(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	records := []schema.Document{{"name": "山田太郎"}, {"name": "鈴木一郎"}}

	result, err := v.Compute(records, NewViewState().With("search", "太郎"))
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "山田太郎", result.Rows[0]["name"])
}

func TestCompute_SearchIsCaseInsensitiveAcrossFields(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	records := []schema.Document{
		{"name": "Alice", "kana": "ありす"},
		{"name": "Bob", "kana": "ぼぶ"},
		{"kana": "ALICE"},
	}

	result, err := v.Compute(records, NewViewState().With("search", "alice"))
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)

	result, err = v.Compute(records, NewViewState().With("search", "ぼぶ"))
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Bob", result.Rows[0]["name"])
}

func TestCompute_FoldWidth(t *testing.T) {
	def := NewViewBuilder().Where("q").Contains("name").FoldWidth("q").Build()
	v := MustDefine(slipSchema(), def)
	records := []schema.Document{{"name": "ＡＢＣ商事"}, {"name": "XYZ"}}

	result, err := v.Compute(records, NewViewState().With("q", "abc"))
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
}

func TestCompute_FilterAndAggregate(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())

	result, err := v.Compute(slipRecords(), NewViewState().With("area", "Shinjuku"))
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Matched)

	want := map[string]string{
		"count":    "2",
		"total":    "400",
		"average":  "200",
		"lowest":   "100",
		"highest":  "300",
		"shinjuku": "2",
	}
	for name, value := range want {
		agg, ok := result.Aggregate(name)
		require.True(t, ok, name)
		assert.True(t, agg.Value.Equal(decimal.RequireFromString(value)), "%s = %s", name, agg.Value)
	}
}

func TestCompute_Sentinels(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	for _, value := range []any{"", "all", "すべて", nil} {
		result, err := v.Compute(slipRecords(), NewViewState().With("area", value))
		require.NoError(t, err)
		assert.Len(t, result.Rows, 3, "value %v", value)
	}
}

func TestCompute_ExactTrimsInput(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	for _, value := range []string{"Shinjuku", " Shinjuku", "Shinjuku\t", "　Shinjuku "} {
		result, err := v.Compute(slipRecords(), NewViewState().With("area", value))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 3}, ids(result.Rows), "value %q", value)
	}
}

func TestCompute_EmptyInput(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())

	result, err := v.Compute(nil, NewViewState().With("search", "x").SortBy("amount", SortDesc))
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.NotNil(t, result.Rows)
	require.Len(t, result.Aggregates, 6)
	for _, agg := range result.Aggregates {
		assert.True(t, agg.Value.IsZero(), agg.Name)
	}
}

func TestCompute_NumericRange(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	tests := []struct {
		name  string
		value any
		want  []int
	}{
		{"inclusive bounds", Range{Min: 100, Max: 200}, []int{1, 2}},
		{"open max", Range{Min: 200}, []int{2, 3}},
		{"open min", Range{Max: "150"}, []int{1}},
		{"empty bounds are inactive", Range{Min: "", Max: ""}, []int{1, 2, 3}},
		{"inverted matches nothing", Range{Min: 100, Max: 50}, nil},
		{"json map", map[string]any{"min": 250.0}, []int{3}},
		{"pair", []any{"100", "100"}, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.Compute(slipRecords(), NewViewState().With("amount", tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(result.Rows))
		})
	}
}

func TestCompute_DateRange(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	tests := []struct {
		name   string
		lo, hi any
		want   []int
	}{
		{"february", "2024-02-01", "2024-02-29", []int{2, 3}},
		{"slash layout", "2024/01/01", "2024/01/31", []int{1}},
		{"open end", "2024-02-02", nil, []int{3}},
		{"inverted", "2024-03-01", "2024-01-01", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.Compute(slipRecords(), NewViewState().WithRange("joined", tt.lo, tt.hi))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(result.Rows))
		})
	}
}

func TestCompute_MissingFields(t *testing.T) {
	records := []schema.Document{
		{"id": 1, "name": "A", "amount": 100},
		{"id": 2},
	}

	strict := MustDefine(slipSchema(), slipDefinition())
	result, err := strict.Compute(records, NewViewState().WithRange("amount", 0, 1000).With("search", "a"))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids(result.Rows))

	lenient := MustDefine(slipSchema(), NewViewBuilder().
		Where("amount").Between("amount").AllowNull("amount").
		Sum("total", "amount").CountField("priced", "amount").
		Build())
	result, err = lenient.Compute(records, NewViewState().WithRange("amount", 0, 1000))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids(result.Rows))

	total, _ := result.Aggregate("total")
	assert.Equal(t, "100", total.Value.String())
	priced, _ := result.Aggregate("priced")
	assert.Equal(t, "1", priced.Value.String())
}

func TestCompute_InvalidState(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	tests := []struct {
		name    string
		state   ViewState
		wantErr error
	}{
		{"bad number", NewViewState().WithRange("amount", "abc", nil), ErrInvalidValue},
		{"bad date", NewViewState().WithRange("joined", "yesterday", nil), ErrInvalidValue},
		{"not a range", NewViewState().With("amount", 5), ErrInvalidValue},
		{"unknown sort", NewViewState().SortBy("rank", SortAsc), ErrUnknownSort},
		{"bad direction", NewViewState().SortBy("amount", "sideways"), ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Compute(slipRecords(), tt.state)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			var stateErr *StateError
			assert.True(t, errors.As(err, &stateErr))
		})
	}
}

func TestCompute_Sort(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())

	result, err := v.Compute(slipRecords(), NewViewState().SortBy("amount", SortDesc))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, ids(result.Rows))

	result, err = v.Compute(slipRecords(), NewViewState().SortBy("joined", ""))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, ids(result.Rows))

	result, err = v.Compute(slipRecords(), NewViewState().SortBy("joined", SortAsc))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids(result.Rows))
}

func TestCompute_NumericCollation(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	records := []schema.Document{
		{"id": 1, "name": "room 10"},
		{"id": 2, "name": "room 2"},
		{"id": 3, "name": "Room 1"},
	}

	result, err := v.Compute(records, NewViewState().SortBy("name", SortAsc))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, ids(result.Rows))
}

func TestCompute_SortIsStable(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	records := []schema.Document{
		{"id": 1, "amount": 200},
		{"id": 2, "amount": 100},
		{"id": 3, "amount": 200},
		{"id": 4, "amount": 100},
		{"id": 5, "amount": 200},
	}

	result, err := v.Compute(records, NewViewState().SortBy("amount", SortAsc))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 1, 3, 5}, ids(result.Rows))

	result, err = v.Compute(records, NewViewState().SortBy("amount", SortDesc))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5, 2, 4}, ids(result.Rows))
}

func TestCompute_MissingKeysSortLast(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	records := []schema.Document{
		{"id": 1},
		{"id": 2, "amount": 100},
		{"id": 3, "amount": "n/a"},
		{"id": 4, "amount": 300},
	}

	for _, dir := range []SortDirection{SortAsc, SortDesc} {
		result, err := v.Compute(records, NewViewState().SortBy("amount", dir))
		require.NoError(t, err)
		got := ids(result.Rows)
		assert.Equal(t, []int{1, 3}, got[2:], "direction %s", dir)
	}
}

func TestCompute_DefaultSort(t *testing.T) {
	def := slipDefinition()
	def.DefaultSort = "amount"
	v := MustDefine(slipSchema(), def)
	records := []schema.Document{{"id": 1, "amount": 3}, {"id": 2, "amount": 1}}

	result, err := v.Compute(records, v.Clear())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, ids(result.Rows))
}

func TestCompute_CurrencyScale(t *testing.T) {
	v := MustDefine(slipSchema(), NewViewBuilder().Sum("fees", "fee").Avg("avg", "fee").Build())
	records := make([]schema.Document, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, schema.Document{"fee": 0.1})
	}
	records = append(records, schema.Document{"fee": "0.2"})

	result, err := v.Compute(records, NewViewState())
	require.NoError(t, err)
	fees, _ := result.Aggregate("fees")
	assert.Equal(t, "1.2", fees.Value.String())
	assert.InDelta(t, 1.2, fees.Float64(), 1e-9)
	avg, _ := result.Aggregate("avg")
	assert.Equal(t, "0.11", avg.Value.String())
}

func TestCompute_CurrencySumIsExact(t *testing.T) {
	tests := []struct {
		name    string
		amounts []any
		sum     string
		avg     string
	}{
		{"fractions under scale 0", []any{0.5, 0.5, 0.4}, "1.4", "0.4666666666666667"},
		{"beyond int64", []any{"9200000000000000000", "9200000000000000000"}, "18400000000000000000", "9200000000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &schema.SchemaDefinition{
				Name:   "totals",
				Fields: map[string]*schema.FieldDefinition{"amount": {Type: schema.FieldTypeCurrency}},
			}
			v := MustDefine(sc, NewViewBuilder().Sum("sum", "amount").Avg("avg", "amount").Build())
			records := make([]schema.Document, 0, len(tt.amounts))
			for _, a := range tt.amounts {
				records = append(records, schema.Document{"amount": a})
			}

			result, err := v.Compute(records, NewViewState())
			require.NoError(t, err)
			sum, _ := result.Aggregate("sum")
			assert.Equal(t, tt.sum, sum.Value.String())
			avg, _ := result.Aggregate("avg")
			assert.Equal(t, tt.avg, avg.Value.String())
		})
	}
}

func TestCompute_CustomPredicate(t *testing.T) {
	registry := NewPredicateRegistry(nil)
	registry.Register("at_least", func(doc schema.Document, field string, value any) bool {
		raw, ok := doc.Get(field)
		if !ok {
			return false
		}
		have, ok1 := schema.ToFloat64(raw)
		want, ok2 := schema.ToFloat64(value)
		return ok1 && ok2 && have >= want
	})
	def := NewViewBuilder().Where("adult").Custom("age", "at_least").Build()
	v := MustDefine(slipSchema(), def, WithPredicates(registry))
	records := []schema.Document{{"id": 1, "age": 17}, {"id": 2, "age": 21}, {"id": 3}}

	result, err := v.Compute(records, NewViewState().With("adult", 20))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ids(result.Rows))

	result, err = v.Compute(records, NewViewState().With("adult", ""))
	require.NoError(t, err)
	assert.Len(t, result.Rows, 3)
}

func TestCompute_NestedField(t *testing.T) {
	def := NewViewBuilder().Where("plate").Contains("vehicle.plate").Build()
	v := MustDefine(slipSchema(), def)
	records := []schema.Document{
		{"id": 1, "vehicle": map[string]any{"plate": "品川 300 あ 12-34"}},
		{"id": 2, "vehicle": map[string]any{"plate": "練馬 500 さ 99-99"}},
	}

	result, err := v.Compute(records, NewViewState().With("plate", "品川"))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids(result.Rows))
}

func TestCompute_Properties(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	records := slipRecords()
	before := cloneRecords(records)
	state := NewViewState().With("area", "Shinjuku").WithRange("amount", 50, nil).SortBy("name", SortAsc)

	first, err := v.Compute(records, state)
	require.NoError(t, err)
	second, err := v.Compute(records, state)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first, second), "compute is not idempotent")
	assert.Empty(t, cmp.Diff(before, records), "input was modified")
	assert.LessOrEqual(t, len(first.Rows), len(records))
	for _, row := range first.Rows {
		assert.Equal(t, "Shinjuku", row["area"])
	}
}

func TestOptions(t *testing.T) {
	v := MustDefine(slipSchema(), slipDefinition())
	records := []schema.Document{
		{"area": "Shinjuku"},
		{"area": "Ikebukuro"},
		{"area": "Shinjuku"},
		{"area": ""},
		{},
		{"area": "Akasaka"},
	}

	options, err := v.Options(records, "area")
	require.NoError(t, err)
	assert.Equal(t, []string{"Akasaka", "Ikebukuro", "Shinjuku"}, options)

	_, err = v.Options(records, "zone")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestAggregateResult_MarshalJSON(t *testing.T) {
	data, err := AggregateResult{Name: "total", Value: decimal.RequireFromString("12.50")}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"total","value":12.5}`, string(data))
}

func TestViewState_CopyOnWrite(t *testing.T) {
	base := NewViewState().With("search", "a")
	next := base.With("search", "b").SortBy("amount", SortDesc)

	assert.Equal(t, "a", base.Filters["search"])
	assert.Equal(t, "", base.Sort)
	assert.Equal(t, "b", next.Filters["search"])
	assert.Equal(t, SortDesc, next.Direction)
}

func TestViewBuilder_CloneAndReset(t *testing.T) {
	vb := NewViewBuilder().Where("q").Contains("name").Count("n")
	clone := vb.Clone()
	clone.Where("area").Equals("area")

	assert.Len(t, vb.Build().Filters, 1)
	assert.Len(t, clone.Build().Filters, 2)

	vb.Reset()
	assert.Equal(t, Definition{}, vb.Build().normalized())
}

func ids(rows []schema.Document) []int {
	var out []int
	for _, row := range rows {
		out = append(out, row["id"].(int))
	}
	return out
}

func cloneRecords(records []schema.Document) []schema.Document {
	out := make([]schema.Document, len(records))
	for i, r := range records {
		c := make(schema.Document, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}

// normalized drops empty-but-allocated slices so builder output compares
// equal to a zero Definition.
func (d Definition) normalized() Definition {
	if len(d.Filters) == 0 {
		d.Filters = nil
	}
	if len(d.Sorts) == 0 {
		d.Sorts = nil
	}
	if len(d.Aggregates) == 0 {
		d.Aggregates = nil
	}
	return d
}
