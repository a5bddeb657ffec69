package ledger

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/asaidimu/go-tabula/core/view"
	"github.com/asaidimu/go-tabula/export"
	"github.com/asaidimu/go-tabula/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slipLedger(t *testing.T, provider source.Provider) *Ledger {
	t.Helper()
	s := &schema.SchemaDefinition{
		Name: "income_slips",
		Key:  "id",
		Fields: map[string]*schema.FieldDefinition{
			"id":     {Type: schema.FieldTypeInteger},
			"payee":  {Type: schema.FieldTypeString, Label: "支払先"},
			"amount": {Type: schema.FieldTypeCurrency, Label: "金額"},
		},
	}
	def := view.NewViewBuilder().
		Where("search").Contains("payee").
		Where("amount").Between("amount").
		SortBy("amount", "amount").End().
		Sum("total", "amount").
		Count("count").
		Build()

	l, err := New(Spec{
		Name:       "income",
		Title:      "入金伝票",
		Schema:     s,
		View:       def,
		Provider:   provider,
		Columns:    []export.Column{{Field: "payee"}, {Field: "amount"}},
		RowNumbers: true,
	})
	require.NoError(t, err)
	return l
}

func slipRecords() []schema.Document {
	return []schema.Document{
		{"id": 1, "payee": "山田商店", "amount": 100},
		{"id": 2, "payee": "鈴木商事", "amount": 200},
		{"id": 3, "payee": "山田商事", "amount": 300},
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	l := slipLedger(t, source.NewStatic(slipRecords()...))
	require.NoError(t, r.Register(l))
	assert.ErrorIs(t, r.Register(l), ErrDuplicateLedger)

	got, err := r.Get("income")
	require.NoError(t, err)
	assert.Same(t, l, got)

	_, err = r.Get("expense")
	assert.ErrorIs(t, err, ErrUnknownLedger)
	assert.Len(t, r.Ledgers(), 1)
}

func TestRegistry_Render(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(slipLedger(t, source.NewStatic(slipRecords()...))))

	state := view.NewViewState().With("search", "山田").SortBy("amount", view.SortDesc)
	result, err := r.Render(context.Background(), "income", state)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, 3, result.Rows[0]["id"])

	total, _ := result.Aggregate("total")
	assert.Equal(t, "400", total.Value.String())
	count, _ := result.Aggregate("count")
	assert.Equal(t, "2", count.Value.String())

	_, err = r.Render(context.Background(), "income", view.NewViewState().WithRange("amount", "x", nil))
	assert.ErrorIs(t, err, view.ErrInvalidValue)
}

func TestRegistry_FetchFailure(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	upstream := errors.New("connection refused")
	require.NoError(t, r.Register(slipLedger(t, source.ProviderFunc(func(context.Context) ([]schema.Document, error) {
		return nil, upstream
	}))))

	rec := &recorder{}
	id := r.Subscribe(SubscribeOptions{Event: FetchFailed, Label: "test", Callback: rec.record})
	require.Len(t, r.Subscriptions(), 1)

	_, err = r.Render(context.Background(), "income", view.NewViewState())
	require.Error(t, err)
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "income", fetchErr.Ledger)
	assert.ErrorIs(t, err, upstream)

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	event := rec.snapshot()[0]
	assert.Equal(t, FetchFailed, event.Type)
	assert.Equal(t, "income", event.Ledger)
	require.NotNil(t, event.Error)
	assert.Equal(t, "connection refused", *event.Error)

	r.Unsubscribe(id)
	assert.Empty(t, r.Subscriptions())
}

func TestRegistry_ComputeEvents(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	rec := &recorder{}
	r.Subscribe(SubscribeOptions{Event: ComputeSuccess, Callback: rec.record})
	require.NoError(t, r.Register(slipLedger(t, source.NewStatic(slipRecords()...))))

	_, err = r.Render(context.Background(), "income", view.NewViewState().With("search", "鈴木"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	event := rec.snapshot()[0]
	require.NotNil(t, event.Rows)
	assert.Equal(t, 1, *event.Rows)
	assert.NotNil(t, event.Duration)
}

func TestRegistry_Export(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(slipLedger(t, source.NewStatic(slipRecords()...))))

	var buf bytes.Buffer
	state := view.NewViewState().WithRange("amount", 150, nil).SortBy("amount", view.SortAsc)
	require.NoError(t, r.Export(context.Background(), "income", state, FormatCSV, &buf))
	assert.Equal(t, "\"No\",\"支払先\",\"金額\"\n\"1\",\"鈴木商事\",\"200\"\n\"2\",\"山田商事\",\"300\"", buf.String())

	buf.Reset()
	require.NoError(t, r.Export(context.Background(), "income", state, FormatXLSX, &buf))
	assert.NotZero(t, buf.Len())

	assert.ErrorIs(t, r.Export(context.Background(), "income", state, "pdf", &buf), ErrUnknownFormat)
	assert.ErrorIs(t, r.Export(context.Background(), "missing", state, FormatCSV, &buf), ErrUnknownLedger)
}

func TestRegistry_ExportChecksFormatFirst(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	var fetches atomic.Int32
	require.NoError(t, r.Register(slipLedger(t, source.ProviderFunc(func(context.Context) ([]schema.Document, error) {
		fetches.Add(1)
		return slipRecords(), nil
	}))))

	var buf bytes.Buffer
	err = r.Export(context.Background(), "income", view.NewViewState(), "pdf", &buf)
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Zero(t, fetches.Load(), "an unknown format must not fetch the ledger")
	assert.Zero(t, buf.Len())

	require.NoError(t, r.Export(context.Background(), "income", view.NewViewState(), FormatCSV, &buf))
	assert.Equal(t, int32(1), fetches.Load())
}

func staffLedger(t *testing.T) *Ledger {
	t.Helper()
	s := &schema.SchemaDefinition{
		Name: "staff",
		Key:  "sfid",
		Fields: map[string]*schema.FieldDefinition{
			"sfid":    {Type: schema.FieldTypeString},
			"name":    {Type: schema.FieldTypeString, Label: "氏名"},
			"contact": {Type: schema.FieldTypeObject, Fields: map[string]*schema.FieldDefinition{"tel": {Type: schema.FieldTypeString}}},
			"phone":   {Type: schema.FieldTypeString, Label: "電話番号"},
			"wage":    {Type: schema.FieldTypeInteger},
		},
	}
	records := []schema.Document{
		{"sfid": "S001", "name": "山田太郎", "phone": "090-1234-5678", "contact": map[string]any{"tel": "03-1111-2222"}, "wage": 1200},
		{"sfid": "S002", "name": "鈴木一郎", "phone": "12", "wage": 1100},
		{"sfid": "S003", "name": "佐藤花子", "wage": 1300},
	}
	l, err := New(Spec{
		Name:     "staff",
		Schema:   s,
		View:     view.NewViewBuilder().Where("search").Contains("name").Sum("wages", "wage").Build(),
		Provider: source.NewStatic(records...),
		Columns: []export.Column{
			{Field: "sfid"},
			{Field: "name"},
			{Field: "phone", Mask: export.MaskPhone},
			{Field: "contact.tel", Label: "連絡先", Mask: export.MaskPhone},
		},
	})
	require.NoError(t, err)
	return l
}

func TestRegistry_Record(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(staffLedger(t)))
	require.NoError(t, r.Register(slipLedger(t, source.NewStatic(slipRecords()...))))

	record, err := r.Record(context.Background(), "staff", "S001")
	require.NoError(t, err)
	assert.Equal(t, "山田太郎", record["name"])
	assert.Equal(t, "***-***-5678", record["phone"])
	assert.Equal(t, "***-***-2222", record["contact"].(map[string]any)["tel"])

	slip, err := r.Record(context.Background(), "income", "2")
	require.NoError(t, err, "numeric keys match their text form")
	assert.Equal(t, "鈴木商事", slip["payee"])

	_, err = r.Record(context.Background(), "staff", "S999")
	assert.ErrorIs(t, err, ErrUnknownRecord)
	_, err = r.Record(context.Background(), "missing", "S001")
	assert.ErrorIs(t, err, ErrUnknownLedger)
}

func TestRegistry_Record_NoKey(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	s := &schema.SchemaDefinition{Name: "notes", Fields: map[string]*schema.FieldDefinition{"text": {Type: schema.FieldTypeString}}}
	l, err := New(Spec{Name: "notes", Schema: s, Provider: source.NewStatic()})
	require.NoError(t, err)
	require.NoError(t, r.Register(l))

	_, err = r.Record(context.Background(), "notes", "1")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestRegistry_MasksPersonalData(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	l := staffLedger(t)
	require.NoError(t, r.Register(l))

	result, err := r.Render(context.Background(), "staff", view.NewViewState())
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, "***-***-5678", result.Rows[0]["phone"])
	assert.Equal(t, "****", result.Rows[1]["phone"])
	_, hasPhone := result.Rows[2]["phone"]
	assert.False(t, hasPhone)
	wages, _ := result.Aggregate("wages")
	assert.Equal(t, "3600", wages.Value.String())

	raw, err := r.Fetch(context.Background(), "staff")
	require.NoError(t, err)
	assert.Equal(t, "090-1234-5678", raw[0]["phone"], "stored records are left untouched")
	assert.Equal(t, "03-1111-2222", raw[0]["contact"].(map[string]any)["tel"])

	var buf bytes.Buffer
	require.NoError(t, r.Export(context.Background(), "staff", view.NewViewState(), FormatCSV, &buf))
	assert.Contains(t, buf.String(), "\"***-***-5678\",\"***-***-2222\"")
	assert.NotContains(t, buf.String(), "090-1234-5678")

	options, err := r.Options(context.Background(), "staff", "phone")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"***-***-5678", "****"}, options)
}

func TestRegistry_Options(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(slipLedger(t, source.NewStatic(slipRecords()...))))

	options, err := r.Options(context.Background(), "income", "payee")
	require.NoError(t, err)
	assert.Len(t, options, 3)
}

func TestNew_ConfigErrors(t *testing.T) {
	s := &schema.SchemaDefinition{Name: "x", Fields: map[string]*schema.FieldDefinition{"a": {Type: schema.FieldTypeString}}}
	p := source.NewStatic()

	_, err := New(Spec{Schema: s, Provider: p})
	assert.Error(t, err)
	_, err = New(Spec{Name: "x", Schema: s})
	assert.Error(t, err)
	_, err = New(Spec{Name: "x", Schema: s, Provider: p, View: view.NewViewBuilder().Sum("t", "b").Build()})
	assert.ErrorIs(t, err, view.ErrUnknownField)
	_, err = New(Spec{Name: "x", Schema: s, Provider: p, Columns: []export.Column{{Field: "b"}}})
	assert.ErrorIs(t, err, export.ErrUnknownColumn)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	assert.Contains(t, FormatCSV.ContentType(), "text/csv")

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
