package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func staffSchema() *schema.SchemaDefinition {
	return &schema.SchemaDefinition{
		Name: "staff",
		Fields: map[string]*schema.FieldDefinition{
			"sfid":     {Type: schema.FieldTypeString, Label: "SFID"},
			"name":     {Type: schema.FieldTypeString, Label: "氏名"},
			"role":     {Type: schema.FieldTypeEnum, Values: []any{"admin", "staff"}},
			"rate":     {Type: schema.FieldTypeNumber, Label: "調整率"},
			"jobs":     {Type: schema.FieldTypeArray},
			"created":  {Type: schema.FieldTypeDate, Label: "登録日時"},
			"vehicle":  {Type: schema.FieldTypeObject, Fields: map[string]*schema.FieldDefinition{"plate": {Type: schema.FieldTypeString}}},
		},
	}
}

func staffRows() []schema.Document {
	return []schema.Document{
		{"sfid": "S001", "name": "山田太郎", "role": "admin", "rate": 1.5, "jobs": []any{"driver", "office"}, "created": "2024-04-01T09:00:00Z"},
		{"sfid": "S002", "name": "鈴木一郎", "role": "staff", "rate": 100, "created": "2024-04-02T10:30:00Z"},
	}
}

func TestCSV(t *testing.T) {
	layout, err := NewLayout(staffSchema(), false,
		Column{Field: "sfid"},
		Column{Field: "name"},
		Column{Field: "rate"},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, layout, staffRows()))
	assert.Equal(t, "\"SFID\",\"氏名\",\"調整率\"\n\"S001\",\"山田太郎\",\"1.5\"\n\"S002\",\"鈴木一郎\",\"100\"", buf.String())
}

func TestCSV_FormatsCells(t *testing.T) {
	layout, err := NewLayout(staffSchema(), true,
		Column{Field: "name"},
		Column{Field: "role", Label: "役割", Labels: map[string]string{"admin": "管理者", "staff": "スタッフ"}},
		Column{Field: "jobs", Labels: map[string]string{"driver": "ドライバー", "office": "内勤"}},
		Column{Field: "created", DateLayout: "2006/01/02"},
		Column{Field: "vehicle.plate", Label: "車両"},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, layout, staffRows()))

	want := "\"No\",\"氏名\",\"役割\",\"jobs\",\"登録日時\",\"車両\"\n" +
		"\"1\",\"山田太郎\",\"管理者\",\"ドライバー・内勤\",\"2024/04/01\",\"\"\n" +
		"\"2\",\"鈴木一郎\",\"スタッフ\",\"\",\"2024/04/02\",\"\""
	assert.Equal(t, want, buf.String())
}

func TestCSV_NoEscaping(t *testing.T) {
	layout, err := NewLayout(staffSchema(), false, Column{Field: "name"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, layout, []schema.Document{{"name": `say "hi", ok`}}))
	assert.Equal(t, "\"氏名\"\n\"say \"hi\", ok\"", buf.String())
}

func TestCSV_EmptyRows(t *testing.T) {
	layout, err := NewLayout(staffSchema(), true, Column{Field: "sfid"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, layout, nil))
	assert.Equal(t, "\"No\",\"SFID\"", buf.String())
}

func TestNewLayout(t *testing.T) {
	layout, err := NewLayout(staffSchema(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"登録日時", "jobs", "氏名", "調整率", "role", "SFID"}, layout.Header())

	_, err = NewLayout(staffSchema(), false, Column{Field: "salary"})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestXLSX(t *testing.T) {
	layout, err := NewLayout(staffSchema(), true, Column{Field: "name"}, Column{Field: "rate"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, XLSX(&buf, "スタッフ", layout, staffRows()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("スタッフ")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"No", "氏名", "調整率"},
		{"1", "山田太郎", "1.5"},
		{"2", "鈴木一郎", "100"},
	}, rows)
}

func TestFilename(t *testing.T) {
	now := time.Date(2024, 4, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "staff_ledger_2024-04-01.csv", Filename("staff_ledger", "csv", now))
}

func TestColumn_MaskValue(t *testing.T) {
	tests := []struct {
		name  string
		mask  string
		value string
		want  string
	}{
		{"mobile", MaskPhone, "090-1234-5678", "***-***-5678"},
		{"padded", MaskPhone, " 0312345678 ", "***-***-5678"},
		{"short", MaskPhone, "123", "****"},
		{"empty", MaskPhone, "", "****"},
		{"unmasked", "", "090-1234-5678", "090-1234-5678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Column{Mask: tt.mask}.MaskValue(tt.value))
		})
	}
}

func TestLayout_Redact(t *testing.T) {
	layout, err := NewLayout(staffSchema(), false,
		Column{Field: "name"},
		Column{Field: "sfid", Mask: MaskPhone},
		Column{Field: "vehicle.plate", Mask: MaskPhone},
	)
	require.NoError(t, err)

	row := schema.Document{"sfid": "S0001234", "name": "山田太郎", "vehicle": map[string]any{"plate": "品川 300 あ 12-34"}}
	redacted := layout.Redact(row)
	assert.Equal(t, "***-***-1234", redacted["sfid"])
	assert.Equal(t, "***-***-2-34", redacted["vehicle"].(map[string]any)["plate"])
	assert.Equal(t, "山田太郎", redacted["name"])

	assert.Equal(t, "S0001234", row["sfid"], "input row is not written to")
	assert.Equal(t, "品川 300 あ 12-34", row["vehicle"].(map[string]any)["plate"])

	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, layout, []schema.Document{row}))
	assert.Contains(t, buf.String(), "\"山田太郎\",\"***-***-1234\",\"***-***-2-34\"")

	plain := schema.Document{"name": "鈴木一郎"}
	assert.Equal(t, plain, layout.Redact(plain))
}

func TestNewLayout_UnknownMask(t *testing.T) {
	_, err := NewLayout(staffSchema(), false, Column{Field: "name", Mask: "email"})
	assert.ErrorIs(t, err, ErrUnknownMask)
}
