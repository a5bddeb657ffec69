package export

import (
	"fmt"
	"io"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the sheet name used when none is given.
const DefaultSheet = "Sheet1"

// XLSX writes rows as a single-sheet workbook with the same header and cells as
// CSV. Numeric columns are written as numbers so spreadsheet totals work.
func XLSX(w io.Writer, sheet string, layout Layout, rows []schema.Document) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close workbook: %w", cerr)
		}
	}()

	if sheet == "" {
		sheet = DefaultSheet
	}
	if sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
			return fmt.Errorf("failed to name sheet '%s': %w", sheet, err)
		}
	}

	if err := setRow(f, sheet, 1, toCells(layout.Header())); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, layout.values(i, row)); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to address row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// values is Record with numbers kept numeric.
func (l Layout) values(i int, row schema.Document) []any {
	cells := make([]any, 0, len(l.Columns)+1)
	if l.RowNumbers {
		cells = append(cells, i+1)
	}
	for _, col := range l.Columns {
		if col.numeric {
			if raw, ok := row.Get(col.Field); ok {
				if f, ok := schema.ToFloat64(raw); ok {
					cells = append(cells, f)
					continue
				}
			}
		}
		cells = append(cells, col.Cell(row))
	}
	return cells
}
