package export

import (
	"bufio"
	"fmt"
	"io"

	"github.com/asaidimu/go-tabula/core/schema"
)

// CSV writes rows in the ledger export format: a header row of labels, then
// one line per row, every cell wrapped in double quotes and joined by commas,
// lines joined by "\n" with no trailing newline.
//
// Cells are wrapped but never escaped, so a value containing a double quote
// produces a line a strict CSV reader will reject. Downstream spreadsheets
// have always consumed the files this way.
func CSV(w io.Writer, layout Layout, rows []schema.Document) error {
	bw := bufio.NewWriter(w)
	writeLine(bw, layout.Header())
	for i, row := range rows {
		bw.WriteByte('\n')
		writeLine(bw, layout.Record(i, row))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func writeLine(bw *bufio.Writer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteByte('"')
		bw.WriteString(cell)
		bw.WriteByte('"')
	}
}
