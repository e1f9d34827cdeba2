package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/warp/liquidador/settlement"
)

// WriteCSV writes the header row, one row per year and a TOTAL row.
func WriteCSV(w io.Writer, s settlement.Settlement) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range s.Rows {
		if err := writer.Write(Cells(r)); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", r.Year, err)
		}
	}
	if err := writer.Write(TotalCells(s)); err != nil {
		return fmt.Errorf("failed to write csv total: %w", err)
	}
	writer.Flush()
	return writer.Error()
}
