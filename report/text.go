package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/warp/liquidador/settlement"
)

// WriteText writes an aligned plain-text table, numbers right-aligned.
func WriteText(w io.Writer, s settlement.Settlement) error {
	if _, err := fmt.Fprintf(w, "Method: %s\n", s.Method); err != nil {
		return err
	}
	if len(s.Rows) > 0 {
		if _, err := fmt.Fprintf(w, "Years:  %d-%d\n\n", s.FirstYear, s.LastYear); err != nil {
			return err
		}
	} else {
		if _, err := fmt.Fprintln(w, "Years:  none"); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	writeLine := func(cells []string) {
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	writeLine(Columns)
	for _, r := range s.Rows {
		writeLine(Cells(r))
	}
	writeLine(TotalCells(s))
	return tw.Flush()
}
