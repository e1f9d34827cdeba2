package report

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/warp/liquidador/settlement"
)

// column widths in mm, A4 landscape leaves 277mm between 10mm margins
var pdfWidths = []float64{14, 20, 24, 24, 25, 16, 18, 26, 24, 24, 20, 42}

// WritePDF renders the settlement as an A4 landscape table.
func WritePDF(w io.Writer, s settlement.Settlement, h Header) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Liquidación de mesadas", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr("Liquidación de reajuste pensional"))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	line := func(label, value string) {
		if value == "" {
			return
		}
		pdf.Cell(0, 6, tr(fmt.Sprintf("%s: %s", label, value)))
		pdf.Ln(6)
	}
	line("Pensioner", h.PensionerName)
	line("Document", h.PensionerDocument)
	line("Case", h.CaseID)
	line("Method", string(s.Method))
	line("Index version", h.IndexVersion)
	line("Run", h.RunID)
	if !h.GeneratedAt.IsZero() {
		line("Generated", h.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for i, col := range Columns {
		pdf.CellFormat(pdfWidths[i], 7, col, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	row := func(cells []string) {
		for i, cell := range cells {
			align := "R"
			if i == 6 {
				align = "C"
			}
			pdf.CellFormat(pdfWidths[i], 6, cell, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	for _, r := range s.Rows {
		row(Cells(r))
	}
	pdf.SetFont("Helvetica", "B", 8)
	row(TotalCells(s))

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}
