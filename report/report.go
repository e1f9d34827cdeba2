/*
Package report renders settlement tables for people.

PURPOSE:
  The engine keeps full decimal precision. Reports are where values
  become pesos: every monetary cell is rounded to whole pesos and every
  percentage to two decimals when it is rendered, never before.

FORMATS:
  - CSV:  one row per year plus a TOTAL row, for spreadsheets
  - PDF:  A4 landscape table with a case header, for court filings
  - Text: aligned columns, for the CLI

SEE ALSO:
  - settlement/types.go: Settlement and AnnualSettlementResult
  - api/handlers.go: /api/runs/{id}/report.csv and .pdf
  - cmd/liquidador: --format flag
*/
package report

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/liquidador/settlement"
)

// Header identifies the case a report belongs to. All fields are optional.
type Header struct {
	CaseID            string
	PensionerName     string
	PensionerDocument string
	IndexVersion      string
	RunID             string
	GeneratedAt       time.Time
}

// Columns are the table headings shared by all formats.
var Columns = []string{
	"Year",
	"SMLMV",
	"5x SMLMV",
	"Base",
	"Threshold base",
	"Percent",
	"Rule",
	"Adjusted mesada",
	"Paid mesada",
	"Difference",
	"Installments",
	"Amount owed",
}

// Money formats a monetary value in whole pesos.
func Money(d decimal.Decimal) string {
	return d.Round(0).StringFixed(0)
}

// Percent formats an adjustment percentage with two decimals.
func Percent(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Cells renders one result row in column order.
func Cells(r settlement.AnnualSettlementResult) []string {
	return []string{
		strconv.Itoa(r.Year),
		Money(r.MinimumWageMonthly),
		Money(r.FiveTimesMinimumWage),
		Money(r.EmployerMesadaBase),
		Money(r.ThresholdBase),
		Percent(r.AppliedAdjustmentPercent),
		string(r.Rule),
		Money(r.AdjustedMesada),
		Money(r.PaidMesada),
		Money(r.Difference),
		strconv.Itoa(r.NumberOfInstallments),
		Money(r.AmountOwed),
	}
}

// TotalCells renders the TOTAL row in column order.
func TotalCells(s settlement.Settlement) []string {
	cells := make([]string, len(Columns))
	cells[0] = "TOTAL"
	cells[9] = Money(s.TotalDifference)
	cells[11] = Money(s.TotalOwed)
	return cells
}
