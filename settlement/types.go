/*
Package settlement provides the pension readjustment engine.

PURPOSE:
  Computes, for a pensioner's payment history, the legally mandated annual
  readjustment of the employer-paid mesada under a selected legal method,
  and the year-by-year difference owed against what was actually paid.
  The computation is a strict left fold over the years: each year's
  adjusted mesada becomes the next year's base.

KEY CONCEPTS IN THIS FILE (types.go):
  - StatutoryIndexRow: CPI and minimum wage for one calendar year
  - PaymentObservation: what the employer actually paid in one year
  - AnnualSettlementResult: the computed row of the settlement table
  - IndexLookup: read-only access to the statutory index by year

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, never float64
  2. Purity: Compute has no side effects and no shared mutable state
  3. No silent degradation: any invalid input fails the whole computation

USAGE:
  results, err := settlement.Compute(observations, index, settlement.Escolastica{}, settlement.DefaultOptions())
  if err != nil {
      // surface to the case manager, never render a partial table
  }

SEE ALSO:
  - method.go: LegalMethod variants (Escolastica, Precedente4555, UnidadPrestacional)
  - engine.go: Compute and the carry-forward fold
  - errors.go: Error taxonomy
  - statutory/table.go: Versioned index tables implementing IndexLookup
*/
package settlement

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONSTANTS
// =============================================================================

var (
	// FloorPercent is the fixed statutory readjustment applied when the
	// threshold base does not exceed five minimum wages.
	FloorPercent = decimal.NewFromInt(15)

	// ThresholdMultiplier is the number of minimum wages that separates the
	// 15% floor from CPI readjustment.
	ThresholdMultiplier = decimal.NewFromInt(5)

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ApplyPercent returns value * (1 + pct/100).
func ApplyPercent(value, pct decimal.Decimal) decimal.Decimal {
	return value.Mul(one.Add(pct.Div(hundred)))
}

// =============================================================================
// STATUTORY INDEX
// =============================================================================

// StatutoryIndexRow holds the reference values for one calendar year.
// FiveTimesMinimumWage is kept explicitly because source tables hard-code it;
// it must equal MinimumWageMonthly * 5.
type StatutoryIndexRow struct {
	Year                 int             `json:"year"`
	CPIPercent           decimal.Decimal `json:"cpi_percent"`
	MinimumWageMonthly   decimal.Decimal `json:"minimum_wage_monthly"`
	FiveTimesMinimumWage decimal.Decimal `json:"five_times_minimum_wage"`
}

// NewIndexRow builds a row with FiveTimesMinimumWage derived from the wage.
func NewIndexRow(year int, cpiPercent, minimumWage decimal.Decimal) StatutoryIndexRow {
	return StatutoryIndexRow{
		Year:                 year,
		CPIPercent:           cpiPercent,
		MinimumWageMonthly:   minimumWage,
		FiveTimesMinimumWage: minimumWage.Mul(ThresholdMultiplier),
	}
}

// Consistent reports whether FiveTimesMinimumWage equals MinimumWageMonthly * 5.
func (r StatutoryIndexRow) Consistent() bool {
	return r.FiveTimesMinimumWage.Equal(r.MinimumWageMonthly.Mul(ThresholdMultiplier))
}

// IndexLookup provides read-only access to statutory rows by year.
// Implementations must be safe for concurrent reads.
type IndexLookup interface {
	Row(year int) (StatutoryIndexRow, bool)
}

// IndexMap is the simplest IndexLookup: a map keyed by year.
type IndexMap map[int]StatutoryIndexRow

func (m IndexMap) Row(year int) (StatutoryIndexRow, bool) {
	r, ok := m[year]
	return r, ok
}

// IndexMapOf builds an IndexMap from rows.
func IndexMapOf(rows ...StatutoryIndexRow) IndexMap {
	m := make(IndexMap, len(rows))
	for _, r := range rows {
		m[r.Year] = r
	}
	return m
}

// =============================================================================
// PAYMENT HISTORY
// =============================================================================

// PaymentObservation is one year of the pensioner's real payment history.
type PaymentObservation struct {
	Year                 int             `json:"year"`
	MesadaPaidByEmployer decimal.Decimal `json:"mesada_paid_by_employer"`

	// MesadaFromSocialSecurity is the portion paid by the public insurer.
	// Required by Precedente4555 and UnidadPrestacional.
	MesadaFromSocialSecurity decimal.NullDecimal `json:"mesada_from_social_security"`

	NumberOfInstallments int `json:"number_of_installments"`
}

// SocialSecurity returns the insurer portion, or zero when absent.
func (o PaymentObservation) SocialSecurity() decimal.Decimal {
	if !o.MesadaFromSocialSecurity.Valid {
		return decimal.Zero
	}
	return o.MesadaFromSocialSecurity.Decimal
}

// =============================================================================
// RESULTS
// =============================================================================

// Rule records which branch produced a year's adjustment.
type Rule string

const (
	RuleSeed    Rule = "seed"     // First year taken as paid, no uplift
	RuleFloor15 Rule = "floor_15" // Threshold base within 5x minimum wage
	RuleCPI     Rule = "cpi"      // Threshold base above 5x minimum wage
)

// AnnualSettlementResult is one row of the settlement table.
// It is never mutated after Compute returns.
type AnnualSettlementResult struct {
	Year                 int             `json:"year"`
	MinimumWageMonthly   decimal.Decimal `json:"minimum_wage_monthly"`
	FiveTimesMinimumWage decimal.Decimal `json:"five_times_minimum_wage"`

	EmployerMesadaBase decimal.Decimal `json:"employer_mesada_base"`
	// ThresholdBase is the amount compared against FiveTimesMinimumWage.
	ThresholdBase            decimal.Decimal `json:"threshold_base"`
	AppliedAdjustmentPercent decimal.Decimal `json:"applied_adjustment_percent"`
	Rule                     Rule            `json:"rule"`
	AdjustedMesada           decimal.Decimal `json:"adjusted_mesada"`

	PaidMesada           decimal.Decimal `json:"paid_mesada"`
	Difference           decimal.Decimal `json:"difference"`
	NumberOfInstallments int             `json:"number_of_installments"`
	AmountOwed           decimal.Decimal `json:"amount_owed"`
}

// Settlement bundles a computed table with its totals.
type Settlement struct {
	Method          MethodName               `json:"method"`
	Rows            []AnnualSettlementResult `json:"rows"`
	FirstYear       int                      `json:"first_year"`
	LastYear        int                      `json:"last_year"`
	TotalDifference decimal.Decimal          `json:"total_difference"`
	TotalOwed       decimal.Decimal          `json:"total_owed"`
}

// Summarize totals a computed table. Overpaid years (negative differences)
// reduce the total; the table is reported as computed.
func Summarize(method MethodName, rows []AnnualSettlementResult) Settlement {
	s := Settlement{
		Method:          method,
		Rows:            rows,
		TotalDifference: decimal.Zero,
		TotalOwed:       decimal.Zero,
	}
	if len(rows) == 0 {
		s.Rows = []AnnualSettlementResult{}
		return s
	}
	s.FirstYear = rows[0].Year
	s.LastYear = rows[len(rows)-1].Year
	for _, r := range rows {
		s.TotalDifference = s.TotalDifference.Add(r.Difference)
		s.TotalOwed = s.TotalOwed.Add(r.AmountOwed)
	}
	return s
}
