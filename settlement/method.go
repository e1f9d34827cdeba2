/*
method.go - Legal readjustment methods

PURPOSE:
  Each LegalMethod encodes one line of precedent for how the employer's
  share of a pension is readjusted in a given year. They differ only in
  what amount is tested against the five-minimum-wage threshold and what
  amount the resulting percentage is applied to.

METHODS:
  Escolastica (precedent 39783/2013):
    threshold base = employer base
    percent        = 15 if base <= 5 x SMLMV, else CPI
    adjusted       = employer base * (1 + percent/100)

  Precedente4555 (2020):
    threshold base = employer base + social security
    percent        = 15 if combined <= 5 x SMLMV, else CPI
    adjusted       = employer base * (1 + percent/100)   (employer share only)

  UnidadPrestacional (actuarial unit):
    threshold base = (employer base + social security) * 1.15
    percent        = 15 if that <= 5 x SMLMV, else CPI
    adjusted       = (employer + social security) * (1 + percent/100) - social security

THRESHOLD:
  The test is inclusive ("no supera"): a base exactly equal to 5 x SMLMV
  receives the 15% floor. It is re-evaluated every year from that year's
  base, so a year in which a compartición brought the employer base back
  under the threshold regains the floor without any historical flag.

SEE ALSO:
  - engine.go: Calls Adjust once per year, carrying AdjustedMesada forward
  - registry.go: Lookup by name
*/
package settlement

import "github.com/shopspring/decimal"

// MethodName identifies a legal method in configuration and storage.
type MethodName string

const (
	MethodEscolastica        MethodName = "escolastica"
	MethodPrecedente4555     MethodName = "precedente_4555"
	MethodUnidadPrestacional MethodName = "unidad_prestacional"
)

// AdjustmentInput is what a method sees for one year.
type AdjustmentInput struct {
	Index          StatutoryIndexRow
	EmployerBase   decimal.Decimal
	SocialSecurity decimal.Decimal // zero when the observation has none

	// Round is applied after each arithmetic step. Nil means full precision.
	Round func(decimal.Decimal) decimal.Decimal
}

func (in AdjustmentInput) round(d decimal.Decimal) decimal.Decimal {
	if in.Round == nil {
		return d
	}
	return in.Round(d)
}

// Adjustment is a method's verdict for one year.
type Adjustment struct {
	ThresholdBase  decimal.Decimal
	Percent        decimal.Decimal
	Rule           Rule
	AdjustedMesada decimal.Decimal
}

// LegalMethod is the closed set of readjustment strategies.
type LegalMethod interface {
	Name() MethodName
	Description() string

	// RequiresSocialSecurity reports whether every observation must carry
	// MesadaFromSocialSecurity.
	RequiresSocialSecurity() bool

	Adjust(in AdjustmentInput) Adjustment
}

// selectPercent applies the inclusive five-minimum-wage test.
func selectPercent(thresholdBase decimal.Decimal, row StatutoryIndexRow) (decimal.Decimal, Rule) {
	if thresholdBase.LessThanOrEqual(row.FiveTimesMinimumWage) {
		return FloorPercent, RuleFloor15
	}
	return row.CPIPercent, RuleCPI
}

// =============================================================================
// ESCOLASTICA - precedent 39783/2013
// =============================================================================

type Escolastica struct{}

func (Escolastica) Name() MethodName { return MethodEscolastica }

func (Escolastica) Description() string {
	return "Precedent 39783/2013: employer base alone is tested against 5x SMLMV"
}

func (Escolastica) RequiresSocialSecurity() bool { return false }

func (Escolastica) Adjust(in AdjustmentInput) Adjustment {
	pct, rule := selectPercent(in.EmployerBase, in.Index)
	return Adjustment{
		ThresholdBase:  in.EmployerBase,
		Percent:        pct,
		Rule:           rule,
		AdjustedMesada: in.round(ApplyPercent(in.EmployerBase, pct)),
	}
}

// =============================================================================
// PRECEDENTE 4555 - 2020
// =============================================================================

type Precedente4555 struct{}

func (Precedente4555) Name() MethodName { return MethodPrecedente4555 }

func (Precedente4555) Description() string {
	return "Precedent 4555/2020: employer plus social security is tested, percent applies to employer share only"
}

func (Precedente4555) RequiresSocialSecurity() bool { return true }

func (Precedente4555) Adjust(in AdjustmentInput) Adjustment {
	combined := in.EmployerBase.Add(in.SocialSecurity)
	pct, rule := selectPercent(combined, in.Index)
	return Adjustment{
		ThresholdBase:  combined,
		Percent:        pct,
		Rule:           rule,
		AdjustedMesada: in.round(ApplyPercent(in.EmployerBase, pct)),
	}
}

// =============================================================================
// UNIDAD PRESTACIONAL - actuarial unit
// =============================================================================

type UnidadPrestacional struct{}

func (UnidadPrestacional) Name() MethodName { return MethodUnidadPrestacional }

func (UnidadPrestacional) Description() string {
	return "Actuarial unit: employer and social security are adjusted as one pension, then the insurer share is subtracted"
}

func (UnidadPrestacional) RequiresSocialSecurity() bool { return true }

func (UnidadPrestacional) Adjust(in AdjustmentInput) Adjustment {
	integrated := in.EmployerBase.Add(in.SocialSecurity)
	tentative := in.round(ApplyPercent(integrated, FloorPercent))
	pct, rule := selectPercent(tentative, in.Index)

	total := in.round(ApplyPercent(integrated, pct))
	return Adjustment{
		ThresholdBase:  tentative,
		Percent:        pct,
		Rule:           rule,
		AdjustedMesada: in.round(total.Sub(in.SocialSecurity)),
	}
}
