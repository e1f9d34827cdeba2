/*
engine.go - The readjustment fold

PURPOSE:
  Compute turns an ordered payment history into a settlement table. It
  validates the whole input first, then folds left to right: each year's
  base is the previous year's adjusted mesada (not the paid amount), so
  a shortfall compounds into every later year.

SEED POLICY (first year):
  SeedAdjusted (default):
    The seed is the year-1 base and the method's readjustment applies to
    it in year 1. A seed of 200,000 under the 15% floor gives 230,000.
  SeedAsPaid:
    Year 1 is taken as paid: adjusted mesada equals the seed, applied
    percent is zero, Rule is RuleSeed.
  The seed is Options.InitialMesada when set, otherwise the year-1
  MesadaPaidByEmployer.

ROUNDING POLICY:
  RoundDeferred (default):
    Full decimal precision through the whole fold. Rounding happens only
    when a table is rendered (see report package).
  RoundPerStep:
    Round half-up to Options.Places decimals after every multiplication
    and subtraction, as a hand-made settlement sheet would.

CONCURRENCY:
  Compute is pure. Many pensioners may be computed in parallel against the
  same IndexLookup as long as the lookup is read-only (see batch package).

SEE ALSO:
  - method.go: Per-year adjustment rules
  - errors.go: Validation failures
  - batch/runner.go: Parallel computation across pensioners
*/
package settlement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OPTIONS
// =============================================================================

type SeedPolicy string

const (
	SeedAdjusted SeedPolicy = "adjusted"
	SeedAsPaid   SeedPolicy = "as_paid"
)

type RoundingPolicy string

const (
	RoundDeferred RoundingPolicy = "deferred"
	RoundPerStep  RoundingPolicy = "per_step"
)

// Options configures the policy decisions the legal rules leave open.
type Options struct {
	Seed SeedPolicy `json:"seed_policy"`

	// InitialMesada overrides the year-1 seed when the case file knows the
	// starting mesada independently of what was paid.
	InitialMesada decimal.NullDecimal `json:"initial_mesada"`

	Rounding RoundingPolicy `json:"rounding"`

	// Places is the number of decimals kept by RoundPerStep.
	Places int32 `json:"places"`
}

// DefaultOptions adjusts the first year and defers rounding.
func DefaultOptions() Options {
	return Options{Seed: SeedAdjusted, Rounding: RoundDeferred}
}

func (o Options) withDefaults() Options {
	if o.Seed == "" {
		o.Seed = SeedAdjusted
	}
	if o.Rounding == "" {
		o.Rounding = RoundDeferred
	}
	return o
}

// Validate rejects unknown policies.
func (o Options) Validate() error {
	o = o.withDefaults()
	switch o.Seed {
	case SeedAdjusted, SeedAsPaid:
	default:
		return fmt.Errorf("%w: seed policy %q", ErrInvalidOptions, o.Seed)
	}
	switch o.Rounding {
	case RoundDeferred, RoundPerStep:
	default:
		return fmt.Errorf("%w: rounding policy %q", ErrInvalidOptions, o.Rounding)
	}
	if o.Places < 0 {
		return fmt.Errorf("%w: negative rounding places", ErrInvalidOptions)
	}
	if o.InitialMesada.Valid && o.InitialMesada.Decimal.IsNegative() {
		return fmt.Errorf("%w: negative initial mesada", ErrInvalidOptions)
	}
	return nil
}

func (o Options) rounder() func(decimal.Decimal) decimal.Decimal {
	if o.Rounding != RoundPerStep {
		return nil
	}
	places := o.Places
	return func(d decimal.Decimal) decimal.Decimal { return d.Round(places) }
}

// ParseSeedPolicy parses a seed policy name. Empty means the default.
func ParseSeedPolicy(s string) (SeedPolicy, error) {
	switch SeedPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SeedAdjusted:
		return SeedAdjusted, nil
	case SeedAsPaid:
		return SeedAsPaid, nil
	default:
		return "", fmt.Errorf("%w: seed policy %q", ErrInvalidOptions, s)
	}
}

// ParseRoundingPolicy parses a rounding policy name. Empty means the default.
func ParseRoundingPolicy(s string) (RoundingPolicy, error) {
	switch RoundingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoundDeferred:
		return RoundDeferred, nil
	case RoundPerStep:
		return RoundPerStep, nil
	default:
		return "", fmt.Errorf("%w: rounding policy %q", ErrInvalidOptions, s)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks a payment history against an index and method without
// computing anything. Order is checked across the whole sequence before
// any per-year check, so a reordered history always reports
// UnorderedInputError.
func Validate(observations []PaymentObservation, index IndexLookup, method LegalMethod) error {
	if method == nil {
		return fmt.Errorf("%w: no method selected", ErrUnknownMethod)
	}
	for i := 1; i < len(observations); i++ {
		if observations[i].Year <= observations[i-1].Year {
			return &UnorderedInputError{
				Index:        i,
				Year:         observations[i].Year,
				PreviousYear: observations[i-1].Year,
			}
		}
	}
	if index == nil {
		index = IndexMap(nil)
	}
	for _, obs := range observations {
		if _, ok := index.Row(obs.Year); !ok {
			return &MissingIndexDataError{Year: obs.Year}
		}
		if err := validateObservation(obs); err != nil {
			return err
		}
		if method.RequiresSocialSecurity() && !obs.MesadaFromSocialSecurity.Valid {
			return &InvalidMethodConfigurationError{Year: obs.Year, Method: method.Name()}
		}
	}
	return nil
}

func validateObservation(obs PaymentObservation) error {
	if obs.NumberOfInstallments <= 0 {
		return &InvalidObservationError{Year: obs.Year, Field: "number_of_installments", Reason: "must be positive"}
	}
	if obs.MesadaPaidByEmployer.IsNegative() {
		return &InvalidObservationError{Year: obs.Year, Field: "mesada_paid_by_employer", Reason: "must not be negative"}
	}
	if obs.MesadaFromSocialSecurity.Valid && obs.MesadaFromSocialSecurity.Decimal.IsNegative() {
		return &InvalidObservationError{Year: obs.Year, Field: "mesada_from_social_security", Reason: "must not be negative"}
	}
	return nil
}

// =============================================================================
// COMPUTE
// =============================================================================

// Compute produces one AnnualSettlementResult per observation, in the same
// order. On any error it returns nil results.
func Compute(observations []PaymentObservation, index IndexLookup, method LegalMethod, opts Options) ([]AnnualSettlementResult, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := Validate(observations, index, method); err != nil {
		return nil, err
	}

	round := opts.rounder()
	apply := func(d decimal.Decimal) decimal.Decimal {
		if round == nil {
			return d
		}
		return round(d)
	}

	results := make([]AnnualSettlementResult, 0, len(observations))
	for i, obs := range observations {
		row, _ := index.Row(obs.Year)

		var base decimal.Decimal
		if i == 0 {
			base = apply(seed(obs, opts))
		} else {
			base = results[i-1].AdjustedMesada
		}

		var adj Adjustment
		if i == 0 && opts.Seed == SeedAsPaid {
			adj = Adjustment{
				ThresholdBase:  base,
				Percent:        decimal.Zero,
				Rule:           RuleSeed,
				AdjustedMesada: base,
			}
		} else {
			adj = method.Adjust(AdjustmentInput{
				Index:          row,
				EmployerBase:   base,
				SocialSecurity: obs.SocialSecurity(),
				Round:          round,
			})
		}

		difference := apply(adj.AdjustedMesada.Sub(obs.MesadaPaidByEmployer))
		owed := apply(difference.Mul(decimal.NewFromInt(int64(obs.NumberOfInstallments))))

		results = append(results, AnnualSettlementResult{
			Year:                     obs.Year,
			MinimumWageMonthly:       row.MinimumWageMonthly,
			FiveTimesMinimumWage:     row.FiveTimesMinimumWage,
			EmployerMesadaBase:       base,
			ThresholdBase:            adj.ThresholdBase,
			AppliedAdjustmentPercent: adj.Percent,
			Rule:                     adj.Rule,
			AdjustedMesada:           adj.AdjustedMesada,
			PaidMesada:               obs.MesadaPaidByEmployer,
			Difference:               difference,
			NumberOfInstallments:     obs.NumberOfInstallments,
			AmountOwed:               owed,
		})
	}
	return results, nil
}

func seed(first PaymentObservation, opts Options) decimal.Decimal {
	if opts.InitialMesada.Valid {
		return opts.InitialMesada.Decimal
	}
	return first.MesadaPaidByEmployer
}

// =============================================================================
// ENGINE - bound method, index and options
// =============================================================================

// Engine binds a method, an index and options so callers can compute many
// histories with the same configuration.
type Engine struct {
	Method  LegalMethod
	Index   IndexLookup
	Options Options
}

// NewEngine creates an engine.
func NewEngine(method LegalMethod, index IndexLookup, opts Options) *Engine {
	return &Engine{Method: method, Index: index, Options: opts}
}

// Compute runs the fold with the engine's configuration.
func (e *Engine) Compute(observations []PaymentObservation) ([]AnnualSettlementResult, error) {
	return Compute(observations, e.Index, e.Method, e.Options)
}

// Settle computes and summarizes.
func (e *Engine) Settle(observations []PaymentObservation) (*Settlement, error) {
	rows, err := e.Compute(observations)
	if err != nil {
		return nil, err
	}
	s := Summarize(e.Method.Name(), rows)
	return &s, nil
}
