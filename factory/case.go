/*
Package factory provides JSON and YAML to Go case conversion.

PURPOSE:
  Converts case definitions (a pensioner, the legal method chosen for
  them, policy options and their payment history) into settlement.Case
  values. Case files are written by lawyers and analysts, so the factory
  fills defaults and rejects unknown enum values instead of guessing.

JSON SCHEMA:
  {
    "id": "case-001",
    "pensioner_name": "María Restrepo",
    "pensioner_document": "CC 43.123.456",
    "method": "precedente_4555",
    "seed_policy": "adjusted",
    "rounding": "deferred",
    "initial_mesada": "200000",
    "index_version": "co-1999-2015",
    "observations": [
      {
        "year": 1999,
        "mesada_paid_by_employer": "200000",
        "mesada_from_social_security": "150000",
        "number_of_installments": 14
      }
    ]
  }

  Money accepts JSON strings or numbers; strings are preferred because
  they survive every JSON tool unchanged. The YAML form uses the same
  keys.

DEFAULTS:
  - method: required
  - seed_policy: adjusted
  - rounding: deferred (places 0 when per_step)
  - index_version: empty, meaning the latest registered table
  - id: generated when empty

USAGE:
  f := factory.NewCaseFactory()
  c, err := f.ParseCase(data)          // JSON
  c, err := f.ParseCaseYAML(data)      // YAML
  s, err := c.Settle(statutory.Reference())

SEE ALSO:
  - settlement/store.go: Case type
  - api/scenarios.go: Demo cases built with this factory
  - cmd/liquidador: CLI reading case files
*/
package factory

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/liquidador/settlement"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CaseJSON is the JSON and YAML representation of a case.
type CaseJSON struct {
	ID                string              `json:"id,omitempty" yaml:"id,omitempty"`
	PensionerName     string              `json:"pensioner_name" yaml:"pensioner_name"`
	PensionerDocument string              `json:"pensioner_document,omitempty" yaml:"pensioner_document,omitempty"`
	Method            string              `json:"method" yaml:"method"`
	SeedPolicy        string              `json:"seed_policy,omitempty" yaml:"seed_policy,omitempty"`
	Rounding          string              `json:"rounding,omitempty" yaml:"rounding,omitempty"`
	Places            int32               `json:"places,omitempty" yaml:"places,omitempty"`
	InitialMesada     decimal.NullDecimal `json:"initial_mesada" yaml:"initial_mesada,omitempty"`
	IndexVersion      string              `json:"index_version,omitempty" yaml:"index_version,omitempty"`
	Observations      []ObservationJSON   `json:"observations" yaml:"observations"`
}

// ObservationJSON is one year of a payment history.
type ObservationJSON struct {
	Year                     int                 `json:"year" yaml:"year"`
	MesadaPaidByEmployer     decimal.Decimal     `json:"mesada_paid_by_employer" yaml:"mesada_paid_by_employer"`
	MesadaFromSocialSecurity decimal.NullDecimal `json:"mesada_from_social_security" yaml:"mesada_from_social_security,omitempty"`
	NumberOfInstallments     int                 `json:"number_of_installments" yaml:"number_of_installments"`
}

// =============================================================================
// CASE FACTORY
// =============================================================================

// CaseFactory converts case definitions to settlement cases.
type CaseFactory struct {
	now func() time.Time
}

// NewCaseFactory creates a new case factory.
func NewCaseFactory() *CaseFactory {
	return &CaseFactory{now: func() time.Time { return time.Now().UTC() }}
}

// ParseCase parses a JSON document into a Case.
func (f *CaseFactory) ParseCase(data []byte) (*settlement.Case, error) {
	var cj CaseJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("failed to parse case JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// ParseCaseYAML parses a YAML document into a Case.
func (f *CaseFactory) ParseCaseYAML(data []byte) (*settlement.Case, error) {
	var cj CaseJSON
	if err := yaml.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("failed to parse case YAML: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON converts CaseJSON to a settlement.Case. The payment history is
// kept in the given order; ordering is checked when the case is settled,
// so the caller sees UnorderedInputError from the engine itself.
func (f *CaseFactory) FromJSON(cj CaseJSON) (*settlement.Case, error) {
	if cj.Method == "" {
		return nil, fmt.Errorf("%w: method is required", settlement.ErrUnknownMethod)
	}
	method, err := settlement.LookupMethod(cj.Method)
	if err != nil {
		return nil, err
	}

	seed, err := settlement.ParseSeedPolicy(cj.SeedPolicy)
	if err != nil {
		return nil, err
	}
	rounding, err := settlement.ParseRoundingPolicy(cj.Rounding)
	if err != nil {
		return nil, err
	}
	opts := settlement.Options{
		Seed:          seed,
		InitialMesada: cj.InitialMesada,
		Rounding:      rounding,
		Places:        cj.Places,
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	id := settlement.CaseID(cj.ID)
	if id == "" {
		id = settlement.NewCaseID()
	}

	now := f.now()
	return &settlement.Case{
		ID:                id,
		PensionerName:     cj.PensionerName,
		PensionerDocument: cj.PensionerDocument,
		Method:            method.Name(),
		Options:           opts,
		IndexVersion:      cj.IndexVersion,
		Observations:      ParseObservations(cj.Observations),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ParseObservations converts observation definitions, keeping their order.
func ParseObservations(list []ObservationJSON) []settlement.PaymentObservation {
	result := make([]settlement.PaymentObservation, 0, len(list))
	for _, oj := range list {
		result = append(result, settlement.PaymentObservation{
			Year:                     oj.Year,
			MesadaPaidByEmployer:     oj.MesadaPaidByEmployer,
			MesadaFromSocialSecurity: oj.MesadaFromSocialSecurity,
			NumberOfInstallments:     oj.NumberOfInstallments,
		})
	}
	return result
}

// ToJSON converts a Case to CaseJSON.
func (f *CaseFactory) ToJSON(c settlement.Case) CaseJSON {
	cj := CaseJSON{
		ID:                string(c.ID),
		PensionerName:     c.PensionerName,
		PensionerDocument: c.PensionerDocument,
		Method:            string(c.Method),
		SeedPolicy:        string(c.Options.Seed),
		Rounding:          string(c.Options.Rounding),
		Places:            c.Options.Places,
		InitialMesada:     c.Options.InitialMesada,
		IndexVersion:      c.IndexVersion,
		Observations:      make([]ObservationJSON, 0, len(c.Observations)),
	}
	for _, o := range c.Observations {
		cj.Observations = append(cj.Observations, ObservationJSON{
			Year:                     o.Year,
			MesadaPaidByEmployer:     o.MesadaPaidByEmployer,
			MesadaFromSocialSecurity: o.MesadaFromSocialSecurity,
			NumberOfInstallments:     o.NumberOfInstallments,
		})
	}
	return cj
}
