/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Every monetary value and percentage is a decimal encoded as a JSON
  string ("1182300", "16.7"). Requests accept strings or numbers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/case.go: CaseJSON and ObservationJSON
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/liquidador/factory"
	"github.com/warp/liquidador/settlement"
	"github.com/warp/liquidador/statutory"
)

// =============================================================================
// METHODS AND INDEX TABLES
// =============================================================================

// MethodDTO describes one legal readjustment method.
type MethodDTO struct {
	Name                   string `json:"name"`
	Description            string `json:"description"`
	RequiresSocialSecurity bool   `json:"requires_social_security"`
}

// IndexTableDTO describes one statutory table version.
type IndexTableDTO struct {
	Version     string                         `json:"version"`
	Description string                         `json:"description,omitempty"`
	FirstYear   int                            `json:"first_year"`
	LastYear    int                            `json:"last_year"`
	Latest      bool                           `json:"latest"`
	Rows        []settlement.StatutoryIndexRow `json:"rows,omitempty"`
}

// RegisterIndexRequest registers a new table version. When Extends is set,
// Rows are appended after the last year of that version; otherwise Rows
// are the whole table.
type RegisterIndexRequest struct {
	Version     string              `json:"version"`
	Description string              `json:"description"`
	Extends     string              `json:"extends,omitempty"`
	Rows        []statutory.RowFile `json:"rows"`
}

// =============================================================================
// COMPUTATION
// =============================================================================

// ComputeRequest is a stateless computation: nothing is persisted.
type ComputeRequest struct {
	Method        string                    `json:"method"`
	SeedPolicy    string                    `json:"seed_policy,omitempty"`
	Rounding      string                    `json:"rounding,omitempty"`
	Places        int32                     `json:"places,omitempty"`
	InitialMesada decimal.NullDecimal       `json:"initial_mesada"`
	IndexVersion  string                    `json:"index_version,omitempty"`
	Observations  []factory.ObservationJSON `json:"observations"`
}

// SettlementDTO is a computed settlement table with its index version.
type SettlementDTO struct {
	IndexVersion string `json:"index_version"`
	settlement.Settlement
}

// =============================================================================
// CASES AND RUNS
// =============================================================================

// CaseDTO represents a case in API responses.
type CaseDTO struct {
	factory.CaseJSON
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ReplaceObservationsRequest replaces a case's whole payment history.
type ReplaceObservationsRequest struct {
	Observations []factory.ObservationJSON `json:"observations"`
}

// RunDTO represents a persisted settlement run.
type RunDTO struct {
	ID           string                `json:"id"`
	CaseID       string                `json:"case_id"`
	IndexVersion string                `json:"index_version"`
	Options      settlement.Options    `json:"options"`
	CreatedAt    string                `json:"created_at"`
	Settlement   settlement.Settlement `json:"settlement"`
}

// BatchSettleRequest settles several cases. An empty CaseIDs means every
// stored case.
type BatchSettleRequest struct {
	CaseIDs []string `json:"case_ids"`

	// Persist stores a run for every successful case.
	Persist bool `json:"persist"`
}

// BatchOutcomeDTO is one case's result in a batch.
type BatchOutcomeDTO struct {
	CaseID     string           `json:"case_id"`
	RunID      string           `json:"run_id,omitempty"`
	TotalOwed  *decimal.Decimal `json:"total_owed,omitempty"`
	Years      int              `json:"years,omitempty"`
	Error      string           `json:"error,omitempty"`
	Code       string           `json:"code,omitempty"`
	DurationMS float64          `json:"duration_ms"`
}

// BatchSettleResponse wraps batch outcomes, in request order.
type BatchSettleResponse struct {
	Outcomes  []BatchOutcomeDTO `json:"outcomes"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo case.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Method      string `json:"method"`
}

// LoadScenarioRequest is the request to load a demo case.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`

	// Settle also computes and stores a run.
	Settle bool `json:"settle"`
}

// LoadScenarioResponse is the loaded case and, when requested, its run.
type LoadScenarioResponse struct {
	Case CaseDTO `json:"case"`
	Run  *RunDTO `json:"run,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toMethodDTO(m settlement.LegalMethod) MethodDTO {
	return MethodDTO{
		Name:                   string(m.Name()),
		Description:            m.Description(),
		RequiresSocialSecurity: m.RequiresSocialSecurity(),
	}
}

func toIndexTableDTO(t *statutory.Table, latest, withRows bool) IndexTableDTO {
	dto := IndexTableDTO{
		Version:     t.Version(),
		Description: t.Description(),
		FirstYear:   t.FirstYear(),
		LastYear:    t.LastYear(),
		Latest:      latest,
	}
	if withRows {
		dto.Rows = t.Rows()
	}
	return dto
}

func toCaseDTO(f *factory.CaseFactory, c settlement.Case) CaseDTO {
	return CaseDTO{
		CaseJSON:  f.ToJSON(c),
		CreatedAt: formatTime(c.CreatedAt),
		UpdatedAt: formatTime(c.UpdatedAt),
	}
}

func toRunDTO(r settlement.Run) RunDTO {
	return RunDTO{
		ID:           string(r.ID),
		CaseID:       string(r.CaseID),
		IndexVersion: r.IndexVersion,
		Options:      r.Options,
		CreatedAt:    formatTime(r.CreatedAt),
		Settlement:   r.Settlement,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
