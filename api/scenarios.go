/*
scenarios.go - Demo cases for testing and demonstrations

PURPOSE:

	Provides pre-built pensioner cases that exercise each legal method and
	policy option against the embedded 1999-2015 reference table.

AVAILABLE SCENARIOS:

	frozen-low-mesada:   Escolastica, small mesada never readjusted (15% floor every year)
	high-mesada-cpi:     Escolastica, mesada above 5x SMLMV (CPI every year)
	crossing-threshold:  Escolastica, floor years until the base crosses 5x SMLMV
	shared-pension:      Precedente4555, employer and social-security portions
	unidad-prestacional: UnidadPrestacional, integrated pension readjusted as a unit
	hand-made-sheet:     Escolastica, first year as paid, rounding to pesos every step

HOW SCENARIOS WORK:
 1. Parse the case JSON via factory
 2. Save the case (replacing a previous load of the same scenario)
 3. Optionally settle it and store a run

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "shared-pension", "settle": true}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description, method
 2. Add the case JSON to scenarioCases

SEE ALSO:
  - handlers.go: Case and settle handlers
  - factory/case.go: Case JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/liquidador/settlement"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "frozen-low-mesada",
		Name:        "Frozen Low Mesada",
		Description: "Employer paid the same 300,000 from 1999 to 2005; every year falls under the 15% floor",
		Method:      string(settlement.MethodEscolastica),
	},
	{
		ID:          "high-mesada-cpi",
		Name:        "High Mesada (CPI)",
		Description: "Mesada above 5x SMLMV from the start; readjusted by CPI only",
		Method:      string(settlement.MethodEscolastica),
	},
	{
		ID:          "crossing-threshold",
		Name:        "Crossing the Threshold",
		Description: "Floor years compound the base until it exceeds 5x SMLMV and CPI takes over",
		Method:      string(settlement.MethodEscolastica),
	},
	{
		ID:          "shared-pension",
		Name:        "Shared Pension (4555)",
		Description: "Threshold tested on employer plus social security, percent applied to the employer share",
		Method:      string(settlement.MethodPrecedente4555),
	},
	{
		ID:          "unidad-prestacional",
		Name:        "Unidad Prestacional",
		Description: "Integrated pension readjusted as one unit, insurer portion subtracted",
		Method:      string(settlement.MethodUnidadPrestacional),
	},
	{
		ID:          "hand-made-sheet",
		Name:        "Hand-made Sheet",
		Description: "First year taken as paid and every step rounded to whole pesos",
		Method:      string(settlement.MethodEscolastica),
	},
}

// scenarioCases holds the case JSON for each scenario, keyed by scenario ID.
var scenarioCases = map[string]string{
	"frozen-low-mesada": caseJSON("frozen-low-mesada", "Rosa Elena Cárdenas", "escolastica", "", "",
		flatHistory(1999, 2005, "300000", "", 14)),
	"high-mesada-cpi": caseJSON("high-mesada-cpi", "Hernando Villegas", "escolastica", "", "",
		flatHistory(2005, 2012, "2500000", "", 14)),
	"crossing-threshold": caseJSON("crossing-threshold", "Luz Marina Ospina", "escolastica", "", "",
		flatHistory(1999, 2008, "900000", "", 14)),
	"shared-pension": caseJSON("shared-pension", "Jorge Iván Muñoz", "precedente_4555", "", "",
		flatHistory(2003, 2010, "1200000", "600000", 14)),
	"unidad-prestacional": caseJSON("unidad-prestacional", "Gloria Patricia Rincón", "unidad_prestacional", "", "",
		flatHistory(2003, 2010, "1000000", "800000", 14)),
	"hand-made-sheet": caseJSON("hand-made-sheet", "Álvaro Jaramillo", "escolastica", "as_paid", "per_step",
		flatHistory(1999, 2004, "450000", "", 13)),
}

func caseJSON(id, name, method, seed, rounding, observations string) string {
	return fmt.Sprintf(`{
		"id": "demo-%s",
		"pensioner_name": %q,
		"pensioner_document": "DEMO",
		"method": %q,
		"seed_policy": %q,
		"rounding": %q,
		"observations": [%s]
	}`, id, name, method, seed, rounding, observations)
}

// flatHistory is a history where the employer never readjusted the mesada.
func flatHistory(from, to int, paid, socialSecurity string, installments int) string {
	items := make([]string, 0, to-from+1)
	for year := from; year <= to; year++ {
		ss := "null"
		if socialSecurity != "" {
			ss = fmt.Sprintf("%q", socialSecurity)
		}
		items = append(items, fmt.Sprintf(
			`{"year": %d, "mesada_paid_by_employer": %q, "mesada_from_social_security": %s, "number_of_installments": %d}`,
			year, paid, ss, installments))
	}
	return strings.Join(items, ",")
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario saves a demo case and optionally settles it.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.loadScenario(r.Context(), req.ScenarioID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to load scenario", err)
		return
	}

	resp := LoadScenarioResponse{Case: toCaseDTO(h.Cases, *c)}
	if req.Settle {
		run, err := h.settleAndStore(r.Context(), *c)
		if err != nil {
			h.writeDomainError(w, r, "Settlement rejected", err)
			return
		}
		dto := toRunDTO(*run)
		resp.Run = &dto
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, resp)
}

// ResetDatabase clears all data. Statutory tables are archived again from
// the in-memory registry.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := h.SyncIndexTables(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to restore statutory tables", err)
		return
	}
	h.currentScenario = ""
	h.Logger.Warn("database reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) loadScenario(ctx context.Context, id string) (*settlement.Case, error) {
	doc, ok := scenarioCases[id]
	if !ok {
		return nil, fmt.Errorf("unknown scenario: %s", id)
	}

	c, err := h.Cases.ParseCase([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", id, err)
	}
	if err := h.Store.SaveCase(ctx, *c); err != nil {
		return nil, fmt.Errorf("failed to save scenario %s: %w", id, err)
	}

	h.Logger.Info("scenario loaded",
		zap.String("scenario", id),
		zap.String("case_id", string(c.ID)),
		zap.String("method", string(c.Method)),
	)
	return c, nil
}
