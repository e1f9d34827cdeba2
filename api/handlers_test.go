/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Stateless computation and error mapping (422 codes, never partial tables)
- Case lifecycle, settlement runs and reports
- Statutory table registration (append-only)
- Batch settlement with failure isolation
*/
package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/liquidador/batch"
	"github.com/warp/liquidador/statutory"
	"github.com/warp/liquidador/store/sqlite"
)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zaptest.NewLogger(t)
	h := NewHandler(store, statutory.DefaultRegistry(), batch.NewRunner(2, 0, logger), logger)
	require.NoError(t, h.SyncIndexTables(context.Background()))
	return h
}

func do(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const createCaseBody = `{
  "id": "case-1",
  "pensioner_name": "Rosa Elena Cárdenas",
  "pensioner_document": "CC 1",
  "method": "escolastica",
  "observations": [
    {"year": 1999, "mesada_paid_by_employer": "200000", "number_of_installments": 14},
    {"year": 2000, "mesada_paid_by_employer": "200000", "number_of_installments": 14}
  ]
}`

// =============================================================================
// REFERENCE DATA
// =============================================================================

func TestListMethods(t *testing.T) {
	h := setupTestHandler(t)

	rec := do(t, h, http.MethodGet, "/api/methods", "")
	require.Equal(t, http.StatusOK, rec.Code)

	methods := decode[[]MethodDTO](t, rec)
	require.Len(t, methods, 3)
	assert.Equal(t, "escolastica", methods[0].Name)
	assert.False(t, methods[0].RequiresSocialSecurity)
	assert.True(t, methods[1].RequiresSocialSecurity)
}

func TestIndexTables_ListGetRegister(t *testing.T) {
	h := setupTestHandler(t)

	rec := do(t, h, http.MethodGet, "/api/index", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tables := decode[[]IndexTableDTO](t, rec)
	require.Len(t, tables, 1)
	assert.Equal(t, statutory.ReferenceVersion, tables[0].Version)
	assert.True(t, tables[0].Latest)
	assert.Empty(t, tables[0].Rows)

	rec = do(t, h, http.MethodGet, "/api/index/"+statutory.ReferenceVersion, "")
	require.Equal(t, http.StatusOK, rec.Code)
	table := decode[IndexTableDTO](t, rec)
	assert.Len(t, table.Rows, 17)

	// GIVEN: A new version extending the reference table by 2016
	body := `{"version": "co-1999-2016", "extends": "co-1999-2015",
	          "rows": [{"year": 2016, "cpi_percent": "6.77", "minimum_wage_monthly": "689455"}]}`
	rec = do(t, h, http.MethodPost, "/api/index", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[IndexTableDTO](t, rec)
	assert.Equal(t, 2016, created.LastYear)

	// THEN: It becomes the latest and is archived in the store
	assert.Equal(t, "co-1999-2016", h.Indexes.Latest().Version())
	stored, err := h.Store.LoadIndexTable(context.Background(), "co-1999-2016")
	require.NoError(t, err)
	assert.Equal(t, 18, stored.Len())

	// AND: Registering it again conflicts
	rec = do(t, h, http.MethodPost, "/api/index", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/index/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterIndex_RejectsInvalidTable(t *testing.T) {
	h := setupTestHandler(t)

	rec := do(t, h, http.MethodPost, "/api/index", `{"version": "bad",
	  "rows": [{"year": 2000, "cpi_percent": "1", "minimum_wage_monthly": "100", "five_times_minimum_wage": "400"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "inconsistent_index_row", decode[ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/index", `{"version": "gap", "extends": "co-1999-2015",
	  "rows": [{"year": 2017, "cpi_percent": "1", "minimum_wage_monthly": "100"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "index_gap", decode[ErrorResponse](t, rec).Code)

	_, err := h.Indexes.Get("gap")
	assert.Error(t, err, "rejected tables are not registered")
}

// =============================================================================
// STATELESS COMPUTE
// =============================================================================

func TestComputeSettlement(t *testing.T) {
	h := setupTestHandler(t)

	rec := do(t, h, http.MethodPost, "/api/settlements/compute", `{
	  "method": "escolastica",
	  "observations": [{"year": 1999, "mesada_paid_by_employer": 200000, "number_of_installments": 14}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	s := decode[SettlementDTO](t, rec)
	assert.Equal(t, statutory.ReferenceVersion, s.IndexVersion)
	require.Len(t, s.Rows, 1)
	assert.True(t, decimal.NewFromInt(230000).Equal(s.Rows[0].AdjustedMesada))
	assert.True(t, decimal.NewFromInt(420000).Equal(s.TotalOwed))
	assert.Contains(t, rec.Body.String(), `"adjusted_mesada":"230000"`, "money encoded as strings")
}

func TestComputeSettlement_ErrorMapping(t *testing.T) {
	h := setupTestHandler(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{
			name: "unordered",
			body: `{"method": "escolastica", "observations": [
			  {"year": 2001, "mesada_paid_by_employer": "1", "number_of_installments": 14},
			  {"year": 2000, "mesada_paid_by_employer": "1", "number_of_installments": 14}]}`,
			status: http.StatusUnprocessableEntity,
			code:   "unordered_input",
		},
		{
			name: "missing index year",
			body: `{"method": "escolastica", "observations": [
			  {"year": 2020, "mesada_paid_by_employer": "1", "number_of_installments": 14}]}`,
			status: http.StatusUnprocessableEntity,
			code:   "missing_index_data",
		},
		{
			name: "method needs social security",
			body: `{"method": "precedente_4555", "observations": [
			  {"year": 2000, "mesada_paid_by_employer": "1", "number_of_installments": 14}]}`,
			status: http.StatusUnprocessableEntity,
			code:   "invalid_method_configuration",
		},
		{
			name: "invalid installments",
			body: `{"method": "escolastica", "observations": [
			  {"year": 2000, "mesada_paid_by_employer": "1", "number_of_installments": 0}]}`,
			status: http.StatusUnprocessableEntity,
			code:   "invalid_observation",
		},
		{
			name:   "unknown method",
			body:   `{"method": "linear", "observations": []}`,
			status: http.StatusUnprocessableEntity,
			code:   "unknown_method",
		},
		{
			name:   "unknown index version",
			body:   `{"method": "escolastica", "index_version": "co-2030", "observations": []}`,
			status: http.StatusNotFound,
			code:   "index_version_not_found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/settlements/compute", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
			assert.NotContains(t, rec.Body.String(), `"rows"`, "no partial table")
		})
	}

	rec := do(t, h, http.MethodPost, "/api/settlements/compute", `{"method":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CASES AND RUNS
// =============================================================================

func TestCaseLifecycle(t *testing.T) {
	h := setupTestHandler(t)

	// GIVEN: A created case
	rec := do(t, h, http.MethodPost, "/api/cases", createCaseBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[CaseDTO](t, rec)
	assert.Equal(t, "case-1", created.ID)
	assert.Equal(t, "adjusted", created.SeedPolicy)

	rec = do(t, h, http.MethodGet, "/api/cases", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]CaseDTO](t, rec), 1)

	// WHEN: The payment history is replaced
	rec = do(t, h, http.MethodPut, "/api/cases/case-1/observations", `{"observations": [
	  {"year": 1999, "mesada_paid_by_employer": "200000", "number_of_installments": 14},
	  {"year": 2000, "mesada_paid_by_employer": "230000", "number_of_installments": 14},
	  {"year": 2001, "mesada_paid_by_employer": "264500", "number_of_installments": 14}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[CaseDTO](t, rec).Observations, 3)

	// AND: The case is settled twice
	rec = do(t, h, http.MethodPost, "/api/cases/case-1/settle", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[RunDTO](t, rec)
	assert.Equal(t, statutory.ReferenceVersion, first.IndexVersion)
	require.Len(t, first.Settlement.Rows, 3)
	assert.True(t, decimal.NewFromInt(230000).Equal(first.Settlement.Rows[0].AdjustedMesada))

	rec = do(t, h, http.MethodPost, "/api/cases/case-1/settle", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	// THEN: Both runs are kept
	rec = do(t, h, http.MethodGet, "/api/cases/case-1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]RunDTO](t, rec), 2)

	rec = do(t, h, http.MethodGet, "/api/runs/"+first.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.ID, decode[RunDTO](t, rec).ID)

	// AND: Deleting the case keeps its runs
	rec = do(t, h, http.MethodDelete, "/api/cases/case-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/cases/case-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "case_not_found", decode[ErrorResponse](t, rec).Code)
	rec = do(t, h, http.MethodGet, "/api/runs/"+first.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateCase_Validation(t *testing.T) {
	h := setupTestHandler(t)

	rec := do(t, h, http.MethodPost, "/api/cases", `{"method": "escolastica", "observations": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "pensioner_name required")

	rec = do(t, h, http.MethodPost, "/api/cases", `{"pensioner_name": "x", "method": "escolastica", "index_version": "none"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/cases", `{"pensioner_name": "x", "method": "escolastica", "rounding": "up"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_options", decode[ErrorResponse](t, rec).Code)
}

func TestSettleCase_RejectedKeepsNoRun(t *testing.T) {
	h := setupTestHandler(t)

	rec := do(t, h, http.MethodPost, "/api/cases", `{"id": "c", "pensioner_name": "x", "method": "escolastica",
	  "observations": [
	    {"year": 2000, "mesada_paid_by_employer": "1", "number_of_installments": 14},
	    {"year": 1999, "mesada_paid_by_employer": "1", "number_of_installments": 14}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/cases/c/settle", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "unordered_input", decode[ErrorResponse](t, rec).Code)

	runs, err := h.Store.ListRuns(context.Background(), "c")
	require.NoError(t, err)
	assert.Empty(t, runs)

	rec = do(t, h, http.MethodPost, "/api/cases/missing/settle", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunReports(t *testing.T) {
	h := setupTestHandler(t)

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/cases", createCaseBody).Code)
	rec := do(t, h, http.MethodPost, "/api/cases/case-1/settle", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	run := decode[RunDTO](t, rec)

	rec = do(t, h, http.MethodGet, "/api/runs/"+run.ID+"/report.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "liquidacion-case-1.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 1+2+1)
	assert.True(t, strings.HasPrefix(lines[1], "1999,"))

	rec = do(t, h, http.MethodGet, "/api/runs/"+run.ID+"/report.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = do(t, h, http.MethodGet, "/api/runs/missing/report.csv", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// BATCH
// =============================================================================

func TestBatchSettle_FailureIsolated(t *testing.T) {
	h := setupTestHandler(t)

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/cases", createCaseBody).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/cases", `{"id": "case-bad", "pensioner_name": "y",
	  "method": "unidad_prestacional",
	  "observations": [{"year": 2000, "mesada_paid_by_employer": "1", "number_of_installments": 14}]}`).Code)

	rec := do(t, h, http.MethodPost, "/api/batch/settle", `{"case_ids": ["case-1", "case-bad", "case-none"], "persist": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[BatchSettleResponse](t, rec)
	require.Len(t, resp.Outcomes, 3)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 2, resp.Failed)

	assert.Equal(t, "case-1", resp.Outcomes[0].CaseID)
	assert.Empty(t, resp.Outcomes[0].Error)
	assert.NotEmpty(t, resp.Outcomes[0].RunID)
	require.NotNil(t, resp.Outcomes[0].TotalOwed)

	assert.Equal(t, "invalid_method_configuration", resp.Outcomes[1].Code)
	assert.Equal(t, "case_not_found", resp.Outcomes[2].Code)

	runs, err := h.Store.ListRuns(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestBatchSettle_AllCases(t *testing.T) {
	h := setupTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/cases", createCaseBody).Code)

	rec := do(t, h, http.MethodPost, "/api/batch/settle", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[BatchSettleResponse](t, rec)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Empty(t, resp.Outcomes[0].RunID, "not persisted by default")
}
