/*
handlers.go - HTTP API handlers for the pension readjustment engine

PURPOSE:
  Exposes the readjustment engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Reference data:
    GET    /api/methods                  List legal methods
    GET    /api/index                    List statutory table versions
    GET    /api/index/{version}          Rows of one version
    POST   /api/index                    Register a new version (append-only)

  Computation:
    POST   /api/settlements/compute      Stateless settlement table

  Cases:
    GET    /api/cases                    List cases
    POST   /api/cases                    Create case from JSON
    GET    /api/cases/{id}               Get case
    DELETE /api/cases/{id}               Delete case (runs are kept)
    PUT    /api/cases/{id}/observations  Replace payment history
    POST   /api/cases/{id}/settle        Compute and store a run
    GET    /api/cases/{id}/runs          Runs of a case, newest first

  Runs:
    GET    /api/runs/{id}                Run details
    GET    /api/runs/{id}/report.csv     Rendered table
    GET    /api/runs/{id}/report.pdf     Rendered table

  Batch:
    POST   /api/batch/settle             Settle many cases in parallel

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Indexes: Statutory table versions, mirrored in the store
  - Cases: JSON to Case conversion
  - Runner: Parallel settlement for batches

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed JSON
  - 404: Case, run or table version not found
  - 409: Table version or run already exists
  - 422: Input the engine rejects (unordered years, missing index data,
         method without social-security data, invalid observation)
  - 500: Internal errors
  A rejected computation never produces a partial table.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo cases
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/warp/liquidador/batch"
	"github.com/warp/liquidador/factory"
	"github.com/warp/liquidador/report"
	"github.com/warp/liquidador/settlement"
	"github.com/warp/liquidador/statutory"
	"github.com/warp/liquidador/store/sqlite"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Indexes *statutory.Registry
	Cases   *factory.CaseFactory
	Runner  *batch.Runner
	Logger  *zap.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler. A nil registry means the embedded
// reference table only; a nil runner a default one.
func NewHandler(store *sqlite.Store, indexes *statutory.Registry, runner *batch.Runner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if indexes == nil {
		indexes = statutory.DefaultRegistry()
	}
	if runner == nil {
		runner = batch.NewRunner(0, 30*time.Second, logger)
	}
	return &Handler{
		Store:   store,
		Indexes: indexes,
		Cases:   factory.NewCaseFactory(),
		Runner:  runner,
		Logger:  logger,
	}
}

// SyncIndexTables makes the registry and the store hold the same versions:
// stored versions missing from the registry are registered, registered
// versions missing from the store are archived.
func (h *Handler) SyncIndexTables(ctx context.Context) error {
	stored, err := h.Store.ListIndexTables(ctx)
	if err != nil {
		return err
	}

	inStore := make(map[string]bool, len(stored))
	for _, t := range stored {
		inStore[t.Version()] = true
		if _, err := h.Indexes.Get(t.Version()); err == nil {
			continue
		}
		if err := h.Indexes.Add(t); err != nil {
			return err
		}
	}
	for _, t := range h.Indexes.Tables() {
		if inStore[t.Version()] {
			continue
		}
		if err := h.Store.SaveIndexTable(ctx, t); err != nil {
			return err
		}
	}
	h.Logger.Info("statutory tables ready",
		zap.Strings("versions", h.Indexes.Versions()),
		zap.String("latest", h.Indexes.Latest().Version()),
	)
	return nil
}

// =============================================================================
// REFERENCE DATA HANDLERS
// =============================================================================

// ListMethods returns the legal methods.
func (h *Handler) ListMethods(w http.ResponseWriter, r *http.Request) {
	methods := settlement.Methods()
	dtos := make([]MethodDTO, len(methods))
	for i, m := range methods {
		dtos[i] = toMethodDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListIndexTables returns every statutory table version, without rows.
func (h *Handler) ListIndexTables(w http.ResponseWriter, r *http.Request) {
	latest := h.Indexes.Latest()
	tables := h.Indexes.Tables()
	dtos := make([]IndexTableDTO, len(tables))
	for i, t := range tables {
		dtos[i] = toIndexTableDTO(t, t == latest, false)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetIndexTable returns one version with its rows.
func (h *Handler) GetIndexTable(w http.ResponseWriter, r *http.Request) {
	t, err := h.Indexes.Get(chi.URLParam(r, "version"))
	if err != nil {
		h.writeDomainError(w, r, "Table version not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toIndexTableDTO(t, t == h.Indexes.Latest(), true))
}

// RegisterIndexTable adds a new table version. Existing versions are never
// replaced.
func (h *Handler) RegisterIndexTable(w http.ResponseWriter, r *http.Request) {
	var req RegisterIndexRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Version == "" {
		writeError(w, http.StatusBadRequest, "version is required", nil)
		return
	}
	if _, err := h.Indexes.Get(req.Version); err == nil {
		h.writeDomainError(w, r, "Table version already exists", fmt.Errorf("%w: %s", statutory.ErrVersionExists, req.Version))
		return
	}

	rows := make([]settlement.StatutoryIndexRow, 0, len(req.Rows))
	for _, rf := range req.Rows {
		row, err := rf.Row()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid index row", err)
			return
		}
		rows = append(rows, row)
	}

	var table *statutory.Table
	var err error
	if req.Extends != "" {
		base, gerr := h.Indexes.Get(req.Extends)
		if gerr != nil {
			h.writeDomainError(w, r, "Base table version not found", gerr)
			return
		}
		table, err = base.Extend(req.Version, rows...)
	} else {
		table, err = statutory.NewTable(req.Version, req.Description, rows)
	}
	if err != nil {
		h.writeDomainError(w, r, "Invalid statutory table", err)
		return
	}

	if err := h.RegisterTable(r.Context(), table); err != nil {
		h.writeDomainError(w, r, "Failed to register table", err)
		return
	}
	writeJSON(w, http.StatusCreated, toIndexTableDTO(table, true, false))
}

// RegisterTable archives a new version and makes it the latest.
func (h *Handler) RegisterTable(ctx context.Context, table *statutory.Table) error {
	if _, err := h.Indexes.Get(table.Version()); err == nil {
		return fmt.Errorf("%w: %s", statutory.ErrVersionExists, table.Version())
	}
	if err := h.Store.SaveIndexTable(ctx, table); err != nil {
		return err
	}
	if err := h.Indexes.Add(table); err != nil {
		return err
	}

	h.Logger.Info("statutory table registered",
		zap.String("version", table.Version()),
		zap.Int("first_year", table.FirstYear()),
		zap.Int("last_year", table.LastYear()),
	)
	return nil
}

// =============================================================================
// COMPUTATION HANDLERS
// =============================================================================

// ComputeSettlement computes a table without storing anything.
func (h *Handler) ComputeSettlement(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.Cases.FromJSON(factory.CaseJSON{
		Method:        req.Method,
		SeedPolicy:    req.SeedPolicy,
		Rounding:      req.Rounding,
		Places:        req.Places,
		InitialMesada: req.InitialMesada,
		IndexVersion:  req.IndexVersion,
		Observations:  req.Observations,
	})
	if err != nil {
		h.writeDomainError(w, r, "Invalid computation request", err)
		return
	}

	table, err := h.Indexes.Get(c.IndexVersion)
	if err != nil {
		h.writeDomainError(w, r, "Table version not found", err)
		return
	}

	s, err := c.Settle(table)
	if err != nil {
		h.writeDomainError(w, r, "Settlement rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, SettlementDTO{IndexVersion: table.Version(), Settlement: *s})
}

// =============================================================================
// CASE HANDLERS
// =============================================================================

// ListCases returns all cases.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.Store.ListCases(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cases", err)
		return
	}

	dtos := make([]CaseDTO, len(cases))
	for i, c := range cases {
		dtos[i] = toCaseDTO(h.Cases, c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCase creates a case from its JSON definition.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req factory.CaseJSON
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PensionerName == "" {
		writeError(w, http.StatusBadRequest, "pensioner_name is required", nil)
		return
	}

	c, err := h.Cases.FromJSON(req)
	if err != nil {
		h.writeDomainError(w, r, "Invalid case", err)
		return
	}
	if c.IndexVersion != "" {
		if _, err := h.Indexes.Get(c.IndexVersion); err != nil {
			h.writeDomainError(w, r, "Table version not found", err)
			return
		}
	}

	if err := h.Store.SaveCase(r.Context(), *c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save case", err)
		return
	}

	h.Logger.Info("case created",
		zap.String("case_id", string(c.ID)),
		zap.String("method", string(c.Method)),
		zap.Int("years", len(c.Observations)),
	)
	writeJSON(w, http.StatusCreated, toCaseDTO(h.Cases, *c))
}

// GetCase returns a case.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetCase(r.Context(), settlement.CaseID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Case not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseDTO(h.Cases, *c))
}

// DeleteCase removes a case. Its runs are kept.
func (h *Handler) DeleteCase(w http.ResponseWriter, r *http.Request) {
	id := settlement.CaseID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteCase(r.Context(), id); err != nil {
		h.writeDomainError(w, r, "Case not found", err)
		return
	}
	h.Logger.Info("case deleted", zap.String("case_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceObservations replaces a case's payment history.
func (h *Handler) ReplaceObservations(w http.ResponseWriter, r *http.Request) {
	id := settlement.CaseID(chi.URLParam(r, "id"))

	var req ReplaceObservationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.Store.ReplaceObservations(r.Context(), id, factory.ParseObservations(req.Observations)); err != nil {
		h.writeDomainError(w, r, "Failed to replace observations", err)
		return
	}

	c, err := h.Store.GetCase(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Case not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseDTO(h.Cases, *c))
}

// SettleCase computes a case and stores the result as a new run.
func (h *Handler) SettleCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetCase(r.Context(), settlement.CaseID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Case not found", err)
		return
	}

	run, err := h.settleAndStore(r.Context(), *c)
	if err != nil {
		h.writeDomainError(w, r, "Settlement rejected", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunDTO(*run))
}

func (h *Handler) settleAndStore(ctx context.Context, c settlement.Case) (*settlement.Run, error) {
	table, err := h.Indexes.Get(c.IndexVersion)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	s, err := c.Settle(table)
	if err != nil {
		h.Logger.Info("settlement rejected",
			zap.String("case_id", string(c.ID)),
			zap.String("code", settlement.Code(err)),
			zap.Error(err),
		)
		return nil, err
	}

	run := settlement.NewRun(c.ID, table.Version(), c.Options, *s)
	if err := h.Store.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	h.Logger.Info("case settled",
		zap.String("case_id", string(c.ID)),
		zap.String("run_id", string(run.ID)),
		zap.String("method", string(s.Method)),
		zap.String("index_version", table.Version()),
		zap.Int("years", len(s.Rows)),
		zap.String("total_owed", s.TotalOwed.String()),
		zap.Duration("duration", time.Since(started)),
	)
	return &run, nil
}

// ListRuns returns a case's runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context(), settlement.CaseID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// GetRun returns a run.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), settlement.RunID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Run not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// GetRunCSV renders a run as CSV.
func (h *Handler) GetRunCSV(w http.ResponseWriter, r *http.Request) {
	run, header, ok := h.loadRunForReport(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, run.Settlement); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render report", err)
		return
	}
	writeAttachment(w, "text/csv", fmt.Sprintf("liquidacion-%s.csv", header.CaseID), buf.Bytes())
}

// GetRunPDF renders a run as PDF.
func (h *Handler) GetRunPDF(w http.ResponseWriter, r *http.Request) {
	run, header, ok := h.loadRunForReport(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.WritePDF(&buf, run.Settlement, header); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render report", err)
		return
	}
	writeAttachment(w, "application/pdf", fmt.Sprintf("liquidacion-%s.pdf", header.CaseID), buf.Bytes())
}

func (h *Handler) loadRunForReport(w http.ResponseWriter, r *http.Request) (*settlement.Run, report.Header, bool) {
	run, err := h.Store.GetRun(r.Context(), settlement.RunID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Run not found", err)
		return nil, report.Header{}, false
	}

	header := report.Header{
		CaseID:       string(run.CaseID),
		IndexVersion: run.IndexVersion,
		RunID:        string(run.ID),
		GeneratedAt:  run.CreatedAt,
	}
	// The case may have been deleted; the run still renders.
	if c, err := h.Store.GetCase(r.Context(), run.CaseID); err == nil {
		header.PensionerName = c.PensionerName
		header.PensionerDocument = c.PensionerDocument
	}
	return run, header, true
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// BatchSettle settles many cases in parallel. One failing case never
// fails the request; its outcome carries the error.
func (h *Handler) BatchSettle(w http.ResponseWriter, r *http.Request) {
	var req BatchSettleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()

	var cases []settlement.Case
	if len(req.CaseIDs) == 0 {
		all, err := h.Store.ListCases(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list cases", err)
			return
		}
		cases = all
	}

	resp := BatchSettleResponse{Outcomes: make([]BatchOutcomeDTO, 0)}
	var jobs []batch.Job
	var jobCases []settlement.Case
	var jobTables []string
	// position of each job's outcome in resp.Outcomes
	var slots []int

	addFailure := func(id settlement.CaseID, err error) {
		resp.Outcomes = append(resp.Outcomes, BatchOutcomeDTO{
			CaseID: string(id),
			Error:  err.Error(),
			Code:   errorCode(err),
		})
	}
	addJob := func(c settlement.Case) {
		table, err := h.Indexes.Get(c.IndexVersion)
		if err != nil {
			addFailure(c.ID, err)
			return
		}
		job, err := batch.JobFromCase(c, table)
		if err != nil {
			addFailure(c.ID, err)
			return
		}
		slots = append(slots, len(resp.Outcomes))
		resp.Outcomes = append(resp.Outcomes, BatchOutcomeDTO{CaseID: string(c.ID)})
		jobs = append(jobs, job)
		jobCases = append(jobCases, c)
		jobTables = append(jobTables, table.Version())
	}

	if len(req.CaseIDs) == 0 {
		for _, c := range cases {
			addJob(c)
		}
	} else {
		for _, id := range req.CaseIDs {
			c, err := h.Store.GetCase(ctx, settlement.CaseID(id))
			if err != nil {
				addFailure(settlement.CaseID(id), err)
				continue
			}
			addJob(*c)
		}
	}

	outcomes := h.Runner.Run(ctx, jobs)
	for i, o := range outcomes {
		dto := &resp.Outcomes[slots[i]]
		dto.DurationMS = float64(o.Duration.Microseconds()) / 1000
		if o.Err != nil {
			dto.Error = o.Err.Error()
			dto.Code = errorCode(o.Err)
			continue
		}
		total := o.Settlement.TotalOwed
		dto.TotalOwed = &total
		dto.Years = len(o.Settlement.Rows)

		if req.Persist {
			c := jobCases[i]
			run := settlement.NewRun(c.ID, jobTables[i], c.Options, *o.Settlement)
			if err := h.Store.SaveRun(ctx, run); err != nil {
				dto.Error = err.Error()
				dto.Code = errorCode(err)
				dto.TotalOwed = nil
				continue
			}
			dto.RunID = string(run.ID)
		}
	}

	for _, o := range resp.Outcomes {
		if o.Error != "" {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    errorCode(err),
		Details: err.Error(),
	})
}

func errorStatus(err error) int {
	switch {
	case settlement.IsNotFound(err), errors.Is(err, statutory.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.Is(err, statutory.ErrVersionExists), errors.Is(err, settlement.ErrDuplicateRun):
		return http.StatusConflict
	case errors.Is(err, statutory.ErrEmptyTable):
		return http.StatusBadRequest
	case settlement.IsClientError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, statutory.ErrVersionNotFound):
		return "index_version_not_found"
	case errors.Is(err, statutory.ErrVersionExists):
		return "index_version_exists"
	case errors.Is(err, statutory.ErrEmptyTable):
		return "empty_index_table"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return settlement.Code(err)
}
