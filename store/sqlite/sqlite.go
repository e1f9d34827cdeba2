/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the persistence interfaces (settlement.CaseStore,
  settlement.RunStore) and the statutory table archive using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  settlement.CaseStore: Pensioner cases and their payment histories
  settlement.RunStore:  Computed settlements (immutable)

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on settlement_runs
  - No UPDATE statements on index_tables or index_rows; a new table
    version is a new set of rows
  Cases and observations are mutable working data.

KEY TABLES:
  cases:           One row per pensioner case (method, options, index version)
  observations:    Payment history rows, cascade-deleted with their case
  index_tables:    Statutory table versions
  index_rows:      CPI and minimum wage per version and year
  settlement_runs: Computed settlements, full result as JSON

DECIMALS:
  Money and percentages are stored as TEXT and decoded with
  decimal.NewFromString, so no value ever passes through a float.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/liquidador.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - settlement/store.go: Interface definitions
  - settlement/store/memory.go: In-memory implementation for testing
  - statutory/table.go: Index table versions
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/liquidador/settlement"
	"github.com/warp/liquidador/statutory"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ settlement.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Cases
	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		pensioner_name TEXT NOT NULL,
		pensioner_document TEXT,
		method TEXT NOT NULL,
		options_json TEXT NOT NULL,
		index_version TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cases_name
		ON cases(pensioner_name);

	-- Payment history, in the order given by the case file
	CREATE TABLE IF NOT EXISTS observations (
		case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		year INTEGER NOT NULL,
		mesada_paid_by_employer TEXT NOT NULL,
		mesada_from_social_security TEXT,
		number_of_installments INTEGER NOT NULL,
		PRIMARY KEY (case_id, position)
	);

	-- Statutory table versions (append-only)
	CREATE TABLE IF NOT EXISTS index_tables (
		version TEXT PRIMARY KEY,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS index_rows (
		version TEXT NOT NULL REFERENCES index_tables(version),
		year INTEGER NOT NULL,
		cpi_percent TEXT NOT NULL,
		minimum_wage_monthly TEXT NOT NULL,
		five_times_minimum_wage TEXT NOT NULL,
		PRIMARY KEY (version, year)
	);

	-- Settlement runs (append-only)
	CREATE TABLE IF NOT EXISTS settlement_runs (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		index_version TEXT NOT NULL,
		method TEXT NOT NULL,
		options_json TEXT NOT NULL,
		result_json TEXT NOT NULL,
		total_owed TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settlement_runs_case
		ON settlement_runs(case_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CASE STORE (settlement.CaseStore interface)
// =============================================================================

// SaveCase inserts or replaces a case and its whole payment history.
func (s *Store) SaveCase(ctx context.Context, c settlement.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	optionsJSON, err := json.Marshal(c.Options)
	if err != nil {
		return fmt.Errorf("failed to encode case options: %w", err)
	}

	now := time.Now().UTC()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO cases (id, pensioner_name, pensioner_document, method, options_json, index_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pensioner_name = excluded.pensioner_name,
			pensioner_document = excluded.pensioner_document,
			method = excluded.method,
			options_json = excluded.options_json,
			index_version = excluded.index_version,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		string(c.ID), c.PensionerName, nullString(c.PensionerDocument), string(c.Method),
		string(optionsJSON), nullString(c.IndexVersion),
		formatTime(createdAt), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to save case: %w", err)
	}

	if err := replaceObservations(ctx, tx, c.ID, c.Observations); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceObservations swaps a case's payment history.
func (s *Store) ReplaceObservations(ctx context.Context, id settlement.CaseID, observations []settlement.PaymentObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE cases SET updated_at = ? WHERE id = ?", formatTime(time.Now().UTC()), string(id))
	if err != nil {
		return fmt.Errorf("failed to touch case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return settlement.ErrCaseNotFound
	}

	if err := replaceObservations(ctx, tx, id, observations); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceObservations(ctx context.Context, tx *sql.Tx, id settlement.CaseID, observations []settlement.PaymentObservation) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM observations WHERE case_id = ?", string(id)); err != nil {
		return fmt.Errorf("failed to clear observations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations
		(case_id, position, year, mesada_paid_by_employer, mesada_from_social_security, number_of_installments)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare observation insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range observations {
		_, err := stmt.ExecContext(ctx,
			string(id), i, o.Year,
			o.MesadaPaidByEmployer.String(),
			nullDecimal(o.MesadaFromSocialSecurity),
			o.NumberOfInstallments,
		)
		if err != nil {
			return fmt.Errorf("failed to save observation %d: %w", o.Year, err)
		}
	}
	return nil
}

// GetCase retrieves a case with its payment history.
func (s *Store) GetCase(ctx context.Context, id settlement.CaseID) (*settlement.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, pensioner_name, pensioner_document, method, options_json, index_version, created_at, updated_at
		FROM cases WHERE id = ?
	`, string(id))

	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, settlement.ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Observations, err = s.loadObservations(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCases returns all cases ordered by pensioner name.
func (s *Store) ListCases(ctx context.Context) ([]settlement.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pensioner_name, pensioner_document, method, options_json, index_version, created_at, updated_at
		FROM cases ORDER BY pensioner_name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}

	var cases []settlement.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		cases = append(cases, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range cases {
		cases[i].Observations, err = s.loadObservations(ctx, cases[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return cases, nil
}

// DeleteCase removes a case and its observations. Its runs are kept.
func (s *Store) DeleteCase(ctx context.Context, id settlement.CaseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM cases WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return settlement.ErrCaseNotFound
	}
	return nil
}

func (s *Store) loadObservations(ctx context.Context, id settlement.CaseID) ([]settlement.PaymentObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT year, mesada_paid_by_employer, mesada_from_social_security, number_of_installments
		FROM observations WHERE case_id = ? ORDER BY position
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	result := []settlement.PaymentObservation{}
	for rows.Next() {
		var o settlement.PaymentObservation
		var paid string
		var ss sql.NullString
		if err := rows.Scan(&o.Year, &paid, &ss, &o.NumberOfInstallments); err != nil {
			return nil, err
		}
		if o.MesadaPaidByEmployer, err = decimal.NewFromString(paid); err != nil {
			return nil, fmt.Errorf("corrupt observation %d: %w", o.Year, err)
		}
		if o.MesadaFromSocialSecurity, err = parseNullDecimal(ss); err != nil {
			return nil, fmt.Errorf("corrupt observation %d: %w", o.Year, err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (*settlement.Case, error) {
	var c settlement.Case
	var id, method, optionsJSON, createdAt, updatedAt string
	var document, indexVersion sql.NullString

	if err := row.Scan(&id, &c.PensionerName, &document, &method, &optionsJSON, &indexVersion, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(optionsJSON), &c.Options); err != nil {
		return nil, fmt.Errorf("corrupt options for case %s: %w", id, err)
	}

	c.ID = settlement.CaseID(id)
	c.Method = settlement.MethodName(method)
	c.PensionerDocument = document.String
	c.IndexVersion = indexVersion.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// =============================================================================
// RUN STORE (settlement.RunStore interface)
// =============================================================================

// SaveRun appends a settlement run. Append-only.
func (s *Store) SaveRun(ctx context.Context, r settlement.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	optionsJSON, err := json.Marshal(r.Options)
	if err != nil {
		return fmt.Errorf("failed to encode run options: %w", err)
	}
	resultJSON, err := json.Marshal(r.Settlement)
	if err != nil {
		return fmt.Errorf("failed to encode settlement: %w", err)
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settlement_runs (id, case_id, index_version, method, options_json, result_json, total_owed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(r.ID), string(r.CaseID), r.IndexVersion, string(r.Settlement.Method),
		string(optionsJSON), string(resultJSON), r.Settlement.TotalOwed.String(),
		formatTime(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return settlement.ErrDuplicateRun
		}
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id settlement.RunID) (*settlement.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, case_id, index_version, options_json, result_json, created_at
		FROM settlement_runs WHERE id = ?
	`, string(id))

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, settlement.ErrRunNotFound
	}
	return r, err
}

// ListRuns returns a case's runs, newest first.
func (s *Store) ListRuns(ctx context.Context, caseID settlement.CaseID) ([]settlement.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, index_version, options_json, result_json, created_at
		FROM settlement_runs WHERE case_id = ?
		ORDER BY created_at DESC, id
	`, string(caseID))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []settlement.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanRun(row scanner) (*settlement.Run, error) {
	var r settlement.Run
	var id, caseID, optionsJSON, resultJSON, createdAt string

	if err := row.Scan(&id, &caseID, &r.IndexVersion, &optionsJSON, &resultJSON, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(optionsJSON), &r.Options); err != nil {
		return nil, fmt.Errorf("corrupt options for run %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(resultJSON), &r.Settlement); err != nil {
		return nil, fmt.Errorf("corrupt result for run %s: %w", id, err)
	}

	r.ID = settlement.RunID(id)
	r.CaseID = settlement.CaseID(caseID)
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

// =============================================================================
// STATUTORY TABLE ARCHIVE
// =============================================================================

// SaveIndexTable archives a table version. Versions are never replaced:
// saving an existing version returns statutory.ErrVersionExists.
func (s *Store) SaveIndexTable(ctx context.Context, t *statutory.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO index_tables (version, description, created_at) VALUES (?, ?, ?)",
		t.Version(), t.Description(), formatTime(time.Now().UTC()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", statutory.ErrVersionExists, t.Version())
		}
		return fmt.Errorf("failed to save index table: %w", err)
	}

	for _, r := range t.Rows() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO index_rows (version, year, cpi_percent, minimum_wage_monthly, five_times_minimum_wage)
			VALUES (?, ?, ?, ?, ?)
		`, t.Version(), r.Year, r.CPIPercent.String(), r.MinimumWageMonthly.String(), r.FiveTimesMinimumWage.String())
		if err != nil {
			return fmt.Errorf("failed to save index row %d: %w", r.Year, err)
		}
	}
	return tx.Commit()
}

// LoadIndexTable rebuilds a stored version, re-running table validation.
func (s *Store) LoadIndexTable(ctx context.Context, version string) (*statutory.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadIndexTable(ctx, version)
}

// ListIndexTables returns every stored version in the order it was saved.
func (s *Store) ListIndexTables(ctx context.Context) ([]*statutory.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT version FROM index_tables ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query index tables: %w", err)
	}
	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, err
		}
		versions = append(versions, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]*statutory.Table, 0, len(versions))
	for _, v := range versions {
		t, err := s.loadIndexTable(ctx, v)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (s *Store) loadIndexTable(ctx context.Context, version string) (*statutory.Table, error) {
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT description FROM index_tables WHERE version = ?", version).Scan(&description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", statutory.ErrVersionNotFound, version)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT year, cpi_percent, minimum_wage_monthly, five_times_minimum_wage
		FROM index_rows WHERE version = ? ORDER BY year
	`, version)
	if err != nil {
		return nil, fmt.Errorf("failed to query index rows: %w", err)
	}
	defer rows.Close()

	var list []settlement.StatutoryIndexRow
	for rows.Next() {
		var f statutory.RowFile
		if err := rows.Scan(&f.Year, &f.CPIPercent, &f.MinimumWageMonthly, &f.FiveTimesMinimumWage); err != nil {
			return nil, err
		}
		r, err := f.Row()
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return statutory.NewTable(version, description.String, list)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"observations", "cases", "settlement_runs", "index_rows", "index_tables"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// formatTime keeps sub-second precision so runs created in the same
// second still sort by creation.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
