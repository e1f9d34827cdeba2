/*
Package statutory provides the reference tables of CPI and minimum wage.

PURPOSE:
  The readjustment engine never computes or infers CPI or minimum-wage
  values; it only looks them up. This package owns those lookups as
  versioned, append-only configuration data, because the tables are
  extended every year by statute.

KEY CONCEPTS:
  - Table: one immutable version of the index (contiguous years)
  - Extend: produces a NEW version with more years, never edits rows
  - Registry: all known versions, selected by case configuration

INVARIANTS (enforced by NewTable):
  1. At least one row
  2. Exactly one row per year, ascending, no gaps
  3. FiveTimesMinimumWage == MinimumWageMonthly * 5 on every row

USAGE:
  table := statutory.Reference()            // 1999-2015, embedded
  next, err := table.Extend("co-1999-2016", row2016)
  results, err := settlement.Compute(history, next, method, opts)

SEE ALSO:
  - loader.go: YAML format
  - reference.go: Embedded legally published table
  - settlement/types.go: IndexLookup interface
*/
package statutory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/liquidador/settlement"
)

var (
	// ErrEmptyTable is returned for a table with no rows.
	ErrEmptyTable = errors.New("statutory table has no rows")

	// ErrVersionExists is returned when registering a version twice.
	ErrVersionExists = errors.New("statutory table version already registered")

	// ErrVersionNotFound is returned for an unknown version.
	ErrVersionNotFound = errors.New("statutory table version not found")
)

// =============================================================================
// TABLE
// =============================================================================

// Table is one immutable version of the statutory index.
// It is safe for concurrent reads.
type Table struct {
	version     string
	description string
	rows        []settlement.StatutoryIndexRow
	byYear      map[int]int
}

// NewTable validates rows and builds a table. Rows are copied.
func NewTable(version, description string, rows []settlement.StatutoryIndexRow) (*Table, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}

	sorted := append([]settlement.StatutoryIndexRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Year < sorted[j].Year })

	byYear := make(map[int]int, len(sorted))
	for i, r := range sorted {
		if !r.Consistent() {
			return nil, &settlement.IndexRowError{
				Year:   r.Year,
				Reason: fmt.Sprintf("five_times_minimum_wage %s != 5 x %s", r.FiveTimesMinimumWage, r.MinimumWageMonthly),
				Err:    settlement.ErrInconsistentIndexRow,
			}
		}
		if i > 0 && r.Year != sorted[i-1].Year+1 {
			reason := fmt.Sprintf("follows %d", sorted[i-1].Year)
			if r.Year == sorted[i-1].Year {
				reason = "duplicated"
			}
			return nil, &settlement.IndexRowError{Year: r.Year, Reason: reason, Err: settlement.ErrIndexGap}
		}
		byYear[r.Year] = i
	}

	return &Table{
		version:     version,
		description: description,
		rows:        sorted,
		byYear:      byYear,
	}, nil
}

// Row implements settlement.IndexLookup.
func (t *Table) Row(year int) (settlement.StatutoryIndexRow, bool) {
	i, ok := t.byYear[year]
	if !ok {
		return settlement.StatutoryIndexRow{}, false
	}
	return t.rows[i], true
}

func (t *Table) Version() string     { return t.version }
func (t *Table) Description() string { return t.description }
func (t *Table) FirstYear() int      { return t.rows[0].Year }
func (t *Table) LastYear() int       { return t.rows[len(t.rows)-1].Year }
func (t *Table) Len() int            { return len(t.rows) }

// Rows returns a copy of the rows in year order.
func (t *Table) Rows() []settlement.StatutoryIndexRow {
	return append([]settlement.StatutoryIndexRow(nil), t.rows...)
}

// Covers reports whether every year in [from, to] has a row.
func (t *Table) Covers(from, to int) bool {
	return from >= t.FirstYear() && to <= t.LastYear() && from <= to
}

// Extend returns a new version with rows appended after LastYear.
// The receiver is never modified.
func (t *Table) Extend(version string, rows ...settlement.StatutoryIndexRow) (*Table, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}
	for _, r := range rows {
		if r.Year <= t.LastYear() {
			return nil, &settlement.IndexRowError{
				Year:   r.Year,
				Reason: fmt.Sprintf("already covered by version %s (append-only)", t.version),
				Err:    settlement.ErrIndexGap,
			}
		}
	}
	combined := make([]settlement.StatutoryIndexRow, 0, len(t.rows)+len(rows))
	combined = append(combined, t.rows...)
	combined = append(combined, rows...)
	return NewTable(version, t.description, combined)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds every known table version.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
	order  []string
}

// NewRegistry creates a registry with the given tables, in order.
func NewRegistry(tables ...*Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]*Table)}
	for _, t := range tables {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a version. Versions are never replaced.
func (r *Registry) Add(t *Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[t.version]; ok {
		return fmt.Errorf("%w: %s", ErrVersionExists, t.version)
	}
	r.tables[t.version] = t
	r.order = append(r.order, t.version)
	return nil
}

// Get returns a version. An empty version means Latest.
func (r *Registry) Get(version string) (*Table, error) {
	if version == "" {
		if t := r.Latest(); t != nil {
			return t, nil
		}
		return nil, ErrVersionNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	return t, nil
}

// Latest returns the most recently registered version, or nil.
func (r *Registry) Latest() *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return nil
	}
	return r.tables[r.order[len(r.order)-1]]
}

// Versions returns the registered versions in registration order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Tables returns the registered tables in registration order.
func (r *Registry) Tables() []*Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Table, 0, len(r.order))
	for _, v := range r.order {
		result = append(result, r.tables[v])
	}
	return result
}
