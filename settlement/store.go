/*
store.go - Cases, settlement runs and their persistence interfaces

PURPOSE:
  A Case is one pensioner's configuration (method, seed and rounding
  policy, index version) plus their payment history. A Run is the
  immutable result of settling a case at a point in time. Different
  implementations can use SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  Runs are never updated or deleted through RunStore. Re-settling a case
  produces a new Run; earlier runs stay as they were, so a settlement
  handed to a court can always be reproduced.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - settlement/store/memory.go: In-memory for tests and the CLI

SEE ALSO:
  - engine.go: Compute used by Case.Settle
  - api/handlers.go: HTTP surface over these stores
*/
package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CASE
// =============================================================================

type CaseID string
type RunID string

// Case is a pensioner's settlement configuration and payment history.
type Case struct {
	ID                CaseID
	PensionerName     string
	PensionerDocument string
	Method            MethodName
	Options           Options
	IndexVersion      string // empty means the latest registered table
	Observations      []PaymentObservation
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewCaseID returns a fresh case identifier.
func NewCaseID() CaseID {
	return CaseID("case-" + uuid.NewString())
}

// Settle computes the case against an index table.
func (c Case) Settle(index IndexLookup) (*Settlement, error) {
	method, err := LookupMethod(string(c.Method))
	if err != nil {
		return nil, err
	}
	return NewEngine(method, index, c.Options).Settle(c.Observations)
}

// =============================================================================
// RUN
// =============================================================================

// Run is an immutable, persisted settlement.
type Run struct {
	ID           RunID
	CaseID       CaseID
	IndexVersion string
	Options      Options
	Settlement   Settlement
	CreatedAt    time.Time
}

// NewRun wraps a computed settlement in a run with a fresh ID.
func NewRun(caseID CaseID, indexVersion string, opts Options, s Settlement) Run {
	return Run{
		ID:           RunID(uuid.NewString()),
		CaseID:       caseID,
		IndexVersion: indexVersion,
		Options:      opts,
		Settlement:   s,
		CreatedAt:    time.Now().UTC(),
	}
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

// CaseStore persists cases. SaveCase replaces an existing case with the
// same ID, including its observations.
type CaseStore interface {
	SaveCase(ctx context.Context, c Case) error

	// GetCase returns ErrCaseNotFound when the case doesn't exist.
	GetCase(ctx context.Context, id CaseID) (*Case, error)

	ListCases(ctx context.Context) ([]Case, error)
	DeleteCase(ctx context.Context, id CaseID) error
}

// RunStore persists settlement runs. Append-only.
type RunStore interface {
	// SaveRun returns ErrDuplicateRun when the ID already exists.
	SaveRun(ctx context.Context, r Run) error

	// GetRun returns ErrRunNotFound when the run doesn't exist.
	GetRun(ctx context.Context, id RunID) (*Run, error)

	// ListRuns returns a case's runs, newest first.
	ListRuns(ctx context.Context, caseID CaseID) ([]Run, error)
}

// Store combines both interfaces.
type Store interface {
	CaseStore
	RunStore
}
