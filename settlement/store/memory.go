// Package store provides in-memory settlement store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/liquidador/settlement"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	cases map[settlement.CaseID]settlement.Case
	runs  map[settlement.RunID]settlement.Run
}

func NewMemory() *Memory {
	return &Memory{
		cases: make(map[settlement.CaseID]settlement.Case),
		runs:  make(map[settlement.RunID]settlement.Run),
	}
}

func (m *Memory) SaveCase(_ context.Context, c settlement.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.Observations = append([]settlement.PaymentObservation(nil), c.Observations...)
	if existing, ok := m.cases[c.ID]; ok && c.CreatedAt.IsZero() {
		c.CreatedAt = existing.CreatedAt
	}
	m.cases[c.ID] = c
	return nil
}

func (m *Memory) GetCase(_ context.Context, id settlement.CaseID) (*settlement.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cases[id]
	if !ok {
		return nil, settlement.ErrCaseNotFound
	}
	c.Observations = append([]settlement.PaymentObservation(nil), c.Observations...)
	return &c, nil
}

func (m *Memory) ListCases(_ context.Context) ([]settlement.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]settlement.Case, 0, len(m.cases))
	for _, c := range m.cases {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PensionerName < result[j].PensionerName
	})
	return result, nil
}

func (m *Memory) DeleteCase(_ context.Context, id settlement.CaseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cases[id]; !ok {
		return settlement.ErrCaseNotFound
	}
	delete(m.cases, id)
	return nil
}

// SaveRun appends a run. Append-only.
func (m *Memory) SaveRun(_ context.Context, r settlement.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[r.ID]; ok {
		return settlement.ErrDuplicateRun
	}
	m.runs[r.ID] = r
	return nil
}

func (m *Memory) GetRun(_ context.Context, id settlement.RunID) (*settlement.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, settlement.ErrRunNotFound
	}
	return &r, nil
}

func (m *Memory) ListRuns(_ context.Context, caseID settlement.CaseID) ([]settlement.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []settlement.Run
	for _, r := range m.runs {
		if r.CaseID == caseID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
