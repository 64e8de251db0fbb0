// Package store provides in-memory loan.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps deep copies: callers never share state with the store.
type Memory struct {
	mu    sync.RWMutex
	loans map[loan.LoanID]*loan.Loan
	runs  []loan.ReprocessRun
}

func NewMemory() *Memory {
	return &Memory{loans: make(map[loan.LoanID]*loan.Loan)}
}

func (m *Memory) CreateLoan(_ context.Context, l *loan.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(l)
}

func (m *Memory) SaveLoan(_ context.Context, l *loan.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(l)
}

func (m *Memory) LoadLoan(_ context.Context, id loan.LoanID) (*loan.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(id)
}

func (m *Memory) ListLoanIDs(_ context.Context) ([]loan.LoanID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idsLocked(), nil
}

func (m *Memory) DeleteLoan(_ context.Context, id loan.LoanID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *Memory) RecordRun(_ context.Context, run loan.ReprocessRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]loan.ReprocessRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runsLocked(limit), nil
}

func (m *Memory) createLocked(l *loan.Loan) error {
	if _, exists := m.loans[l.ID]; exists {
		return loan.ErrDuplicateLoan
	}
	m.loans[l.ID] = l.Clone()
	return nil
}

func (m *Memory) saveLocked(l *loan.Loan) error {
	if _, exists := m.loans[l.ID]; !exists {
		return loan.ErrLoanNotFound
	}
	m.loans[l.ID] = l.Clone()
	return nil
}

func (m *Memory) loadLocked(id loan.LoanID) (*loan.Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return nil, loan.ErrLoanNotFound
	}
	return l.Clone(), nil
}

func (m *Memory) idsLocked() []loan.LoanID {
	ids := make([]loan.LoanID, 0, len(m.loans))
	for id := range m.loans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Memory) deleteLocked(id loan.LoanID) error {
	if _, ok := m.loans[id]; !ok {
		return loan.ErrLoanNotFound
	}
	delete(m.loans, id)
	return nil
}

func (m *Memory) runsLocked(limit int) []loan.ReprocessRun {
	out := make([]loan.ReprocessRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		out = append(out, m.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(loan.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	loans map[loan.LoanID]*loan.Loan
	runs  []loan.ReprocessRun
}

// Stored loans are never mutated in place, so copying the map is enough.
func (tm *TxMemory) snapshot() memorySnapshot {
	loans := make(map[loan.LoanID]*loan.Loan, len(tm.loans))
	for id, l := range tm.loans {
		loans[id] = l
	}
	return memorySnapshot{loans: loans, runs: append([]loan.ReprocessRun(nil), tm.runs...)}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.loans = s.loans
	tm.runs = s.runs
}

// txMemoryView runs under the parent's write lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) CreateLoan(_ context.Context, l *loan.Loan) error {
	return tv.parent.createLocked(l)
}

func (tv *txMemoryView) SaveLoan(_ context.Context, l *loan.Loan) error {
	return tv.parent.saveLocked(l)
}

func (tv *txMemoryView) LoadLoan(_ context.Context, id loan.LoanID) (*loan.Loan, error) {
	return tv.parent.loadLocked(id)
}

func (tv *txMemoryView) ListLoanIDs(_ context.Context) ([]loan.LoanID, error) {
	return tv.parent.idsLocked(), nil
}

func (tv *txMemoryView) DeleteLoan(_ context.Context, id loan.LoanID) error {
	return tv.parent.deleteLocked(id)
}

func (tv *txMemoryView) RecordRun(_ context.Context, run loan.ReprocessRun) error {
	tv.parent.runs = append(tv.parent.runs, run)
	return nil
}

func (tv *txMemoryView) ListRuns(_ context.Context, limit int) ([]loan.ReprocessRun, error) {
	return tv.parent.runsLocked(limit), nil
}
