/*
store.go - Persistence interface for loans

PURPOSE:
  Defines the boundary between the servicing layer and the database. A loan
  is stored as one aggregate: schedule, charges and transactions together.

WHY AGGREGATE WRITES:
  A reprocessing pass rewrites derived state on every installment and
  charge, reverses some transactions and appends their replacements. All of
  it must land together or not at all, so SaveLoan writes the whole
  aggregate and TxStore.WithTx wraps it with the audit record.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - loan/store/memory.go: In-memory for tests and demos

SEE ALSO:
  - service.go: The only writer
*/
package loan

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// CreateLoan persists a new loan. ErrDuplicateLoan if the ID exists.
	CreateLoan(ctx context.Context, l *Loan) error

	// SaveLoan replaces the stored aggregate. ErrLoanNotFound if absent.
	SaveLoan(ctx context.Context, l *Loan) error

	// LoadLoan returns a private copy. ErrLoanNotFound if absent.
	LoadLoan(ctx context.Context, id LoanID) (*Loan, error)

	ListLoanIDs(ctx context.Context) ([]LoanID, error)

	DeleteLoan(ctx context.Context, id LoanID) error

	// RecordRun appends a reprocessing audit record.
	RecordRun(ctx context.Context, run ReprocessRun) error

	// ListRuns returns the most recent runs first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]ReprocessRun, error)
}

// TxStore wraps Store with transaction support.
// If fn returns error, everything it wrote is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT
// =============================================================================

type RunTrigger string

const (
	TriggerManual      RunTrigger = "manual"
	TriggerTransaction RunTrigger = "transaction"
	TriggerScheduled   RunTrigger = "scheduled"
)

// ReprocessRun records one full reprocessing pass over a loan.
type ReprocessRun struct {
	ID         string
	LoanID     LoanID
	Trigger    RunTrigger
	StartedAt  time.Time
	FinishedAt time.Time
	Reversed   int // transactions reversed and replaced
	Error      string
}
