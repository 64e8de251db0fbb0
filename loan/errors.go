/*
errors.go - Centralized error types for the loan engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (service, store, api) wrap these with additional context.

ERROR CATEGORIES:
  1. Contract violations - programming errors inside an allocation pass.
     The engine never returns these; it panics with *ContractError.
  2. Validation errors - bad loan definitions rejected before processing
  3. Store errors - lookup and persistence failures

WHY PANIC FOR CONTRACT VIOLATIONS?
  A reprocessing pass works over already-validated, in-memory state. A nil
  schedule or a mixed-currency sum inside the allocator means the caller
  broke the contract, and continuing would persist corrupt balances.
  Loan.Validate() is the recoverable path: call it at the boundary.

SEE ALSO:
  - loan.go: Validate() produces ValidationError
  - service.go: Wraps store errors
*/
package loan

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrContractViolation is wrapped by every ContractError.
	ErrContractViolation = errors.New("allocation contract violation")

	// ErrInvalidLoan is returned when a loan definition fails validation.
	ErrInvalidLoan = errors.New("invalid loan")

	// ErrLoanNotFound is returned when a referenced loan doesn't exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrDuplicateLoan is returned when creating a loan whose ID exists.
	ErrDuplicateLoan = errors.New("loan already exists")

	// ErrTransactionNotFound is returned when a referenced transaction doesn't exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrUnknownStrategy is returned when a strategy code isn't registered.
	ErrUnknownStrategy = errors.New("unknown allocation strategy")

	// ErrInvalidTransaction is returned when a posted transaction is malformed.
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ContractError describes a precondition the caller failed to honor.
type ContractError struct {
	Op     string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ContractError) Unwrap() error {
	return ErrContractViolation
}

func contractViolation(op, format string, args ...any) {
	panic(&ContractError{Op: op, Reason: fmt.Sprintf(format, args...)})
}

// ValidationError lists every problem found in a loan definition.
type ValidationError struct {
	LoanID   LoanID
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid loan %s: %s", e.LoanID, e.Problems[0])
	}
	return fmt.Sprintf("invalid loan %s: %d problems, first: %s", e.LoanID, len(e.Problems), e.Problems[0])
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidLoan
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidLoan) ||
		errors.Is(err, ErrInvalidTransaction) ||
		errors.Is(err, ErrUnknownStrategy) ||
		errors.Is(err, ErrDuplicateLoan)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// RecoverContract converts a ContractError panic into an error.
// Boundaries that must not crash (HTTP handlers, the scheduler) defer it:
//
//	defer loan.RecoverContract(&err)
//
// Any other panic is re-raised.
func RecoverContract(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ce, ok := r.(*ContractError); ok {
		*errp = ce
		return
	}
	panic(r)
}
