/*
service.go - Loan servicing on top of the engine

PURPOSE:
  Connects the pure allocation engine to storage. Every write goes through
  the same cycle:

    1. Load a private copy of the loan
    2. Mutate it (new transaction, or nothing for a plain reprocess)
    3. Run full reprocessing with the loan's strategy
    4. Give fresh IDs to new transactions and to every replacement
    5. Save the aggregate and the audit record in one store transaction

  If the engine hits a contract violation the loan is left untouched in the
  store and the violation is returned as an error.

CONCURRENCY:
  Writes to the same loan are serialized with a per-loan mutex. The engine
  itself never runs concurrently on one loan's data.

SEE ALSO:
  - processor.go: The engine
  - store.go: Persistence contract
*/
package loan

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StrategyResolver maps a strategy code to an implementation.
type StrategyResolver interface {
	Resolve(code string) (Strategy, error)
}

// StrategyResolverFunc adapts a function to StrategyResolver.
type StrategyResolverFunc func(code string) (Strategy, error)

func (f StrategyResolverFunc) Resolve(code string) (Strategy, error) { return f(code) }

// ReprocessResult describes what one pass changed.
type ReprocessResult struct {
	LoanID       LoanID
	Reversed     []TransactionID
	Replacements []*Transaction
	Summary      Summary
}

type Service struct {
	Store      TxStore
	Strategies StrategyResolver
	Log        logrus.FieldLogger

	// Now and NewID are replaceable in tests.
	Now   func() time.Time
	NewID func() string

	locks sync.Map // LoanID -> *sync.Mutex
}

func NewService(store TxStore, strategies StrategyResolver, log logrus.FieldLogger) *Service {
	return &Service{
		Store:      store,
		Strategies: strategies,
		Log:        log,
		Now:        time.Now,
		NewID:      func() string { return uuid.New().String() },
	}
}

func (s *Service) log() logrus.FieldLogger {
	if s.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.Log = l
	}
	return s.Log
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.New().String()
	}
	return s.NewID()
}

func (s *Service) lock(id LoanID) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Service) GetLoan(ctx context.Context, id LoanID) (*Loan, error) {
	l, err := s.Store.LoadLoan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load loan %s: %w", id, err)
	}
	return l, nil
}

// ListLoans returns every stored loan ordered by ID.
func (s *Service) ListLoans(ctx context.Context) ([]*Loan, error) {
	ids, err := s.Store.ListLoanIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	out := make([]*Loan, 0, len(ids))
	for _, id := range ids {
		l, err := s.Store.LoadLoan(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load loan %s: %w", id, err)
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Service) Runs(ctx context.Context, limit int) ([]ReprocessRun, error) {
	return s.Store.ListRuns(ctx, limit)
}

// =============================================================================
// COMMANDS
// =============================================================================

// CreateLoan validates l, allocates any transactions it already carries and
// stores it. An empty ID is replaced by a fresh one.
func (s *Service) CreateLoan(ctx context.Context, l *Loan) (*ReprocessResult, error) {
	if l.ID == "" {
		l.ID = LoanID(s.newID())
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}

	unlock := s.lock(l.ID)
	defer unlock()

	if _, err := s.Store.LoadLoan(ctx, l.ID); err == nil {
		return nil, fmt.Errorf("create loan %s: %w", l.ID, ErrDuplicateLoan)
	}
	return s.reprocess(ctx, l, TriggerManual, true)
}

// PostTransaction appends tx to the loan and reprocesses it. A back-dated
// transaction may reverse and replace later ones.
func (s *Service) PostTransaction(ctx context.Context, id LoanID, tx *Transaction) (*Transaction, *ReprocessResult, error) {
	unlock := s.lock(id)
	defer unlock()

	l, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := validateTransaction(l, tx); err != nil {
		return nil, nil, err
	}

	tx.ID = ""
	tx.Reversed = false
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	l.Transactions = append(l.Transactions, tx)

	result, err := s.reprocess(ctx, l, TriggerTransaction, false)
	if err != nil {
		return nil, nil, err
	}
	return tx, result, nil
}

// Reprocess runs a full pass over a stored loan.
func (s *Service) Reprocess(ctx context.Context, id LoanID, trigger RunTrigger) (*ReprocessResult, error) {
	unlock := s.lock(id)
	defer unlock()

	l, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.reprocess(ctx, l, trigger, false)
}

// ReprocessAll reprocesses every stored loan. Failures are logged and
// counted; the pass continues with the next loan.
func (s *Service) ReprocessAll(ctx context.Context, trigger RunTrigger) (processed, failed int, err error) {
	ids, err := s.Store.ListLoanIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list loans: %w", err)
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return processed, failed, ctx.Err()
		}
		if _, err := s.Reprocess(ctx, id, trigger); err != nil {
			s.log().WithError(err).WithField("loan_id", id).Warn("reprocess failed")
			failed++
			continue
		}
		processed++
	}
	return processed, failed, nil
}

// EarlyPayments replays the loan's repayments against one installment and
// returns the early-payment figure per transaction date. Each transaction's
// recalculation boundary is its date plus lagDays. The stored loan is not
// modified.
func (s *Service) EarlyPayments(ctx context.Context, id LoanID, installmentNumber, lagDays int) (result map[Date]Money, err error) {
	l, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	target, ok := l.Installment(installmentNumber)
	if !ok {
		return nil, fmt.Errorf("installment %d: %w", installmentNumber, ErrInvalidTransaction)
	}
	strategy, err := s.Strategies.Resolve(l.StrategyCode)
	if err != nil {
		return nil, fmt.Errorf("loan %s: %w", id, err)
	}

	txs := l.TransactionsPostDisbursement()
	boundaries := make(map[Date]Date, len(txs))
	for _, tx := range txs {
		boundaries[tx.Date.Key()] = tx.Date.AddDays(lagDays)
	}

	defer RecoverContract(&err)
	p := NewProcessor(strategy, s.log().WithField("loan_id", id))
	return p.HandleRecalculation(l.DisbursementDate, txs, l.Currency, l.Installments, target, boundaries), nil
}

// =============================================================================
// REPROCESSING CYCLE
// =============================================================================

func (s *Service) reprocess(ctx context.Context, l *Loan, trigger RunTrigger, create bool) (*ReprocessResult, error) {
	strategy, err := s.Strategies.Resolve(l.StrategyCode)
	if err != nil {
		return nil, fmt.Errorf("loan %s: %w", l.ID, err)
	}

	log := s.log().WithFields(logrus.Fields{"loan_id": l.ID, "trigger": trigger})
	started := s.now()

	changed, err := runEngine(l, NewProcessor(strategy, log))
	if err != nil {
		log.WithError(err).Error("reprocessing aborted")
		if !create {
			s.recordFailure(ctx, l.ID, trigger, started, err)
		}
		return nil, fmt.Errorf("reprocess loan %s: %w", l.ID, err)
	}

	finished := s.now()
	for _, tx := range l.Transactions {
		if tx.IsNew() {
			tx.ID = TransactionID(s.newID())
			if tx.CreatedAt.IsZero() {
				tx.CreatedAt = finished
			}
		}
	}
	replacements := l.ApplyChanges(changed, func() TransactionID { return TransactionID(s.newID()) }, finished)
	l.LastReprocessed = &finished

	run := ReprocessRun{
		ID:         s.newID(),
		LoanID:     l.ID,
		Trigger:    trigger,
		StartedAt:  started,
		FinishedAt: finished,
		Reversed:   changed.Len(),
	}

	err = s.Store.WithTx(ctx, func(st Store) error {
		if create {
			if err := st.CreateLoan(ctx, l); err != nil {
				return err
			}
		} else if err := st.SaveLoan(ctx, l); err != nil {
			return err
		}
		return st.RecordRun(ctx, run)
	})
	if err != nil {
		return nil, fmt.Errorf("save loan %s: %w", l.ID, err)
	}

	if changed.Len() > 0 {
		log.WithField("reversed", changed.Len()).Info("transactions replaced")
	}

	return &ReprocessResult{
		LoanID:       l.ID,
		Reversed:     changed.OriginalIDs(),
		Replacements: replacements,
		Summary:      l.Summary(),
	}, nil
}

func runEngine(l *Loan, p *Processor) (changed *ChangedTransactionDetail, err error) {
	defer RecoverContract(&err)
	return l.Reprocess(p), nil
}

func (s *Service) recordFailure(ctx context.Context, id LoanID, trigger RunTrigger, started time.Time, cause error) {
	run := ReprocessRun{
		ID:         s.newID(),
		LoanID:     id,
		Trigger:    trigger,
		StartedAt:  started,
		FinishedAt: s.now(),
		Error:      cause.Error(),
	}
	if err := s.Store.RecordRun(ctx, run); err != nil {
		s.log().WithError(err).Warn("failed to record reprocess run")
	}
}

func validateTransaction(l *Loan, tx *Transaction) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidTransaction)
	}
	if tx == nil {
		return invalid("missing transaction")
	}
	if _, ok := ParseTransactionType(string(tx.Type)); !ok || tx.IsDisbursement() {
		return invalid("unsupported transaction type %q", tx.Type)
	}
	if tx.Date.IsZero() {
		return invalid("missing date")
	}
	if tx.Date.Before(l.DisbursementDate) {
		return invalid("date %s before disbursement %s", tx.Date, l.DisbursementDate)
	}
	if !tx.IsWriteOff() && !tx.Amount.IsGreaterThanZero() {
		return invalid("amount must be positive")
	}
	if code := tx.Amount.Currency().Code; code != "" && code != l.Currency.Code {
		return invalid("currency %s, loan in %s", code, l.Currency.Code)
	}
	if tx.IsChargePayment() {
		if len(tx.ChargesPaid) == 0 {
			return invalid("charge payment names no charge")
		}
		for i, link := range tx.ChargesPaid {
			var found *Charge
			for _, charge := range l.Charges {
				if charge.ID == link.ChargeID {
					found = charge
				}
			}
			if found == nil {
				return invalid("unknown charge %s", link.ChargeID)
			}
			tx.ChargesPaid[i].Kind = found.Kind
		}
	}
	return nil
}
