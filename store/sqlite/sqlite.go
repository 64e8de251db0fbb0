/*
Package sqlite provides a SQLite-backed implementation of loan.TxStore.

PURPOSE:
  Persists loan aggregates: the loan row, its schedule, charges (with their
  installment shares), transactions (with their charge links) and the
  reprocessing audit trail.

KEY TABLES:
  loans:                One row per loan (currency, disbursement, strategy)
  installments:         Schedule with expected and derived amounts
  charges:              Fees and penalties with paid/waived/written-off
  installment_charges:  Per-installment shares of installment fees
  transactions:         Transaction history including reversed rows
  transaction_charges:  Which charges a transaction paid
  reprocess_runs:       Audit of every reprocessing pass

WRITES:
  SaveLoan rewrites the whole aggregate inside one SQL transaction. Reversed
  transactions are kept as rows with reversed = 1; nothing in the history
  is dropped.

AMOUNTS:
  Stored as decimal TEXT, never REAL. The currency lives on the loan row and
  is applied to every amount on load.

CONCURRENCY:
  One open connection (SQLite has a single writer, and ":memory:" databases
  are per connection). A sync.RWMutex guards the public methods; WithTx
  holds the write lock and hands fn a view bound to the SQL transaction.

USAGE:
  store, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - loan/store.go: Interface definitions
  - loan/store/memory.go: In-memory implementation for testing
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

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/loan"
)

// Store implements loan.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

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
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		currency_code TEXT NOT NULL,
		decimal_places INTEGER NOT NULL,
		principal TEXT NOT NULL,
		disbursement_date TEXT NOT NULL,
		strategy_code TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_reprocessed TEXT
	);

	CREATE TABLE IF NOT EXISTS installments (
		loan_id TEXT NOT NULL REFERENCES loans(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		from_date TEXT,
		due_date TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest TEXT NOT NULL,
		fee_charges TEXT NOT NULL,
		penalty_charges TEXT NOT NULL,
		principal_completed TEXT NOT NULL,
		principal_written_off TEXT NOT NULL,
		interest_paid TEXT NOT NULL,
		interest_waived TEXT NOT NULL,
		interest_written_off TEXT NOT NULL,
		fee_charges_paid TEXT NOT NULL,
		fee_charges_waived TEXT NOT NULL,
		fee_charges_written_off TEXT NOT NULL,
		penalty_charges_paid TEXT NOT NULL,
		penalty_charges_waived TEXT NOT NULL,
		penalty_charges_written_off TEXT NOT NULL,
		paid_in_advance TEXT NOT NULL,
		paid_late TEXT NOT NULL,
		obligations_met BOOLEAN NOT NULL DEFAULT FALSE,
		obligations_met_on TEXT,
		PRIMARY KEY (loan_id, number)
	);

	CREATE TABLE IF NOT EXISTS charges (
		loan_id TEXT NOT NULL REFERENCES loans(id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		charge_time TEXT NOT NULL,
		amount TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		amount_waived TEXT NOT NULL,
		amount_written_off TEXT NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		waived BOOLEAN NOT NULL DEFAULT FALSE,
		due_date TEXT,
		PRIMARY KEY (loan_id, id)
	);

	CREATE TABLE IF NOT EXISTS installment_charges (
		loan_id TEXT NOT NULL,
		charge_id TEXT NOT NULL,
		installment_number INTEGER NOT NULL,
		due_date TEXT,
		amount TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		amount_waived TEXT NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		waived BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (loan_id, charge_id, installment_number),
		FOREIGN KEY (loan_id, charge_id) REFERENCES charges(loan_id, id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		tx_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		external_id TEXT,
		principal TEXT NOT NULL,
		interest TEXT NOT NULL,
		fee_charges TEXT NOT NULL,
		penalty_charges TEXT NOT NULL,
		overpayment TEXT NOT NULL,
		reversed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_loan
		ON transactions(loan_id, position);

	CREATE TABLE IF NOT EXISTS transaction_charges (
		transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		charge_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		installment_number INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (transaction_id, position)
	);

	CREATE TABLE IF NOT EXISTS reprocess_runs (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		run_trigger TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		reversed INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reprocess_runs_started
		ON reprocess_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOANS (loan.Store interface)
// =============================================================================

func (s *Store) CreateLoan(ctx context.Context, l *loan.Loan) error {
	return s.WithTx(ctx, func(st loan.Store) error { return st.CreateLoan(ctx, l) })
}

func (s *Store) SaveLoan(ctx context.Context, l *loan.Loan) error {
	return s.WithTx(ctx, func(st loan.Store) error { return st.SaveLoan(ctx, l) })
}

func (s *Store) LoadLoan(ctx context.Context, id loan.LoanID) (*loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadLoan(ctx, s.db, id)
}

func (s *Store) ListLoanIDs(ctx context.Context) ([]loan.LoanID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLoanIDs(ctx, s.db)
}

func (s *Store) DeleteLoan(ctx context.Context, id loan.LoanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteLoan(ctx, s.db, id)
}

func (s *Store) RecordRun(ctx context.Context, run loan.ReprocessRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordRun(ctx, s.db, run)
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]loan.ReprocessRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRuns(ctx, s.db, limit)
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transaction_charges", "transactions", "installment_charges", "charges", "installments", "reprocess_runs", "loans"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (loan.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store loan.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every call on the open SQL transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateLoan(ctx context.Context, l *loan.Loan) error {
	if _, err := loadLoanRow(ctx, ts.tx, l.ID); err == nil {
		return loan.ErrDuplicateLoan
	} else if !errors.Is(err, loan.ErrLoanNotFound) {
		return err
	}
	return writeLoan(ctx, ts.tx, l)
}

func (ts *txStore) SaveLoan(ctx context.Context, l *loan.Loan) error {
	if _, err := loadLoanRow(ctx, ts.tx, l.ID); err != nil {
		return err
	}
	if err := deleteLoan(ctx, ts.tx, l.ID); err != nil {
		return err
	}
	return writeLoan(ctx, ts.tx, l)
}

func (ts *txStore) LoadLoan(ctx context.Context, id loan.LoanID) (*loan.Loan, error) {
	return loadLoan(ctx, ts.tx, id)
}

func (ts *txStore) ListLoanIDs(ctx context.Context) ([]loan.LoanID, error) {
	return listLoanIDs(ctx, ts.tx)
}

func (ts *txStore) DeleteLoan(ctx context.Context, id loan.LoanID) error {
	return deleteLoan(ctx, ts.tx, id)
}

func (ts *txStore) RecordRun(ctx context.Context, run loan.ReprocessRun) error {
	return recordRun(ctx, ts.tx, run)
}

func (ts *txStore) ListRuns(ctx context.Context, limit int) ([]loan.ReprocessRun, error) {
	return listRuns(ctx, ts.tx, limit)
}

// =============================================================================
// WRITE
// =============================================================================

func writeLoan(ctx context.Context, q queryer, l *loan.Loan) error {
	var lastReprocessed *string
	if l.LastReprocessed != nil {
		v := l.LastReprocessed.UTC().Format(time.RFC3339Nano)
		lastReprocessed = &v
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO loans (id, name, currency_code, decimal_places, principal,
			disbursement_date, strategy_code, created_at, last_reprocessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Name, l.Currency.Code, l.Currency.DecimalPlaces, amount(l.Principal),
		l.DisbursementDate.String(), l.StrategyCode,
		l.CreatedAt.UTC().Format(time.RFC3339Nano), lastReprocessed,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return loan.ErrDuplicateLoan
		}
		return fmt.Errorf("failed to insert loan: %w", err)
	}

	for _, i := range l.Installments {
		var metOn sql.NullString
		if i.ObligationsMetOn != nil {
			metOn = nullString(i.ObligationsMetOn.String())
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO installments (loan_id, number, from_date, due_date,
				principal, interest, fee_charges, penalty_charges,
				principal_completed, principal_written_off,
				interest_paid, interest_waived, interest_written_off,
				fee_charges_paid, fee_charges_waived, fee_charges_written_off,
				penalty_charges_paid, penalty_charges_waived, penalty_charges_written_off,
				paid_in_advance, paid_late, obligations_met, obligations_met_on)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, i.Number, date(i.FromDate), i.DueDate.String(),
			amount(i.Principal), amount(i.Interest), amount(i.FeeCharges), amount(i.PenaltyCharges),
			amount(i.PrincipalCompleted), amount(i.PrincipalWrittenOff),
			amount(i.InterestPaid), amount(i.InterestWaived), amount(i.InterestWrittenOff),
			amount(i.FeeChargesPaid), amount(i.FeeChargesWaived), amount(i.FeeChargesWrittenOff),
			amount(i.PenaltyChargesPaid), amount(i.PenaltyChargesWaived), amount(i.PenaltyChargesWrittenOff),
			amount(i.TotalPaidInAdvance), amount(i.TotalPaidLate), i.ObligationsMet, metOn,
		)
		if err != nil {
			return fmt.Errorf("failed to insert installment %d: %w", i.Number, err)
		}
	}

	for pos, c := range l.Charges {
		_, err := q.ExecContext(ctx, `
			INSERT INTO charges (loan_id, id, position, name, kind, charge_time,
				amount, amount_paid, amount_waived, amount_written_off, paid, waived, due_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, c.ID, pos, c.Name, c.Kind, c.Time,
			amount(c.Amount), amount(c.AmountPaid), amount(c.AmountWaived), amount(c.AmountWrittenOff),
			c.Paid, c.Waived, date(c.DueDate),
		)
		if err != nil {
			return fmt.Errorf("failed to insert charge %s: %w", c.ID, err)
		}
		for _, share := range c.Installments {
			_, err := q.ExecContext(ctx, `
				INSERT INTO installment_charges (loan_id, charge_id, installment_number,
					due_date, amount, amount_paid, amount_waived, paid, waived)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				l.ID, c.ID, share.InstallmentNumber, date(share.DueDate),
				amount(share.Amount), amount(share.AmountPaid), amount(share.AmountWaived),
				share.Paid, share.Waived,
			)
			if err != nil {
				return fmt.Errorf("failed to insert share of charge %s: %w", c.ID, err)
			}
		}
	}

	for pos, tx := range l.Transactions {
		if tx.ID == "" {
			return fmt.Errorf("transaction at position %d has no id", pos)
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO transactions (id, loan_id, position, tx_type, tx_date, amount,
				external_id, principal, interest, fee_charges, penalty_charges,
				overpayment, reversed, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tx.ID, l.ID, pos, tx.Type, tx.Date.String(), amount(tx.Amount),
			nullString(tx.ExternalID), amount(tx.Principal), amount(tx.Interest),
			amount(tx.FeeCharges), amount(tx.PenaltyCharges), amount(tx.Overpayment),
			tx.Reversed, tx.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("transaction %s: %w", tx.ID, loan.ErrInvalidTransaction)
			}
			return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
		}
		for linkPos, link := range tx.ChargesPaid {
			_, err := q.ExecContext(ctx, `
				INSERT INTO transaction_charges (transaction_id, position, charge_id,
					kind, amount, installment_number)
				VALUES (?, ?, ?, ?, ?, ?)`,
				tx.ID, linkPos, link.ChargeID, link.Kind, amount(link.Amount), link.InstallmentNumber,
			)
			if err != nil {
				return fmt.Errorf("failed to insert charge link of %s: %w", tx.ID, err)
			}
		}
	}

	return nil
}

// deleteLoan removes the loan row; children go with ON DELETE CASCADE.
func deleteLoan(ctx context.Context, q queryer, id loan.LoanID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM loans WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loan.ErrLoanNotFound
	}
	return nil
}

func recordRun(ctx context.Context, q queryer, run loan.ReprocessRun) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO reprocess_runs (id, loan_id, run_trigger, started_at, finished_at, reversed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.LoanID, run.Trigger,
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Reversed, nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// =============================================================================
// READ
// =============================================================================

func loadLoanRow(ctx context.Context, q queryer, id loan.LoanID) (*loan.Loan, error) {
	var (
		l                          loan.Loan
		code, principal, disbursed string
		places                     int32
		createdAt                  string
		lastReprocessed            sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, currency_code, decimal_places, principal, disbursement_date,
			strategy_code, created_at, last_reprocessed
		FROM loans WHERE id = ?`, id,
	).Scan(&l.ID, &l.Name, &code, &places, &principal, &disbursed, &l.StrategyCode, &createdAt, &lastReprocessed)
	if err == sql.ErrNoRows {
		return nil, loan.ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load loan: %w", err)
	}

	l.Currency = loan.NewCurrency(code, places)
	if l.Principal, err = parseMoney(principal, l.Currency); err != nil {
		return nil, err
	}
	if l.DisbursementDate, err = loan.ParseDate(disbursed); err != nil {
		return nil, err
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if lastReprocessed.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastReprocessed.String)
		l.LastReprocessed = &t
	}
	return &l, nil
}

func loadLoan(ctx context.Context, q queryer, id loan.LoanID) (*loan.Loan, error) {
	l, err := loadLoanRow(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if l.Installments, err = loadInstallments(ctx, q, l); err != nil {
		return nil, err
	}
	if l.Charges, err = loadCharges(ctx, q, l); err != nil {
		return nil, err
	}
	if l.Transactions, err = loadTransactions(ctx, q, l); err != nil {
		return nil, err
	}
	return l, nil
}

func loadInstallments(ctx context.Context, q queryer, l *loan.Loan) ([]*loan.Installment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT number, from_date, due_date, principal, interest, fee_charges, penalty_charges,
			principal_completed, principal_written_off,
			interest_paid, interest_waived, interest_written_off,
			fee_charges_paid, fee_charges_waived, fee_charges_written_off,
			penalty_charges_paid, penalty_charges_waived, penalty_charges_written_off,
			paid_in_advance, paid_late, obligations_met, obligations_met_on
		FROM installments WHERE loan_id = ? ORDER BY number ASC`, l.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()

	var out []*loan.Installment
	for rows.Next() {
		var (
			i        loan.Installment
			fromDate sql.NullString
			dueDate  string
			amounts  [17]string
			metOn    sql.NullString
		)
		dest := []any{&i.Number, &fromDate, &dueDate}
		for k := range amounts {
			dest = append(dest, &amounts[k])
		}
		dest = append(dest, &i.ObligationsMet, &metOn)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}

		targets := []*loan.Money{
			&i.Principal, &i.Interest, &i.FeeCharges, &i.PenaltyCharges,
			&i.PrincipalCompleted, &i.PrincipalWrittenOff,
			&i.InterestPaid, &i.InterestWaived, &i.InterestWrittenOff,
			&i.FeeChargesPaid, &i.FeeChargesWaived, &i.FeeChargesWrittenOff,
			&i.PenaltyChargesPaid, &i.PenaltyChargesWaived, &i.PenaltyChargesWrittenOff,
			&i.TotalPaidInAdvance, &i.TotalPaidLate,
		}
		for k, target := range targets {
			if *target, err = parseMoney(amounts[k], l.Currency); err != nil {
				return nil, err
			}
		}
		if i.FromDate, err = parseNullDate(fromDate); err != nil {
			return nil, err
		}
		if i.DueDate, err = loan.ParseDate(dueDate); err != nil {
			return nil, err
		}
		if metOn.Valid {
			d, err := loan.ParseDate(metOn.String)
			if err != nil {
				return nil, err
			}
			i.ObligationsMetOn = &d
		}
		out = append(out, &i)
	}
	return out, rows.Err()
}

func loadCharges(ctx context.Context, q queryer, l *loan.Loan) ([]*loan.Charge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, kind, charge_time, amount, amount_paid, amount_waived,
			amount_written_off, paid, waived, due_date
		FROM charges WHERE loan_id = ? ORDER BY position ASC`, l.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges: %w", err)
	}

	var out []*loan.Charge
	for rows.Next() {
		var (
			c                             loan.Charge
			amt, paid, waived, writtenOff string
			dueDate                       sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.Time, &amt, &paid, &waived, &writtenOff,
			&c.Paid, &c.Waived, &dueDate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan charge: %w", err)
		}
		for _, pair := range []struct {
			raw    string
			target *loan.Money
		}{{amt, &c.Amount}, {paid, &c.AmountPaid}, {waived, &c.AmountWaived}, {writtenOff, &c.AmountWrittenOff}} {
			if *pair.target, err = parseMoney(pair.raw, l.Currency); err != nil {
				rows.Close()
				return nil, err
			}
		}
		if c.DueDate, err = parseNullDate(dueDate); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, c := range out {
		if c.Installments, err = loadShares(ctx, q, l, c.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loadShares(ctx context.Context, q queryer, l *loan.Loan, chargeID loan.ChargeID) ([]*loan.InstallmentCharge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT installment_number, due_date, amount, amount_paid, amount_waived, paid, waived
		FROM installment_charges WHERE loan_id = ? AND charge_id = ?
		ORDER BY installment_number ASC`, l.ID, chargeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query installment charges: %w", err)
	}
	defer rows.Close()

	var out []*loan.InstallmentCharge
	for rows.Next() {
		var (
			share             loan.InstallmentCharge
			dueDate           sql.NullString
			amt, paid, waived string
		)
		if err := rows.Scan(&share.InstallmentNumber, &dueDate, &amt, &paid, &waived, &share.Paid, &share.Waived); err != nil {
			return nil, fmt.Errorf("failed to scan installment charge: %w", err)
		}
		if share.Amount, err = parseMoney(amt, l.Currency); err != nil {
			return nil, err
		}
		if share.AmountPaid, err = parseMoney(paid, l.Currency); err != nil {
			return nil, err
		}
		if share.AmountWaived, err = parseMoney(waived, l.Currency); err != nil {
			return nil, err
		}
		if share.DueDate, err = parseNullDate(dueDate); err != nil {
			return nil, err
		}
		out = append(out, &share)
	}
	return out, rows.Err()
}

func loadTransactions(ctx context.Context, q queryer, l *loan.Loan) ([]*loan.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, tx_type, tx_date, amount, external_id, principal, interest,
			fee_charges, penalty_charges, overpayment, reversed, created_at
		FROM transactions WHERE loan_id = ? ORDER BY position ASC`, l.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	var out []*loan.Transaction
	for rows.Next() {
		var (
			tx         loan.Transaction
			txDate     string
			externalID sql.NullString
			amounts    [6]string
			createdAt  string
		)
		if err := rows.Scan(&tx.ID, &tx.Type, &txDate, &amounts[0], &externalID,
			&amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5],
			&tx.Reversed, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		targets := []*loan.Money{&tx.Amount, &tx.Principal, &tx.Interest, &tx.FeeCharges, &tx.PenaltyCharges, &tx.Overpayment}
		for k, target := range targets {
			if *target, err = parseMoney(amounts[k], l.Currency); err != nil {
				rows.Close()
				return nil, err
			}
		}
		if tx.Date, err = loan.ParseDate(txDate); err != nil {
			rows.Close()
			return nil, err
		}
		tx.ExternalID = externalID.String
		tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, &tx)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, tx := range out {
		if tx.ChargesPaid, err = loadChargeLinks(ctx, q, l, tx.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loadChargeLinks(ctx context.Context, q queryer, l *loan.Loan, txID loan.TransactionID) ([]loan.ChargePaidBy, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT charge_id, kind, amount, installment_number
		FROM transaction_charges WHERE transaction_id = ? ORDER BY position ASC`, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to query charge links: %w", err)
	}
	defer rows.Close()

	var out []loan.ChargePaidBy
	for rows.Next() {
		var (
			link loan.ChargePaidBy
			amt  string
		)
		if err := rows.Scan(&link.ChargeID, &link.Kind, &amt, &link.InstallmentNumber); err != nil {
			return nil, fmt.Errorf("failed to scan charge link: %w", err)
		}
		if link.Amount, err = parseMoney(amt, l.Currency); err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func listLoanIDs(ctx context.Context, q queryer) ([]loan.LoanID, error) {
	rows, err := q.QueryContext(ctx, "SELECT id FROM loans ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var ids []loan.LoanID
	for rows.Next() {
		var id loan.LoanID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func listRuns(ctx context.Context, q queryer, limit int) ([]loan.ReprocessRun, error) {
	query := `
		SELECT id, loan_id, run_trigger, started_at, finished_at, reversed, error
		FROM reprocess_runs
		ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []loan.ReprocessRun
	for rows.Next() {
		var (
			r                 loan.ReprocessRun
			started, finished string
			runErr            sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.LoanID, &r.Trigger, &started, &finished, &r.Reversed, &runErr); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		r.Error = runErr.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Helper functions

func amount(m loan.Money) string {
	return m.Amount().String()
}

func date(d loan.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return nullString(d.String())
}

func parseMoney(value string, c loan.Currency) (loan.Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return loan.Money{}, fmt.Errorf("invalid stored amount %q: %w", value, err)
	}
	return loan.NewMoney(d, c), nil
}

func parseNullDate(v sql.NullString) (loan.Date, error) {
	if !v.Valid || v.String == "" {
		return loan.Date{}, nil
	}
	return loan.ParseDate(v.String)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}
