/*
loan.go - The loan aggregate

PURPOSE:
  Groups everything the engine needs for one loan: currency, disbursement
  date, the repayment schedule, charges and the transaction history. The
  engine works on slices; Loan is how the rest of the system holds them.

VALIDATION:
  The engine treats bad input as a programming error and panics. Loans that
  come from outside (HTTP, fixtures) go through Validate first, which
  returns every problem as a ValidationError instead.

SEE ALSO:
  - processor.go: What Reprocess runs
  - service.go: Persistence around reprocessing
*/
package loan

import (
	"fmt"
	"sort"
	"time"
)

type LoanID string

type Loan struct {
	ID               LoanID
	Name             string
	Currency         Currency
	Principal        Money
	DisbursementDate Date
	StrategyCode     string

	Installments []*Installment
	Charges      []*Charge
	Transactions []*Transaction

	CreatedAt       time.Time
	LastReprocessed *time.Time
}

// LinkPeriods sets each installment's FromDate to the previous due date
// (the first one to the disbursement date).
func (l *Loan) LinkPeriods() {
	from := l.DisbursementDate
	for _, installment := range l.Installments {
		installment.FromDate = from
		from = installment.DueDate
	}
}

// Validate reports every problem that would make the engine panic.
func (l *Loan) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if l.ID == "" {
		add("missing id")
	}
	if l.Currency.Code == "" {
		add("missing currency")
	}
	if l.Currency.DecimalPlaces < 0 {
		add("negative decimal places")
	}
	if l.DisbursementDate.IsZero() {
		add("missing disbursement date")
	}
	checkMoney := func(what string, m Money) {
		if m.IsNegative() {
			add("%s is negative", what)
		}
		if code := m.Currency().Code; code != "" && code != l.Currency.Code {
			add("%s in %s, loan in %s", what, code, l.Currency.Code)
		}
	}
	checkMoney("principal", l.Principal)

	if len(l.Installments) == 0 {
		add("empty repayment schedule")
	}
	numbers := make(map[int]bool, len(l.Installments))
	prevDue := l.DisbursementDate
	for idx, installment := range l.Installments {
		if installment == nil {
			add("installment %d is nil", idx)
			continue
		}
		if numbers[installment.Number] {
			add("duplicate installment number %d", installment.Number)
		}
		numbers[installment.Number] = true
		if installment.Number <= 0 {
			add("installment %d has non-positive number", idx)
		}
		if installment.DueDate.Before(prevDue) {
			add("installment %d due %s before %s", installment.Number, installment.DueDate, prevDue)
		}
		prevDue = installment.DueDate
		label := fmt.Sprintf("installment %d", installment.Number)
		checkMoney(label+" principal", installment.Principal)
		checkMoney(label+" interest", installment.Interest)
		checkMoney(label+" fee", installment.FeeCharges)
		checkMoney(label+" penalty", installment.PenaltyCharges)
	}

	chargeIDs := make(map[ChargeID]bool, len(l.Charges))
	for idx, charge := range l.Charges {
		if charge == nil {
			add("charge %d is nil", idx)
			continue
		}
		if charge.ID == "" {
			add("charge %d has no id", idx)
		}
		if chargeIDs[charge.ID] {
			add("duplicate charge id %s", charge.ID)
		}
		chargeIDs[charge.ID] = true
		if charge.Kind != ChargeFee && charge.Kind != ChargePenalty {
			add("charge %s has unknown kind %q", charge.ID, charge.Kind)
		}
		switch charge.Time {
		case ChargeAtDisbursement, ChargeInstallmentFee:
		case ChargeSpecifiedDueDate:
			if charge.DueDate.IsZero() {
				add("charge %s has no due date", charge.ID)
			}
		default:
			add("charge %s has unknown time %q", charge.ID, charge.Time)
		}
		checkMoney(fmt.Sprintf("charge %s amount", charge.ID), charge.Amount)
		for _, share := range charge.Installments {
			if !numbers[share.InstallmentNumber] {
				add("charge %s has share for unknown installment %d", charge.ID, share.InstallmentNumber)
			}
		}
	}

	txIDs := make(map[TransactionID]bool, len(l.Transactions))
	for idx, tx := range l.Transactions {
		if tx == nil {
			add("transaction %d is nil", idx)
			continue
		}
		if tx.ID != "" {
			if txIDs[tx.ID] {
				add("duplicate transaction id %s", tx.ID)
			}
			txIDs[tx.ID] = true
		}
		if _, ok := ParseTransactionType(string(tx.Type)); !ok {
			add("transaction %d has unknown type %q", idx, tx.Type)
		}
		if tx.Date.IsZero() {
			add("transaction %d has no date", idx)
		} else if tx.Date.Before(l.DisbursementDate) && !tx.IsDisbursement() {
			add("transaction %d dated %s before disbursement", idx, tx.Date)
		}
		checkMoney(fmt.Sprintf("transaction %d amount", idx), tx.Amount)
		if tx.IsChargePayment() {
			if len(tx.ChargesPaid) == 0 {
				add("charge payment %d names no charge", idx)
			}
			for _, link := range tx.ChargesPaid {
				if !chargeIDs[link.ChargeID] {
					add("charge payment %d names unknown charge %s", idx, link.ChargeID)
				}
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{LoanID: l.ID, Problems: problems}
	}
	return nil
}

// TransactionsPostDisbursement returns the live (not reversed) transactions
// other than disbursements, stably ordered by date.
func (l *Loan) TransactionsPostDisbursement() []*Transaction {
	out := make([]*Transaction, 0, len(l.Transactions))
	for _, tx := range l.Transactions {
		if tx.Reversed || tx.IsDisbursement() {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Transaction finds a transaction by ID.
func (l *Loan) Transaction(id TransactionID) (*Transaction, bool) {
	for _, tx := range l.Transactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return nil, false
}

// Installment finds an installment by number.
func (l *Loan) Installment(number int) (*Installment, bool) {
	for _, installment := range l.Installments {
		if installment.Number == number {
			return installment, true
		}
	}
	return nil, false
}

// Reprocess runs a full reprocessing pass over the loan's live transactions.
func (l *Loan) Reprocess(p *Processor) *ChangedTransactionDetail {
	return p.HandleTransactions(l.DisbursementDate, l.TransactionsPostDisbursement(), l.Currency, l.Installments, l.Charges)
}

// ApplyChanges appends the replacement for every reversed original, giving
// each a fresh ID. Returns the appended transactions in detection order.
func (l *Loan) ApplyChanges(changed *ChangedTransactionDetail, newID func() TransactionID, now time.Time) []*Transaction {
	added := make([]*Transaction, 0, changed.Len())
	for _, original := range changed.OriginalIDs() {
		replacement, _ := changed.Get(original)
		replacement.ID = newID()
		if replacement.CreatedAt.IsZero() {
			replacement.CreatedAt = now
		}
		l.Transactions = append(l.Transactions, replacement)
		added = append(added, replacement)
	}
	return added
}

// =============================================================================
// SUMMARY
// =============================================================================

type Summary struct {
	PrincipalDue Money
	InterestDue  Money
	FeeDue       Money
	PenaltyDue   Money

	PrincipalPaid Money
	InterestPaid  Money
	FeePaid       Money
	PenaltyPaid   Money

	Waived      Money
	WrittenOff  Money
	Outstanding Money
	Overpaid    Money

	InstallmentsPaid  int
	InstallmentsTotal int
}

// Summary totals the schedule and live transactions.
func (l *Loan) Summary() Summary {
	c := l.Currency
	s := Summary{
		PrincipalDue: Zero(c), InterestDue: Zero(c), FeeDue: Zero(c), PenaltyDue: Zero(c),
		PrincipalPaid: Zero(c), InterestPaid: Zero(c), FeePaid: Zero(c), PenaltyPaid: Zero(c),
		Waived: Zero(c), WrittenOff: Zero(c), Outstanding: Zero(c), Overpaid: Zero(c),
		InstallmentsTotal: len(l.Installments),
	}
	for _, i := range l.Installments {
		s.PrincipalDue = s.PrincipalDue.Plus(i.Principal)
		s.InterestDue = s.InterestDue.Plus(i.Interest)
		s.FeeDue = s.FeeDue.Plus(i.FeeCharges)
		s.PenaltyDue = s.PenaltyDue.Plus(i.PenaltyCharges)
		s.PrincipalPaid = s.PrincipalPaid.Plus(i.PrincipalCompleted)
		s.InterestPaid = s.InterestPaid.Plus(i.InterestPaid)
		s.FeePaid = s.FeePaid.Plus(i.FeeChargesPaid)
		s.PenaltyPaid = s.PenaltyPaid.Plus(i.PenaltyChargesPaid)
		s.Waived = s.Waived.Plus(i.InterestWaived).Plus(i.FeeChargesWaived).Plus(i.PenaltyChargesWaived)
		s.WrittenOff = s.WrittenOff.
			Plus(i.PrincipalWrittenOff).
			Plus(i.InterestWrittenOff).
			Plus(i.FeeChargesWrittenOff).
			Plus(i.PenaltyChargesWrittenOff)
		s.Outstanding = s.Outstanding.Plus(i.TotalOutstanding(c))
		if i.IsPaidOff() {
			s.InstallmentsPaid++
		}
	}
	for _, tx := range l.Transactions {
		if !tx.Reversed {
			s.Overpaid = s.Overpaid.Plus(tx.Overpayment)
		}
	}
	return s
}

// Clone returns a deep copy.
func (l *Loan) Clone() *Loan {
	cp := *l
	cp.Installments = make([]*Installment, len(l.Installments))
	for i, installment := range l.Installments {
		cp.Installments[i] = installment.Clone()
	}
	cp.Charges = make([]*Charge, len(l.Charges))
	for i, charge := range l.Charges {
		cp.Charges[i] = charge.Clone()
	}
	cp.Transactions = make([]*Transaction, len(l.Transactions))
	for i, tx := range l.Transactions {
		cp.Transactions[i] = tx.Clone()
	}
	if l.LastReprocessed != nil {
		t := *l.LastReprocessed
		cp.LastReprocessed = &t
	}
	return &cp
}
