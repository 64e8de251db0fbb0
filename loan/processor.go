/*
processor.go - The allocation engine

PURPOSE:
  Folds a loan's post-disbursement transactions into its installments and
  charges. Two entry points:

    HandleTransactions: full reprocessing from the disbursement date. Used
                        whenever a back-dated or amended transaction makes
                        earlier results stale.
    HandleTransaction:  apply one new transaction on top of current state.

FULL REPROCESSING:
  1. Reset paid state on every charge not collected at disbursement
  2. Reset installment derived fields, then re-derive the baseline
  3. Let the ChargeReprocessor push charge expectations onto installments
  4. Allocate charge-payment transactions first
  5. Allocate the rest in order:
       new           -> mutate in place
       persisted     -> allocate a shadow copy, compare breakdowns,
                        reverse + replace the original on mismatch
       write-off     -> HandleWriteOff
  6. Return the ChangedTransactionDetail

SINGLE TRANSACTION:
  Installments are visited in schedule order; paid-off ones are skipped.
  Each remaining installment is classified (advance / late / on-time) and
  the Strategy's handler consumes what it can. Fee and penalty portions are
  then settled against the charge ledger. Leftover money is an overpayment,
  except for waivers, where it is discarded.

CONCURRENCY:
  None. A call owns the installments, charges and transactions it is given
  for its whole duration. Callers serialize access (see service.go).

SEE ALSO:
  - strategy.go: Classification and component order
  - charge_ledger.go: Charge selection
  - charge_payment.go: Charge-payment transactions
  - writeoff.go, recalculation.go
*/
package loan

import (
	"io"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// LIMIT - Unconstrained vs capped processing
// =============================================================================

// Limit says how much of a transaction one allocator call may use.
// Unconstrained uses the transaction amount; CappedAt uses a slice of it
// earmarked for one kind of charge.
type Limit struct {
	capped bool
	amount Money
	kind   ChargeKind
}

func Unconstrained() Limit { return Limit{} }

func CappedAt(amount Money, kind ChargeKind) Limit {
	return Limit{capped: true, amount: amount, kind: kind}
}

func (l Limit) IsCapped() bool   { return l.capped }
func (l Limit) Amount() Money    { return l.amount }
func (l Limit) Kind() ChargeKind { return l.kind }

// =============================================================================
// PROCESSOR
// =============================================================================

type Processor struct {
	Strategy Strategy

	// Charges redistributes charge expectations over installments at the
	// start of every full pass. Defaults to PeriodChargeReprocessor.
	Charges ChargeReprocessor

	Log logrus.FieldLogger
}

// NewProcessor builds a processor with the default charge reprocessor.
func NewProcessor(strategy Strategy, log logrus.FieldLogger) *Processor {
	return &Processor{Strategy: strategy, Charges: PeriodChargeReprocessor{}, Log: log}
}

func (p *Processor) log() logrus.FieldLogger {
	if p.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		p.Log = l
	}
	return p.Log
}

func (p *Processor) chargeReprocessor() ChargeReprocessor {
	if p.Charges == nil {
		return PeriodChargeReprocessor{}
	}
	return p.Charges
}

// HandleTransactions reprocesses the whole schedule. See the file header for
// the algorithm. Installments, charges and new transactions are mutated in
// place; persisted transactions whose allocation changed are reversed and
// mapped to their replacement in the returned detail.
func (p *Processor) HandleTransactions(
	disbursementDate Date,
	transactions []*Transaction,
	currency Currency,
	installments []*Installment,
	charges []*Charge,
) *ChangedTransactionDetail {
	p.requireStrategy("handle_transactions")
	requireSchedule("handle_transactions", installments)

	for _, charge := range charges {
		if !charge.IsDueAtDisbursement() {
			charge.ResetPaidAmount(currency)
		}
	}

	for _, installment := range installments {
		installment.ResetDerivedComponents()
		installment.UpdateDerivedFields(currency, disbursementDate)
	}

	// re-process charges over repayment periods (picks up waived and newly
	// added charges)
	p.chargeReprocessor().Reprocess(currency, disbursementDate, installments, charges)

	changed := NewChangedTransactionDetail()
	standard := make([]*Transaction, 0, len(transactions))
	for _, tx := range transactions {
		requireTransaction("handle_transactions", tx, currency)
		if tx.IsChargePayment() {
			p.handleChargePayment(tx, currency, disbursementDate, installments, charges)
			continue
		}
		standard = append(standard, tx)
	}

	for _, tx := range standard {
		switch {
		case tx.IsRepayment() || tx.IsInterestWaiver() || tx.IsRecoveryRepayment():
			if tx.IsNew() {
				tx.ResetDerivedComponents()
				p.HandleTransaction(tx, currency, installments, charges)
				continue
			}

			shadow := tx.CopyForReprocessing()
			shadow.ResetDerivedComponents()
			p.HandleTransaction(shadow, currency, installments, charges)

			if !tx.Breakdown().Equal(shadow.Breakdown(), currency) {
				p.log().WithFields(logrus.Fields{
					"transaction_id": tx.ID,
					"date":           tx.Date.String(),
					"was_principal":  tx.Principal.String(),
					"now_principal":  shadow.Principal.String(),
					"was_interest":   tx.Interest.String(),
					"now_interest":   shadow.Interest.String(),
				}).Debug("allocation changed, reversing original")
				tx.Reverse()
				tx.UpdateExternalID("")
				changed.Add(tx.ID, shadow)
			}

		case tx.IsWriteOff():
			tx.ResetDerivedComponents()
			p.HandleWriteOff(tx, currency, installments)
		}
	}

	return changed
}

// HandleTransaction applies one transaction across the installments.
// Leftover money becomes the transaction's overpayment. A waiver with
// leftover is zeroed instead.
func (p *Processor) HandleTransaction(tx *Transaction, currency Currency, installments []*Installment, charges []*Charge) {
	p.requireStrategy("handle_transaction")
	requireSchedule("handle_transaction", installments)
	requireTransaction("handle_transaction", tx, currency)

	unprocessed := p.handleTransactionAndCharges(tx, currency, installments, charges, Unconstrained())
	if !unprocessed.IsGreaterThanZero() {
		return
	}

	if tx.IsWaiver() {
		// a waiver that cannot be fully applied is discarded; installments
		// keep what this pass waived
		zero := Zero(currency)
		tx.UpdateComponentsAndTotal(zero, zero, zero, zero)
		return
	}

	p.log().WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"date":           tx.Date.String(),
		"overpayment":    unprocessed.String(),
	}).Debug("loan overpaid")
	onOverpayment(p.Strategy, tx, unprocessed)
	tx.UpdateOverpayment(unprocessed)
}

func (p *Processor) handleTransactionAndCharges(
	tx *Transaction,
	currency Currency,
	installments []*Installment,
	charges []*Charge,
	limit Limit,
) Money {
	unprocessed := p.processTransaction(tx, currency, installments, limit)

	installmentNumber := 0
	if tx.IsChargePayment() && len(installments) == 1 {
		installmentNumber = installments[0].Number
	}

	if tx.IsNotWaiver() {
		feeCharges := tx.FeeCharges
		penaltyCharges := tx.PenaltyCharges
		if limit.IsCapped() {
			// only what this slice actually put on the installment
			applied := limit.Amount().Minus(unprocessed)
			feeCharges, penaltyCharges = currencyZero(currency), currencyZero(currency)
			if limit.Kind() == ChargePenalty {
				penaltyCharges = applied
			} else {
				feeCharges = applied
			}
		}
		if feeCharges.IsGreaterThanZero() {
			p.updateChargesPaidAmountBy(tx, feeCharges, chargesOfKind(charges, ChargeFee), installmentNumber)
		}
		if penaltyCharges.IsGreaterThanZero() {
			p.updateChargesPaidAmountBy(tx, penaltyCharges, chargesOfKind(charges, ChargePenalty), installmentNumber)
		}
	}
	return unprocessed
}

// processTransaction is the classification loop.
func (p *Processor) processTransaction(tx *Transaction, currency Currency, installments []*Installment, limit Limit) Money {
	unprocessed := Zero(currency).Plus(tx.Amount)
	if limit.IsCapped() {
		unprocessed = limit.Amount()
	}

	for idx, installment := range installments {
		if !unprocessed.IsGreaterThanZero() {
			break
		}
		if !installment.IsNotFullyPaidOff() {
			continue
		}

		payment := Payment{
			Transaction:  tx,
			Date:         tx.Date,
			Installments: installments,
			Index:        idx,
			Unprocessed:  unprocessed,
			Currency:     currency,
			ChargeKind:   limit.Kind(),
		}

		// is this transaction early/late/on-time with respect to the
		// current installment?
		switch {
		case isInAdvance(p.Strategy, payment):
			unprocessed = p.Strategy.HandleAdvancePayment(payment)
		case isLate(p.Strategy, payment):
			unprocessed = p.Strategy.HandleLateRepayment(payment)
		default:
			unprocessed = p.Strategy.HandleOnTimePayment(payment)
		}
	}
	return unprocessed
}

// =============================================================================
// PRECONDITIONS
// =============================================================================

func (p *Processor) requireStrategy(op string) {
	if p.Strategy == nil {
		contractViolation(op, "processor has no strategy")
	}
}

func requireSchedule(op string, installments []*Installment) {
	if len(installments) == 0 {
		contractViolation(op, "empty repayment schedule")
	}
	for idx, installment := range installments {
		if installment == nil {
			contractViolation(op, "nil installment at index %d", idx)
		}
	}
}

func requireTransaction(op string, tx *Transaction, currency Currency) {
	if tx == nil {
		contractViolation(op, "nil transaction")
	}
	if tx.Amount.IsNegative() {
		contractViolation(op, "transaction %s has negative amount %s", tx.ID, tx.Amount)
	}
	if code := tx.Amount.Currency().Code; code != "" && code != currency.Code {
		contractViolation(op, "transaction %s in %s, loan in %s", tx.ID, code, currency.Code)
	}
}

func currencyZero(c Currency) Money { return Zero(c) }

func chargesOfKind(charges []*Charge, kind ChargeKind) []*Charge {
	out := make([]*Charge, 0, len(charges))
	for _, charge := range charges {
		if charge.Kind == kind {
			out = append(out, charge)
		}
	}
	return out
}
