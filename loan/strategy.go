/*
strategy.go - Pluggable allocation order

PURPOSE:
  The engine decides WHICH installment a payment reaches; a Strategy decides
  HOW the payment is split across that installment's components. Every
  non-paid installment is classified relative to the transaction:

    advance:  transaction precedes the due date (or a strategy's
              amount-aware rule says so)
    late:     transaction is after the due date
    on-time:  neither

  and the matching handler consumes what it can, returning the remainder.

REQUIRED vs OPTIONAL:
  Strategy (required):  the three handlers
  AdvanceClassifier:    overrides the "date before due date" rule
  LateClassifier:       overrides the "date after due date" rule
  OverpaymentHandler:   side-effecting hook when money is left over

  Concrete strategies live in package strategies and are selected by code
  at construction.

SEE ALSO:
  - processor.go: Classification loop
  - strategies/strategies.go: Concrete orders
*/
package loan

// Payment is the view of one transaction against one installment that the
// strategy handlers work on.
type Payment struct {
	Transaction  *Transaction
	Date         Date
	Installments []*Installment
	Index        int   // position of the current installment
	Unprocessed  Money // amount still to allocate
	Currency     Currency

	// ChargeKind is set while a charge-payment slice is being applied.
	ChargeKind ChargeKind
}

// Current is the installment being classified.
func (p Payment) Current() *Installment { return p.Installments[p.Index] }

// Strategy splits a payment across an installment's components.
// Each handler returns the unprocessed remainder.
type Strategy interface {
	Code() string
	HandleAdvancePayment(p Payment) Money
	HandleLateRepayment(p Payment) Money
	HandleOnTimePayment(p Payment) Money
}

// AdvanceClassifier lets a strategy replace the default advance rule.
type AdvanceClassifier interface {
	IsTransactionInAdvanceOfInstallment(p Payment) bool
}

// LateClassifier lets a strategy replace the default late rule.
type LateClassifier interface {
	IsLateRepaymentOnInstallment(p Payment) bool
}

// OverpaymentHandler is invoked when a non-waiver transaction leaves money
// after every installment was visited.
type OverpaymentHandler interface {
	OnOverpayment(tx *Transaction, amount Money)
}

// =============================================================================
// DEFAULT CLASSIFICATION
// =============================================================================

func isInAdvance(s Strategy, p Payment) bool {
	if c, ok := s.(AdvanceClassifier); ok {
		return c.IsTransactionInAdvanceOfInstallment(p)
	}
	return p.Date.Before(p.Current().DueDate)
}

func isLate(s Strategy, p Payment) bool {
	if c, ok := s.(LateClassifier); ok {
		return c.IsLateRepaymentOnInstallment(p)
	}
	return p.Date.After(p.Current().DueDate)
}

func onOverpayment(s Strategy, tx *Transaction, amount Money) {
	if h, ok := s.(OverpaymentHandler); ok {
		h.OnOverpayment(tx, amount)
	}
}

// =============================================================================
// COMPONENT APPLICATION
// =============================================================================

// PayComponents applies p.Unprocessed to the current installment and records
// the split on the transaction. Interest waivers only waive interest and
// charge payments only pay their charge's component; everything else follows
// order. Returns the remainder.
func PayComponents(p Payment, order ...Component) Money {
	inst := p.Current()
	tx := p.Transaction
	remaining := p.Unprocessed
	zero := remaining.Zero()
	portions := map[Component]Money{
		ComponentPrincipal: zero,
		ComponentInterest:  zero,
		ComponentFee:       zero,
		ComponentPenalty:   zero,
	}

	switch {
	case tx.IsInterestWaiver():
		waived := inst.WaiveInterestComponent(p.Date, remaining)
		portions[ComponentInterest] = waived
		remaining = remaining.Minus(waived)

	case tx.IsChargePayment():
		comp := ComponentFee
		if p.ChargeKind == ChargePenalty || (p.ChargeKind == "" && tx.IsPenaltyPayment()) {
			comp = ComponentPenalty
		}
		paid := inst.PayComponent(comp, p.Date, remaining)
		portions[comp] = paid
		remaining = remaining.Minus(paid)

	default:
		for _, comp := range order {
			if !remaining.IsGreaterThanZero() {
				break
			}
			paid := inst.PayComponent(comp, p.Date, remaining)
			portions[comp] = portions[comp].Plus(paid)
			remaining = remaining.Minus(paid)
		}
	}

	tx.UpdateComponents(portions[ComponentPrincipal], portions[ComponentInterest], portions[ComponentFee], portions[ComponentPenalty])
	return remaining
}
