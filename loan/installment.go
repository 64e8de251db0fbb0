/*
installment.go - One scheduled due period of a loan

PURPOSE:
  An Installment carries what the schedule generator expects for a period
  (principal, interest, fee, penalty) and what allocation has done to it
  (paid, waived, written off). Outstanding is always derived, never stored.

COMPONENT ARITHMETIC:
  outstanding = expected - paid - waived - writtenOff   (clamped at zero)

  The engine only ever applies min(amount, outstanding) to a component, so
  paid+waived+writtenOff never exceeds expected after a pass.

LIFECYCLE:
  1. Generated externally (expected amounts fixed)
  2. ResetDerivedComponents() at the start of every reprocessing pass
  3. UpdateDerivedFields() marks zero-obligation periods as met
  4. UpdateChargePortion() from the charge reprocessor
  5. Pay, Waive and WriteOff calls while transactions are folded in

SEE ALSO:
  - processor.go: Drives installments during a pass
  - reprocess.go: Sets fee/penalty expectations from charges
*/
package loan

// =============================================================================
// COMPONENTS
// =============================================================================

// Component names one of the four obligations an installment carries.
type Component string

const (
	ComponentPrincipal Component = "principal"
	ComponentInterest  Component = "interest"
	ComponentFee       Component = "fee"
	ComponentPenalty   Component = "penalty"
)

// =============================================================================
// INSTALLMENT
// =============================================================================

type Installment struct {
	Number   int
	FromDate Date // exclusive; the previous due date (or disbursement)
	DueDate  Date

	// Expected amounts
	Principal      Money
	Interest       Money
	FeeCharges     Money
	PenaltyCharges Money

	// Derived during allocation
	PrincipalCompleted       Money
	PrincipalWrittenOff      Money
	InterestPaid             Money
	InterestWaived           Money
	InterestWrittenOff       Money
	FeeChargesPaid           Money
	FeeChargesWaived         Money
	FeeChargesWrittenOff     Money
	PenaltyChargesPaid       Money
	PenaltyChargesWaived     Money
	PenaltyChargesWrittenOff Money

	TotalPaidInAdvance Money
	TotalPaidLate      Money

	ObligationsMet   bool
	ObligationsMetOn *Date
}

// ResetDerivedComponents clears everything allocation wrote.
func (i *Installment) ResetDerivedComponents() {
	zero := i.Principal.Zero()
	i.PrincipalCompleted = zero
	i.PrincipalWrittenOff = zero
	i.InterestPaid = zero
	i.InterestWaived = zero
	i.InterestWrittenOff = zero
	i.FeeChargesPaid = zero
	i.FeeChargesWaived = zero
	i.FeeChargesWrittenOff = zero
	i.PenaltyChargesPaid = zero
	i.PenaltyChargesWaived = zero
	i.PenaltyChargesWrittenOff = zero
	i.TotalPaidInAdvance = zero
	i.TotalPaidLate = zero
	i.ObligationsMet = false
	i.ObligationsMetOn = nil
}

// UpdateDerivedFields marks an installment with nothing owed as met on the
// disbursement date.
func (i *Installment) UpdateDerivedFields(currency Currency, disbursementDate Date) {
	if !i.ObligationsMet && i.TotalOutstanding(currency).IsZero() {
		i.ObligationsMet = true
		on := disbursementDate
		i.ObligationsMetOn = &on
	}
}

// UpdateChargePortion sets the fee and penalty expectations computed by the
// charge reprocessor. An installment that now owes charges is no longer met.
func (i *Installment) UpdateChargePortion(feeDue, feeWaived, penaltyDue, penaltyWaived Money) {
	i.FeeCharges = feeDue
	i.FeeChargesWaived = feeWaived
	i.PenaltyCharges = penaltyDue
	i.PenaltyChargesWaived = penaltyWaived
	if i.ObligationsMet && i.TotalOutstanding(feeDue.Currency()).IsGreaterThanZero() {
		i.ObligationsMet = false
		i.ObligationsMetOn = nil
	}
}

// =============================================================================
// OUTSTANDING
// =============================================================================

func (i *Installment) PrincipalOutstanding(c Currency) Money {
	return Zero(c).Plus(i.Principal).Minus(i.PrincipalCompleted).Minus(i.PrincipalWrittenOff).ZeroIfNegative()
}

func (i *Installment) InterestOutstanding(c Currency) Money {
	return Zero(c).Plus(i.Interest).Minus(i.InterestPaid).Minus(i.InterestWaived).Minus(i.InterestWrittenOff).ZeroIfNegative()
}

func (i *Installment) FeeChargesOutstanding(c Currency) Money {
	return Zero(c).Plus(i.FeeCharges).Minus(i.FeeChargesPaid).Minus(i.FeeChargesWaived).Minus(i.FeeChargesWrittenOff).ZeroIfNegative()
}

func (i *Installment) PenaltyChargesOutstanding(c Currency) Money {
	return Zero(c).Plus(i.PenaltyCharges).Minus(i.PenaltyChargesPaid).Minus(i.PenaltyChargesWaived).Minus(i.PenaltyChargesWrittenOff).ZeroIfNegative()
}

// TotalOutstanding is the sum of the four component outstandings.
func (i *Installment) TotalOutstanding(c Currency) Money {
	return i.PrincipalOutstanding(c).
		Plus(i.InterestOutstanding(c)).
		Plus(i.FeeChargesOutstanding(c)).
		Plus(i.PenaltyChargesOutstanding(c))
}

// TotalDue is the sum of the four expected components.
func (i *Installment) TotalDue(c Currency) Money {
	return Zero(c).Plus(i.Principal).Plus(i.Interest).Plus(i.FeeCharges).Plus(i.PenaltyCharges)
}

// Outstanding returns the outstanding amount of a single component.
func (i *Installment) Outstanding(c Currency, comp Component) Money {
	switch comp {
	case ComponentPrincipal:
		return i.PrincipalOutstanding(c)
	case ComponentInterest:
		return i.InterestOutstanding(c)
	case ComponentFee:
		return i.FeeChargesOutstanding(c)
	case ComponentPenalty:
		return i.PenaltyChargesOutstanding(c)
	}
	contractViolation("installment.outstanding", "unknown component %q", comp)
	return Money{}
}

func (i *Installment) IsNotFullyPaidOff() bool { return !i.ObligationsMet }
func (i *Installment) IsPaidOff() bool         { return i.ObligationsMet }

// =============================================================================
// PAY / WAIVE / WRITE OFF
// =============================================================================
// Every operation applies at most the component's outstanding amount and
// returns what it actually applied.

func (i *Installment) PayPrincipalComponent(date Date, amount Money) Money {
	applied := amount.Min(i.PrincipalOutstanding(amount.Currency()))
	i.PrincipalCompleted = i.PrincipalCompleted.Plus(applied)
	i.trackAdvanceAndLate(date, applied)
	i.checkIfObligationsMet(date, amount.Currency())
	return applied
}

func (i *Installment) PayInterestComponent(date Date, amount Money) Money {
	applied := amount.Min(i.InterestOutstanding(amount.Currency()))
	i.InterestPaid = i.InterestPaid.Plus(applied)
	i.trackAdvanceAndLate(date, applied)
	i.checkIfObligationsMet(date, amount.Currency())
	return applied
}

func (i *Installment) PayFeeChargesComponent(date Date, amount Money) Money {
	applied := amount.Min(i.FeeChargesOutstanding(amount.Currency()))
	i.FeeChargesPaid = i.FeeChargesPaid.Plus(applied)
	i.trackAdvanceAndLate(date, applied)
	i.checkIfObligationsMet(date, amount.Currency())
	return applied
}

func (i *Installment) PayPenaltyChargesComponent(date Date, amount Money) Money {
	applied := amount.Min(i.PenaltyChargesOutstanding(amount.Currency()))
	i.PenaltyChargesPaid = i.PenaltyChargesPaid.Plus(applied)
	i.trackAdvanceAndLate(date, applied)
	i.checkIfObligationsMet(date, amount.Currency())
	return applied
}

// PayComponent dispatches to the Pay*Component for comp.
func (i *Installment) PayComponent(comp Component, date Date, amount Money) Money {
	switch comp {
	case ComponentPrincipal:
		return i.PayPrincipalComponent(date, amount)
	case ComponentInterest:
		return i.PayInterestComponent(date, amount)
	case ComponentFee:
		return i.PayFeeChargesComponent(date, amount)
	case ComponentPenalty:
		return i.PayPenaltyChargesComponent(date, amount)
	}
	contractViolation("installment.pay", "unknown component %q", comp)
	return Money{}
}

// WaiveInterestComponent waives up to amount of outstanding interest.
// Waived amounts are not counted as paid in advance or late.
func (i *Installment) WaiveInterestComponent(date Date, amount Money) Money {
	applied := amount.Min(i.InterestOutstanding(amount.Currency()))
	i.InterestWaived = i.InterestWaived.Plus(applied)
	i.checkIfObligationsMet(date, amount.Currency())
	return applied
}

func (i *Installment) WriteOffOutstandingPrincipal(date Date, c Currency) Money {
	due := i.PrincipalOutstanding(c)
	i.PrincipalWrittenOff = i.PrincipalWrittenOff.Plus(due)
	i.checkIfObligationsMet(date, c)
	return due
}

func (i *Installment) WriteOffOutstandingInterest(date Date, c Currency) Money {
	due := i.InterestOutstanding(c)
	i.InterestWrittenOff = i.InterestWrittenOff.Plus(due)
	i.checkIfObligationsMet(date, c)
	return due
}

func (i *Installment) WriteOffOutstandingFeeCharges(date Date, c Currency) Money {
	due := i.FeeChargesOutstanding(c)
	i.FeeChargesWrittenOff = i.FeeChargesWrittenOff.Plus(due)
	i.checkIfObligationsMet(date, c)
	return due
}

func (i *Installment) WriteOffOutstandingPenaltyCharges(date Date, c Currency) Money {
	due := i.PenaltyChargesOutstanding(c)
	i.PenaltyChargesWrittenOff = i.PenaltyChargesWrittenOff.Plus(due)
	i.checkIfObligationsMet(date, c)
	return due
}

func (i *Installment) trackAdvanceAndLate(date Date, applied Money) {
	switch {
	case date.Before(i.DueDate):
		i.TotalPaidInAdvance = i.TotalPaidInAdvance.Plus(applied)
	case date.After(i.DueDate):
		i.TotalPaidLate = i.TotalPaidLate.Plus(applied)
	}
}

func (i *Installment) checkIfObligationsMet(date Date, c Currency) {
	i.ObligationsMet = i.TotalOutstanding(c).IsZero()
	if i.ObligationsMet {
		on := date
		i.ObligationsMetOn = &on
	} else {
		i.ObligationsMetOn = nil
	}
}

// Clone returns a deep copy.
func (i *Installment) Clone() *Installment {
	c := *i
	if i.ObligationsMetOn != nil {
		on := *i.ObligationsMetOn
		c.ObligationsMetOn = &on
	}
	return &c
}
