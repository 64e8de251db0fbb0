/*
charge.go - Fees and penalties attached to a loan

PURPOSE:
  A Charge is a fee or penalty with a due policy. It tracks how much has
  been paid, waived and written off. Installment fees are apportioned: each
  installment carries its own share (InstallmentCharge) with its own paid
  state.

DUE POLICIES:
  at_disbursement:    Collected when the loan is disbursed. Immutable during
                      reprocessing, never selected for payment.
  specified_due_date: Due on DueDate; falls into the installment whose
                      (FromDate, DueDate] window contains it.
  installment_fee:    One share per installment, due on that installment's
                      due date.

INVARIANT:
  For installment fees: AmountPaid == sum(share.AmountPaid)

SEE ALSO:
  - charge_ledger.go: Selection of the next charge to pay
  - reprocess.go: Creates shares and pushes expectations onto installments
*/
package loan

// =============================================================================
// CHARGE TYPES
// =============================================================================

type ChargeKind string

const (
	ChargeFee     ChargeKind = "fee"
	ChargePenalty ChargeKind = "penalty"
)

type ChargeTime string

const (
	ChargeAtDisbursement   ChargeTime = "at_disbursement"
	ChargeSpecifiedDueDate ChargeTime = "specified_due_date"
	ChargeInstallmentFee   ChargeTime = "installment_fee"
)

type ChargeID string

// =============================================================================
// CHARGE
// =============================================================================

type Charge struct {
	ID   ChargeID
	Name string
	Kind ChargeKind
	Time ChargeTime

	Amount           Money
	AmountPaid       Money
	AmountWaived     Money
	AmountWrittenOff Money
	Paid             bool
	Waived           bool

	// DueDate is set for specified_due_date charges.
	DueDate Date

	// Installments holds one share per installment for installment fees,
	// ordered by due date.
	Installments []*InstallmentCharge
}

// InstallmentCharge is one installment's share of an installment fee.
type InstallmentCharge struct {
	InstallmentNumber int
	DueDate           Date
	Amount            Money
	AmountPaid        Money
	AmountWaived      Money
	Paid              bool
	Waived            bool
}

func (c *Charge) IsFee() bool               { return c.Kind == ChargeFee }
func (c *Charge) IsPenalty() bool           { return c.Kind == ChargePenalty }
func (c *Charge) IsDueAtDisbursement() bool { return c.Time == ChargeAtDisbursement }
func (c *Charge) IsInstallmentFee() bool    { return c.Time == ChargeInstallmentFee }

// AmountOutstanding is Amount - paid - waived - written off, never negative.
func (c *Charge) AmountOutstanding() Money {
	return c.Amount.Minus(c.AmountPaid).Minus(c.AmountWaived).Minus(c.AmountWrittenOff).ZeroIfNegative()
}

func (c *Charge) IsNotFullyPaid() bool {
	return c.AmountOutstanding().IsGreaterThanZero()
}

// ResetPaidAmount clears paid state on the charge and all its shares.
// Waived and written-off amounts are owned outside the engine and kept.
func (c *Charge) ResetPaidAmount(currency Currency) {
	c.AmountPaid = Zero(currency)
	c.Paid = false
	for _, share := range c.Installments {
		share.AmountPaid = Zero(currency)
		share.Paid = false
	}
	c.Waived = c.AmountWaived.IsGreaterThanZero() && c.AmountOutstanding().IsZero()
}

// IsDueForCollectionFromAndUpToAndIncluding reports whether the charge's due
// date falls in (from, to].
func (c *Charge) IsDueForCollectionFromAndUpToAndIncluding(from, to Date) bool {
	if c.DueDate.IsZero() {
		return false
	}
	return c.DueDate.After(from) && c.DueDate.BeforeOrEqual(to)
}

// UnpaidInstallmentCharge returns the earliest-due share that still has an
// outstanding amount, or nil.
func (c *Charge) UnpaidInstallmentCharge() *InstallmentCharge {
	var earliest *InstallmentCharge
	for _, share := range c.Installments {
		if !share.AmountOutstanding().IsGreaterThanZero() {
			continue
		}
		if earliest == nil || share.DueDate.Before(earliest.DueDate) {
			earliest = share
		}
	}
	return earliest
}

// InstallmentCharge returns the share for an installment number, or nil.
func (c *Charge) InstallmentCharge(number int) *InstallmentCharge {
	for _, share := range c.Installments {
		if share.InstallmentNumber == number {
			return share
		}
	}
	return nil
}

// UpdatePaidAmountBy applies up to amount to the charge and returns what was
// applied. For installment fees the payment goes to the share for
// installmentNumber, or the earliest unpaid share when installmentNumber is 0.
// A positive limit further bounds the applied amount (charge-payment
// transactions are capped at the slice allotted to one installment).
func (c *Charge) UpdatePaidAmountBy(amount Money, installmentNumber int, limit Money) Money {
	process := amount
	if limit.IsGreaterThanZero() {
		process = process.Min(limit)
	}

	if c.IsInstallmentFee() {
		var share *InstallmentCharge
		if installmentNumber > 0 {
			share = c.InstallmentCharge(installmentNumber)
		} else {
			share = c.UnpaidInstallmentCharge()
		}
		if share == nil {
			return amount.Zero()
		}
		process = share.updatePaidAmountBy(process)
	}

	applied := process.Min(c.AmountOutstanding())
	c.AmountPaid = c.AmountPaid.Plus(applied)
	if c.AmountOutstanding().IsZero() {
		if c.AmountWaived.IsGreaterThanZero() {
			c.Waived = true
		} else {
			c.Paid = true
		}
	}
	return applied
}

// Clone returns a deep copy.
func (c *Charge) Clone() *Charge {
	cp := *c
	cp.Installments = make([]*InstallmentCharge, len(c.Installments))
	for i, share := range c.Installments {
		s := *share
		cp.Installments[i] = &s
	}
	return &cp
}

// =============================================================================
// INSTALLMENT CHARGE
// =============================================================================

func (s *InstallmentCharge) AmountOutstanding() Money {
	return s.Amount.Minus(s.AmountPaid).Minus(s.AmountWaived).ZeroIfNegative()
}

func (s *InstallmentCharge) updatePaidAmountBy(amount Money) Money {
	applied := amount.Min(s.AmountOutstanding())
	s.AmountPaid = s.AmountPaid.Plus(applied)
	if s.AmountOutstanding().IsZero() {
		if s.AmountWaived.IsGreaterThanZero() {
			s.Waived = true
		} else {
			s.Paid = true
		}
	}
	return applied
}
