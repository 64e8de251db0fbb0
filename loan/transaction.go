/*
transaction.go - Monetary events applied to a loan after disbursement

PURPOSE:
  A Transaction records an amount and, once allocated, how that amount was
  split across principal, interest, fee and penalty (plus any overpayment).

IDENTITY:
  ID == "" means the transaction is new: the engine mutates it in place.
  A non-empty ID means it was persisted earlier: during full reprocessing the
  engine never touches its breakdown. It allocates a shadow copy instead and
  compares. On mismatch the original is reversed and the shadow replaces it
  (see changed.go).

INVARIANT (after allocation):
  Principal + Interest + FeeCharges + PenaltyCharges + Overpayment == Amount
  (waivers discard their excess, write-offs set Amount to the written-off sum)

SEE ALSO:
  - processor.go: Allocation
  - changed.go: Replacement records
*/
package loan

import "time"

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

type TransactionType string

const (
	TxDisbursement      TransactionType = "disbursement"
	TxRepayment         TransactionType = "repayment"
	TxWaiveInterest     TransactionType = "waive_interest"
	TxRecoveryRepayment TransactionType = "recovery_repayment"
	TxWriteOff          TransactionType = "write_off"
	TxChargePayment     TransactionType = "charge_payment"
)

// ParseTransactionType accepts the wire names above.
func ParseTransactionType(s string) (TransactionType, bool) {
	switch t := TransactionType(s); t {
	case TxDisbursement, TxRepayment, TxWaiveInterest, TxRecoveryRepayment, TxWriteOff, TxChargePayment:
		return t, true
	}
	return "", false
}

type TransactionID string

// ChargePaidBy links a transaction to the charge (and installment share) it
// paid.
type ChargePaidBy struct {
	ChargeID          ChargeID
	Kind              ChargeKind
	Amount            Money
	InstallmentNumber int
}

// =============================================================================
// TRANSACTION
// =============================================================================

type Transaction struct {
	ID         TransactionID
	Type       TransactionType
	Date       Date
	Amount     Money
	ExternalID string

	// Breakdown, derived by allocation
	Principal      Money
	Interest       Money
	FeeCharges     Money
	PenaltyCharges Money
	Overpayment    Money

	ChargesPaid []ChargePaidBy

	Reversed  bool
	CreatedAt time.Time
}

func (t *Transaction) IsNew() bool               { return t.ID == "" }
func (t *Transaction) IsRepayment() bool         { return t.Type == TxRepayment }
func (t *Transaction) IsInterestWaiver() bool    { return t.Type == TxWaiveInterest }
func (t *Transaction) IsWaiver() bool            { return t.Type == TxWaiveInterest }
func (t *Transaction) IsNotWaiver() bool         { return !t.IsWaiver() }
func (t *Transaction) IsRecoveryRepayment() bool { return t.Type == TxRecoveryRepayment }
func (t *Transaction) IsWriteOff() bool          { return t.Type == TxWriteOff }
func (t *Transaction) IsChargePayment() bool     { return t.Type == TxChargePayment }
func (t *Transaction) IsDisbursement() bool      { return t.Type == TxDisbursement }

// IsPenaltyPayment reports whether a charge-payment transaction pays a
// penalty.
func (t *Transaction) IsPenaltyPayment() bool {
	if !t.IsChargePayment() {
		return false
	}
	for _, link := range t.ChargesPaid {
		if link.Kind == ChargePenalty {
			return true
		}
	}
	return false
}

// ResetDerivedComponents zeroes the breakdown and overpayment. Charge links
// are derived for every type except charge payments, whose links name what
// they pay.
func (t *Transaction) ResetDerivedComponents() {
	zero := t.Amount.Zero()
	t.Principal = zero
	t.Interest = zero
	t.FeeCharges = zero
	t.PenaltyCharges = zero
	t.Overpayment = zero
	if !t.IsChargePayment() {
		t.ChargesPaid = nil
	}
}

// UpdateComponents adds to the breakdown.
func (t *Transaction) UpdateComponents(principal, interest, fee, penalty Money) {
	t.Principal = t.Principal.Plus(principal)
	t.Interest = t.Interest.Plus(interest)
	t.FeeCharges = t.FeeCharges.Plus(fee)
	t.PenaltyCharges = t.PenaltyCharges.Plus(penalty)
}

// UpdateComponentsAndTotal replaces the breakdown and sets Amount to its sum.
func (t *Transaction) UpdateComponentsAndTotal(principal, interest, fee, penalty Money) {
	t.Principal = principal
	t.Interest = interest
	t.FeeCharges = fee
	t.PenaltyCharges = penalty
	t.Amount = principal.Plus(interest).Plus(fee).Plus(penalty)
}

func (t *Transaction) UpdateOverpayment(amount Money) { t.Overpayment = amount }
func (t *Transaction) Reverse()                       { t.Reversed = true }
func (t *Transaction) UpdateExternalID(id string)     { t.ExternalID = id }

// AddChargePaid records a charge link.
func (t *Transaction) AddChargePaid(link ChargePaidBy) {
	t.ChargesPaid = append(t.ChargesPaid, link)
}

// CopyForReprocessing builds the shadow used to re-derive a persisted
// transaction: same type, date, amount, external ID and charge links, no
// identity.
func (t *Transaction) CopyForReprocessing() *Transaction {
	shadow := &Transaction{
		Type:       t.Type,
		Date:       t.Date,
		Amount:     t.Amount,
		ExternalID: t.ExternalID,
		CreatedAt:  t.CreatedAt,
	}
	if len(t.ChargesPaid) > 0 {
		shadow.ChargesPaid = append([]ChargePaidBy(nil), t.ChargesPaid...)
	}
	return shadow
}

// Clone returns a deep copy including identity.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	if t.ChargesPaid != nil {
		cp.ChargesPaid = append([]ChargePaidBy(nil), t.ChargesPaid...)
	}
	return &cp
}

// =============================================================================
// BREAKDOWN - Pure value used to detect changed allocations
// =============================================================================

type Breakdown struct {
	Amount      Money
	Principal   Money
	Interest    Money
	Fee         Money
	Penalty     Money
	Overpayment Money
}

// Breakdown snapshots the transaction's allocation.
func (t *Transaction) Breakdown() Breakdown {
	return Breakdown{
		Amount:      t.Amount,
		Principal:   t.Principal,
		Interest:    t.Interest,
		Fee:         t.FeeCharges,
		Penalty:     t.PenaltyCharges,
		Overpayment: t.Overpayment,
	}
}

// Equal compares every figure in the currency. Missing values count as zero.
func (b Breakdown) Equal(o Breakdown, c Currency) bool {
	eq := func(x, y Money) bool { return Zero(c).Plus(x).IsEqualTo(Zero(c).Plus(y)) }
	return eq(b.Amount, o.Amount) &&
		eq(b.Principal, o.Principal) &&
		eq(b.Interest, o.Interest) &&
		eq(b.Fee, o.Fee) &&
		eq(b.Penalty, o.Penalty) &&
		eq(b.Overpayment, o.Overpayment)
}

// Total is the sum of the four components plus overpayment.
func (b Breakdown) Total() Money {
	return b.Principal.Plus(b.Interest).Plus(b.Fee).Plus(b.Penalty).Plus(b.Overpayment)
}
