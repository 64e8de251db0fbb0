package loan

// HandleWriteOff writes off everything still outstanding on every installment
// that is not fully paid, regardless of due date, and sets the transaction's
// breakdown and amount to the written-off sums.
func (p *Processor) HandleWriteOff(tx *Transaction, currency Currency, installments []*Installment) {
	requireSchedule("handle_write_off", installments)
	if tx == nil || !tx.IsWriteOff() {
		contractViolation("handle_write_off", "not a write-off transaction")
	}

	principal := Zero(currency)
	interest := Zero(currency)
	fee := Zero(currency)
	penalty := Zero(currency)

	for _, installment := range installments {
		if !installment.IsNotFullyPaidOff() {
			continue
		}
		principal = principal.Plus(installment.WriteOffOutstandingPrincipal(tx.Date, currency))
		interest = interest.Plus(installment.WriteOffOutstandingInterest(tx.Date, currency))
		fee = fee.Plus(installment.WriteOffOutstandingFeeCharges(tx.Date, currency))
		penalty = penalty.Plus(installment.WriteOffOutstandingPenaltyCharges(tx.Date, currency))
	}

	tx.UpdateComponentsAndTotal(principal, interest, fee, penalty)
}
