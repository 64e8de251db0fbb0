package loan

// HandleRecalculation resets installment derived fields (no charge
// redistribution) and replays transactions against target. See
// HandleRepaymentSchedule for the result.
func (p *Processor) HandleRecalculation(
	disbursementDate Date,
	transactions []*Transaction,
	currency Currency,
	installments []*Installment,
	target *Installment,
	boundaries map[Date]Date,
) map[Date]Money {
	requireSchedule("handle_recalculation", installments)
	for _, installment := range installments {
		installment.ResetDerivedComponents()
		installment.UpdateDerivedFields(currency, disbursementDate)
	}
	return p.HandleRepaymentSchedule(transactions, currency, installments, target, boundaries)
}

// HandleRepaymentSchedule replays transactions through the allocator and
// tracks, for target, how much each transaction date paid early.
//
// For a transaction dated after target's period start whose recalculation
// boundary (boundaries[date.Key()]) precedes target's due date, the early
// payment is the drop in target's total outstanding since the previous
// checkpoint. Keys are Date.Key() values. The result maps each date to the
// larger of that figure and the transaction's unprocessed remainder, when
// nonzero.
//
// Transactions are replayed on shadow copies; only installments are mutated.
// Write-offs, charge payments and disbursements are not replayed.
func (p *Processor) HandleRepaymentSchedule(
	transactions []*Transaction,
	currency Currency,
	installments []*Installment,
	target *Installment,
	boundaries map[Date]Date,
) map[Date]Money {
	p.requireStrategy("handle_repayment_schedule")
	requireSchedule("handle_repayment_schedule", installments)
	if target == nil {
		contractViolation("handle_repayment_schedule", "nil target installment")
	}

	early := make(map[Date]Money)
	checkpoint := target.TotalOutstanding(currency)

	for _, tx := range transactions {
		requireTransaction("handle_repayment_schedule", tx, currency)
		if !(tx.IsRepayment() || tx.IsInterestWaiver() || tx.IsRecoveryRepayment()) {
			continue
		}

		work := tx.CopyForReprocessing()
		work.ResetDerivedComponents()
		unprocessed := p.processTransaction(work, currency, installments, Unconstrained())

		figure := Zero(currency)
		if tx.Date.After(target.FromDate) {
			boundary, ok := boundaries[tx.Date.Key()]
			if !ok {
				contractViolation("handle_repayment_schedule", "no recalculation boundary for %s", tx.Date)
			}
			if boundary.Before(target.DueDate) {
				outstanding := target.TotalOutstanding(currency)
				figure = checkpoint.Minus(outstanding).ZeroIfNegative()
				checkpoint = outstanding
			}
		}
		figure = figure.Max(unprocessed)

		if figure.IsGreaterThanZero() {
			key := tx.Date.Key()
			if prev, ok := early[key]; ok {
				figure = figure.Max(prev)
			}
			early[key] = figure
		}
	}
	return early
}
