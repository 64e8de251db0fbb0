package loan

import "github.com/sirupsen/logrus"

// chargeSlice is the part of a charge-payment transaction earmarked for one
// installment.
type chargeSlice struct {
	installment *Installment
	kind        ChargeKind
	amount      Money
}

// handleChargePayment allocates a transaction that pays specific charges.
//
// The referenced charges are expanded into (installment, amount) slices:
// installment fees give one slice per unpaid share, other charges are
// attributed to the installment whose window contains their due date. The
// transaction amount is then applied slice by slice, each time restricted
// to that single installment and capped at the slice. Money left after the
// last slice is an overpayment.
func (p *Processor) handleChargePayment(
	tx *Transaction,
	currency Currency,
	disbursementDate Date,
	installments []*Installment,
	charges []*Charge,
) {
	referenced := referencedCharges(tx, charges)
	slices := chargeSlices(referenced, installments, disbursementDate)

	tx.ResetDerivedComponents()
	unprocessed := Zero(currency).Plus(tx.Amount)

	for _, slice := range slices {
		if !unprocessed.IsGreaterThanZero() {
			break
		}
		amount := slice.amount.Min(unprocessed)
		if !amount.IsGreaterThanZero() {
			continue
		}
		unprocessed = unprocessed.Minus(amount)
		left := p.handleTransactionAndCharges(tx, currency, []*Installment{slice.installment}, referenced, CappedAt(amount, slice.kind))
		unprocessed = unprocessed.Plus(left)
	}

	if unprocessed.IsGreaterThanZero() {
		p.log().WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"overpayment":    unprocessed.String(),
		}).Debug("charge payment exceeds charges")
		onOverpayment(p.Strategy, tx, unprocessed)
		tx.UpdateOverpayment(unprocessed)
	}
}

func referencedCharges(tx *Transaction, charges []*Charge) []*Charge {
	byID := make(map[ChargeID]*Charge, len(charges))
	for _, charge := range charges {
		byID[charge.ID] = charge
	}

	seen := make(map[ChargeID]bool, len(tx.ChargesPaid))
	out := make([]*Charge, 0, len(tx.ChargesPaid))
	for _, link := range tx.ChargesPaid {
		if seen[link.ChargeID] {
			continue
		}
		charge, ok := byID[link.ChargeID]
		if !ok {
			contractViolation("charge_payment", "transaction %s pays unknown charge %s", tx.ID, link.ChargeID)
		}
		seen[link.ChargeID] = true
		out = append(out, charge)
	}
	return out
}

func chargeSlices(charges []*Charge, installments []*Installment, disbursementDate Date) []chargeSlice {
	byNumber := make(map[int]*Installment, len(installments))
	for _, installment := range installments {
		byNumber[installment.Number] = installment
	}

	var slices []chargeSlice
	for _, charge := range charges {
		if !charge.IsInstallmentFee() {
			continue
		}
		for _, share := range charge.Installments {
			if !share.AmountOutstanding().IsGreaterThanZero() {
				continue
			}
			installment, ok := byNumber[share.InstallmentNumber]
			if !ok {
				contractViolation("charge_payment", "charge %s has share for unknown installment %d", charge.ID, share.InstallmentNumber)
			}
			slices = append(slices, chargeSlice{installment: installment, kind: charge.Kind, amount: share.AmountOutstanding()})
		}
	}

	from := disbursementDate
	for _, installment := range installments {
		for _, charge := range charges {
			if charge.IsInstallmentFee() || charge.IsDueAtDisbursement() {
				continue
			}
			if charge.IsDueForCollectionFromAndUpToAndIncluding(from, installment.DueDate) && charge.IsNotFullyPaid() {
				slices = append(slices, chargeSlice{installment: installment, kind: charge.Kind, amount: charge.AmountOutstanding()})
			}
		}
		from = installment.DueDate
	}
	return slices
}
