package loan

import "github.com/sirupsen/logrus"

// EarliestUnpaidCharge picks the next charge to receive money.
//
// Two candidates are found among charges that are not fully paid and not
// collected at disbursement:
//   - the installment fee whose earliest unpaid share is due soonest
//   - the other charge with the earliest due date
//
// The installment fee wins unless the other charge is due strictly earlier
// than that share. Ties go to the installment fee. Returns nil when nothing
// is unpaid.
func EarliestUnpaidCharge(charges []*Charge) *Charge {
	var (
		byDate      *Charge
		perInstall  *Charge
		earliestDue *InstallmentCharge
	)

	for _, charge := range charges {
		if charge.IsDueAtDisbursement() || !charge.IsNotFullyPaid() {
			continue
		}
		if charge.IsInstallmentFee() {
			share := charge.UnpaidInstallmentCharge()
			if share == nil {
				continue
			}
			if earliestDue == nil || share.DueDate.Before(earliestDue.DueDate) {
				perInstall = charge
				earliestDue = share
			}
			continue
		}
		if byDate == nil || charge.DueDate.Before(byDate.DueDate) {
			byDate = charge
		}
	}

	switch {
	case perInstall == nil:
		return byDate
	case byDate == nil:
		return perInstall
	case byDate.DueDate.Before(earliestDue.DueDate):
		return byDate
	default:
		return perInstall
	}
}

// updateChargesPaidAmountBy settles amount against charges, earliest first.
// Every charge reached by a non charge-payment transaction gets a link on
// the transaction. Stops when the amount is used up, nothing is unpaid, or
// the selected charge cannot absorb anything more.
func (p *Processor) updateChargesPaidAmountBy(tx *Transaction, amount Money, charges []*Charge, installmentNumber int) {
	remaining := amount
	limit := amount.Zero()
	if tx.IsChargePayment() {
		limit = amount
	}

	for remaining.IsGreaterThanZero() {
		charge := EarliestUnpaidCharge(charges)
		if charge == nil {
			break
		}

		shareNumber := installmentNumber
		if charge.IsInstallmentFee() && shareNumber == 0 {
			if share := charge.UnpaidInstallmentCharge(); share != nil {
				shareNumber = share.InstallmentNumber
			}
		}

		paid := charge.UpdatePaidAmountBy(remaining, installmentNumber, limit)
		if !paid.IsGreaterThanZero() {
			break
		}
		remaining = remaining.Minus(paid)

		if !tx.IsChargePayment() {
			link := ChargePaidBy{ChargeID: charge.ID, Kind: charge.Kind, Amount: paid}
			if charge.IsInstallmentFee() {
				link.InstallmentNumber = shareNumber
			}
			tx.AddChargePaid(link)
		}
	}

	if remaining.IsGreaterThanZero() {
		p.log().WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"unmatched":      remaining.String(),
		}).Debug("charge portion exceeds outstanding charges")
	}
}
