package loan

import "github.com/shopspring/decimal"

// ChargeReprocessor pushes charge expectations onto installments at the start
// of a full reprocessing pass. It may create or refresh installment-fee
// shares; it must not touch paid amounts.
type ChargeReprocessor interface {
	Reprocess(currency Currency, disbursementDate Date, installments []*Installment, charges []*Charge)
}

// PeriodChargeReprocessor attributes each charge to the installment period
// it falls in:
//   - installment fees: the share for that installment (shares are created
//     on first use, split evenly with the rounding remainder on the last)
//   - specified-due-date charges: the installment whose (previous due date,
//     due date] window contains the due date; the first window starts after
//     the disbursement date, so a dated charge due on or before it is not
//     attributed to any installment
//
// Charges collected at disbursement are ignored.
type PeriodChargeReprocessor struct{}

func (PeriodChargeReprocessor) Reprocess(currency Currency, disbursementDate Date, installments []*Installment, charges []*Charge) {
	for _, charge := range charges {
		if charge.IsInstallmentFee() {
			ensureShares(charge, installments, currency)
		}
	}

	from := disbursementDate
	for _, installment := range installments {
		feeDue, feeWaived := Zero(currency), Zero(currency)
		penaltyDue, penaltyWaived := Zero(currency), Zero(currency)

		for _, charge := range charges {
			if charge.IsDueAtDisbursement() {
				continue
			}

			var due, waived Money
			switch {
			case charge.IsInstallmentFee():
				share := charge.InstallmentCharge(installment.Number)
				if share == nil {
					continue
				}
				due, waived = share.Amount, share.AmountWaived
			case charge.IsDueForCollectionFromAndUpToAndIncluding(from, installment.DueDate):
				due, waived = charge.Amount, charge.AmountWaived
			default:
				continue
			}

			if charge.IsPenalty() {
				penaltyDue = penaltyDue.Plus(due)
				penaltyWaived = penaltyWaived.Plus(waived)
			} else {
				feeDue = feeDue.Plus(due)
				feeWaived = feeWaived.Plus(waived)
			}
		}

		installment.UpdateChargePortion(feeDue, feeWaived, penaltyDue, penaltyWaived)
		installment.UpdateDerivedFields(currency, disbursementDate)
		from = installment.DueDate
	}
}

func ensureShares(charge *Charge, installments []*Installment, currency Currency) {
	if len(charge.Installments) == 0 {
		n := int64(len(installments))
		each := charge.Amount.Amount().Div(decimal.NewFromInt(n)).RoundDown(currency.DecimalPlaces)
		allocated := decimal.Zero
		for idx, installment := range installments {
			amount := each
			if idx == len(installments)-1 {
				amount = charge.Amount.Amount().Sub(allocated)
			}
			allocated = allocated.Add(amount)
			charge.Installments = append(charge.Installments, &InstallmentCharge{
				InstallmentNumber: installment.Number,
				DueDate:           installment.DueDate,
				Amount:            NewMoney(amount, currency),
				AmountPaid:        Zero(currency),
				AmountWaived:      Zero(currency),
			})
		}
		return
	}

	byNumber := make(map[int]*Installment, len(installments))
	for _, installment := range installments {
		byNumber[installment.Number] = installment
	}
	for _, share := range charge.Installments {
		installment, ok := byNumber[share.InstallmentNumber]
		if !ok {
			contractViolation("reprocess_charges", "charge %s has share for unknown installment %d", charge.ID, share.InstallmentNumber)
		}
		share.DueDate = installment.DueDate
	}
}
