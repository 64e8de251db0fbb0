package loan_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/strategies"
)

// =============================================================================
// SINGLE TRANSACTION
// =============================================================================

func TestHandleTransaction_OnTimeRepayment_ClearsInstallment(t *testing.T) {
	// GIVEN: Installment 1 expects principal 100 and interest 10
	// WHEN: A repayment of 110 arrives on the due date
	// THEN: The installment is met and nothing is left over

	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01",
		installment(1, "2024-02-01", "100", "10"),
		installment(2, "2024-03-01", "100", "10"),
	)
	tx := repayment("2024-02-01", "110")

	p.HandleTransaction(tx, usd, installments, nil)

	first := installments[0]
	assert.True(t, first.TotalOutstanding(usd).IsZero())
	assert.True(t, first.IsPaidOff())
	require.NotNil(t, first.ObligationsMetOn)
	assert.True(t, first.ObligationsMetOn.Equal(date("2024-02-01")))
	assert.True(t, first.TotalPaidInAdvance.IsZero(), "on-time money is neither advance nor late")
	assert.True(t, first.TotalPaidLate.IsZero())

	assertMoney(t, "100", tx.Principal, "principal")
	assertMoney(t, "10", tx.Interest, "interest")
	assert.True(t, tx.Overpayment.IsZero())
	assertMoney(t, "110", installments[1].TotalOutstanding(usd), "second installment untouched")
}

func TestHandleTransaction_SpillsIntoNextInstallment(t *testing.T) {
	// GIVEN: Two installments of 110
	// WHEN: An early repayment of 150 arrives
	// THEN: Installment 1 is cleared and 40 goes to installment 2 in advance

	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01",
		installment(1, "2024-02-01", "100", "10"),
		installment(2, "2024-03-01", "100", "10"),
	)
	tx := repayment("2024-01-20", "150")

	p.HandleTransaction(tx, usd, installments, nil)

	assert.True(t, installments[0].IsPaidOff())
	assertMoney(t, "110", installments[0].TotalPaidInAdvance, "installment 1 advance")
	assertMoney(t, "70", installments[1].TotalOutstanding(usd), "installment 2 outstanding")
	assertMoney(t, "40", installments[1].TotalPaidInAdvance, "installment 2 advance")
	assertMoney(t, "130", tx.Principal, "principal")
	assertMoney(t, "20", tx.Interest, "interest")
}

func TestHandleTransaction_LatePayment_TracksPaidLate(t *testing.T) {
	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01", installment(1, "2024-02-01", "100", "10"))
	tx := repayment("2024-02-15", "60")

	p.HandleTransaction(tx, usd, installments, nil)

	assertMoney(t, "60", installments[0].TotalPaidLate, "paid late")
	assertMoney(t, "10", tx.Interest, "interest first")
	assertMoney(t, "50", tx.Principal, "principal")
	assert.False(t, installments[0].IsPaidOff())
}

func TestHandleTransaction_SkipsPaidInstallments(t *testing.T) {
	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01",
		installment(1, "2024-02-01", "100", "10"),
		installment(2, "2024-03-01", "100", "10"),
	)
	p.HandleTransaction(repayment("2024-02-01", "110"), usd, installments, nil)

	second := repayment("2024-02-05", "30")
	p.HandleTransaction(second, usd, installments, nil)

	assertMoney(t, "80", installments[1].TotalOutstanding(usd), "installment 2")
	assertMoney(t, "10", second.Interest, "interest")
	assertMoney(t, "20", second.Principal, "principal")
}

// =============================================================================
// OVERPAYMENT
// =============================================================================

func TestHandleTransaction_Overpayment_RecordedAndHookCalled(t *testing.T) {
	// GIVEN: A single installment of 110
	// WHEN: A repayment of 150 arrives
	// THEN: 40 is recorded as overpayment and the hook sees it

	var hooked loan.Money
	calls := 0
	p := newProcessor(t, strategies.MifosStandard, strategies.WithOverpaymentHook(func(tx *loan.Transaction, amount loan.Money) {
		calls++
		hooked = amount
	}))
	installments := schedule("2024-01-01", installment(1, "2024-02-01", "100", "10"))
	tx := repayment("2024-02-01", "150")

	p.HandleTransaction(tx, usd, installments, nil)

	assertMoney(t, "40", tx.Overpayment, "overpayment")
	assert.Equal(t, 1, calls)
	assertMoney(t, "40", hooked, "hook amount")
	assertMoney(t, "150", tx.Amount, "amount unchanged")
}

func TestHandleTransaction_WaiverExcess_IsDiscarded(t *testing.T) {
	// GIVEN: Two installments with 10 interest each
	// WHEN: An interest waiver of 25 is applied
	// THEN: The waiver is zeroed, no overpayment, no hook; the installments
	//       keep what was waived during the pass

	calls := 0
	p := newProcessor(t, strategies.MifosStandard, strategies.WithOverpaymentHook(func(*loan.Transaction, loan.Money) {
		calls++
	}))
	installments := schedule("2024-01-01",
		installment(1, "2024-02-01", "100", "10"),
		installment(2, "2024-03-01", "100", "10"),
	)
	waiver := newTx(loan.TxWaiveInterest, "2024-01-15", "25")

	p.HandleTransaction(waiver, usd, installments, nil)

	assert.True(t, waiver.Amount.IsZero(), "amount is discarded")
	assert.True(t, waiver.Interest.IsZero(), "interest is discarded")
	assert.True(t, waiver.Principal.IsZero())
	assert.True(t, waiver.Overpayment.IsZero())
	assert.Equal(t, 0, calls)
	assertMoney(t, "10", installments[0].InterestWaived, "installment 1 waived")
	assertMoney(t, "10", installments[1].InterestWaived, "installment 2 waived")
	assert.True(t, installments[0].TotalPaidInAdvance.IsZero(), "waivers are not payments")
}

func TestHandleTransaction_ExactWaiver_IsKept(t *testing.T) {
	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01", installment(1, "2024-02-01", "100", "10"))
	waiver := newTx(loan.TxWaiveInterest, "2024-01-15", "10")

	p.HandleTransaction(waiver, usd, installments, nil)

	assertMoney(t, "10", waiver.Amount, "amount")
	assertMoney(t, "10", waiver.Interest, "interest")
}

// =============================================================================
// FULL REPROCESSING
// =============================================================================

func TestHandleTransactions_ResetsBeforeReplaying(t *testing.T) {
	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01", installment(1, "2024-02-01", "100", "10"))
	installments[0].PrincipalCompleted = money("100")
	installments[0].InterestPaid = money("10")
	installments[0].ObligationsMet = true

	tx := repayment("2024-02-01", "50")
	changed := p.HandleTransactions(date("2024-01-01"), []*loan.Transaction{tx}, usd, installments, nil)

	assert.True(t, changed.IsEmpty())
	assertMoney(t, "60", installments[0].TotalOutstanding(usd), "stale paid state is discarded")
	assert.False(t, installments[0].IsPaidOff())
}

func TestHandleTransactions_WriteOff_TotalsOutstanding(t *testing.T) {
	// GIVEN: Installment 1 repaid; installments 2 and 3 owe principal 50 and interest 5 each
	// WHEN: A write-off dated after both due dates is processed
	// THEN: The write-off totals principal 100, interest 10, fee 0, penalty 0

	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01",
		installment(1, "2024-02-01", "50", "5"),
		installment(2, "2024-03-01", "50", "5"),
		installment(3, "2024-04-01", "50", "5"),
	)
	writeOff := newTx(loan.TxWriteOff, "2024-05-15", "0")
	txs := []*loan.Transaction{repayment("2024-02-01", "55"), writeOff}

	changed := p.HandleTransactions(date("2024-01-01"), txs, usd, installments, nil)

	assert.True(t, changed.IsEmpty())
	assertMoney(t, "100", writeOff.Principal, "principal")
	assertMoney(t, "10", writeOff.Interest, "interest")
	assert.True(t, writeOff.FeeCharges.IsZero())
	assert.True(t, writeOff.PenaltyCharges.IsZero())
	assertMoney(t, "110", writeOff.Amount, "amount is the written-off total")

	for _, i := range installments {
		assert.True(t, i.IsPaidOff(), "installment %d", i.Number)
	}
	assertMoney(t, "50", installments[1].PrincipalWrittenOff, "installment 2 principal")
	assert.True(t, installments[0].PrincipalWrittenOff.IsZero(), "paid installment untouched")
}

func TestHandleTransactions_BackdatedInsert_ReversesChangedTransaction(t *testing.T) {
	// GIVEN: Transaction 7 was recorded as principal 80 / interest 20
	// WHEN: An earlier repayment is inserted and history is reprocessed
	// THEN: The shadow re-derives principal 60 / interest 40, so 7 is
	//       reversed, its external id cleared, and mapped to the shadow

	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01",
		installment(1, "2024-02-01", "100", "20"),
		installment(2, "2024-03-01", "100", "40"),
	)
	tx7 := persisted("7", "2024-02-01", "100", "80", "20")
	tx7.ExternalID = "bank-7"

	// unchanged history produces no reversal
	changed := p.HandleTransactions(date("2024-01-01"), []*loan.Transaction{tx7}, usd, installments, nil)
	require.True(t, changed.IsEmpty())
	require.False(t, tx7.Reversed)

	earlier := repayment("2024-01-20", "120")
	changed = p.HandleTransactions(date("2024-01-01"), []*loan.Transaction{earlier, tx7}, usd, installments, nil)

	require.Equal(t, 1, changed.Len())
	assert.Equal(t, []loan.TransactionID{"7"}, changed.OriginalIDs())
	assert.True(t, tx7.Reversed)
	assert.Empty(t, tx7.ExternalID)
	assertMoney(t, "80", tx7.Principal, "original keeps its stored breakdown")

	shadow, ok := changed.Get("7")
	require.True(t, ok)
	assert.True(t, shadow.IsNew())
	assert.Equal(t, "bank-7", shadow.ExternalID)
	assertMoney(t, "60", shadow.Principal, "shadow principal")
	assertMoney(t, "40", shadow.Interest, "shadow interest")

	assert.True(t, earlier.IsNew(), "new transactions are allocated in place")
	assertMoney(t, "100", earlier.Principal, "earlier principal")
	assertMoney(t, "20", earlier.Interest, "earlier interest")
	assert.True(t, installments[0].IsPaidOff())
	assertMoney(t, "40", installments[1].TotalOutstanding(usd), "installment 2 reflects the shadow")
}

func TestHandleTransactions_IsIdempotent(t *testing.T) {
	// GIVEN: A history processed once and then persisted
	// WHEN: It is reprocessed again unchanged
	// THEN: No transaction is reversed and balances are identical

	p := newProcessor(t, strategies.HeavensFamily)
	l := &loan.Loan{
		ID:               "loan-1",
		Currency:         usd,
		Principal:        money("200"),
		DisbursementDate: date("2024-01-01"),
		Installments: schedule("2024-01-01",
			installment(1, "2024-02-01", "100", "10"),
			installment(2, "2024-03-01", "100", "10"),
		),
		Charges: []*loan.Charge{penaltyDue("late", "2024-02-10", "15")},
		Transactions: []*loan.Transaction{
			newTx(loan.TxWaiveInterest, "2024-01-15", "10"),
			repayment("2024-02-05", "70"),
			repayment("2024-02-20", "90"),
		},
	}

	first := l.Reprocess(p)
	require.True(t, first.IsEmpty())
	for i, tx := range l.Transactions {
		tx.ID = loan.TransactionID(fmt.Sprintf("tx-%d", i))
	}
	before := l.Summary()
	breakdowns := make([]loan.Breakdown, len(l.Transactions))
	for i, tx := range l.Transactions {
		breakdowns[i] = tx.Breakdown()
	}

	second := l.Reprocess(p)

	assert.True(t, second.IsEmpty())
	for i, tx := range l.Transactions {
		assert.False(t, tx.Reversed)
		assert.True(t, breakdowns[i].Equal(tx.Breakdown(), usd), "transaction %s", tx.ID)
	}
	after := l.Summary()
	assert.True(t, before.Outstanding.IsEqualTo(after.Outstanding))
	assert.True(t, before.PenaltyPaid.IsEqualTo(after.PenaltyPaid))
}

func TestHandleTransactions_ConservesEveryPayment(t *testing.T) {
	// GIVEN: A mixed history of early, late and over payments with charges
	// WHEN: It is reprocessed
	// THEN: Each payment's components plus overpayment equal its amount

	for _, code := range strategies.Codes() {
		t.Run(code, func(t *testing.T) {
			p := newProcessor(t, strategies.Code(code))
			installments := schedule("2024-01-01",
				installment(1, "2024-02-01", "100", "10"),
				installment(2, "2024-03-01", "100", "10"),
				installment(3, "2024-04-01", "100", "10"),
			)
			charges := []*loan.Charge{installmentFee("svc", "9"), penaltyDue("late", "2024-02-10", "15")}
			txs := []*loan.Transaction{
				repayment("2024-01-15", "40"),
				repayment("2024-02-12", "95"),
				repayment("2024-03-01", "113"),
				repayment("2024-03-20", "200"),
			}

			p.HandleTransactions(date("2024-01-01"), txs, usd, installments, charges)

			total := loan.Zero(usd)
			for _, tx := range txs {
				b := tx.Breakdown()
				assert.True(t, b.Total().IsEqualTo(tx.Amount), "%s on %s: %s != %s", tx.Type, tx.Date, b.Total(), tx.Amount)
				total = total.Plus(b.Total())
			}
			assertMoney(t, "448", total, "all money accounted for")

			for _, i := range installments {
				assert.True(t, i.IsPaidOff(), "installment %d", i.Number)
			}
			for _, c := range charges {
				assert.True(t, c.AmountOutstanding().IsZero(), "charge %s", c.ID)
			}
		})
	}
}

func TestHandleTransactions_RepaymentSettlesCharges(t *testing.T) {
	// GIVEN: An installment fee of 10 split over two installments
	// WHEN: Installment 1 is repaid in full on its due date
	// THEN: The fee share for installment 1 is paid and linked to the repayment

	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01",
		installment(1, "2024-02-01", "100", "10"),
		installment(2, "2024-03-01", "100", "10"),
	)
	fee := installmentFee("svc", "10")
	tx := repayment("2024-02-01", "115")

	p.HandleTransactions(date("2024-01-01"), []*loan.Transaction{tx}, usd, installments, []*loan.Charge{fee})

	require.Len(t, fee.Installments, 2)
	assertMoney(t, "5", fee.Installments[0].Amount, "share 1")
	assertMoney(t, "5", fee.Installments[1].Amount, "share 2")
	assert.True(t, fee.Installments[0].Paid)
	assert.False(t, fee.Installments[1].Paid)
	assertMoney(t, "5", fee.AmountPaid, "charge paid")

	assertMoney(t, "5", tx.FeeCharges, "fee portion")
	require.Len(t, tx.ChargesPaid, 1)
	assert.Equal(t, loan.ChargeID("svc"), tx.ChargesPaid[0].ChargeID)
	assert.Equal(t, 1, tx.ChargesPaid[0].InstallmentNumber)
	assertMoney(t, "5", tx.ChargesPaid[0].Amount, "link amount")
	assert.True(t, installments[0].IsPaidOff())
}

func TestHandleTransactions_WaivedChargeIsNotOwed(t *testing.T) {
	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01", installment(1, "2024-02-01", "100", "10"))
	penalty := penaltyDue("late", "2024-01-20", "15")
	penalty.AmountWaived = money("15")
	tx := repayment("2024-02-01", "110")

	p.HandleTransactions(date("2024-01-01"), []*loan.Transaction{tx}, usd, installments, []*loan.Charge{penalty})

	assertMoney(t, "15", installments[0].PenaltyChargesWaived, "waived penalty")
	assert.True(t, installments[0].IsPaidOff())
	assert.True(t, tx.PenaltyCharges.IsZero())
	assert.True(t, penalty.Waived)
}

// =============================================================================
// CONTRACT VIOLATIONS
// =============================================================================

func TestProcessor_ContractViolations(t *testing.T) {
	valid := func() []*loan.Installment {
		return schedule("2024-01-01", installment(1, "2024-02-01", "100", "10"))
	}
	p := newProcessor(t, strategies.MifosStandard)

	tests := []struct {
		name string
		fn   func()
	}{
		{"no strategy", func() {
			(&loan.Processor{}).HandleTransaction(repayment("2024-02-01", "10"), usd, valid(), nil)
		}},
		{"empty schedule", func() {
			p.HandleTransactions(date("2024-01-01"), nil, usd, nil, nil)
		}},
		{"nil installment", func() {
			p.HandleTransaction(repayment("2024-02-01", "10"), usd, []*loan.Installment{nil}, nil)
		}},
		{"nil transaction", func() {
			p.HandleTransaction(nil, usd, valid(), nil)
		}},
		{"negative amount", func() {
			p.HandleTransaction(repayment("2024-02-01", "-10"), usd, valid(), nil)
		}},
		{"currency mismatch", func() {
			tx := repayment("2024-02-01", "10")
			tx.Amount = loan.MustParseMoney("10", loan.NewCurrency("EUR", 2))
			p.HandleTransaction(tx, usd, valid(), nil)
		}},
		{"write-off of a repayment", func() {
			p.HandleWriteOff(repayment("2024-02-01", "10"), usd, valid())
		}},
		{"charge payment for unknown charge", func() {
			tx := newTx(loan.TxChargePayment, "2024-02-01", "10")
			tx.ChargesPaid = []loan.ChargePaidBy{{ChargeID: "missing"}}
			p.HandleTransactions(date("2024-01-01"), []*loan.Transaction{tx}, usd, valid(), nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := contractError(tt.fn)
			require.Error(t, err)
			assert.ErrorIs(t, err, loan.ErrContractViolation)
			var ce *loan.ContractError
			assert.ErrorAs(t, err, &ce)
		})
	}
}
