package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/loan"
)

var usd = loan.NewCurrency("USD", 2)

func m(s string) loan.Money { return loan.MustParseMoney(s, usd) }

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// sampleLoan has a fee with shares, a dated penalty and two transactions,
// one of them reversed and carrying charge links.
func sampleLoan() *loan.Loan {
	disbursed := loan.MustParseDate("2024-01-01")
	met := loan.MustParseDate("2024-01-30")
	reprocessed := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	inst := func(number int, from, due string) *loan.Installment {
		i := &loan.Installment{
			Number:         number,
			FromDate:       loan.MustParseDate(from),
			DueDate:        loan.MustParseDate(due),
			Principal:      m("100"),
			Interest:       m("10"),
			FeeCharges:     m("5"),
			PenaltyCharges: loan.Zero(usd),
		}
		i.ResetDerivedComponents()
		return i
	}
	first := inst(1, "2024-01-01", "2024-02-01")
	first.PrincipalCompleted = m("100")
	first.InterestPaid = m("10")
	first.FeeChargesPaid = m("5")
	first.TotalPaidInAdvance = m("115")
	first.ObligationsMet = true
	first.ObligationsMetOn = &met

	return &loan.Loan{
		ID:               "loan-1",
		Name:             "Sample",
		Currency:         usd,
		Principal:        m("200"),
		DisbursementDate: disbursed,
		StrategyCode:     "mifos-standard",
		Installments:     []*loan.Installment{first, inst(2, "2024-02-01", "2024-03-01")},
		Charges: []*loan.Charge{
			{
				ID: "svc", Name: "Service fee", Kind: loan.ChargeFee, Time: loan.ChargeInstallmentFee,
				Amount: m("10"), AmountPaid: m("5"), AmountWaived: loan.Zero(usd), AmountWrittenOff: loan.Zero(usd),
				Installments: []*loan.InstallmentCharge{
					{InstallmentNumber: 1, DueDate: loan.MustParseDate("2024-02-01"), Amount: m("5"), AmountPaid: m("5"), AmountWaived: loan.Zero(usd), Paid: true},
					{InstallmentNumber: 2, DueDate: loan.MustParseDate("2024-03-01"), Amount: m("5"), AmountPaid: loan.Zero(usd), AmountWaived: loan.Zero(usd)},
				},
			},
			{
				ID: "late", Kind: loan.ChargePenalty, Time: loan.ChargeSpecifiedDueDate, DueDate: loan.MustParseDate("2024-02-15"),
				Amount: m("15"), AmountPaid: loan.Zero(usd), AmountWaived: loan.Zero(usd), AmountWrittenOff: loan.Zero(usd),
			},
		},
		Transactions: []*loan.Transaction{
			{
				ID: "tx-1", Type: loan.TxRepayment, Date: loan.MustParseDate("2024-01-30"), Amount: m("115"),
				ExternalID: "bank-1", Principal: m("100"), Interest: m("10"), FeeCharges: m("5"),
				PenaltyCharges: loan.Zero(usd), Overpayment: loan.Zero(usd), Reversed: true,
				ChargesPaid: []loan.ChargePaidBy{{ChargeID: "svc", Kind: loan.ChargeFee, Amount: m("5"), InstallmentNumber: 1}},
				CreatedAt:   reprocessed,
			},
			{
				ID: "tx-2", Type: loan.TxRepayment, Date: loan.MustParseDate("2024-01-30"), Amount: m("115"),
				Principal: m("100"), Interest: m("10"), FeeCharges: m("5"),
				PenaltyCharges: loan.Zero(usd), Overpayment: loan.Zero(usd),
				ChargesPaid: []loan.ChargePaidBy{{ChargeID: "svc", Kind: loan.ChargeFee, Amount: m("5"), InstallmentNumber: 1}},
				CreatedAt:   reprocessed,
			},
		},
		CreatedAt:       time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		LastReprocessed: &reprocessed,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	want := sampleLoan()

	require.NoError(t, store.CreateLoan(ctx, want))
	got, err := store.LoadLoan(ctx, "loan-1")
	require.NoError(t, err)

	assert.Equal(t, "Sample", got.Name)
	assert.Equal(t, usd, got.Currency)
	assert.True(t, got.DisbursementDate.Equal(want.DisbursementDate))
	require.NotNil(t, got.LastReprocessed)
	assert.True(t, got.LastReprocessed.Equal(*want.LastReprocessed))

	require.Len(t, got.Installments, 2)
	first := got.Installments[0]
	assert.True(t, m("100").IsEqualTo(first.PrincipalCompleted))
	assert.True(t, m("115").IsEqualTo(first.TotalPaidInAdvance))
	assert.True(t, first.ObligationsMet)
	require.NotNil(t, first.ObligationsMetOn)
	assert.Equal(t, "2024-01-30", first.ObligationsMetOn.String())
	assert.Nil(t, got.Installments[1].ObligationsMetOn)
	assert.True(t, got.Installments[1].FromDate.Equal(loan.MustParseDate("2024-02-01")))

	require.Len(t, got.Charges, 2)
	svc := got.Charges[0]
	assert.Equal(t, loan.ChargeID("svc"), svc.ID)
	require.Len(t, svc.Installments, 2)
	assert.True(t, svc.Installments[0].Paid)
	assert.True(t, m("5").IsEqualTo(svc.Installments[1].Amount))
	assert.Equal(t, "2024-02-15", got.Charges[1].DueDate.String())

	require.Len(t, got.Transactions, 2)
	tx1 := got.Transactions[0]
	assert.Equal(t, loan.TransactionID("tx-1"), tx1.ID)
	assert.True(t, tx1.Reversed)
	assert.Equal(t, "bank-1", tx1.ExternalID)
	require.Len(t, tx1.ChargesPaid, 1)
	assert.Equal(t, loan.ChargeID("svc"), tx1.ChargesPaid[0].ChargeID)
	assert.Equal(t, loan.ChargeFee, tx1.ChargesPaid[0].Kind)
	assert.Equal(t, 1, tx1.ChargesPaid[0].InstallmentNumber)
	assert.True(t, m("5").IsEqualTo(tx1.ChargesPaid[0].Amount))
	assert.Empty(t, got.Transactions[1].ExternalID)
}

func TestStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.CreateLoan(ctx, sampleLoan()))

	err := store.CreateLoan(ctx, sampleLoan())

	assert.ErrorIs(t, err, loan.ErrDuplicateLoan)
}

func TestStore_SaveLoan_ReplacesAggregate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	l := sampleLoan()
	require.NoError(t, store.CreateLoan(ctx, l))

	l.Transactions = append(l.Transactions, &loan.Transaction{
		ID: "tx-3", Type: loan.TxWriteOff, Date: loan.MustParseDate("2024-04-01"), Amount: m("110"),
		Principal: m("100"), Interest: m("10"), FeeCharges: loan.Zero(usd), PenaltyCharges: loan.Zero(usd), Overpayment: loan.Zero(usd),
	})
	l.Charges = l.Charges[:1]
	require.NoError(t, store.SaveLoan(ctx, l))

	got, err := store.LoadLoan(ctx, "loan-1")
	require.NoError(t, err)
	assert.Len(t, got.Charges, 1)
	require.Len(t, got.Transactions, 3)
	assert.Equal(t, loan.TxWriteOff, got.Transactions[2].Type)

	missing := sampleLoan()
	missing.ID = "other"
	assert.ErrorIs(t, store.SaveLoan(ctx, missing), loan.ErrLoanNotFound)
}

func TestStore_WithTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	err := store.WithTx(ctx, func(st loan.Store) error {
		if err := st.CreateLoan(ctx, sampleLoan()); err != nil {
			return err
		}
		return loan.ErrInvalidTransaction
	})

	assert.ErrorIs(t, err, loan.ErrInvalidTransaction)
	_, err = store.LoadLoan(ctx, "loan-1")
	assert.ErrorIs(t, err, loan.ErrLoanNotFound)
}

func TestStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	a := sampleLoan()
	b := sampleLoan()
	b.ID = "loan-0"
	for _, tx := range b.Transactions {
		tx.ID = "b-" + tx.ID
	}
	require.NoError(t, store.CreateLoan(ctx, a))
	require.NoError(t, store.CreateLoan(ctx, b))

	ids, err := store.ListLoanIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []loan.LoanID{"loan-0", "loan-1"}, ids)

	require.NoError(t, store.DeleteLoan(ctx, "loan-0"))
	assert.ErrorIs(t, store.DeleteLoan(ctx, "loan-0"), loan.ErrLoanNotFound)

	ids, err = store.ListLoanIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []loan.LoanID{"loan-1"}, ids)
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	base := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

	for i, trigger := range []loan.RunTrigger{loan.TriggerManual, loan.TriggerTransaction, loan.TriggerScheduled} {
		run := loan.ReprocessRun{
			ID:         string(trigger),
			LoanID:     "loan-1",
			Trigger:    trigger,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
			Reversed:   i,
		}
		if trigger == loan.TriggerScheduled {
			run.Error = "boom"
		}
		require.NoError(t, store.RecordRun(ctx, run))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, loan.TriggerScheduled, runs[0].Trigger)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Equal(t, 2, runs[0].Reversed)
	assert.Equal(t, loan.TriggerTransaction, runs[1].Trigger)
	assert.Empty(t, runs[1].Error)

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.Reset(ctx))
	all, err = store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
