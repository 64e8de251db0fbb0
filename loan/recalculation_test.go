package loan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/strategies"
)

// sameDay maps each transaction date to itself.
func sameDay(txs ...*loan.Transaction) map[loan.Date]loan.Date {
	out := make(map[loan.Date]loan.Date, len(txs))
	for _, tx := range txs {
		out[tx.Date.Key()] = tx.Date
	}
	return out
}

func TestHandleRecalculation_EarlyPaymentsPerDate(t *testing.T) {
	// GIVEN: Installment 2 (period 2024-02-01 .. 2024-03-01) owes 110
	// WHEN: Repayments arrive before and inside its period
	// THEN: Each in-period date reports how much installment 2 dropped, and
	//       the last one reports its larger unprocessed remainder

	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01",
		installment(1, "2024-02-01", "100", "10"),
		installment(2, "2024-03-01", "100", "10"),
	)
	txs := []*loan.Transaction{
		repayment("2024-01-25", "110"),
		repayment("2024-02-10", "50"),
		repayment("2024-02-20", "30"),
		repayment("2024-02-25", "100"),
	}

	early := p.HandleRecalculation(date("2024-01-01"), txs, usd, installments, installments[1], sameDay(txs...))

	require.Len(t, early, 3)
	assertMoney(t, "50", early[date("2024-02-10").Key()], "2024-02-10")
	assertMoney(t, "30", early[date("2024-02-20").Key()], "2024-02-20")
	assertMoney(t, "70", early[date("2024-02-25").Key()], "2024-02-25 remainder")
	_, ok := early[date("2024-01-25").Key()]
	assert.False(t, ok, "payments before the period are not early for installment 2")

	for _, tx := range txs {
		assert.True(t, tx.Principal.IsZero(), "transactions are replayed on copies")
	}
	assert.True(t, installments[1].IsPaidOff())
}

func TestHandleRecalculation_BoundaryAfterDueDate_NotEarly(t *testing.T) {
	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01",
		installment(1, "2024-02-01", "100", "10"),
		installment(2, "2024-03-01", "100", "10"),
	)
	txs := []*loan.Transaction{repayment("2024-01-25", "110"), repayment("2024-02-10", "50")}
	boundaries := sameDay(txs...)
	boundaries[date("2024-02-10").Key()] = date("2024-03-05")

	early := p.HandleRecalculation(date("2024-01-01"), txs, usd, installments, installments[1], boundaries)

	assert.Empty(t, early)
}

func TestHandleRecalculation_SameDayKeepsLargerFigure(t *testing.T) {
	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01",
		installment(1, "2024-02-01", "100", "10"),
		installment(2, "2024-03-01", "100", "10"),
	)
	txs := []*loan.Transaction{
		repayment("2024-01-25", "110"),
		repayment("2024-02-10", "60"),
		repayment("2024-02-10", "20"),
	}

	early := p.HandleRecalculation(date("2024-01-01"), txs, usd, installments, installments[1], sameDay(txs...))

	require.Len(t, early, 1)
	assertMoney(t, "60", early[date("2024-02-10").Key()], "larger of the two")
}

func TestHandleRecalculation_SkipsWriteOffsAndChargePayments(t *testing.T) {
	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01", installment(1, "2024-02-01", "100", "10"))
	txs := []*loan.Transaction{
		newTx(loan.TxWriteOff, "2024-01-10", "0"),
		chargePayment("2024-01-12", "5", "svc"),
		repayment("2024-01-15", "40"),
	}

	early := p.HandleRecalculation(date("2024-01-01"), txs, usd, installments, installments[0], sameDay(txs...))

	require.Len(t, early, 1)
	assertMoney(t, "40", early[date("2024-01-15").Key()], "repayment")
	assert.True(t, installments[0].PrincipalWrittenOff.IsZero())
}

func TestHandleRecalculation_MissingBoundary_IsContractViolation(t *testing.T) {
	p := newProcessor(t, strategies.MifosStandard)
	installments := schedule("2024-01-01", installment(1, "2024-02-01", "100", "10"))
	txs := []*loan.Transaction{repayment("2024-01-15", "40")}

	err := contractError(func() {
		p.HandleRecalculation(date("2024-01-01"), txs, usd, installments, installments[0], map[loan.Date]loan.Date{})
	})

	assert.ErrorIs(t, err, loan.ErrContractViolation)
}
