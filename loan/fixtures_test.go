package loan_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/strategies"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var usd = loan.NewCurrency("USD", 2)

func money(s string) loan.Money { return loan.MustParseMoney(s, usd) }

func date(s string) loan.Date { return loan.MustParseDate(s) }

func installment(number int, due, principal, interest string) *loan.Installment {
	i := &loan.Installment{
		Number:         number,
		DueDate:        date(due),
		Principal:      money(principal),
		Interest:       money(interest),
		FeeCharges:     loan.Zero(usd),
		PenaltyCharges: loan.Zero(usd),
	}
	i.ResetDerivedComponents()
	return i
}

// schedule links FromDate of each installment to the previous due date.
func schedule(disbursed string, installments ...*loan.Installment) []*loan.Installment {
	from := date(disbursed)
	for _, i := range installments {
		i.FromDate = from
		from = i.DueDate
	}
	return installments
}

func newTx(txType loan.TransactionType, on, amount string) *loan.Transaction {
	tx := &loan.Transaction{Type: txType, Date: date(on), Amount: money(amount)}
	tx.ResetDerivedComponents()
	return tx
}

func repayment(on, amount string) *loan.Transaction {
	return newTx(loan.TxRepayment, on, amount)
}

// persisted returns a recorded repayment with a stored breakdown.
func persisted(id, on, amount, principal, interest string) *loan.Transaction {
	tx := repayment(on, amount)
	tx.ID = loan.TransactionID(id)
	tx.Principal = money(principal)
	tx.Interest = money(interest)
	return tx
}

func installmentFee(id, amount string) *loan.Charge {
	return &loan.Charge{
		ID:               loan.ChargeID(id),
		Kind:             loan.ChargeFee,
		Time:             loan.ChargeInstallmentFee,
		Amount:           money(amount),
		AmountPaid:       loan.Zero(usd),
		AmountWaived:     loan.Zero(usd),
		AmountWrittenOff: loan.Zero(usd),
	}
}

func penaltyDue(id, due, amount string) *loan.Charge {
	return &loan.Charge{
		ID:               loan.ChargeID(id),
		Kind:             loan.ChargePenalty,
		Time:             loan.ChargeSpecifiedDueDate,
		DueDate:          date(due),
		Amount:           money(amount),
		AmountPaid:       loan.Zero(usd),
		AmountWaived:     loan.Zero(usd),
		AmountWrittenOff: loan.Zero(usd),
	}
}

func newProcessor(t *testing.T, code strategies.Code, opts ...strategies.Option) *loan.Processor {
	t.Helper()
	s, err := strategies.New(string(code), opts...)
	require.NoError(t, err)
	return loan.NewProcessor(s, nil)
}

// assertMoney compares amounts numerically.
func assertMoney(t *testing.T, want string, got loan.Money, what string) {
	t.Helper()
	require.True(t, money(want).IsEqualTo(got), "%s: want %s, got %s", what, want, got.String())
}

// contractError runs fn and returns the ContractError it panicked with.
func contractError(fn func()) (err error) {
	defer loan.RecoverContract(&err)
	fn()
	return nil
}
