/*
Package factory provides JSON to Go loan conversion.

PURPOSE:
  Converts JSON loan definitions into loan.Loan aggregates. Loans can be
  created through the API, loaded from demo scenarios or kept as fixtures
  without writing Go.

JSON SCHEMA:
  {
    "id": "loan-42",
    "name": "Working capital",
    "currency": "USD",
    "decimal_places": 2,
    "principal": "1200.00",
    "disbursement_date": "2024-01-01",
    "strategy": "mifos-standard",
    "schedule": {
      "installments": 12,
      "every_months": 1,
      "annual_interest_rate": "0.12"
    },
    "installments": [
      {"due_date": "2024-02-01", "principal": "100", "interest": "10"}
    ],
    "charges": [
      {"id": "late-1", "kind": "penalty", "time": "specified_due_date",
       "amount": "15", "due_date": "2024-03-05"}
    ],
    "transactions": [
      {"type": "repayment", "date": "2024-02-01", "amount": "110"}
    ]
  }

  Either "schedule" (generated flat schedule) or "installments" (explicit)
  must be given.

KEY FEATURES:
  - Amounts are decimal strings, never floats
  - Unknown strategy codes are rejected
  - Installment periods are linked (FromDate = previous due date)
  - A missing id gets a fresh UUID
  - The result passes loan.Validate or an error is returned

USAGE:
  f := factory.NewLoanFactory("mifos-standard")
  l, err := f.ParseLoan(jsonString)

SEE ALSO:
  - loan/loan.go: Loan aggregate
  - strategies/strategies.go: Strategy codes
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/strategies"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// LoanJSON is the JSON representation of a loan definition.
type LoanJSON struct {
	ID               string            `json:"id,omitempty"`
	Name             string            `json:"name,omitempty"`
	Currency         string            `json:"currency"`
	DecimalPlaces    *int32            `json:"decimal_places,omitempty"` // default 2
	Principal        string            `json:"principal"`
	DisbursementDate string            `json:"disbursement_date"`
	Strategy         string            `json:"strategy,omitempty"`
	Schedule         *ScheduleJSON     `json:"schedule,omitempty"`
	Installments     []InstallmentJSON `json:"installments,omitempty"`
	Charges          []ChargeJSON      `json:"charges,omitempty"`
	Transactions     []TransactionJSON `json:"transactions,omitempty"`
}

// ScheduleJSON generates a flat schedule: equal principal, equal interest.
type ScheduleJSON struct {
	Installments       int    `json:"installments"`
	EveryMonths        int    `json:"every_months,omitempty"` // default 1
	AnnualInterestRate string `json:"annual_interest_rate,omitempty"`
}

type InstallmentJSON struct {
	DueDate   string `json:"due_date"`
	Principal string `json:"principal"`
	Interest  string `json:"interest,omitempty"`
}

type ChargeJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind"` // fee, penalty
	Time    string `json:"time"` // at_disbursement, specified_due_date, installment_fee
	Amount  string `json:"amount"`
	DueDate string `json:"due_date,omitempty"`
	Waived  string `json:"waived,omitempty"`
}

type TransactionJSON struct {
	Type       string   `json:"type"`
	Date       string   `json:"date"`
	Amount     string   `json:"amount,omitempty"` // ignored for write_off
	ExternalID string   `json:"external_id,omitempty"`
	Charges    []string `json:"charges,omitempty"` // charge_payment only
}

// =============================================================================
// LOAN FACTORY
// =============================================================================

// LoanFactory converts JSON loan definitions to loan.Loan.
type LoanFactory struct {
	DefaultStrategy string
}

// NewLoanFactory creates a factory. Loans naming no strategy get
// defaultStrategy (strategies.Default when empty).
func NewLoanFactory(defaultStrategy string) *LoanFactory {
	if defaultStrategy == "" {
		defaultStrategy = string(strategies.Default)
	}
	return &LoanFactory{DefaultStrategy: defaultStrategy}
}

// ParseLoan parses a JSON string into a Loan.
func (f *LoanFactory) ParseLoan(jsonStr string) (*loan.Loan, error) {
	var lj LoanJSON
	if err := json.Unmarshal([]byte(jsonStr), &lj); err != nil {
		return nil, fmt.Errorf("failed to parse loan JSON: %w", err)
	}
	return f.FromJSON(lj)
}

// FromJSON converts LoanJSON to a validated loan.Loan.
func (f *LoanFactory) FromJSON(lj LoanJSON) (*loan.Loan, error) {
	places := int32(2)
	if lj.DecimalPlaces != nil {
		places = *lj.DecimalPlaces
	}
	if lj.Currency == "" {
		return nil, invalid("currency is required")
	}
	currency := loan.NewCurrency(lj.Currency, places)

	code := lj.Strategy
	if code == "" {
		code = f.DefaultStrategy
	}
	if _, ok := strategies.Describe(code); !ok {
		return nil, fmt.Errorf("%q: %w", code, loan.ErrUnknownStrategy)
	}

	principal, err := parseMoney("principal", lj.Principal, currency)
	if err != nil {
		return nil, err
	}
	disbursed, err := parseDate("disbursement_date", lj.DisbursementDate)
	if err != nil {
		return nil, err
	}

	l := &loan.Loan{
		ID:               loan.LoanID(lj.ID),
		Name:             lj.Name,
		Currency:         currency,
		Principal:        principal,
		DisbursementDate: disbursed,
		StrategyCode:     code,
	}

	switch {
	case lj.Schedule != nil && len(lj.Installments) > 0:
		return nil, invalid("give either schedule or installments, not both")
	case lj.Schedule != nil:
		if l.Installments, err = generateSchedule(*lj.Schedule, principal, disbursed, currency); err != nil {
			return nil, err
		}
	default:
		for idx, ij := range lj.Installments {
			installment, err := parseInstallment(idx+1, ij, currency)
			if err != nil {
				return nil, err
			}
			l.Installments = append(l.Installments, installment)
		}
	}
	l.LinkPeriods()

	for _, cj := range lj.Charges {
		charge, err := parseCharge(cj, currency)
		if err != nil {
			return nil, err
		}
		l.Charges = append(l.Charges, charge)
	}

	for _, tj := range lj.Transactions {
		tx, err := f.TransactionFromJSON(l, tj)
		if err != nil {
			return nil, err
		}
		l.Transactions = append(l.Transactions, tx)
	}

	if l.ID == "" {
		l.ID = loan.LoanID(uuid.New().String())
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// TransactionFromJSON builds a new (unpersisted) transaction for l.
func (f *LoanFactory) TransactionFromJSON(l *loan.Loan, tj TransactionJSON) (*loan.Transaction, error) {
	txType, ok := loan.ParseTransactionType(tj.Type)
	if !ok {
		return nil, invalidTx("unknown transaction type %q", tj.Type)
	}
	date, err := loan.ParseDate(tj.Date)
	if err != nil {
		return nil, invalidTx("date: %v", err)
	}

	tx := &loan.Transaction{
		Type:       txType,
		Date:       date,
		ExternalID: tj.ExternalID,
		Amount:     loan.Zero(l.Currency),
	}
	if txType != loan.TxWriteOff {
		amount, err := loan.ParseMoney(tj.Amount, l.Currency)
		if err != nil {
			return nil, invalidTx("amount: %v", err)
		}
		tx.Amount = amount
	}

	for _, chargeID := range tj.Charges {
		link := loan.ChargePaidBy{ChargeID: loan.ChargeID(chargeID), Amount: loan.Zero(l.Currency)}
		for _, charge := range l.Charges {
			if charge.ID == link.ChargeID {
				link.Kind = charge.Kind
			}
		}
		tx.AddChargePaid(link)
	}
	return tx, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), loan.ErrInvalidLoan)
}

func invalidTx(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), loan.ErrInvalidTransaction)
}

func parseMoney(field, s string, c loan.Currency) (loan.Money, error) {
	if s == "" {
		return loan.Zero(c), nil
	}
	m, err := loan.ParseMoney(s, c)
	if err != nil {
		return loan.Money{}, invalid("%s: %v", field, err)
	}
	return m, nil
}

func parseDate(field, s string) (loan.Date, error) {
	if s == "" {
		return loan.Date{}, invalid("%s is required", field)
	}
	d, err := loan.ParseDate(s)
	if err != nil {
		return loan.Date{}, invalid("%s: %v", field, err)
	}
	return d, nil
}

func parseInstallment(number int, ij InstallmentJSON, c loan.Currency) (*loan.Installment, error) {
	due, err := parseDate(fmt.Sprintf("installment %d due_date", number), ij.DueDate)
	if err != nil {
		return nil, err
	}
	principal, err := parseMoney(fmt.Sprintf("installment %d principal", number), ij.Principal, c)
	if err != nil {
		return nil, err
	}
	interest, err := parseMoney(fmt.Sprintf("installment %d interest", number), ij.Interest, c)
	if err != nil {
		return nil, err
	}
	return newInstallment(number, due, principal, interest, c), nil
}

func newInstallment(number int, due loan.Date, principal, interest loan.Money, c loan.Currency) *loan.Installment {
	i := &loan.Installment{
		Number:         number,
		DueDate:        due,
		Principal:      principal,
		Interest:       interest,
		FeeCharges:     loan.Zero(c),
		PenaltyCharges: loan.Zero(c),
	}
	i.ResetDerivedComponents()
	return i
}

func parseCharge(cj ChargeJSON, c loan.Currency) (*loan.Charge, error) {
	if cj.ID == "" {
		return nil, invalid("charge id is required")
	}
	amount, err := parseMoney("charge "+cj.ID+" amount", cj.Amount, c)
	if err != nil {
		return nil, err
	}
	waived, err := parseMoney("charge "+cj.ID+" waived", cj.Waived, c)
	if err != nil {
		return nil, err
	}

	charge := &loan.Charge{
		ID:               loan.ChargeID(cj.ID),
		Name:             cj.Name,
		Kind:             loan.ChargeKind(cj.Kind),
		Time:             loan.ChargeTime(cj.Time),
		Amount:           amount,
		AmountPaid:       loan.Zero(c),
		AmountWaived:     waived,
		AmountWrittenOff: loan.Zero(c),
	}
	if charge.Time == "" {
		charge.Time = loan.ChargeSpecifiedDueDate
	}
	if cj.DueDate != "" {
		if charge.DueDate, err = parseDate("charge "+cj.ID+" due_date", cj.DueDate); err != nil {
			return nil, err
		}
	}
	return charge, nil
}

// generateSchedule builds a flat schedule. Principal and interest are split
// evenly; rounding remainders go on the last installment.
func generateSchedule(sj ScheduleJSON, principal loan.Money, disbursed loan.Date, c loan.Currency) ([]*loan.Installment, error) {
	if sj.Installments <= 0 {
		return nil, invalid("schedule needs at least one installment")
	}
	every := sj.EveryMonths
	if every <= 0 {
		every = 1
	}
	rate := decimal.Zero
	if sj.AnnualInterestRate != "" {
		var err error
		if rate, err = decimal.NewFromString(sj.AnnualInterestRate); err != nil {
			return nil, invalid("annual_interest_rate: %v", err)
		}
	}

	n := decimal.NewFromInt(int64(sj.Installments))
	totalInterest := principal.Amount().
		Mul(rate).
		Mul(decimal.NewFromInt(int64(every * sj.Installments))).
		Div(decimal.NewFromInt(12)).
		Round(c.DecimalPlaces)
	eachPrincipal := principal.Amount().Div(n).RoundDown(c.DecimalPlaces)
	eachInterest := totalInterest.Div(n).RoundDown(c.DecimalPlaces)

	out := make([]*loan.Installment, 0, sj.Installments)
	for k := 1; k <= sj.Installments; k++ {
		p, i := eachPrincipal, eachInterest
		if k == sj.Installments {
			p = principal.Amount().Sub(eachPrincipal.Mul(decimal.NewFromInt(int64(k - 1))))
			i = totalInterest.Sub(eachInterest.Mul(decimal.NewFromInt(int64(k - 1))))
		}
		due := disbursed.AddMonths(k * every)
		out = append(out, newInstallment(k, due, loan.NewMoney(p, c), loan.NewMoney(i, c), c))
	}
	return out, nil
}
