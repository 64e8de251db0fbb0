package loan

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CURRENCY
// =============================================================================

// Currency identifies the ISO code and the number of decimal places amounts
// are rounded to.
type Currency struct {
	Code          string
	DecimalPlaces int32
}

func NewCurrency(code string, decimalPlaces int32) Currency {
	return Currency{Code: code, DecimalPlaces: decimalPlaces}
}

func (c Currency) String() string { return c.Code }

// =============================================================================
// MONEY - Exact decimal amount bound to a currency
// =============================================================================

// Money is an immutable amount. Arithmetic across currencies panics: the
// engine only ever works within a single loan's currency.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

func Zero(c Currency) Money { return Money{amount: decimal.Zero, currency: c} }

func NewMoney(amount decimal.Decimal, c Currency) Money {
	return Money{amount: amount, currency: c}
}

// ParseMoney parses a decimal string such as "100.50".
func ParseMoney(s string, c Currency) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money{amount: d, currency: c}, nil
}

// MustParseMoney is ParseMoney for literals in tests and fixtures.
func MustParseMoney(s string, c Currency) Money {
	m, err := ParseMoney(s, c)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() Currency      { return m.currency }

func (m Money) Zero() Money             { return Money{amount: decimal.Zero, currency: m.currency} }
func (m Money) IsZero() bool            { return m.amount.IsZero() }
func (m Money) IsGreaterThanZero() bool { return m.amount.IsPositive() }
func (m Money) IsNegative() bool        { return m.amount.IsNegative() }

func (m Money) Plus(o Money) Money {
	return Money{amount: m.amount.Add(o.amount), currency: m.common(o, "plus")}
}

func (m Money) Minus(o Money) Money {
	return Money{amount: m.amount.Sub(o.amount), currency: m.common(o, "minus")}
}

func (m Money) IsGreaterThan(o Money) bool {
	m.mustMatch(o, "compare")
	return m.amount.GreaterThan(o.amount)
}

func (m Money) IsGreaterThanOrEqualTo(o Money) bool {
	m.mustMatch(o, "compare")
	return m.amount.GreaterThanOrEqual(o.amount)
}

func (m Money) IsLessThan(o Money) bool {
	m.mustMatch(o, "compare")
	return m.amount.LessThan(o.amount)
}

func (m Money) IsEqualTo(o Money) bool {
	m.mustMatch(o, "compare")
	return m.amount.Equal(o.amount)
}

// Min returns the smaller of m and o.
func (m Money) Min(o Money) Money {
	if m.IsLessThan(o) {
		return m
	}
	return o
}

// Max returns the larger of m and o.
func (m Money) Max(o Money) Money {
	if m.IsGreaterThan(o) {
		return m
	}
	return o
}

// ZeroIfNegative clamps negative amounts to zero.
func (m Money) ZeroIfNegative() Money {
	if m.IsNegative() {
		return m.Zero()
	}
	return m
}

// Round rounds half-even to the currency's decimal places.
func (m Money) Round() Money {
	return Money{amount: m.amount.RoundBank(m.currency.DecimalPlaces), currency: m.currency}
}

// String formats as "<amount> <code>" using the currency's decimal places.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(m.currency.DecimalPlaces), m.currency.Code)
}

func (m Money) mustMatch(o Money, op string) {
	m.common(o, op)
}

// common returns the currency shared by m and o. A zero-value Money (no code)
// adopts whatever it's combined with.
func (m Money) common(o Money, op string) Currency {
	switch {
	case m.currency.Code == "":
		return o.currency
	case o.currency.Code == "":
		return m.currency
	case m.currency.Code != o.currency.Code:
		contractViolation("money."+op, "currency mismatch %s vs %s", m.currency.Code, o.currency.Code)
	}
	return m.currency
}
