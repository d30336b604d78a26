// Package core provides the domain value types for the dorm financial
// ledger: peso amounts, calendar dates, semester and ledger records, and
// the typed metadata carried by ledger entries.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal peso amount. Positive values are charges,
// negative values are payments. Arithmetic never rounds; callers round
// to two decimal places only at presentation or group boundaries via
// Round2.
type Money struct {
	amount decimal.Decimal
}

func NewMoney(amount decimal.Decimal) Money {
	return Money{amount: amount}
}

func MoneyFromInt(pesos int64) Money {
	return Money{amount: decimal.NewFromInt(pesos)}
}

// MoneyFromString parses a plain decimal string (as stored in the row
// store) into a Money. Returns ErrValidation for anything that is not a
// decimal number.
func MoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, wrapValidation("amount %q is not a decimal number", s)
	}
	return Money{amount: d}, nil
}

// ParsePesos parses user-entered peso amounts, accepting thousands
// separators ("1,234.50") and a leading peso sign.
func ParsePesos(s string) (Money, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₱")
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		if r == ',' {
			continue
		}
		if !unicode.IsDigit(r) && r != '.' && r != '-' {
			return Money{}, wrapValidation("amount %q is not a peso amount", s)
		}
		b.WriteRune(r)
	}
	return MoneyFromString(b.String())
}

func ZeroMoney() Money {
	return Money{amount: decimal.Zero}
}

func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

func (m Money) Sub(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

func (m Money) Abs() Money {
	return Money{amount: m.amount.Abs()}
}

func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg()}
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Cmp returns -1, 0 or 1 comparing m against other.
func (m Money) Cmp(other Money) int {
	return m.amount.Cmp(other.amount)
}

// Round2 rounds half-up to two decimal places. This is the only rounding
// the package performs; intermediate sums stay exact.
func (m Money) Round2() Money {
	return Money{amount: m.amount.Round(2)}
}

// String formats the amount with exactly two decimal places.
func (m Money) String() string {
	return m.amount.StringFixed(2)
}

// Decimal exposes the underlying decimal for storage encoding.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}
