package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of fractional digits of the ledger's minor unit.
const CurrencyPlaces = 2

// IsCurrencyAmount reports whether d is representable in the currency's minor unit.
func IsCurrencyAmount(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(CurrencyPlaces))
}

// IsPositiveAmount reports whether d is a strictly positive currency amount.
func IsPositiveAmount(d decimal.Decimal) bool {
	return d.IsPositive() && IsCurrencyAmount(d)
}

// SplitEvenly divides total into n parts of the minor unit.
// Every part gets total/n truncated; the last part absorbs the remainder so the
// parts always sum to total exactly.
func SplitEvenly(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	parts := make([]decimal.Decimal, n)
	base := total.Div(decimal.NewFromInt(int64(n))).Truncate(CurrencyPlaces)
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		parts[i] = base
		allocated = allocated.Add(base)
	}
	parts[n-1] = total.Sub(allocated)
	return parts
}

// AllocateProportional splits total across weights in proportion to each weight.
// Each share is truncated to the minor unit and the residual goes to the last
// weight, so the shares always sum to total exactly. Order of weights is kept.
func AllocateProportional(total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	if len(weights) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	shares := make([]decimal.Decimal, len(weights))
	if sum.IsZero() {
		shares[len(shares)-1] = total
		for i := 0; i < len(shares)-1; i++ {
			shares[i] = decimal.Zero
		}
		return shares
	}

	allocated := decimal.Zero
	last := len(weights) - 1
	for i := 0; i < last; i++ {
		shares[i] = total.Mul(weights[i]).Div(sum).Truncate(CurrencyPlaces)
		allocated = allocated.Add(shares[i])
	}
	shares[last] = total.Sub(allocated)
	return shares
}

// CalculateDueDate calculates the due date for a specific week
// Week 1 is due 7 days after start, week 2 14 days after, and so on.
func CalculateDueDate(startDate time.Time, weekNumber int) time.Time {
	return startDate.AddDate(0, 0, 7*weekNumber)
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsDateOverdue checks if a due date is before now
func IsDateOverdue(dueDate, now time.Time) bool {
	return now.After(dueDate)
}

// DecimalFromString converts string to decimal.Decimal
func DecimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustDecimal parses s and panics on malformed input. Intended for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
