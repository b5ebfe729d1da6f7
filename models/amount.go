package models

import "github.com/shopspring/decimal"

const (
	// AmountScale is the number of decimal places money is kept with.
	AmountScale = 2
	// AmountIntegerDigits bounds amounts to what NUMERIC(14, 2) can hold.
	AmountIntegerDigits = 12

	// Exponents beyond these bounds are rejected before any arithmetic, so a
	// value like 1e3000000 never gets expanded.
	minAmountExponent = -18
)

var maxAmount = decimal.New(1, AmountIntegerDigits)

// ValidateAmount checks that d has at most two decimal places and stays
// below 10^12 in magnitude. The sign is left to the caller.
func ValidateAmount(field string, d decimal.Decimal) error {
	exp := d.Exponent()
	if exp > AmountIntegerDigits {
		return amountTooLarge(field)
	}
	if exp < minAmountExponent || (exp < -AmountScale && !d.Equal(d.Truncate(AmountScale))) {
		return &ValidationError{Field: field, Message: "amount must have at most 2 decimal places"}
	}
	if d.Abs().GreaterThanOrEqual(maxAmount) {
		return amountTooLarge(field)
	}
	return nil
}

func amountTooLarge(field string) error {
	return &ValidationError{Field: field, Message: "amount must be less than 1000000000000"}
}
