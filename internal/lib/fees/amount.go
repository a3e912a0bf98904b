package fees

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountUnit tells NormalizeToCents how to read a raw amount.
type AmountUnit string

const (
	// AmountUnitAuto infers the unit from the value and the expected rent.
	AmountUnitAuto    AmountUnit = ""
	AmountUnitDollars AmountUnit = "dollars"
	AmountUnitCents   AmountUnit = "cents"
)

// MaxAmountCents caps a single payment at $100,000.
const MaxAmountCents int64 = 10_000_000

var (
	// ErrTooManyDecimals is returned for dollar amounts below one cent.
	ErrTooManyDecimals = errors.New("dollar amounts allow at most two decimals")

	// ErrFractionalCents is returned for cent amounts with a fraction.
	ErrFractionalCents = errors.New("cent amounts must be whole numbers")

	// ErrAmountTooLarge is returned above MaxAmountCents.
	ErrAmountTooLarge = errors.New("amount exceeds the maximum single payment")

	// ErrUnknownUnit is returned for unsupported units.
	ErrUnknownUnit = errors.New("unknown amount unit")
)

// ParseAmountUnit validates a unit string. Empty means auto.
func ParseAmountUnit(s string) (AmountUnit, error) {
	switch u := AmountUnit(strings.ToLower(strings.TrimSpace(s))); u {
	case AmountUnitAuto, AmountUnitDollars, AmountUnitCents:
		return u, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
	}
}

// NormalizeToCents converts a raw amount into integer cents.
//
// With an explicit unit the value is read in that unit. In auto mode:
//   - a value with a fractional part is dollars ("1250.50"),
//   - an integer equal to expectedCents is already cents ("125000" for a
//     $1,250 rent),
//   - any other integer is dollars ("1250").
func NormalizeToCents(raw decimal.Decimal, unit AmountUnit, expectedCents int64) (int64, error) {
	if !raw.IsPositive() {
		return 0, ErrNonPositiveAmount
	}

	if unit == AmountUnitAuto {
		unit = inferUnit(raw, expectedCents)
	}

	var cents decimal.Decimal
	switch unit {
	case AmountUnitDollars:
		if !raw.Equal(raw.Truncate(2)) {
			return 0, ErrTooManyDecimals
		}
		cents = raw.Mul(hundred)
	case AmountUnitCents:
		if !raw.IsInteger() {
			return 0, ErrFractionalCents
		}
		cents = raw
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}

	if cents.GreaterThan(decimal.NewFromInt(MaxAmountCents)) {
		return 0, ErrAmountTooLarge
	}
	return cents.IntPart(), nil
}

func inferUnit(raw decimal.Decimal, expectedCents int64) AmountUnit {
	if !raw.IsInteger() {
		return AmountUnitDollars
	}
	if expectedCents > 0 && raw.Equal(decimal.NewFromInt(expectedCents)) {
		return AmountUnitCents
	}
	return AmountUnitDollars
}

// CentsToDecimal converts cents into a dollar amount with two decimals.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
