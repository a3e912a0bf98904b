package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeToCents(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		unit     AmountUnit
		expected int64
		want     int64
		wantErr  error
	}{
		{name: "fractional value is dollars", raw: "1250.50", unit: AmountUnitAuto, expected: 125000, want: 125050},
		{name: "integer matching rent in cents", raw: "125000", unit: AmountUnitAuto, expected: 125000, want: 125000},
		{name: "integer not matching rent is dollars", raw: "1250", unit: AmountUnitAuto, expected: 125000, want: 125000},
		{name: "partial payment in dollars", raw: "600", unit: AmountUnitAuto, expected: 125000, want: 60000},
		{name: "explicit cents", raw: "1250", unit: AmountUnitCents, expected: 125000, want: 1250},
		{name: "explicit dollars", raw: "125000", unit: AmountUnitDollars, expected: 0, wantErr: ErrAmountTooLarge},
		{name: "maximum amount accepted", raw: "100000", unit: AmountUnitDollars, want: MaxAmountCents},
		{name: "sub-cent dollars", raw: "12.345", unit: AmountUnitDollars, wantErr: ErrTooManyDecimals},
		{name: "fractional cents", raw: "12.5", unit: AmountUnitCents, wantErr: ErrFractionalCents},
		{name: "zero", raw: "0", unit: AmountUnitAuto, wantErr: ErrNonPositiveAmount},
		{name: "negative", raw: "-5", unit: AmountUnitDollars, wantErr: ErrNonPositiveAmount},
		{name: "unknown unit", raw: "5", unit: AmountUnit("euros"), wantErr: ErrUnknownUnit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeToCents(decimal.RequireFromString(tt.raw), tt.unit, tt.expected)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAmountUnit(t *testing.T) {
	u, err := ParseAmountUnit(" Dollars ")
	require.NoError(t, err)
	assert.Equal(t, AmountUnitDollars, u)

	u, err = ParseAmountUnit("")
	require.NoError(t, err)
	assert.Equal(t, AmountUnitAuto, u)

	_, err = ParseAmountUnit("yen")
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestCentsToDecimal(t *testing.T) {
	assert.Equal(t, "1250.05", CentsToDecimal(125005).StringFixed(2))
}
