package fees

import (
	"testing"

	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name          string
		amount        int64
		method        model.PaymentMethodType
		tier          model.PlanTier
		wantPlatform  int64
		wantProcessor int64
		wantNet       int64
	}{
		{
			name:          "card on starter plan",
			amount:        125000,
			method:        model.PaymentMethodCard,
			tier:          model.PlanStarter,
			wantPlatform:  3750,
			wantProcessor: 3655,
			wantNet:       117595,
		},
		{
			name:          "ach capped on growth plan",
			amount:        125000,
			method:        model.PaymentMethodACH,
			tier:          model.PlanGrowth,
			wantPlatform:  3125,
			wantProcessor: 500,
			wantNet:       121375,
		},
		{
			name:          "ach below cap on max plan",
			amount:        10000,
			method:        model.PaymentMethodACH,
			tier:          model.PlanMax,
			wantPlatform:  200,
			wantProcessor: 80,
			wantNet:       9720,
		},
		{
			name:          "rounds each fee to whole cents",
			amount:        1001,
			method:        model.PaymentMethodCard,
			tier:          model.PlanStarter,
			wantPlatform:  30,
			wantProcessor: 59,
			wantNet:       912,
		},
		{
			name:          "half cents round away from zero",
			amount:        50,
			method:        model.PaymentMethodCard,
			tier:          model.PlanFreeTrial,
			wantPlatform:  2,
			wantProcessor: 31,
			wantNet:       17,
		},
		{
			name:          "unknown tier uses default rate",
			amount:        100000,
			method:        model.PaymentMethodACH,
			tier:          model.PlanTier("enterprise"),
			wantPlatform:  3000,
			wantProcessor: 500,
			wantNet:       96500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Calculate(tt.amount, tt.method, tt.tier)
			require.NoError(t, err)

			assert.Equal(t, tt.amount, b.AmountCents)
			assert.Equal(t, tt.wantPlatform, b.PlatformFeeCents)
			assert.Equal(t, tt.wantProcessor, b.ProcessorFeeCents)
			assert.Equal(t, tt.wantNet, b.NetAmountCents)
			assert.Equal(t, b.AmountCents, b.NetAmountCents+b.TotalFeeCents())
		})
	}
}

func TestCalculateErrors(t *testing.T) {
	_, err := Calculate(0, model.PaymentMethodCard, model.PlanStarter)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = Calculate(-100, model.PaymentMethodCard, model.PlanStarter)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = Calculate(1000, model.PaymentMethodType("crypto"), model.PlanStarter)
	assert.ErrorIs(t, err, ErrUnknownPaymentMethod)

	_, err = Calculate(30, model.PaymentMethodCard, model.PlanStarter)
	assert.ErrorIs(t, err, ErrFeesExceedAmount)
}

func TestApplicationFeePercent(t *testing.T) {
	b, err := Calculate(125000, model.PaymentMethodCard, model.PlanStarter)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("5.92").Equal(b.ApplicationFeePercent()), b.ApplicationFeePercent().String())
	assert.True(t, Breakdown{}.ApplicationFeePercent().IsZero())
}

func TestCustomSchedule(t *testing.T) {
	s := DefaultSchedule()
	s.CardFixedCents = 0
	s.PlatformRates[model.PlanStarter] = decimal.RequireFromString("0.01")

	b, err := s.Calculate(10000, model.PaymentMethodCard, model.PlanStarter)
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.PlatformFeeCents)
	assert.Equal(t, int64(290), b.ProcessorFeeCents)
}
