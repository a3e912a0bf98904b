// Package fees computes platform and processor fees for rent payments and
// normalizes payment amounts into integer cents.
//
// All arithmetic runs on shopspring/decimal and is rounded half away from
// zero to whole cents only at the end, so a fee is never computed from an
// already rounded intermediate.
package fees

import (
	"errors"
	"fmt"

	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/shopspring/decimal"
)

var (
	// ErrNonPositiveAmount is returned for zero or negative amounts.
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")

	// ErrUnknownPaymentMethod is returned for unsupported payment methods.
	ErrUnknownPaymentMethod = errors.New("unsupported payment method type")

	// ErrFeesExceedAmount is returned when fees would consume the payment.
	ErrFeesExceedAmount = errors.New("fees exceed the payment amount")
)

var hundred = decimal.NewFromInt(100)

// Schedule holds the fee rates. Rates are fractions (0.029 == 2.9 %).
type Schedule struct {
	// PlatformRates is the platform fee rate per owner plan tier.
	PlatformRates map[model.PlanTier]decimal.Decimal

	// DefaultPlatformRate applies to unknown or empty tiers.
	DefaultPlatformRate decimal.Decimal

	CardRate       decimal.Decimal
	CardFixedCents int64

	ACHRate     decimal.Decimal
	ACHCapCents int64
}

// DefaultSchedule returns the standard fee schedule:
//
//	platform: free_trial/starter 3.0 %, growth 2.5 %, max 2.0 %
//	card:     2.9 % + 30¢
//	ACH:      0.8 %, capped at $5.00
func DefaultSchedule() Schedule {
	return Schedule{
		PlatformRates: map[model.PlanTier]decimal.Decimal{
			model.PlanFreeTrial: decimal.RequireFromString("0.030"),
			model.PlanStarter:   decimal.RequireFromString("0.030"),
			model.PlanGrowth:    decimal.RequireFromString("0.025"),
			model.PlanMax:       decimal.RequireFromString("0.020"),
		},
		DefaultPlatformRate: decimal.RequireFromString("0.030"),
		CardRate:            decimal.RequireFromString("0.029"),
		CardFixedCents:      30,
		ACHRate:             decimal.RequireFromString("0.008"),
		ACHCapCents:         500,
	}
}

// Breakdown is the result of a fee calculation, in integer cents.
type Breakdown struct {
	AmountCents       int64                   `json:"amountCents"`
	PlatformFeeCents  int64                   `json:"platformFeeCents"`
	ProcessorFeeCents int64                   `json:"processorFeeCents"`
	NetAmountCents    int64                   `json:"netAmountCents"`
	PlatformFeeRate   decimal.Decimal         `json:"platformFeeRate"`
	PaymentMethodType model.PaymentMethodType `json:"paymentMethodType"`
	PlanTier          model.PlanTier          `json:"planTier"`
}

// TotalFeeCents is the platform fee plus the processor fee.
func (b Breakdown) TotalFeeCents() int64 {
	return b.PlatformFeeCents + b.ProcessorFeeCents
}

// ApplicationFeePercent expresses the total fee as a percentage of the
// amount, rounded to two decimals, as recurring processor objects take a
// percentage instead of an absolute fee.
func (b Breakdown) ApplicationFeePercent() decimal.Decimal {
	if b.AmountCents == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(b.TotalFeeCents()).
		Mul(hundred).
		Div(decimal.NewFromInt(b.AmountCents)).
		Round(2)
}

// Calculate computes the fee breakdown using DefaultSchedule.
func Calculate(amountCents int64, method model.PaymentMethodType, tier model.PlanTier) (Breakdown, error) {
	return DefaultSchedule().Calculate(amountCents, method, tier)
}

// Calculate computes the platform fee (tiered), the processor fee (card vs
// ACH formula) and the net amount left for the owner.
func (s Schedule) Calculate(amountCents int64, method model.PaymentMethodType, tier model.PlanTier) (Breakdown, error) {
	if amountCents <= 0 {
		return Breakdown{}, ErrNonPositiveAmount
	}

	processorFee, err := s.ProcessorFee(amountCents, method)
	if err != nil {
		return Breakdown{}, err
	}

	rate := s.PlatformRate(tier)
	platformFee := roundCents(decimal.NewFromInt(amountCents).Mul(rate))

	net := amountCents - platformFee - processorFee
	if net <= 0 {
		return Breakdown{}, fmt.Errorf("%w: amount %d, fees %d", ErrFeesExceedAmount, amountCents, platformFee+processorFee)
	}

	return Breakdown{
		AmountCents:       amountCents,
		PlatformFeeCents:  platformFee,
		ProcessorFeeCents: processorFee,
		NetAmountCents:    net,
		PlatformFeeRate:   rate,
		PaymentMethodType: method,
		PlanTier:          tier,
	}, nil
}

// PlatformRate returns the platform fee rate for a plan tier.
func (s Schedule) PlatformRate(tier model.PlanTier) decimal.Decimal {
	if rate, ok := s.PlatformRates[tier]; ok {
		return rate
	}
	return s.DefaultPlatformRate
}

// ProcessorFee returns the processor fee in cents for a payment method.
func (s Schedule) ProcessorFee(amountCents int64, method model.PaymentMethodType) (int64, error) {
	amount := decimal.NewFromInt(amountCents)

	switch method {
	case model.PaymentMethodCard:
		return roundCents(amount.Mul(s.CardRate)) + s.CardFixedCents, nil
	case model.PaymentMethodACH:
		fee := roundCents(amount.Mul(s.ACHRate))
		if s.ACHCapCents > 0 && fee > s.ACHCapCents {
			fee = s.ACHCapCents
		}
		return fee, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, method)
	}
}

func roundCents(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
