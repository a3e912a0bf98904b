package handler

import (
	"github.com/deppfellow/tenantflow/internal/validation"
	"github.com/shopspring/decimal"
)

// LeaseRequest addresses a lease by path parameter.
type LeaseRequest struct {
	LeaseID string `param:"leaseId" json:"-" validate:"required,uuid"`
}

func (r *LeaseRequest) Validate() error {
	return validation.Struct(r)
}

// PaymentRequest addresses a ledger row by path parameter.
type PaymentRequest struct {
	PaymentID string `param:"paymentId" json:"-" validate:"required,uuid"`
}

func (r *PaymentRequest) Validate() error {
	return validation.Struct(r)
}

// QuoteFeesRequest previews the fees of a payment. A zero amount quotes the
// lease rent.
type QuoteFeesRequest struct {
	LeaseID           string          `json:"leaseId" validate:"required,uuid"`
	Amount            decimal.Decimal `json:"amount"`
	Unit              string          `json:"unit" validate:"omitempty,oneof=dollars cents"`
	PaymentMethodType string          `json:"paymentMethodType" validate:"required,oneof=card us_bank_account"`
}

func (r *QuoteFeesRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	return validateAmount(r.Amount)
}

// CreatePaymentRequest is a one-time rent payment. The idempotency key is
// read from the Idempotency-Key header.
type CreatePaymentRequest struct {
	LeaseID           string          `param:"leaseId" json:"-" validate:"required,uuid"`
	Amount            decimal.Decimal `json:"amount"`
	Unit              string          `json:"unit" validate:"omitempty,oneof=dollars cents"`
	PaymentMethodID   string          `json:"paymentMethodId" validate:"omitempty,max=255,printascii"`
	PaymentMethodType string          `json:"paymentMethodType" validate:"omitempty,oneof=card us_bank_account"`
}

func (r *CreatePaymentRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	return validateMethodPair(r.PaymentMethodID, r.PaymentMethodType)
}

// CreateSubscriptionRequest enrolls a lease in autopay, optionally with a
// payment method other than the tenant's default.
type CreateSubscriptionRequest struct {
	LeaseID           string `param:"leaseId" json:"-" validate:"required,uuid"`
	PaymentMethodID   string `json:"paymentMethodId" validate:"omitempty,max=255,printascii"`
	PaymentMethodType string `json:"paymentMethodType" validate:"omitempty,oneof=card us_bank_account"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	return validateMethodPair(r.PaymentMethodID, r.PaymentMethodType)
}

func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return validation.CustomValidationErrors{
			{Field: "amount", Message: "must be greater than zero"},
		}
	}
	return nil
}

// validateMethodPair requires the method id and type together.
func validateMethodPair(id, methodType string) error {
	switch {
	case id != "" && methodType == "":
		return validation.CustomValidationErrors{
			{Field: "paymentMethodType", Message: "is required with paymentMethodId"},
		}
	case id == "" && methodType != "":
		return validation.CustomValidationErrors{
			{Field: "paymentMethodId", Message: "is required with paymentMethodType"},
		}
	}
	return nil
}
