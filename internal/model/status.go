package model

import "time"

// RentStatus is the canonical current status of a lease's rent.
type RentStatus string

const (
	RentStatusPaid    RentStatus = "paid"
	RentStatusPending RentStatus = "pending"
	RentStatusOverdue RentStatus = "overdue"
)

// RentStatusReport is the derived status for the current rent period.
type RentStatusReport struct {
	LeaseID       string     `json:"leaseId"`
	Status        RentStatus `json:"status"`
	PeriodDueDate time.Time  `json:"periodDueDate"`
	DaysUntilDue  int        `json:"daysUntilDue"`
	DaysOverdue   int        `json:"daysOverdue"`
	AmountCents   int64      `json:"amountCents"`
	// PaidCents is what succeeded payments credited to the period so far.
	PaidCents int64  `json:"paidCents"`
	Currency  string `json:"currency"`
	// PaymentInFlight is set while a payment for the period awaits the
	// processor.
	PaymentInFlight bool         `json:"paymentInFlight"`
	LastPayment     *RentPayment `json:"lastPayment,omitempty"`
}

// PaymentSummary aggregates a lease's ledger for analytics.
type PaymentSummary struct {
	LeaseID            string `json:"leaseId"`
	Currency           string `json:"currency"`
	PaymentCount       int    `json:"paymentCount"`
	SucceededCount     int    `json:"succeededCount"`
	FailedCount        int    `json:"failedCount"`
	OnTimeCount        int    `json:"onTimeCount"`
	LateCount          int    `json:"lateCount"`
	CollectedCents     int64  `json:"collectedCents"`
	PlatformFeesCents  int64  `json:"platformFeesCents"`
	ProcessorFeesCents int64  `json:"processorFeesCents"`
	NetToOwnerCents    int64  `json:"netToOwnerCents"`
}
