package email

// PreviewData contains sample template data for local preview/testing,
// keyed by template.
var PreviewData = map[Template]any{
	TemplateRentReminder: RentReminder{
		FirstName:    "John",
		PropertyName: "Maple Court",
		AmountCents:  125000,
		Currency:     "usd",
		DueDate:      "March 1, 2026",
		DaysUntilDue: 3,
		PaymentURL:   "https://app.tenantflow.app/leases/preview/pay",
	},
	TemplatePaymentReceipt: PaymentReceipt{
		FirstName:         "John",
		PropertyName:      "Maple Court",
		PaymentID:         "5f0c4bd2-8d5c-4d3e-9a55-3c1e2b2f0a11",
		AmountCents:       125000,
		PlatformFeeCents:  3750,
		ProcessorFeeCents: 3655,
		Currency:          "usd",
		PeriodDueDate:     "March 1, 2026",
		PaidAt:            "February 27, 2026",
	},
}
