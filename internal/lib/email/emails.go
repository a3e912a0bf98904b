package email

import (
	"context"
	"fmt"
)

// RentReminder is the data rendered into the rent reminder template.
type RentReminder struct {
	FirstName    string
	PropertyName string
	AmountCents  int64
	Currency     string
	DueDate      string
	DaysUntilDue int
	PaymentURL   string
}

// Overdue reports whether the reminder is for a missed due date.
func (r RentReminder) Overdue() bool {
	return r.DaysUntilDue < 0
}

// Phrase is the human due-date phrase used in subject and body.
func (r RentReminder) Phrase() string {
	return DuePhrase(r.DaysUntilDue)
}

// Subject builds the reminder subject line.
func (r RentReminder) Subject() string {
	if r.Overdue() {
		return fmt.Sprintf("Rent for %s is %s", r.PropertyName, r.Phrase())
	}
	return fmt.Sprintf("Rent reminder: %s %s", FormatCents(r.AmountCents, r.Currency), r.Phrase())
}

// SendRentReminder sends a rent reminder email.
func (c *Client) SendRentReminder(ctx context.Context, to string, data RentReminder) (string, error) {
	return c.SendEmail(ctx, to, data.Subject(), TemplateRentReminder, data)
}

// PaymentReceipt is the data rendered into the payment receipt template.
type PaymentReceipt struct {
	FirstName         string
	PropertyName      string
	PaymentID         string
	AmountCents       int64
	PlatformFeeCents  int64
	ProcessorFeeCents int64
	Currency          string
	PeriodDueDate     string
	PaidAt            string
}

// Subject builds the receipt subject line.
func (r PaymentReceipt) Subject() string {
	return fmt.Sprintf("Payment received: %s for %s", FormatCents(r.AmountCents, r.Currency), r.PropertyName)
}

// SendPaymentReceipt sends a payment receipt email.
func (c *Client) SendPaymentReceipt(ctx context.Context, to string, data PaymentReceipt) (string, error) {
	return c.SendEmail(ctx, to, data.Subject(), TemplatePaymentReceipt, data)
}
