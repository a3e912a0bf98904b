package email

// Template is a string-based enum naming email templates.
type Template string

const (
	// TemplateRentReminder corresponds to templates/emails/rent_reminder.html
	TemplateRentReminder Template = "rent_reminder"
	// TemplatePaymentReceipt corresponds to templates/emails/payment_receipt.html
	TemplatePaymentReceipt Template = "payment_receipt"
)

// File is the template's file name inside the embedded set.
func (t Template) File() string {
	return string(t) + ".html"
}
