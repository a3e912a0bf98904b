package model

import "time"

// NotificationKind categorizes outbound notifications.
type NotificationKind string

const (
	NotificationRentReminder   NotificationKind = "rent_reminder"
	NotificationPaymentReceipt NotificationKind = "payment_receipt"
)

// Notification records that a notification was queued. The reminder sweep
// looks rows up by (lease, kind, threshold, sent_on) to send at most one
// reminder per lease per threshold per day.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"userId"`
	LeaseID   *string          `db:"lease_id" json:"leaseId,omitempty"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Threshold *int             `db:"threshold" json:"threshold,omitempty"`
	SentOn    time.Time        `db:"sent_on" json:"sentOn"`
	Subject   string           `db:"subject" json:"subject"`
	TaskID    *string          `db:"task_id" json:"taskId,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}
