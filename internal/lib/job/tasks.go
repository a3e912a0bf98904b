package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// Task type names stored in Redis; asynq routes on them.
	TaskRentReminder   = "email:rent_reminder"
	TaskPaymentReceipt = "email:payment_receipt"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// reminderRetention keeps completed reminder tasks around long enough that
// a second sweep on the same day hits the TaskID conflict.
const reminderRetention = 36 * time.Hour

// RentReminderPayload is the JSON payload of a rent reminder task.
type RentReminderPayload struct {
	To           string `json:"to"`
	FirstName    string `json:"first_name"`
	LeaseID      string `json:"lease_id"`
	PropertyName string `json:"property_name"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	DueDate      string `json:"due_date"`
	DaysUntilDue int    `json:"days_until_due"`
	Threshold    int    `json:"threshold"`
	SentOn       string `json:"sent_on"`
}

// ReminderTaskID is the deduplication id of a reminder: one per lease per
// threshold per day.
func ReminderTaskID(leaseID string, threshold int, day time.Time) string {
	return fmt.Sprintf("reminder:%s:%d:%s", leaseID, threshold, day.Format(time.DateOnly))
}

// NewRentReminderTask constructs the reminder task with its dedup TaskID.
func NewRentReminderTask(p RentReminderPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	day, err := time.Parse(time.DateOnly, p.SentOn)
	if err != nil {
		return nil, fmt.Errorf("invalid sent_on %q: %w", p.SentOn, err)
	}

	return asynq.NewTask(
		TaskRentReminder,
		payload,
		asynq.TaskID(ReminderTaskID(p.LeaseID, p.Threshold, day)),
		asynq.MaxRetry(3),
		asynq.Queue(QueueDefault),
		asynq.Timeout(30*time.Second),
		asynq.Retention(reminderRetention),
	), nil
}

// PaymentReceiptPayload is the JSON payload of a payment receipt task.
type PaymentReceiptPayload struct {
	To                string `json:"to"`
	FirstName         string `json:"first_name"`
	PaymentID         string `json:"payment_id"`
	PropertyName      string `json:"property_name"`
	AmountCents       int64  `json:"amount_cents"`
	PlatformFeeCents  int64  `json:"platform_fee_cents"`
	ProcessorFeeCents int64  `json:"processor_fee_cents"`
	Currency          string `json:"currency"`
	PeriodDueDate     string `json:"period_due_date"`
	PaidAt            string `json:"paid_at"`
}

// NewPaymentReceiptTask constructs the receipt task. The payment id doubles
// as TaskID so a replayed request never sends two receipts.
func NewPaymentReceiptTask(p PaymentReceiptPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskPaymentReceipt,
		payload,
		asynq.TaskID("receipt:"+p.PaymentID),
		asynq.MaxRetry(5),
		asynq.Queue(QueueCritical),
		asynq.Timeout(30*time.Second),
		asynq.Retention(7*24*time.Hour),
	), nil
}

// EnqueueRentReminder queues a reminder. ErrAlreadyQueued means the same
// reminder was already queued today.
func (j *JobService) EnqueueRentReminder(ctx context.Context, p RentReminderPayload) (string, error) {
	task, err := NewRentReminderTask(p)
	if err != nil {
		return "", err
	}
	return j.enqueue(ctx, task)
}

// EnqueuePaymentReceipt queues a receipt for a succeeded payment.
func (j *JobService) EnqueuePaymentReceipt(ctx context.Context, p PaymentReceiptPayload) (string, error) {
	task, err := NewPaymentReceiptTask(p)
	if err != nil {
		return "", err
	}
	return j.enqueue(ctx, task)
}
