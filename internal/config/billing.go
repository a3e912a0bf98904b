package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// BillingConfig controls rent collection behavior: reminder cadence,
// reconciliation sweeps and ledger write resilience.
type BillingConfig struct {
	// ReminderThresholds lists the day counts (relative to the due date) at
	// which a reminder is sent. Negative values mean "days overdue".
	ReminderThresholds []int `koanf:"reminder_thresholds"`

	// ReminderSchedule is the cron spec of the daily reminder sweep.
	ReminderSchedule string `koanf:"reminder_schedule"`

	// ReconcileSchedule is the cron spec of the in-flight payment sweep.
	ReconcileSchedule string `koanf:"reconcile_schedule"`

	// ReconcileAfter is how old an in-flight ledger row must be before the
	// sweep asks the processor about it.
	ReconcileAfter time.Duration `koanf:"reconcile_after"`

	// Timezone is used for due-date arithmetic and cron schedules.
	Timezone string `koanf:"timezone"`

	// LedgerWriteAttempts bounds the retries of a ledger write after the
	// processor accepted a charge or subscription.
	LedgerWriteAttempts uint `koanf:"ledger_write_attempts"`

	// PaymentLockTTL bounds how long an idempotency key stays locked while a
	// payment request is in flight.
	PaymentLockTTL time.Duration `koanf:"payment_lock_ttl"`
}

// DefaultBillingConfig provides the defaults used when no billing block is set.
func DefaultBillingConfig() *BillingConfig {
	return &BillingConfig{
		ReminderThresholds:  []int{7, 3, 1, 0, -1, -3, -7},
		ReminderSchedule:    "0 9 * * *",
		ReconcileSchedule:   "*/15 * * * *",
		ReconcileAfter:      10 * time.Minute,
		Timezone:            "UTC",
		LedgerWriteAttempts: 3,
		PaymentLockTTL:      time.Minute,
	}
}

// withDefaults fills unset fields from DefaultBillingConfig.
func (c *BillingConfig) withDefaults() *BillingConfig {
	def := DefaultBillingConfig()
	if c == nil {
		return def
	}

	out := *c
	if len(out.ReminderThresholds) == 0 {
		out.ReminderThresholds = def.ReminderThresholds
	}
	if out.ReminderSchedule == "" {
		out.ReminderSchedule = def.ReminderSchedule
	}
	if out.ReconcileSchedule == "" {
		out.ReconcileSchedule = def.ReconcileSchedule
	}
	if out.ReconcileAfter == 0 {
		out.ReconcileAfter = def.ReconcileAfter
	}
	if out.Timezone == "" {
		out.Timezone = def.Timezone
	}
	if out.LedgerWriteAttempts == 0 {
		out.LedgerWriteAttempts = def.LedgerWriteAttempts
	}
	if out.PaymentLockTTL == 0 {
		out.PaymentLockTTL = def.PaymentLockTTL
	}
	return &out
}

// Validate checks the cron specs, the timezone and the threshold range.
func (c *BillingConfig) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.ReminderSchedule); err != nil {
		return fmt.Errorf("invalid reminder_schedule: %w", err)
	}
	if _, err := parser.Parse(c.ReconcileSchedule); err != nil {
		return fmt.Errorf("invalid reconcile_schedule: %w", err)
	}

	for _, t := range c.ReminderThresholds {
		if t < -31 || t > 31 {
			return fmt.Errorf("reminder threshold %d out of range [-31, 31]", t)
		}
	}

	if c.ReconcileAfter < 0 {
		return fmt.Errorf("reconcile_after must be non-negative")
	}

	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
