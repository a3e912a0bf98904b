package model

import "time"

// LeaseStatus is the lifecycle state of a lease.
type LeaseStatus string

const (
	LeaseStatusDraft      LeaseStatus = "draft"
	LeaseStatusActive     LeaseStatus = "active"
	LeaseStatusTerminated LeaseStatus = "terminated"
	LeaseStatusExpired    LeaseStatus = "expired"
)

// Lease binds a tenant to a property unit with a monthly rent.
//
// DueDay is the day of month rent is due (1..28, enforced by a CHECK
// constraint so it exists in every month).
type Lease struct {
	ID              string      `db:"id" json:"id"`
	PropertyID      string      `db:"property_id" json:"propertyId"`
	TenantID        string      `db:"tenant_id" json:"tenantId"`
	Unit            string      `db:"unit" json:"unit"`
	RentAmountCents int64       `db:"rent_amount_cents" json:"rentAmountCents"`
	Currency        string      `db:"currency" json:"currency"`
	DueDay          int         `db:"due_day" json:"dueDay"`
	GracePeriodDays int         `db:"grace_period_days" json:"gracePeriodDays"`
	StartDate       time.Time   `db:"start_date" json:"startDate"`
	EndDate         *time.Time  `db:"end_date" json:"endDate,omitempty"`
	Status          LeaseStatus `db:"status" json:"status"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

// IsActive reports whether rent can be collected on the lease at t.
func (l *Lease) IsActive(t time.Time) bool {
	if l.Status != LeaseStatusActive {
		return false
	}
	if l.EndDate != nil && t.After(l.EndDate.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// ActiveLease is a lease joined with the parties needed by the reminder sweep.
type ActiveLease struct {
	Lease
	PropertyName    string `db:"property_name"`
	TenantEmail     string `db:"tenant_email"`
	TenantFirstName string `db:"tenant_first_name"`
	HasAutopay      bool   `db:"has_autopay"`
}
