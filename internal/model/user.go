package model

import "time"

// UserRole distinguishes tenants from property owners.
type UserRole string

const (
	UserRoleTenant UserRole = "tenant"
	UserRoleOwner  UserRole = "owner"
)

// PlanTier is the owner's subscription plan; it drives the platform fee.
type PlanTier string

const (
	PlanFreeTrial PlanTier = "free_trial"
	PlanStarter   PlanTier = "starter"
	PlanGrowth    PlanTier = "growth"
	PlanMax       PlanTier = "max"
)

// User is an authenticated account. ID is the identity provider's subject.
type User struct {
	ID                       string             `db:"id" json:"id"`
	Email                    string             `db:"email" json:"email"`
	FirstName                string             `db:"first_name" json:"firstName"`
	LastName                 string             `db:"last_name" json:"lastName"`
	Role                     UserRole           `db:"role" json:"role"`
	PlanTier                 PlanTier           `db:"plan_tier" json:"planTier"`
	StripeCustomerID         *string            `db:"stripe_customer_id" json:"-"`
	DefaultPaymentMethodID   *string            `db:"default_payment_method_id" json:"-"`
	DefaultPaymentMethodType *PaymentMethodType `db:"default_payment_method_type" json:"defaultPaymentMethodType,omitempty"`
	StripeConnectedAccountID *string            `db:"stripe_connected_account_id" json:"-"`
	CreatedAt                time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt                time.Time          `db:"updated_at" json:"updatedAt"`
}

// FullName joins first and last name, falling back to the email.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// Property is a rentable building owned by a single owner.
type Property struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"ownerId"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
