package service

import (
	"context"
	"errors"

	"github.com/deppfellow/tenantflow/internal/errs"
	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/sqlerr"
	"github.com/jackc/pgx/v5"
)

// ContextResolver loads the records behind a lease and authorizes the actor.
type ContextResolver struct {
	leases LeaseStore
}

func NewContextResolver(leases LeaseStore) *ContextResolver {
	return &ContextResolver{leases: leases}
}

// Resolve loads lease, property, tenant and owner. The actor must be the
// lease's tenant or the property's owner.
func (r *ContextResolver) Resolve(ctx context.Context, actorID, leaseID string) (*model.PaymentContext, error) {
	if actorID == "" {
		return nil, errs.NewUnauthorizedError("Unauthorized", false)
	}

	lease, err := r.leases.GetLease(ctx, leaseID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}

	property, err := r.leases.GetProperty(ctx, lease.PropertyID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}

	var role model.UserRole
	switch actorID {
	case lease.TenantID:
		role = model.UserRoleTenant
	case property.OwnerID:
		role = model.UserRoleOwner
	default:
		return nil, errs.NewForbiddenError("You do not have access to this lease", true)
	}

	tenant, err := r.leases.GetUser(ctx, lease.TenantID)
	if err != nil {
		return nil, r.partyError(err)
	}

	owner, err := r.leases.GetUser(ctx, property.OwnerID)
	if err != nil {
		return nil, r.partyError(err)
	}

	return &model.PaymentContext{
		Lease:     *lease,
		Property:  *property,
		Tenant:    *tenant,
		Owner:     *owner,
		ActorID:   actorID,
		ActorRole: role,
	}, nil
}

// Load loads lease, property, tenant and owner for background work that
// acts without a user.
func (r *ContextResolver) Load(ctx context.Context, leaseID string) (*model.PaymentContext, error) {
	lease, err := r.leases.GetLease(ctx, leaseID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}

	property, err := r.leases.GetProperty(ctx, lease.PropertyID)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}

	tenant, err := r.leases.GetUser(ctx, lease.TenantID)
	if err != nil {
		return nil, r.partyError(err)
	}

	owner, err := r.leases.GetUser(ctx, property.OwnerID)
	if err != nil {
		return nil, r.partyError(err)
	}

	return &model.PaymentContext{
		Lease:    *lease,
		Property: *property,
		Tenant:   *tenant,
		Owner:    *owner,
	}, nil
}

// partyError treats a missing tenant or owner as a data integrity problem,
// not as a client 404.
func (r *ContextResolver) partyError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.NewInternalServerError()
	}
	return sqlerr.HandleError(err)
}
