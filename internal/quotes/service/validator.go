package service

import (
	"context"

	"crm_portal_backend/internal/quotes/domain"
	"crm_portal_backend/internal/quotes/repository"

	"github.com/google/uuid"
)

// ProvisioningLookup is what the validator reads from the store.
type ProvisioningLookup interface {
	FindActiveClientUser(ctx context.Context, organizationID uuid.UUID) (*repository.User, error)
	EmailInUse(ctx context.Context, email string) (bool, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
}

// ProvisioningDecision is the outcome of a successful validation. Exactly one of
// Role (create) or ExistingUser (skip) is meaningful.
type ProvisioningDecision struct {
	CanCreate    bool
	Contact      domain.ContactInfo
	Role         domain.Role
	ExistingUser *repository.User
}

// ProvisioningValidator decides whether a client account may be created for
// an organization. Hard failures are returned as errors carrying the reason code.
type ProvisioningValidator struct {
	roleName string
}

// NewProvisioningValidator creates a validator that looks for roleName first.
func NewProvisioningValidator(roleName string) *ProvisioningValidator {
	if roleName == "" {
		roleName = domain.DefaultClientRoleName
	}
	return &ProvisioningValidator{roleName: roleName}
}

// Validate runs the checks in order and stops at the first that fails.
func (v *ProvisioningValidator) Validate(ctx context.Context, lookup ProvisioningLookup, organizationID uuid.UUID, contact domain.ContactInfo) (ProvisioningDecision, error) {
	if contact.Email == "" {
		return ProvisioningDecision{}, domain.ErrMissingEmail()
	}

	existing, err := lookup.FindActiveClientUser(ctx, organizationID)
	if err != nil {
		return ProvisioningDecision{}, err
	}
	if existing != nil {
		return ProvisioningDecision{Contact: contact, ExistingUser: existing}, nil
	}

	taken, err := lookup.EmailInUse(ctx, contact.Email)
	if err != nil {
		return ProvisioningDecision{}, err
	}
	if taken {
		return ProvisioningDecision{}, domain.ErrEmailTaken(contact.Email)
	}

	roles, err := lookup.ListRoles(ctx)
	if err != nil {
		return ProvisioningDecision{}, err
	}
	role, ok := domain.MatchClientRole(roles, v.roleName)
	if !ok {
		names := make([]string, 0, len(roles))
		for _, r := range roles {
			names = append(names, r.Name)
		}
		return ProvisioningDecision{}, domain.ErrRoleNotFound(v.roleName, names)
	}

	if !contact.HasName() {
		return ProvisioningDecision{}, domain.ErrMissingName()
	}

	return ProvisioningDecision{CanCreate: true, Contact: contact, Role: role}, nil
}
