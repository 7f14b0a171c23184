package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"estateflow/apperr"
	"estateflow/authz"
)

// SearchSeeder seeds a default saved search during buyer onboarding. The
// search package provides the real implementation; the indirection keeps the
// dependency pointing outward.
type SearchSeeder interface {
	SeedDefault(ctx context.Context, accountID, name string, propertyTypes, locations []string, priceMin, priceMax int64) error
}

// Service implements the role and onboarding state machine.
type Service struct {
	repo     Repository
	searches SearchSeeder
	now      func() time.Time
}

// NewService builds the account service. seeder may be nil when buyer
// onboarding should not create saved searches (tests, tooling).
func NewService(repo Repository, seeder SearchSeeder) *Service {
	return &Service{
		repo:     repo,
		searches: seeder,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// selectableRoles are the primary roles an account may choose for itself.
// Manager and admin are never self-selected: manager is granted only through
// office creation or reassignment, admin through operator tooling.
var selectableRoles = map[Role]bool{
	RoleBuyer:  true,
	RoleSeller: true,
	RoleAgent:  true,
}

// SelectRole sets the target account's primary role. Self-service only: even
// admins cannot pick a role on behalf of another identity. Selecting agent
// does not create an agent profile; application is a separate step through
// the verification workflow.
func (s *Service) SelectRole(ctx context.Context, actor authz.Actor, targetID string, role Role) (Account, error) {
	if !authz.CanAct(actor, authz.ActionSelectRole, authz.Target{OwnerAccountID: targetID}) {
		return Account{}, fmt.Errorf("account: select role is self-service: %w", apperr.ErrForbidden)
	}
	if !selectableRoles[role] {
		return Account{}, fmt.Errorf("account: role %q cannot be selected: %w", role, apperr.ErrInvalidArgument)
	}

	acct, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return Account{}, err
	}

	complete := DeriveProfileComplete(role, acct.Onboarding)
	return s.repo.UpdateRoles(ctx, targetID, role, acct.AdditionalRoles, complete)
}

// AddRole appends a secondary role if absent. Idempotent: adding a role the
// account already holds changes nothing. Primary role and onboarding flags
// are untouched.
func (s *Service) AddRole(ctx context.Context, actor authz.Actor, targetID string, role Role) (Account, error) {
	if !authz.CanAct(actor, authz.ActionManageRoles, authz.Target{OwnerAccountID: targetID}) {
		return Account{}, fmt.Errorf("account: add role: %w", apperr.ErrForbidden)
	}
	if !selectableRoles[role] {
		return Account{}, fmt.Errorf("account: role %q cannot be added: %w", role, apperr.ErrInvalidArgument)
	}

	acct, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return Account{}, err
	}
	if acct.HasRole(role) {
		return acct, nil
	}

	additional := append(append([]Role{}, acct.AdditionalRoles...), role)
	return s.repo.UpdateRoles(ctx, targetID, acct.PrimaryRole, additional, acct.IsProfileComplete)
}

// OnboardingData carries the role-specific payload for CompleteOnboarding.
// Buyer fields seed a default saved search when present; seller fields are
// stored as seller-intent metadata.
type OnboardingData struct {
	PropertyTypes []string
	Locations     []string
	PriceMin      int64
	PriceMax      int64

	HasProperty     bool
	PropertyAddress string
	SellingTimeline string
}

// CompleteOnboarding marks the target's onboarding for the given role as
// done and recomputes profile completion against the current primary role.
// Agent onboarding is not accepted here; it completes through verification.
func (s *Service) CompleteOnboarding(ctx context.Context, actor authz.Actor, targetID string, role Role, data OnboardingData) (Account, error) {
	if !authz.CanAct(actor, authz.ActionCompleteOnboarding, authz.Target{OwnerAccountID: targetID}) {
		return Account{}, fmt.Errorf("account: onboarding is self-service: %w", apperr.ErrForbidden)
	}
	if role != RoleBuyer && role != RoleSeller {
		return Account{}, fmt.Errorf("account: onboarding role %q not allowed: %w", role, apperr.ErrInvalidArgument)
	}

	acct, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return Account{}, err
	}

	ob := acct.Onboarding
	var sellerIntent map[string]any

	switch role {
	case RoleBuyer:
		ob.Buyer = true
		if s.searches != nil && (len(data.PropertyTypes) > 0 || len(data.Locations) > 0) {
			err := s.searches.SeedDefault(ctx, targetID, "My first search", data.PropertyTypes, data.Locations, data.PriceMin, data.PriceMax)
			if err != nil {
				return Account{}, err
			}
		}
	case RoleSeller:
		ob.Seller = true
		sellerIntent = map[string]any{
			"has_property":     data.HasProperty,
			"property_address": strings.TrimSpace(data.PropertyAddress),
			"selling_timeline": strings.TrimSpace(data.SellingTimeline),
			"recorded_at":      s.now().UTC().Format(time.RFC3339),
		}
	}

	complete := DeriveProfileComplete(acct.PrimaryRole, ob)
	return s.repo.UpdateOnboarding(ctx, targetID, ob, complete, sellerIntent)
}

// mutableProfileFields is the static per-role whitelist for profile updates.
// The request payload is validated against it before any merge; fields not in
// the actor's set are rejected rather than silently dropped.
var mutableProfileFields = map[Role]map[string]bool{
	RoleBuyer:   {"full_name": true, "phone": true},
	RoleSeller:  {"full_name": true, "phone": true},
	RoleAgent:   {"full_name": true, "phone": true},
	RoleManager: {"full_name": true, "phone": true},
	RoleAdmin:   {"full_name": true, "phone": true, "email": true},
}

// UpdateProfile applies a field patch to the target account. The set of
// mutable fields depends on the actor's role, not the target's.
func (s *Service) UpdateProfile(ctx context.Context, actor authz.Actor, targetID string, fields map[string]any) (Account, error) {
	if !authz.CanAct(actor, authz.ActionUpdateProfile, authz.Target{OwnerAccountID: targetID}) {
		return Account{}, fmt.Errorf("account: update profile: %w", apperr.ErrForbidden)
	}

	allowed := mutableProfileFields[actor.Role]
	for field := range fields {
		if !allowed[field] {
			return Account{}, fmt.Errorf("account: field %q is not mutable for role %s: %w", field, actor.Role, apperr.ErrInvalidArgument)
		}
	}

	return s.repo.UpdateProfileFields(ctx, targetID, fields)
}

// Get returns the target account, gated by the view-profile policy.
func (s *Service) Get(ctx context.Context, actor authz.Actor, targetID string) (Account, error) {
	if !authz.CanAct(actor, authz.ActionViewProfile, authz.Target{OwnerAccountID: targetID}) {
		return Account{}, fmt.Errorf("account: view profile: %w", apperr.ErrForbidden)
	}
	return s.repo.GetByID(ctx, targetID)
}
