package account

import (
	"time"

	"estateflow/authz"
)

// Role aliases the policy engine's role type so both layers share one
// definition of the role set.
type Role = authz.Role

const (
	RoleBuyer   = authz.RoleBuyer
	RoleSeller  = authz.RoleSeller
	RoleAgent   = authz.RoleAgent
	RoleManager = authz.RoleManager
	RoleAdmin   = authz.RoleAdmin
)

// VerificationStatus tracks where an account stands in the agent
// verification workflow.
type VerificationStatus string

const (
	VerificationNone     VerificationStatus = "none"
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// ManagerApplicationStatus tracks a verified agent's request to run an office.
type ManagerApplicationStatus string

const (
	ManagerAppNone     ManagerApplicationStatus = "none"
	ManagerAppPending  ManagerApplicationStatus = "pending"
	ManagerAppApproved ManagerApplicationStatus = "approved"
	ManagerAppRejected ManagerApplicationStatus = "rejected"
)

// ManagerApplication is the sub-record describing a pending or settled
// request for office-manager promotion. OfficeID is nil when the applicant
// did not name a specific office.
type ManagerApplication struct {
	Status    ManagerApplicationStatus
	OfficeID  *string
	Message   string
	AppliedAt *time.Time
}

// Onboarding holds the per-role completion flags. The agent flag is owned by
// the verification workflow; buyer and seller flip through CompleteOnboarding.
type Onboarding struct {
	Buyer  bool
	Seller bool
	Agent  bool
}

// Account is the domain representation of a registered identity. It mirrors
// the accounts table and carries no JSON annotations so it can be reused by
// different presentation layers.
type Account struct {
	ID                      string
	Email                   string
	FullName                string
	PasswordHash            string
	Phone                   *string
	PrimaryRole             Role
	AdditionalRoles         []Role
	Onboarding              Onboarding
	IsProfileComplete       bool
	AgentVerificationStatus VerificationStatus
	AgentID                 *string
	OfficeID                *string
	ManagerApplication      ManagerApplication
	SellerIntent            map[string]any
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// HasRole reports whether the account holds the role as primary or additional.
func (a Account) HasRole(role Role) bool {
	if a.PrimaryRole == role {
		return true
	}
	for _, r := range a.AdditionalRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Actor projects the account into the policy engine's actor shape.
func (a Account) Actor() authz.Actor {
	return authz.Actor{
		AccountID:       a.ID,
		Role:            a.PrimaryRole,
		AdditionalRoles: a.AdditionalRoles,
		OfficeID:        a.OfficeID,
		AgentID:         a.AgentID,
	}
}

// DeriveProfileComplete computes the profile-completion flag from the current
// primary role and onboarding flags. It is the only way the flag is produced;
// callers recompute it on every mutation of either input so the stored value
// never drifts. Manager and admin accounts track the agent flag since both
// are promoted agents.
func DeriveProfileComplete(primary Role, ob Onboarding) bool {
	switch primary {
	case RoleBuyer:
		return ob.Buyer
	case RoleSeller:
		return ob.Seller
	case RoleAgent, RoleManager, RoleAdmin:
		return ob.Agent
	default:
		return false
	}
}
