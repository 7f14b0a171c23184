// Package authz decides whether an actor may perform an action on a target.
// Decisions are pure functions of the actor and target snapshots passed in;
// nothing is cached, so every request re-evaluates against current state.
package authz

// Role enumerates the account roles recognised across the platform.
type Role string

const (
	RoleBuyer   Role = "buyer"
	RoleSeller  Role = "seller"
	RoleAgent   Role = "agent"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Action identifies an operation subject to a policy decision.
type Action string

const (
	ActionViewProfile         Action = "profile.view"
	ActionUpdateProfile       Action = "profile.update"
	ActionChangePassword      Action = "profile.change_password"
	ActionSelectRole          Action = "profile.select_role"
	ActionCompleteOnboarding  Action = "profile.complete_onboarding"
	ActionManageRoles         Action = "profile.manage_roles"
	ActionManageSavedSearches Action = "profile.saved_searches"
	ActionVerifyAgent         Action = "agent.verify"
	ActionCreateOffice        Action = "office.create"
	ActionUpdateOffice        Action = "office.update"
	ActionDeleteOffice        Action = "office.delete"
	ActionReassignManager     Action = "office.reassign_manager"
	ActionAssignProperty      Action = "property.assign"
	ActionUpdateProperty      Action = "property.update"
	ActionDeleteProperty      Action = "property.delete"
)

// Actor is the identity performing an operation, resolved from its credential
// before the core is invoked. OfficeID and AgentID are nil when the account
// has no office or agent profile.
type Actor struct {
	AccountID       string
	Role            Role
	AdditionalRoles []Role
	OfficeID        *string
	AgentID         *string
}

// Target describes the entity acted upon. Fields that do not apply to the
// target kind are left zero: a profile target has only OwnerAccountID, a
// property target carries its listing office and agent.
type Target struct {
	OwnerAccountID string
	OfficeID       *string
	ListingAgentID *string
}

// traits classify an action for the rule set. selfOnly actions exclude even
// admins acting on another identity; the scoped flags mark which delegation
// rules apply.
type traits struct {
	selfOnly       bool
	profileScoped  bool
	officeScoped   bool
	propertyScoped bool
	anyManager     bool
}

var actionTraits = map[Action]traits{
	ActionViewProfile:         {profileScoped: true},
	ActionUpdateProfile:       {profileScoped: true},
	ActionChangePassword:      {selfOnly: true},
	ActionSelectRole:          {selfOnly: true},
	ActionCompleteOnboarding:  {selfOnly: true},
	ActionManageRoles:         {profileScoped: true},
	ActionManageSavedSearches: {profileScoped: true},
	ActionVerifyAgent:         {},
	ActionCreateOffice:        {anyManager: true},
	ActionUpdateOffice:        {officeScoped: true},
	ActionDeleteOffice:        {},
	ActionReassignManager:     {officeScoped: true},
	ActionAssignProperty:      {officeScoped: true},
	ActionUpdateProperty:      {officeScoped: true, propertyScoped: true},
	ActionDeleteProperty:      {officeScoped: true},
}

// HasRole reports whether the actor holds the role as primary or additional.
func (a Actor) HasRole(role Role) bool {
	if a.Role == role {
		return true
	}
	for _, r := range a.AdditionalRoles {
		if r == role {
			return true
		}
	}
	return false
}

// CanAct evaluates every applicable rule and allows if any matches. The rules
// are independent predicates, not exclusive branches: a manager self-accessing
// their own profile is admitted by the self rule even if the office rule does
// not apply.
func CanAct(actor Actor, action Action, target Target) bool {
	tr, ok := actionTraits[action]
	if !ok {
		return false
	}

	allowed := false

	// Rule 1: admins may do everything except impersonate on self-only
	// operations.
	if actor.HasRole(RoleAdmin) && !tr.selfOnly {
		allowed = true
	}

	// Rule 2: self-access for profile-scoped and self-only operations.
	if (tr.profileScoped || tr.selfOnly) &&
		target.OwnerAccountID != "" && actor.AccountID == target.OwnerAccountID {
		allowed = true
	}

	// Rule 3: managers within their own office.
	if actor.HasRole(RoleManager) {
		if tr.anyManager {
			allowed = true
		}
		if tr.officeScoped && actor.OfficeID != nil && target.OfficeID != nil &&
			*actor.OfficeID == *target.OfficeID {
			allowed = true
		}
	}

	// Rule 4: an agent on the property they list.
	if tr.propertyScoped && actor.HasRole(RoleAgent) &&
		actor.AgentID != nil && target.ListingAgentID != nil &&
		*actor.AgentID == *target.ListingAgentID {
		allowed = true
	}

	return allowed
}
