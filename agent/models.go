package agent

import "time"

// Profile is the licensed-professional record owned by exactly one account.
// It is separate from the account's role flag: an account can hold the agent
// role while its profile is still inactive, and only the verification
// workflow flips IsActive.
type Profile struct {
	ID             string
	OwnerAccountID string
	LicenseNumber  string
	LicenseState   string
	Bio            *string
	OfficeID       *string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// VerifyAction is the admin decision on a pending application.
type VerifyAction string

const (
	VerifyApprove VerifyAction = "approve"
	VerifyReject  VerifyAction = "reject"
)
