package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"estateflow/account"
	"estateflow/apperr"
	"estateflow/authz"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountStore is the slice of the account repository the workflow needs.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
	SetAgentApplicationTx(ctx context.Context, tx pgx.Tx, id, agentID string, status account.VerificationStatus) error
	SetVerificationTx(ctx context.Context, tx pgx.Tx, id string, status account.VerificationStatus, onboardedAgent, profileComplete bool) error
	SetManagerApplication(ctx context.Context, id string, app account.ManagerApplication) (account.Account, error)
}

// Service implements the agent verification workflow:
//
//	none --apply--> pending --approve--> verified
//	pending --reject--> rejected --apply--> pending
//
// verified is terminal; demotion is not exposed.
type Service struct {
	pool        TxBeginner
	repo        Repository
	accounts    AccountStore
	idGenerator func() string
	now         func() time.Time
}

// NewService wires the workflow over the profile repository and account store.
func NewService(pool TxBeginner, repo Repository, accounts AccountStore) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		accounts:    accounts,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

// WithIDGenerator overrides profile id generation, for tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ApplicationData is the applicant-supplied payload for Apply.
type ApplicationData struct {
	LicenseNumber string
	LicenseState  string
	Bio           *string
}

// Apply creates the actor's agent profile and moves the account to pending.
// This is the only path that creates a profile; a verified account or an
// account that already owns a profile gets Conflict. Two concurrent calls are
// resolved by the unique owner index, so the loser also gets Conflict rather
// than a second profile.
func (s *Service) Apply(ctx context.Context, actor authz.Actor, data ApplicationData) (Profile, error) {
	if actor.AccountID == "" {
		return Profile{}, fmt.Errorf("agent: apply requires an authenticated actor: %w", apperr.ErrUnauthorized)
	}
	if strings.TrimSpace(data.LicenseNumber) == "" || strings.TrimSpace(data.LicenseState) == "" {
		return Profile{}, fmt.Errorf("agent: license number and state required: %w", apperr.ErrInvalidArgument)
	}

	acct, err := s.accounts.GetByID(ctx, actor.AccountID)
	if err != nil {
		return Profile{}, err
	}
	if acct.AgentVerificationStatus == account.VerificationVerified {
		return Profile{}, fmt.Errorf("agent: account already verified: %w", apperr.ErrConflict)
	}

	// Pre-check for an existing profile; the unique index is the real guard
	// against concurrent duplicates. A rejected applicant re-applies through
	// the same profile, which is never re-created.
	existing, err := s.repo.GetByOwner(ctx, actor.AccountID)
	switch {
	case err == nil && acct.AgentVerificationStatus != account.VerificationRejected:
		return Profile{}, ErrDuplicateOwner
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return Profile{}, err
	}
	reapplying := err == nil

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("agent: begin tx: %v: %w", err, apperr.ErrInternal)
	}
	defer tx.Rollback(ctx)

	params := CreateProfileParams{
		ID:             s.idGenerator(),
		OwnerAccountID: actor.AccountID,
		LicenseNumber:  strings.TrimSpace(data.LicenseNumber),
		LicenseState:   strings.TrimSpace(data.LicenseState),
		Bio:            data.Bio,
	}

	var profile Profile
	if reapplying {
		profile, err = s.repo.UpdateApplicationTx(ctx, tx, existing.ID, params)
	} else {
		profile, err = s.repo.CreateTx(ctx, tx, params)
	}
	if err != nil {
		return Profile{}, err
	}

	if err := s.accounts.SetAgentApplicationTx(ctx, tx, actor.AccountID, profile.ID, account.VerificationPending); err != nil {
		return Profile{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Profile{}, fmt.Errorf("agent: commit apply: %v: %w", err, apperr.ErrInternal)
	}

	return profile, nil
}

// Verify records the admin decision on an application. Approve activates the
// profile and marks the owner verified; reject deactivates the profile and
// marks the owner rejected. Repeated calls re-write the same state.
func (s *Service) Verify(ctx context.Context, actor authz.Actor, agentID string, action VerifyAction) (Profile, error) {
	if !authz.CanAct(actor, authz.ActionVerifyAgent, authz.Target{}) {
		return Profile{}, fmt.Errorf("agent: verification is admin-only: %w", apperr.ErrForbidden)
	}
	if action != VerifyApprove && action != VerifyReject {
		return Profile{}, fmt.Errorf("agent: unknown verify action %q: %w", action, apperr.ErrInvalidArgument)
	}

	profile, err := s.repo.GetByID(ctx, agentID)
	if err != nil {
		return Profile{}, err
	}
	owner, err := s.accounts.GetByID(ctx, profile.OwnerAccountID)
	if err != nil {
		return Profile{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("agent: begin tx: %v: %w", err, apperr.ErrInternal)
	}
	defer tx.Rollback(ctx)

	switch action {
	case VerifyApprove:
		if err := s.repo.SetActiveTx(ctx, tx, profile.ID, true); err != nil {
			return Profile{}, err
		}
		ob := owner.Onboarding
		ob.Agent = true
		complete := account.DeriveProfileComplete(owner.PrimaryRole, ob)
		if err := s.accounts.SetVerificationTx(ctx, tx, owner.ID, account.VerificationVerified, true, complete); err != nil {
			return Profile{}, err
		}
		profile.IsActive = true
	case VerifyReject:
		// A rejected owner must never hold an active profile, even when the
		// rejection overturns an earlier approval.
		if err := s.repo.SetActiveTx(ctx, tx, profile.ID, false); err != nil {
			return Profile{}, err
		}
		complete := account.DeriveProfileComplete(owner.PrimaryRole, owner.Onboarding)
		if err := s.accounts.SetVerificationTx(ctx, tx, owner.ID, account.VerificationRejected, owner.Onboarding.Agent, complete); err != nil {
			return Profile{}, err
		}
		profile.IsActive = false
	}

	if err := tx.Commit(ctx); err != nil {
		return Profile{}, fmt.Errorf("agent: commit verify: %v: %w", err, apperr.ErrInternal)
	}

	return profile, nil
}

// ApplyForManager files the actor's request to run an office. It only records
// the application: promotion to manager happens exclusively through office
// creation or reassignment, a second, independent gate.
func (s *Service) ApplyForManager(ctx context.Context, actor authz.Actor, officeID *string, message string) (account.Account, error) {
	if actor.AccountID == "" {
		return account.Account{}, fmt.Errorf("agent: manager application requires an authenticated actor: %w", apperr.ErrUnauthorized)
	}

	acct, err := s.accounts.GetByID(ctx, actor.AccountID)
	if err != nil {
		return account.Account{}, err
	}
	if !acct.HasRole(account.RoleAgent) {
		return account.Account{}, fmt.Errorf("agent: manager application requires the agent role: %w", apperr.ErrForbidden)
	}
	if acct.AgentVerificationStatus != account.VerificationVerified {
		return account.Account{}, fmt.Errorf("agent: manager application requires a verified agent: %w", apperr.ErrForbidden)
	}
	if acct.ManagerApplication.Status == account.ManagerAppPending {
		return account.Account{}, fmt.Errorf("agent: manager application already pending: %w", apperr.ErrConflict)
	}

	appliedAt := s.now().UTC()
	return s.accounts.SetManagerApplication(ctx, actor.AccountID, account.ManagerApplication{
		Status:    account.ManagerAppPending,
		OfficeID:  officeID,
		Message:   strings.TrimSpace(message),
		AppliedAt: &appliedAt,
	})
}
