package property

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"estateflow/agent"
	"estateflow/apperr"
	"estateflow/authz"
)

// AgentReader is the slice of the agent repository the service needs to
// validate listing assignments.
type AgentReader interface {
	GetByID(ctx context.Context, id string) (agent.Profile, error)
}

// Service exposes the property lifecycle: seller submission, staff
// assignment, sale, and soft-delete.
type Service struct {
	repo        Repository
	agents      AgentReader
	idGenerator func() string
	now         func() time.Time
}

// NewService builds the property service.
func NewService(repo Repository, agents AgentReader) *Service {
	return &Service{
		repo:        repo,
		agents:      agents,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

// WithIDGenerator overrides property id generation, for tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// SubmitParams is a seller's listing submission.
type SubmitParams struct {
	Title       string
	Description *string
	Price       int64
}

// Submit records a seller-submitted property. It starts pending with no
// agent or office until staff assignment.
func (s *Service) Submit(ctx context.Context, actor authz.Actor, params SubmitParams) (Property, error) {
	if actor.AccountID == "" {
		return Property{}, fmt.Errorf("property: submit requires an authenticated actor: %w", apperr.ErrUnauthorized)
	}
	if strings.TrimSpace(params.Title) == "" {
		return Property{}, fmt.Errorf("property: title required: %w", apperr.ErrInvalidArgument)
	}
	if params.Price <= 0 {
		return Property{}, fmt.Errorf("property: price must be positive: %w", apperr.ErrInvalidArgument)
	}

	return s.repo.Create(ctx, CreateParams{
		ID:              s.idGenerator(),
		Title:           strings.TrimSpace(params.Title),
		Description:     params.Description,
		Price:           params.Price,
		SellerAccountID: actor.AccountID,
	})
}

// Assign hands a pending property to a listing agent and office and activates
// it. Admins and managers only; the office defaults to the actor's own office
// when unspecified, and managers may only assign into their own office.
func (s *Service) Assign(ctx context.Context, actor authz.Actor, propertyID, agentID string, officeID *string) (Property, error) {
	if !actor.HasRole(authz.RoleAdmin) && !actor.HasRole(authz.RoleManager) {
		return Property{}, fmt.Errorf("property: assign requires admin or manager: %w", apperr.ErrForbidden)
	}
	if agentID == "" {
		return Property{}, fmt.Errorf("property: listing agent id required: %w", apperr.ErrInvalidArgument)
	}

	resolved := ""
	switch {
	case officeID != nil && *officeID != "":
		resolved = *officeID
	case actor.OfficeID != nil:
		resolved = *actor.OfficeID
	default:
		return Property{}, fmt.Errorf("property: office id required for actors without an office: %w", apperr.ErrInvalidArgument)
	}

	// Managers act only within their own office; admins are unconstrained.
	if !authz.CanAct(actor, authz.ActionAssignProperty, authz.Target{OfficeID: &resolved}) {
		return Property{}, fmt.Errorf("property: cannot assign outside own office: %w", apperr.ErrForbidden)
	}

	prop, err := s.repo.GetByID(ctx, propertyID)
	if err != nil {
		return Property{}, err
	}
	if prop.Status != StatusPending {
		return Property{}, fmt.Errorf("property: only pending properties can be assigned (status=%s): %w", prop.Status, apperr.ErrConflict)
	}

	profile, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return Property{}, err
	}
	if !profile.IsActive {
		return Property{}, fmt.Errorf("property: listing agent is not active: %w", apperr.ErrInvalidArgument)
	}

	return s.repo.Assign(ctx, propertyID, agentID, resolved)
}

// MarkSold closes an active listing. The listing agent, the office's manager,
// or an admin may do it.
func (s *Service) MarkSold(ctx context.Context, actor authz.Actor, propertyID string) (Property, error) {
	prop, err := s.repo.GetByID(ctx, propertyID)
	if err != nil {
		return Property{}, err
	}

	target := authz.Target{OfficeID: prop.ListingOfficeID, ListingAgentID: prop.ListingAgentID}
	if !authz.CanAct(actor, authz.ActionUpdateProperty, target) {
		return Property{}, fmt.Errorf("property: mark sold: %w", apperr.ErrForbidden)
	}
	if prop.Status != StatusActive {
		return Property{}, fmt.Errorf("property: only active properties can be sold (status=%s): %w", prop.Status, apperr.ErrConflict)
	}

	return s.repo.UpdateStatus(ctx, propertyID, StatusSold)
}

// SoftDelete takes a property off market. There is no exposed way back.
func (s *Service) SoftDelete(ctx context.Context, actor authz.Actor, propertyID string) (Property, error) {
	prop, err := s.repo.GetByID(ctx, propertyID)
	if err != nil {
		return Property{}, err
	}

	target := authz.Target{OfficeID: prop.ListingOfficeID}
	if !authz.CanAct(actor, authz.ActionDeleteProperty, target) {
		return Property{}, fmt.Errorf("property: delete: %w", apperr.ErrForbidden)
	}
	if prop.Status == StatusOffMarket {
		return Property{}, fmt.Errorf("property: already off market: %w", apperr.ErrConflict)
	}

	return s.repo.UpdateStatus(ctx, propertyID, StatusOffMarket)
}

// Get returns a property by id.
func (s *Service) Get(ctx context.Context, id string) (Property, error) {
	return s.repo.GetByID(ctx, id)
}
