package office

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"estateflow/apperr"
	"estateflow/authz"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service exposes the office lifecycle. Every multi-entity operation runs in
// a single transaction: partial application (office created but manager
// account not promoted) must never be observable.
type Service struct {
	pool        TxBeginner
	repo        Repository
	idGenerator func() string
	now         func() time.Time
}

// NewService builds the office service.
func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

// WithIDGenerator overrides office id generation, for tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create opens an office around a verified manager nominee. Admins and
// managers may create offices; the nominee's promotion to the manager role
// happens here and nowhere else.
func (s *Service) Create(ctx context.Context, actor authz.Actor, params CreateParams) (Office, error) {
	if !authz.CanAct(actor, authz.ActionCreateOffice, authz.Target{}) {
		return Office{}, fmt.Errorf("office: create requires admin or manager: %w", apperr.ErrForbidden)
	}
	if strings.TrimSpace(params.FranchiseID) == "" {
		return Office{}, fmt.Errorf("office: franchise id required: %w", apperr.ErrInvalidArgument)
	}
	if strings.TrimSpace(params.Name) == "" {
		return Office{}, fmt.Errorf("office: name required: %w", apperr.ErrInvalidArgument)
	}
	if params.ManagerAgentID == "" {
		return Office{}, fmt.Errorf("office: manager agent id required: %w", apperr.ErrInvalidArgument)
	}
	if params.ID == "" {
		params.ID = s.idGenerator()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Office{}, fmt.Errorf("office: begin tx: %v: %w", err, apperr.ErrInternal)
	}
	defer tx.Rollback(ctx)

	office, err := s.repo.CreateTx(ctx, tx, params)
	if err != nil {
		return Office{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Office{}, fmt.Errorf("office: commit create: %v: %w", err, apperr.ErrInternal)
	}

	return office, nil
}

// ReassignManager hands the office to a different verified agent. The
// outgoing manager keeps the manager role; only its office link is cleared.
func (s *Service) ReassignManager(ctx context.Context, actor authz.Actor, officeID, newAgentID string) (Office, error) {
	if !authz.CanAct(actor, authz.ActionReassignManager, authz.Target{OfficeID: &officeID}) {
		return Office{}, fmt.Errorf("office: reassign manager: %w", apperr.ErrForbidden)
	}
	if newAgentID == "" {
		return Office{}, fmt.Errorf("office: new manager agent id required: %w", apperr.ErrInvalidArgument)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Office{}, fmt.Errorf("office: begin tx: %v: %w", err, apperr.ErrInternal)
	}
	defer tx.Rollback(ctx)

	office, err := s.repo.ReassignManagerTx(ctx, tx, officeID, newAgentID)
	if err != nil {
		return Office{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Office{}, fmt.Errorf("office: commit reassign: %v: %w", err, apperr.ErrInternal)
	}

	return office, nil
}

// SoftDelete deactivates the office and cascades: member profiles are
// deactivated and member accounts lose their office link, all atomically.
func (s *Service) SoftDelete(ctx context.Context, actor authz.Actor, officeID string) error {
	if !authz.CanAct(actor, authz.ActionDeleteOffice, authz.Target{}) {
		return fmt.Errorf("office: delete is admin-only: %w", apperr.ErrForbidden)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("office: begin tx: %v: %w", err, apperr.ErrInternal)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.SoftDeleteTx(ctx, tx, officeID, s.now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("office: commit delete: %v: %w", err, apperr.ErrInternal)
	}

	return nil
}

// Get returns the office with freshly recomputed statistics.
func (s *Service) Get(ctx context.Context, id string) (Office, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns up to limit active offices.
func (s *Service) List(ctx context.Context, limit int) ([]Office, error) {
	return s.repo.List(ctx, limit)
}
