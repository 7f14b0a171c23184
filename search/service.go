package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"estateflow/apperr"
	"estateflow/authz"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service manages saved searches for an account, bounded at MaxPerAccount.
type Service struct {
	pool        TxBeginner
	repo        Repository
	idGenerator func() string
}

// NewService builds the saved-search service.
func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
	}
}

// WithIDGenerator overrides search id generation, for tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// Create stores a saved search for the target account. Capacity overflow is a
// Conflict, not a silent truncation.
func (s *Service) Create(ctx context.Context, actor authz.Actor, targetID, name string, criteria Criteria, alerts bool) (SavedSearch, error) {
	if !authz.CanAct(actor, authz.ActionManageSavedSearches, authz.Target{OwnerAccountID: targetID}) {
		return SavedSearch{}, fmt.Errorf("search: create: %w", apperr.ErrForbidden)
	}
	if strings.TrimSpace(name) == "" {
		return SavedSearch{}, fmt.Errorf("search: name required: %w", apperr.ErrInvalidArgument)
	}
	if criteria.PriceMin < 0 || (criteria.PriceMax > 0 && criteria.PriceMin > criteria.PriceMax) {
		return SavedSearch{}, fmt.Errorf("search: invalid price range: %w", apperr.ErrInvalidArgument)
	}

	return s.insertCapped(ctx, SavedSearch{
		ID:            s.idGenerator(),
		AccountID:     targetID,
		Name:          strings.TrimSpace(name),
		Criteria:      criteria,
		AlertsEnabled: alerts,
	})
}

// List returns the target account's saved searches.
func (s *Service) List(ctx context.Context, actor authz.Actor, targetID string) ([]SavedSearch, error) {
	if !authz.CanAct(actor, authz.ActionManageSavedSearches, authz.Target{OwnerAccountID: targetID}) {
		return nil, fmt.Errorf("search: list: %w", apperr.ErrForbidden)
	}
	return s.repo.ListByAccount(ctx, targetID)
}

// Delete removes a saved search after checking ownership.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id string) error {
	saved, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanAct(actor, authz.ActionManageSavedSearches, authz.Target{OwnerAccountID: saved.AccountID}) {
		return fmt.Errorf("search: delete: %w", apperr.ErrForbidden)
	}
	return s.repo.Delete(ctx, id)
}

// SeedDefault creates the default search produced by buyer onboarding. It is
// called by the account service with the account's own identity already
// established, so it skips the policy check.
func (s *Service) SeedDefault(ctx context.Context, accountID, name string, propertyTypes, locations []string, priceMin, priceMax int64) error {
	_, err := s.insertCapped(ctx, SavedSearch{
		ID:        s.idGenerator(),
		AccountID: accountID,
		Name:      name,
		Criteria: Criteria{
			PropertyTypes: propertyTypes,
			Locations:     locations,
			PriceMin:      priceMin,
			PriceMax:      priceMax,
		},
		AlertsEnabled: true,
	})
	return err
}

// insertCapped counts and inserts inside one transaction. CountByAccountTx
// locks the owner's account row, so two concurrent inserts for the same
// account serialize and the second observes the first's write.
func (s *Service) insertCapped(ctx context.Context, saved SavedSearch) (SavedSearch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SavedSearch{}, fmt.Errorf("search: begin tx: %v: %w", err, apperr.ErrInternal)
	}
	defer tx.Rollback(ctx)

	count, err := s.repo.CountByAccountTx(ctx, tx, saved.AccountID)
	if err != nil {
		return SavedSearch{}, err
	}
	if count >= MaxPerAccount {
		return SavedSearch{}, fmt.Errorf("search: limit of %d saved searches reached: %w", MaxPerAccount, apperr.ErrConflict)
	}

	created, err := s.repo.CreateTx(ctx, tx, saved)
	if err != nil {
		return SavedSearch{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return SavedSearch{}, fmt.Errorf("search: commit create: %v: %w", err, apperr.ErrInternal)
	}
	return created, nil
}
