package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/apperr"
)

// Repository handles data access for saved searches. Create and count run
// inside the caller's transaction so the per-account cap holds under
// concurrent writers.
type Repository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, s SavedSearch) (SavedSearch, error)
	CountByAccountTx(ctx context.Context, tx pgx.Tx, accountID string) (int, error)
	ListByAccount(ctx context.Context, accountID string) ([]SavedSearch, error)
	GetByID(ctx context.Context, id string) (SavedSearch, error)
	Delete(ctx context.Context, id string) error
}

const searchColumns = `id, account_id, name, property_types, locations, price_min, price_max, alerts_enabled, created_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed saved-search repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateTx inserts a saved search inside the caller's transaction.
func (r *PGRepository) CreateTx(ctx context.Context, tx pgx.Tx, s SavedSearch) (SavedSearch, error) {
	query := `
		INSERT INTO saved_searches (id, account_id, name, property_types, locations, price_min, price_max, alerts_enabled)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + searchColumns

	created, err := scanSearch(tx.QueryRow(ctx, query,
		s.ID,
		s.AccountID,
		s.Name,
		s.Criteria.PropertyTypes,
		s.Criteria.Locations,
		s.Criteria.PriceMin,
		s.Criteria.PriceMax,
		s.AlertsEnabled,
	))
	if err != nil {
		return SavedSearch{}, fmt.Errorf("search: create: %v: %w", err, apperr.ErrInternal)
	}
	return created, nil
}

func (r *PGRepository) ListByAccount(ctx context.Context, accountID string) ([]SavedSearch, error) {
	query := `SELECT ` + searchColumns + ` FROM saved_searches WHERE account_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("search: list: %v: %w", err, apperr.ErrInternal)
	}
	defer rows.Close()

	searches := make([]SavedSearch, 0, MaxPerAccount)
	for rows.Next() {
		s, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("search: scan: %v: %w", err, apperr.ErrInternal)
		}
		searches = append(searches, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: iterate: %v: %w", err, apperr.ErrInternal)
	}

	return searches, nil
}

// CountByAccountTx locks the owner's account row, then counts. The lock
// serializes cap checks: a concurrent writer for the same account blocks here
// until this transaction commits.
func (r *PGRepository) CountByAccountTx(ctx context.Context, tx pgx.Tx, accountID string) (int, error) {
	if _, err := tx.Exec(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE`, accountID); err != nil {
		return 0, fmt.Errorf("search: lock account: %v: %w", err, apperr.ErrInternal)
	}

	var count int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM saved_searches WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("search: count: %v: %w", err, apperr.ErrInternal)
	}
	return count, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (SavedSearch, error) {
	query := `SELECT ` + searchColumns + ` FROM saved_searches WHERE id = $1`

	s, err := scanSearch(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SavedSearch{}, fmt.Errorf("search: %s: %w", id, apperr.ErrNotFound)
		}
		return SavedSearch{}, fmt.Errorf("search: get by id: %v: %w", err, apperr.ErrInternal)
	}
	return s, nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM saved_searches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("search: delete: %v: %w", err, apperr.ErrInternal)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("search: %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func scanSearch(row pgx.Row) (SavedSearch, error) {
	var s SavedSearch
	err := row.Scan(
		&s.ID,
		&s.AccountID,
		&s.Name,
		&s.Criteria.PropertyTypes,
		&s.Criteria.Locations,
		&s.Criteria.PriceMin,
		&s.Criteria.PriceMax,
		&s.AlertsEnabled,
		&s.CreatedAt,
	)
	if err != nil {
		return SavedSearch{}, err
	}
	return s, nil
}
