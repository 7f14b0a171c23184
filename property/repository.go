package property

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/apperr"
)

// Repository handles data access for properties. Property writes touch a
// single row, so no methods take a transaction.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Property, error)
	GetByID(ctx context.Context, id string) (Property, error)
	Assign(ctx context.Context, id, agentID, officeID string) (Property, error)
	UpdateStatus(ctx context.Context, id string, status Status) (Property, error)
	ListByOffice(ctx context.Context, officeID string, limit int) ([]Property, error)
}

// CreateParams contains the write parameters for a seller submission.
type CreateParams struct {
	ID              string
	Title           string
	Description     *string
	Price           int64
	SellerAccountID string
}

const propertyColumns = `id, title, description, price, status, seller_account_id, listing_agent_id, listing_office_id, created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed property repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Property, error) {
	query := `
		INSERT INTO properties (id, title, description, price, status, seller_account_id)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, 'pending', $5)
		RETURNING ` + propertyColumns

	prop, err := scanProperty(r.pool.QueryRow(ctx, query,
		params.ID,
		params.Title,
		params.Description,
		params.Price,
		params.SellerAccountID,
	))
	if err != nil {
		return Property{}, fmt.Errorf("property: create: %v: %w", err, apperr.ErrInternal)
	}
	return prop, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1`

	prop, err := scanProperty(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Property{}, fmt.Errorf("property: %s: %w", id, apperr.ErrNotFound)
		}
		return Property{}, fmt.Errorf("property: get by id: %v: %w", err, apperr.ErrInternal)
	}
	return prop, nil
}

// Assign sets the listing agent and office and activates the listing in one
// row update.
func (r *PGRepository) Assign(ctx context.Context, id, agentID, officeID string) (Property, error) {
	query := `
		UPDATE properties
		SET listing_agent_id = $1, listing_office_id = $2, status = 'active', updated_at = now()
		WHERE id = $3
		RETURNING ` + propertyColumns

	prop, err := scanProperty(r.pool.QueryRow(ctx, query, agentID, officeID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Property{}, fmt.Errorf("property: %s: %w", id, apperr.ErrNotFound)
		}
		return Property{}, fmt.Errorf("property: assign: %v: %w", err, apperr.ErrInternal)
	}
	return prop, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, id string, status Status) (Property, error) {
	query := `
		UPDATE properties
		SET status = $1, updated_at = now()
		WHERE id = $2
		RETURNING ` + propertyColumns

	prop, err := scanProperty(r.pool.QueryRow(ctx, query, status, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Property{}, fmt.Errorf("property: %s: %w", id, apperr.ErrNotFound)
		}
		return Property{}, fmt.Errorf("property: update status: %v: %w", err, apperr.ErrInternal)
	}
	return prop, nil
}

// ListByOffice fetches up to limit properties listed through an office.
func (r *PGRepository) ListByOffice(ctx context.Context, officeID string, limit int) ([]Property, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `SELECT ` + propertyColumns + `
		FROM properties
		WHERE listing_office_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, officeID, limit)
	if err != nil {
		return nil, fmt.Errorf("property: list by office: %v: %w", err, apperr.ErrInternal)
	}
	defer rows.Close()

	props := make([]Property, 0, limit)
	for rows.Next() {
		prop, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("property: scan: %v: %w", err, apperr.ErrInternal)
		}
		props = append(props, prop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("property: iterate: %v: %w", err, apperr.ErrInternal)
	}

	return props, nil
}

func scanProperty(row pgx.Row) (Property, error) {
	var p Property
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Price,
		&p.Status,
		&p.SellerAccountID,
		&p.ListingAgentID,
		&p.ListingOfficeID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Property{}, err
	}
	return p, nil
}
