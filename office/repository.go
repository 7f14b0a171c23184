package office

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/apperr"
)

var (
	// ErrDuplicateFranchise signals a franchise id collision.
	ErrDuplicateFranchise = fmt.Errorf("office: franchise id already exists: %w", apperr.ErrConflict)
	// ErrNomineeNotVerified signals a manager nominee whose owning account
	// has not passed verification.
	ErrNomineeNotVerified = fmt.Errorf("office: manager nominee is not a verified agent: %w", apperr.ErrInvalidArgument)
)

// Repository handles data access for offices. The Tx methods each cover one
// multi-entity operation in full: the office row, the member agent profiles
// and the owning accounts are written inside the caller's transaction so a
// failure anywhere rolls back everything.
type Repository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, params CreateParams) (Office, error)
	ReassignManagerTx(ctx context.Context, tx pgx.Tx, officeID, newAgentID string) (Office, error)
	SoftDeleteTx(ctx context.Context, tx pgx.Tx, officeID string, deletedAt time.Time) error
	GetByID(ctx context.Context, id string) (Office, error)
	List(ctx context.Context, limit int) ([]Office, error)
}

// CreateParams contains the write parameters for opening an office.
type CreateParams struct {
	ID             string
	FranchiseID    string
	Name           string
	Address        *string
	City           *string
	State          *string
	ManagerAgentID string
}

const officeColumns = `id, franchise_id, name, address, city, state, manager_agent_id, agent_ids, is_active, deleted_at, created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed office repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// lockNominee loads and locks the nominee profile and its owning account,
// enforcing the verified-owner requirement.
func lockNominee(ctx context.Context, tx pgx.Tx, agentID string) (ownerAccountID string, err error) {
	const query = `
		SELECT p.owner_account_id::text, a.agent_verification_status
		FROM agent_profiles p
		JOIN accounts a ON a.id = p.owner_account_id
		WHERE p.id = $1
		FOR UPDATE OF p, a
	`
	var status string
	if err := tx.QueryRow(ctx, query, agentID).Scan(&ownerAccountID, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("office: agent profile %s: %w", agentID, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("office: lock nominee: %v: %w", err, apperr.ErrInternal)
	}
	if status != "verified" {
		return "", ErrNomineeNotVerified
	}
	return ownerAccountID, nil
}

// promoteManager links the profile to the office and promotes the owning
// account. This is the only path that grants the manager role.
func promoteManager(ctx context.Context, tx pgx.Tx, officeID, agentID, ownerAccountID string) error {
	if _, err := tx.Exec(ctx, `
		UPDATE agent_profiles SET office_id = $1, is_active = true, updated_at = now() WHERE id = $2
	`, officeID, agentID); err != nil {
		return fmt.Errorf("office: link manager profile: %v: %w", err, apperr.ErrInternal)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE accounts
		SET primary_role = 'manager',
		    office_id = $1,
		    manager_app_status = CASE WHEN manager_app_status = 'pending' THEN 'approved' ELSE manager_app_status END,
		    updated_at = now()
		WHERE id = $2
	`, officeID, ownerAccountID); err != nil {
		return fmt.Errorf("office: promote manager account: %v: %w", err, apperr.ErrInternal)
	}
	return nil
}

func (r *PGRepository) CreateTx(ctx context.Context, tx pgx.Tx, params CreateParams) (Office, error) {
	ownerAccountID, err := lockNominee(ctx, tx, params.ManagerAgentID)
	if err != nil {
		return Office{}, err
	}

	query := `
		INSERT INTO offices (id, franchise_id, name, address, city, state, manager_agent_id, agent_ids)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, ARRAY[$7]::uuid[])
		RETURNING ` + officeColumns

	office, err := scanOffice(tx.QueryRow(ctx, query,
		params.ID,
		params.FranchiseID,
		params.Name,
		params.Address,
		params.City,
		params.State,
		params.ManagerAgentID,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Office{}, ErrDuplicateFranchise
		}
		return Office{}, fmt.Errorf("office: insert: %v: %w", err, apperr.ErrInternal)
	}

	if err := promoteManager(ctx, tx, office.ID, params.ManagerAgentID, ownerAccountID); err != nil {
		return Office{}, err
	}

	office.Statistics = ComputeStatistics(office.AgentIDs, 0)
	return office, nil
}

func (r *PGRepository) ReassignManagerTx(ctx context.Context, tx pgx.Tx, officeID, newAgentID string) (Office, error) {
	var currentManager string
	err := tx.QueryRow(ctx, `
		SELECT manager_agent_id::text FROM offices WHERE id = $1 AND is_active FOR UPDATE
	`, officeID).Scan(&currentManager)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Office{}, fmt.Errorf("office: %s: %w", officeID, apperr.ErrNotFound)
		}
		return Office{}, fmt.Errorf("office: lock office: %v: %w", err, apperr.ErrInternal)
	}
	if currentManager == newAgentID {
		return Office{}, fmt.Errorf("office: agent %s already manages this office: %w", newAgentID, apperr.ErrConflict)
	}

	ownerAccountID, err := lockNominee(ctx, tx, newAgentID)
	if err != nil {
		return Office{}, err
	}

	query := `
		UPDATE offices
		SET manager_agent_id = $1,
		    agent_ids = CASE WHEN $1 = ANY(agent_ids) THEN agent_ids ELSE agent_ids || $1 END,
		    updated_at = now()
		WHERE id = $2
		RETURNING ` + officeColumns

	office, err := scanOffice(tx.QueryRow(ctx, query, newAgentID, officeID))
	if err != nil {
		return Office{}, fmt.Errorf("office: reassign manager: %v: %w", err, apperr.ErrInternal)
	}

	if err := promoteManager(ctx, tx, officeID, newAgentID, ownerAccountID); err != nil {
		return Office{}, err
	}

	// The old manager keeps the manager role by design; only the office link
	// is cleared. Flagged for product clarification, preserved as observed.
	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET office_id = NULL, updated_at = now()
		WHERE agent_id = $1 AND office_id = $2
	`, currentManager, officeID); err != nil {
		return Office{}, fmt.Errorf("office: clear old manager office: %v: %w", err, apperr.ErrInternal)
	}

	return office, nil
}

func (r *PGRepository) SoftDeleteTx(ctx context.Context, tx pgx.Tx, officeID string, deletedAt time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE offices SET is_active = false, deleted_at = $1, updated_at = now()
		WHERE id = $2 AND is_active
	`, deletedAt, officeID)
	if err != nil {
		return fmt.Errorf("office: soft delete: %v: %w", err, apperr.ErrInternal)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("office: %s: %w", officeID, apperr.ErrNotFound)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE agent_profiles SET is_active = false, office_id = NULL, updated_at = now()
		WHERE office_id = $1
	`, officeID); err != nil {
		return fmt.Errorf("office: deactivate member profiles: %v: %w", err, apperr.ErrInternal)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET office_id = NULL, updated_at = now()
		WHERE office_id = $1
	`, officeID); err != nil {
		return fmt.Errorf("office: clear member accounts: %v: %w", err, apperr.ErrInternal)
	}

	return nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Office, error) {
	query := `SELECT ` + officeColumns + `,
		(SELECT COUNT(*) FROM properties WHERE listing_office_id = offices.id AND status = 'active')
		FROM offices WHERE id = $1`

	var (
		office         Office
		activeListings int
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&office.ID,
		&office.FranchiseID,
		&office.Name,
		&office.Address,
		&office.City,
		&office.State,
		&office.ManagerAgentID,
		&office.AgentIDs,
		&office.IsActive,
		&office.DeletedAt,
		&office.CreatedAt,
		&office.UpdatedAt,
		&activeListings,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Office{}, fmt.Errorf("office: %s: %w", id, apperr.ErrNotFound)
		}
		return Office{}, fmt.Errorf("office: get by id: %v: %w", err, apperr.ErrInternal)
	}

	office.Statistics = ComputeStatistics(office.AgentIDs, activeListings)
	return office, nil
}

// List fetches up to limit active offices ordered by name.
func (r *PGRepository) List(ctx context.Context, limit int) ([]Office, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `SELECT ` + officeColumns + ` FROM offices WHERE is_active ORDER BY name ASC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("office: list: %v: %w", err, apperr.ErrInternal)
	}
	defer rows.Close()

	offices := make([]Office, 0, limit)
	for rows.Next() {
		office, err := scanOffice(rows)
		if err != nil {
			return nil, fmt.Errorf("office: scan: %v: %w", err, apperr.ErrInternal)
		}
		offices = append(offices, office)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("office: iterate: %v: %w", err, apperr.ErrInternal)
	}

	return offices, nil
}

func scanOffice(row pgx.Row) (Office, error) {
	var o Office
	err := row.Scan(
		&o.ID,
		&o.FranchiseID,
		&o.Name,
		&o.Address,
		&o.City,
		&o.State,
		&o.ManagerAgentID,
		&o.AgentIDs,
		&o.IsActive,
		&o.DeletedAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return Office{}, err
	}
	o.Statistics = ComputeStatistics(o.AgentIDs, 0)
	return o, nil
}
