package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/apperr"
)

// ErrDuplicateOwner signals a second profile for the same account. The unique
// index on owner_account_id is what actually prevents the race between two
// concurrent applications; this is the storage-level duplicate mapped up.
var ErrDuplicateOwner = fmt.Errorf("agent: profile already exists for account: %w", apperr.ErrConflict)

// Repository handles data access for agent profiles.
type Repository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, params CreateProfileParams) (Profile, error)
	UpdateApplicationTx(ctx context.Context, tx pgx.Tx, id string, params CreateProfileParams) (Profile, error)
	GetByID(ctx context.Context, id string) (Profile, error)
	GetByOwner(ctx context.Context, ownerAccountID string) (Profile, error)
	SetActiveTx(ctx context.Context, tx pgx.Tx, id string, active bool) error
}

// CreateProfileParams contains the write parameters for a new profile.
type CreateProfileParams struct {
	ID             string
	OwnerAccountID string
	LicenseNumber  string
	LicenseState   string
	Bio            *string
}

const profileColumns = `id, owner_account_id, license_number, license_state, bio, office_id, is_active, created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed agent repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateTx inserts a profile inside the caller's transaction so the account
// linkage lands atomically with it. Profiles are born inactive.
func (r *PGRepository) CreateTx(ctx context.Context, tx pgx.Tx, params CreateProfileParams) (Profile, error) {
	query := `
		INSERT INTO agent_profiles (id, owner_account_id, license_number, license_state, bio, is_active)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, false)
		RETURNING ` + profileColumns

	profile, err := scanProfile(tx.QueryRow(ctx, query,
		params.ID,
		params.OwnerAccountID,
		params.LicenseNumber,
		params.LicenseState,
		params.Bio,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Profile{}, ErrDuplicateOwner
		}
		return Profile{}, fmt.Errorf("agent: create profile: %v: %w", err, apperr.ErrInternal)
	}
	return profile, nil
}

// UpdateApplicationTx refreshes the license data on a re-application. The
// profile itself is never re-created; it stays inactive until verification.
func (r *PGRepository) UpdateApplicationTx(ctx context.Context, tx pgx.Tx, id string, params CreateProfileParams) (Profile, error) {
	query := `
		UPDATE agent_profiles
		SET license_number = $1, license_state = $2, bio = $3, updated_at = now()
		WHERE id = $4
		RETURNING ` + profileColumns

	profile, err := scanProfile(tx.QueryRow(ctx, query, params.LicenseNumber, params.LicenseState, params.Bio, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("agent: profile %s: %w", id, apperr.ErrNotFound)
		}
		return Profile{}, fmt.Errorf("agent: update application: %v: %w", err, apperr.ErrInternal)
	}
	return profile, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM agent_profiles WHERE id = $1`

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("agent: profile %s: %w", id, apperr.ErrNotFound)
		}
		return Profile{}, fmt.Errorf("agent: get profile: %v: %w", err, apperr.ErrInternal)
	}
	return profile, nil
}

func (r *PGRepository) GetByOwner(ctx context.Context, ownerAccountID string) (Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM agent_profiles WHERE owner_account_id = $1`

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, ownerAccountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("agent: no profile for account %s: %w", ownerAccountID, apperr.ErrNotFound)
		}
		return Profile{}, fmt.Errorf("agent: get profile by owner: %v: %w", err, apperr.ErrInternal)
	}
	return profile, nil
}

func (r *PGRepository) SetActiveTx(ctx context.Context, tx pgx.Tx, id string, active bool) error {
	tag, err := tx.Exec(ctx, `UPDATE agent_profiles SET is_active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("agent: set active: %v: %w", err, apperr.ErrInternal)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent: profile %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID,
		&p.OwnerAccountID,
		&p.LicenseNumber,
		&p.LicenseState,
		&p.Bio,
		&p.OfficeID,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}
