package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/apperr"
)

// Repository handles data access for accounts. Tx-suffixed methods run inside
// a caller-owned transaction so account writes can be combined with agent or
// office writes atomically.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	UpdateRoles(ctx context.Context, id string, primary Role, additional []Role, profileComplete bool) (Account, error)
	UpdateOnboarding(ctx context.Context, id string, ob Onboarding, profileComplete bool, sellerIntent map[string]any) (Account, error)
	UpdateProfileFields(ctx context.Context, id string, fields map[string]any) (Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetPasswordReset(ctx context.Context, id, token string, expiresAt time.Time) error
	SetManagerApplication(ctx context.Context, id string, app ManagerApplication) (Account, error)
	SetAgentApplicationTx(ctx context.Context, tx pgx.Tx, id, agentID string, status VerificationStatus) error
	SetVerificationTx(ctx context.Context, tx pgx.Tx, id string, status VerificationStatus, onboardedAgent, profileComplete bool) error
}

// CreateParams contains the write parameters for registering an account.
type CreateParams struct {
	Email        string
	FullName     string
	PasswordHash string
	PrimaryRole  Role
}

// ErrDuplicateEmail signals that the email is already registered.
var ErrDuplicateEmail = fmt.Errorf("account: email already exists: %w", apperr.ErrConflict)

const accountColumns = `id, email, full_name, password_hash, phone, primary_role, additional_roles,
	onboarded_buyer, onboarded_seller, onboarded_agent, is_profile_complete,
	agent_verification_status, agent_id, office_id,
	manager_app_status, manager_app_office_id, manager_app_message, manager_app_applied_at,
	seller_intent, created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed account repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Account, error) {
	query := `
		INSERT INTO accounts (email, full_name, password_hash, primary_role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + accountColumns

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, params.Email, params.FullName, params.PasswordHash, params.PrimaryRole))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateEmail
		}
		return Account{}, fmt.Errorf("account: create: %v: %w", err, apperr.ErrInternal)
	}
	return acct, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("account: %s: %w", id, apperr.ErrNotFound)
		}
		return Account{}, fmt.Errorf("account: get by id: %v: %w", err, apperr.ErrInternal)
	}
	return acct, nil
}

func (r *PGRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("account: email %s: %w", email, apperr.ErrNotFound)
		}
		return Account{}, fmt.Errorf("account: get by email: %v: %w", err, apperr.ErrInternal)
	}
	return acct, nil
}

func (r *PGRepository) UpdateRoles(ctx context.Context, id string, primary Role, additional []Role, profileComplete bool) (Account, error) {
	query := `
		UPDATE accounts
		SET primary_role = $1,
		    additional_roles = $2,
		    is_profile_complete = $3,
		    updated_at = now()
		WHERE id = $4
		RETURNING ` + accountColumns

	roles := make([]string, len(additional))
	for i, role := range additional {
		roles[i] = string(role)
	}

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, primary, roles, profileComplete, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("account: %s: %w", id, apperr.ErrNotFound)
		}
		return Account{}, fmt.Errorf("account: update roles: %v: %w", err, apperr.ErrInternal)
	}
	return acct, nil
}

func (r *PGRepository) UpdateOnboarding(ctx context.Context, id string, ob Onboarding, profileComplete bool, sellerIntent map[string]any) (Account, error) {
	query := `
		UPDATE accounts
		SET onboarded_buyer = $1,
		    onboarded_seller = $2,
		    onboarded_agent = $3,
		    is_profile_complete = $4,
		    seller_intent = COALESCE($5, seller_intent),
		    updated_at = now()
		WHERE id = $6
		RETURNING ` + accountColumns

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, ob.Buyer, ob.Seller, ob.Agent, profileComplete, sellerIntent, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("account: %s: %w", id, apperr.ErrNotFound)
		}
		return Account{}, fmt.Errorf("account: update onboarding: %v: %w", err, apperr.ErrInternal)
	}
	return acct, nil
}

// UpdateProfileFields merges the already-whitelisted column/value pairs. The
// service validates fields against the per-role table before calling.
func (r *PGRepository) UpdateProfileFields(ctx context.Context, id string, fields map[string]any) (Account, error) {
	if len(fields) == 0 {
		return r.GetByID(ctx, id)
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	set := ""
	args := make([]any, 0, len(fields)+1)
	for i, col := range cols {
		if i > 0 {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, fields[col])
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE accounts SET %s, updated_at = now() WHERE id = $%d RETURNING `, set, len(args)) + accountColumns

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("account: %s: %w", id, apperr.ErrNotFound)
		}
		return Account{}, fmt.Errorf("account: update profile: %v: %w", err, apperr.ErrInternal)
	}
	return acct, nil
}

func (r *PGRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $1, reset_token = NULL, reset_token_expires_at = NULL, updated_at = now() WHERE id = $2`, hash, id)
	if err != nil {
		return fmt.Errorf("account: update password: %v: %w", err, apperr.ErrInternal)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account: %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *PGRepository) SetPasswordReset(ctx context.Context, id, token string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET reset_token = $1, reset_token_expires_at = $2, updated_at = now() WHERE id = $3`, token, expiresAt, id)
	if err != nil {
		return fmt.Errorf("account: set password reset: %v: %w", err, apperr.ErrInternal)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account: %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *PGRepository) SetManagerApplication(ctx context.Context, id string, app ManagerApplication) (Account, error) {
	query := `
		UPDATE accounts
		SET manager_app_status = $1,
		    manager_app_office_id = $2,
		    manager_app_message = $3,
		    manager_app_applied_at = $4,
		    updated_at = now()
		WHERE id = $5
		RETURNING ` + accountColumns

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, app.Status, app.OfficeID, app.Message, app.AppliedAt, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("account: %s: %w", id, apperr.ErrNotFound)
		}
		return Account{}, fmt.Errorf("account: set manager application: %v: %w", err, apperr.ErrInternal)
	}
	return acct, nil
}

// SetAgentApplicationTx links a freshly created agent profile to its owner
// inside the caller's transaction.
func (r *PGRepository) SetAgentApplicationTx(ctx context.Context, tx pgx.Tx, id, agentID string, status VerificationStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET agent_id = $1, agent_verification_status = $2, updated_at = now()
		WHERE id = $3
	`, agentID, status, id)
	if err != nil {
		return fmt.Errorf("account: set agent application: %v: %w", err, apperr.ErrInternal)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account: %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// SetVerificationTx records a verification decision together with the derived
// onboarding and profile-completion flags.
func (r *PGRepository) SetVerificationTx(ctx context.Context, tx pgx.Tx, id string, status VerificationStatus, onboardedAgent, profileComplete bool) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET agent_verification_status = $1,
		    onboarded_agent = $2,
		    is_profile_complete = $3,
		    updated_at = now()
		WHERE id = $4
	`, status, onboardedAgent, profileComplete, id)
	if err != nil {
		return fmt.Errorf("account: set verification: %v: %w", err, apperr.ErrInternal)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account: %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct            Account
		additionalRoles []string
		mgrStatus       string
		verification    string
	)
	err := row.Scan(
		&acct.ID,
		&acct.Email,
		&acct.FullName,
		&acct.PasswordHash,
		&acct.Phone,
		&acct.PrimaryRole,
		&additionalRoles,
		&acct.Onboarding.Buyer,
		&acct.Onboarding.Seller,
		&acct.Onboarding.Agent,
		&acct.IsProfileComplete,
		&verification,
		&acct.AgentID,
		&acct.OfficeID,
		&mgrStatus,
		&acct.ManagerApplication.OfficeID,
		&acct.ManagerApplication.Message,
		&acct.ManagerApplication.AppliedAt,
		&acct.SellerIntent,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	acct.AdditionalRoles = make([]Role, len(additionalRoles))
	for i, role := range additionalRoles {
		acct.AdditionalRoles[i] = Role(role)
	}
	acct.AgentVerificationStatus = VerificationStatus(verification)
	acct.ManagerApplication.Status = ManagerApplicationStatus(mgrStatus)
	return acct, nil
}
