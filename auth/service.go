package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"estateflow/account"
	"estateflow/apperr"
	"estateflow/authz"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = fmt.Errorf("auth: invalid credentials: %w", apperr.ErrUnauthorized)
	// ErrWeakPassword signals a password that doesn't meet requirements.
	ErrWeakPassword = fmt.Errorf("auth: password must be at least 8 characters: %w", apperr.ErrInvalidArgument)
)

// AccountStore is the slice of the account repository the credential service
// needs.
type AccountStore interface {
	Create(ctx context.Context, params account.CreateParams) (account.Account, error)
	GetByID(ctx context.Context, id string) (account.Account, error)
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetPasswordReset(ctx context.Context, id, token string, expiresAt time.Time) error
}

// Service handles credentials: password hashing and verification, token
// issuance and validation.
type Service struct {
	accounts  AccountStore
	jwtSecret []byte
	now       func() time.Time
}

// NewService creates a new authentication service.
func NewService(accounts AccountStore, jwtSecret string) *Service {
	return &Service{
		accounts:  accounts,
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// registrableRoles are the roles an account may register with. Manager and
// admin are never self-assigned.
var registrableRoles = map[account.Role]bool{
	account.RoleBuyer:  true,
	account.RoleSeller: true,
	account.RoleAgent:  true,
}

// Register creates a new account. Role defaults to buyer.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*account.Account, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	if req.Email == "" || req.FullName == "" {
		return nil, fmt.Errorf("auth: email and full_name are required: %w", apperr.ErrInvalidArgument)
	}

	role := account.Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = account.RoleBuyer
	}
	if !registrableRoles[role] {
		return nil, fmt.Errorf("auth: invalid role %q: %w", role, apperr.ErrInvalidArgument)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %v: %w", err, apperr.ErrInternal)
	}

	acct, err := s.accounts.Create(ctx, account.CreateParams{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:     req.FullName,
		PasswordHash: string(passwordHash),
		PrimaryRole:  role,
	})
	if err != nil {
		return nil, err
	}

	return &acct, nil
}

// Login authenticates an account and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	acct, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(acct.ID, acct.PrimaryRole)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %v: %w", err, apperr.ErrInternal)
	}

	return LoginResult{Token: token, Account: acct}, nil
}

// ChangePassword is strictly self-service: even admins cannot change another
// identity's password. The old password is verified before the new one lands.
func (s *Service) ChangePassword(ctx context.Context, actor authz.Actor, targetID, oldPassword, newPassword string) error {
	if !authz.CanAct(actor, authz.ActionChangePassword, authz.Target{OwnerAccountID: targetID}) {
		return fmt.Errorf("auth: password change is self-service: %w", apperr.ErrForbidden)
	}
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	acct, err := s.accounts.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %v: %w", err, apperr.ErrInternal)
	}
	return s.accounts.UpdatePasswordHash(ctx, targetID, string(hash))
}

// ForgotPassword records a reset token for the account if it exists. It
// always reports success so callers cannot probe which emails are registered;
// this is intentional information hiding, not an error-handling gap.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	acct, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return err
	}

	token := uuid.NewString()
	expires := s.now().Add(1 * time.Hour).UTC()
	if err := s.accounts.SetPasswordReset(ctx, acct.ID, token, expires); err != nil {
		return err
	}

	// Delivery of the reset email is an external concern.
	return nil
}

// VerifyToken validates a JWT and returns the account id and role claims.
func (s *Service) VerifyToken(tokenString string) (string, account.Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("auth: parse token: %v: %w", err, apperr.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("auth: invalid token: %w", apperr.ErrUnauthorized)
	}

	accountID, ok := claims["account_id"].(string)
	if !ok {
		return "", "", fmt.Errorf("auth: invalid account_id in token: %w", apperr.ErrUnauthorized)
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return "", "", fmt.Errorf("auth: invalid role in token: %w", apperr.ErrUnauthorized)
	}
	role := account.Role(roleStr)
	switch role {
	case account.RoleBuyer, account.RoleSeller, account.RoleAgent, account.RoleManager, account.RoleAdmin:
	default:
		return "", "", fmt.Errorf("auth: invalid role %q in token: %w", roleStr, apperr.ErrUnauthorized)
	}

	return accountID, role, nil
}

// ResolveActor loads the current account for a verified token subject and
// projects it into the policy engine's actor shape. Authorization always
// reads current state, never the role frozen into the token.
func (s *Service) ResolveActor(ctx context.Context, accountID string) (authz.Actor, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return authz.Actor{}, fmt.Errorf("auth: unknown actor: %w", apperr.ErrUnauthorized)
		}
		return authz.Actor{}, err
	}
	return acct.Actor(), nil
}

// generateToken creates a JWT for the account.
func (s *Service) generateToken(accountID string, role account.Role) (string, error) {
	claims := jwt.MapClaims{
		"account_id": accountID,
		"role":       role,
		"exp":        s.now().Add(24 * time.Hour).Unix(),
		"iat":        s.now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
