package auth

import "estateflow/account"

// RegisterRequest contains registration data supplied by callers.
type RegisterRequest struct {
	Email    string       `json:"email"`
	Password string       `json:"password"`
	FullName string       `json:"full_name"`
	Role     account.Role `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult bundles the token and domain account returned after login.
type LoginResult struct {
	Token   string
	Account account.Account
}
