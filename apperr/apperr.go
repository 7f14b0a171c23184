// Package apperr defines the error kinds shared by every domain service.
// Services wrap a kind with fmt.Errorf("pkg: why: %w", apperr.ErrX) so callers
// can branch with errors.Is without depending on the originating package.
package apperr

import "errors"

var (
	// ErrUnauthorized signals a missing or invalid actor identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden signals an identity with insufficient privilege.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound signals a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a uniqueness or duplicate-state violation.
	ErrConflict = errors.New("conflict")
	// ErrInvalidArgument signals malformed or semantically illegal input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInternal signals an unexpected failure (store unavailability and
	// the like); it is never substituted for one of the kinds above.
	ErrInternal = errors.New("internal error")
)
