package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("already exists")
	// ErrForbidden indicates the caller may not act on the resource.
	ErrForbidden = errors.New("permission denied")
	// ErrInvalidInput indicates a request that fails a domain rule.
	ErrInvalidInput = errors.New("invalid input")
)
