package shared

import "errors"

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation such as a duplicate email.
	ErrConflict = errors.New("conflict")
	// ErrPermissionDenied indicates the caller lacks the required role or permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidOperation indicates a structurally disallowed request,
	// e.g. self-deletion or reviewing a request that already left PENDING.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrUnauthenticated indicates no actor is associated with the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
