// Package errs defines the error kinds shared by the credential and
// analytics cores. The HTTP layer translates these into status codes;
// nothing in this package formats user-facing text.
package errs

import "errors"

var (
	// ErrUnauthenticated covers every credential failure: missing,
	// unknown, revoked and expired keys all look the same to callers.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound is returned both when an entity is absent and when
	// the caller lacks ownership, so existence is not leaked.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an entity the caller may know exists but does
	// not own.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyRevoked rejects a second revocation of the same key.
	ErrAlreadyRevoked = errors.New("api key already revoked")

	// ErrInternal wraps storage and crypto failures.
	ErrInternal = errors.New("internal error")
)
