package memory

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrValidation means the caller must correct the input.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is a wrong key or a missing/invalid session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is a valid session that never passed the key check.
	ErrForbidden = errors.New("session is not authorized to post")

	// ErrConfiguration is operator-facing: a secret or credential is unset.
	ErrConfiguration = errors.New("server configuration error")
)

// IsAuthError reports whether err should revoke a client's authorized flag.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
