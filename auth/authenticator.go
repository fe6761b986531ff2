package auth

import (
	"context"
	"errors"
	"net/http"
)

// Authenticator validates request credentials.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: Authenticate returns one of the package sentinels (possibly
//     wrapped) for rejected credentials; any other error is internal.
type Authenticator interface {
	Name() string

	// Supports reports whether h carries credentials this authenticator reads.
	Supports(h http.Header) bool

	Authenticate(ctx context.Context, h http.Header) (*Identity, error)
}

// IsAuthError reports whether err is a credential rejection rather than an
// internal failure.
func IsAuthError(err error) bool {
	for _, target := range []error{ErrMissingCredentials, ErrInvalidCredentials, ErrTokenExpired, ErrTokenMalformed} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
