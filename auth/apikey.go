package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// APIKeyHeader is the header carrying an API key.
const APIKeyHeader = "X-API-Key"

// APIKeyAuthenticator accepts a fixed set of API keys.
type APIKeyAuthenticator struct {
	hashes [][sha256.Size]byte
}

// NewAPIKeyAuthenticator hashes keys for comparison. Blank keys are ignored.
func NewAPIKeyAuthenticator(keys ...string) *APIKeyAuthenticator {
	a := &APIKeyAuthenticator{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.hashes = append(a.hashes, sha256.Sum256([]byte(k)))
		}
	}
	return a
}

func (a *APIKeyAuthenticator) Name() string { return string(MethodAPIKey) }

func (a *APIKeyAuthenticator) Supports(h http.Header) bool {
	return h.Get(APIKeyHeader) != ""
}

// Authenticate compares against every stored hash in constant time.
// The principal is "key:" plus the first 8 hex chars of the key hash.
func (a *APIKeyAuthenticator) Authenticate(_ context.Context, h http.Header) (*Identity, error) {
	key := strings.TrimSpace(h.Get(APIKeyHeader))
	if key == "" {
		return nil, ErrMissingCredentials
	}

	sum := sha256.Sum256([]byte(key))
	match := 0
	for i := range a.hashes {
		match |= subtle.ConstantTimeCompare(sum[:], a.hashes[i][:])
	}
	if match != 1 {
		return nil, ErrInvalidCredentials
	}

	return &Identity{
		Principal: "key:" + HashAPIKey(key)[:8],
		Method:    MethodAPIKey,
	}, nil
}

// HashAPIKey returns the hex SHA-256 of key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)
