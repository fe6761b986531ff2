// Package auth optionally protects the REST and MCP routes.
//
// Two credential types are supported: static API keys sent in X-API-Key
// (stored only as SHA-256 hashes) and HS256 bearer JWTs. New builds the
// enabled authenticators from configuration; when none are configured it
// returns nil and the server runs unauthenticated.
//
// Middleware adapts an Authenticator to echo. The authenticated Identity is
// stored in the request context (see IdentityFromContext).
package auth
