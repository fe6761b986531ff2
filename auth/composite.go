package auth

import (
	"context"
	"net/http"
)

// Config selects which authenticators New builds.
type Config struct {
	APIKeys   []string
	JWTSecret string
	JWTIssuer string
}

// Enabled reports whether any credential type is configured.
func (c Config) Enabled() bool {
	return len(c.APIKeys) > 0 || c.JWTSecret != ""
}

// New builds the configured authenticators, or returns nil when auth is disabled.
func New(cfg Config) Authenticator {
	var auths []Authenticator
	if len(cfg.APIKeys) > 0 {
		auths = append(auths, NewAPIKeyAuthenticator(cfg.APIKeys...))
	}
	if cfg.JWTSecret != "" {
		auths = append(auths, NewJWTAuthenticator(JWTConfig{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}))
	}
	switch len(auths) {
	case 0:
		return nil
	case 1:
		return auths[0]
	default:
		return NewComposite(auths...)
	}
}

// Composite tries each authenticator that supports the request in order.
type Composite struct {
	auths []Authenticator
}

// NewComposite creates a composite authenticator.
func NewComposite(auths ...Authenticator) *Composite {
	return &Composite{auths: auths}
}

func (c *Composite) Name() string { return "composite" }

func (c *Composite) Supports(h http.Header) bool {
	for _, a := range c.auths {
		if a.Supports(h) {
			return true
		}
	}
	return false
}

// Authenticate returns the first success. Internal errors stop the chain;
// otherwise the last rejection is returned.
func (c *Composite) Authenticate(ctx context.Context, h http.Header) (*Identity, error) {
	lastErr := ErrMissingCredentials
	for _, a := range c.auths {
		if !a.Supports(h) {
			continue
		}
		id, err := a.Authenticate(ctx, h)
		if err == nil {
			return id, nil
		}
		if !IsAuthError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

var _ Authenticator = (*Composite)(nil)
