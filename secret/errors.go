package secret

import "errors"

var (
	ErrMissingEnv          = errors.New("secret: missing environment variable")
	ErrProviderNotFound    = errors.New("secret: provider not registered")
	ErrInvalidRegistration = errors.New("secret: invalid provider registration")
	ErrEmptySecret         = errors.New("secret: resolved value is empty")
	ErrSecretNotFound      = errors.New("secret: not found")
)
