package secrets

import (
	"context"
	"errors"
	"os"
)

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
)

// Source provides access to secrets the runtime needs at startup, chiefly the
// narrator bearer token.
type Source interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)
}

// GetWithDefault retrieves a secret, falling back to the default on any error.
func GetWithDefault(ctx context.Context, src Source, key, defaultValue string) string {
	value, err := src.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

// EnvSource reads secrets straight from environment variables.
type EnvSource struct{}

// GetSecret implements Source.
func (EnvSource) GetSecret(_ context.Context, key string) (string, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}
