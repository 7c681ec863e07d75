package secretsource

import (
	"context"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringSource keeps a secret in OS-native credential storage.
type KeyringSource struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringSource implements Store
var _ Store = (*KeyringSource)(nil)

// NewKeyringSource creates a KeyringSource for the given service and user.
func NewKeyringSource(service, user string) (*KeyringSource, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}
	return &KeyringSource{service: service, user: user}, nil
}

// Read returns the secret from the keyring. Returns error if not found or empty.
func (k *KeyringSource) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	secret, err := keyring.Get(k.service, k.user)
	if err != nil {
		return "", fmt.Errorf("keyring %s/%s: %w", k.service, k.user, err)
	}
	if secret == "" {
		return "", fmt.Errorf("empty secret in keyring for service %s, user %s", k.service, k.user)
	}
	return secret, nil
}

// Write stores value in the keyring, overwriting any existing one.
func (k *KeyringSource) Write(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return keyring.Set(k.service, k.user, value)
}
