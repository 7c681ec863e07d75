package secretsource

import (
	"context"
	"fmt"
	"os"
)

// EnvSource reads a secret from an environment variable.
type EnvSource struct {
	envKey string
}

// Compile-time check to ensure EnvSource implements Store
var _ Store = (*EnvSource)(nil)

// NewEnvSource creates an EnvSource for the given variable. Returns error if
// the name is empty or the variable is not set.
func NewEnvSource(envKey string) (*EnvSource, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}
	if _, exists := os.LookupEnv(envKey); !exists {
		return nil, fmt.Errorf("environment variable %s not set", envKey)
	}
	return &EnvSource{envKey: envKey}, nil
}

// Read returns the variable's value. Returns error if empty.
func (e *EnvSource) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value := os.Getenv(e.envKey)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is empty", e.envKey)
	}
	return value, nil
}

// Write is not supported for environment variables (they are read-only).
func (e *EnvSource) Write(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrReadOnly
}
