package secretsource

import "context"

// Source reads a secret.
type Source interface {
	// Read returns the secret. Returns error if the secret is missing or empty.
	Read(ctx context.Context) (string, error)
}

// Store is a Source that can also persist a new value.
type Store interface {
	Source

	// Write persists value. Returns error if the backend is read-only or the
	// write fails.
	Write(ctx context.Context, value string) error
}
