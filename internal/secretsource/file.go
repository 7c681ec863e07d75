package secretsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads a secret from a file that only its owner can access.
// Writes use temp file + rename for crash safety.
type FileSource struct {
	filePath string
}

// Compile-time check to ensure FileSource implements Store
var _ Store = (*FileSource)(nil)

// NewFileSource creates a FileSource for the given path. No I/O is performed.
func NewFileSource(filePath string) (*FileSource, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	return &FileSource{filePath: filePath}, nil
}

// Read returns the file content without surrounding whitespace. Returns error
// if the file is missing, empty, or readable by group or others.
func (f *FileSource) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Check file permissions before reading
	info, err := os.Stat(f.filePath)
	if err != nil {
		return "", err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return "", fmt.Errorf("insecure permissions on %s: %04o (expected no group or other access)", f.filePath, perm)
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return "", err
	}

	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("empty secret file %s", f.filePath)
	}
	return secret, nil
}

// Write atomically saves value with 0600 permissions, creating the parent
// directory with 0700 if needed.
func (f *FileSource) Write(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(f.filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// CreateTemp opens the file with 0600 already
	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(f.filePath)+".*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.WriteString(strings.TrimSpace(value) + "\n"); err != nil {
		return err
	}
	if err := tempFile.Sync(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempName, f.filePath)
}
