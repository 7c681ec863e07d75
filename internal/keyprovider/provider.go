// Package keyprovider resolves obscured secrets, such as OAuth client ids and
// secrets, from a layered set of INI stores and writes new ones to the user's
// writable store.
//
// Lookups search the writable file, then each file of a static system
// directory, then a static system file. At every location the service-scoped
// key ("provider/service/leaf") is preferred over the provider-wide one
// ("provider/leaf"). Writes go to the writable file only, serialized between
// processes by a Locker.
package keyprovider

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/florianilch/keyprovider/internal/codec"
	"github.com/florianilch/keyprovider/internal/ini"
	"github.com/florianilch/keyprovider/internal/procmutex"
)

// Locker serializes access to the writable store between processes.
type Locker interface {
	Lock() error
	LockTimeout(d time.Duration) error
	Unlock() error
	RLock() error
	RUnlock() error
}

// Compile-time check to ensure procmutex.Mutex implements Locker
var _ Locker = (*procmutex.Mutex)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithLocker coordinates writes, and reads of the writable file, through l.
// Without a Locker the Provider relies on atomic file replacement alone.
func WithLocker(l Locker) Option {
	return func(p *Provider) {
		p.locker = l
	}
}

// WithLockTimeout bounds how long StoreKey waits for the write lock. Zero
// waits indefinitely.
func WithLockTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.lockTimeout = d
	}
}

// Provider resolves and stores keys. It holds no cached state: every call reads
// the files afresh.
type Provider struct {
	loc         Locations
	locker      Locker
	lockTimeout time.Duration
}

// New creates a Provider for the given locations. No I/O is performed.
func New(loc Locations, opts ...Option) (*Provider, error) {
	if loc.WritableFile == "" {
		return nil, fmt.Errorf("%w: writable file required", ErrInvalidArgument)
	}
	if loc.WritableDir == "" {
		loc.WritableDir = filepath.Dir(loc.WritableFile)
	}

	p := &Provider{loc: loc}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Locations returns the locations the Provider searches.
func (p *Provider) Locations() Locations {
	return p.loc
}

// encoding is the scheme and scheme key found at one location.
type encoding struct {
	path   string
	scheme ini.Result
	key    ini.Result
}

func (e encoding) complete() bool {
	return e.scheme.Found && e.key.Found
}

func (e encoding) partial() bool {
	return e.scheme.Found || e.key.Found
}

// StoredKey returns the decoded value of name for the provider and service.
//
// It returns an error wrapping ErrNotFound when no location holds both a
// scheme and a scheme key for the identity, or when none holds the value.
// Unreadable or malformed files are reported as errors, never as not found.
func (p *Provider) StoredKey(ctx context.Context, provider, service, name string) (string, error) {
	id := Identity{Provider: provider, Service: service}
	if err := id.validate(name); err != nil {
		return "", err
	}

	// One shared lock spans both lookups, so a StoreKey cannot land between
	// reading the scheme key and reading the value it decodes.
	if p.locker != nil && p.loc.WritableFile != "" {
		if err := p.locker.RLock(); err != nil {
			return "", fmt.Errorf("read lock %s: %w", p.loc.WritableFile, err)
		}
		defer func() { _ = p.locker.RUnlock() }()
	}

	enc, err := p.findEncoding(ctx, id)
	if err != nil {
		return "", err
	}
	if !enc.complete() {
		return "", fmt.Errorf("%w: no scheme and key for %s", ErrNotFound, id)
	}

	encoded, err := p.findValue(ctx, id, name, enc.path)
	if err != nil {
		return "", err
	}
	if !encoded.Found {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id.Scoped(name))
	}
	if encoded.Value == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyValue, id.Scoped(name))
	}

	value, err := codec.DecodeKey(encoded.Value, enc.scheme.Value, enc.key.Value)
	if err != nil {
		return "", fmt.Errorf("decode %s from %s: %w", id.Scoped(name), enc.path, err)
	}

	slog.DebugContext(ctx, "resolved stored key", "identity", id.String(), "name", name, "path", enc.path)
	return value, nil
}

// findEncoding returns the first location holding both scheme and key. The
// static directory counts as one tier: its scan stops at the first file holding
// either of them.
func (p *Provider) findEncoding(ctx context.Context, id Identity) (encoding, error) {
	enc, err := p.encodingAt(p.loc.WritableFile, id)
	if err != nil || enc.complete() {
		return enc, err
	}

	files, err := p.staticFiles()
	if err != nil {
		return encoding{}, err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return encoding{}, err
		}
		enc, err = p.encodingAt(path, id)
		if err != nil {
			return encoding{}, err
		}
		if enc.partial() {
			break
		}
	}
	if enc.complete() {
		return enc, nil
	}

	if err := ctx.Err(); err != nil {
		return encoding{}, err
	}
	return p.encodingAt(p.loc.StaticFile, id)
}

func (p *Provider) encodingAt(path string, id Identity) (encoding, error) {
	if path == "" {
		return encoding{}, nil
	}
	results, err := p.lookupScoped(path, SectionEncoding, id, leafScheme, leafKey)
	if err != nil {
		return encoding{}, err
	}
	return encoding{path: path, scheme: results[0], key: results[1]}, nil
}

// findValue looks up the encoded value at the location the encoding came
// from, then in the static directory, then in the static file.
func (p *Provider) findValue(ctx context.Context, id Identity, name, origin string) (ini.Result, error) {
	files, err := p.staticFiles()
	if err != nil {
		return ini.Result{}, err
	}

	candidates := make([]string, 0, len(files)+2)
	candidates = append(candidates, origin)
	candidates = append(candidates, files...)
	candidates = append(candidates, p.loc.StaticFile)

	seen := make(map[string]bool, len(candidates))
	for _, path := range candidates {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true

		if err := ctx.Err(); err != nil {
			return ini.Result{}, err
		}
		results, err := p.lookupScoped(path, SectionEncodedKeys, id, name)
		if err != nil {
			return ini.Result{}, err
		}
		if results[0].Found {
			return results[0], nil
		}
	}
	return ini.Result{}, nil
}

// lookupScoped reads every leaf from section of the file at path in a single
// parse, preferring the scoped key over the provider-wide one. A missing file
// yields no results rather than an error.
func (p *Provider) lookupScoped(path, section string, id Identity, leaves ...string) ([]ini.Result, error) {
	keys := make([]string, 0, 2*len(leaves))
	for _, leaf := range leaves {
		keys = append(keys, id.Scoped(leaf), id.Fallback(leaf))
	}

	read, err := ini.ReadMultiple(path, section, keys)
	if errors.Is(err, fs.ErrNotExist) {
		return make([]ini.Result, len(leaves)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup [%s] in %s: %w", section, path, err)
	}

	results := make([]ini.Result, len(leaves))
	for i := range leaves {
		if scoped := read[2*i]; scoped.Found {
			results[i] = scoped
		} else {
			results[i] = read[2*i+1]
		}
	}
	return results, nil
}

// staticFiles lists the regular files of the static directory in name order.
// A missing directory has no files.
func (p *Provider) staticFiles() ([]string, error) {
	if p.loc.StaticDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(p.loc.StaticDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p.loc.StaticDir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(p.loc.StaticDir, entry.Name())
		// Stat follows symlinks
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}
