package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/florianilch/keyprovider/internal/ini"
	"github.com/florianilch/keyprovider/internal/keyprovider"
	"github.com/florianilch/keyprovider/internal/procmutex"
)

// App wires the key store, its process mutex and the configuration together.
type App struct {
	cfg      *Config
	provider *keyprovider.Provider
	mutex    *procmutex.Mutex
}

// New creates a new App instance. Unless locking is disabled it attaches to
// the store's process mutex, which Close releases.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{cfg: cfg}

	var opts []keyprovider.Option
	if !cfg.Lock.Disabled {
		m, err := procmutex.New(cfg.Store.File, procmutex.WithLockDir(cfg.Lock.Dir))
		if err != nil {
			return nil, fmt.Errorf("failed to attach store mutex: %w", err)
		}
		a.mutex = m
		opts = append(opts, keyprovider.WithLocker(m), keyprovider.WithLockTimeout(max(cfg.Lock.Timeout, 0)))
	}

	provider, err := keyprovider.New(cfg.Locations(), opts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create key provider: %w", err), a.Close())
	}
	a.provider = provider

	return a, nil
}

// Config returns the configuration the App was created with.
func (a *App) Config() *Config {
	return a.cfg
}

// Provider returns the key provider.
func (a *App) Provider() *keyprovider.Provider {
	return a.provider
}

// Mutex returns the store's process mutex, or nil when locking is disabled.
func (a *App) Mutex() *procmutex.Mutex {
	return a.mutex
}

// Init performs the one-time work of the first process attached to the store:
// removing temp files left behind by writers that died mid-write. Later
// processes skip it.
func (a *App) Init(ctx context.Context) error {
	if a.mutex == nil || !a.mutex.IsInitialProcess() {
		return nil
	}

	if err := a.lock(); err != nil {
		return fmt.Errorf("lock %s: %w", a.cfg.Store.File, err)
	}
	defer func() { _ = a.mutex.Unlock() }()

	removed, err := ini.RemoveStaleTemps(a.cfg.Store.File)
	if removed > 0 {
		slog.InfoContext(ctx, "removed stale temp files", "path", a.cfg.Store.File, "count", removed)
	}
	return err
}

// WriteRaw merges keys into section of an arbitrary INI file. Writes to the
// store file are serialized with StoreKey through the process mutex.
func (a *App) WriteRaw(path, section string, keys, values []string) error {
	dir := ""
	if samePath(path, a.cfg.Store.File) {
		dir = a.cfg.Store.Dir
		if a.mutex != nil {
			if err := a.lock(); err != nil {
				return fmt.Errorf("lock %s: %w", path, err)
			}
			defer func() { _ = a.mutex.Unlock() }()
		}
	}
	return ini.WriteMultiple(dir, path, section, keys, values)
}

// samePath reports whether a and b name the same file, however spelled:
// relative, unclean, through a symlinked directory, or as a hard link.
func samePath(a, b string) bool {
	if canonicalPath(a) == canonicalPath(b) {
		return true
	}
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(ia, ib)
}

// canonicalPath returns the absolute, clean form of path with symlinks in its
// directory resolved. The file itself need not exist.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}
	return abs
}

func (a *App) lock() error {
	if a.cfg.Lock.Timeout > 0 {
		return a.mutex.LockTimeout(a.cfg.Lock.Timeout)
	}
	return a.mutex.Lock()
}

// TokenSource returns a token source for the provider and service built from
// the stored client credentials and refresh token. Refresh tokens rotated by
// the authorization server are stored back, obscured with scheme and
// schemeKey. No token request is made until the first Token call.
func (a *App) TokenSource(ctx context.Context, provider, service string, endpoint oauth2.Endpoint, scheme, schemeKey string, scopes ...string) (*PersistentTokenSource, error) {
	cfg, err := a.provider.OAuth2Config(ctx, provider, service, endpoint, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to load client credentials: %w", err)
	}

	refreshToken := a.provider.Secret(provider, service, keyprovider.KeyRefreshToken, scheme, schemeKey)
	factory := func(token string) oauth2.TokenSource {
		return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: token})
	}
	return NewPersistentTokenSource(factory, refreshToken)
}

// Close releases the process mutex.
func (a *App) Close() error {
	if a.mutex == nil {
		return nil
	}
	return a.mutex.Close()
}
