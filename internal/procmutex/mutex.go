// Package procmutex provides a mutex shared by unrelated processes that work
// on the same file.
//
// Every Mutex for a given path maps to three lock files in a common lock
// directory, named after a hash of the absolute path:
//
//   - <key>.owner guards attachment, so that only one process at a time
//     decides whether it is the first one;
//   - <key>.readers is held shared by every attached Mutex for its whole
//     lifetime, which is how the first process is detected;
//   - <key>.write is the write gate: held exclusively by Lock and shared by
//     RLock.
//
// All three are advisory file locks, which the operating system drops when the
// holder exits, including on a crash. A process that dies while holding the
// write gate therefore never leaves it stuck.
package procmutex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultPollInterval = 10 * time.Millisecond

	lockDirMode  = 0o777 | os.ModeSticky
	lockFileMode = 0o666
)

var (
	// ErrTimeout is returned when a timed acquire gives up.
	ErrTimeout = errors.New("procmutex: timed out waiting for lock")

	// ErrNotLocked is returned when releasing a lock that is not held.
	ErrNotLocked = errors.New("procmutex: not locked")

	// ErrClosed is returned by operations on a closed Mutex.
	ErrClosed = errors.New("procmutex: mutex closed")
)

// Option configures a Mutex.
type Option func(*options)

type options struct {
	lockDir      string
	pollInterval time.Duration
}

// WithLockDir sets the directory holding the lock files. All processes that
// must exclude each other have to use the same directory.
func WithLockDir(dir string) Option {
	return func(o *options) {
		o.lockDir = dir
	}
}

// WithPollInterval sets how often timed acquires retry.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// DefaultLockDir is $XDG_RUNTIME_DIR/keyprovider-locks, falling back to the
// system temp directory.
func DefaultLockDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "keyprovider-locks")
	}
	return filepath.Join(os.TempDir(), "keyprovider-locks")
}

// Key maps a file path to the name shared by its lock files.
func Key(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(filepath.Clean(abs))), nil
}

// Mutex is an inter-process readers/writer lock bound to a file path. Its
// methods are safe for concurrent use; goroutines of one process sharing a
// Mutex are serialized before the file lock is taken.
type Mutex struct {
	base         string
	initial      bool
	pollInterval time.Duration

	local sync.RWMutex

	mu          sync.Mutex
	readers     int
	writer      bool
	readersFile *os.File
	writeFile   *os.File
	closed      atomic.Bool
}

// New attaches to the mutex for path, creating its lock files on first use.
func New(path string, opts ...Option) (*Mutex, error) {
	if path == "" {
		return nil, errors.New("procmutex: empty path")
	}

	cfg := options{
		lockDir:      DefaultLockDir(),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	key, err := Key(path)
	if err != nil {
		return nil, fmt.Errorf("procmutex: resolve %s: %w", path, err)
	}
	if err := os.MkdirAll(cfg.lockDir, lockDirMode); err != nil {
		return nil, fmt.Errorf("procmutex: create lock directory: %w", err)
	}

	m := &Mutex{
		base:         filepath.Join(cfg.lockDir, key),
		pollInterval: cfg.pollInterval,
	}
	if err := m.attach(); err != nil {
		return nil, err
	}
	return m, nil
}

// attach registers this instance as a reader of the path while holding the
// ownership gate, and records whether no other instance was attached.
func (m *Mutex) attach() (err error) {
	owner, err := openLockFile(m.base + ".owner")
	if err != nil {
		return err
	}
	defer func() { _ = owner.Close() }()

	if _, err := lockFile(owner, true, true); err != nil {
		return fmt.Errorf("procmutex: acquire ownership gate: %w", err)
	}
	defer func() { _ = unlockFile(owner) }()

	readers, err := openLockFile(m.base + ".readers")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = readers.Close()
		}
	}()

	// Nobody else holds the readers file, even shared: we are the first.
	m.initial, err = lockFile(readers, true, false)
	if err != nil {
		return fmt.Errorf("procmutex: probe readers: %w", err)
	}
	if m.initial {
		if err = unlockFile(readers); err != nil {
			return fmt.Errorf("procmutex: downgrade readers lock: %w", err)
		}
	}
	if _, err = lockFile(readers, false, true); err != nil {
		return fmt.Errorf("procmutex: register reader: %w", err)
	}

	write, err := openLockFile(m.base + ".write")
	if err != nil {
		return err
	}

	m.readersFile = readers
	m.writeFile = write
	return nil
}

func openLockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFileMode)
	if err != nil {
		return nil, fmt.Errorf("procmutex: open lock file: %w", err)
	}
	return f, nil
}

// IsInitialProcess reports whether no other instance was attached to the path
// when this one was created. The answer is fixed for the lifetime of m.
func (m *Mutex) IsInitialProcess() bool {
	return m.initial
}

// Lock acquires the write gate, waiting as long as necessary.
func (m *Mutex) Lock() error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.local.Lock()
	if _, err := lockFile(m.writeFile, true, true); err != nil {
		m.local.Unlock()
		return fmt.Errorf("procmutex: lock: %w", err)
	}
	m.setWriter(true)
	return nil
}

// TryLock acquires the write gate if it is free and reports whether it did.
func (m *Mutex) TryLock() (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	if !m.local.TryLock() {
		return false, nil
	}
	ok, err := lockFile(m.writeFile, true, false)
	if err != nil || !ok {
		m.local.Unlock()
		if err != nil {
			return false, fmt.Errorf("procmutex: lock: %w", err)
		}
		return false, nil
	}
	m.setWriter(true)
	return true, nil
}

// LockTimeout retries TryLock until it succeeds or d elapses. A zero d tries
// exactly once.
func (m *Mutex) LockTimeout(d time.Duration) error {
	return m.retry(d, m.TryLock)
}

// Unlock releases the write gate.
func (m *Mutex) Unlock() error {
	m.mu.Lock()
	if !m.writer {
		m.mu.Unlock()
		return ErrNotLocked
	}
	m.writer = false
	err := unlockFile(m.writeFile)
	m.mu.Unlock()

	m.local.Unlock()
	if err != nil {
		return fmt.Errorf("procmutex: unlock: %w", err)
	}
	return nil
}

// RLock acquires the write gate in shared mode: any number of readers, in any
// process, may hold it at once, but never together with a writer.
func (m *Mutex) RLock() error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.local.RLock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readers == 0 {
		if _, err := lockFile(m.writeFile, false, true); err != nil {
			m.local.RUnlock()
			return fmt.Errorf("procmutex: read lock: %w", err)
		}
	}
	m.readers++
	return nil
}

// TryRLock acquires the write gate in shared mode if no writer holds it.
func (m *Mutex) TryRLock() (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	if !m.local.TryRLock() {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readers == 0 {
		ok, err := lockFile(m.writeFile, false, false)
		if err != nil || !ok {
			m.local.RUnlock()
			if err != nil {
				return false, fmt.Errorf("procmutex: read lock: %w", err)
			}
			return false, nil
		}
	}
	m.readers++
	return true, nil
}

// RLockTimeout retries TryRLock until it succeeds or d elapses.
func (m *Mutex) RLockTimeout(d time.Duration) error {
	return m.retry(d, m.TryRLock)
}

// RUnlock releases one shared hold of the write gate.
func (m *Mutex) RUnlock() error {
	m.mu.Lock()
	if m.readers == 0 {
		m.mu.Unlock()
		return ErrNotLocked
	}
	m.readers--
	var err error
	if m.readers == 0 {
		err = unlockFile(m.writeFile)
	}
	m.mu.Unlock()

	m.local.RUnlock()
	if err != nil {
		return fmt.Errorf("procmutex: read unlock: %w", err)
	}
	return nil
}

// IsLocked reports whether some writer, in this or any other process, holds
// the write gate right now. The answer may be stale by the time it is used and
// is only meant for diagnostics.
func (m *Mutex) IsLocked() (bool, error) {
	f, err := openLockFile(m.base + ".write")
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	free, err := lockFile(f, false, false)
	if err != nil {
		return false, fmt.Errorf("procmutex: probe write gate: %w", err)
	}
	if free {
		_ = unlockFile(f)
	}
	return !free, nil
}

// Close detaches from the path and releases every lock this instance holds.
func (m *Mutex) Close() error {
	if m.closed.Swap(true) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Join(m.writeFile.Close(), m.readersFile.Close())
}

func (m *Mutex) setWriter(v bool) {
	m.mu.Lock()
	m.writer = v
	m.mu.Unlock()
}

func (m *Mutex) retry(d time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(d)
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		time.Sleep(min(m.pollInterval, remaining))
	}
}
