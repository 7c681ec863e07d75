//go:build unix

package procmutex

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an flock on f. Without block it reports false instead of
// waiting when a conflicting lock is held.
func lockFile(f *os.File, exclusive, block bool) (bool, error) {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if !block {
		how |= unix.LOCK_NB
	}

	for {
		err := unix.Flock(int(f.Fd()), how)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, unix.EINTR):
			continue
		case !block && errors.Is(err, unix.EWOULDBLOCK):
			return false, nil
		default:
			return false, &os.PathError{Op: "flock", Path: f.Name(), Err: err}
		}
	}
}

func unlockFile(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_UN)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return &os.PathError{Op: "funlock", Path: f.Name(), Err: err}
		}
		return nil
	}
}
