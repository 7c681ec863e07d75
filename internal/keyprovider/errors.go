package keyprovider

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/florianilch/keyprovider/internal/codec"
	"github.com/florianilch/keyprovider/internal/ini"
	"github.com/florianilch/keyprovider/internal/procmutex"
)

var (
	// ErrNotFound is returned when no location holds the requested key. It is
	// never returned for files that exist but cannot be read or parsed.
	ErrNotFound = errors.New("stored key not found")

	// ErrEmptyValue is returned when a stored value exists but is empty.
	ErrEmptyValue = errors.New("stored key is empty")

	// ErrInvalidArgument is returned for malformed identities or values.
	ErrInvalidArgument = ini.ErrInvalidArgument
)

// Field names reported by FieldError.
const (
	FieldScheme = "scheme"
	FieldKey    = "key"
	FieldValue  = "value"
)

// FieldError reports which of the entries written by StoreKey failed. Entries
// written before the failing one are left in place.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Kind classifies errors returned by this package and the packages below it.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindNotFound
	KindParse
	KindIO
	KindCodec
	KindLock
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindParse:
		return "parse"
	case KindIO:
		return "io"
	case KindCodec:
		return "codec"
	case KindLock:
		return "lock"
	default:
		return "unknown"
	}
}

// KindOf returns the Kind of err, or KindUnknown when it cannot be classified.
func KindOf(err error) Kind {
	var pathErr *fs.PathError
	var parseErr *ini.ParseError

	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.As(err, &parseErr):
		return KindParse
	case errors.Is(err, ErrEmptyValue),
		errors.Is(err, codec.ErrUnsupportedScheme),
		errors.Is(err, codec.ErrEmptyInput),
		errors.Is(err, codec.ErrMalformed):
		return KindCodec
	case errors.Is(err, procmutex.ErrTimeout),
		errors.Is(err, procmutex.ErrNotLocked),
		errors.Is(err, procmutex.ErrClosed):
		return KindLock
	case errors.As(err, &pathErr):
		return KindIO
	default:
		return KindUnknown
	}
}
