package keyprovider

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// SectionEncoding holds the scheme and scheme key entries.
	SectionEncoding = "encoding"
	// SectionEncodedKeys holds the obscured values.
	SectionEncodedKeys = "encodedkeys"

	leafScheme = "scheme"
	leafKey    = "key"
)

// Default locations of the system-wide static stores.
const (
	DefaultStaticDir  = "/usr/share/keyprovider/storedkeys.d"
	DefaultStaticFile = "/usr/share/keyprovider/storedkeys.ini"
)

// Locations names the files searched for stored keys. Only the writable file
// is ever modified. Empty fields are skipped.
type Locations struct {
	WritableDir  string
	WritableFile string
	StaticDir    string
	StaticFile   string
}

// DefaultLocations returns the standard locations with the writable store
// under dataHome. An empty dataHome resolves to $XDG_DATA_HOME or
// ~/.local/share.
func DefaultLocations(dataHome string) (Locations, error) {
	if dataHome == "" {
		dataHome = os.Getenv("XDG_DATA_HOME")
	}
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Locations{}, fmt.Errorf("cannot determine data directory: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	dir := filepath.Join(dataHome, "keyprovider")
	return Locations{
		WritableDir:  dir,
		WritableFile: filepath.Join(dir, "storedkeys.ini"),
		StaticDir:    DefaultStaticDir,
		StaticFile:   DefaultStaticFile,
	}, nil
}

// Identity names a stored key's owner: a provider and, optionally, one of
// its services.
type Identity struct {
	Provider string
	Service  string
}

// Scoped returns "provider/service/leaf", or the fallback form when the
// identity has no service.
func (id Identity) Scoped(leaf string) string {
	if id.Service == "" {
		return id.Fallback(leaf)
	}
	return id.Provider + "/" + id.Service + "/" + leaf
}

// Fallback returns the provider-wide "provider/leaf".
func (id Identity) Fallback(leaf string) string {
	return id.Provider + "/" + leaf
}

func (id Identity) String() string {
	if id.Service == "" {
		return id.Provider
	}
	return id.Provider + "/" + id.Service
}

func (id Identity) validate(name string) error {
	if id.Provider == "" {
		return fmt.Errorf("%w: empty provider", ErrInvalidArgument)
	}
	if name == "" {
		return fmt.Errorf("%w: empty key name", ErrInvalidArgument)
	}
	for _, part := range []string{id.Provider, id.Service, name} {
		if strings.ContainsAny(part, "=\r\n") {
			return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidArgument, part)
		}
	}
	return nil
}
