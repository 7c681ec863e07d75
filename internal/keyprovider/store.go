package keyprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/florianilch/keyprovider/internal/codec"
	"github.com/florianilch/keyprovider/internal/ini"
)

// StoreKey writes an already obscured value for name, together with the
// scheme and scheme key needed to decode it, to the writable store under the
// service-scoped keys.
//
// The three entries are written one after the other while holding the write
// lock. The writes are not transactional: if one fails, the ones before it
// stay written and the error is a *FieldError naming the failed entry.
func (p *Provider) StoreKey(ctx context.Context, provider, service, name, encodedValue, scheme, schemeKey string) (err error) {
	id := Identity{Provider: provider, Service: service}
	if err := id.validate(name); err != nil {
		return err
	}
	if !codec.Supported(scheme) {
		return fmt.Errorf("%w: %q", codec.ErrUnsupportedScheme, scheme)
	}

	writes := []struct {
		field   string
		section string
		key     string
		value   string
	}{
		{FieldScheme, SectionEncoding, id.Scoped(leafScheme), scheme},
		{FieldKey, SectionEncoding, id.Scoped(leafKey), schemeKey},
		{FieldValue, SectionEncodedKeys, id.Scoped(name), encodedValue},
	}

	// Nothing is written unless all three entries are valid
	for _, w := range writes {
		if w.value == "" {
			return fmt.Errorf("%w: empty %s", ErrInvalidArgument, w.field)
		}
		if err := ini.ValidateEntry(w.section, w.key, w.value); err != nil {
			return &FieldError{Field: w.field, Err: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	unlock, err := p.lockWrite()
	if err != nil {
		return fmt.Errorf("lock %s: %w", p.loc.WritableFile, err)
	}
	defer func() {
		if unlockErr := unlock(); unlockErr != nil {
			err = errors.Join(err, fmt.Errorf("unlock %s: %w", p.loc.WritableFile, unlockErr))
		}
	}()

	for _, w := range writes {
		if err := ini.Write(p.loc.WritableDir, p.loc.WritableFile, w.section, w.key, w.value); err != nil {
			slog.ErrorContext(ctx, "failed to store key entry",
				"identity", id.String(), "name", name, "field", w.field, "error", err)
			return &FieldError{Field: w.field, Err: err}
		}
	}

	slog.InfoContext(ctx, "stored key", "identity", id.String(), "name", name, "path", p.loc.WritableFile)
	return nil
}

// EncodeAndStore obscures plaintext with scheme and schemeKey and stores the
// result with StoreKey.
func (p *Provider) EncodeAndStore(ctx context.Context, provider, service, name, plaintext, scheme, schemeKey string) error {
	encoded, err := codec.EncodeKey(plaintext, scheme, schemeKey)
	if err != nil {
		return fmt.Errorf("encode %s: %w", Identity{Provider: provider, Service: service}.Scoped(name), err)
	}
	return p.StoreKey(ctx, provider, service, name, encoded, scheme, schemeKey)
}

// lockWrite takes the exclusive lock and returns its release function.
func (p *Provider) lockWrite() (func() error, error) {
	if p.locker == nil {
		return func() error { return nil }, nil
	}

	var err error
	if p.lockTimeout > 0 {
		err = p.locker.LockTimeout(p.lockTimeout)
	} else {
		err = p.locker.Lock()
	}
	if err != nil {
		return nil, err
	}
	return p.locker.Unlock, nil
}
