package ini

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a missing or malformed argument. No I/O is
	// attempted when it is returned.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSyntax reports a line that is not a comment, a section header or a
	// key=value pair.
	ErrSyntax = errors.New("invalid line")

	// ErrLineTooLong reports a line longer than MaxLineSize.
	ErrLineTooLong = errors.New("line too long")
)

// ParseError describes why a file could not be parsed. No partial document is
// ever returned alongside it.
type ParseError struct {
	Path string // empty when parsing a bare reader
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	where := fmt.Sprintf("line %d", e.Line)
	if e.Path != "" {
		where = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if e.Text == "" {
		return fmt.Sprintf("ini: %s: %v", where, e.Err)
	}
	return fmt.Sprintf("ini: %s: %v: %q", where, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("ini: %w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
