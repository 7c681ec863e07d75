package secretsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrReadOnly is returned by Write on backends that cannot be written.
	ErrReadOnly = errors.New("secret source is read-only")

	// ErrUnknownSource is returned by Parse for an unrecognized reference.
	ErrUnknownSource = errors.New("unknown secret source")
)

// Literal is a fixed secret.
type Literal string

// Compile-time check to ensure Literal implements Source
var _ Source = Literal("")

// Read returns the literal. Returns error if it is empty.
func (l Literal) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if l == "" {
		return "", errors.New("empty literal secret")
	}
	return string(l), nil
}

// Parse builds a Source from a reference of the form
//
//	file:PATH
//	env:NAME
//	keyring:SERVICE/USER
//	prompt[:LABEL]
//	literal:VALUE
//
// Prompts read standard input and write to standard error.
func Parse(ref string) (Source, error) {
	kind, arg, _ := strings.Cut(ref, ":")

	switch kind {
	case "file":
		return NewFileSource(arg)
	case "env":
		return NewEnvSource(arg)
	case "keyring":
		i := strings.LastIndex(arg, "/")
		if i < 0 {
			return nil, fmt.Errorf("keyring reference %q must be SERVICE/USER", arg)
		}
		return NewKeyringSource(arg[:i], arg[i+1:])
	case "prompt":
		label := arg
		if label == "" {
			label = "Secret"
		}
		return NewPromptSource(label+": ", os.Stdin, os.Stderr), nil
	case "literal":
		return Literal(arg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, ref)
	}
}
