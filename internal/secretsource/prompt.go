package secretsource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptSource asks for a secret without echoing it. When its input is not a
// terminal it reads a single line instead, so secrets can be piped in.
type PromptSource struct {
	prompt string
	in     *os.File
	out    io.Writer
}

// Compile-time check to ensure PromptSource implements Source
var _ Source = (*PromptSource)(nil)

// NewPromptSource creates a PromptSource reading from in and writing the
// prompt to out.
func NewPromptSource(prompt string, in *os.File, out io.Writer) *PromptSource {
	return &PromptSource{prompt: prompt, in: in, out: out}
}

// Read prompts for and returns the secret. Returns error if it is empty.
func (p *PromptSource) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var value string
	if fd := int(p.in.Fd()); term.IsTerminal(fd) {
		_, _ = fmt.Fprint(p.out, p.prompt)
		b, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		value = string(b)
	} else {
		line, err := bufio.NewReader(p.in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		value = line
	}

	value = strings.TrimRight(value, "\r\n")
	if value == "" {
		return "", errors.New("empty secret")
	}
	return value, nil
}
