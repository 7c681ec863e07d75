package ini

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxLineSize is the longest accepted line in bytes, excluding the newline.
const MaxLineSize = 4095

// MinLineSize is the shortest accepted data line once whitespace and comments
// are stripped. Shorter lines such as "a=" are syntax errors.
const MinLineSize = 3

const whitespace = " \t\r\v\f"

// Document is a parsed file: its sections in file order. Section names are
// unique; a header repeated in the source is merged into its first occurrence.
type Document struct {
	Sections []*Section
}

// Section is a named, ordered list of entries.
type Section struct {
	Name    string
	Entries []Entry
}

// Entry is a single key=value pair.
type Entry struct {
	Key   string
	Value string
}

// Parse reads a whole document from r.
func Parse(r io.Reader) (*Document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 512), MaxLineSize+1)

	doc := &Document{}
	var current *Section
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		if len(raw) > MaxLineSize {
			return nil, &ParseError{Line: lineNo, Err: ErrLineTooLong}
		}

		line, ok := cleanLine(raw)
		if !ok {
			continue
		}
		if len(line) < MinLineSize {
			return nil, &ParseError{Line: lineNo, Text: line, Err: fmt.Errorf("%w: line too short", ErrSyntax)}
		}

		if line[0] == '[' {
			name, err := parseSectionLine(line)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Text: line, Err: err}
			}
			current = doc.Section(name)
			if current == nil {
				current = &Section{Name: name}
				doc.Sections = append(doc.Sections, current)
			}
			continue
		}

		key, value, err := parseEntryLine(line)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Text: line, Err: err}
		}
		if current == nil {
			return nil, &ParseError{Line: lineNo, Text: line, Err: fmt.Errorf("%w: entry outside of any section", ErrSyntax)}
		}
		current.Entries = append(current.Entries, Entry{Key: key, Value: value})
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &ParseError{Line: lineNo + 1, Err: ErrLineTooLong}
		}
		return nil, err
	}
	return doc, nil
}

// cleanLine strips surrounding whitespace and inline comments. It reports false
// for lines that carry no data.
func cleanLine(raw string) (string, bool) {
	line := strings.TrimLeft(raw, whitespace)
	if line == "" || line[0] == ';' {
		return "", false
	}
	for i := 1; i < len(line); i++ {
		if line[i] == ';' && isSpace(line[i-1]) {
			line = line[:i-1]
			break
		}
	}
	return strings.TrimRight(line, whitespace), true
}

func isSpace(b byte) bool {
	return strings.IndexByte(whitespace, b) >= 0 || b == '\n'
}

func parseSectionLine(line string) (string, error) {
	if len(line) < 2 || line[len(line)-1] != ']' {
		return "", fmt.Errorf("%w: unterminated section header", ErrSyntax)
	}
	name := strings.Trim(line[1:len(line)-1], whitespace)
	if name == "" {
		return "", fmt.Errorf("%w: empty section name", ErrSyntax)
	}
	return name, nil
}

func parseEntryLine(line string) (string, string, error) {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return "", "", fmt.Errorf("%w: missing '='", ErrSyntax)
	}
	if idx == 0 {
		return "", "", fmt.Errorf("%w: empty key", ErrSyntax)
	}
	key := strings.TrimRight(line[:idx], whitespace)
	value := strings.TrimLeft(line[idx+1:], whitespace)
	return key, value, nil
}

// Section returns the section with the given name, or nil.
func (d *Document) Section(name string) *Section {
	for _, s := range d.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Names returns the section names in file order.
func (d *Document) Names() []string {
	names := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		names = append(names, s.Name)
	}
	return names
}

// Lookup returns the value of the first entry named key.
func (s *Section) Lookup(key string) (string, bool) {
	for _, e := range s.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Keys returns the entry keys in file order.
func (s *Section) Keys() []string {
	keys := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// Merge replaces or appends updates in the named section, creating the section
// at the end of the document when it does not exist. An existing key keeps its
// position and only its first occurrence is replaced; new keys are appended in
// the order given.
func (d *Document) Merge(section string, updates []Entry) {
	target := d.Section(section)
	if target == nil {
		d.Sections = append(d.Sections, &Section{Name: section, Entries: append([]Entry(nil), updates...)})
		return
	}

	for _, u := range updates {
		replaced := false
		for i := range target.Entries {
			if target.Entries[i].Key == u.Key {
				target.Entries[i].Value = u.Value
				replaced = true
				break
			}
		}
		if !replaced {
			target.Entries = append(target.Entries, u)
		}
	}
}

// WriteTo serializes the document. Sections are separated by a single blank
// line so that rewriting an unchanged document is byte-identical.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for i, s := range d.Sections {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteByte('[')
		buf.WriteString(s.Name)
		buf.WriteString("]\n")
		for _, e := range s.Entries {
			buf.WriteString(e.Key)
			buf.WriteByte('=')
			buf.WriteString(e.Value)
			buf.WriteByte('\n')
		}
	}
	return buf.WriteTo(w)
}
