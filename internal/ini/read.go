package ini

import (
	"errors"
	"fmt"
	"os"
)

// Result is the outcome of one key in a batch lookup.
type Result struct {
	Value string
	Found bool
}

// Load opens and parses the file at path. Open failures are returned as
// *fs.PathError so callers can test for fs.ErrNotExist.
func Load(path string) (*Document, error) {
	if path == "" {
		return nil, invalidArgument("empty path")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	doc, err := Parse(f)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
			return nil, pe
		}
		return nil, fmt.Errorf("ini: read %s: %w", path, err)
	}
	return doc, nil
}

// Sections lists the section names of the file in file order.
func Sections(path string) ([]string, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	return doc.Names(), nil
}

// Keys lists the keys of section in file order. A missing section yields an
// empty list.
func Keys(path, section string) ([]string, error) {
	if section == "" {
		return nil, invalidArgument("empty section")
	}
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := doc.Section(section)
	if s == nil {
		return []string{}, nil
	}
	return s.Keys(), nil
}

// Read returns the value of key in section. found is false, with a nil error,
// when either the section or the key is absent.
func Read(path, section, key string) (value string, found bool, err error) {
	results, err := ReadMultiple(path, section, []string{key})
	if err != nil {
		return "", false, err
	}
	return results[0].Value, results[0].Found, nil
}

// ReadMultiple looks up every key of keys in section with a single parse of
// the file. The result has one element per requested key, in request order.
func ReadMultiple(path, section string, keys []string) ([]Result, error) {
	if section == "" {
		return nil, invalidArgument("empty section")
	}
	if len(keys) == 0 {
		return nil, invalidArgument("no keys")
	}
	for _, k := range keys {
		if k == "" {
			return nil, invalidArgument("empty key")
		}
	}

	doc, err := Load(path)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(keys))
	s := doc.Section(section)
	if s == nil {
		return results, nil
	}
	for i, k := range keys {
		results[i].Value, results[i].Found = s.Lookup(k)
	}
	return results, nil
}
