package ini

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	dirMode  fs.FileMode = 0o770
	fileMode fs.FileMode = 0o660
)

// Write sets a single key in section. See WriteMultiple.
func Write(dir, path, section, key, value string) error {
	return WriteMultiple(dir, path, section, []string{key}, []string{value})
}

// ValidateEntry reports whether key and value could be written to section and
// read back unchanged. It touches no file.
func ValidateEntry(section, key, value string) error {
	_, err := pairEntries(section, []string{key}, []string{value})
	return err
}

// WriteMultiple merges keys and values into section of the file at path,
// creating dir (or the parent of path when dir is empty) and the file when they
// are missing. Every other section and entry is preserved.
//
// The new content is built in memory and then atomically swapped in, so a
// failure never leaves a truncated file behind. A failure before the swap leaves
// the existing file untouched.
func WriteMultiple(dir, path, section string, keys, values []string) error {
	updates, err := pairEntries(section, keys, values)
	if err != nil {
		return err
	}
	if path == "" {
		return invalidArgument("empty path")
	}
	if dir == "" {
		dir = filepath.Dir(path)
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("ini: create directory %s: %w", dir, err)
	}
	if err := ensureFile(path); err != nil {
		return err
	}

	doc, err := Load(path)
	if err != nil {
		return err
	}
	doc.Merge(section, updates)

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return fmt.Errorf("ini: serialize %s: %w", path, err)
	}
	return replaceFile(path, buf.Bytes())
}

// pairEntries validates the write request and folds duplicate keys, the last
// value winning at the position of the first occurrence.
func pairEntries(section string, keys, values []string) ([]Entry, error) {
	if err := checkText("section", section); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, invalidArgument("no keys")
	}
	if len(keys) != len(values) {
		return nil, invalidArgument("%d keys but %d values", len(keys), len(values))
	}

	entries := make([]Entry, 0, len(keys))
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		if err := checkText("key", k); err != nil {
			return nil, err
		}
		if strings.ContainsRune(k, '=') || k[0] == '[' || k[0] == ';' {
			return nil, invalidArgument("key %q cannot be stored", k)
		}
		v := values[i]
		if v != "" {
			if err := checkText("value", v); err != nil {
				return nil, err
			}
		}
		if len(k)+1+len(v) < MinLineSize {
			return nil, invalidArgument("entry %q=%q is too short to read back", k, v)
		}

		if j, ok := index[k]; ok {
			entries[j].Value = v
			continue
		}
		index[k] = len(entries)
		entries = append(entries, Entry{Key: k, Value: v})
	}
	return entries, nil
}

// checkText rejects strings that would not read back unchanged.
func checkText(what, s string) error {
	switch {
	case s == "":
		return invalidArgument("empty %s", what)
	case strings.ContainsAny(s, "\n"):
		return invalidArgument("%s contains a newline", what)
	case strings.Trim(s, whitespace) != s:
		return invalidArgument("%s %q has surrounding whitespace", what, s)
	}
	for i := 1; i < len(s); i++ {
		if s[i] == ';' && isSpace(s[i-1]) {
			return invalidArgument("%s %q contains a comment marker", what, s)
		}
	}
	return nil
}

// ensureFile creates an empty file at path unless one exists already, possibly
// created by a racing process.
func ensureFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, fileMode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("ini: create %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ini: close %s: %w", path, err)
	}
	return nil
}

// replaceFile atomically replaces path with data using a temp file in the same
// directory and a rename. The permission bits of the existing file are kept.
func replaceFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	perm := fileMode
	if info, statErr := os.Stat(path); statErr == nil {
		perm = info.Mode().Perm()
	}

	tempName := tempFileName(path, uuid.NewString())
	tempFile, err := os.OpenFile(tempName, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("ini: create temp file for %s: %w", path, err)
	}
	// Cleanup for every failure path
	defer func() {
		if err != nil {
			_ = tempFile.Close()
			_ = os.Remove(tempName)
		}
	}()

	if _, err = tempFile.Write(data); err != nil {
		return fmt.Errorf("ini: write %s: %w", tempName, err)
	}
	if err = tempFile.Sync(); err != nil {
		return fmt.Errorf("ini: sync %s: %w", tempName, err)
	}
	if err = tempFile.Close(); err != nil {
		return fmt.Errorf("ini: close %s: %w", tempName, err)
	}
	// The umask may have narrowed the mode given to OpenFile
	if err = os.Chmod(tempName, perm); err != nil {
		return fmt.Errorf("ini: chmod %s: %w", tempName, err)
	}
	if err = os.Rename(tempName, path); err != nil {
		return fmt.Errorf("ini: replace %s: %w", path, err)
	}

	// The rename already happened; a failed directory sync only weakens durability.
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}

func tempFileName(path, id string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+id+".tmp")
}

// RemoveStaleTemps deletes temp files left next to path by writers that died
// mid-write, and returns how many it removed. It must only run while no other
// writer can be active on path.
func RemoveStaleTemps(path string) (int, error) {
	if path == "" {
		return 0, invalidArgument("empty path")
	}
	matches, err := filepath.Glob(tempFileName(path, "*"))
	if err != nil {
		return 0, fmt.Errorf("ini: find temp files for %s: %w", path, err)
	}

	var errs []error
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
