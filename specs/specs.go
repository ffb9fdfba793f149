// Package specs lists the test specs on disk and watches them for changes.
package specs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// Catalog describes where specs live. Spec ids are slash-separated paths
// relative to Root, e.g. "tests/specs/01-register-login.spec.ts".
type Catalog struct {
	Root   string
	Dir    string
	Suffix string
}

// AbsDir returns the absolute spec directory.
func (c Catalog) AbsDir() string {
	if filepath.IsAbs(c.Dir) {
		return c.Dir
	}
	return filepath.Join(c.Root, c.Dir)
}

// List re-reads the spec directory. A missing directory yields no specs.
func (c Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.AbsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list specs: %w", err)
	}

	prefix := filepath.ToSlash(c.Dir)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), c.Suffix) {
			continue
		}
		out = append(out, path.Join(prefix, e.Name()))
	}
	slices.Sort(out)
	return out, nil
}

// Contains reports whether spec is in the current listing.
func (c Catalog) Contains(spec string) (bool, error) {
	list, err := c.List()
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(list, spec)
	return found, nil
}
