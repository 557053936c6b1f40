// Package seriesfile implements the ordered series file and its
// read/mutate/rewrite discipline: a flat list of patch names (or
// `-i <relpath>` include directives), one per line, blanks skipped on
// read and never written.
package seriesfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const includePrefix = "-i "

// Store wraps the `series` file rooted at a patch-repo path.
type Store struct {
	// Path is the absolute path to the series file itself (not its
	// containing directory), so that recursive includes can resolve
	// relative paths against filepath.Dir(Path).
	Path string
}

// New returns a Store for the series file at path.
func New(path string) *Store {
	return &Store{Path: path}
}

// Read returns the flat (non-recursive) list of entries in the series
// file, in order, skipping blank lines. An entry is either a plain
// patch name or a `-i <relpath>` include directive, verbatim.
func (s *Store) Read() ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	return entries, scanner.Err()
}

// write rewrites the series file from entries: one name per line,
// newline-terminated, no blanks.
func (s *Store) write(entries []string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Mutate implements the bracketed read-mutate-rewrite contract: it
// loads the flat list, hands it to fn, then rewrites the file from
// whatever fn returns (from the list as read, if fn returns nil). It
// does not stage the file. The rewrite happens even if fn returns an
// error, so that a partially-applied mutation is reflected on disk
// (check() can then detect the resulting inconsistency) rather than
// silently discarded; the original error from fn is still returned to
// the caller.
func (s *Store) Mutate(fn func([]string) ([]string, error)) error {
	entries, err := s.Read()
	if err != nil {
		return err
	}
	newEntries, fnErr := fn(entries)
	if newEntries == nil {
		newEntries = entries
	}
	if err := s.write(newEntries); err != nil {
		if fnErr != nil {
			return fnErr
		}
		return err
	}
	return fnErr
}

// ReadRecursive expands `-i <relpath>` directives depth-first,
// left-to-right, into a flat ordered list of patch names. Names
// yielded from an included series are prefixed with that included
// series file's directory (relative to the root series file's
// directory), so `-i sub/series` yields `sub/<name>`.
func (s *Store) ReadRecursive() ([]string, error) {
	return s.readRecursive("")
}

func (s *Store) readRecursive(prefix string) ([]string, error) {
	entries, err := s.Read()
	if err != nil {
		return nil, err
	}

	var out []string
	dir := filepath.Dir(s.Path)
	for _, entry := range entries {
		if strings.HasPrefix(entry, includePrefix) {
			relpath := strings.TrimSpace(strings.TrimPrefix(entry, includePrefix))
			childStore := &Store{Path: filepath.Join(dir, relpath)}
			childPrefix := filepath.Join(prefix, filepath.Dir(relpath))
			if childPrefix == "." {
				childPrefix = ""
			}
			childNames, err := childStore.readRecursive(childPrefix)
			if err != nil {
				return nil, fmt.Errorf("including %s: %w", relpath, err)
			}
			out = append(out, childNames...)
			continue
		}
		if prefix != "" {
			out = append(out, filepath.Join(prefix, entry))
		} else {
			out = append(out, entry)
		}
	}
	return out, nil
}
