package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// defaultIgnorePatterns skip what cameras, phones and desktop file managers
// leave next to the captures of an import directory.
var defaultIgnorePatterns = []string{
	IgnoreFileName,
	".DS_Store",
	"._*",
	"Thumbs.db",
	"desktop.ini",
	".thumbnails/",
	"*.part",
}

// ignoreRule is one parsed pattern line.
type ignoreRule struct {
	glob    string // lower-cased, forward slashes
	negate  bool   // "!pattern" re-includes what earlier rules skipped
	dirOnly bool   // "pattern/" only applies to directories
	byPath  bool   // a '/' inside the pattern anchors it to the import root
}

// IgnoreMatcher decides which entries of an import directory are not
// captures. Patterns are shell globs compared without regard to case, since
// camera exports mix IMG_0001.JPG and img_0002.jpg. A pattern without '/'
// matches the base name at any depth; one with '/' matches the path relative
// to the import root. The last matching pattern wins.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher parses raw pattern lines. Blank lines, '#' comments and
// malformed globs are dropped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range rawPatterns {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var r ignoreRule
		if rest, ok := strings.CutPrefix(line, "!"); ok {
			r.negate = true
			line = rest
		}
		if rest, ok := strings.CutSuffix(line, "/"); ok {
			r.dirOnly = true
			line = rest
		}
		line = strings.TrimPrefix(line, "/")
		if line == "" {
			continue
		}
		r.glob = strings.ToLower(filepath.ToSlash(line))
		r.byPath = strings.Contains(r.glob, "/")
		if _, err := path.Match(r.glob, ""); err != nil {
			continue
		}
		m.rules = append(m.rules, r)
	}
	return m
}

// Match reports whether the entry at relativePath (relative to the import
// root) should be skipped. isDir tells whether the entry is a directory.
func (m *IgnoreMatcher) Match(relativePath string, isDir bool) bool {
	if relativePath == "" || len(m.rules) == 0 {
		return false
	}

	rel := strings.ToLower(filepath.ToSlash(relativePath))
	base := path.Base(rel)

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		target := base
		if r.byPath {
			target = rel
		}
		if ok, _ := path.Match(r.glob, target); ok {
			ignored = !r.negate
		}
	}
	return ignored
}

// ParseIgnoreFile returns the lines of the ignore file at name, or nil when
// the directory has none.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// Files saved on Windows may start with a byte order mark.
		lines = append(lines, strings.TrimPrefix(scanner.Text(), "\ufeff"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file %s: %w", name, err)
	}
	return lines, nil
}
