package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// IgnoreFileName is read from the root of an import directory for extra patterns.
const IgnoreFileName = ".fieldsyncignore"

// Capture is a file found under an import directory.
// Files in a subdirectory take the subdirectory name as field type; files at
// the root take the scanner's default field type. Index numbers the files of
// one field type in name order, starting at 0.
type Capture struct {
	Path      string
	RelPath   string
	FieldType string
	Index     int
	Size      int64
	ModTime   time.Time
}

// Scanner discovers capture files for `photo import`.
type Scanner struct {
	patterns         []string
	defaultFieldType string
}

// NewScanner creates a Scanner that skips files matching patterns.
// defaultFieldType is used for files at the root of the scanned directory.
func NewScanner(patterns []string, defaultFieldType string) *Scanner {
	return &Scanner{patterns: patterns, defaultFieldType: defaultFieldType}
}

// Scan walks dir one level deep and returns the captures it holds, ordered
// by field type and index. Symlinks and special files are skipped.
func (s *Scanner) Scan(dir string) ([]Capture, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root)
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(slices.Clone(defaultIgnorePatterns), s.patterns...)
	ignore := NewIgnoreMatcher(append(patterns, filePatterns...))

	var captures []Capture
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", p, err)
		}
		if ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		depth := strings.Count(filepath.ToSlash(rel), "/")
		if d.IsDir() {
			if depth > 0 {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fieldType := s.defaultFieldType
		if depth == 1 {
			fieldType = filepath.Base(filepath.Dir(p))
		}
		if fieldType == "" {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		captures = append(captures, Capture{
			Path:      p,
			RelPath:   rel,
			FieldType: fieldType,
			Size:      fi.Size(),
			ModTime:   fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	slices.SortStableFunc(captures, func(a, b Capture) int {
		if c := strings.Compare(a.FieldType, b.FieldType); c != 0 {
			return c
		}
		return strings.Compare(a.RelPath, b.RelPath)
	})
	next := make(map[string]int)
	for i := range captures {
		captures[i].Index = next[captures[i].FieldType]
		next[captures[i].FieldType]++
	}
	return captures, nil
}

// Open opens a capture for reading.
func Open(c Capture) (io.ReadCloser, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("opening capture %s: %w", c.RelPath, err)
	}
	return f, nil
}
