package content

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"fieldsync/internal/fieldsync"
)

// filesystemStore keeps one file per key in a single directory:
//
//	<dir>/
//	  <key>          (captured bytes, possibly age-encrypted)
//	  .tmp-*         (in-flight writes)
type filesystemStore struct {
	dir string
}

// NewFileSystemContentStore creates a content store rooted at dir.
// maxSize is the maximum total size in bytes; must be positive.
func NewFileSystemContentStore(dir string, maxSize int64) (fieldsync.ContentStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}

	return &contentStore{
		store:   &filesystemStore{dir: dir},
		maxSize: maxSize,
	}, nil
}

// write uses a temp file + rename so a crash never leaves a truncated photo.
func (f *filesystemStore) write(key string, data []byte) error {
	tmpFile, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(f.dir, key)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func (f *filesystemStore) open(key string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(f.dir, key))
	if err != nil {
		return nil, fmt.Errorf("opening content %s: %w", key, err)
	}
	return file, nil
}

func (f *filesystemStore) remove(key string) error {
	err := os.Remove(filepath.Join(f.dir, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing content %s: %w", key, err)
	}
	return nil
}

func (f *filesystemStore) sizeOf(key string) (int64, error) {
	info, err := os.Stat(filepath.Join(f.dir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat content %s: %w", key, err)
	}
	return info.Size(), nil
}

func (f *filesystemStore) total() (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("reading content directory: %w", err)
	}

	var total int64
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		total += info.Size()
	}
	return total, nil
}
