package vault

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"fieldsync/internal/fieldsync"
)

// FileSystemVault is a filesystem-based implementation of the RemoteStorage interface.
// Objects are stored under root using their key as a relative path:
//
//	<root>/
//	  <ownerID>/
//	    <fieldType>_<millis>_<uuid>_<index>.jpg
//	  _devices/
//	    <deviceID>/
//	      fieldsync-<ts>.db
//
// Useful for self-hosted setups where root is served by a web server
// at publicURL.
type FileSystemVault struct {
	root      string
	publicURL string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
// If publicURL is empty, uploads are addressed with file:// URLs.
func NewFileSystemVault(root, publicURL string) (*FileSystemVault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving vault root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}

	return &FileSystemVault{
		root:      abs,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// Upload stores the object under root/key. Uploading the same key twice overwrites.
func (v *FileSystemVault) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	destPath := filepath.Join(v.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := v.writeFile(destPath, r, size); err != nil {
		return "", err
	}
	return v.url(key), nil
}

func (v *FileSystemVault) url(key string) string {
	if v.publicURL != "" {
		return v.publicURL + "/" + key
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(v.root, filepath.FromSlash(key)))}
	return u.String()
}

// ValidateSetup verifies that the vault root is an accessible directory.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements fieldsync.RemoteStorage interface
var _ fieldsync.RemoteStorage = (*FileSystemVault)(nil)
