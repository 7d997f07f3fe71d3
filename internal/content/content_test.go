package content

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fieldsync/internal/config"
	"fieldsync/internal/fieldsync"
)

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func readAll(t *testing.T, s fieldsync.ContentStore, key string) string {
	t.Helper()
	rc, err := s.Open(key)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading %s: %v", key, err)
	}
	return string(data)
}

// backends returns a fresh store of each kind.
func backends(t *testing.T, maxSize int64) map[string]fieldsync.ContentStore {
	t.Helper()
	fsStore, err := NewFileSystemContentStore(filepath.Join(t.TempDir(), "content"), maxSize)
	if err != nil {
		t.Fatalf("NewFileSystemContentStore() error = %v", err)
	}
	return map[string]fieldsync.ContentStore{
		"memory":     NewMemoryContentStore(maxSize),
		"filesystem": fsStore,
	}
}

func TestContentStore_PutOpen(t *testing.T) {
	for name, s := range backends(t, 1024) {
		t.Run(name, func(t *testing.T) {
			size, checksum, err := s.Put("local_1_antes_0_1", strings.NewReader("jpeg bytes"))
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if size != 10 {
				t.Errorf("size = %d, want 10", size)
			}
			if checksum != sha256Hex("jpeg bytes") {
				t.Errorf("checksum = %s, want %s", checksum, sha256Hex("jpeg bytes"))
			}
			if got := readAll(t, s, "local_1_antes_0_1"); got != "jpeg bytes" {
				t.Errorf("content = %q, want %q", got, "jpeg bytes")
			}

			total, err := s.Size()
			if err != nil {
				t.Fatalf("Size() error = %v", err)
			}
			if total != 10 {
				t.Errorf("Size() = %d, want 10", total)
			}
		})
	}
}

func TestContentStore_Replace(t *testing.T) {
	for name, s := range backends(t, 12) {
		t.Run(name, func(t *testing.T) {
			if _, _, err := s.Put("k", strings.NewReader("0123456789")); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			// Replacing does not count the old bytes against the cap.
			if _, _, err := s.Put("k", strings.NewReader("abcdefghij")); err != nil {
				t.Fatalf("Put() replace error = %v", err)
			}
			if got := readAll(t, s, "k"); got != "abcdefghij" {
				t.Errorf("content = %q, want replaced content", got)
			}
			total, _ := s.Size()
			if total != 10 {
				t.Errorf("Size() = %d, want 10", total)
			}
		})
	}
}

func TestContentStore_SizeLimit(t *testing.T) {
	for name, s := range backends(t, 10) {
		t.Run(name, func(t *testing.T) {
			if _, _, err := s.Put("small", strings.NewReader("hi")); err != nil {
				t.Fatalf("Put(small) error = %v", err)
			}

			_, _, err := s.Put("big", strings.NewReader("this is way too big"))
			if !errors.Is(err, fieldsync.ErrStorageFull) {
				t.Fatalf("Put(big) error = %v, want ErrStorageFull", err)
			}
			if fieldsync.KindOf(err) != fieldsync.KindStorageQuota {
				t.Errorf("KindOf() = %s, want %s", fieldsync.KindOf(err), fieldsync.KindStorageQuota)
			}
			if _, err := s.Open("big"); err == nil {
				t.Error("Open(big) should fail after rejected Put")
			}
		})
	}
}

func TestContentStore_Remove(t *testing.T) {
	for name, s := range backends(t, 1024) {
		t.Run(name, func(t *testing.T) {
			s.Put("k", strings.NewReader("data"))

			if err := s.Remove("k"); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			if err := s.Remove("k"); err != nil {
				t.Errorf("Remove() of missing key error = %v, want nil", err)
			}

			_, err := s.Open("k")
			if !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("Open() after remove error = %v, want fs.ErrNotExist", err)
			}
			total, _ := s.Size()
			if total != 0 {
				t.Errorf("Size() = %d, want 0", total)
			}
		})
	}
}

func TestContentStore_InvalidKeys(t *testing.T) {
	s := NewMemoryContentStore(1024)
	for _, key := range []string{"", ".", "..", "a/b", `a\b`, ".tmp-1"} {
		t.Run(key, func(t *testing.T) {
			if _, _, err := s.Put(key, strings.NewReader("x")); err == nil {
				t.Errorf("Put(%q) expected error", key)
			}
		})
	}
}

func TestFileSystemContentStore_IgnoresTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSystemContentStore(dir, 1024)
	if err != nil {
		t.Fatalf("NewFileSystemContentStore() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".tmp-leftover"), []byte("partial write"), 0600); err != nil {
		t.Fatal(err)
	}
	s.Put("k", strings.NewReader("data"))

	total, err := s.Size()
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if total != 4 {
		t.Errorf("Size() = %d, want 4", total)
	}
}

func TestNewContentStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ContentConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.ContentConfig{Type: "memory"}},
		{name: "filesystem", cfg: config.ContentConfig{Type: "filesystem", Dir: t.TempDir(), MaxSize: 100}},
		{name: "filesystem without dir", cfg: config.ContentConfig{Type: "filesystem"}, wantErr: true},
		{name: "unknown", cfg: config.ContentConfig{Type: "nope"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewContentStoreFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewContentStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got == nil {
				t.Error("NewContentStoreFromConfig() returned nil")
			}
		})
	}
}
