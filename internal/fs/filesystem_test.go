package fs

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("creating directory: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", rel, err)
		}
	}
}

func TestScanner_Scan(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"antes/IMG_0002.jpg":   "b",
		"antes/IMG_0001.jpg":   "a",
		"antes/.DS_Store":      "x",
		"antes/sub/deep.jpg":   "too deep",
		"despues/IMG_0100.jpg": "c",
		"loose.jpg":            "d",
		"upload.tmp":           "partial",
		"doc_apr/apr.pdf":      "pdf",
		"doc_apr/apr.pdf.bak":  "backup",
		".hidden/secret.jpg":   "h",
		IgnoreFileName:         "*.bak\n",
	})

	s := NewScanner([]string{".*", "*.tmp"}, "general")
	got, err := s.Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := []struct {
		rel       string
		fieldType string
		index     int
	}{
		{rel: filepath.Join("antes", "IMG_0001.jpg"), fieldType: "antes", index: 0},
		{rel: filepath.Join("antes", "IMG_0002.jpg"), fieldType: "antes", index: 1},
		{rel: filepath.Join("despues", "IMG_0100.jpg"), fieldType: "despues", index: 0},
		{rel: filepath.Join("doc_apr", "apr.pdf"), fieldType: "doc_apr", index: 0},
		{rel: "loose.jpg", fieldType: "general", index: 0},
	}
	if len(got) != len(want) {
		for _, c := range got {
			t.Logf("found %s", c.RelPath)
		}
		t.Fatalf("Scan() returned %d captures, want %d", len(got), len(want))
	}
	for i, w := range want {
		c := got[i]
		if c.RelPath != w.rel || c.FieldType != w.fieldType || c.Index != w.index {
			t.Errorf("capture %d = {%s %s %d}, want {%s %s %d}", i, c.RelPath, c.FieldType, c.Index, w.rel, w.fieldType, w.index)
		}
		if !filepath.IsAbs(c.Path) {
			t.Errorf("capture %d path %q is not absolute", i, c.Path)
		}
	}

	rc, err := Open(got[0])
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "a" {
		t.Errorf("Open() content = %q, want %q", data, "a")
	}
}

func TestScanner_ScanNoDefaultFieldType(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"loose.jpg":   "d",
		"antes/a.jpg": "a",
	})

	got, err := NewScanner(nil, "").Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(got) != 1 || got[0].FieldType != "antes" {
		t.Errorf("Scan() = %+v, want only the antes capture", got)
	}
}

func TestScanner_ScanErrors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	file := filepath.Join(root, "file.jpg")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	s := NewScanner(nil, "general")
	if _, err := s.Scan(file); err == nil {
		t.Error("Scan(file) expected error")
	}
	if _, err := s.Scan(filepath.Join(root, "missing")); err == nil {
		t.Error("Scan(missing) expected error")
	}
}

func TestScanner_SkipsSymlinks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, map[string]string{"antes/a.jpg": "a"})
	if err := os.Symlink(filepath.Join(root, "antes", "a.jpg"), filepath.Join(root, "antes", "link.jpg")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, err := NewScanner(nil, "general").Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Scan() returned %d captures, want 1", len(got))
	}
}
