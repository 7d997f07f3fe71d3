package vault

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileSystemVault(t *testing.T) {
	t.Run("creates root directory", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "vault")

		v, err := NewFileSystemVault(root, "")
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		if _, err := os.Stat(root); err != nil {
			t.Errorf("root not created: %v", err)
		}
		if err := v.ValidateSetup(context.Background()); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})

	t.Run("validate fails when root disappears", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "vault")
		v, _ := NewFileSystemVault(root, "")
		os.RemoveAll(root)

		if err := v.ValidateSetup(context.Background()); err == nil {
			t.Error("ValidateSetup() expected error")
		}
	})
}

func TestFileSystemVault_Upload(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		publicURL string
		key       string
		data      string
		size      int64
		wantURL   func(root string) string
		wantErr   bool
	}{
		{
			name: "file url without public url",
			key:  "srv_5/antes_1_id-1_0.jpg",
			data: "jpeg",
			size: 4,
			wantURL: func(root string) string {
				return "file://" + filepath.ToSlash(filepath.Join(root, "srv_5", "antes_1_id-1_0.jpg"))
			},
		},
		{
			name:      "public url",
			publicURL: "https://cdn.example.com/fotos/",
			key:       "srv_5/antes_1_id-1_0.jpg",
			data:      "jpeg",
			size:      4,
			wantURL: func(string) string {
				return "https://cdn.example.com/fotos/srv_5/antes_1_id-1_0.jpg"
			},
		},
		{
			name:    "size mismatch",
			key:     "srv_5/x.jpg",
			data:    "hello",
			size:    100,
			wantErr: true,
		},
		{
			name:    "traversal",
			key:     "../escape.jpg",
			data:    "x",
			size:    1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			v, err := NewFileSystemVault(root, tt.publicURL)
			if err != nil {
				t.Fatalf("NewFileSystemVault() error = %v", err)
			}

			url, err := v.Upload(ctx, tt.key, strings.NewReader(tt.data), tt.size, "image/jpeg")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Upload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				entries, _ := os.ReadDir(root)
				for _, e := range entries {
					sub, _ := os.ReadDir(filepath.Join(root, e.Name()))
					if len(sub) > 0 {
						t.Errorf("leftover files after failed upload in %s", e.Name())
					}
				}
				return
			}

			if want := tt.wantURL(v.root); url != want {
				t.Errorf("Upload() url = %q, want %q", url, want)
			}
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(tt.key)))
			if err != nil {
				t.Fatalf("reading stored object: %v", err)
			}
			if string(data) != tt.data {
				t.Errorf("stored = %q, want %q", data, tt.data)
			}
		})
	}
}
