package llm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorageBackend_UploadThenDownloadRoundTrips(t *testing.T) {
	root := t.TempDir()
	backend := NewLocalStorageBackend(root)
	ctx := context.Background()

	srcPath := filepath.Join(t.TempDir(), "source.pdf")
	if err := os.WriteFile(srcPath, []byte("%PDF-1.4 contents"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	key, err := backend.Upload(ctx, srcPath, "documents/tenant-1/doc-1.pdf")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if key != "documents/tenant-1/doc-1.pdf" {
		t.Errorf("Upload returned key %q", key)
	}

	ok, err := backend.Exists(ctx, "documents/tenant-1/doc-1.pdf")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Fatalf("expected uploaded object to exist")
	}

	destPath := filepath.Join(t.TempDir(), "downloaded.pdf")
	if err := backend.Download(ctx, "documents/tenant-1/doc-1.pdf", destPath); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(got) != "%PDF-1.4 contents" {
		t.Errorf("downloaded content = %q", string(got))
	}
}

func TestLocalStorageBackend_ExistsIsFalseForMissingKey(t *testing.T) {
	backend := NewLocalStorageBackend(t.TempDir())
	ok, err := backend.Exists(context.Background(), "documents/missing.pdf")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Errorf("expected Exists to be false for a key never uploaded")
	}
}

func TestLocalStorageBackend_DeleteIsIdempotent(t *testing.T) {
	root := t.TempDir()
	backend := NewLocalStorageBackend(root)
	ctx := context.Background()

	srcPath := filepath.Join(t.TempDir(), "f.txt")
	os.WriteFile(srcPath, []byte("x"), 0o644)
	if _, err := backend.Upload(ctx, srcPath, "documents/f.txt"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := backend.Delete(ctx, "documents/f.txt"); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := backend.Delete(ctx, "documents/f.txt"); err != nil {
		t.Errorf("second Delete on an already-removed key should not error, got: %v", err)
	}

	ok, err := backend.Exists(ctx, "documents/f.txt")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Errorf("expected key to no longer exist after Delete")
	}
}

func TestLocalStorageBackend_GeneratePresignedURLReturnsResolvedPath(t *testing.T) {
	root := t.TempDir()
	backend := NewLocalStorageBackend(root)
	url, err := backend.GeneratePresignedURL(context.Background(), "documents/a.pdf", 3600)
	if err != nil {
		t.Fatalf("GeneratePresignedURL: %v", err)
	}
	want := filepath.Join(root, "documents", "a.pdf")
	if url != want {
		t.Errorf("GeneratePresignedURL = %q, want %q", url, want)
	}
}

func TestLocalStorageBackend_StorageType(t *testing.T) {
	if got := NewLocalStorageBackend(t.TempDir()).StorageType(); got != "local" {
		t.Errorf("StorageType() = %q, want local", got)
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"documents prefix is preserved", "documents/a.pdf", "documents/a.pdf"},
		{"templates prefix is preserved", "templates/t1.docx", "templates/t1.docx"},
		{"fills prefix is preserved", "fills/f1.docx", "fills/f1.docx"},
		{"unrecognized path passes through unchanged", "/tmp/legacy/file.pdf", "/tmp/legacy/file.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeKey(tt.key); got != tt.want {
				t.Errorf("NormalizeKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
