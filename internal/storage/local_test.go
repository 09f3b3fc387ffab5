package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		tempDir := filepath.Join(t.TempDir(), "nested", "cache")

		storage, err := NewLocalStorage(tempDir)
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if storage.TempDir() != tempDir {
			t.Errorf("TempDir() = %v, want %v", storage.TempDir(), tempDir)
		}

		info, err := os.Stat(tempDir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory, got file")
		}
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		storage, err := NewLocalStorage("")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		expected := filepath.Join(os.TempDir(), "vidcompress")
		if storage.TempDir() != expected {
			t.Errorf("TempDir() = %v, want %v", storage.TempDir(), expected)
		}
	})
}

func TestLocalStorage_SaveTemp(t *testing.T) {
	storage := setupTestStorage(t)

	t.Run("saves data to temp file", func(t *testing.T) {
		ctx := context.Background()
		data := bytes.NewReader([]byte("test data"))

		path, err := storage.SaveTemp(ctx, "test", data)
		if err != nil {
			t.Fatalf("SaveTemp() error = %v", err)
		}

		if !strings.Contains(filepath.Base(path), "test_") {
			t.Errorf("path %s should contain 'test_'", path)
		}
		if filepath.Dir(path) != storage.TempDir() {
			t.Errorf("path %s should be inside %s", path, storage.TempDir())
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read saved file: %v", err)
		}
		if string(content) != "test data" {
			t.Errorf("got %q, want %q", string(content), "test data")
		}
	})

	t.Run("keeps the extension", func(t *testing.T) {
		path, err := storage.SaveTemp(context.Background(), "thumb.jpg", bytes.NewReader([]byte{0xFF, 0xD8}))
		if err != nil {
			t.Fatalf("SaveTemp() error = %v", err)
		}
		if filepath.Ext(path) != ".jpg" {
			t.Errorf("extension = %q, want .jpg", filepath.Ext(path))
		}
		if !strings.HasPrefix(filepath.Base(path), "thumb_") {
			t.Errorf("name %s should start with thumb_", filepath.Base(path))
		}
	})

	t.Run("ignores directories in the name", func(t *testing.T) {
		path, err := storage.SaveTemp(context.Background(), "../escape.jpg", bytes.NewReader(nil))
		if err != nil {
			t.Fatalf("SaveTemp() error = %v", err)
		}
		if filepath.Dir(path) != storage.TempDir() {
			t.Errorf("path %s escaped %s", path, storage.TempDir())
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.SaveTemp(ctx, "test", bytes.NewReader([]byte("data")))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_ClearTemp(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("removes files and directories", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if _, err := storage.SaveTemp(ctx, "thumb.jpg", bytes.NewReader([]byte("data"))); err != nil {
				t.Fatalf("SaveTemp() error = %v", err)
			}
		}
		if err := os.MkdirAll(filepath.Join(storage.TempDir(), "frames", "0001"), 0750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}

		removed, err := storage.ClearTemp(ctx)
		if err != nil {
			t.Fatalf("ClearTemp() error = %v", err)
		}
		if removed != 4 {
			t.Errorf("removed = %d, want 4", removed)
		}

		entries, err := os.ReadDir(storage.TempDir())
		if err != nil {
			t.Fatalf("cache directory should survive: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected empty cache, found %d entries", len(entries))
		}
	})

	t.Run("empty cache removes nothing", func(t *testing.T) {
		removed, err := storage.ClearTemp(ctx)
		if err != nil {
			t.Fatalf("ClearTemp() error = %v", err)
		}
		if removed != 0 {
			t.Errorf("removed = %d, want 0", removed)
		}
	})

	t.Run("missing directory is not an error", func(t *testing.T) {
		gone := &LocalStorage{tempDir: filepath.Join(t.TempDir(), "missing")}
		removed, err := gone.ClearTemp(ctx)
		if err != nil || removed != 0 {
			t.Errorf("ClearTemp() = %d, %v; want 0, nil", removed, err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		if _, err := storage.SaveTemp(ctx, "left", bytes.NewReader(nil)); err != nil {
			t.Fatalf("SaveTemp() error = %v", err)
		}
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.ClearTemp(cancelled)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_UploadToS3(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.UploadToS3(ctx, "key", bytes.NewReader([]byte("data")))
	if !errors.Is(err, ErrS3NotConfigured) {
		t.Errorf("expected ErrS3NotConfigured, got %v", err)
	}
}

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	storage, err := NewLocalStorage(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}
