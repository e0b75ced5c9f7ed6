package host

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSystemOpenAndSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "program.bin")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	fs := FileSystem{}

	size, err := fs.Size(path)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 5 {
		t.Fatalf("expected size 5, got %d", size)
	}

	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 5)
	if _, err := f.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", string(buf))
	}
}

func TestFileSystemOpenMissingFile(t *testing.T) {
	fs := FileSystem{}
	if _, err := fs.Open(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatalf("expected an error opening a missing file")
	}
}
