package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_CreateOpenExists(t *testing.T) {
	osfs := OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "maps", "nside1")

	if err := osfs.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	path := filepath.Join(dir, "counts.txt")
	if osfs.Exists(path) {
		t.Fatal("file should not exist yet")
	}

	w, err := osfs.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := io.WriteString(w, "1\n2\n"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !osfs.Exists(path) {
		t.Error("expected file to exist after Create")
	}

	f, err := osfs.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "1\n2\n" {
		t.Errorf("got %q", data)
	}
}

func TestMemoryFileSystem_CreateVisibleOnClose(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/exposure.txt")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("0.5\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, _ := mfs.ReadFile("/exposure.txt")
	if len(data) != 0 {
		t.Errorf("data visible before Close: %q", data)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err = mfs.ReadFile("/exposure.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "0.5\n" {
		t.Errorf("got %q", data)
	}
}

func TestMemoryFileSystem_CreateNeedsParent(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if _, err := mfs.Create("/out/trace.png"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if err := mfs.MkdirAll("/out", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if !mfs.Exists("/out") {
		t.Error("expected directory to exist")
	}
	w, err := mfs.Create("/out/trace.png")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w.Close()

	files := mfs.Files()
	if len(files) != 1 || files[0] != "/out/trace.png" {
		t.Errorf("Files() = %v", files)
	}
}

func TestMemoryFileSystem_OpenAndStat(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/counts.txt", []byte("3\n4\n"))

	f, err := mfs.Open("/counts.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name() != "counts.txt" || info.Size() != 4 || info.IsDir() {
		t.Errorf("unexpected info: name=%s size=%d dir=%v", info.Name(), info.Size(), info.IsDir())
	}

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "3\n4\n" {
		t.Errorf("got %q", data)
	}

	if _, err := mfs.Open("/missing.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
