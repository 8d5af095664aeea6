package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_WriteFileAtomic(t *testing.T) {
	fsys := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "480p", "data.bin")

	if err := WriteFileAtomic(fsys, path, []byte("first"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := WriteFileAtomic(fsys, path, []byte("second"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected %q, got %q", "second", data)
	}

	entries, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".*tmp*"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestOSFileSystem_Exists(t *testing.T) {
	fsys := OSFileSystem{}

	if !fsys.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}
	if fsys.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	if err := mfs.WriteFile("/test.txt", testData, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}

	// The stored copy is independent of the caller's slice.
	testData[0] = 'H'
	data, _ = mfs.ReadFile("/test.txt")
	if data[0] != 'h' {
		t.Error("stored data aliased the input slice")
	}
}

func TestMemoryFileSystem_ReadMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_, err := mfs.ReadFile("/missing")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_Rename(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.WriteFile("/a", []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := mfs.Rename("/a", "/b"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if mfs.Exists("/a") {
		t.Error("expected /a to be gone")
	}
	if !mfs.Exists("/b") {
		t.Error("expected /b to exist")
	}
	if err := mfs.Rename("/a", "/c"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestWriteFileAtomic_FailedRenameKeepsPrevious(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := WriteFileAtomic(mfs, "/cache/480p/file", []byte("old"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	mfs.FailRename = true
	if err := WriteFileAtomic(mfs, "/cache/480p/file", []byte("new"), 0644); err == nil {
		t.Fatal("expected error from failed rename")
	}

	data, err := mfs.ReadFile("/cache/480p/file")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "old" {
		t.Errorf("expected previous content, got %q", data)
	}
	if files := mfs.Files(); len(files) != 1 {
		t.Errorf("expected only the original file, got %v", files)
	}
}

func TestMemoryFileSystem_MkdirAllAndStat(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/a/b/c", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, dir := range []string{"/a", "/a/b", "/a/b/c"} {
		info, err := mfs.Stat(dir)
		if err != nil {
			t.Fatalf("Stat(%s) failed: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("expected %s to be a directory", dir)
		}
	}
}
