package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fisheye-stereo/internal/fsutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcherDetectsCreationAndResize(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	w := NewFileWatcher(fsys, "cache/240p/stereo.cbor.zst", time.Hour)
	assert.False(t, w.Changed())

	require.NoError(t, fsys.WriteFile("cache/240p/stereo.cbor.zst", []byte("abc"), 0o644))
	assert.True(t, w.Changed())

	w.ResetBaseline()
	assert.False(t, w.Changed())

	require.NoError(t, fsys.WriteFile("cache/240p/stereo.cbor.zst", []byte("abcdef"), 0o644))
	assert.True(t, w.Changed())

	w.ResetBaseline()
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, fsys.WriteFile("cache/240p/stereo.cbor.zst", []byte("ghijkl"), 0o644))
	assert.True(t, w.Changed(), "same-size rewrite is seen through the modification time")

	w.ResetBaseline()
	require.NoError(t, fsys.Remove("cache/240p/stereo.cbor.zst"))
	assert.True(t, w.Changed())
}

func TestFileWatcherCallback(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("artifact", []byte("v1"), 0o644))

	w := NewFileWatcher(fsys, "artifact", 5*time.Millisecond)
	changed := make(chan struct{}, 4)
	w.OnChange(func() { changed <- struct{}{} })
	w.Start()
	defer w.Stop()

	require.NoError(t, fsys.WriteFile("artifact", []byte("version 2"), 0o644))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("change not reported")
	}

	// the baseline moves, so an unchanged file stays quiet
	select {
	case <-changed:
		t.Fatal("unexpected second notification")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, w.Changed())
}

func TestFileWatcherModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w := NewFileWatcher(fsutil.OSFileSystem{}, path, time.Hour)
	assert.Equal(t, path, w.Path())
	assert.False(t, w.ModTime().IsZero())

	later := w.ModTime().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	assert.True(t, w.Changed())
}

func TestBinaryWatcher(t *testing.T) {
	w := NewBinaryWatcher(time.Hour)
	require.NotNil(t, w)
	assert.False(t, w.Changed())
}
