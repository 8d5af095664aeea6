package app

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"fisheye-stereo/internal/fsutil"
)

// stamp identifies a version of a watched file.
type stamp struct {
	exists  bool
	modTime time.Time
	size    int64
}

// FileWatcher polls a file and triggers a callback whenever its modification time or size
// differs from the baseline. It watches the stereo artifact so a recalibration can be
// picked up without restarting, and the executable during development.
type FileWatcher struct {
	fs            fsutil.FileSystem
	path          string
	checkInterval time.Duration

	mu       sync.Mutex
	baseline stamp
	stopCh   chan struct{}
	onChange func() // Called when the file changes
}

// NewFileWatcher creates a watcher for path with the current state of the file as
// baseline. A missing file is a valid baseline; its creation counts as a change.
func NewFileWatcher(fsys fsutil.FileSystem, path string, checkInterval time.Duration) *FileWatcher {
	w := &FileWatcher{
		fs:            fsys,
		path:          path,
		checkInterval: checkInterval,
		stopCh:        make(chan struct{}),
	}
	w.baseline = w.current()
	return w
}

// NewBinaryWatcher watches the running executable.
// Returns nil if the executable path cannot be determined.
func NewBinaryWatcher(checkInterval time.Duration) *FileWatcher {
	execPath, err := os.Executable()
	if err != nil {
		return nil
	}

	// go build replaces the file; follow the link to the real one
	if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = realPath
	}

	w := NewFileWatcher(fsutil.OSFileSystem{}, execPath, checkInterval)
	if !w.baseline.exists {
		return nil
	}
	return w
}

// OnChange sets the callback to invoke when the file changes.
// The callback is called from a background goroutine - use appropriate
// synchronization if updating UI.
func (w *FileWatcher) OnChange(callback func()) {
	w.mu.Lock()
	w.onChange = callback
	w.mu.Unlock()
}

// Start begins watching in a background goroutine.
func (w *FileWatcher) Start() {
	// Create a fresh stop channel in case we're restarting
	w.stopCh = make(chan struct{})
	go w.watchLoop(w.stopCh)
}

// Stop stops the watcher goroutine.
func (w *FileWatcher) Stop() {
	close(w.stopCh)
}

func (w *FileWatcher) watchLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !w.Changed() {
				continue
			}
			w.ResetBaseline()
			w.mu.Lock()
			cb := w.onChange
			w.mu.Unlock()
			if cb != nil {
				cb()
			}
		}
	}
}

func (w *FileWatcher) current() stamp {
	info, err := w.fs.Stat(w.path)
	if err != nil {
		return stamp{}
	}
	return stamp{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// Changed returns true if the file differs from the baseline.
func (w *FileWatcher) Changed() bool {
	cur := w.current()
	w.mu.Lock()
	defer w.mu.Unlock()
	return cur.exists != w.baseline.exists || cur.size != w.baseline.size || !cur.modTime.Equal(w.baseline.modTime)
}

// ResetBaseline makes the current state of the file the new baseline.
func (w *FileWatcher) ResetBaseline() {
	cur := w.current()
	w.mu.Lock()
	w.baseline = cur
	w.mu.Unlock()
}

// Path returns the watched path.
func (w *FileWatcher) Path() string {
	return w.path
}

// ModTime returns the baseline modification time.
func (w *FileWatcher) ModTime() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.baseline.modTime
}

// RestartProcess replaces the current process with a new instance of the
// specified executable, preserving command line arguments and environment.
// This function does not return on success.
func RestartProcess(execPath string) error {
	return syscall.Exec(execPath, os.Args, os.Environ())
}
